package patient

import (
	"net/url"
	"sort"
	"strings"
)

// Tab is one of the patient page views.
type Tab string

const (
	TabDetail    Tab = "detail"
	TabDocuments Tab = "documents"
	TabSchedule  Tab = "schedule"
)

// Tabs lists the views in display order.
var Tabs = []Tab{TabDetail, TabDocuments, TabSchedule}

// ParseTab maps the tab parameter onto a view. Missing or unknown values
// fall back to the detail view.
func ParseTab(s string) Tab {
	switch Tab(s) {
	case TabDocuments:
		return TabDocuments
	case TabSchedule:
		return TabSchedule
	default:
		return TabDetail
	}
}

// Label is the tab caption.
func (t Tab) Label() string {
	switch t {
	case TabDocuments:
		return "Documents"
	case TabSchedule:
		return "Schedule"
	default:
		return "Patient Detail"
	}
}

// Editable sections of the detail view. Each is independently in Viewing or
// Editing state.
const (
	SectionPatient      = "patient"
	SectionNewTreatment = "new-treatment"
	treatmentPrefix     = "treatment:"
)

// TreatmentSection names the edit section of one treatment row.
func TreatmentSection(id string) string { return treatmentPrefix + id }

// View is the URL-carried state of a patient page: the selected tab, the
// sections in Editing state and any other query parameters (search, selected
// document), which tab links preserve.
type View struct {
	PatientID string
	Tab       Tab
	query     url.Values
}

// ParseView reads the view state of patientID from a query string.
func ParseView(patientID string, q url.Values) View {
	cp := url.Values{}
	for k, vs := range q {
		cp[k] = append([]string(nil), vs...)
	}
	v := View{PatientID: patientID, Tab: ParseTab(cp.Get("tab")), query: cp}
	v.query.Set("tab", string(v.Tab))
	return v
}

// BasePath is the page path without a query.
func (v View) BasePath() string {
	return "/admin/patients/patient/" + url.PathEscape(v.PatientID)
}

// Param returns a query parameter carried by the view.
func (v View) Param(key string) string { return v.query.Get(key) }

// IsEditing reports whether section is in Editing state.
func (v View) IsEditing(section string) bool {
	for _, s := range v.query["edit"] {
		if s == section {
			return true
		}
	}
	return false
}

// EditingTreatment reports whether the treatment row id is being edited.
func (v View) EditingTreatment(id string) bool {
	return v.IsEditing(TreatmentSection(id))
}

// EditTreatmentURL and DoneTreatmentURL toggle one treatment row.
func (v View) EditTreatmentURL(id string) string { return v.EditURL(TreatmentSection(id)) }

func (v View) DoneTreatmentURL(id string) string { return v.DoneURL(TreatmentSection(id)) }

// URL renders the view back into a link.
func (v View) URL() string {
	return v.BasePath() + "?" + v.query.Encode()
}

// TabURL is the link that selects t and keeps everything else, including
// unsaved edit sections.
func (v View) TabURL(t Tab) string {
	return v.with(func(q url.Values) { q.Set("tab", string(t)) })
}

// EditURL is the link that puts section into Editing state.
func (v View) EditURL(section string) string {
	if v.IsEditing(section) {
		return v.URL()
	}
	return v.with(func(q url.Values) { q.Add("edit", section) })
}

// DoneURL is the link that returns section to Viewing state.
func (v View) DoneURL(section string) string {
	return v.with(func(q url.Values) {
		kept := q["edit"][:0]
		for _, s := range q["edit"] {
			if s != section {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			q.Del("edit")
		} else {
			q["edit"] = kept
		}
	})
}

// WithParam returns the link with key set to value; an empty value removes
// the parameter.
func (v View) WithParam(key, value string) string {
	return v.with(func(q url.Values) {
		if value == "" {
			q.Del(key)
		} else {
			q.Set(key, value)
		}
	})
}

func (v View) with(fn func(q url.Values)) string {
	q := url.Values{}
	for k, vs := range v.query {
		q[k] = append([]string(nil), vs...)
	}
	fn(q)
	return v.BasePath() + "?" + q.Encode()
}

// SafeReturn accepts a post-commit location only when it points back at the
// same patient page, and otherwise falls back to the plain view URL.
func (v View) SafeReturn(ret string) string {
	u, err := url.Parse(ret)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path != v.BasePath() || strings.HasPrefix(ret, "//") {
		return v.BasePath() + "?tab=" + string(v.Tab)
	}
	return u.RequestURI()
}

// Schedule returns the treatments ordered by start date; undated entries go
// last.
func Schedule(ts []Treatment) []Treatment {
	out := append([]Treatment(nil), ts...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].StartDate, out[j].StartDate
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})
	return out
}
