package patient

import (
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ins/ins/internal/capture"
	"github.com/ins/ins/internal/domain/documents"
	"github.com/ins/ins/internal/platform/auth"
	"github.com/ins/ins/internal/platform/notification"
	"github.com/ins/ins/internal/platform/render"
	"github.com/ins/ins/internal/platform/session"
)

// Handler serves the patient pages.
type Handler struct {
	svc     *Service
	docs    *documents.Service
	notices *notification.Center
	catalog *notification.Catalog
	logger  zerolog.Logger
}

func NewHandler(svc *Service, docs *documents.Service, notices *notification.Center, catalog *notification.Catalog, logger zerolog.Logger) *Handler {
	return &Handler{
		svc:     svc,
		docs:    docs,
		notices: notices,
		catalog: catalog,
		logger:  logger.With().Str("component", "patient-pages").Logger(),
	}
}

// RegisterRoutes mounts the pages on the guarded /admin/patients group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.ListPatients)
	g.GET("/export.xlsx", h.ExportPatients)
	g.GET("/add-new-patient", h.NewPatientForm)
	g.POST("/add-new-patient", h.CreatePatient)

	g.GET("/patient/:patientId", h.ShowPatient)
	g.POST("/patient/:patientId", h.UpdatePatient)
	g.POST("/patient/:patientId/delete", h.DeletePatient)
	g.POST("/patient/:patientId/treatments", h.AddTreatment)
	g.POST("/patient/:patientId/treatments/:treatmentId", h.UpdateTreatment)
	g.POST("/patient/:patientId/treatments/:treatmentId/delete", h.RemoveTreatment)
	g.POST("/patient/:patientId/photo", h.UploadPhoto)
	g.POST("/patient/:patientId/photo/remove", h.RemovePhoto)
	g.POST("/patient/:patientId/documents", h.UploadDocument)
	g.POST("/patient/:patientId/signature", h.SaveSignature)
	g.POST("/patient/:patientId/signature/clear", h.ClearSignature)
}

// -- Page data --

type ListView struct {
	Query    string
	Patients []*Patient
	Shown    int
	Total    int
}

type NewPatientView struct {
	Form        Fields
	Missing     map[string]bool
	PhotoPolicy capture.Policy
	DocPolicy   capture.Policy
	Statuses    []Status
	Genders     []Gender
}

// DetailView is the data of the patient page.
type DetailView struct {
	Patient *Patient
	View    View
	Tabs    []Tab

	// Detail tab.
	PatientForm     UpdatePatient
	TreatmentForms  map[string]TreatmentInput
	NewTreatment    TreatmentInput
	Statuses        []Status
	Genders         []Gender
	TreatmentStates []TreatmentStatus

	// Documents tab.
	DocQuery         string
	PatientDocuments []documents.Document
	SharedDocuments  []documents.Document
	Selected         *documents.Document

	// Schedule tab.
	Schedule []Treatment
}

// -- List --

func (h *Handler) ListPatients(c echo.Context) error {
	q := c.QueryParam("q")
	items, total, err := h.svc.List(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return h.render(c, http.StatusOK, "patients", "Patients", ListView{
		Query:    q,
		Patients: items,
		Shown:    len(items),
		Total:    total,
	})
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id := c.Param("patientId")
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return h.fail(err)
	}
	h.flash(c, notification.PatientDeleted, map[string]string{"id": id})
	return c.Redirect(http.StatusSeeOther, "/admin/patients")
}

// -- Create --

func (h *Handler) NewPatientForm(c echo.Context) error {
	return h.renderNewPatient(c, http.StatusOK, Fields{}, nil)
}

// CreatePatient handles the three buttons of the creation form: submit,
// clear and save-as-draft.
func (h *Handler) CreatePatient(c echo.Context) error {
	form := bindFields(c)

	switch c.FormValue("action") {
	case "clear":
		return h.renderNewPatient(c, http.StatusOK, Fields{}, nil, h.catalog.MustRender(notification.FormCleared, nil))
	case "draft":
		return h.renderNewPatient(c, http.StatusOK, form, nil, h.catalog.MustRender(notification.PatientDraftSaved, nil))
	}

	var col notification.Collector
	in := CreatePatient{Fields: form}

	photo := capture.NewUpload(capture.KindPhoto, h.catalog, &col, nil)
	for _, fh := range formFiles(c, "photo") {
		if _, err := photo.SelectHeader(fh); err != nil && !isRejection(err) {
			return err
		}
	}
	in.Photo = photo.Current()
	docs := capture.NewUpload(capture.KindDocument, h.catalog, &col, func(f *capture.File) {
		in.Documents = append(in.Documents, f)
	})
	for _, fh := range formFiles(c, "documents") {
		if _, err := docs.SelectHeader(fh); err != nil && !isRejection(err) {
			return err
		}
	}

	sig, err := h.signatureFromForm(c)
	if err != nil {
		col.Notify(h.catalog.MustRender(notification.InvalidField, map[string]string{"detail": "The signature could not be read."}))
	}
	in.Signature = sig

	if col.HasErrors() {
		return h.renderNewPatient(c, http.StatusUnprocessableEntity, form, nil, col.Notices...)
	}

	p, err := h.svc.Create(c.Request().Context(), in, actor(c))
	var verr *ValidationError
	if errors.As(err, &verr) {
		return h.renderNewPatient(c, http.StatusUnprocessableEntity, form, missingSet(verr), append(col.Notices, h.validationNotices(verr)...)...)
	}
	if err != nil {
		return err
	}

	for _, n := range col.Notices {
		h.push(c, n)
	}
	h.flash(c, notification.PatientSubmitted, nil)
	return c.Redirect(http.StatusSeeOther, ParseView(p.ID, nil).URL())
}

func (h *Handler) renderNewPatient(c echo.Context, code int, form Fields, missing map[string]bool, notices ...notification.Notice) error {
	return h.render(c, code, "add-patient", "Add New Patient", NewPatientView{
		Form:        form,
		Missing:     missing,
		PhotoPolicy: capture.PolicyFor(capture.KindPhoto),
		DocPolicy:   capture.PolicyFor(capture.KindDocument),
		Statuses:    []Status{StatusActive, StatusInactive},
		Genders:     []Gender{GenderMale, GenderFemale},
	}, notices...)
}

// -- Patient page --

func (h *Handler) ShowPatient(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("patientId"))
	if err != nil {
		return h.fail(err)
	}
	v := ParseView(p.ID, c.QueryParams())
	dv, err := h.detailView(c, p, v)
	if err != nil {
		return err
	}
	return h.render(c, http.StatusOK, "patient", p.Name, dv)
}

// UpdatePatient commits the patient section and leaves Editing state.
func (h *Handler) UpdatePatient(c echo.Context) error {
	id := c.Param("patientId")
	in := UpdatePatient{Fields: bindFields(c), LastVisit: c.FormValue("last_visit")}

	_, err := h.svc.Update(c.Request().Context(), id, in)
	var verr *ValidationError
	if errors.As(err, &verr) {
		return h.rerender(c, id, func(dv *DetailView) { dv.PatientForm = in }, h.validationNotices(verr)...)
	}
	if err != nil {
		return h.fail(err)
	}
	h.flash(c, notification.PatientUpdated, map[string]string{"name": in.Name})
	return h.back(c, id, SectionPatient)
}

func (h *Handler) AddTreatment(c echo.Context) error {
	id := c.Param("patientId")
	in := bindTreatment(c)

	t, err := h.svc.AddTreatment(c.Request().Context(), id, in)
	var verr *ValidationError
	if errors.As(err, &verr) {
		notices := h.validationNotices(verr)
		if len(verr.Missing) > 0 {
			notices = append([]notification.Notice{h.catalog.MustRender(notification.TreatmentIncomplete, nil)}, notices[1:]...)
		}
		return h.rerender(c, id, func(dv *DetailView) { dv.NewTreatment = in }, notices...)
	}
	if err != nil {
		return h.fail(err)
	}
	h.flash(c, notification.TreatmentAdded, map[string]string{"medication": t.Medication})
	return h.back(c, id, SectionNewTreatment)
}

func (h *Handler) UpdateTreatment(c echo.Context) error {
	id, tid := c.Param("patientId"), c.Param("treatmentId")
	in := bindTreatment(c)

	t, err := h.svc.UpdateTreatment(c.Request().Context(), id, tid, in)
	var verr *ValidationError
	if errors.As(err, &verr) {
		return h.rerender(c, id, func(dv *DetailView) { dv.TreatmentForms[tid] = in }, h.validationNotices(verr)...)
	}
	if err != nil {
		return h.fail(err)
	}
	h.flash(c, notification.TreatmentUpdated, map[string]string{"medication": t.Medication})
	return h.back(c, id, TreatmentSection(tid))
}

func (h *Handler) RemoveTreatment(c echo.Context) error {
	id, tid := c.Param("patientId"), c.Param("treatmentId")
	if err := h.svc.RemoveTreatment(c.Request().Context(), id, tid); err != nil {
		return h.fail(err)
	}
	h.flash(c, notification.TreatmentRemoved, nil)
	return h.back(c, id, TreatmentSection(tid))
}

// UploadPhoto replaces the record's photo with the last accepted file.
// Rejections are reported as notices and leave the record untouched.
func (h *Handler) UploadPhoto(c echo.Context) error {
	id := c.Param("patientId")
	if _, err := h.svc.Get(c.Request().Context(), id); err != nil {
		return h.fail(err)
	}
	w := capture.NewUpload(capture.KindPhoto, h.catalog, h.sink(c), nil)
	for _, fh := range formFiles(c, "photo") {
		if _, err := w.SelectHeader(fh); err != nil && !isRejection(err) {
			return err
		}
	}
	if f := w.Current(); f != nil {
		if _, err := h.svc.SetPhoto(c.Request().Context(), id, f, actor(c)); err != nil {
			return h.fail(err)
		}
	}
	return h.back(c, id, "")
}

// RemovePhoto drops the record's photo.
func (h *Handler) RemovePhoto(c echo.Context) error {
	id := c.Param("patientId")
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.fail(err)
	}
	if p.Photo != nil {
		if _, err := h.svc.RemovePhoto(c.Request().Context(), id); err != nil {
			return h.fail(err)
		}
		h.flash(c, notification.PhotoRemoved, nil)
	}
	return h.back(c, id, "")
}

// UploadDocument appends each accepted file to the record's documents.
func (h *Handler) UploadDocument(c echo.Context) error {
	id := c.Param("patientId")
	if _, err := h.svc.Get(c.Request().Context(), id); err != nil {
		return h.fail(err)
	}
	w := capture.NewUpload(capture.KindDocument, h.catalog, h.sink(c), nil)
	for _, fh := range formFiles(c, "document") {
		f, err := w.SelectHeader(fh)
		if isRejection(err) {
			continue
		}
		if err != nil {
			return err
		}
		if _, err := h.svc.AddDocument(c.Request().Context(), id, f, actor(c)); err != nil {
			return h.fail(err)
		}
	}
	return h.back(c, id, "")
}

func (h *Handler) SaveSignature(c echo.Context) error {
	id := c.Param("patientId")
	sig, err := h.signatureFromForm(c)
	if err != nil {
		h.flash(c, notification.InvalidField, map[string]string{"detail": "The signature could not be read."})
		return h.back(c, id, "")
	}
	if sig == "" {
		return h.back(c, id, "")
	}
	if _, err := h.svc.SetSignature(c.Request().Context(), id, sig); err != nil {
		return h.fail(err)
	}
	h.flash(c, notification.SignatureSaved, nil)
	return h.back(c, id, "")
}

func (h *Handler) ClearSignature(c echo.Context) error {
	id := c.Param("patientId")
	if _, err := h.svc.SetSignature(c.Request().Context(), id, ""); err != nil {
		return h.fail(err)
	}
	h.flash(c, notification.SignatureCleared, nil)
	return h.back(c, id, "")
}

// -- Helpers --

func (h *Handler) detailView(c echo.Context, p *Patient, v View) (*DetailView, error) {
	dv := &DetailView{
		Patient: p,
		View:    v,
		Tabs:    Tabs,
		PatientForm: UpdatePatient{
			Fields: Fields{
				Name:             p.Name,
				Age:              strconv.Itoa(p.Age),
				Birthday:         p.Birthday,
				Gender:           string(p.Gender),
				Status:           string(p.Status),
				Address:          p.Address,
				Phone:            p.Phone,
				Email:            p.Email,
				EmergencyContact: p.EmergencyContact,
				Notes:            p.Notes,
				Supervisor:       p.Supervisor,
			},
			LastVisit: p.LastVisit,
		},
		TreatmentForms:  make(map[string]TreatmentInput, len(p.Treatments)),
		NewTreatment:    TreatmentInput{Status: string(TreatmentActive)},
		Statuses:        []Status{StatusActive, StatusInactive},
		Genders:         []Gender{GenderMale, GenderFemale},
		TreatmentStates: []TreatmentStatus{TreatmentActive, TreatmentCompleted, TreatmentDiscontinued},
		Schedule:        Schedule(p.Treatments),
	}
	for _, t := range p.Treatments {
		dv.TreatmentForms[t.ID] = TreatmentInput{
			Medication: t.Medication,
			Frequency:  t.Frequency,
			Indication: t.Indication,
			Status:     string(t.Status),
			StartDate:  t.StartDate,
			EndDate:    t.EndDate,
		}
	}

	if v.Tab == TabDocuments {
		dv.DocQuery = v.Param("q")
		dv.PatientDocuments = documents.Filter(p.Documents, dv.DocQuery)
		shared, err := h.docs.All(c.Request().Context())
		if err != nil {
			return nil, err
		}
		dv.SharedDocuments = documents.Filter(shared, dv.DocQuery)
		if sel := v.Param("doc"); sel != "" {
			for _, d := range append(append([]documents.Document(nil), p.Documents...), shared...) {
				if d.ID == sel {
					d := d
					dv.Selected = &d
					break
				}
			}
		}
	}
	return dv, nil
}

// rerender shows the patient page again with submitted values and notices
// after a rejected commit. The view comes from the form's return location,
// so the failed section stays in Editing state.
func (h *Handler) rerender(c echo.Context, id string, adjust func(*DetailView), notices ...notification.Notice) error {
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.fail(err)
	}
	v := ParseView(p.ID, nil)
	if u, err := url.Parse(v.SafeReturn(c.FormValue("return"))); err == nil {
		v = ParseView(p.ID, u.Query())
	}
	dv, err := h.detailView(c, p, v)
	if err != nil {
		return err
	}
	adjust(dv)
	return h.render(c, http.StatusUnprocessableEntity, "patient", p.Name, dv, notices...)
}

// back redirects to the form's return location with section left in
// Viewing state.
func (h *Handler) back(c echo.Context, id, section string) error {
	v := ParseView(id, nil)
	ret := v.SafeReturn(c.FormValue("return"))
	if section != "" {
		if u, err := url.Parse(ret); err == nil {
			ret = ParseView(id, u.Query()).DoneURL(section)
		}
	}
	return c.Redirect(http.StatusSeeOther, ret)
}

func (h *Handler) render(c echo.Context, code int, page, title string, data any, extra ...notification.Notice) error {
	var notices []notification.Notice
	if sl := auth.SlotFromContext(c); sl != nil {
		notices = h.notices.Drain(sl.ID())
	}
	return c.Render(code, page, render.Page{
		Title:   title,
		Session: session.FromContext(c.Request().Context()),
		Notices: append(notices, extra...),
		Nav:     "patients",
		Data:    data,
	})
}

func (h *Handler) sink(c echo.Context) notification.Sink {
	if sl := auth.SlotFromContext(c); sl != nil {
		return h.notices.For(sl.ID())
	}
	return nil
}

func (h *Handler) push(c echo.Context, n notification.Notice) {
	if sl := auth.SlotFromContext(c); sl != nil {
		h.notices.Push(sl.ID(), n)
	}
}

func (h *Handler) flash(c echo.Context, templateID string, data map[string]string) {
	h.push(c, h.catalog.MustRender(templateID, data))
}

func (h *Handler) validationNotices(verr *ValidationError) []notification.Notice {
	var out []notification.Notice
	if len(verr.Missing) > 0 {
		out = append(out, h.catalog.MustRender(notification.MissingRequired, map[string]string{"fields": verr.MissingLabel()}))
	}
	for _, d := range verr.Invalid {
		out = append(out, h.catalog.MustRender(notification.InvalidField, map[string]string{"detail": d}))
	}
	return out
}

func (h *Handler) signatureFromForm(c echo.Context) (string, error) {
	events, err := capture.ParseEvents([]byte(c.FormValue("signature_events")))
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "", nil
	}
	return capture.RenderSignature(events)
}

func (h *Handler) fail(err error) error {
	if he := statusError(err); he != nil {
		return he
	}
	return err
}

// statusError maps domain errors onto HTTP errors; nil means unmapped.
func statusError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrTreatmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "treatment not found")
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return nil
}

func bindFields(c echo.Context) Fields {
	return Fields{
		Name:             c.FormValue("name"),
		Age:              c.FormValue("age"),
		Birthday:         c.FormValue("birthday"),
		Gender:           c.FormValue("gender"),
		Status:           c.FormValue("status"),
		Address:          c.FormValue("address"),
		Phone:            c.FormValue("phone"),
		Email:            c.FormValue("email"),
		EmergencyContact: c.FormValue("emergency_contact"),
		Notes:            c.FormValue("notes"),
		Supervisor:       c.FormValue("supervisor"),
	}
}

func bindTreatment(c echo.Context) TreatmentInput {
	return TreatmentInput{
		Medication: c.FormValue("medication"),
		Frequency:  c.FormValue("frequency"),
		Indication: c.FormValue("indication"),
		Status:     c.FormValue("status"),
		StartDate:  c.FormValue("start_date"),
		EndDate:    c.FormValue("end_date"),
	}
}

// formFiles returns the uploaded files of a multipart field; other content
// types carry none.
func formFiles(c echo.Context, name string) []*multipart.FileHeader {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	return form.File[name]
}

func isRejection(err error) bool {
	return errors.Is(err, capture.ErrFileTooLarge) || errors.Is(err, capture.ErrInvalidFileType)
}

func missingSet(verr *ValidationError) map[string]bool {
	m := make(map[string]bool, len(verr.Missing))
	for _, f := range verr.Missing {
		m[f] = true
	}
	return m
}

func actor(c echo.Context) string {
	if s := session.FromContext(c.Request().Context()); s != nil {
		return s.Identity
	}
	return ""
}
