package patient

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ins/ins/internal/domain/documents"
)

var (
	ErrNotFound          = errors.New("patient not found")
	ErrTreatmentNotFound = errors.New("treatment not found")
	ErrValidation        = errors.New("validation failed")
)

// DateLayout is the layout of every date field.
const DateLayout = "2006-01-02"

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

type TreatmentStatus string

const (
	TreatmentActive       TreatmentStatus = "Active"
	TreatmentCompleted    TreatmentStatus = "Completed"
	TreatmentDiscontinued TreatmentStatus = "Discontinued"
)

// ParseGender accepts the closed set case-insensitively. The empty string
// is allowed and means "not recorded".
func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "male":
		return GenderMale, nil
	case "female":
		return GenderFemale, nil
	}
	return "", fmt.Errorf("gender must be Male or Female, got %q", s)
}

func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return StatusActive, nil
	case "inactive":
		return StatusInactive, nil
	}
	return "", fmt.Errorf("status must be Active or Inactive, got %q", s)
}

// ParseTreatmentStatus defaults an empty value to Active.
func ParseTreatmentStatus(s string) (TreatmentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active":
		return TreatmentActive, nil
	case "completed":
		return TreatmentCompleted, nil
	case "discontinued":
		return TreatmentDiscontinued, nil
	}
	return "", fmt.Errorf("treatment status must be Active, Completed or Discontinued, got %q", s)
}

// Treatment is one medical treatment entry of a record.
type Treatment struct {
	ID         string          `json:"id" yaml:"id"`
	Medication string          `json:"medication" yaml:"medication"`
	Frequency  string          `json:"frequency" yaml:"frequency"`
	Indication string          `json:"indication" yaml:"indication"`
	Status     TreatmentStatus `json:"status" yaml:"status"`
	StartDate  string          `json:"start_date" yaml:"start_date"`
	EndDate    string          `json:"end_date" yaml:"end_date"`
}

// Photo references the record's picture, either an uploaded blob or an
// external URL.
type Photo struct {
	URL    string `json:"url" yaml:"url"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	BlobID string `json:"-" yaml:"-"`
}

// Patient is a patient record.
type Patient struct {
	ID               string               `json:"id" yaml:"id"`
	Name             string               `json:"name" yaml:"name"`
	Age              int                  `json:"age" yaml:"age"`
	Birthday         string               `json:"birthday" yaml:"birthday"`
	Gender           Gender               `json:"gender,omitempty" yaml:"gender"`
	Status           Status               `json:"status" yaml:"status"`
	Address          string               `json:"address" yaml:"address"`
	Phone            string               `json:"phone" yaml:"phone"`
	Email            string               `json:"email" yaml:"email"`
	EmergencyContact string               `json:"emergency_contact" yaml:"emergency_contact"`
	Notes            string               `json:"notes" yaml:"notes"`
	LastVisit        string               `json:"last_visit" yaml:"last_visit"`
	Supervisor       string               `json:"supervisor" yaml:"supervisor"`
	Photo            *Photo               `json:"photo,omitempty" yaml:"photo,omitempty"`
	Signature        string               `json:"signature,omitempty" yaml:"signature,omitempty"`
	Treatments       []Treatment          `json:"treatments" yaml:"treatments"`
	Documents        []documents.Document `json:"documents" yaml:"documents"`
	CreatedBy        string               `json:"created_by,omitempty" yaml:"-"`
	CreatedAt        time.Time            `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time            `json:"updated_at" yaml:"-"`
}

// HasSignature reports whether a signature has been captured.
func (p *Patient) HasSignature() bool { return p.Signature != "" }

// Treatment returns the treatment with id, or nil.
func (p *Patient) Treatment(id string) *Treatment {
	for i := range p.Treatments {
		if p.Treatments[i].ID == id {
			return &p.Treatments[i]
		}
	}
	return nil
}

// Matches reports whether q is a substring of the id, name, email or
// emergency contact, ignoring case.
func (p *Patient) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, f := range []string{p.ID, p.Name, p.Email, p.EmergencyContact} {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (p *Patient) Clone() *Patient {
	out := *p
	if p.Photo != nil {
		ph := *p.Photo
		out.Photo = &ph
	}
	out.Treatments = append([]Treatment(nil), p.Treatments...)
	out.Documents = append([]documents.Document(nil), p.Documents...)
	return &out
}

// Fields is the editable demographic subset shared by the create and update
// forms.
type Fields struct {
	Name             string
	Age              string
	Birthday         string
	Gender           string
	Status           string
	Address          string
	Phone            string
	Email            string
	EmergencyContact string
	Notes            string
	Supervisor       string
}

// UpdatePatient is the update form: demographics plus last visit. Documents
// and the signature are not part of it.
type UpdatePatient struct {
	Fields
	LastVisit string
}

// TreatmentInput is the treatment add/edit form.
type TreatmentInput struct {
	Medication string
	Frequency  string
	Indication string
	Status     string
	StartDate  string
	EndDate    string
}

// ValidationError lists the problems found in a form. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Invalid...)
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) empty() bool { return len(e.Missing) == 0 && len(e.Invalid) == 0 }

// MissingLabel joins the missing field labels the way notices show them:
// "Name, Status, and Supervisor".
func (e *ValidationError) MissingLabel() string {
	switch n := len(e.Missing); n {
	case 0:
		return ""
	case 1:
		return e.Missing[0]
	case 2:
		return e.Missing[0] + " and " + e.Missing[1]
	default:
		return strings.Join(e.Missing[:n-1], ", ") + ", and " + e.Missing[n-1]
	}
}

func validDate(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
