// Package notification carries short user-facing notices ("toasts") from the
// code that produced them to the next page a client renders. Notices are
// built from a catalog of templates and queued per client slot.
package notification

import (
	"fmt"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Notices
// ---------------------------------------------------------------------------

// Severity classifies how a notice is presented.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notice is the {title, description, severity} triple shown to the user.
type Notice struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// Sink accepts notices. Capture widgets and handlers report through a Sink so
// they never depend on how notices are presented.
type Sink interface {
	Notify(n Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notice)

func (f SinkFunc) Notify(n Notice) { f(n) }

// Collector is a Sink that appends to a slice. Handlers that re-render the
// current page collect notices here instead of queueing them.
type Collector struct {
	Notices []Notice
}

func (c *Collector) Notify(n Notice) { c.Notices = append(c.Notices, n) }

// HasErrors reports whether any collected notice has error severity.
func (c *Collector) HasErrors() bool {
	for _, n := range c.Notices {
		if n.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Template catalog
// ---------------------------------------------------------------------------

// Template is a reusable notice with {{key}} placeholders.
type Template struct {
	ID          string
	Title       string
	Description string
	Severity    Severity
}

// Template IDs used across the application.
const (
	LoginMissingFields  = "login-missing-fields"
	LoginFailed         = "login-failed"
	LoginInFlight       = "login-in-flight"
	LoginSucceeded      = "login-succeeded"
	LoggedOut           = "logged-out"
	FileTooLarge        = "file-too-large"
	FileInvalidType     = "file-invalid-type"
	FileUploaded        = "file-uploaded"
	PhotoRemoved        = "photo-removed"
	MissingRequired     = "missing-required-fields"
	PatientSubmitted    = "patient-submitted"
	PatientDraftSaved   = "patient-draft-saved"
	PatientUpdated      = "patient-updated"
	PatientDeleted      = "patient-deleted"
	FormCleared         = "form-cleared"
	TreatmentAdded      = "treatment-added"
	TreatmentUpdated    = "treatment-updated"
	TreatmentRemoved    = "treatment-removed"
	TreatmentIncomplete = "treatment-incomplete"
	SignatureSaved      = "signature-saved"
	SignatureCleared    = "signature-cleared"
	InvalidField        = "invalid-field"
)

// Catalog manages notice templates and renders them with data.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewCatalog creates a Catalog with the built-in templates registered.
func NewCatalog() *Catalog {
	c := &Catalog{templates: make(map[string]*Template)}
	c.registerBuiltIn()
	return c
}

func (c *Catalog) registerBuiltIn() {
	builtIn := []Template{
		{ID: LoginMissingFields, Title: "Login Failed", Description: "Please enter both username and password.", Severity: SeverityError},
		{ID: LoginFailed, Title: "Login Failed", Description: "Invalid username or password.", Severity: SeverityError},
		{ID: LoginInFlight, Title: "Signing in...", Description: "A sign-in request is already in progress.", Severity: SeverityInfo},
		{ID: LoginSucceeded, Title: "Login Successful", Description: "Welcome to the EMR system.", Severity: SeveritySuccess},
		{ID: LoggedOut, Title: "Signed out", Description: "You have been signed out.", Severity: SeverityInfo},
		{ID: FileTooLarge, Title: "File too large", Description: "File size must be less than {{limit}}MB", Severity: SeverityError},
		{ID: FileInvalidType, Title: "Invalid file type", Description: "{{hint}}", Severity: SeverityError},
		{ID: FileUploaded, Title: "File uploaded", Description: "{{name}} uploaded successfully", Severity: SeveritySuccess},
		{ID: PhotoRemoved, Title: "File removed", Description: "The photo has been removed", Severity: SeverityInfo},
		{ID: MissingRequired, Title: "Missing required fields", Description: "Please fill in {{fields}} fields", Severity: SeverityError},
		{ID: PatientSubmitted, Title: "Patient record submitted", Description: "The patient record has been successfully saved", Severity: SeveritySuccess},
		{ID: PatientDraftSaved, Title: "Patient record saved", Description: "The patient record has been saved as draft", Severity: SeverityInfo},
		{ID: PatientUpdated, Title: "Patient updated", Description: "Changes to {{name}} have been saved", Severity: SeveritySuccess},
		{ID: PatientDeleted, Title: "Patient deleted", Description: "Patient {{id}} has been removed", Severity: SeverityInfo},
		{ID: FormCleared, Title: "Form cleared", Description: "All form fields have been cleared", Severity: SeverityInfo},
		{ID: TreatmentAdded, Title: "Treatment added", Description: "{{medication}} was added", Severity: SeveritySuccess},
		{ID: TreatmentUpdated, Title: "Treatment updated", Description: "{{medication}} was updated", Severity: SeveritySuccess},
		{ID: TreatmentRemoved, Title: "Treatment removed", Description: "The treatment has been removed", Severity: SeverityInfo},
		{ID: TreatmentIncomplete, Title: "Missing required fields", Description: "Please fill in Medication, Frequency, and Indication fields", Severity: SeverityError},
		{ID: SignatureSaved, Title: "Signature saved", Description: "The signature has been captured", Severity: SeveritySuccess},
		{ID: SignatureCleared, Title: "Signature cleared", Description: "The signature area has been cleared", Severity: SeverityInfo},
		{ID: InvalidField, Title: "Invalid value", Description: "{{detail}}", Severity: SeverityError},
	}
	for i := range builtIn {
		c.Register(builtIn[i])
	}
}

// Register adds or replaces a template.
func (c *Catalog) Register(t Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys absent from data are left as-is.
func (c *Catalog) Render(templateID string, data map[string]string) (Notice, error) {
	c.mu.RLock()
	t, ok := c.templates[templateID]
	c.mu.RUnlock()
	if !ok {
		return Notice{}, fmt.Errorf("notice template %q not found", templateID)
	}

	title, desc := t.Title, t.Description
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		desc = strings.ReplaceAll(desc, placeholder, v)
	}
	return Notice{Title: title, Description: desc, Severity: t.Severity}, nil
}

// MustRender is Render for built-in template IDs.
func (c *Catalog) MustRender(templateID string, data map[string]string) Notice {
	n, err := c.Render(templateID, data)
	if err != nil {
		panic(err)
	}
	return n
}

// ---------------------------------------------------------------------------
// Center: per-slot queues
// ---------------------------------------------------------------------------

// maxQueued bounds a single slot's queue; the oldest notices are dropped.
const maxQueued = 16

// Center queues notices per client slot until the next page drains them.
type Center struct {
	mu     sync.Mutex
	queues map[string][]Notice
}

func NewCenter() *Center {
	return &Center{queues: make(map[string][]Notice)}
}

// Push queues n for key.
func (c *Center) Push(key string, n Notice) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	q := append(c.queues[key], n)
	if len(q) > maxQueued {
		q = q[len(q)-maxQueued:]
	}
	c.queues[key] = q
}

// Drain returns and removes every notice queued for key.
func (c *Center) Drain(key string) []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.queues[key]
	delete(c.queues, key)
	return q
}

// For returns a Sink that queues onto key.
func (c *Center) For(key string) Sink {
	return SinkFunc(func(n Notice) { c.Push(key, n) })
}
