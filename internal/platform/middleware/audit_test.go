package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ins/ins/internal/platform/session"
)

// mockRecorder collects audit entries for assertions.
type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// serveAudited routes method/path through Audit and a stand-in gate that
// admits nurse sessions.
func serveAudited(t *testing.T, method, route, target string, rec AuditRecorder, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(RequestID())
	e.Use(Audit(zerolog.New(os.Stderr), rec))

	admit := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := &session.Session{Identity: "2", Name: "Head Nurse", Role: session.RoleNurse}
			c.SetRequest(c.Request().WithContext(session.WithContext(c.Request().Context(), s)))
			return next(c)
		}
	}
	e.Add(method, route, handler, admit)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestAudit_PatientPageRead(t *testing.T) {
	rec := &mockRecorder{}
	serveAudited(t, http.MethodGet, "/admin/patients/patient/:patientId", "/admin/patients/patient/P001?tab=documents", rec, okHandler)

	if rec.count() != 1 {
		t.Fatalf("expected 1 audit entry, got %d", rec.count())
	}
	entry := rec.last()
	if entry.Identity != "2" || entry.Role != "nurse" {
		t.Errorf("expected identity 2 with role nurse, got %q/%q", entry.Identity, entry.Role)
	}
	if entry.PatientID != "P001" {
		t.Errorf("expected patient P001, got %q", entry.PatientID)
	}
	if entry.Action != "read" {
		t.Errorf("expected action read, got %q", entry.Action)
	}
	if entry.Resource != "patients" {
		t.Errorf("expected resource patients, got %q", entry.Resource)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", entry.StatusCode)
	}
	if entry.RequestID == "" {
		t.Error("expected request id to be captured")
	}
}

func TestAudit_TreatmentCreate(t *testing.T) {
	rec := &mockRecorder{}
	serveAudited(t, http.MethodPost, "/admin/patients/patient/:patientId/treatments", "/admin/patients/patient/P002/treatments", rec,
		func(c echo.Context) error { return c.Redirect(http.StatusSeeOther, "/admin/patients/patient/P002") })

	entry := rec.last()
	if entry.Action != "create" || entry.Resource != "treatments" || entry.PatientID != "P002" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.StatusCode != http.StatusSeeOther {
		t.Errorf("expected status 303, got %d", entry.StatusCode)
	}
}

func TestAudit_DeleteAction(t *testing.T) {
	rec := &mockRecorder{}
	serveAudited(t, http.MethodPost, "/admin/patients/patient/:patientId/delete", "/admin/patients/patient/P003/delete", rec,
		func(c echo.Context) error { return c.Redirect(http.StatusSeeOther, "/admin/patients") })

	if entry := rec.last(); entry.Action != "delete" {
		t.Errorf("expected action delete, got %q", entry.Action)
	}
}

func TestAudit_APIRead(t *testing.T) {
	rec := &mockRecorder{}
	serveAudited(t, http.MethodGet, "/api/v1/patients/:patientId", "/api/v1/patients/P004", rec, okHandler)

	entry := rec.last()
	if entry.PatientID != "P004" || entry.Resource != "patients" || entry.Action != "read" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestAudit_RecordsHandlerErrorStatus(t *testing.T) {
	rec := &mockRecorder{}
	serveAudited(t, http.MethodGet, "/admin/patients/patient/:patientId", "/admin/patients/patient/P999", rec,
		func(c echo.Context) error { return echo.NewHTTPError(http.StatusNotFound, "patient not found") })

	if entry := rec.last(); entry.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", entry.StatusCode)
	}
}

func TestAudit_SkipsOtherPaths(t *testing.T) {
	rec := &mockRecorder{}
	for _, path := range []string{"/login", "/health", "/static/app.css", "/admin/patientsx"} {
		serveAudited(t, http.MethodGet, path, path, rec, okHandler)
	}
	if rec.count() != 0 {
		t.Errorf("expected no audit entries, got %d", rec.count())
	}
}

func TestAudit_RecorderError_DoesNotBreakRequest(t *testing.T) {
	rec := &mockRecorder{err: errors.New("disk full")}
	w := serveAudited(t, http.MethodGet, "/admin/patients", "/admin/patients", rec, okHandler)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 despite recorder error, got %d", w.Code)
	}
}

func TestAudit_CapturesIPAndUserAgent(t *testing.T) {
	rec := &mockRecorder{}
	e := echo.New()
	e.Use(Audit(zerolog.New(os.Stderr), rec))
	e.GET("/admin/patients", okHandler)

	req := httptest.NewRequest(http.MethodGet, "/admin/patients", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	req.Header.Set("User-Agent", "Mozilla/5.0 Test")
	e.ServeHTTP(httptest.NewRecorder(), req)

	entry := rec.last()
	if entry.IPAddress != "192.168.1.100" {
		t.Errorf("expected IP 192.168.1.100, got %q", entry.IPAddress)
	}
	if entry.UserAgent != "Mozilla/5.0 Test" {
		t.Errorf("expected user agent, got %q", entry.UserAgent)
	}
	if entry.Identity != "" {
		t.Errorf("expected empty identity without a session, got %q", entry.Identity)
	}
}

func TestHttpMethodToAction(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/admin/patients", "read"},
		{http.MethodHead, "/admin/patients", "read"},
		{http.MethodPost, "/admin/patients/add-new-patient", "create"},
		{http.MethodPost, "/admin/patients/patient/P001/documents", "create"},
		{http.MethodPost, "/admin/patients/patient/P001", "update"},
		{http.MethodPost, "/admin/patients/patient/P001/signature", "update"},
		{http.MethodPost, "/admin/patients/patient/P001/signature/clear", "delete"},
		{http.MethodPost, "/admin/patients/patient/P001/treatments/1/delete", "delete"},
		{http.MethodDelete, "/api/v1/patients/P001", "delete"},
	}
	for _, tt := range tests {
		if got := httpMethodToAction(tt.method, tt.path); got != tt.want {
			t.Errorf("httpMethodToAction(%s, %s) = %q, want %q", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestExtractResource(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"/admin/patients", "patients"},
		{"/admin/patients/export.xlsx", "export"},
		{"/admin/patients/add-new-patient", "patients"},
		{"/admin/patients/patient/P001", "patients"},
		{"/admin/patients/patient/P001/photo", "photo"},
		{"/admin/patients/patient/P001/treatments/2", "treatments"},
		{"/api/v1/patients", "patients"},
		{"/api/v1/patients/P001", "patients"},
	}
	for _, tt := range tests {
		if got := extractResource(tt.path); got != tt.want {
			t.Errorf("extractResource(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestExtractPatientID_FromPath(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/admin/patients/patient/P007/photo", nil), httptest.NewRecorder())
	if got := extractPatientID(c); got != "P007" {
		t.Errorf("expected P007, got %q", got)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/admin/patients", nil), httptest.NewRecorder())
	if got := extractPatientID(c); got != "" {
		t.Errorf("expected empty patient id, got %q", got)
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var got AuditEntry
	f := AuditRecorderFunc(func(entry AuditEntry) error {
		got = entry
		return nil
	})
	if err := f.RecordAccess(AuditEntry{PatientID: "P001"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PatientID != "P001" {
		t.Errorf("expected P001, got %q", got.PatientID)
	}
}
