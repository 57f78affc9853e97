package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ins/ins/internal/platform/session"
)

// AuditEntry records one access to patient data: who, what, when and from
// where.
type AuditEntry struct {
	Identity   string
	Role       string
	Resource   string // patients, treatments, documents, signature, photo, export
	PatientID  string
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc adapts a function to AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every request that touches patient records, under the admin
// pages and the JSON API, after the handler has run so the final status and
// the admitted session are known. Denied requests are audited too, with an
// empty identity.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !isAuditablePath(c.Request().URL.Path) {
				return next(c)
			}

			err := next(c)

			req := c.Request()
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       req.URL.Path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
				Action:     httpMethodToAction(req.Method, req.URL.Path),
				Resource:   extractResource(req.URL.Path),
				PatientID:  extractPatientID(c),
			}
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					entry.StatusCode = he.Code
				} else if !c.Response().Committed {
					entry.StatusCode = http.StatusInternalServerError
				}
			}
			if s := session.FromContext(req.Context()); s != nil {
				entry.Identity = s.Identity
				entry.Role = string(s.Role)
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "patient_audit").
				Str("request_id", entry.RequestID).
				Str("identity", entry.Identity).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("patient_access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	return hasPathPrefix(path, "/admin/patients") || hasPathPrefix(path, "/api/v1/patients")
}

func hasPathPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// httpMethodToAction maps a request to an audit action. The admin pages
// post every mutation, so deletes are told apart by their path.
func httpMethodToAction(method, path string) string {
	switch method {
	case http.MethodPost:
		switch {
		case strings.HasSuffix(path, "/delete"), strings.HasSuffix(path, "/clear"):
			return "delete"
		case strings.HasSuffix(path, "/add-new-patient"), strings.HasSuffix(path, "/treatments"),
			strings.HasSuffix(path, "/documents"):
			return "create"
		default:
			return "update"
		}
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractResource names the part of the record a path addresses.
//
//	/admin/patients                         -> patients
//	/admin/patients/export.xlsx             -> export
//	/admin/patients/patient/P001/treatments -> treatments
//	/api/v1/patients/P001                   -> patients
func extractResource(path string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(path, "/admin/patients"), "/api/v1/patients")
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(segments) == 1 && segments[0] == "export.xlsx":
		return "export"
	case len(segments) >= 3 && segments[0] == "patient":
		return segments[2]
	}
	return "patients"
}

// extractPatientID reads the route parameter, falling back to the path for
// requests that did not reach a route.
func extractPatientID(c echo.Context) string {
	if id := c.Param("patientId"); id != "" {
		return id
	}
	path := c.Request().URL.Path
	for _, prefix := range []string{"/admin/patients/patient/", "/api/v1/patients/"} {
		if strings.HasPrefix(path, prefix) {
			id, _, _ := strings.Cut(strings.TrimPrefix(path, prefix), "/")
			return id
		}
	}
	return ""
}
