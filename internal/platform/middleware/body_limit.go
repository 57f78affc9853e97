package middleware

import (
	"io"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
)

// fallbackLimit applies when a configured limit cannot be parsed.
const fallbackLimit = 2 << 20

// BodyLimit caps request bodies. uploadLimit applies to the multipart
// endpoints that accept photos and documents; every other request gets
// defaultLimit. Limits are humanized sizes such as "2M" or "64MiB".
//
// An oversized Content-Length is rejected up front with 413. Bodies without
// one are wrapped so reads past the limit fail with the same error.
func BodyLimit(defaultLimit, uploadLimit string) echo.MiddlewareFunc {
	defaultBytes := parseLimit(defaultLimit)
	uploadBytes := parseLimit(uploadLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := defaultBytes
			if req.Method == http.MethodPost && isUploadPath(req.URL.Path) {
				limit = uploadBytes
			}

			if req.ContentLength > limit {
				return payloadTooLarge(limit)
			}

			req.Body = &limitedReadCloser{
				ReadCloser: req.Body,
				remaining:  limit,
				limit:      limit,
			}
			return next(c)
		}
	}
}

// isUploadPath reports whether path is one of the form endpoints that carry
// file uploads.
func isUploadPath(path string) bool {
	path = strings.TrimSuffix(path, "/")
	if path == "/admin/patients/add-new-patient" {
		return true
	}
	if !strings.HasPrefix(path, "/admin/patients/patient/") {
		return false
	}
	return strings.HasSuffix(path, "/photo") || strings.HasSuffix(path, "/documents")
}

type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	limit     int64
	exceeded  bool
}

func (r *limitedReadCloser) Read(p []byte) (int, error) {
	if r.exceeded {
		return 0, payloadTooLarge(r.limit)
	}

	// Read one byte past the limit to detect overflow.
	if int64(len(p)) > r.remaining+1 {
		p = p[:r.remaining+1]
	}

	n, err := r.ReadCloser.Read(p)
	r.remaining -= int64(n)
	if r.remaining < 0 {
		r.exceeded = true
		return 0, payloadTooLarge(r.limit)
	}
	return n, err
}

func payloadTooLarge(limit int64) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		"request body exceeds the maximum allowed size of "+humanize.IBytes(uint64(limit)))
}

// parseLimit turns "2M", "512KiB" or "1048576" into bytes. Single-letter
// suffixes are binary multiples. Unparseable input falls back to 2 MiB.
func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return fallbackLimit
	}
	switch s[len(s)-1] {
	case 'K', 'M', 'G':
		s += "IB"
	}
	n, err := humanize.ParseBytes(s)
	if err != nil || n == 0 {
		return fallbackLimit
	}
	return int64(n)
}
