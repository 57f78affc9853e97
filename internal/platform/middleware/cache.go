package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// StaticCache serves the embedded stylesheet, script and sample documents
// with a public max-age and a strong ETag derived from the body. A matching
// If-None-Match answers 304 without a body. Only GET and HEAD are buffered.
func StaticCache(maxAge time.Duration) echo.MiddlewareFunc {
	cacheControl := "public, max-age=" + strconv.Itoa(int(maxAge.Seconds()))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}

			res := c.Response()
			orig := res.Writer
			buf := &bufferedResponseWriter{writer: orig, statusCode: http.StatusOK}
			res.Writer = buf
			err := next(c)
			res.Writer = orig
			if err != nil {
				return err
			}

			if buf.statusCode != http.StatusOK {
				return buf.flushTo()
			}

			etag := computeETag(buf.body.Bytes())
			h := res.Header()
			h.Set("ETag", etag)
			h.Set("Cache-Control", cacheControl)

			if inm := req.Header.Get("If-None-Match"); inm != "" && etagMatch(inm, etag) {
				h.Del(echo.HeaderContentLength)
				orig.WriteHeader(http.StatusNotModified)
				return nil
			}
			return buf.flushTo()
		}
	}
}

// bufferedResponseWriter holds the status and body back until the ETag is
// known.
type bufferedResponseWriter struct {
	writer     http.ResponseWriter
	body       bytes.Buffer
	statusCode int
}

func (w *bufferedResponseWriter) Header() http.Header { return w.writer.Header() }

func (w *bufferedResponseWriter) Write(b []byte) (int, error) { return w.body.Write(b) }

func (w *bufferedResponseWriter) WriteHeader(code int) { w.statusCode = code }

func (w *bufferedResponseWriter) flushTo() error {
	w.writer.WriteHeader(w.statusCode)
	if w.body.Len() == 0 {
		return nil
	}
	_, err := w.writer.Write(w.body.Bytes())
	return err
}

func computeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:12]) + `"`
}

// etagMatch compares an If-None-Match value against etag using the weak
// comparison; "*" matches anything.
func etagMatch(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}
