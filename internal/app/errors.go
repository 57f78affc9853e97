package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ins/ins/internal/platform/render"
	"github.com/ins/ins/internal/platform/session"
)

// ErrorView is the data of the error page.
type ErrorView struct {
	Code    int
	Message string
}

// errorHandler answers JSON under /api and HTML everywhere else. A 503 page
// is the neutral placeholder shown while the session cannot be resolved; it
// links back to the page that was requested.
func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Internal != nil {
				err = he.Internal
			}
			if m, ok := he.Message.(string); ok {
				message = m
			} else if he.Message != nil {
				message = fmt.Sprint(he.Message)
			}
		}

		req := c.Request()
		if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", req.URL.Path).
				Int("status", code).
				Msg("request failed")
			message = http.StatusText(code)
		}

		var werr error
		switch {
		case req.Method == http.MethodHead:
			werr = c.NoContent(code)
		case isAPIPath(req.URL.Path):
			werr = c.JSON(code, map[string]string{"error": message})
		case code == http.StatusServiceUnavailable:
			retry := "/admin"
			if req.Method == http.MethodGet {
				retry = req.URL.RequestURI()
			}
			werr = c.Render(code, "placeholder", render.Page{Title: "Loading", Data: retry})
		default:
			werr = c.Render(code, "error", render.Page{
				Title:   http.StatusText(code),
				Session: session.FromContext(req.Context()),
				Data:    ErrorView{Code: code, Message: message},
			})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("failed to write error response")
		}
	}
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}
