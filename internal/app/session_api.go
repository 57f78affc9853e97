package app

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ins/ins/internal/platform/session"
)

// currentSession returns the session the gate admitted.
func currentSession(c echo.Context) error {
	s := session.FromContext(c.Request().Context())
	if s == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}
	return c.JSON(http.StatusOK, s)
}
