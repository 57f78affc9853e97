package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ins/ins/internal/platform/notification"
	"github.com/ins/ins/internal/platform/render"
	"github.com/ins/ins/internal/platform/session"
)

// LoginView is the data of the login page.
type LoginView struct {
	From     string
	Username string
	// SignedInAs is set when the slot already holds a session, so the user
	// can see whose session it is before switching accounts.
	SignedInAs *session.Session
}

// LoginHandler serves the sign-in and sign-out routes.
type LoginHandler struct {
	gate    *Gate
	auth    *Authenticator
	notices *notification.Center
	catalog *notification.Catalog
	logger  zerolog.Logger
}

func NewLoginHandler(gate *Gate, auth *Authenticator, notices *notification.Center, catalog *notification.Catalog, logger zerolog.Logger) *LoginHandler {
	return &LoginHandler{
		gate:    gate,
		auth:    auth,
		notices: notices,
		catalog: catalog,
		logger:  logger.With().Str("component", "login").Logger(),
	}
}

// RegisterRoutes mounts the login routes on the root router. submit wraps
// only the credential check, e.g. with a rate limiter.
func (h *LoginHandler) RegisterRoutes(e *echo.Echo, submit ...echo.MiddlewareFunc) {
	e.GET("/login", h.ShowLogin)
	e.POST("/login", h.SubmitLogin, submit...)
	e.POST("/logout", h.Logout)
}

// ShowLogin renders the login form. A slot that is already signed in goes
// straight to the landing page unless a gate sent it here.
func (h *LoginHandler) ShowLogin(c echo.Context) error {
	slot := SlotFromContext(c)
	from := c.QueryParam("from")

	var current *session.Session
	if slot != nil {
		s, err := slot.Load(c.Request().Context())
		if err != nil {
			h.logger.Warn().Err(err).Str("slot", slot.ID()).Msg("could not check existing session")
		}
		current = s
	}
	if current != nil && from == "" {
		return c.Redirect(http.StatusSeeOther, DefaultLanding)
	}
	return h.renderForm(c, http.StatusOK, LoginView{From: from, SignedInAs: current})
}

// SubmitLogin runs the credential check and, on success, stores the session
// in a newly issued client slot and follows the recorded location.
func (h *LoginHandler) SubmitLogin(c echo.Context) error {
	slot := SlotFromContext(c)
	if slot == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing client slot")
	}
	username := c.FormValue("username")
	password := c.FormValue("password")
	view := LoginView{From: c.FormValue("from"), Username: username}

	s, err := h.auth.Authenticate(c.Request().Context(), slot.ID(), username, password)
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return h.renderForm(c, http.StatusUnprocessableEntity, view, h.catalog.MustRender(notification.LoginMissingFields, nil))
	case errors.Is(err, ErrInvalidCredentials):
		return h.renderForm(c, http.StatusUnauthorized, view, h.catalog.MustRender(notification.LoginFailed, nil))
	case errors.Is(err, ErrLoginInFlight):
		return h.renderForm(c, http.StatusConflict, view, h.catalog.MustRender(notification.LoginInFlight, nil))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case err != nil:
		return err
	}

	slot, err = h.gate.Rotate(c)
	if err != nil {
		return err
	}
	if err := slot.Save(c.Request().Context(), s); err != nil {
		h.logger.Error().Err(err).Str("slot", slot.ID()).Msg("failed to persist session")
		c.Response().Header().Set("Retry-After", RetryAfterSeconds)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session store unavailable")
	}
	h.notices.Push(slot.ID(), h.catalog.MustRender(notification.LoginSucceeded, nil))
	return c.Redirect(http.StatusSeeOther, SafeRedirect(view.From))
}

// Logout clears the slot's session and returns to the login page.
func (h *LoginHandler) Logout(c echo.Context) error {
	slot := SlotFromContext(c)
	if slot != nil {
		if err := slot.Clear(c.Request().Context()); err != nil {
			return err
		}
		h.notices.Push(slot.ID(), h.catalog.MustRender(notification.LoggedOut, nil))
	}
	return c.Redirect(http.StatusSeeOther, "/login")
}

func (h *LoginHandler) renderForm(c echo.Context, code int, view LoginView, extra ...notification.Notice) error {
	var notices []notification.Notice
	if slot := SlotFromContext(c); slot != nil {
		notices = h.notices.Drain(slot.ID())
	}
	return c.Render(code, "login", render.Page{
		Title:   "Sign in",
		Notices: append(notices, extra...),
		Data:    view,
	})
}
