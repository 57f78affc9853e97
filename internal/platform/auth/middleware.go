package auth

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ins/ins/internal/platform/session"
)

const slotContextKey = "ins.slot"

// slotCookieMaxAge keeps the slot cookie across browser restarts, the way a
// browser keeps local storage.
const slotCookieMaxAge = 400 * 24 * time.Hour

// RetryAfterSeconds is advertised while the gate is unresolved.
const RetryAfterSeconds = "5"

// Gate binds client slots to requests and guards routes by role.
type Gate struct {
	sessions     *session.Store
	tokens       *session.Tokens
	secureCookie bool
	logger       zerolog.Logger
}

func NewGate(sessions *session.Store, tokens *session.Tokens, secureCookie bool, logger zerolog.Logger) *Gate {
	return &Gate{
		sessions:     sessions,
		tokens:       tokens,
		secureCookie: secureCookie,
		logger:       logger.With().Str("component", "gate").Logger(),
	}
}

// Attach resolves the client slot from the slot cookie, issuing a fresh slot
// when the cookie is missing or its token does not verify, and stores it on
// the echo context for SlotFromContext.
func (g *Gate) Attach() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if SlotSkipper(c) {
				return next(c)
			}

			var slotID string
			if ck, err := c.Cookie(session.CookieName); err == nil {
				if id, err := g.tokens.Parse(ck.Value); err == nil {
					slotID = id
				} else {
					g.logger.Debug().Str("remote_ip", c.RealIP()).Msg("ignoring invalid slot token")
				}
			}
			if slotID == "" {
				slotID = session.NewSlotID()
				if err := g.setSlotCookie(c, slotID); err != nil {
					return err
				}
			}

			c.Set(slotContextKey, g.sessions.Slot(slotID))
			return next(c)
		}
	}
}

// Rotate moves the request to a freshly issued slot and returns it. The
// previous slot is cleared, so a cookie obtained before sign-in never
// carries the signed-in session.
func (g *Gate) Rotate(c echo.Context) (*session.Slot, error) {
	prev := SlotFromContext(c)
	id := session.NewSlotID()
	if err := g.setSlotCookie(c, id); err != nil {
		return nil, err
	}
	next := g.sessions.Slot(id)
	c.Set(slotContextKey, next)

	if prev != nil {
		if err := prev.Clear(c.Request().Context()); err != nil {
			g.logger.Warn().Err(err).Str("slot", prev.ID()).Msg("failed to clear rotated slot")
		}
	}
	return next, nil
}

func (g *Gate) setSlotCookie(c echo.Context, slotID string) error {
	token, err := g.tokens.Issue(slotID)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(slotCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   g.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// SlotFromContext returns the slot attached by Gate.Attach, or nil.
func SlotFromContext(c echo.Context) *session.Slot {
	sl, _ := c.Get(slotContextKey).(*session.Slot)
	return sl
}

// Resolve loads the slot's session and decides the gate state for required.
func (g *Gate) Resolve(c echo.Context, required session.Role) Decision {
	sl := SlotFromContext(c)
	if sl == nil {
		return Decision{State: GateUnauthorized}
	}
	s, err := sl.Load(c.Request().Context())
	if err != nil {
		g.logger.Error().Err(err).Str("slot", sl.ID()).Msg("session store unavailable")
	}
	return Decide(s, err, required)
}

// RequirePage guards browser pages. Unauthorized requests are redirected to
// the login page with the original location recorded; an unresolved gate
// answers 503 so the error handler can show the neutral placeholder.
func (g *Gate) RequirePage(role session.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := g.Resolve(c, role)
			switch d.State {
			case GateAuthorized:
				g.admit(c, d.Session)
				return next(c)
			case GateUnauthorized:
				from := ""
				if r := c.Request(); r.Method == http.MethodGet || r.Method == http.MethodHead {
					from = r.URL.RequestURI()
				}
				return c.Redirect(http.StatusSeeOther, LoginRedirect(from))
			default:
				c.Response().Header().Set("Retry-After", RetryAfterSeconds)
				return echo.NewHTTPError(http.StatusServiceUnavailable, "session store unavailable")
			}
		}
	}
}

// RequireAPI guards JSON endpoints: 401 without a session, 403 for the
// wrong role, 503 while unresolved.
func (g *Gate) RequireAPI(role session.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := g.Resolve(c, role)
			switch {
			case d.State == GateAuthorized:
				g.admit(c, d.Session)
				return next(c)
			case d.State == GateUnauthorized && d.Forbidden:
				return echo.NewHTTPError(http.StatusForbidden, "required role: "+string(role))
			case d.State == GateUnauthorized:
				return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
			default:
				c.Response().Header().Set("Retry-After", RetryAfterSeconds)
				return echo.NewHTTPError(http.StatusServiceUnavailable, "session store unavailable")
			}
		}
	}
}

func (g *Gate) admit(c echo.Context, s *session.Session) {
	c.Set("session_role", string(s.Role))
	c.SetRequest(c.Request().WithContext(session.WithContext(c.Request().Context(), s)))
}

// LoginRedirect builds the login URL that records from as the return
// location.
func LoginRedirect(from string) string {
	if from == "" {
		return "/login"
	}
	return "/login?from=" + url.QueryEscape(from)
}

// DefaultLanding is where a successful login lands without a recorded
// location.
const DefaultLanding = "/admin"

// SafeRedirect returns from when it is a same-site absolute path, and
// DefaultLanding otherwise.
func SafeRedirect(from string) string {
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return DefaultLanding
	}
	if strings.HasPrefix(from, "/login") {
		return DefaultLanding
	}
	u, err := url.Parse(from)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return DefaultLanding
	}
	return from
}
