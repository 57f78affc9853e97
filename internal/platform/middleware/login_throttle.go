package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// LoginThrottleConfig bounds sign-in attempts.
type LoginThrottleConfig struct {
	// Every is how often an exhausted bucket regains one attempt.
	Every time.Duration
	// Burst is the number of attempts one address gets for one username.
	Burst int
	// AddressBurst caps attempts from one address across all usernames.
	AddressBurst int
	// IdleTimeout evicts buckets that have not been used for this long.
	IdleTimeout time.Duration
}

// DefaultLoginThrottleConfig allows ten attempts per account and thirty per
// address, then one every two seconds.
func DefaultLoginThrottleConfig() LoginThrottleConfig {
	return LoginThrottleConfig{
		Every:        2 * time.Second,
		Burst:        10,
		AddressBurst: 30,
		IdleTimeout:  10 * time.Minute,
	}
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginThrottle guards the sign-in form against password guessing. Buckets
// are keyed by client address and by address plus submitted username; a
// successful sign-in resets the account bucket.
type LoginThrottle struct {
	cfg LoginThrottleConfig
	now func() time.Time

	mu        sync.Mutex
	entries   map[string]*throttleEntry
	lastSweep time.Time
}

func NewLoginThrottle(cfg LoginThrottleConfig) *LoginThrottle {
	return &LoginThrottle{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*throttleEntry),
	}
}

// Middleware wraps the credential check.
func (t *LoginThrottle) Middleware() echo.MiddlewareFunc {
	limit := strconv.Itoa(t.cfg.Burst)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			addrKey := "addr:" + ip
			accountKey := "account:" + ip + "|" + normalizeUsername(c.FormValue("username"))

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			if wait, ok := t.reserve(addrKey, accountKey); !ok {
				h.Set("Retry-After", strconv.Itoa(retrySeconds(wait)))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many sign-in attempts, try again shortly")
			}

			err := next(c)
			if err == nil && c.Response().Status < http.StatusBadRequest {
				t.forget(accountKey)
			}
			return err
		}
	}
}

// reserve takes one attempt from both buckets, or none when either is
// exhausted, and reports how long to wait in that case.
func (t *LoginThrottle) reserve(addrKey, accountKey string) (time.Duration, bool) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweep(now)

	addr := t.limiter(addrKey, t.cfg.AddressBurst, now).ReserveN(now, 1)
	if d := addr.DelayFrom(now); !addr.OK() || d > 0 {
		addr.CancelAt(now)
		return d, false
	}
	account := t.limiter(accountKey, t.cfg.Burst, now).ReserveN(now, 1)
	if d := account.DelayFrom(now); !account.OK() || d > 0 {
		account.CancelAt(now)
		addr.CancelAt(now)
		return d, false
	}
	return 0, true
}

// limiter returns the bucket for key, creating it full. Callers hold mu.
func (t *LoginThrottle) limiter(key string, burst int, now time.Time) *rate.Limiter {
	e, ok := t.entries[key]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(rate.Every(t.cfg.Every), burst)}
		t.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// sweep drops idle buckets at most once per IdleTimeout. Callers hold mu.
func (t *LoginThrottle) sweep(now time.Time) {
	if t.cfg.IdleTimeout <= 0 || now.Sub(t.lastSweep) < t.cfg.IdleTimeout {
		return
	}
	for k, e := range t.entries {
		if now.Sub(e.lastSeen) >= t.cfg.IdleTimeout {
			delete(t.entries, k)
		}
	}
	t.lastSweep = now
}

func (t *LoginThrottle) forget(key string) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

func normalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func retrySeconds(d time.Duration) int {
	if s := int(math.Ceil(d.Seconds())); s > 1 {
		return s
	}
	return 1
}
