// Package app assembles the admin server: backends, fixtures, middleware and
// routes.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/ins/ins/internal/config"
	"github.com/ins/ins/internal/domain/documents"
	"github.com/ins/ins/internal/domain/patient"
	"github.com/ins/ins/internal/platform/auth"
	"github.com/ins/ins/internal/platform/blobstore"
	"github.com/ins/ins/internal/platform/kv"
	"github.com/ins/ins/internal/platform/middleware"
	"github.com/ins/ins/internal/platform/notification"
	"github.com/ins/ins/internal/platform/render"
	"github.com/ins/ins/internal/platform/sandbox"
	"github.com/ins/ins/internal/platform/session"
)

const (
	// Version is reported by the health check.
	Version = "0.1.0"

	requestTimeout = 30 * time.Second
	staticMaxAge   = time.Hour
)

// App is an assembled server ready to start.
type App struct {
	Echo   *echo.Echo
	cfg    *config.Config
	logger zerolog.Logger
	close  []func() error
}

// Option adjusts assembly, mostly for tests.
type Option func(*options)

type options struct {
	bcryptCost int
	backend    kv.Store
}

// WithBcryptCost hashes fixture passwords at cost instead of the default.
func WithBcryptCost(cost int) Option {
	return func(o *options) { o.bcryptCost = cost }
}

// WithBackend uses store for session slots instead of the configured backend.
func WithBackend(store kv.Store) Option {
	return func(o *options) { o.backend = store }
}

// New opens the session backend, seeds the fixtures and mounts every route.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*App, error) {
	o := options{bcryptCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}

	backend := o.backend
	if backend == nil {
		var err error
		backend, err = a.openBackend(ctx)
		if err != nil {
			return nil, err
		}
	}

	// Fixtures
	fx, err := sandbox.Load(cfg.FixturesFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	dir, err := auth.NewDirectory(o.bcryptCost)
	if err != nil {
		a.Close()
		return nil, err
	}
	blobs := blobstore.NewMemoryStore()
	patients := patient.NewService(patient.NewMemoryRepository(), blobs, logger)
	docs := documents.NewService(fx.Catalog())
	if _, err := sandbox.NewSeeder(fx, logger).Seed(ctx, dir, patients); err != nil {
		a.Close()
		return nil, err
	}

	renderer, err := render.New()
	if err != nil {
		a.Close()
		return nil, err
	}

	sessions := session.NewStore(backend, logger)
	tokens := session.NewTokens([]byte(cfg.SessionSigningKey))
	gate := auth.NewGate(sessions, tokens, cfg.CookieSecure, logger)
	notices := notification.NewCenter()
	catalog := notification.NewCatalog()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.HTTPErrorHandler = errorHandler(logger)

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadBodyLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost},
			AllowHeaders:     []string{echo.HeaderContentType, middleware.RequestIDHeader},
			AllowCredentials: true,
		}))
	}
	e.Use(gate.Attach())
	e.Use(middleware.Audit(logger))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": Version,
		})
	})

	static := e.Group("/static", middleware.StaticCache(staticMaxAge))
	static.StaticFS("/", render.StaticFS())

	// Login
	login := auth.NewLoginHandler(gate, auth.NewAuthenticator(dir, cfg.LoginLatency, logger), notices, catalog, logger)
	login.RegisterRoutes(e, middleware.NewLoginThrottle(middleware.DefaultLoginThrottleConfig()).Middleware())

	// Admin pages
	admin := e.Group("/admin", gate.RequirePage(session.RoleAdmin))
	admin.GET("", toPatients)
	patient.NewHandler(patients, docs, notices, catalog, logger).RegisterRoutes(admin.Group("/patients"))
	blobstore.NewHandler(blobs).RegisterRoutes(admin)
	admin.Any("/*", toPatients)

	// JSON API
	api := e.Group("/api/v1", gate.RequireAPI(session.RoleAdmin))
	api.GET("/session", currentSession)
	documents.NewHandler(docs).RegisterRoutes(api)
	patient.NewAPIHandler(patients).RegisterRoutes(api)
	api.Any("/*", func(c echo.Context) error { return echo.ErrNotFound })

	// Everything else starts at the login page.
	e.Any("/*", func(c echo.Context) error {
		return c.Redirect(http.StatusSeeOther, "/login")
	})

	a.Echo = e
	return a, nil
}

func toPatients(c echo.Context) error {
	return c.Redirect(http.StatusSeeOther, "/admin/patients")
}

func (a *App) openBackend(ctx context.Context) (kv.Store, error) {
	switch a.cfg.SessionBackend {
	case config.BackendFile:
		store, err := kv.OpenFileStore(a.cfg.SessionFile)
		if err != nil {
			return nil, err
		}
		a.logger.Info().Str("path", a.cfg.SessionFile).Msg("session slots stored on disk")
		return store, nil
	case config.BackendRedis:
		client, err := kv.DialRedis(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.close = append(a.close, client.Close)
		a.logger.Info().Msg("connected to redis")
		return kv.NewRedisStore(client), nil
	case config.BackendMemory, "":
		return kv.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("app: unknown session backend %q", a.cfg.SessionBackend)
	}
}

// Start serves on the configured port until Shutdown.
func (a *App) Start() error {
	addr := ":" + a.cfg.Port
	a.logger.Info().Str("addr", addr).Str("env", a.cfg.Env).Msg("starting INS admin server")
	if err := a.Echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases the session backend.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	a.Close()
	return err
}

// Close releases backend connections.
func (a *App) Close() {
	for _, fn := range a.close {
		if err := fn(); err != nil {
			a.logger.Warn().Err(err).Msg("close backend")
		}
	}
	a.close = nil
}
