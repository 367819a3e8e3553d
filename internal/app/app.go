package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/halikara/tokend/internal/httpapi"
	"github.com/halikara/tokend/internal/service"
	"github.com/halikara/tokend/internal/store"
	"github.com/halikara/tokend/internal/store/drivers/redis"
	"github.com/halikara/tokend/internal/store/drivers/sqlite"
	"github.com/halikara/tokend/internal/store/memory"
	"github.com/halikara/tokend/pkg/cookiex"
	"github.com/halikara/tokend/pkg/httpx"
	"github.com/halikara/tokend/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application wires the token engine together: store, services,
// housekeeping, and the HTTP server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	tokenService        *service.TokenService
	userService         *service.UserService
	housekeepingService *service.HousekeepingService
	limiter             *httpx.LoginLimiter

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tokend",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("tokend starting", "port", app.cfg.Port, "version", BuildVersion, "store", app.cfg.StoreDriver)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully drains requests, stops housekeeping, and closes the
// store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down tokend...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("tokend stopped")
	return nil
}

func (app *Application) initStore() error {
	switch app.cfg.StoreDriver {
	case "sqlite":
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
		db, err := sqlite.NewStore(dsn)
		if err != nil {
			return fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		app.db = db
	case "redis":
		app.db = redis.NewStore(app.cfg.RedisAddr, "", app.cfg.RedisDB)
	case "memory":
		app.db = memory.NewStore()
	default:
		return fmt.Errorf("unknown store driver %q", app.cfg.StoreDriver)
	}

	if err := app.db.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		Store:       app.db,
		Secret:      []byte(app.cfg.Secret),
		RefreshSalt: []byte(app.cfg.RefreshSalt),
		Issuer:      app.cfg.Issuer,
		Audience:    app.cfg.Audience,
		AccessTTL:   app.cfg.AccessTTL,
		RefreshTTL:  app.cfg.RefreshTTL,
	}
	app.userService = &service.UserService{Store: app.db}
	app.limiter = httpx.NewLoginLimiter(app.cfg.LoginPerMinute, app.cfg.LoginBurst)
	app.housekeepingService = service.NewHousekeepingService(
		app.db, app.limiter, app.logger, app.cfg.HousekeepingInterval)
}

func (app *Application) initHTTP() {
	app.router = httpapi.NewRouter(
		app.tokenService,
		app.userService,
		app.db,
		&cookiex.Sessions{
			Secret:     []byte(app.cfg.SessionSecret),
			CookieName: app.cfg.SessionCookie,
			TTL:        app.cfg.SessionTTL,
		},
		&cookiex.CSRF{
			CookieName: app.cfg.CSRFCookie,
			HeaderName: app.cfg.CSRFHeader,
			TTL:        app.cfg.SessionTTL,
		},
		app.limiter,
		app.logger,
	)

	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: app.router,
	}
}
