// Package httpapi exposes the token engine over HTTP: registration,
// login, refresh rotation, logout, and a sample protected resource. Every
// response carries the defensive header set and the refresh flow is
// guarded by fingerprint-bound session cookies plus double-submit CSRF.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/halikara/tokend/internal/service"
	"github.com/halikara/tokend/internal/store"
	"github.com/halikara/tokend/pkg/cookiex"
	"github.com/halikara/tokend/pkg/httpx"
)

// Router holds shared dependencies for the HTTP handlers.
type Router struct {
	Tokens   *service.TokenService
	Users    *service.UserService
	Store    store.Store
	Sessions *cookiex.Sessions
	CSRF     *cookiex.CSRF
	Limiter  *httpx.LoginLimiter
	Logger   *slog.Logger

	startTime time.Time
	handler   http.Handler
}

func NewRouter(
	tokens *service.TokenService,
	users *service.UserService,
	st store.Store,
	sessions *cookiex.Sessions,
	csrf *cookiex.CSRF,
	limiter *httpx.LoginLimiter,
	logger *slog.Logger,
) *Router {
	rt := &Router{
		Tokens:    tokens,
		Users:     users,
		Store:     st,
		Sessions:  sessions,
		CSRF:      csrf,
		Limiter:   limiter,
		Logger:    logger,
		startTime: time.Now(),
	}

	m := mux.NewRouter()
	m.HandleFunc("/v1/auth/register", rt.handleRegister).Methods(http.MethodPost)
	m.HandleFunc("/v1/auth/login", rt.handleLogin).Methods(http.MethodPost)
	m.HandleFunc("/v1/auth/refresh", rt.handleRefresh).Methods(http.MethodPost)
	m.HandleFunc("/v1/auth/logout", rt.handleLogout).Methods(http.MethodPost)
	m.HandleFunc("/v1/profile", rt.handleProfile).Methods(http.MethodGet)
	m.HandleFunc("/livez", rt.handleLivez).Methods(http.MethodGet)
	m.HandleFunc("/readyz", rt.handleReadyz).Methods(http.MethodGet)

	rt.handler = httpx.Chain(m,
		httpx.Logging(logger),
		httpx.SecurityHeaders(),
	)
	return rt
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.handler.ServeHTTP(w, r)
}

func (rt *Router) handleLivez(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(rt.startTime).String(),
	})
}

func (rt *Router) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := rt.Store.Ping(r.Context()); err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
