package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/halikara/tokend/internal/domain"
	"github.com/halikara/tokend/internal/service"
	"github.com/halikara/tokend/internal/store"
	"github.com/halikara/tokend/pkg/cookiex"
	"github.com/halikara/tokend/pkg/httpx"
	"github.com/halikara/tokend/pkg/slogx"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := rt.Users.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			httpx.WriteError(w, http.StatusConflict, "username already taken")
		case errors.Is(err, service.ErrInvalidUsername):
			httpx.WriteError(w, http.StatusBadRequest, "username and password are required")
		default:
			slogx.FromContext(r.Context()).Error("register failed", "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"username": u.Username})
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := slogx.FromContext(ctx)

	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// One bucket per username+address so an attacker can't lock a user
	// out from a single IP nor spray one IP across many accounts.
	limiterKey := req.Username + "|" + remoteIP(r)
	if !rt.Limiter.Allow(limiterKey) {
		httpx.WriteError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	u, err := rt.Users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		l.Error("login failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	pair, err := rt.Tokens.CreateTokenPair(ctx, u.Username)
	if err != nil {
		l.Error("token pair issuance failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	csrf, err := rt.Tokens.BindCSRF(ctx, pair.RefreshJTI)
	if err != nil {
		l.Error("csrf binding failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	rt.CSRF.SetCookieValue(w, csrf)

	if _, err := rt.Sessions.Create(w, r); err != nil {
		l.Error("session cookie issuance failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

func (rt *Router) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := slogx.FromContext(ctx)

	// Double-submit check comes first; it costs nothing and rejecting
	// here avoids burning a rotation on a cross-site request.
	if !rt.CSRF.VerifyRequest(r) {
		httpx.WriteError(w, http.StatusForbidden, "csrf verification failed")
		return
	}

	if !rt.Sessions.Verify(r) {
		httpx.WriteError(w, http.StatusForbidden, "invalid session")
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	// The presented CSRF token must also be the one bound to this exact
	// refresh token, not just a matching cookie/header pair. An absent
	// binding falls through: rotation is where replayed tokens are judged
	// and judged loudly.
	if tok, err := rt.Tokens.Decode(req.RefreshToken, domain.TokenTypeRefresh); err == nil {
		jti, _ := tok.Payload["jti"].(string)
		stored, err := rt.Store.CsrfMappings().Get(ctx, jti)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			l.Error("csrf lookup failed", "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		case !cookiex.VerifyTokens(stored, rt.CSRF.HeaderToken(r)):
			httpx.WriteError(w, http.StatusForbidden, "csrf verification failed")
			return
		}
	}

	pair, err := rt.Tokens.RotateRefresh(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoRefreshToken),
			errors.Is(err, service.ErrInvalidRefresh):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		case errors.Is(err, service.ErrTokenNotRecognized),
			errors.Is(err, service.ErrReuseDetected):
			// The user's sessions were just mass-revoked; say as little
			// as possible.
			httpx.WriteError(w, http.StatusUnauthorized, "refresh token rejected")
		default:
			l.Error("refresh rotation failed", "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	csrf, err := rt.Tokens.BindCSRF(ctx, pair.RefreshJTI)
	if err != nil {
		l.Error("csrf rebinding failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	rt.CSRF.SetCookieValue(w, csrf)

	if _, err := rt.Sessions.Create(w, r); err != nil {
		l.Error("session cookie rotation failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = decodeJSON(w, r, &req)

	if err := rt.Tokens.Logout(r.Context(), req.RefreshToken); err != nil {
		slogx.FromContext(r.Context()).Error("logout failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	rt.Sessions.Expire(w)
	rt.CSRF.Expire(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (rt *Router) handleProfile(w http.ResponseWriter, r *http.Request) {
	if !rt.Sessions.Verify(r) {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid session")
		return
	}

	raw := bearerToken(r)
	if raw == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "missing access token")
		return
	}

	tok, err := rt.Tokens.Decode(raw, domain.TokenTypeAccess)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid access token")
		return
	}

	username, _ := tok.Payload["username"].(string)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"username": username,
		"issuer":   tok.Payload["iss"],
		"expires":  tok.Payload["exp"],
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
