package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/halikara/tokend/internal/domain"
	"github.com/halikara/tokend/internal/store"
	"github.com/halikara/tokend/pkg/cryptox"
	"github.com/halikara/tokend/pkg/idx"
	"github.com/halikara/tokend/pkg/jwtx"
	"github.com/halikara/tokend/pkg/slogx"
)

var (
	// ErrNoRefreshToken is returned when rotation is attempted without a token.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrInvalidRefresh covers refresh tokens that fail signature, expiry,
	// or type checks. Deliberately vague towards callers.
	ErrInvalidRefresh = errors.New("invalid or expired refresh token")

	// ErrTokenNotRecognized is returned when a structurally valid refresh
	// token has no server-side record. The server never issued it, which
	// means the signing secret may be compromised.
	ErrTokenNotRecognized = errors.New("refresh token not recognized")

	// ErrReuseDetected is returned when an already-rotated refresh token
	// is presented again.
	ErrReuseDetected = errors.New("refresh token reuse detected")
)

// TokenService owns minting, decoding, and rotating token pairs. Refresh
// rotation treats any anomaly as theft and revokes every token the user
// holds.
type TokenService struct {
	Store store.Store

	// Secret signs JWTs; RefreshSalt keys the HMAC under which refresh
	// tokens are stored. They must differ so a database leak does not
	// hand out the signing key.
	Secret      []byte
	RefreshSalt []byte

	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now is injectable for tests. Nil means time.Now.
	Now func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create mints a signed token with the given custom payload plus the
// standard claim set.
func (s *TokenService) Create(payload jwtx.Payload) (*jwtx.Token, error) {
	claims := jwtx.StandardClaims(payload, s.Issuer, s.Audience, s.AccessTTL, s.now())
	return jwtx.CreateToken(claims, s.Secret, jwtx.AlgHS256)
}

// Decode verifies raw and, when expectType is non-empty, requires the
// "type" claim to match. Issuer is checked whenever the service has one
// configured.
func (s *TokenService) Decode(raw, expectType string) (*jwtx.Token, error) {
	tok, err := jwtx.DecodeToken(raw, s.Secret, s.now())
	if err != nil {
		return nil, err
	}

	if s.Issuer != "" {
		if iss, _ := tok.Payload["iss"].(string); iss != s.Issuer {
			return nil, fmt.Errorf("%w: issuer %q", jwtx.ErrInvalidClaim, iss)
		}
	}

	if expectType != "" {
		if typ, _ := tok.Payload["type"].(string); typ != expectType {
			return nil, fmt.Errorf("%w: token type %q", jwtx.ErrInvalidClaim, typ)
		}
	}

	return tok, nil
}

// mint creates one token of the given type with a fresh jti.
func (s *TokenService) mint(username, tokenType string, ttl time.Duration) (*jwtx.Token, string, error) {
	jti := idx.New().String()
	claims := jwtx.StandardClaims(jwtx.Payload{
		"sub":      username,
		"username": username,
		"type":     tokenType,
		"jti":      jti,
	}, s.Issuer, s.Audience, ttl, s.now())

	tok, err := jwtx.CreateToken(claims, s.Secret, jwtx.AlgHS256)
	if err != nil {
		return nil, "", err
	}
	return tok, jti, nil
}

// CreateTokenPair mints an access/refresh pair for username and persists
// the refresh token's record (hash only, never the raw token).
func (s *TokenService) CreateTokenPair(ctx context.Context, username string) (*domain.TokenPair, error) {
	now := s.now()

	access, _, err := s.mint(username, domain.TokenTypeAccess, s.AccessTTL)
	if err != nil {
		return nil, err
	}

	refresh, refreshJTI, err := s.mint(username, domain.TokenTypeRefresh, s.RefreshTTL)
	if err != nil {
		return nil, err
	}

	rec := domain.RefreshTokenRecord{
		JTI:       refreshJTI,
		Username:  username,
		TokenHash: cryptox.HashToken(refresh.Raw, s.RefreshSalt),
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(s.RefreshTTL).Unix(),
	}
	if err := s.Store.RefreshTokens().Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  access.Raw,
		RefreshToken: refresh.Raw,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.AccessTTL / time.Second),
		RefreshJTI:   refreshJTI,
	}, nil
}

// RotateRefresh validates the presented refresh token, revokes it, and
// mints a new pair. Anomalies trigger mass revocation:
//
//   - no server-side record: the token was forged or the store lost it;
//     either way every token for the user is revoked
//   - record revoked or hash mismatch: the token was already rotated, so
//     someone is replaying it; every token for the user is revoked
//
// Under concurrent presentations of the same token exactly one caller
// receives a new pair; the rest observe reuse.
func (s *TokenService) RotateRefresh(ctx context.Context, rawRefresh string) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	if rawRefresh == "" {
		return nil, ErrNoRefreshToken
	}

	// 1. Signature, expiry, and type checks before any store access.
	tok, err := s.Decode(rawRefresh, domain.TokenTypeRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefresh, err)
	}

	jti, _ := tok.Payload["jti"].(string)
	username, _ := tok.Payload["username"].(string)
	if jti == "" || username == "" {
		return nil, fmt.Errorf("%w: missing jti or username", ErrInvalidRefresh)
	}

	// 2. The record must exist. A signed token we have no record of means
	// trouble beyond this one session.
	rec, err := s.Store.RefreshTokens().GetByJTI(ctx, jti)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Warn("refresh token has no record, revoking all user tokens",
				slog.String("username", username), slog.String("jti", jti))
			if revokeErr := s.Store.RefreshTokens().RevokeAllForUser(ctx, username); revokeErr != nil {
				return nil, fmt.Errorf("revoke all for user: %w", revokeErr)
			}
			return nil, ErrTokenNotRecognized
		}
		return nil, err
	}

	// 3. Reuse check. MarkRotated is the atomic gate: it succeeds only for
	// a live record with a matching hash, exactly once. A losing caller is
	// either racing a legitimate rotation or replaying a spent token; both
	// end the user's sessions.
	tokenHash := cryptox.HashToken(rawRefresh, s.RefreshSalt)
	if rec.Revoked || subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(tokenHash)) != 1 {
		return nil, s.flagReuse(ctx, username, jti)
	}

	won, err := s.Store.RefreshTokens().MarkRotated(ctx, jti, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("mark rotated: %w", err)
	}
	if !won {
		return nil, s.flagReuse(ctx, username, jti)
	}

	// 4. The old binding is dead; drop its CSRF mapping. Best effort.
	if err := s.Store.CsrfMappings().Delete(ctx, jti); err != nil {
		l.Warn("failed to delete csrf mapping", slog.String("jti", jti), slog.Any("error", err))
	}

	// 5. Mint the replacement pair.
	pair, err := s.CreateTokenPair(ctx, username)
	if err != nil {
		return nil, err
	}

	l.Info("refresh token rotated",
		slog.String("username", username),
		slog.String("old_jti", jti),
		slog.String("new_jti", pair.RefreshJTI))
	return pair, nil
}

func (s *TokenService) flagReuse(ctx context.Context, username, jti string) error {
	slogx.FromContext(ctx).Warn("refresh token reuse detected, revoking all user tokens",
		slog.String("username", username), slog.String("jti", jti))
	if err := s.Store.RefreshTokens().RevokeAllForUser(ctx, username); err != nil {
		return fmt.Errorf("revoke all for user: %w", err)
	}
	return ErrReuseDetected
}

// BindCSRF generates a CSRF token and binds it to the refresh token's jti,
// replacing any previous binding.
func (s *TokenService) BindCSRF(ctx context.Context, jti string) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	if err := s.Store.CsrfMappings().Put(ctx, jti, token); err != nil {
		return "", err
	}
	return token, nil
}

// VerifyCSRF reports whether presented matches the CSRF token bound to
// jti. Unknown jtis simply fail.
func (s *TokenService) VerifyCSRF(ctx context.Context, jti, presented string) (bool, error) {
	stored, err := s.Store.CsrfMappings().Get(ctx, jti)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1, nil
}

// Logout revokes the refresh token behind rawRefresh and drops its CSRF
// binding. Invalid tokens are ignored; logout never fails the client for
// presenting garbage.
func (s *TokenService) Logout(ctx context.Context, rawRefresh string) error {
	tok, err := s.Decode(rawRefresh, domain.TokenTypeRefresh)
	if err != nil {
		return nil
	}
	jti, _ := tok.Payload["jti"].(string)
	if jti == "" {
		return nil
	}

	if err := s.Store.RefreshTokens().Revoke(ctx, jti); err != nil {
		return err
	}
	return s.Store.CsrfMappings().Delete(ctx, jti)
}
