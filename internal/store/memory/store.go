// Package memory implements the store contract with mutex-guarded maps.
// It backs tests and single-process deployments that can afford to lose
// sessions on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/halikara/tokend/internal/domain"
	"github.com/halikara/tokend/internal/store"
)

type Store struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	refresh map[string]domain.RefreshTokenRecord
	csrf    map[string]string
	nowFunc func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:   make(map[string]domain.User),
		refresh: make(map[string]domain.RefreshTokenRecord),
		csrf:    make(map[string]string),
		nowFunc: time.Now,
	}
}

func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) ApplyMigrations() error         { return nil }

// WithTx runs fn against the store itself; single operations are already
// atomic under the mutex.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return fn(noopTx{s})
}

type noopTx struct{ *Store }

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }

func (s *Store) Users() store.Users                 { return (*usersRepo)(s) }
func (s *Store) RefreshTokens() store.RefreshTokens { return (*refreshTokensRepo)(s) }
func (s *Store) CsrfMappings() store.CsrfMappings   { return (*csrfMappingsRepo)(s) }

type usersRepo Store

func (r *usersRepo) Create(ctx context.Context, u domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.Username]; ok {
		return store.ErrAlreadyExists
	}
	r.users[u.Username] = u
	return nil
}

func (r *usersRepo) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[username]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return u, nil
}

type refreshTokensRepo Store

func (r *refreshTokensRepo) Insert(ctx context.Context, rec domain.RefreshTokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.refresh[rec.JTI]; ok {
		return store.ErrAlreadyExists
	}
	r.refresh[rec.JTI] = rec
	return nil
}

func (r *refreshTokensRepo) GetByJTI(ctx context.Context, jti string) (domain.RefreshTokenRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.refresh[jti]
	if !ok {
		return domain.RefreshTokenRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (r *refreshTokensRepo) MarkRotated(ctx context.Context, jti, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.refresh[jti]
	if !ok || rec.Revoked || rec.TokenHash != tokenHash {
		return false, nil
	}
	rec.Revoked = true
	r.refresh[jti] = rec
	return true, nil
}

func (r *refreshTokensRepo) Revoke(ctx context.Context, jti string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.refresh[jti]; ok {
		rec.Revoked = true
		r.refresh[jti] = rec
	}
	return nil
}

func (r *refreshTokensRepo) RevokeAllForUser(ctx context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for jti, rec := range r.refresh {
		if rec.Username == username {
			rec.Revoked = true
			r.refresh[jti] = rec
		}
	}
	return nil
}

type csrfMappingsRepo Store

func (r *csrfMappingsRepo) Put(ctx context.Context, jti, csrfToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.csrf[jti] = csrfToken
	return nil
}

func (r *csrfMappingsRepo) Get(ctx context.Context, jti string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	token, ok := r.csrf[jti]
	if !ok {
		return "", store.ErrNotFound
	}
	return token, nil
}

func (r *csrfMappingsRepo) Delete(ctx context.Context, jti string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.csrf, jti)
	return nil
}

func (r *csrfMappingsRepo) PurgeOrphaned(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc().Unix()
	var purged int64
	for jti := range r.csrf {
		rec, ok := r.refresh[jti]
		if !ok || rec.Revoked || rec.ExpiresAt < now {
			delete(r.csrf, jti)
			purged++
		}
	}
	return purged, nil
}
