// Package store defines the persistence contract for the token engine.
// Concrete drivers live under drivers/ (sqlite, redis) and memory/.
package store

import (
	"context"
	"errors"

	"github.com/halikara/tokend/internal/domain"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists indicates a uniqueness violation on insert.
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store aggregates the repositories the services operate on.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	CsrfMappings() CsrfMappings

	// ApplyMigrations brings the backing schema up to date. Drivers
	// without a schema implement it as a no-op.
	ApplyMigrations() error

	// WithTx runs fn inside a transaction where the driver supports one.
	// Drivers without transactional semantics run fn against the store
	// itself; rotation stays atomic either way via MarkRotated.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// Tx is a Store scoped to one transaction.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Users stores account credentials.
type Users interface {
	Create(ctx context.Context, u domain.User) error
	GetByUsername(ctx context.Context, username string) (domain.User, error)
}

// RefreshTokens stores the server-side refresh token records.
type RefreshTokens interface {
	Insert(ctx context.Context, rec domain.RefreshTokenRecord) error
	GetByJTI(ctx context.Context, jti string) (domain.RefreshTokenRecord, error)

	// MarkRotated atomically revokes the record identified by jti, but
	// only if it is currently unrevoked and its stored hash equals
	// tokenHash. It reports whether this caller won the rotation; under
	// concurrent presentations of the same token exactly one call
	// returns true.
	MarkRotated(ctx context.Context, jti, tokenHash string) (bool, error)

	Revoke(ctx context.Context, jti string) error
	RevokeAllForUser(ctx context.Context, username string) error
}

// CsrfMappings binds a CSRF token to a refresh token's jti. Put replaces
// any previous binding for the jti wholesale.
type CsrfMappings interface {
	Put(ctx context.Context, jti, csrfToken string) error
	Get(ctx context.Context, jti string) (string, error)
	Delete(ctx context.Context, jti string) error

	// PurgeOrphaned removes bindings whose refresh record is revoked or
	// expired. Housekeeping only; correctness never depends on it.
	PurgeOrphaned(ctx context.Context) (int64, error)
}
