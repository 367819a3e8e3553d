package sqlite

import (
	"context"

	"github.com/halikara/tokend/internal/domain"
)

type refreshTokensRepo struct {
	q querier
}

func (r *refreshTokensRepo) Insert(ctx context.Context, rec domain.RefreshTokenRecord) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO refresh_tokens (jti, username, token_hash, created_at, expires_at, revoked)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.JTI, rec.Username, rec.TokenHash, rec.CreatedAt, rec.ExpiresAt, boolToInt(rec.Revoked),
	)
	return mapConflict(err)
}

func (r *refreshTokensRepo) GetByJTI(ctx context.Context, jti string) (domain.RefreshTokenRecord, error) {
	var (
		rec     domain.RefreshTokenRecord
		revoked int
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT jti, username, token_hash, created_at, expires_at, revoked
		 FROM refresh_tokens WHERE jti = ?`, jti,
	).Scan(&rec.JTI, &rec.Username, &rec.TokenHash, &rec.CreatedAt, &rec.ExpiresAt, &revoked)
	if err != nil {
		return domain.RefreshTokenRecord{}, mapNotFound(err)
	}
	rec.Revoked = revoked != 0
	return rec, nil
}

// MarkRotated revokes the record only if it is still live and the stored
// hash matches. The conditional UPDATE makes concurrent rotations of the
// same token resolve to a single winner inside SQLite.
func (r *refreshTokensRepo) MarkRotated(ctx context.Context, jti, tokenHash string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1
		 WHERE jti = ? AND token_hash = ? AND revoked = 0`,
		jti, tokenHash,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *refreshTokensRepo) Revoke(ctx context.Context, jti string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE jti = ?`, jti)
	return err
}

func (r *refreshTokensRepo) RevokeAllForUser(ctx context.Context, username string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE username = ?`, username)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
