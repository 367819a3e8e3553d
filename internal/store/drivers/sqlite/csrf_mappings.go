package sqlite

import (
	"context"
	"time"
)

type csrfMappingsRepo struct {
	q querier
}

func (r *csrfMappingsRepo) Put(ctx context.Context, jti, csrfToken string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO csrf_map (jti, csrf_token) VALUES (?, ?)
		 ON CONFLICT (jti) DO UPDATE SET csrf_token = excluded.csrf_token`,
		jti, csrfToken,
	)
	return err
}

func (r *csrfMappingsRepo) Get(ctx context.Context, jti string) (string, error) {
	var token string
	err := r.q.QueryRowContext(ctx,
		`SELECT csrf_token FROM csrf_map WHERE jti = ?`, jti,
	).Scan(&token)
	if err != nil {
		return "", mapNotFound(err)
	}
	return token, nil
}

func (r *csrfMappingsRepo) Delete(ctx context.Context, jti string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM csrf_map WHERE jti = ?`, jti)
	return err
}

// PurgeOrphaned drops CSRF bindings whose refresh record is revoked or
// already expired. The refresh records themselves are left alone.
func (r *csrfMappingsRepo) PurgeOrphaned(ctx context.Context) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM csrf_map WHERE jti IN (
		    SELECT jti FROM refresh_tokens WHERE revoked = 1 OR expires_at < ?
		 )`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
