// Package redis implements the store contract on Redis. Refresh token
// records live in hashes, a per-user set indexes them for mass revocation,
// and rotation runs as a Lua script so concurrent presentations of the
// same token resolve to a single winner server-side.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/halikara/tokend/internal/domain"
	"github.com/halikara/tokend/internal/store"
)

const (
	refreshPrefix  = "refresh:"      // hash per refresh token record
	userSetPrefix  = "user_refresh:" // set of jtis per username
	csrfPrefix     = "csrf:"         // string per jti
	userPrefix     = "user:"         // hash per user account
	usernamesIndex = "usernames"     // set of all registered usernames
)

// rotateScript revokes the record only if it is live and the stored hash
// matches. Returns -1 when the record is absent, 0 when this caller lost,
// 1 when it won.
const rotateScript = `
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
  return -1
end
local revoked = redis.call("HGET", key, "revoked")
local hash = redis.call("HGET", key, "token_hash")
if revoked ~= "0" or hash ~= ARGV[1] then
  return 0
end
redis.call("HSET", key, "revoked", "1")
return 1
`

var rotateLua = redis.NewScript(rotateScript)

type Store struct {
	rdb *redis.Client
}

func NewStore(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewStoreWithClient wraps an existing client. Used by tests.
func NewStoreWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// ApplyMigrations is a no-op; Redis has no schema.
func (s *Store) ApplyMigrations() error { return nil }

// WithTx runs fn against the store itself. Redis has no rollback; the
// operations that must be atomic (rotation) are atomic on their own via
// the Lua script.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return fn(noopTx{s})
}

type noopTx struct{ *Store }

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }

func (s *Store) Users() store.Users                 { return &usersRepo{rdb: s.rdb} }
func (s *Store) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{rdb: s.rdb} }
func (s *Store) CsrfMappings() store.CsrfMappings   { return &csrfMappingsRepo{rdb: s.rdb} }

type refreshTokensRepo struct {
	rdb *redis.Client
}

func (r *refreshTokensRepo) Insert(ctx context.Context, rec domain.RefreshTokenRecord) error {
	key := refreshPrefix + rec.JTI

	exists, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 1 {
		return store.ErrAlreadyExists
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"jti":        rec.JTI,
			"username":   rec.Username,
			"token_hash": rec.TokenHash,
			"created_at": rec.CreatedAt,
			"expires_at": rec.ExpiresAt,
			"revoked":    boolField(rec.Revoked),
		})
		pipe.SAdd(ctx, userSetPrefix+rec.Username, rec.JTI)
		return nil
	})
	return err
}

func (r *refreshTokensRepo) GetByJTI(ctx context.Context, jti string) (domain.RefreshTokenRecord, error) {
	vals, err := r.rdb.HGetAll(ctx, refreshPrefix+jti).Result()
	if err != nil {
		return domain.RefreshTokenRecord{}, err
	}
	if len(vals) == 0 {
		return domain.RefreshTokenRecord{}, store.ErrNotFound
	}

	created, _ := strconv.ParseInt(vals["created_at"], 10, 64)
	expires, _ := strconv.ParseInt(vals["expires_at"], 10, 64)
	return domain.RefreshTokenRecord{
		JTI:       vals["jti"],
		Username:  vals["username"],
		TokenHash: vals["token_hash"],
		CreatedAt: created,
		ExpiresAt: expires,
		Revoked:   vals["revoked"] == "1",
	}, nil
}

func (r *refreshTokensRepo) MarkRotated(ctx context.Context, jti, tokenHash string) (bool, error) {
	res, err := rotateLua.Run(ctx, r.rdb, []string{refreshPrefix + jti}, tokenHash).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (r *refreshTokensRepo) Revoke(ctx context.Context, jti string) error {
	// HSET on an absent key would fabricate a stub record, so check first.
	exists, err := r.rdb.Exists(ctx, refreshPrefix+jti).Result()
	if err != nil || exists == 0 {
		return err
	}
	return r.rdb.HSet(ctx, refreshPrefix+jti, "revoked", "1").Err()
}

func (r *refreshTokensRepo) RevokeAllForUser(ctx context.Context, username string) error {
	jtis, err := r.rdb.SMembers(ctx, userSetPrefix+username).Result()
	if err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, jti := range jtis {
			pipe.HSet(ctx, refreshPrefix+jti, "revoked", "1")
		}
		return nil
	})
	return err
}

type csrfMappingsRepo struct {
	rdb *redis.Client
}

func (r *csrfMappingsRepo) Put(ctx context.Context, jti, csrfToken string) error {
	return r.rdb.Set(ctx, csrfPrefix+jti, csrfToken, 0).Err()
}

func (r *csrfMappingsRepo) Get(ctx context.Context, jti string) (string, error) {
	val, err := r.rdb.Get(ctx, csrfPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (r *csrfMappingsRepo) Delete(ctx context.Context, jti string) error {
	return r.rdb.Del(ctx, csrfPrefix+jti).Err()
}

func (r *csrfMappingsRepo) PurgeOrphaned(ctx context.Context) (int64, error) {
	now := time.Now().Unix()

	var purged int64
	iter := r.rdb.Scan(ctx, 0, csrfPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		jti := key[len(csrfPrefix):]

		vals, err := r.rdb.HMGet(ctx, refreshPrefix+jti, "revoked", "expires_at").Result()
		if err != nil {
			return purged, err
		}

		orphaned := vals[0] == nil // record gone entirely
		if !orphaned {
			revoked, _ := vals[0].(string)
			expiresRaw, _ := vals[1].(string)
			expires, _ := strconv.ParseInt(expiresRaw, 10, 64)
			orphaned = revoked == "1" || expires < now
		}

		if orphaned {
			if err := r.rdb.Del(ctx, key).Err(); err != nil {
				return purged, err
			}
			purged++
		}
	}
	if err := iter.Err(); err != nil {
		return purged, err
	}
	return purged, nil
}

type usersRepo struct {
	rdb *redis.Client
}

func (r *usersRepo) Create(ctx context.Context, u domain.User) error {
	added, err := r.rdb.SAdd(ctx, usernamesIndex, u.Username).Result()
	if err != nil {
		return err
	}
	if added == 0 {
		return store.ErrAlreadyExists
	}

	return r.rdb.HSet(ctx, userPrefix+u.Username, map[string]any{
		"username":      u.Username,
		"password_hash": u.PasswordHash,
		"created_at":    u.CreatedAt,
	}).Err()
}

func (r *usersRepo) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	vals, err := r.rdb.HGetAll(ctx, userPrefix+username).Result()
	if err != nil {
		return domain.User{}, err
	}
	if len(vals) == 0 {
		return domain.User{}, store.ErrNotFound
	}

	created, _ := strconv.ParseInt(vals["created_at"], 10, 64)
	return domain.User{
		Username:     vals["username"],
		PasswordHash: vals["password_hash"],
		CreatedAt:    created,
	}, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
