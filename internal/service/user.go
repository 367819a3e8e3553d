package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/halikara/tokend/internal/domain"
	"github.com/halikara/tokend/internal/store"
	"github.com/halikara/tokend/pkg/cryptox"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUsernameTaken      = errors.New("username_taken")
	ErrInvalidUsername    = errors.New("invalid_username")
)

// dummyHash is a throwaway argon2id hash of an empty string, verified
// against when the user does not exist.
var dummyHash = func() string {
	h, err := cryptox.HashPassword("")
	if err != nil {
		panic(err)
	}
	return h
}()

func nowUnix() int64 { return time.Now().Unix() }

// UserService owns account registration and credential checks.
type UserService struct {
	Store store.Store

	// Now is injectable for tests. Nil means time.Now.
	Now func() int64
}

func (s *UserService) now() int64 {
	if s.Now != nil {
		return s.Now()
	}
	return nowUnix()
}

// Register hashes the password and creates the account.
func (s *UserService) Register(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, ErrInvalidUsername
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	u := domain.User{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.Store.Users().Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, err
	}
	return u, nil
}

// Authenticate verifies the credentials. Unknown users and wrong passwords
// collapse to the same error.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := s.Store.Users().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn comparable time so absent users aren't distinguishable
			// by response latency.
			_ = cryptox.VerifyPassword(password, dummyHash)
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}
