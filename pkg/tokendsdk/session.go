package tokendsdk

import (
	"context"
	"sync"
	"time"
)

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Session is an authenticated user session. It refreshes the pair when
// the access token nears expiry and is safe for concurrent use.
type Session struct {
	client *Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

func newSession(c *Client, pair tokenPairResponse) *Session {
	return &Session{
		client:       c,
		accessToken:  pair.AccessToken,
		refreshToken: pair.RefreshToken,
		// 30 second buffer so a token never expires mid-request.
		expiresAt: time.Now().Add(time.Duration(pair.ExpiresIn)*time.Second - 30*time.Second),
	}
}

// AccessToken returns the current access token, refreshing first if it is
// about to expire.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Now().After(s.expiresAt) {
		if err := s.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return s.accessToken, nil
}

// Refresh rotates the pair immediately.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) error {
	var pair tokenPairResponse
	err := s.client.postJSON(ctx, "/v1/auth/refresh",
		map[string]string{"refresh_token": s.refreshToken},
		map[string]string{s.client.csrfHeader(): s.client.csrfToken()},
		&pair)
	if err != nil {
		return err
	}

	s.accessToken = pair.AccessToken
	s.refreshToken = pair.RefreshToken
	s.expiresAt = time.Now().Add(time.Duration(pair.ExpiresIn)*time.Second - 30*time.Second)
	return nil
}

// Logout revokes the refresh token and clears the session's state.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.client.postJSON(ctx, "/v1/auth/logout",
		map[string]string{"refresh_token": s.refreshToken}, nil, nil)

	s.accessToken = ""
	s.refreshToken = ""
	s.expiresAt = time.Time{}
	return err
}

// Profile fetches the authenticated user's profile.
func (s *Session) Profile(ctx context.Context) (map[string]any, error) {
	token, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var profile map[string]any
	err = s.client.getJSON(ctx, "/v1/profile",
		map[string]string{"Authorization": "Bearer " + token}, &profile)
	if err != nil {
		return nil, err
	}
	return profile, nil
}
