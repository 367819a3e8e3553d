package domain

// Token type discriminators embedded in the "type" claim. A refresh token
// presented where an access token is expected (or vice versa) is rejected
// outright.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenPair is the result of a successful login or refresh rotation.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`

	// RefreshJTI identifies the refresh token's stored record. It is not
	// serialized; callers use it to bind CSRF state to the session.
	RefreshJTI string `json:"-"`
}

// RefreshTokenRecord is the server-side record backing one refresh token.
// Only the HMAC hash of the token is stored; the raw token exists solely
// on the client. Records are never deleted, only revoked, so that a replay
// of an old token is distinguishable from a token we never issued.
type RefreshTokenRecord struct {
	JTI       string
	Username  string
	TokenHash string
	CreatedAt int64
	ExpiresAt int64
	Revoked   bool
}

// User is an account that can authenticate and hold sessions.
type User struct {
	Username     string
	PasswordHash string
	CreatedAt    int64
}
