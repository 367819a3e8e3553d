// Package tokendsdk is a typed Go client for the tokend HTTP API. It
// manages the session and CSRF cookies a browser would carry, echoes the
// CSRF token back as a header on refresh, and rotates the refresh token
// transparently.
package tokendsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Client talks to one tokend deployment. It holds the cookie jar; all
// Sessions created from it share the same cookies, matching how a single
// browser profile behaves.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// CSRFHeader is the header the server expects the CSRF cookie echoed
	// into. Defaults to X-CSRF-Token.
	CSRFHeader string

	// CSRFCookie is the cookie the CSRF token arrives in. Defaults to
	// csrf_token.
	CSRFCookie string
}

// NewClient creates a client with its own cookie jar and a 10 second
// timeout.
func NewClient(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (c *Client) csrfHeader() string {
	if c.CSRFHeader == "" {
		return "X-CSRF-Token"
	}
	return c.CSRFHeader
}

func (c *Client) csrfCookie() string {
	if c.CSRFCookie == "" {
		return "csrf_token"
	}
	return c.CSRFCookie
}

// csrfToken reads the current CSRF token out of the jar, or "".
func (c *Client) csrfToken() string {
	if c.HTTPClient.Jar == nil {
		return ""
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	for _, ck := range c.HTTPClient.Jar.Cookies(u) {
		if ck.Name == c.csrfCookie() {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) postJSON(ctx context.Context, path string, body any, header map[string]string, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, header map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.postJSON(ctx, "/v1/auth/register",
		map[string]string{"username": username, "password": password}, nil, nil)
}

// Login authenticates and returns a Session carrying the token pair. The
// session and CSRF cookies land in the client's jar.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var pair tokenPairResponse
	err := c.postJSON(ctx, "/v1/auth/login",
		map[string]string{"username": username, "password": password}, nil, &pair)
	if err != nil {
		return nil, err
	}
	return newSession(c, pair), nil
}

// Livez reports whether the service is up.
func (c *Client) Livez(ctx context.Context) error {
	return c.getJSON(ctx, "/livez", nil, nil)
}
