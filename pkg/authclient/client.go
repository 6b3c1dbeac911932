// Package authclient is the caller-side companion to the auth
// service: it owns the token pair, attaches the bearer token to
// requests, and coordinates refresh so that any number of concurrent
// requests hitting an expired access token trigger exactly one
// refresh call followed by exactly one retry each.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to one auth service instance. All state (token store,
// refresh coordination) is owned by the instance; two Clients never
// interfere with each other.
type Client struct {
	base           string
	http           *http.Client
	tokens         TokenStore
	refreshTimeout time.Duration
	coord          coordinator
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithTokenStore substitutes the token storage capability, e.g. a
// platform keychain wrapper.
func WithTokenStore(s TokenStore) Option { return func(c *Client) { c.tokens = s } }

// WithRefreshTimeout bounds how long a refresh call may stay in
// flight. On timeout the cycle settles as failure and every parked
// caller is released with the error rather than hanging.
func WithRefreshTimeout(d time.Duration) Option { return func(c *Client) { c.refreshTimeout = d } }

// New returns a Client for the service at baseURL (no trailing slash
// needed).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:           strings.TrimRight(baseURL, "/"),
		http:           &http.Client{Timeout: 30 * time.Second},
		tokens:         NewMemoryTokenStore(),
		refreshTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ----- wire types -----

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// User is the caller-facing profile.
type User struct {
	ID            uint64 `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// Session is one device login as listed by the service.
type Session struct {
	ID         uint64    `json:"id"`
	DeviceInfo string    `json:"device_info"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Current    bool      `json:"current"`
}

type authResp struct {
	User    User      `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// ----- credential operations (unauthenticated) -----

// Register creates an account. The account is unusable until the
// emailed verification link is consumed.
func (c *Client) Register(ctx context.Context, email, password string) error {
	in := map[string]string{"email": email, "password": password}
	return c.post(ctx, "/v1/auth/register", in, nil)
}

// Login exchanges credentials for a token pair and clears any
// previous logged-out latch.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	in := map[string]string{"email": email, "password": password}
	var out authResp
	if err := c.post(ctx, "/v1/auth/login", in, &out); err != nil {
		return User{}, err
	}
	c.tokens.Set(out.Access.Token, out.Refresh.Token)
	c.coord.reset()
	return out.User, nil
}

// VerifyEmail consumes an emailed verification token.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.post(ctx, "/v1/auth/verify-email", map[string]string{"token": token}, nil)
}

// ResendVerification requests a fresh verification email.
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	return c.post(ctx, "/v1/auth/resend-verification", map[string]string{"email": email}, nil)
}

// ForgotPassword requests a reset email. The server answers the same
// way whether or not the address exists.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.post(ctx, "/v1/auth/forgot-password", map[string]string{"email": email}, nil)
}

// ResetPassword consumes an emailed reset token. All sessions of the
// account are revoked server-side, this client's included, so the
// local pair is cleared too.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	in := map[string]string{"token": token, "new_password": newPassword}
	if err := c.post(ctx, "/v1/auth/reset-password", in, nil); err != nil {
		return err
	}
	c.tokens.Clear()
	return nil
}

// Logout revokes this device's session and clears the stored pair.
func (c *Client) Logout(ctx context.Context) error {
	_, refresh := c.tokens.Get()
	c.tokens.Clear()
	if refresh == "" {
		return nil
	}
	return c.post(ctx, "/v1/auth/logout", map[string]string{"refresh_token": refresh}, nil)
}

// ----- authenticated operations -----

// Me returns the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (User, error) {
	var out User
	err := c.authed(ctx, http.MethodGet, "/v1/me", nil, &out)
	return out, err
}

// Sessions lists the account's live device sessions, most recent
// first; the one backing this client's access token has Current set.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var out []Session
	err := c.authed(ctx, http.MethodGet, "/v1/sessions", nil, &out)
	return out, err
}

// RevokeSession revokes one of the account's sessions by id.
func (c *Client) RevokeSession(ctx context.Context, id uint64) error {
	return c.authed(ctx, http.MethodDelete, fmt.Sprintf("/v1/sessions/%d", id), nil, nil)
}

// LogoutAll revokes every session of the account and clears the
// stored pair.
func (c *Client) LogoutAll(ctx context.Context) error {
	if err := c.authed(ctx, http.MethodPost, "/v1/logout-all", nil, nil); err != nil {
		return err
	}
	c.tokens.Clear()
	return nil
}

// ----- plumbing -----

// authed performs a bearer-authenticated request. On a 401 it asks the
// coordinator for a fresh access token (leading or joining a refresh
// cycle) and retries the original request exactly once. A second 401
// on the retry surfaces as an error; retried requests are never parked
// again, which is what stops infinite retry loops.
func (c *Client) authed(ctx context.Context, method, path string, in, out any) error {
	body, err := marshalBody(in)
	if err != nil {
		return err
	}

	access, _ := c.tokens.Get()
	if access == "" {
		if access, err = c.coord.await(ctx, c.refreshCall); err != nil {
			return err
		}
	}

	status, respBody, err := c.send(ctx, method, path, body, access)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if access, err = c.coord.await(ctx, c.refreshCall); err != nil {
			return err
		}
		status, respBody, err = c.send(ctx, method, path, body, access)
		if err != nil {
			return err
		}
	}
	if status >= 400 {
		return decodeError(status, respBody)
	}
	return unmarshalBody(respBody, out)
}

// refreshCall is the single-flight body run by the coordinator's
// leader. It deliberately ignores the leader's request context and
// uses its own bounded timeout: the refresh settles for everyone even
// if the caller that happened to lead gives up.
func (c *Client) refreshCall() (string, error) {
	_, refresh := c.tokens.Get()
	if refresh == "" {
		return "", &APIError{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: "no refresh token"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	body, _ := marshalBody(map[string]string{"refresh_token": refresh})
	status, respBody, err := c.send(ctx, http.MethodPost, "/v1/auth/refresh", body, "")
	if err != nil {
		c.tokens.Clear()
		return "", err
	}
	if status >= 400 {
		c.tokens.Clear()
		return "", decodeError(status, respBody)
	}

	var out struct {
		Access  tokenPart `json:"access"`
		Refresh tokenPart `json:"refresh"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		c.tokens.Clear()
		return "", err
	}
	// Rotation: the old refresh value is spent server-side; store the
	// replacement before anyone retries.
	c.tokens.Set(out.Access.Token, out.Refresh.Token)
	return out.Access.Token, nil
}

// post performs an unauthenticated request and decodes errors through
// the taxonomy.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := marshalBody(in)
	if err != nil {
		return err
	}
	status, respBody, err := c.send(ctx, http.MethodPost, path, body, "")
	if err != nil {
		return err
	}
	if status >= 400 {
		return decodeError(status, respBody)
	}
	return unmarshalBody(respBody, out)
}

// send issues one HTTP request. The body is a byte slice so retries
// can replay it.
func (c *Client) send(ctx context.Context, method, path string, body []byte, access string) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func marshalBody(in any) ([]byte, error) {
	if in == nil {
		return nil, nil
	}
	return json.Marshal(in)
}

func unmarshalBody(body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
