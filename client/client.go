// Package client is the calling side of the session API. It keeps the access
// token fresh before each outbound request and collapses concurrent renewals
// into a single network call.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/tasker-auth/services/token"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	loginPath   = "/api/auth/login"
	logoutPath  = "/api/auth/logout"
	refreshPath = "/api/auth/refresh-token"

	refreshKey = "refresh"
)

var (
	// ErrNotAuthenticated is returned when no access token is held
	ErrNotAuthenticated = errors.New("client: not authenticated")
	// ErrSessionExpired is returned when renewal failed and the session was cleared
	ErrSessionExpired = errors.New("client: session expired")
)

// Client talks to the auth endpoints and hands out valid access tokens
type Client struct {
	baseURL        string
	session        *Session
	authClient     *http.Client
	refreshTimeout time.Duration
	leeway         time.Duration
	now            func() time.Time
	onExpired      func(error)
	logger         *zap.Logger

	sf singleflight.Group
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for auth endpoint calls.
// Its Jar is replaced by the client's session.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		copied := *c
		cl.authClient = &copied
	}
}

// WithSession shares an existing session with the client
func WithSession(s *Session) Option {
	return func(cl *Client) { cl.session = s }
}

// WithRefreshTimeout bounds a single renewal call
func WithRefreshTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.refreshTimeout = d }
}

// WithLeeway treats tokens expiring within d as already expired
func WithLeeway(d time.Duration) Option {
	return func(cl *Client) { cl.leeway = d }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// WithOnSessionExpired registers a hook run after a failed renewal has
// cleared the session, typically to send the user back to the login screen.
func WithOnSessionExpired(fn func(error)) Option {
	return func(cl *Client) { cl.onExpired = fn }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a client for the API rooted at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		authClient:     &http.Client{Timeout: 10 * time.Second},
		refreshTimeout: 10 * time.Second,
		now:            time.Now,
		logger:         zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.session == nil {
		c.session = NewSession()
	}
	c.authClient.Jar = c.session
	return c
}

// Session returns the client's session state
func (c *Client) Session() *Session {
	return c.session
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// StatusError is a non-2xx answer from an auth endpoint
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: auth endpoint returned %d", e.StatusCode)
	}
	return fmt.Sprintf("client: auth endpoint returned %d: %s", e.StatusCode, e.Message)
}

// Login authenticates with email and password. The refresh cookie lands in
// the session jar and the access token is stored on success.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("client: failed to encode login request: %w", err)
	}

	resp, err := c.post(ctx, loginPath, body, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	tok, err := decodeToken(resp)
	if err != nil {
		return err
	}
	c.session.SetAccessToken(tok)
	return nil
}

// Logout revokes the session server-side and clears it locally.
// Local state is cleared even when the call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.session.Clear()

	resp, err := c.post(ctx, logoutPath, nil, c.session.AccessToken())
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Token returns an access token that is not known to be expired, renewing
// it first when needed.
func (c *Client) Token(ctx context.Context) (string, error) {
	tok := c.session.AccessToken()
	if tok == "" {
		return "", ErrNotAuthenticated
	}
	if !c.expired(tok) {
		return tok, nil
	}
	return c.Refresh(ctx)
}

// Refresh renews the access token. Concurrent callers share one in-flight
// renewal and all receive its result. A failed renewal clears the session.
//
// Cancelling ctx only stops this caller from waiting. The renewal itself is
// bounded by the refresh timeout.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	ch := c.sf.DoChan(refreshKey, func() (interface{}, error) {
		return c.renew()
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) renew() (string, error) {
	current := c.session.AccessToken()
	if current == "" {
		return "", ErrNotAuthenticated
	}
	// A renewal that finished just before this flight started already did the work.
	if !c.expired(current) {
		return current, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	tok, err := c.requestRefresh(ctx)
	if err != nil {
		c.expire(err)
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	c.session.SetAccessToken(tok)
	c.logger.Debug("access token renewed")
	return tok, nil
}

func (c *Client) requestRefresh(ctx context.Context) (string, error) {
	resp, err := c.post(ctx, refreshPath, nil, "")
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeToken(resp)
}

func (c *Client) expire(cause error) {
	c.session.Clear()
	c.logger.Warn("session expired, renewal failed", zap.Error(cause))
	if c.onExpired != nil {
		c.onExpired(cause)
	}
}

// expired reports whether tok is past its exp claim. Unreadable tokens count
// as expired so they are never sent.
func (c *Client) expired(tok string) bool {
	exp, err := token.ExpiryUnverified(tok)
	if err != nil {
		return true
	}
	return !c.now().Add(c.leeway).Before(exp)
}

func (c *Client) post(ctx context.Context, path string, body []byte, bearer string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("client: failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.authClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s request failed: %w", path, err)
	}
	return resp, nil
}

func decodeToken(resp *http.Response) (string, error) {
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("client: failed to decode response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("client: empty accessToken in response")
	}
	return tr.AccessToken, nil
}

func statusError(resp *http.Response) error {
	var er errorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&er)
	return &StatusError{StatusCode: resp.StatusCode, Message: er.Error}
}
