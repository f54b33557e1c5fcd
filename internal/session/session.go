// Package session is an HTTP client for the risk register API. It keeps the
// session token, attaches it to requests and refreshes it in the background
// until the session is logged out.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"rcsa.id/internal/obs"
)

// DefaultRefreshEvery keeps refreshes well inside the server's 8h token lifetime.
const DefaultRefreshEvery = 50 * time.Minute

var ErrNotLoggedIn = errors.New("session: not logged in")

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("session: http %d", e.Status)
	}
	return fmt.Sprintf("session: http %d: %s", e.Status, e.Message)
}

// User is the identity returned by login.
type User struct {
	ID       int64  `json:"id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	RoleID   int64  `json:"role_id"`
	UnitName string `json:"unit_name"`
}

// Client holds one session against the API. It is safe for concurrent use.
type Client struct {
	base         *url.URL
	http         *http.Client
	refreshEvery time.Duration
	onExpire     func(error)

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	user      *User
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithRefreshEvery(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.refreshEvery = d
		}
	}
}

// WithOnExpire is called once when a background refresh fails and the
// session is dropped.
func WithOnExpire(fn func(error)) Option {
	return func(c *Client) { c.onExpire = fn }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("session: invalid base url %q", baseURL)
	}
	c := &Client{
		base:         u,
		http:         &http.Client{Timeout: 15 * time.Second},
		refreshEvery: DefaultRefreshEvery,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type loginResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login authenticates with a user id or email and stores the session token.
func (c *Client) Login(ctx context.Context, login, password string) (*User, error) {
	var resp loginResponse
	body := map[string]string{"password": password}
	if strings.Contains(login, "@") {
		body["email"] = login
	} else {
		body["user_id"] = login
	}
	if err := c.send(ctx, http.MethodPost, "/api/auth/login", "", body, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New("session: login response carried no token")
	}

	c.mu.Lock()
	c.token = resp.Token
	c.expiresAt = resp.ExpiresAt
	c.user = resp.User
	c.mu.Unlock()
	return resp.User, nil
}

// Token returns the current session token, or "" when logged out.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// ExpiresAt is the expiry reported for the current token.
func (c *Client) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiresAt
}

// User returns the identity from the last login.
func (c *Client) User() *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Refresh exchanges the current token for a fresh one. A token obtained by a
// refresh that raced with Logout is discarded.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	token, gen := c.token, c.gen
	c.mu.Unlock()
	if token == "" {
		return ErrNotLoggedIn
	}

	var resp tokenResponse
	if err := c.send(ctx, http.MethodPost, "/api/auth/refresh-token", "", map[string]string{"token": token}, &resp); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.token == "" {
		return ErrNotLoggedIn
	}
	c.token = resp.Token
	c.expiresAt = resp.ExpiresAt
	return nil
}

// Start runs the refresh loop until ctx is done or the session is logged out.
// Calling Start while a loop is running is a no-op.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return ErrNotLoggedIn
	}
	if c.cancel != nil {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	go c.refreshLoop(loopCtx, cancel, done)
	return nil
}

func (c *Client) refreshLoop(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.done == done {
			c.cancel, c.done = nil, nil
		}
		c.mu.Unlock()
		close(done)
	}()
	defer cancel()
	t := time.NewTicker(c.refreshEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		err := c.Refresh(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		obs.Logger().Warn().Err(err).Msg("session refresh failed, logging out")
		c.drop()
		if c.onExpire != nil {
			c.onExpire(err)
		}
		return
	}
}

// drop clears the local session without contacting the server.
func (c *Client) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.user = nil
	c.gen++
	c.cancel = nil
	c.done = nil
}

// stop cancels the refresh loop and waits for it to exit.
func (c *Client) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Logout stops the refresh loop, tells the server and forgets the token. The
// local session is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	c.stop()
	token := c.Token()
	c.drop()
	if token == "" {
		return nil
	}
	return c.send(ctx, http.MethodPost, "/api/auth/logout", token, nil, nil)
}

// Do sends an authenticated JSON request. body and out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	token := c.Token()
	if token == "" {
		return ErrNotLoggedIn
	}
	return c.send(ctx, method, path, token, body, out)
}

func (c *Client) send(ctx context.Context, method, path, token string, body, out any) error {
	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("session: encode body: %w", err)
		}
		rd = bytes.NewReader(payload)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("session: invalid path %q: %w", path, err)
	}
	target := c.base.JoinPath(ref.Path)
	target.RawQuery = ref.RawQuery

	req, err := http.NewRequestWithContext(ctx, method, target.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&msg) == nil {
			apiErr.Message = msg.Message
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("session: decode response: %w", err)
	}
	return nil
}
