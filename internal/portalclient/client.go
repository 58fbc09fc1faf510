package portalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/auth"
)

// refreshCookieName must match the cookie the server sets on login.
const refreshCookieName = "portal_refresh"

const defaultRestoreTimeout = 5 * time.Second

// ErrSessionExpired is the terminal client-side state after a failed
// rotation: the refresh credential is dead and only a new login helps.
var ErrSessionExpired = errors.New("portalclient: session expired")

// Client talks to the portal backend and owns the client-side session
// lifecycle: login, silent restoration, single-flight refresh and logout.
type Client struct {
	base    *url.URL
	http    *http.Client
	session *Session

	refreshGroup   singleflight.Group
	restoreTimeout time.Duration
	onExpired      func()

	state atomic.Int32
}

// Option configures Client behavior.
type Option func(*Client)

// WithCookieJar substitutes the cookie jar, letting tests preseed or share
// the refresh cookie across simulated page loads.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.http.Jar = jar
	}
}

// WithOnSessionExpired installs a hook invoked once when a failed refresh
// forces the session to the anonymous state (navigation to login, etc.).
func WithOnSessionExpired(fn func()) Option {
	return func(c *Client) {
		c.onExpired = fn
	}
}

// WithRestoreTimeout bounds the restoration rotation call.
func WithRestoreTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.restoreTimeout = d
		}
	}
}

// WithBaseTransport replaces the underlying transport for all calls.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("portalclient: parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base:           u,
		http:           &http.Client{Jar: jar, Timeout: 30 * time.Second},
		session:        NewSession(),
		restoreTimeout: defaultRestoreTimeout,
	}
	c.state.Store(int32(StateUnstarted))
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session exposes the shared session state object.
func (c *Client) Session() *Session {
	return c.session
}

// HTTPClient returns a client whose transport attaches the access token and
// recovers from 401s through the single-flight refresh. Application calls go
// through this; the auth endpoints themselves do not.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{
		Jar:       c.http.Jar,
		Timeout:   c.http.Timeout,
		Transport: &Transport{Base: c.http.Transport, client: c},
	}
}

type loginPayload struct {
	Identity            auth.Identity `json:"identity"`
	AccessToken         string        `json:"accessToken"`
	ForceChangePassword bool          `json:"forceChangePassword"`
}

// Login authenticates and installs the session. The refresh cookie lands in
// the jar as a side effect of the response. Returns whether the server
// demands an immediate password change.
func (c *Client) Login(ctx context.Context, email, password string) (auth.Identity, bool, error) {
	resp, err := c.postJSON(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return auth.Identity{}, false, err
	}
	defer drainClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return auth.Identity{}, false, auth.ErrInvalidCredentials
	case http.StatusForbidden:
		return auth.Identity{}, false, auth.ErrSuspended
	default:
		return auth.Identity{}, false, fmt.Errorf("portalclient: login failed with status %d", resp.StatusCode)
	}

	var payload loginPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return auth.Identity{}, false, err
	}
	c.session.SetAuthenticated(payload.Identity, payload.AccessToken)
	c.setState(StateAuthenticated)
	return payload.Identity, payload.ForceChangePassword, nil
}

// Logout clears the server-side cookie and only then the in-memory session.
// If the network call fails outright the memory state is left untouched:
// clearing it early would desynchronize the route guard (cookie present)
// from the store (logged out).
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.postJSON(ctx, "/auth/logout", nil)
	if err != nil {
		return err
	}
	drainClose(resp.Body)
	c.session.Clear()
	c.setState(StateAnonymous)
	return nil
}

// Me fetches the current identity through the intercepted client, so an
// expired access token is refreshed transparently.
func (c *Client) Me(ctx context.Context) (auth.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/auth/me"), nil)
	if err != nil {
		return auth.Identity{}, err
	}
	resp, err := c.HTTPClient().Do(req)
	if err != nil {
		return auth.Identity{}, err
	}
	defer drainClose(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return auth.Identity{}, fmt.Errorf("portalclient: me failed with status %d", resp.StatusCode)
	}
	var payload struct {
		Identity auth.Identity `json:"identity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return auth.Identity{}, err
	}
	return payload.Identity, nil
}

// refresh rotates the refresh token and installs the new access token.
// Concurrent callers converge on one in-flight rotation: the shared handle
// is held in the singleflight slot and cleared only after settlement, so
// every waiter observes the same outcome and the rotation endpoint is hit
// exactly once per burst.
func (c *Client) refresh(ctx context.Context) (string, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		resp, err := c.postJSON(ctx, "/auth/refresh", nil)
		if err != nil {
			return nil, err
		}
		defer drainClose(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return nil, ErrSessionExpired
		}
		var payload struct {
			Identity    auth.Identity `json:"identity"`
			AccessToken string        `json:"accessToken"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, err
		}
		c.session.SetAuthenticated(payload.Identity, payload.AccessToken)
		return payload.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// expire is the terminal path after a failed rotation. Exactly one caller
// wins the state transition and performs the cleanup; the rest observe the
// already-anonymous state.
func (c *Client) expire(ctx context.Context) {
	if !c.state.CompareAndSwap(int32(StateAuthenticated), int32(StateAnonymous)) &&
		!c.state.CompareAndSwap(int32(StateRestoring), int32(StateAnonymous)) {
		return
	}
	// Best-effort server-side cookie invalidation; the refresh credential
	// is already dead either way.
	if resp, err := c.postJSON(context.WithoutCancel(ctx), "/auth/logout", nil); err == nil {
		drainClose(resp.Body)
	}
	c.session.Clear()
	c.session.MarkInitialized()
	if c.onExpired != nil {
		c.onExpired()
	}
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func (c *Client) endpoint(path string) string {
	return c.base.JoinPath(path).String()
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// State reports the restoration state machine's current position.
func (c *Client) State() State {
	return State(c.state.Load())
}

func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
