package portalclient

import (
	"context"
	"strings"
)

// State is the restoration state machine position. A run moves
// UNSTARTED -> RESTORING -> {AUTHENTICATED, ANONYMOUS}; the authenticated
// state can only fall to anonymous through an explicit logout or a failed
// refresh.
type State int32

const (
	StateUnstarted State = iota
	StateRestoring
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Restore attempts silent credential restoration at application start.
// Nothing protected may render until the session reports initialized, which
// only happens here once a terminal state is reached.
//
// Without a structurally plausible refresh cookie no network call is made.
// With one, a single rotation is attempted under a bounded timeout; a
// timeout is treated identically to a rejection.
func (c *Client) Restore(ctx context.Context) (State, error) {
	if !c.state.CompareAndSwap(int32(StateUnstarted), int32(StateRestoring)) {
		return c.State(), nil
	}

	if !c.hasStructuralCookie() {
		c.session.MarkInitialized()
		c.setState(StateAnonymous)
		return StateAnonymous, nil
	}

	rctx, cancel := context.WithTimeout(ctx, c.restoreTimeout)
	defer cancel()

	if _, err := c.refresh(rctx); err != nil {
		// Clear the dead cookie server-side so the route guard stops
		// seeing a phantom session.
		if resp, lerr := c.postJSON(context.WithoutCancel(ctx), "/auth/logout", nil); lerr == nil {
			drainClose(resp.Body)
		}
		c.session.Clear()
		c.session.MarkInitialized()
		c.setState(StateAnonymous)
		return StateAnonymous, nil
	}

	c.session.MarkInitialized()
	c.setState(StateAuthenticated)
	return StateAuthenticated, nil
}

// hasStructuralCookie mirrors the server-side route guard's shape check:
// presence of a three-segment cookie value, no cryptographic verification.
func (c *Client) hasStructuralCookie() bool {
	if c.http.Jar == nil {
		return false
	}
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == refreshCookieName && structurallyValid(ck.Value) {
			return true
		}
	}
	return false
}

func structurallyValid(value string) bool {
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}
