package portalclient

import (
	"sync"

	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/auth"
)

// Session holds the access token and the authenticated-identity snapshot in
// process memory for the lifetime of one application run. Nothing here is
// ever written to durable storage; losing the process loses the access token
// and restoration starts over from the refresh cookie.
//
// All mutation goes through the named transitions below. Components that
// share a Session must not poke at fields directly.
type Session struct {
	mu            sync.RWMutex
	identity      auth.Identity
	accessToken   string
	authenticated bool
	initialized   bool
}

func NewSession() *Session {
	return &Session{}
}

// SetAuthenticated installs the identity snapshot and access token.
func (s *Session) SetAuthenticated(identity auth.Identity, accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
	s.accessToken = accessToken
	s.authenticated = true
}

// Clear drops the identity and token. The initialized flag survives: a page
// load that reached a terminal state stays initialized after logout.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = auth.Identity{}
	s.accessToken = ""
	s.authenticated = false
}

// MarkInitialized records that restoration reached a terminal state. It
// transitions false to true exactly once per run and gates all protected
// rendering.
func (s *Session) MarkInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
}

func (s *Session) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated && s.identity.IsAdmin()
}

func (s *Session) IsSuspended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated && s.identity.IsSuspended()
}

// Identity returns the snapshot and whether one is held.
func (s *Session) Identity() (auth.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.authenticated
}

// AccessToken returns the current access token, empty when unauthenticated.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}
