package portalclient

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/auth"
)

func TestSessionTransitions(t *testing.T) {
	s := NewSession()

	assert.False(t, s.Initialized(), "fresh session must not be initialized")
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.AccessToken())
	_, ok := s.Identity()
	assert.False(t, ok)

	identity := auth.Identity{SubjectID: "user-1", Email: "pilot@airline.example", Role: auth.RoleUser, Status: auth.StatusActive}
	s.SetAuthenticated(identity, "token-1")
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "token-1", s.AccessToken())
	got, ok := s.Identity()
	assert.True(t, ok)
	assert.Equal(t, identity, got)

	s.MarkInitialized()
	assert.True(t, s.Initialized())

	s.Clear()
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.AccessToken())
	assert.True(t, s.Initialized(), "initialized flag must survive a logout")
}

func TestSessionRoleAndStatusViews(t *testing.T) {
	s := NewSession()

	assert.False(t, s.IsAdmin())
	assert.False(t, s.IsSuspended())

	s.SetAuthenticated(auth.Identity{SubjectID: "a", Role: auth.RoleAdmin, Status: auth.StatusActive}, "t")
	assert.True(t, s.IsAdmin())
	assert.False(t, s.IsSuspended())

	s.SetAuthenticated(auth.Identity{SubjectID: "b", Role: auth.RoleUser, Status: auth.StatusSuspended}, "t")
	assert.False(t, s.IsAdmin())
	assert.True(t, s.IsSuspended())

	s.Clear()
	assert.False(t, s.IsAdmin(), "cleared session holds no role")
	assert.False(t, s.IsSuspended())
}
