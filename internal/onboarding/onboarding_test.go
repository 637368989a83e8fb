package onboarding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rise-fleet/rise/internal/model"
	"github.com/rise-fleet/rise/internal/sshkey"
)

func TestClassifyBranch_NotInstalled(t *testing.T) {
	assert.Equal(t, model.BranchInstall, classifyBranch(checkResponse{Installed: false}))
}

func TestClassifyBranch_InstalledKeyMissing(t *testing.T) {
	assert.Equal(t, model.BranchAddDevice, classifyBranch(checkResponse{Installed: true, KeyRegistered: false}))
}

func TestClassifyBranch_InstalledKeyRegistered(t *testing.T) {
	assert.Equal(t, model.BranchAttach, classifyBranch(checkResponse{Installed: true, KeyRegistered: true}))
}

func TestSessions_EmptyInitially(t *testing.T) {
	c := &Coordinator{sessions: make(map[string]*model.OnboardingSession)}
	assert.Empty(t, c.Sessions())
}

func TestTrackUntrack_RoundTrip(t *testing.T) {
	c := &Coordinator{sessions: make(map[string]*model.OnboardingSession)}
	s := &model.OnboardingSession{ID: "abc", HostID: "h1"}
	c.track(s)
	assert.Len(t, c.Sessions(), 1)
	c.untrack("abc")
	assert.Empty(t, c.Sessions())
}

func TestMatchesCanonical_FindsEquivalentKeyDespiteCommentDrift(t *testing.T) {
	want, err := sshkey.Canonical("ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAI rise@device-a")
	require.NoError(t, err)
	candidates := []string{
		"ssh-rsa AAAAB3NzaC1yc2E= someone@else",
		`from="10.0.0.0/8" ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAI renamed-comment`,
	}
	assert.True(t, matchesCanonical(want, candidates))
}

func TestMatchesCanonical_NoMatch(t *testing.T) {
	want, err := sshkey.Canonical("ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAI rise@device-a")
	require.NoError(t, err)
	assert.False(t, matchesCanonical(want, []string{"ssh-rsa AAAAB3NzaC1yc2E= someone@else"}))
}

func TestMatchesCanonical_SkipsMalformedCandidates(t *testing.T) {
	want, err := sshkey.Canonical("ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAI rise@device-a")
	require.NoError(t, err)
	assert.False(t, matchesCanonical(want, []string{"not a key", ""}))
}
