package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHostString(t *testing.T) {
	h := Host{DisplayName: "web-01", Username: "admin", Host: "10.0.0.5", Port: 22}
	assert.Equal(t, "web-01 (admin@10.0.0.5:22)", h.String())
}

func TestPendingFirewallMarker_Expired(t *testing.T) {
	m := PendingFirewallMarker{HostID: "h1", AppliedAt: time.Now().Add(-100 * time.Second)}
	assert.True(t, m.Expired(time.Now(), 90*time.Second))

	fresh := PendingFirewallMarker{HostID: "h1", AppliedAt: time.Now()}
	assert.False(t, fresh.Expired(time.Now(), 90*time.Second))
}

func TestOnboardingSession_IsExpired(t *testing.T) {
	s := OnboardingSession{ExpiresAt: time.Now().Add(-time.Minute)}
	assert.True(t, s.IsExpired())

	fresh := OnboardingSession{ExpiresAt: time.Now().Add(time.Minute)}
	assert.False(t, fresh.IsExpired())
}
