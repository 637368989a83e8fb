package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rise-fleet/rise/internal/cache"
	"github.com/rise-fleet/rise/internal/transport"
)

func TestNotificationID_DeterministicAndVersionSensitive(t *testing.T) {
	a := notificationID("firewall", "1.0")
	b := notificationID("firewall", "1.0")
	c := notificationID("firewall", "1.1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestStartStop_TerminatesPromptly(t *testing.T) {
	ce := cache.New(t.TempDir(), "http://127.0.0.1:1/unreachable", nil)
	m := transport.NewManager(nil, nil, nil)

	s := New(ce, nil, m, nil, func() bool { return false }, 10*time.Millisecond, nil)

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly")
	}
}
