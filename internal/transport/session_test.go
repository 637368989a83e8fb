package transport

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rise-fleet/rise/internal/keystore"
	"github.com/rise-fleet/rise/internal/knownhosts"
	"github.com/rise-fleet/rise/internal/model"
	"github.com/rise-fleet/rise/internal/tofu"
)

func newTestManager(t *testing.T, passwords map[string][]byte) *Manager {
	t.Helper()
	ks := keystore.New(t.TempDir())
	require.NoError(t, ks.Ensure("rise-test"))

	store, err := knownhosts.Open(filepath.Join(t.TempDir(), "known_hosts.json"))
	require.NoError(t, err)
	verifier := tofu.NewVerifier(store)

	return NewManager(ks, verifier, func(hostID string) []byte {
		return passwords[hostID]
	})
}

func TestDial_NoCredentialsFails(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := m.dial(context.Background(), model.Host{ID: "h1", Host: "127.0.0.1", Port: 22}, "127.0.0.1:22", AuthHint{KeyRegistered: false})
	require.Error(t, err)
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, model.KindNoCredentials, merr.Kind)
}

func TestWithHostLock_SerializesPerHost(t *testing.T) {
	m := newTestManager(t, nil)
	var mu sync.Mutex
	order := []int{}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_ = m.WithHostLock("h1", func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Len(t, order, 5)
}

func TestDisconnect_UnknownHostIsNoop(t *testing.T) {
	m := newTestManager(t, nil)
	assert.NoError(t, m.Disconnect("never-connected"))
}
