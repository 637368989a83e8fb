package updater

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rise-fleet/rise/internal/events"
	"github.com/rise-fleet/rise/internal/model"
	"github.com/rise-fleet/rise/internal/transport"
)

func TestQueueDeadline_MatchesSpecTable(t *testing.T) {
	assert.Equal(t, 30.0, QueueDeadline.Seconds())
}

func TestRunQueued_RunsImmediatelyWhenLockFree(t *testing.T) {
	m := transport.NewManager(nil, nil, nil)
	p := NewPusher(m, nil)

	ran := false
	err := p.RunQueued(context.Background(), "host-1", "firewall", func() error {
		ran = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, ran)
}

func TestRunQueued_PublishesCancellationOnTimeout(t *testing.T) {
	m := transport.NewManager(nil, nil, nil)
	var published []any
	p := NewPusher(m, events.SinkFunc(func(e any) { published = append(published, e) }))
	p.queueDeadline = 20 * time.Millisecond

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = m.WithHostLock("host-1", func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	err := p.RunQueued(context.Background(), "host-1", "firewall", func() error {
		t.Fatal("fn must not run while the host lock is held by the push")
		return nil
	})

	require.Error(t, err)
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, model.KindQueueTimeout, merr.Kind)

	require.Len(t, published, 1)
	ev, ok := published[0].(events.OpCancelledDuringUpdate)
	require.True(t, ok)
	assert.Equal(t, "host-1", ev.HostID)
	assert.Equal(t, "firewall", ev.Program)
}
