package staleness

import (
	"context"
	"testing"
	"time"

	"github.com/postline/postline-backend/internal/remote/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPoller(t *testing.T) (*Poller, *memory.Store, *time.Time) {
	t.Helper()
	store := memory.NewStore()
	logger := zap.NewNop().Sugar()
	p := NewPoller(store, logger, nil, DefaultPollerConfig())

	current := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return current }
	return p, store, &current
}

func TestTickFlagsUpdatedProjects(t *testing.T) {
	p, store, _ := newTestPoller(t)
	ctx := context.Background()

	require.NoError(t, store.MarkProjectUpdated(ctx, "proj-1"))
	require.NoError(t, store.MarkProjectUpdated(ctx, "proj-2"))

	p.Tick(ctx)
	assert.True(t, p.Dirty("proj-1"))
	assert.True(t, p.Dirty("proj-2"))
	assert.False(t, p.Dirty("proj-3"))

	p.ClearDirty("proj-1")
	assert.False(t, p.Dirty("proj-1"))
}

func TestSelfRefreshSuppression(t *testing.T) {
	p, store, clock := newTestPoller(t)
	ctx := context.Background()

	// The client refreshed proj-1 itself moments ago.
	p.MarkSelfRefreshed("proj-1")
	*clock = clock.Add(5 * time.Second)

	require.NoError(t, store.MarkProjectUpdated(ctx, "proj-1"))
	require.NoError(t, store.MarkProjectUpdated(ctx, "proj-2"))

	p.Tick(ctx)
	assert.False(t, p.Dirty("proj-1"), "self-refreshed project must not be re-flagged inside the window")
	assert.True(t, p.Dirty("proj-2"))
}

func TestSuppressionExpires(t *testing.T) {
	p, store, clock := newTestPoller(t)
	ctx := context.Background()

	p.MarkSelfRefreshed("proj-1")
	*clock = clock.Add(11 * time.Second) // past the 10s window

	require.NoError(t, store.MarkProjectUpdated(ctx, "proj-1"))
	p.Tick(ctx)
	assert.True(t, p.Dirty("proj-1"))
}

func TestSuppressionEntriesPruned(t *testing.T) {
	p, store, clock := newTestPoller(t)
	ctx := context.Background()

	p.MarkSelfRefreshed("proj-1")
	p.MarkSelfRefreshed("proj-2")

	*clock = clock.Add(61 * time.Second)
	require.NoError(t, store.MarkProjectUpdated(ctx, "other"))
	p.Tick(ctx)

	p.mu.RLock()
	defer p.mu.RUnlock()
	assert.Empty(t, p.selfRefreshed, "entries older than the prune age are dropped on tick")
}

func TestStopCancelsLoop(t *testing.T) {
	p, _, _ := newTestPoller(t)
	p.config.Interval = 10 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		done <- p.Start(context.Background())
	}()

	time.Sleep(30 * time.Millisecond)
	p.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
