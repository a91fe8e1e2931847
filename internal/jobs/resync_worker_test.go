package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/postline/postline-backend/internal/engine"
	platformmock "github.com/postline/postline-backend/internal/platform/mock"
	remotememory "github.com/postline/postline-backend/internal/remote/memory"
	"github.com/postline/postline-backend/internal/staleness"
	"github.com/postline/postline-backend/internal/timeline"
)

func TestResyncWorkerDrainsDirtyProjects(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop().Sugar()
	store := remotememory.NewStore()
	poller := staleness.NewPoller(store, logger, nil, staleness.DefaultPollerConfig())

	cfg := engine.DefaultConfig()
	cfg.TaskPollInterval = time.Millisecond
	eng := engine.New(store, platformmock.NewClient(), nil, poller, logger, nil, cfg)

	_, err := store.SavePost(ctx, timeline.Post{
		Type: timeline.PostTypeScheduled,
		Date: time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC),
		Text: "edited elsewhere",
	}, "proj-1")
	require.NoError(t, err)

	require.NoError(t, store.MarkProjectUpdated(ctx, "proj-1"))
	poller.Tick(ctx)
	require.True(t, poller.Dirty("proj-1"))

	worker := NewResyncWorker(eng, poller, logger, DefaultResyncWorkerConfig())
	worker.Tick(ctx)

	assert.False(t, poller.Dirty("proj-1"))
	window := timeline.Window{
		From: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
	}
	assert.Len(t, eng.Timeline(ctx, "proj-1", window), 1)
}

func TestResyncWorkerIdlesOnCleanSet(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop().Sugar()
	store := remotememory.NewStore()
	poller := staleness.NewPoller(store, logger, nil, staleness.DefaultPollerConfig())

	cfg := engine.DefaultConfig()
	cfg.TaskPollInterval = time.Millisecond
	eng := engine.New(store, platformmock.NewClient(), nil, poller, logger, nil, cfg)

	worker := NewResyncWorker(eng, poller, logger, DefaultResyncWorkerConfig())
	worker.Tick(ctx)

	assert.Empty(t, poller.DirtyProjects())
}
