package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	platformmock "github.com/postline/postline-backend/internal/platform/mock"
	"github.com/postline/postline-backend/internal/remote"
	remotememory "github.com/postline/postline-backend/internal/remote/memory"
	"github.com/postline/postline-backend/internal/staleness"
	"github.com/postline/postline-backend/internal/store"
	"github.com/postline/postline-backend/internal/timeline"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

type testFixture struct {
	engine   *Engine
	store    *remotememory.Store
	platform *platformmock.Client
	poller   *staleness.Poller
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	logger := zap.NewNop().Sugar()
	store := remotememory.NewStore()
	client := platformmock.NewClient()
	pollerConfig := staleness.DefaultPollerConfig()
	// The engine's own refreshes should surface as dirty immediately here;
	// suppression has its own tests in the staleness package.
	pollerConfig.SuppressionWindow = 0
	poller := staleness.NewPoller(store, logger, nil, pollerConfig)
	config := DefaultConfig()
	config.TaskPollInterval = time.Millisecond
	eng := New(store, client, nil, poller, logger, nil, config)
	return &testFixture{engine: eng, store: store, platform: client, poller: poller}
}

func seedScheduled(t *testing.T, f *testFixture, projectID string, when time.Time) timeline.Post {
	t.Helper()
	saved, err := f.store.SavePost(context.Background(), timeline.Post{
		Type: timeline.PostTypeScheduled,
		Date: when,
		Text: "scheduled post",
	}, projectID)
	require.NoError(t, err)
	return saved
}

func seedPublished(t *testing.T, f *testFixture, projectID string, when time.Time) timeline.Post {
	t.Helper()
	saved, err := f.store.SavePost(context.Background(), timeline.Post{
		Type: timeline.PostTypePublished,
		Date: when,
		Text: "published post",
	}, projectID)
	require.NoError(t, err)
	return saved
}

func seedSystem(t *testing.T, f *testFixture, projectID string, when time.Time, status timeline.PostStatus) timeline.Post {
	t.Helper()
	saved, err := f.store.SavePost(context.Background(), timeline.Post{
		Type:     timeline.PostTypeSystem,
		Date:     when,
		Text:     "system post",
		Status:   status,
		IsActive: true,
	}, projectID)
	require.NoError(t, err)
	return saved
}

func TestRefreshAllLoadsEveryCategory(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	seedPublished(t, f, "p1", date(2026, time.March, 1))
	seedScheduled(t, f, "p1", date(2026, time.March, 5))
	seedSystem(t, f, "p1", date(2026, time.March, 10), timeline.StatusPending)
	_, err := f.store.SaveNote(ctx, timeline.Note{Date: date(2026, time.March, 3), Text: "note"}, "p1")
	require.NoError(t, err)

	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	window := timeline.Window{From: date(2026, time.March, 1).Add(-24 * time.Hour), To: date(2026, time.March, 31)}
	posts := f.engine.Timeline(ctx, "p1", window)
	assert.Len(t, posts, 3)
	assert.Len(t, f.engine.Notes("p1"), 1)

	flags := f.engine.Flags("p1")
	assert.True(t, flags.Loaded)
	assert.False(t, flags.EmptyDataNotice)
	assert.Empty(t, flags.Errors)
}

func TestRefreshAllEmptyDatasetRaisesNotice(t *testing.T) {
	f := newTestFixture(t)

	require.NoError(t, f.engine.RefreshAll(context.Background(), "p1"))

	flags := f.engine.Flags("p1")
	assert.True(t, flags.Loaded)
	assert.True(t, flags.EmptyDataNotice)
}

func TestRefreshAllSingleFlight(t *testing.T) {
	f := newTestFixture(t)

	f.engine.mu.Lock()
	f.engine.sessionLocked("p1").refreshing = true
	f.engine.mu.Unlock()

	err := f.engine.RefreshAll(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrRefreshInFlight)
}

func TestPermissionDeniedRaisesSuppressionFlag(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	f.store.DenyProject("p1")

	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	flags := f.engine.Flags("p1")
	assert.True(t, flags.PermissionDenied)

	// Activation while suppressed must not touch the store.
	f.store.AllowProject("p1")
	seedScheduled(t, f, "p1", date(2026, time.April, 1))
	require.NoError(t, f.engine.ActivateView(ctx, "p1"))
	window := timeline.Window{From: date(2026, time.March, 1), To: date(2026, time.May, 1)}
	assert.Empty(t, f.engine.Timeline(ctx, "p1", window))

	// An explicit refresh clears the flag and picks the data up again.
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))
	assert.False(t, f.engine.Flags("p1").PermissionDenied)
	assert.Len(t, f.engine.Timeline(ctx, "p1", window), 1)
}

func TestTimelineProjectsGhostsWithoutPersisting(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	src := seedSystem(t, f, "p1", date(2026, time.March, 1), timeline.StatusPending)
	src.IsCyclic = true
	src.Recurrence = &timeline.RecurrenceRule{Interval: 1, Unit: timeline.UnitWeeks, EndType: timeline.EndNever}
	_, err := f.store.SavePost(ctx, src, "p1")
	require.NoError(t, err)

	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	window := timeline.Window{From: date(2026, time.February, 28), To: date(2026, time.March, 31)}
	posts := f.engine.Timeline(ctx, "p1", window)

	var ghosts int
	for _, p := range posts {
		if p.IsGhost {
			ghosts++
			assert.Equal(t, src.ID, p.OriginalID)
		}
	}
	assert.Equal(t, 4, ghosts, "Mar 8, 15, 22, 29")

	// Ghosts never reach the store.
	records, err := f.store.FetchSystemPosts(ctx, []string{"p1"})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDropPolicy(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	day := date(2026, time.March, 5)

	published := seedPublished(t, f, "p1", day)
	scheduled := seedScheduled(t, f, "p1", day)
	publishing := seedSystem(t, f, "p1", day, timeline.StatusPublishing)
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	tests := []struct {
		name       string
		id         string
		target     time.Time
		wantPrompt bool
		wantCopy   bool
	}{
		{"published to another day offers copy", published.ID, date(2026, time.March, 9), true, true},
		{"published same day still offers copy", published.ID, day.Add(2 * time.Hour), true, true},
		{"publishing system post offers copy", publishing.ID, date(2026, time.March, 9), true, true},
		{"scheduled same day is a no-op", scheduled.ID, day.Add(3 * time.Hour), false, false},
		{"scheduled to another day asks move or copy", scheduled.ID, date(2026, time.March, 9), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, f.engine.BeginDrag("p1", KindPost, tt.id))
			prompt, err := f.engine.DropOnDate("p1", tt.target)
			require.NoError(t, err)
			if !tt.wantPrompt {
				assert.Nil(t, prompt)
				assert.Nil(t, f.engine.PendingMove("p1"))
				return
			}
			require.NotNil(t, prompt)
			assert.Equal(t, tt.wantCopy, prompt.CopyOnly)
			f.engine.CancelMoveOrCopy("p1")
		})
	}

	// Dropping without a drag is rejected.
	_, err := f.engine.DropOnDate("p1", day)
	assert.ErrorIs(t, err, ErrNotDragging)
}

func TestDragIsExclusiveAndAlwaysCleared(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	scheduled := seedScheduled(t, f, "p1", date(2026, time.March, 5))
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	require.NoError(t, f.engine.BeginDrag("p1", KindPost, scheduled.ID))
	assert.ErrorIs(t, f.engine.BeginDrag("p1", KindPost, scheduled.ID), ErrAlreadyDragging)

	f.engine.DragEnd("p1")
	assert.Equal(t, ModeIdle, f.engine.Mode("p1"))
	require.NoError(t, f.engine.BeginDrag("p1", KindPost, scheduled.ID))
	f.engine.DragEnd("p1")

	assert.ErrorIs(t, f.engine.BeginDrag("p1", KindPost, "missing"), ErrUnknownItem)
}

func TestConfirmMoveInternal(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	scheduled := seedScheduled(t, f, "p1", date(2026, time.March, 5))
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	target := date(2026, time.March, 9)
	require.NoError(t, f.engine.BeginDrag("p1", KindPost, scheduled.ID))
	prompt, err := f.engine.DropOnDate("p1", target)
	require.NoError(t, err)
	require.NotNil(t, prompt)

	require.NoError(t, f.engine.ConfirmMoveOrCopy(ctx, "p1", false, DestinationInternal))
	assert.Nil(t, f.engine.PendingMove("p1"))

	records, err := f.store.FetchScheduled(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Date.Equal(target))

	// The refresh after resolution is unconditional, so the session already
	// reflects the move.
	window := timeline.Window{From: date(2026, time.March, 1), To: date(2026, time.March, 31)}
	posts := f.engine.Timeline(ctx, "p1", window)
	require.Len(t, posts, 1)
	assert.True(t, posts[0].Date.Equal(target))
}

func TestConfirmCopyOfPublishedCreatesScheduled(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	published := seedPublished(t, f, "p1", date(2026, time.March, 5))
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	target := date(2026, time.March, 12)
	require.NoError(t, f.engine.BeginDrag("p1", KindPost, published.ID))
	prompt, err := f.engine.DropOnDate("p1", target)
	require.NoError(t, err)
	require.True(t, prompt.CopyOnly)

	// Even a requested "move" of a locked item resolves as a copy.
	require.NoError(t, f.engine.ConfirmMoveOrCopy(ctx, "p1", false, DestinationInternal))

	pub, err := f.store.FetchPublished(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, pub, 1, "original published post untouched")
	assert.True(t, pub[0].Date.Equal(published.Date))

	sched, err := f.store.FetchScheduled(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, sched, 1)
	assert.True(t, sched[0].Date.Equal(target))
	assert.NotEqual(t, published.ID, sched[0].ID)
	assert.Equal(t, published.Text, sched[0].Text)
}

func TestConfirmMoveExternalSchedulesReplacement(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	scheduled := seedScheduled(t, f, "p1", date(2026, time.March, 5))
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	target := date(2026, time.March, 20)
	require.NoError(t, f.engine.BeginDrag("p1", KindPost, scheduled.ID))
	_, err := f.engine.DropOnDate("p1", target)
	require.NoError(t, err)

	require.NoError(t, f.engine.ConfirmMoveOrCopy(ctx, "p1", false, DestinationExternal))

	require.Len(t, f.platform.Submitted, 1)
	task := f.platform.Submitted[0]
	assert.Equal(t, scheduled.ID, task.ReplaceID, "move supersedes the original task")
	assert.True(t, task.Post.Date.Equal(target))
}

func TestConfirmWithoutPendingMove(t *testing.T) {
	f := newTestFixture(t)
	err := f.engine.ConfirmMoveOrCopy(context.Background(), "p1", true, DestinationInternal)
	assert.ErrorIs(t, err, ErrNoPendingMove)
}

func TestNoteMoveAndCopy(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	note, err := f.store.SaveNote(ctx, timeline.Note{Date: date(2026, time.March, 2), Text: "call sponsor"}, "p1")
	require.NoError(t, err)
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	target := date(2026, time.March, 6)
	require.NoError(t, f.engine.BeginDrag("p1", KindNote, note.ID))
	prompt, err := f.engine.DropOnDate("p1", target)
	require.NoError(t, err)
	require.NotNil(t, prompt)
	assert.False(t, prompt.CopyOnly)

	require.NoError(t, f.engine.ConfirmMoveOrCopy(ctx, "p1", true, DestinationInternal))

	notes, err := f.store.FetchNotes(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
}

func TestSelectionToggles(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	scheduled := seedScheduled(t, f, "p1", date(2026, time.March, 5))
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	assert.False(t, f.engine.ToggleItemSelected("p1", KindPost, scheduled.ID), "ignored outside selection mode")

	assert.Equal(t, ModeSelecting, f.engine.ToggleSelectionMode("p1"))
	assert.True(t, f.engine.ToggleItemSelected("p1", KindPost, scheduled.ID))
	assert.False(t, f.engine.ToggleItemSelected("p1", KindPost, scheduled.ID), "second toggle removes")
	assert.True(t, f.engine.ToggleItemSelected("p1", KindPost, scheduled.ID))

	posts, notes := f.engine.SelectedCounts("p1")
	assert.Equal(t, 1, posts)
	assert.Equal(t, 0, notes)

	assert.Equal(t, ModeIdle, f.engine.ToggleSelectionMode("p1"))
	posts, _ = f.engine.SelectedCounts("p1")
	assert.Equal(t, 0, posts, "leaving selection mode clears the sets")
}

func TestBulkDeleteToleratesPartialFailure(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, seedScheduled(t, f, "p1", date(2026, time.March, 5+i)).ID)
	}
	doomed := seedScheduled(t, f, "p1", date(2026, time.March, 9))
	doomedNote, err := f.store.SaveNote(ctx, timeline.Note{Date: date(2026, time.March, 9), Text: "x"}, "p1")
	require.NoError(t, err)
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	f.engine.ToggleSelectionMode("p1")
	for _, id := range ids {
		f.engine.ToggleItemSelected("p1", KindPost, id)
	}
	f.engine.ToggleItemSelected("p1", KindPost, doomed.ID)
	f.engine.ToggleItemSelected("p1", KindNote, doomedNote.ID)

	// Pull two items out from under the session: they still resolve locally
	// but the store deletions fail.
	require.NoError(t, f.store.DeletePost(ctx, doomed.ID, "p1"))
	require.NoError(t, f.store.DeleteNote(ctx, doomedNote.ID))

	result := f.engine.BulkDeleteSelected(ctx, "p1")
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, "3 succeeded / 2 failed", result.String())

	records, err := f.store.FetchScheduled(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, records)

	// One refresh ran regardless: session matches the store again, and the
	// selection state is gone.
	window := timeline.Window{From: date(2026, time.March, 1), To: date(2026, time.March, 31)}
	assert.Empty(t, f.engine.Timeline(ctx, "p1", window))
	posts, notes := f.engine.SelectedCounts("p1")
	assert.Zero(t, posts)
	assert.Zero(t, notes)
	assert.Equal(t, ModeIdle, f.engine.Mode("p1"))
}

func TestBulkDeleteSkipsUnresolvableIDs(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	scheduled := seedScheduled(t, f, "p1", date(2026, time.March, 5))
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	f.engine.ToggleSelectionMode("p1")
	f.engine.ToggleItemSelected("p1", KindPost, scheduled.ID)
	f.engine.ToggleItemSelected("p1", KindPost, "vanished")

	result := f.engine.BulkDeleteSelected(ctx, "p1")
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, result.Skipped)
}

func TestActivateViewInitialLoad(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	seedScheduled(t, f, "p1", date(2026, time.March, 5))

	require.NoError(t, f.engine.ActivateView(ctx, "p1"))

	assert.True(t, f.engine.Flags("p1").Loaded)
	window := timeline.Window{From: date(2026, time.March, 1), To: date(2026, time.March, 31)}
	assert.Len(t, f.engine.Timeline(ctx, "p1", window), 1)
}

func TestActivateViewDirtyTriggersResync(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	seedScheduled(t, f, "p1", date(2026, time.March, 5))
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	// An external change lands and the poller flags the project.
	seedScheduled(t, f, "p1", date(2026, time.March, 8))
	require.NoError(t, f.store.MarkProjectUpdated(ctx, "p1"))
	f.poller.Tick(ctx)

	require.NoError(t, f.engine.ActivateView(ctx, "p1"))

	window := timeline.Window{From: date(2026, time.March, 1), To: date(2026, time.March, 31)}
	assert.Len(t, f.engine.Timeline(ctx, "p1", window), 2)
	assert.False(t, f.poller.Dirty("p1"), "resync clears the dirty flag")
}

func TestActivateViewTargetedStaleness(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	seedScheduled(t, f, "p1", date(2026, time.March, 5))
	seedPublished(t, f, "p1", date(2026, time.March, 2))
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	// New rows land in both categories, but only scheduled is reported stale.
	seedScheduled(t, f, "p1", date(2026, time.March, 8))
	seedPublished(t, f, "p1", date(2026, time.March, 9))
	f.store.SetStaleness(remote.StalenessReport{StaleScheduledIDs: []string{"p1"}})

	require.NoError(t, f.engine.ActivateView(ctx, "p1"))

	window := timeline.Window{From: date(2026, time.March, 1), To: date(2026, time.March, 31)}
	posts := f.engine.Timeline(ctx, "p1", window)

	var scheduled, published int
	for _, p := range posts {
		switch p.Type {
		case timeline.PostTypeScheduled:
			scheduled++
		case timeline.PostTypePublished:
			published++
		}
	}
	assert.Equal(t, 2, scheduled, "stale category refetched")
	assert.Equal(t, 1, published, "clean category untouched")
}

func TestActivateViewCleanReportRefreshesNothing(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	seedScheduled(t, f, "p1", date(2026, time.March, 5))
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	seedScheduled(t, f, "p1", date(2026, time.March, 8))

	require.NoError(t, f.engine.ActivateView(ctx, "p1"))

	window := timeline.Window{From: date(2026, time.March, 1), To: date(2026, time.March, 31)}
	assert.Len(t, f.engine.Timeline(ctx, "p1", window), 1)
}

func TestSavePostRejectsEmptyContent(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	_, err := f.engine.SavePost(ctx, "p1", timeline.Post{
		Type: timeline.PostTypeScheduled,
		Date: date(2026, time.March, 5),
	}, false)
	assert.ErrorIs(t, err, timeline.ErrEmptyContent)

	records, err := f.store.FetchScheduled(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, records, "rejected post never reaches the store")
}

func TestPublishNowAwaitsTask(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	scheduled := seedScheduled(t, f, "p1", date(2026, time.March, 5))
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	f.platform.PollsUntilDone = 2
	require.NoError(t, f.engine.PublishNow(ctx, "p1", scheduled.ID))
	require.Len(t, f.platform.Submitted, 1)
	assert.True(t, f.platform.Submitted[0].Immediate)
}

func TestPublishNowFailedTask(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	scheduled := seedScheduled(t, f, "p1", date(2026, time.March, 5))
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	f.platform.FailTasks = true
	err := f.engine.PublishNow(ctx, "p1", scheduled.ID)
	assert.Error(t, err)
}

func TestRefreshProjectsCursorSkipsDuplicates(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	seedScheduled(t, f, "a", date(2026, time.March, 5))
	seedScheduled(t, f, "b", date(2026, time.March, 6))

	f.engine.RefreshProjects(ctx, []string{"a", "a", "b"})

	assert.True(t, f.engine.Flags("a").Loaded)
	assert.True(t, f.engine.Flags("b").Loaded)
}

func TestSubscribeReceivesTimelineEvents(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	seedScheduled(t, f, "p1", date(2026, time.March, 5))

	ch := f.engine.Subscribe()
	defer f.engine.Unsubscribe(ch)

	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	select {
	case ev := <-ch:
		assert.Equal(t, EventTimelineUpdated, ev.Type)
		assert.Equal(t, "p1", ev.ProjectID)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestTargetedRefreshAcknowledgesStaleness(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	seedScheduled(t, f, "p1", date(2026, time.March, 5))
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	seedScheduled(t, f, "p1", date(2026, time.March, 8))
	f.store.SetStaleness(remote.StalenessReport{StaleScheduledIDs: []string{"p1"}})

	require.NoError(t, f.engine.ActivateView(ctx, "p1"))

	report, err := f.store.StalenessReport(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.StaleScheduledIDs, "refetch acknowledges the flag")

	// A row that lands after the refetch, with no new staleness report,
	// must not show up on later activations.
	seedScheduled(t, f, "p1", date(2026, time.March, 9))
	require.NoError(t, f.engine.ActivateView(ctx, "p1"))

	window := timeline.Window{From: date(2026, time.March, 1), To: date(2026, time.March, 31)}
	assert.Len(t, f.engine.Timeline(ctx, "p1", window), 2)
}

func TestFullResyncAcknowledgesStaleness(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	seedScheduled(t, f, "p1", date(2026, time.March, 5))
	f.store.SetStaleness(remote.StalenessReport{
		StaleScheduledIDs: []string{"p1"},
		StalePublishedIDs: []string{"p1"},
	})

	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	report, err := f.store.StalenessReport(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.StaleScheduledIDs)
	assert.Empty(t, report.StalePublishedIDs)
}

func newCacheFixture(t *testing.T, cache *store.Cache) *testFixture {
	t.Helper()
	logger := zap.NewNop().Sugar()
	remoteStore := remotememory.NewStore()
	client := platformmock.NewClient()
	pollerConfig := staleness.DefaultPollerConfig()
	pollerConfig.SuppressionWindow = 0
	poller := staleness.NewPoller(remoteStore, logger, nil, pollerConfig)
	config := DefaultConfig()
	config.TaskPollInterval = time.Millisecond
	eng := New(remoteStore, client, cache, poller, logger, nil, config)
	return &testFixture{engine: eng, store: remoteStore, platform: client, poller: poller}
}

func TestInitialLoadServedFromSnapshotCache(t *testing.T) {
	ctx := context.Background()
	cache, err := store.NewCache("invalid:6379", zap.NewNop().Sugar(), nil)
	require.NoError(t, err)
	require.True(t, cache.IsInMemoryMode())
	defer cache.Close()

	warm := newCacheFixture(t, cache)
	seedScheduled(t, warm, "p1", date(2026, time.March, 5))
	require.NoError(t, warm.engine.RefreshAll(ctx, "p1"))

	// A second process with an unreachable remote still serves the first
	// view from the warm snapshots.
	cold := newCacheFixture(t, cache)
	cold.store.DenyProject("p1")
	require.NoError(t, cold.engine.ActivateView(ctx, "p1"))

	window := timeline.Window{From: date(2026, time.March, 1), To: date(2026, time.March, 31)}
	posts := cold.engine.Timeline(ctx, "p1", window)
	require.Len(t, posts, 1)
	assert.True(t, posts[0].Date.Equal(date(2026, time.March, 5)))
	assert.True(t, cold.engine.Flags("p1").Loaded)
}

func TestMutationDropsCachedSnapshots(t *testing.T) {
	ctx := context.Background()
	cache, err := store.NewCache("invalid:6379", zap.NewNop().Sugar(), nil)
	require.NoError(t, err)
	defer cache.Close()

	f := newCacheFixture(t, cache)
	seedPublished(t, f, "p1", date(2026, time.March, 2))
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	var cached []timeline.Post
	require.NoError(t, cache.GetSnapshot(ctx, "p1", string(CategoryPublished), &cached))

	_, err = f.engine.SavePost(ctx, "p1", timeline.Post{
		Type: timeline.PostTypeScheduled,
		Date: date(2026, time.March, 7),
		Text: "fresh",
	}, false)
	require.NoError(t, err)

	// Only the mutated category is rewritten, so the published snapshot
	// stays cold until the next full resync.
	err = cache.GetSnapshot(ctx, "p1", string(CategoryPublished), &cached)
	assert.ErrorIs(t, err, store.ErrCacheMiss)
}

func TestConfirmFailureKeepsPrompt(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	scheduled := seedScheduled(t, f, "p1", date(2026, time.March, 5))
	require.NoError(t, f.engine.RefreshAll(ctx, "p1"))

	target := date(2026, time.March, 20)
	require.NoError(t, f.engine.BeginDrag("p1", KindPost, scheduled.ID))
	_, err := f.engine.DropOnDate("p1", target)
	require.NoError(t, err)

	f.platform.FailTasks = true
	err = f.engine.ConfirmMoveOrCopy(ctx, "p1", false, DestinationExternal)
	require.Error(t, err)
	assert.NotNil(t, f.engine.PendingMove("p1"), "failed confirm keeps the prompt pending")

	// A retry needs only another confirm, not a redone drag.
	f.platform.FailTasks = false
	require.NoError(t, f.engine.ConfirmMoveOrCopy(ctx, "p1", false, DestinationExternal))
	assert.Nil(t, f.engine.PendingMove("p1"))
}
