package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/postline/postline-backend/internal/remote"
	"github.com/postline/postline-backend/internal/timeline"
)

// fetchCategory pulls one category from the remote store and installs it into
// the session. A permission failure is not an error to the caller; it raises
// the suppression flag instead, which stands until an explicit refresh.
func (e *Engine) fetchCategory(ctx context.Context, projectID string, category Category) error {
	e.mu.Lock()
	s := e.sessionLocked(projectID)
	s.Loading[category] = true
	e.mu.Unlock()

	var (
		posts []timeline.Post
		notes []timeline.Note
		err   error
	)
	switch category {
	case CategoryPublished:
		var records []timeline.PublishedRecord
		records, err = e.remote.FetchPublished(ctx, projectID)
		posts = timeline.NormalizePublished(records)
	case CategoryScheduled:
		var records []timeline.ScheduledRecord
		records, err = e.remote.FetchScheduled(ctx, projectID)
		posts = timeline.NormalizeScheduled(records)
	case CategorySystem:
		var records []timeline.SystemRecord
		records, err = e.remote.FetchSystemPosts(ctx, []string{projectID})
		posts = timeline.NormalizeSystem(records)
	case CategoryNotes:
		notes, err = e.remote.FetchNotes(ctx, projectID)
	default:
		err = fmt.Errorf("unknown category %q", category)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s = e.sessionLocked(projectID)
	s.Loading[category] = false

	if errors.Is(err, remote.ErrPermissionDenied) {
		s.PermissionDenied = true
		delete(s.Errors, category)
		e.logger.Warnw("Refresh suppressed: permission denied", "project", projectID, "category", category)
		return nil
	}
	if err != nil {
		s.Errors[category] = err.Error()
		return fmt.Errorf("fetch %s: %w", category, err)
	}
	delete(s.Errors, category)

	switch category {
	case CategoryPublished:
		s.Published = posts
	case CategoryScheduled:
		s.Scheduled = posts
	case CategorySystem:
		s.System = posts
	case CategoryNotes:
		s.Notes = notes
	}

	if e.metrics != nil {
		e.metrics.RecordRefresh(ctx, string(category))
	}
	if e.cache != nil {
		var cacheErr error
		if category == CategoryNotes {
			cacheErr = e.cache.SetNotes(ctx, projectID, notes, e.config.SnapshotTTL)
		} else {
			cacheErr = e.cache.SetSnapshot(ctx, projectID, string(category), posts, e.config.SnapshotTTL)
		}
		if cacheErr != nil {
			e.logger.Warnw("Snapshot cache write failed", "project", projectID, "category", category, "error", cacheErr)
		}
	}
	return nil
}

// RefreshCategory refetches a single category.
func (e *Engine) RefreshCategory(ctx context.Context, projectID string, category Category) error {
	if err := e.fetchCategory(ctx, projectID, category); err != nil {
		e.publish(ctx, Event{Type: EventRefreshFailed, ProjectID: projectID})
		return err
	}
	e.publish(ctx, Event{Type: EventTimelineUpdated, ProjectID: projectID})
	if category == CategoryNotes {
		e.publish(ctx, Event{Type: EventNotesUpdated, ProjectID: projectID})
	}
	return nil
}

// RefreshAll refetches every category for a project. At most one full refresh
// runs per project at a time; an overlapping call returns ErrRefreshInFlight
// instead of queueing. An explicit refresh clears the suppression flags
// first, so a fixed permission or newly present data is picked up again.
func (e *Engine) RefreshAll(ctx context.Context, projectID string) error {
	e.mu.Lock()
	s := e.sessionLocked(projectID)
	if s.refreshing {
		e.mu.Unlock()
		return ErrRefreshInFlight
	}
	s.refreshing = true
	s.PermissionDenied = false
	s.EmptyDataNotice = false
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		s := e.sessionLocked(projectID)
		s.refreshing = false
		e.mu.Unlock()
	}()

	var failures []error
	for _, category := range Categories {
		if err := e.fetchCategory(ctx, projectID, category); err != nil {
			failures = append(failures, err)
		}
	}

	e.mu.Lock()
	s = e.sessionLocked(projectID)
	if len(failures) == 0 {
		s.Loaded = true
		if len(s.Published) == 0 && len(s.Scheduled) == 0 && len(s.System) == 0 && len(s.Notes) == 0 {
			s.EmptyDataNotice = true
		}
	}
	e.mu.Unlock()

	e.poller.MarkSelfRefreshed(projectID)
	e.poller.ClearDirty(projectID)

	if len(failures) > 0 {
		e.publish(ctx, Event{Type: EventRefreshFailed, ProjectID: projectID})
		return errors.Join(failures...)
	}
	// A full resync supersedes any pending per-category staleness.
	if err := e.remote.ClearStaleness(ctx, projectID); err != nil {
		e.logger.Warnw("Staleness acknowledgment failed", "project", projectID, "error", err)
	}
	e.publish(ctx, Event{Type: EventTimelineUpdated, ProjectID: projectID})
	e.publish(ctx, Event{Type: EventNotesUpdated, ProjectID: projectID})
	return nil
}

// hydrateFromSnapshots serves an initial load from warm cached snapshots.
// All four categories must be present; a partial cache falls through to the
// full remote fetch.
func (e *Engine) hydrateFromSnapshots(ctx context.Context, projectID string) bool {
	if e.cache == nil {
		return false
	}

	var published, scheduled, system []timeline.Post
	var notes []timeline.Note
	if err := e.cache.GetSnapshot(ctx, projectID, string(CategoryPublished), &published); err != nil {
		return false
	}
	if err := e.cache.GetSnapshot(ctx, projectID, string(CategoryScheduled), &scheduled); err != nil {
		return false
	}
	if err := e.cache.GetSnapshot(ctx, projectID, string(CategorySystem), &system); err != nil {
		return false
	}
	if err := e.cache.GetNotes(ctx, projectID, &notes); err != nil {
		return false
	}

	e.mu.Lock()
	s := e.sessionLocked(projectID)
	s.Published = published
	s.Scheduled = scheduled
	s.System = system
	s.Notes = notes
	s.Loaded = true
	e.mu.Unlock()

	e.logger.Infow("Initial load served from snapshot cache", "project", projectID)
	e.publish(ctx, Event{Type: EventTimelineUpdated, ProjectID: projectID})
	e.publish(ctx, Event{Type: EventNotesUpdated, ProjectID: projectID})
	return true
}

// invalidateSnapshots drops a project's cached snapshots after a mutation, so
// a refresh failure never leaves a stale snapshot to hydrate from.
func (e *Engine) invalidateSnapshots(ctx context.Context, projectID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidateProject(ctx, projectID); err != nil {
		e.logger.Warnw("Snapshot invalidation failed", "project", projectID, "error", err)
	}
}

// ActivateView is the smart refresh run when a project's view gains focus.
// Decision ladder:
//  1. a standing suppression flag skips the refresh entirely,
//  2. a project that never completed an initial load gets a full fetch,
//     served from warm cached snapshots when all of them are present,
//  3. a project the poller marked dirty gets a full resync,
//  4. otherwise only the categories the staleness report flags are
//     refetched; a clean report refreshes nothing.
func (e *Engine) ActivateView(ctx context.Context, projectID string) error {
	e.mu.RLock()
	s, ok := e.sessions[projectID]
	var suppressed, loaded bool
	if ok {
		suppressed = s.PermissionDenied || s.EmptyDataNotice
		loaded = s.Loaded
	}
	e.mu.RUnlock()

	if suppressed {
		e.logger.Infow("View activation: refresh suppressed", "project", projectID)
		return nil
	}
	if !loaded {
		// A project flagged dirty goes to the remote store even when warm
		// snapshots exist; they predate the external change.
		if !e.poller.Dirty(projectID) && e.hydrateFromSnapshots(ctx, projectID) {
			return nil
		}
		err := e.RefreshAll(ctx, projectID)
		if errors.Is(err, ErrRefreshInFlight) {
			return nil
		}
		return err
	}
	if e.poller.Dirty(projectID) {
		e.logger.Infow("View activation: project dirty, full resync", "project", projectID)
		err := e.RefreshAll(ctx, projectID)
		if errors.Is(err, ErrRefreshInFlight) {
			return nil
		}
		return err
	}

	report, err := e.remote.StalenessReport(ctx)
	if err != nil {
		return fmt.Errorf("staleness report: %w", err)
	}

	var stale []Category
	if report.PublishedStale(projectID) {
		stale = append(stale, CategoryPublished)
	}
	if report.ScheduledStale(projectID) {
		stale = append(stale, CategoryScheduled)
	}
	if report.SuggestedStale(projectID) {
		stale = append(stale, CategorySystem)
	}
	if len(stale) == 0 {
		return nil
	}

	e.logger.Infow("View activation: targeted refresh", "project", projectID, "categories", stale)
	var failures []error
	for _, category := range stale {
		if err := e.RefreshCategory(ctx, projectID, category); err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	// Acknowledge what was just refetched; without this every later
	// activation would refetch the same categories again.
	if err := e.remote.ClearStaleness(ctx, projectID); err != nil {
		e.logger.Warnw("Staleness acknowledgment failed", "project", projectID, "error", err)
	}
	return nil
}

// RefreshProjects walks a list of projects flagged by the poller and resyncs
// each in turn. The cursor keeps a project from being resynced twice when
// overlapping ticks hand over the same tail of the list.
func (e *Engine) RefreshProjects(ctx context.Context, projectIDs []string) {
	for _, id := range projectIDs {
		e.mu.Lock()
		if id == e.lastProcessedID {
			e.mu.Unlock()
			continue
		}
		e.lastProcessedID = id
		e.mu.Unlock()

		if err := e.RefreshAll(ctx, id); err != nil && !errors.Is(err, ErrRefreshInFlight) {
			e.logger.Warnw("Mass refresh: project resync failed", "project", id, "error", err)
		}
	}

	e.mu.Lock()
	e.lastProcessedID = ""
	e.mu.Unlock()
}
