package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postline/postline-backend/internal/platform"
	"github.com/postline/postline-backend/internal/timeline"
)

// Destination selects where a scheduled post materializes: the internal
// system's plain save path, or the external publishing platform via an
// asynchronous scheduling task.
type Destination string

const (
	DestinationInternal Destination = "internal"
	DestinationExternal Destination = "external"
)

// SavePost validates and persists a post, then refreshes its category.
// Validation failures never reach the remote store.
func (e *Engine) SavePost(ctx context.Context, projectID string, post timeline.Post, scheduleExternally bool) (timeline.Post, error) {
	if err := post.Validate(); err != nil {
		return timeline.Post{}, err
	}

	saved, err := e.remote.SavePost(ctx, post, projectID)
	if err != nil {
		return timeline.Post{}, fmt.Errorf("save post: %w", err)
	}

	if scheduleExternally {
		handle, err := e.platform.SchedulePost(ctx, saved, projectID, "")
		if err != nil {
			return saved, fmt.Errorf("schedule post externally: %w", err)
		}
		if _, err := platform.AwaitTask(ctx, e.platform, handle, e.config.TaskPollInterval); err != nil {
			return saved, fmt.Errorf("await external schedule: %w", err)
		}
	}

	e.invalidateSnapshots(ctx, projectID)
	e.poller.MarkSelfRefreshed(projectID)
	category := CategoryScheduled
	switch saved.Type {
	case timeline.PostTypePublished:
		category = CategoryPublished
	case timeline.PostTypeSystem:
		category = CategorySystem
	}
	if err := e.RefreshCategory(ctx, projectID, category); err != nil {
		e.logger.Warnw("Post-save refresh failed", "project", projectID, "error", err)
	}
	return saved, nil
}

// DeletePost removes a post and refreshes the dataset.
func (e *Engine) DeletePost(ctx context.Context, projectID, postID string) error {
	if err := e.remote.DeletePost(ctx, postID, projectID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	e.invalidateSnapshots(ctx, projectID)
	e.poller.MarkSelfRefreshed(projectID)
	if err := e.RefreshAll(ctx, projectID); err != nil && !errors.Is(err, ErrRefreshInFlight) {
		e.logger.Warnw("Post-delete refresh failed", "project", projectID, "error", err)
	}
	return nil
}

// SaveNote persists a calendar note.
func (e *Engine) SaveNote(ctx context.Context, projectID string, note timeline.Note) (timeline.Note, error) {
	saved, err := e.remote.SaveNote(ctx, note, projectID)
	if err != nil {
		return timeline.Note{}, fmt.Errorf("save note: %w", err)
	}
	e.invalidateSnapshots(ctx, projectID)
	e.poller.MarkSelfRefreshed(projectID)
	if err := e.RefreshCategory(ctx, projectID, CategoryNotes); err != nil {
		e.logger.Warnw("Post-save notes refresh failed", "project", projectID, "error", err)
	}
	return saved, nil
}

// DeleteNote removes a note.
func (e *Engine) DeleteNote(ctx context.Context, projectID, noteID string) error {
	if err := e.remote.DeleteNote(ctx, noteID); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	e.invalidateSnapshots(ctx, projectID)
	e.poller.MarkSelfRefreshed(projectID)
	if err := e.RefreshCategory(ctx, projectID, CategoryNotes); err != nil {
		e.logger.Warnw("Post-delete notes refresh failed", "project", projectID, "error", err)
	}
	return nil
}

// PublishNow submits a post for immediate publication and waits for the
// platform task to reach a terminal state.
func (e *Engine) PublishNow(ctx context.Context, projectID, postID string) error {
	e.mu.RLock()
	s, ok := e.sessions[projectID]
	var post timeline.Post
	var found bool
	if ok {
		post, found = s.findPost(postID)
	}
	e.mu.RUnlock()
	if !found {
		return ErrUnknownItem
	}

	handle, err := e.platform.PublishNow(ctx, post, projectID)
	if err != nil {
		return fmt.Errorf("publish now: %w", err)
	}
	if _, err := platform.AwaitTask(ctx, e.platform, handle, e.config.TaskPollInterval); err != nil {
		return fmt.Errorf("await publish: %w", err)
	}

	e.invalidateSnapshots(ctx, projectID)
	e.poller.MarkSelfRefreshed(projectID)
	if err := e.RefreshAll(ctx, projectID); err != nil && !errors.Is(err, ErrRefreshInFlight) {
		e.logger.Warnw("Post-publish refresh failed", "project", projectID, "error", err)
	}
	return nil
}

// ConfirmMoveOrCopy resolves the pending confirmation from the last drop.
// The full dataset is refreshed afterwards no matter how the operation went:
// move or copy, internal or external, success or failure. The prompt is
// consumed only on success; after a failure it stays pending so a retry is
// one confirm away instead of a redone drag.
func (e *Engine) ConfirmMoveOrCopy(ctx context.Context, projectID string, isCopy bool, dest Destination) error {
	e.mu.RLock()
	var prompt *MovePrompt
	if s, ok := e.sessions[projectID]; ok && s.interaction.prompt != nil {
		p := *s.interaction.prompt
		prompt = &p
	}
	e.mu.RUnlock()

	if prompt == nil {
		return ErrNoPendingMove
	}
	if prompt.CopyOnly {
		// The original is immutable/locked; a move was never on offer.
		isCopy = true
	}

	defer func() {
		e.invalidateSnapshots(ctx, projectID)
		e.poller.MarkSelfRefreshed(projectID)
		if err := e.RefreshAll(ctx, projectID); err != nil && !errors.Is(err, ErrRefreshInFlight) {
			e.logger.Warnw("Post-resolution refresh failed", "project", projectID, "error", err)
		}
	}()

	var err error
	if prompt.Kind == KindNote {
		err = e.resolveNoteMove(ctx, projectID, prompt, isCopy)
	} else {
		err = e.resolvePostMove(ctx, projectID, prompt, isCopy, dest)
	}
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.sessionLocked(projectID).interaction.prompt = nil
	e.mu.Unlock()
	return nil
}

func (e *Engine) resolveNoteMove(ctx context.Context, projectID string, prompt *MovePrompt, isCopy bool) error {
	e.mu.RLock()
	s, ok := e.sessions[projectID]
	var note timeline.Note
	var found bool
	if ok {
		note, found = s.findNote(prompt.ItemID)
	}
	e.mu.RUnlock()
	if !found {
		return ErrUnknownItem
	}

	if isCopy {
		note.ID = ""
		note.CreatedAt = time.Time{}
	}
	note.Date = prompt.TargetDate
	if _, err := e.remote.SaveNote(ctx, note, projectID); err != nil {
		return fmt.Errorf("resolve note move: %w", err)
	}
	return nil
}

func (e *Engine) resolvePostMove(ctx context.Context, projectID string, prompt *MovePrompt, isCopy bool, dest Destination) error {
	e.mu.RLock()
	s, ok := e.sessions[projectID]
	var post timeline.Post
	var found bool
	if ok {
		post, found = s.findPost(prompt.ItemID)
	}
	e.mu.RUnlock()
	if !found {
		return ErrUnknownItem
	}

	replaceID := ""
	if isCopy {
		original := post
		post.ID = timeline.NewTempID()
		post.CreatedAt = time.Time{}
		post.UpdatedAt = time.Time{}
		// A copy of an already-published or locked post re-enters the
		// pipeline as a scheduled post; it is a new independent item.
		if original.Type == timeline.PostTypePublished ||
			(original.Type == timeline.PostTypeSystem && original.Status == timeline.StatusPublishing) {
			post.Type = timeline.PostTypeScheduled
			post.Status = timeline.StatusPending
			post.Recurrence = nil
			post.IsCyclic = false
		}
	} else {
		replaceID = post.ID
	}
	post.Date = prompt.TargetDate

	saved, err := e.remote.SavePost(ctx, post, projectID)
	if err != nil {
		return fmt.Errorf("resolve post move: %w", err)
	}

	if dest == DestinationExternal {
		handle, err := e.platform.SchedulePost(ctx, saved, projectID, replaceID)
		if err != nil {
			return fmt.Errorf("schedule moved post externally: %w", err)
		}
		if _, err := platform.AwaitTask(ctx, e.platform, handle, e.config.TaskPollInterval); err != nil {
			return fmt.Errorf("await external schedule: %w", err)
		}
	}
	return nil
}

// BulkDeleteResult tallies a bulk delete across both id sets.
type BulkDeleteResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (r BulkDeleteResult) String() string {
	return fmt.Sprintf("%d succeeded / %d failed", r.Succeeded, r.Failed)
}

// BulkDeleteSelected deletes every currently selected post and note. Ids that
// no longer resolve against the live collections are skipped silently; each
// deletion is issued independently, so partial failure never aborts the rest.
// Exactly one full refresh runs afterwards regardless of the outcome.
func (e *Engine) BulkDeleteSelected(ctx context.Context, projectID string) BulkDeleteResult {
	e.mu.Lock()
	s := e.sessionLocked(projectID)
	postIDs := make([]string, 0, len(s.interaction.selectedPosts))
	for id := range s.interaction.selectedPosts {
		postIDs = append(postIDs, id)
	}
	noteIDs := make([]string, 0, len(s.interaction.selectedNotes))
	for id := range s.interaction.selectedNotes {
		noteIDs = append(noteIDs, id)
	}

	var result BulkDeleteResult
	resolvedPosts := make([]string, 0, len(postIDs))
	for _, id := range postIDs {
		if _, ok := s.findPost(id); ok {
			resolvedPosts = append(resolvedPosts, id)
		} else {
			result.Skipped++
		}
	}
	resolvedNotes := make([]string, 0, len(noteIDs))
	for _, id := range noteIDs {
		if _, ok := s.findNote(id); ok {
			resolvedNotes = append(resolvedNotes, id)
		} else {
			result.Skipped++
		}
	}

	s.interaction.selectedPosts = nil
	s.interaction.selectedNotes = nil
	if s.interaction.mode == ModeSelecting {
		s.interaction.mode = ModeIdle
	}
	e.mu.Unlock()

	for _, id := range resolvedPosts {
		if err := e.remote.DeletePost(ctx, id, projectID); err != nil {
			e.logger.Warnw("Bulk delete: post deletion failed", "project", projectID, "post", id, "error", err)
			result.Failed++
			continue
		}
		result.Succeeded++
	}
	for _, id := range resolvedNotes {
		if err := e.remote.DeleteNote(ctx, id); err != nil {
			e.logger.Warnw("Bulk delete: note deletion failed", "project", projectID, "note", id, "error", err)
			result.Failed++
			continue
		}
		result.Succeeded++
	}

	e.logger.Infow("Bulk delete completed", "project", projectID, "result", result.String(), "skipped", result.Skipped)

	e.invalidateSnapshots(ctx, projectID)
	e.poller.MarkSelfRefreshed(projectID)
	if err := e.RefreshAll(ctx, projectID); err != nil && !errors.Is(err, ErrRefreshInFlight) {
		e.logger.Warnw("Post-bulk-delete refresh failed", "project", projectID, "error", err)
	}
	return result
}
