package remote

import (
	"context"
	"errors"

	"github.com/postline/postline-backend/internal/timeline"
)

// Store is the source of truth the engine reconciles against. The production
// implementation lives in internal/repository; an in-memory one in
// remote/memory backs tests and DSN-less dev runs.
type Store interface {
	FetchPublished(ctx context.Context, projectID string) ([]timeline.PublishedRecord, error)
	FetchScheduled(ctx context.Context, projectID string) ([]timeline.ScheduledRecord, error)
	FetchSystemPosts(ctx context.Context, projectIDs []string) ([]timeline.SystemRecord, error)
	FetchNotes(ctx context.Context, projectID string) ([]timeline.Note, error)

	SavePost(ctx context.Context, post timeline.Post, projectID string) (timeline.Post, error)
	DeletePost(ctx context.Context, postID, projectID string) error
	SaveNote(ctx context.Context, note timeline.Note, projectID string) (timeline.Note, error)
	DeleteNote(ctx context.Context, noteID string) error

	// UpdatedProjectIDs reports which projects changed since the previous
	// call; the staleness poller drains it on every tick.
	UpdatedProjectIDs(ctx context.Context) ([]string, error)
	// StalenessReport is the lightweight per-category check behind smart
	// refresh.
	StalenessReport(ctx context.Context) (StalenessReport, error)
	// MarkProjectUpdated records an external change, feeding both signals
	// above.
	MarkProjectUpdated(ctx context.Context, projectID string) error
	// ClearStaleness acknowledges a project's staleness flags once the stale
	// categories were refetched, so the next report comes back clean.
	ClearStaleness(ctx context.Context, projectID string) error
}

// StalenessReport lists the projects whose cached sub-resources no longer
// match the store, one id set per refresh category.
type StalenessReport struct {
	StaleScheduledIDs []string `json:"stale_scheduled_ids"`
	StalePublishedIDs []string `json:"stale_published_ids"`
	StaleSuggestedIDs []string `json:"stale_suggested_ids"`
}

// ScheduledStale reports whether the report flags the project's scheduled
// posts.
func (r StalenessReport) ScheduledStale(projectID string) bool {
	return contains(r.StaleScheduledIDs, projectID)
}

func (r StalenessReport) PublishedStale(projectID string) bool {
	return contains(r.StalePublishedIDs, projectID)
}

func (r StalenessReport) SuggestedStale(projectID string) bool {
	return contains(r.StaleSuggestedIDs, projectID)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound is returned for ids that do not resolve.
	ErrNotFound = errors.New("remote: not found")
	// ErrPermissionDenied marks a project the caller may not read; the
	// engine converts it into a refresh-suppression flag, not a failure.
	ErrPermissionDenied = errors.New("remote: permission denied")
)
