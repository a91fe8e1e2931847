// Package memory holds an in-memory remote.Store used when no Postgres DSN
// is configured and throughout the engine tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/postline/postline-backend/internal/remote"
	"github.com/postline/postline-backend/internal/timeline"
)

type Store struct {
	mu sync.RWMutex

	published map[string][]timeline.PublishedRecord // projectID -> records
	scheduled map[string][]timeline.ScheduledRecord
	system    map[string][]timeline.SystemRecord
	notes     map[string][]timeline.Note

	updated   map[string]struct{}
	staleness remote.StalenessReport

	denied map[string]struct{} // projects returning permission errors
}

var _ remote.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		published: make(map[string][]timeline.PublishedRecord),
		scheduled: make(map[string][]timeline.ScheduledRecord),
		system:    make(map[string][]timeline.SystemRecord),
		notes:     make(map[string][]timeline.Note),
		updated:   make(map[string]struct{}),
		denied:    make(map[string]struct{}),
	}
}

func (s *Store) FetchPublished(ctx context.Context, projectID string) ([]timeline.PublishedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, denied := s.denied[projectID]; denied {
		return nil, remote.ErrPermissionDenied
	}
	return append([]timeline.PublishedRecord(nil), s.published[projectID]...), nil
}

func (s *Store) FetchScheduled(ctx context.Context, projectID string) ([]timeline.ScheduledRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, denied := s.denied[projectID]; denied {
		return nil, remote.ErrPermissionDenied
	}
	return append([]timeline.ScheduledRecord(nil), s.scheduled[projectID]...), nil
}

func (s *Store) FetchSystemPosts(ctx context.Context, projectIDs []string) ([]timeline.SystemRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []timeline.SystemRecord
	for _, id := range projectIDs {
		if _, denied := s.denied[id]; denied {
			return nil, remote.ErrPermissionDenied
		}
		out = append(out, s.system[id]...)
	}
	return out, nil
}

func (s *Store) FetchNotes(ctx context.Context, projectID string) ([]timeline.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]timeline.Note(nil), s.notes[projectID]...), nil
}

func (s *Store) SavePost(ctx context.Context, post timeline.Post, projectID string) (timeline.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if post.IsNew() || post.ID == "" {
		post.ID = uuid.NewString()
		post.CreatedAt = time.Now()
	}
	post.ProjectID = projectID
	post.UpdatedAt = time.Now()

	switch post.Type {
	case timeline.PostTypePublished:
		s.published[projectID] = upsertPublished(s.published[projectID], post)
	case timeline.PostTypeScheduled:
		s.scheduled[projectID] = upsertScheduled(s.scheduled[projectID], post)
	case timeline.PostTypeSystem:
		s.system[projectID] = upsertSystem(s.system[projectID], post)
	}
	return post, nil
}

func (s *Store) DeletePost(ctx context.Context, postID, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.published[projectID] {
		if r.ID == postID {
			s.published[projectID] = append(s.published[projectID][:i], s.published[projectID][i+1:]...)
			return nil
		}
	}
	for i, r := range s.scheduled[projectID] {
		if r.ID == postID {
			s.scheduled[projectID] = append(s.scheduled[projectID][:i], s.scheduled[projectID][i+1:]...)
			return nil
		}
	}
	for i, r := range s.system[projectID] {
		if r.ID == postID {
			s.system[projectID] = append(s.system[projectID][:i], s.system[projectID][i+1:]...)
			return nil
		}
	}
	return remote.ErrNotFound
}

func (s *Store) SaveNote(ctx context.Context, note timeline.Note, projectID string) (timeline.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if note.ID == "" {
		note.ID = uuid.NewString()
		note.CreatedAt = time.Now()
	}
	note.ProjectID = projectID
	note.UpdatedAt = time.Now()

	notes := s.notes[projectID]
	for i, n := range notes {
		if n.ID == note.ID {
			notes[i] = note
			return note, nil
		}
	}
	s.notes[projectID] = append(notes, note)
	return note, nil
}

func (s *Store) DeleteNote(ctx context.Context, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for projectID, notes := range s.notes {
		for i, n := range notes {
			if n.ID == noteID {
				s.notes[projectID] = append(notes[:i], notes[i+1:]...)
				return nil
			}
		}
	}
	return remote.ErrNotFound
}

func (s *Store) UpdatedProjectIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.updated))
	for id := range s.updated {
		ids = append(ids, id)
	}
	s.updated = make(map[string]struct{})
	return ids, nil
}

func (s *Store) StalenessReport(ctx context.Context) (remote.StalenessReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staleness, nil
}

func (s *Store) MarkProjectUpdated(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated[projectID] = struct{}{}
	return nil
}

func (s *Store) ClearStaleness(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleness.StalePublishedIDs = without(s.staleness.StalePublishedIDs, projectID)
	s.staleness.StaleScheduledIDs = without(s.staleness.StaleScheduledIDs, projectID)
	s.staleness.StaleSuggestedIDs = without(s.staleness.StaleSuggestedIDs, projectID)
	return nil
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// SetStaleness replaces the staleness report; test helper.
func (s *Store) SetStaleness(report remote.StalenessReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleness = report
}

// DenyProject makes fetches for the project fail with ErrPermissionDenied;
// test helper.
func (s *Store) DenyProject(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied[projectID] = struct{}{}
}

// AllowProject clears a previous DenyProject.
func (s *Store) AllowProject(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.denied, projectID)
}

func upsertPublished(records []timeline.PublishedRecord, p timeline.Post) []timeline.PublishedRecord {
	r := timeline.PublishedRecord{
		ID: p.ID, ProjectID: p.ProjectID, Date: p.Date,
		Text: p.Text, Images: p.Images, Attachments: p.Attachments,
		CreatedAt: p.CreatedAt,
	}
	for i, existing := range records {
		if existing.ID == r.ID {
			records[i] = r
			return records
		}
	}
	return append(records, r)
}

func upsertScheduled(records []timeline.ScheduledRecord, p timeline.Post) []timeline.ScheduledRecord {
	r := timeline.ScheduledRecord{
		ID: p.ID, ProjectID: p.ProjectID, Date: p.Date,
		Text: p.Text, Images: p.Images, Attachments: p.Attachments,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
	for i, existing := range records {
		if existing.ID == r.ID {
			records[i] = r
			return records
		}
	}
	return append(records, r)
}

func upsertSystem(records []timeline.SystemRecord, p timeline.Post) []timeline.SystemRecord {
	r := timeline.SystemRecord{
		ID: p.ID, ProjectID: p.ProjectID, PublicationDate: p.Date,
		Text: p.Text, Images: p.Images, Attachments: p.Attachments,
		Status: p.Status, IsActive: p.IsActive, AutomationKind: p.AutomationKind,
		IsCyclic: p.IsCyclic, Recurrence: p.Recurrence,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
	for i, existing := range records {
		if existing.ID == r.ID {
			records[i] = r
			return records
		}
	}
	return append(records, r)
}
