package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postline/postline-backend/internal/remote"
	"github.com/postline/postline-backend/internal/timeline"
)

// Repository is the Postgres-backed source of truth for all three post
// collections, notes, and the project-update feed the staleness poller
// drains.
type Repository struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

var _ remote.Store = (*Repository)(nil)

func NewRepository(db *sql.DB, logger *zap.SugaredLogger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Published posts

func (r *Repository) FetchPublished(ctx context.Context, projectID string) ([]timeline.PublishedRecord, error) {
	query := `
		SELECT id, project_id, date, text, images, attachments, platform_ref, created_at
		FROM published_posts
		WHERE project_id = $1
		ORDER BY date
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query published posts: %w", err)
	}
	defer rows.Close()

	var records []timeline.PublishedRecord
	for rows.Next() {
		var rec timeline.PublishedRecord
		var images, attachments []byte
		err := rows.Scan(
			&rec.ID,
			&rec.ProjectID,
			&rec.Date,
			&rec.Text,
			&images,
			&attachments,
			&rec.PlatformRef,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan published post: %w", err)
		}
		if err := unmarshalStrings(images, &rec.Images); err != nil {
			return nil, fmt.Errorf("failed to unmarshal images: %w", err)
		}
		if err := unmarshalStrings(attachments, &rec.Attachments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// Scheduled posts

func (r *Repository) FetchScheduled(ctx context.Context, projectID string) ([]timeline.ScheduledRecord, error) {
	query := `
		SELECT id, project_id, date, text, images, attachments, created_at, updated_at
		FROM scheduled_posts
		WHERE project_id = $1
		ORDER BY date
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled posts: %w", err)
	}
	defer rows.Close()

	var records []timeline.ScheduledRecord
	for rows.Next() {
		var rec timeline.ScheduledRecord
		var images, attachments []byte
		err := rows.Scan(
			&rec.ID,
			&rec.ProjectID,
			&rec.Date,
			&rec.Text,
			&images,
			&attachments,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled post: %w", err)
		}
		if err := unmarshalStrings(images, &rec.Images); err != nil {
			return nil, fmt.Errorf("failed to unmarshal images: %w", err)
		}
		if err := unmarshalStrings(attachments, &rec.Attachments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// System posts; one query serves multiple projects because the automation
// views fetch them together.

func (r *Repository) FetchSystemPosts(ctx context.Context, projectIDs []string) ([]timeline.SystemRecord, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, project_id, publication_date, text, images, attachments,
		       status, is_active, automation_kind, is_cyclic, recurrence,
		       created_at, updated_at
		FROM system_posts
		WHERE project_id = ANY($1)
		ORDER BY publication_date
	`

	rows, err := r.db.QueryContext(ctx, query, projectIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query system posts: %w", err)
	}
	defer rows.Close()

	var records []timeline.SystemRecord
	for rows.Next() {
		var rec timeline.SystemRecord
		var images, attachments, recurrence []byte
		err := rows.Scan(
			&rec.ID,
			&rec.ProjectID,
			&rec.PublicationDate,
			&rec.Text,
			&images,
			&attachments,
			&rec.Status,
			&rec.IsActive,
			&rec.AutomationKind,
			&rec.IsCyclic,
			&recurrence,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan system post: %w", err)
		}
		if err := unmarshalStrings(images, &rec.Images); err != nil {
			return nil, fmt.Errorf("failed to unmarshal images: %w", err)
		}
		if err := unmarshalStrings(attachments, &rec.Attachments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
		if len(recurrence) > 0 {
			rec.Recurrence = &timeline.RecurrenceRule{}
			if err := json.Unmarshal(recurrence, rec.Recurrence); err != nil {
				return nil, fmt.Errorf("failed to unmarshal recurrence rule: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// Notes

func (r *Repository) FetchNotes(ctx context.Context, projectID string) ([]timeline.Note, error) {
	query := `
		SELECT id, project_id, date, text, color, created_at, updated_at
		FROM notes
		WHERE project_id = $1
		ORDER BY date
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []timeline.Note
	for rows.Next() {
		var n timeline.Note
		err := rows.Scan(&n.ID, &n.ProjectID, &n.Date, &n.Text, &n.Color, &n.CreatedAt, &n.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return notes, nil
}

// SavePost upserts into the table the post's type selects. A temporary id is
// replaced by a real one on first save.
func (r *Repository) SavePost(ctx context.Context, post timeline.Post, projectID string) (timeline.Post, error) {
	now := time.Now().UTC()
	if post.IsNew() || post.ID == "" {
		post.ID = uuid.NewString()
		post.CreatedAt = now
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.ProjectID = projectID
	post.UpdatedAt = now

	images, err := json.Marshal(stringsOrEmpty(post.Images))
	if err != nil {
		return timeline.Post{}, fmt.Errorf("failed to marshal images: %w", err)
	}
	attachments, err := json.Marshal(stringsOrEmpty(post.Attachments))
	if err != nil {
		return timeline.Post{}, fmt.Errorf("failed to marshal attachments: %w", err)
	}

	switch post.Type {
	case timeline.PostTypePublished:
		query := `
			INSERT INTO published_posts (id, project_id, date, text, images, attachments, platform_ref, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				date = EXCLUDED.date,
				text = EXCLUDED.text,
				images = EXCLUDED.images,
				attachments = EXCLUDED.attachments
		`
		_, err = r.db.ExecContext(ctx, query,
			post.ID, post.ProjectID, post.Date, post.Text, images, attachments, "", post.CreatedAt)
	case timeline.PostTypeScheduled:
		query := `
			INSERT INTO scheduled_posts (id, project_id, date, text, images, attachments, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				date = EXCLUDED.date,
				text = EXCLUDED.text,
				images = EXCLUDED.images,
				attachments = EXCLUDED.attachments,
				updated_at = EXCLUDED.updated_at
		`
		_, err = r.db.ExecContext(ctx, query,
			post.ID, post.ProjectID, post.Date, post.Text, images, attachments, post.CreatedAt, post.UpdatedAt)
	case timeline.PostTypeSystem:
		var recurrence []byte
		if post.Recurrence != nil {
			recurrence, err = json.Marshal(post.Recurrence)
			if err != nil {
				return timeline.Post{}, fmt.Errorf("failed to marshal recurrence rule: %w", err)
			}
		}
		query := `
			INSERT INTO system_posts (id, project_id, publication_date, text, images, attachments,
			                          status, is_active, automation_kind, is_cyclic, recurrence,
			                          created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE SET
				publication_date = EXCLUDED.publication_date,
				text = EXCLUDED.text,
				images = EXCLUDED.images,
				attachments = EXCLUDED.attachments,
				status = EXCLUDED.status,
				is_active = EXCLUDED.is_active,
				automation_kind = EXCLUDED.automation_kind,
				is_cyclic = EXCLUDED.is_cyclic,
				recurrence = EXCLUDED.recurrence,
				updated_at = EXCLUDED.updated_at
		`
		_, err = r.db.ExecContext(ctx, query,
			post.ID, post.ProjectID, post.Date, post.Text, images, attachments,
			post.Status, post.IsActive, post.AutomationKind, post.IsCyclic, recurrence,
			post.CreatedAt, post.UpdatedAt)
	default:
		return timeline.Post{}, fmt.Errorf("invalid post type %q", post.Type)
	}

	if err != nil {
		return timeline.Post{}, fmt.Errorf("failed to save post: %w", err)
	}

	return post, nil
}

// DeletePost removes the post from whichever collection holds it.
func (r *Repository) DeletePost(ctx context.Context, postID, projectID string) error {
	for _, table := range []string{"published_posts", "scheduled_posts", "system_posts"} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND project_id = $2`, table)
		res, err := r.db.ExecContext(ctx, query, postID, projectID)
		if err != nil {
			return fmt.Errorf("failed to delete post: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read delete result: %w", err)
		}
		if affected > 0 {
			return nil
		}
	}
	return remote.ErrNotFound
}

func (r *Repository) SaveNote(ctx context.Context, note timeline.Note, projectID string) (timeline.Note, error) {
	now := time.Now().UTC()
	if note.ID == "" {
		note.ID = uuid.NewString()
		note.CreatedAt = now
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.ProjectID = projectID
	note.UpdatedAt = now

	query := `
		INSERT INTO notes (id, project_id, date, text, color, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			date = EXCLUDED.date,
			text = EXCLUDED.text,
			color = EXCLUDED.color,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		note.ID, note.ProjectID, note.Date, note.Text, note.Color, note.CreatedAt, note.UpdatedAt)
	if err != nil {
		return timeline.Note{}, fmt.Errorf("failed to save note: %w", err)
	}

	return note, nil
}

func (r *Repository) DeleteNote(ctx context.Context, noteID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, noteID)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return remote.ErrNotFound
	}
	return nil
}

// Project update feed

// UpdatedProjectIDs returns and consumes the projects flagged as changed
// since the previous call.
func (r *Repository) UpdatedProjectIDs(ctx context.Context) ([]string, error) {
	query := `
		UPDATE project_updates
		SET consumed = TRUE
		WHERE consumed = FALSE
		RETURNING project_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to drain project updates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}

func (r *Repository) StalenessReport(ctx context.Context) (remote.StalenessReport, error) {
	query := `
		SELECT project_id, stale_published, stale_scheduled, stale_suggested
		FROM project_updates
		WHERE stale_published OR stale_scheduled OR stale_suggested
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return remote.StalenessReport{}, fmt.Errorf("failed to query staleness: %w", err)
	}
	defer rows.Close()

	var report remote.StalenessReport
	for rows.Next() {
		var id string
		var published, scheduled, suggested bool
		if err := rows.Scan(&id, &published, &scheduled, &suggested); err != nil {
			return remote.StalenessReport{}, fmt.Errorf("failed to scan staleness row: %w", err)
		}
		if published {
			report.StalePublishedIDs = append(report.StalePublishedIDs, id)
		}
		if scheduled {
			report.StaleScheduledIDs = append(report.StaleScheduledIDs, id)
		}
		if suggested {
			report.StaleSuggestedIDs = append(report.StaleSuggestedIDs, id)
		}
	}
	if err := rows.Err(); err != nil {
		return remote.StalenessReport{}, fmt.Errorf("row iteration error: %w", err)
	}

	return report, nil
}

func (r *Repository) MarkProjectUpdated(ctx context.Context, projectID string) error {
	query := `
		INSERT INTO project_updates (project_id, consumed, stale_published, stale_scheduled, stale_suggested, updated_at)
		VALUES ($1, FALSE, TRUE, TRUE, TRUE, NOW())
		ON CONFLICT (project_id) DO UPDATE SET
			consumed = FALSE,
			stale_published = TRUE,
			stale_scheduled = TRUE,
			stale_suggested = TRUE,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query, projectID)
	if err != nil {
		return fmt.Errorf("failed to mark project updated: %w", err)
	}
	return nil
}

// ClearStaleness acknowledges a project's staleness flags after a refresh.
func (r *Repository) ClearStaleness(ctx context.Context, projectID string) error {
	query := `
		UPDATE project_updates
		SET stale_published = FALSE, stale_scheduled = FALSE, stale_suggested = FALSE
		WHERE project_id = $1
	`

	_, err := r.db.ExecContext(ctx, query, projectID)
	if err != nil {
		return fmt.Errorf("failed to clear staleness: %w", err)
	}
	return nil
}

// Health check
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func unmarshalStrings(raw []byte, dest *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return err
	}
	if len(*dest) == 0 {
		*dest = nil
	}
	return nil
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
