package timeline

import "time"

// The three source collections arrive with divergent shapes. Each record kind
// normalizes into the merged Post shape, deriving the canonical Date from its
// own timestamp field.

// PublishedRecord is a post that already went out.
type PublishedRecord struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Date        time.Time `json:"date"`
	Text        string    `json:"text"`
	Images      []string  `json:"images,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	PlatformRef string    `json:"platform_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ScheduledRecord is a user-scheduled post that has not published yet.
type ScheduledRecord struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Date        time.Time `json:"date"`
	Text        string    `json:"text"`
	Images      []string  `json:"images,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SystemRecord is an automation-managed post. Its timeline instant lives in
// PublicationDate rather than Date.
type SystemRecord struct {
	ID              string          `json:"id"`
	ProjectID       string          `json:"project_id"`
	PublicationDate time.Time       `json:"publication_date"`
	Text            string          `json:"text"`
	Images          []string        `json:"images,omitempty"`
	Attachments     []string        `json:"attachments,omitempty"`
	Status          PostStatus      `json:"status"`
	IsActive        bool            `json:"is_active"`
	AutomationKind  string          `json:"automation_kind,omitempty"`
	IsCyclic        bool            `json:"is_cyclic"`
	Recurrence      *RecurrenceRule `json:"recurrence,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (r PublishedRecord) Normalize() Post {
	return Post{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		Type:        PostTypePublished,
		Date:        r.Date,
		Text:        r.Text,
		Images:      r.Images,
		Attachments: r.Attachments,
		Status:      StatusPublished,
		CreatedAt:   r.CreatedAt,
	}
}

func (r ScheduledRecord) Normalize() Post {
	return Post{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		Type:        PostTypeScheduled,
		Date:        r.Date,
		Text:        r.Text,
		Images:      r.Images,
		Attachments: r.Attachments,
		Status:      StatusPending,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (r SystemRecord) Normalize() Post {
	return Post{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		Type:            PostTypeSystem,
		Date:            r.PublicationDate,
		Text:            r.Text,
		Images:          r.Images,
		Attachments:     r.Attachments,
		Status:          r.Status,
		IsActive:        r.IsActive,
		AutomationKind:  r.AutomationKind,
		IsCyclic:        r.IsCyclic,
		Recurrence:      r.Recurrence,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// NormalizePublished converts a published collection in input order.
func NormalizePublished(records []PublishedRecord) []Post {
	posts := make([]Post, 0, len(records))
	for _, r := range records {
		posts = append(posts, r.Normalize())
	}
	return posts
}

// NormalizeScheduled converts a scheduled collection in input order.
func NormalizeScheduled(records []ScheduledRecord) []Post {
	posts := make([]Post, 0, len(records))
	for _, r := range records {
		posts = append(posts, r.Normalize())
	}
	return posts
}

// NormalizeSystem converts a system collection in input order.
func NormalizeSystem(records []SystemRecord) []Post {
	posts := make([]Post, 0, len(records))
	for _, r := range records {
		posts = append(posts, r.Normalize())
	}
	return posts
}
