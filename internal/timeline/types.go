package timeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostType tags a post with its source collection. Every consumer switches on
// it exhaustively; adding a fourth source means touching every switch.
type PostType string

const (
	PostTypePublished PostType = "published"
	PostTypeScheduled PostType = "scheduled"
	PostTypeSystem    PostType = "system"
)

func (t PostType) Valid() bool {
	switch t {
	case PostTypePublished, PostTypeScheduled, PostTypeSystem:
		return true
	}
	return false
}

// PostStatus is the lifecycle state of a system post.
type PostStatus string

const (
	StatusPending    PostStatus = "pending"
	StatusPublishing PostStatus = "publishing"
	StatusPublished  PostStatus = "published"
	StatusError      PostStatus = "error"
	StatusDisabled   PostStatus = "disabled"
)

// RecurrenceUnit is the calendar unit a recurrence rule steps by.
type RecurrenceUnit string

const (
	UnitMinutes RecurrenceUnit = "minutes"
	UnitHours   RecurrenceUnit = "hours"
	UnitDays    RecurrenceUnit = "days"
	UnitWeeks   RecurrenceUnit = "weeks"
	UnitMonths  RecurrenceUnit = "months"
)

// RecurrenceEnd selects which end bound of a rule is meaningful.
type RecurrenceEnd string

const (
	EndNever RecurrenceEnd = "never"
	EndCount RecurrenceEnd = "count"
	EndDate  RecurrenceEnd = "date"
)

// RecurrenceRule describes how a system post repeats. Exactly one of
// EndCount/EndDate is meaningful, selected by EndType.
type RecurrenceRule struct {
	Interval        int            `json:"interval"`
	Unit            RecurrenceUnit `json:"unit"`
	EndType         RecurrenceEnd  `json:"end_type"`
	EndCount        int            `json:"end_count,omitempty"`
	EndDate         time.Time      `json:"end_date,omitempty"`
	FixedDayOfMonth int            `json:"fixed_day_of_month,omitempty"`
	UseLastDay      bool           `json:"use_last_day_of_month,omitempty"`
}

// Post is the merged shape shared by all three sources. Variant-specific
// fields are derived into Date before a post enters the unified timeline.
type Post struct {
	ID        string   `json:"id" db:"id"`
	ProjectID string   `json:"project_id" db:"project_id"`
	Type      PostType `json:"post_type" db:"post_type"`

	// Date is the single canonical instant used for timeline placement.
	Date time.Time `json:"date" db:"date"`

	Text        string   `json:"text" db:"text"`
	Images      []string `json:"images,omitempty" db:"images"`
	Attachments []string `json:"attachments,omitempty" db:"attachments"`

	// System-only fields.
	Status         PostStatus      `json:"status,omitempty" db:"status"`
	IsActive       bool            `json:"is_active" db:"is_active"`
	AutomationKind string          `json:"automation_kind,omitempty" db:"automation_kind"`
	IsCyclic       bool            `json:"is_cyclic" db:"is_cyclic"`
	Recurrence     *RecurrenceRule `json:"recurrence,omitempty" db:"recurrence"`

	// Ghost fields are only set on derived occurrences; ghosts are never
	// persisted and all edits redirect to OriginalID.
	IsGhost    bool   `json:"is_ghost,omitempty" db:"-"`
	OriginalID string `json:"original_id,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsNew reports whether the post has a synthesized temporary id and has never
// been saved.
func (p *Post) IsNew() bool {
	return len(p.ID) > 4 && p.ID[:4] == "tmp-"
}

// NewTempID synthesizes an id for a not-yet-saved post.
func NewTempID() string {
	return "tmp-" + uuid.NewString()
}

// Locked reports whether the post's content is immutable for rescheduling
// purposes: published posts and system posts mid-publication only support
// move-as-copy.
func (p *Post) Locked() bool {
	switch p.Type {
	case PostTypePublished:
		return true
	case PostTypeSystem:
		return p.Status == StatusPublishing
	case PostTypeScheduled:
		return false
	}
	return false
}

// HasContent reports whether the post carries anything publishable.
func (p *Post) HasContent() bool {
	return p.Text != "" || len(p.Images) > 0 || len(p.Attachments) > 0
}

// Validate checks structural invariants before a save is attempted.
func (p *Post) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("invalid post type %q", p.Type)
	}
	if !p.HasContent() {
		return ErrEmptyContent
	}
	if p.Type != PostTypeSystem && p.Recurrence != nil {
		return fmt.Errorf("%s posts cannot carry a recurrence rule", p.Type)
	}
	return nil
}

// ErrEmptyContent is returned when a post has no text, images or attachments.
var ErrEmptyContent = fmt.Errorf("post has no text, images or attachments")

// Note is an independent calendar annotation. It shares the timeline's date
// bucketing and drag/selection mechanics but is not part of the post family.
type Note struct {
	ID        string    `json:"id" db:"id"`
	ProjectID string    `json:"project_id" db:"project_id"`
	Date      time.Time `json:"date" db:"date"`
	Text      string    `json:"text" db:"text"`
	Color     string    `json:"color,omitempty" db:"color"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Window is the visible time span the dashboard is rendering.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the window, bounds inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}
