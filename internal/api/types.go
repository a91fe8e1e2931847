package api

import (
	"time"

	"github.com/postline/postline-backend/internal/engine"
	"github.com/postline/postline-backend/internal/timeline"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TimelineResponse struct {
	Posts []timeline.Post `json:"posts"`
	Flags engine.Flags    `json:"flags"`
}

type NotesResponse struct {
	Notes []timeline.Note `json:"notes"`
}

type SavePostRequest struct {
	Post timeline.Post `json:"post"`
	// ScheduleExternally submits the saved post to the publishing platform
	// as an asynchronous task.
	ScheduleExternally bool `json:"schedule_externally,omitempty"`
}

type SaveNoteRequest struct {
	Note timeline.Note `json:"note"`
}

type SelectionModeResponse struct {
	Mode engine.InteractionMode `json:"mode"`
}

type ToggleItemRequest struct {
	Kind engine.ItemKind `json:"kind"`
	ID   string          `json:"id"`
}

type ToggleItemResponse struct {
	Selected      bool `json:"selected"`
	SelectedPosts int  `json:"selected_posts"`
	SelectedNotes int  `json:"selected_notes"`
}

type BeginDragRequest struct {
	Kind engine.ItemKind `json:"kind"`
	ID   string          `json:"id"`
}

type DropRequest struct {
	TargetDate time.Time `json:"target_date"`
}

type DropResponse struct {
	// Prompt is nil when the drop was a no-op.
	Prompt *engine.MovePrompt `json:"prompt,omitempty"`
}

type ConfirmMoveRequest struct {
	IsCopy      bool               `json:"is_copy"`
	Destination engine.Destination `json:"destination"`
}

type BulkDeleteResponse struct {
	engine.BulkDeleteResult
	Summary string `json:"summary"`
}
