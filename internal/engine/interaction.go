package engine

import (
	"time"

	"github.com/postline/postline-backend/internal/timeline"
)

// InteractionMode is the explicit state of the selection/drag machine.
type InteractionMode string

const (
	ModeIdle      InteractionMode = "idle"
	ModeSelecting InteractionMode = "selecting"
	ModeDragging  InteractionMode = "dragging"
)

// ItemKind distinguishes posts from notes in selection and drag operations.
type ItemKind string

const (
	KindPost ItemKind = "post"
	KindNote ItemKind = "note"
)

// DragItem is the transient by-value record of the picked-up item. It never
// reaches presentation state and is cleared on every drag end.
type DragItem struct {
	Kind         ItemKind
	ID           string
	PostType     timeline.PostType
	Status       timeline.PostStatus
	OriginalDate time.Time
}

// MovePrompt is a pending move/copy confirmation produced by a drop whose
// target date differs from the item's original date.
type MovePrompt struct {
	ItemID       string    `json:"item_id"`
	Kind         ItemKind  `json:"kind"`
	OriginalDate time.Time `json:"original_date"`
	TargetDate   time.Time `json:"target_date"`
	// CopyOnly is set for items whose original is immutable or locked:
	// published posts and system posts mid-publication. These are never
	// destructively moved.
	CopyOnly bool `json:"copy_only"`
}

type interactionState struct {
	mode InteractionMode

	selectedPosts map[string]struct{}
	selectedNotes map[string]struct{}

	// drag holds the picked-up item while mode == ModeDragging.
	drag *DragItem

	// prompt survives the drag end; it is consumed by ConfirmMoveOrCopy or
	// CancelMoveOrCopy.
	prompt *MovePrompt
}

// Mode reports the interaction mode of a project's session.
func (e *Engine) Mode(projectID string) InteractionMode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[projectID]
	if !ok || s.interaction.mode == "" {
		return ModeIdle
	}
	return s.interaction.mode
}

// ToggleSelectionMode enters selection mode from idle, or leaves it and
// clears both id sets. A drag in progress is unaffected.
func (e *Engine) ToggleSelectionMode(projectID string) InteractionMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessionLocked(projectID)

	switch s.interaction.mode {
	case ModeSelecting:
		s.interaction.mode = ModeIdle
		s.interaction.selectedPosts = nil
		s.interaction.selectedNotes = nil
	case ModeDragging:
		// Leave the drag alone.
	default:
		s.interaction.mode = ModeSelecting
		s.interaction.selectedPosts = make(map[string]struct{})
		s.interaction.selectedNotes = make(map[string]struct{})
	}
	return s.interaction.mode
}

// ToggleItemSelected flips membership of the id in the kind's selection set:
// absent ids are added, present ones removed.
func (e *Engine) ToggleItemSelected(projectID string, kind ItemKind, id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessionLocked(projectID)
	if s.interaction.mode != ModeSelecting {
		return false
	}

	set := s.interaction.selectedPosts
	if kind == KindNote {
		set = s.interaction.selectedNotes
	}
	if _, ok := set[id]; ok {
		delete(set, id)
		return false
	}
	set[id] = struct{}{}
	return true
}

// SelectedCounts returns how many posts and notes are currently selected.
func (e *Engine) SelectedCounts(projectID string) (posts, notes int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[projectID]
	if !ok {
		return 0, 0
	}
	return len(s.interaction.selectedPosts), len(s.interaction.selectedNotes)
}

// BeginDrag picks up a post or note. A second pick-up before DragEnd is
// rejected; drags are strictly sequential per gesture.
func (e *Engine) BeginDrag(projectID string, kind ItemKind, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessionLocked(projectID)

	if s.interaction.mode == ModeDragging {
		return ErrAlreadyDragging
	}

	item := DragItem{Kind: kind, ID: id}
	switch kind {
	case KindPost:
		p, ok := s.findPost(id)
		if !ok {
			return ErrUnknownItem
		}
		item.PostType = p.Type
		item.Status = p.Status
		item.OriginalDate = p.Date
	case KindNote:
		n, ok := s.findNote(id)
		if !ok {
			return ErrUnknownItem
		}
		item.OriginalDate = n.Date
	}

	s.interaction.mode = ModeDragging
	s.interaction.drag = &item
	return nil
}

// DropOnDate resolves a drop according to the move/copy policy and returns
// the confirmation to present, if any. The drag transient is always cleared,
// whether or not the drop produced a prompt.
//
// Policy, in order:
//  1. published posts and system posts in a publishing state are never
//     destructively moved; any drop offers a copy,
//  2. a same-day drop is a no-op,
//  3. anything else asks the user to choose move or copy.
func (e *Engine) DropOnDate(projectID string, target time.Time) (*MovePrompt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessionLocked(projectID)

	if s.interaction.mode != ModeDragging || s.interaction.drag == nil {
		return nil, ErrNotDragging
	}
	item := *s.interaction.drag
	s.interaction.drag = nil
	s.interaction.mode = ModeIdle

	copyOnly := item.Kind == KindPost &&
		(item.PostType == timeline.PostTypePublished ||
			(item.PostType == timeline.PostTypeSystem && item.Status == timeline.StatusPublishing))

	if !copyOnly && sameDay(item.OriginalDate, target) {
		return nil, nil
	}

	prompt := &MovePrompt{
		ItemID:       item.ID,
		Kind:         item.Kind,
		OriginalDate: item.OriginalDate,
		TargetDate:   target,
		CopyOnly:     copyOnly,
	}
	s.interaction.prompt = prompt
	return prompt, nil
}

// DragEnd aborts a drag without a drop, clearing the transient reference.
func (e *Engine) DragEnd(projectID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessionLocked(projectID)
	s.interaction.drag = nil
	if s.interaction.mode == ModeDragging {
		s.interaction.mode = ModeIdle
	}
}

// PendingMove returns the unconsumed move/copy confirmation, if any.
func (e *Engine) PendingMove(projectID string) *MovePrompt {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[projectID]
	if !ok || s.interaction.prompt == nil {
		return nil
	}
	prompt := *s.interaction.prompt
	return &prompt
}

// CancelMoveOrCopy discards the pending confirmation.
func (e *Engine) CancelMoveOrCopy(projectID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessionLocked(projectID)
	s.interaction.prompt = nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
