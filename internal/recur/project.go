package recur

import (
	"time"

	"github.com/postline/postline-backend/internal/timeline"
)

// MaxSteps bounds the projection loop per source post. A misconfigured rule
// (zero or negative interval, or an interval tiny relative to the window) can
// otherwise generate occurrences forever; past this many steps the projection
// truncates and reports the cap so callers can log a diagnostic.
const MaxSteps = 100

// Projection is the ghost set derived from one source post.
type Projection struct {
	Ghosts []timeline.Post
	// CapReached is set when the loop stopped because of MaxSteps rather
	// than the rule's own end bound or the window.
	CapReached bool
}

// Project computes the virtual future occurrences of a recurrence-bearing
// system post that fall inside the visible window. It is deterministic for
// fixed inputs and never touches storage; ghosts are recomputed on every
// timeline build.
//
// The source post itself counts as occurrence 1. Sources that are inactive,
// errored, disabled, or not cyclic contribute nothing.
func Project(src timeline.Post, window timeline.Window) Projection {
	var proj Projection

	if src.Type != timeline.PostTypeSystem || src.IsGhost {
		return proj
	}
	if !src.IsCyclic || src.Recurrence == nil || !src.IsActive {
		return proj
	}
	switch src.Status {
	case timeline.StatusError, timeline.StatusDisabled:
		return proj
	}

	rule := *src.Recurrence
	if rule.Unit == timeline.UnitMonths && !rule.UseLastDay && rule.FixedDayOfMonth == 0 {
		// Without an explicit day rule the source's own day of month is the
		// intended one. Pinning it here keeps a Jan 31 rule on the 31st
		// (clamped per month) instead of drifting to the 29th after the
		// February clamp.
		rule.FixedDayOfMonth = src.Date.Day()
	}
	occurrences := 1 // the source post
	date := src.Date

	for step := 0; ; step++ {
		if step >= MaxSteps {
			proj.CapReached = true
			return proj
		}

		next := NextDate(date, rule)
		if !next.After(date) {
			// Non-advancing rule; same protection as the step cap.
			proj.CapReached = true
			return proj
		}

		if rule.EndType == timeline.EndCount && occurrences >= rule.EndCount {
			return proj
		}
		if rule.EndType == timeline.EndDate && next.After(endOfDay(rule.EndDate)) {
			return proj
		}

		if window.Contains(next) {
			proj.Ghosts = append(proj.Ghosts, makeGhost(src, next))
		} else if next.After(window.To) {
			// Dates only move forward, so nothing later can land inside
			// the window either.
			return proj
		}

		occurrences++
		date = next
	}
}

// makeGhost copies the source post's content and automation markers into a
// non-persisted occurrence at the candidate date, with the lifecycle state
// reset to pending.
func makeGhost(src timeline.Post, at time.Time) timeline.Post {
	return timeline.Post{
		ID:             src.ID + "@" + at.Format(time.RFC3339),
		ProjectID:      src.ProjectID,
		Type:           timeline.PostTypeSystem,
		Date:           at,
		Text:           src.Text,
		Images:         src.Images,
		Attachments:    src.Attachments,
		Status:         timeline.StatusPending,
		IsActive:       src.IsActive,
		AutomationKind: src.AutomationKind,
		IsCyclic:       src.IsCyclic,
		IsGhost:        true,
		OriginalID:     src.ID,
	}
}

// ProjectAll projects every system post of a merged timeline and returns the
// combined ghost set plus the ids of sources that hit the step cap.
func ProjectAll(system []timeline.Post, window timeline.Window) ([]timeline.Post, []string) {
	var ghosts []timeline.Post
	var capped []string
	for _, src := range system {
		p := Project(src, window)
		ghosts = append(ghosts, p.Ghosts...)
		if p.CapReached {
			capped = append(capped, src.ID)
		}
	}
	return ghosts, capped
}
