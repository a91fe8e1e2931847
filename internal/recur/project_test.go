package recur

import (
	"testing"
	"time"

	"github.com/postline/postline-backend/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func systemPost(at time.Time, rule *timeline.RecurrenceRule) timeline.Post {
	return timeline.Post{
		ID:        "sys-1",
		ProjectID: "proj-1",
		Type:      timeline.PostTypeSystem,
		Date:      at,
		Text:      "automated announcement",
		Status:    timeline.StatusPending,
		IsActive:  true,
		IsCyclic:  rule != nil,
		Recurrence: rule,
	}
}

func TestProjectMonthlyCountBound(t *testing.T) {
	// The example scenario: Jan 31 start, monthly, four occurrences total,
	// window spanning Jan-Apr 2024.
	src := systemPost(date(2024, time.January, 31, 10, 0), &timeline.RecurrenceRule{
		Interval: 1,
		Unit:     timeline.UnitMonths,
		EndType:  timeline.EndCount,
		EndCount: 4,
	})
	window := timeline.Window{
		From: date(2024, time.January, 1, 0, 0),
		To:   date(2024, time.April, 30, 23, 59),
	}

	proj := Project(src, window)
	require.Len(t, proj.Ghosts, 3)
	assert.False(t, proj.CapReached)

	assert.True(t, proj.Ghosts[0].Date.Equal(date(2024, time.February, 29, 10, 0)))
	assert.True(t, proj.Ghosts[1].Date.Equal(date(2024, time.March, 31, 10, 0)))
	assert.True(t, proj.Ghosts[2].Date.Equal(date(2024, time.April, 30, 10, 0)))

	for _, g := range proj.Ghosts {
		assert.True(t, g.IsGhost)
		assert.Equal(t, "sys-1", g.OriginalID)
		assert.Equal(t, timeline.StatusPending, g.Status)
		assert.Equal(t, "automated announcement", g.Text)
	}
}

func TestProjectEndByCountIgnoresWindowSize(t *testing.T) {
	src := systemPost(date(2024, time.January, 1, 12, 0), &timeline.RecurrenceRule{
		Interval: 1,
		Unit:     timeline.UnitDays,
		EndType:  timeline.EndCount,
		EndCount: 3,
	})
	// A window far larger than the rule can ever fill.
	window := timeline.Window{
		From: date(2024, time.January, 1, 0, 0),
		To:   date(2030, time.January, 1, 0, 0),
	}

	proj := Project(src, window)
	assert.Len(t, proj.Ghosts, 2, "count=3 including the source means at most 2 ghosts")
}

func TestProjectEndByDateInclusive(t *testing.T) {
	src := systemPost(date(2024, time.June, 1, 18, 0), &timeline.RecurrenceRule{
		Interval: 1,
		Unit:     timeline.UnitDays,
		EndType:  timeline.EndDate,
		EndDate:  date(2024, time.June, 3, 0, 0),
	})
	window := timeline.Window{
		From: date(2024, time.June, 1, 0, 0),
		To:   date(2024, time.June, 30, 0, 0),
	}

	proj := Project(src, window)
	require.Len(t, proj.Ghosts, 2)
	// June 3 18:00 is still inside the end date's calendar day.
	assert.True(t, proj.Ghosts[1].Date.Equal(date(2024, time.June, 3, 18, 0)))
}

func TestProjectDeterminism(t *testing.T) {
	src := systemPost(date(2024, time.March, 1, 8, 0), &timeline.RecurrenceRule{
		Interval: 1,
		Unit:     timeline.UnitWeeks,
		EndType:  timeline.EndNever,
	})
	window := timeline.Window{
		From: date(2024, time.March, 1, 0, 0),
		To:   date(2024, time.May, 1, 0, 0),
	}

	first := Project(src, window)
	second := Project(src, window)
	require.Equal(t, len(first.Ghosts), len(second.Ghosts))
	for i := range first.Ghosts {
		assert.True(t, first.Ghosts[i].Date.Equal(second.Ghosts[i].Date))
		assert.Equal(t, first.Ghosts[i].ID, second.Ghosts[i].ID)
	}
}

func TestProjectExclusions(t *testing.T) {
	rule := &timeline.RecurrenceRule{Interval: 1, Unit: timeline.UnitDays, EndType: timeline.EndNever}
	window := timeline.Window{
		From: date(2024, time.January, 1, 0, 0),
		To:   date(2024, time.January, 31, 0, 0),
	}

	tests := []struct {
		name   string
		mutate func(*timeline.Post)
	}{
		{"inactive automation", func(p *timeline.Post) { p.IsActive = false }},
		{"error status", func(p *timeline.Post) { p.Status = timeline.StatusError }},
		{"disabled status", func(p *timeline.Post) { p.Status = timeline.StatusDisabled }},
		{"not cyclic", func(p *timeline.Post) { p.IsCyclic = false; p.Recurrence = nil }},
		{"scheduled provenance", func(p *timeline.Post) { p.Type = timeline.PostTypeScheduled }},
		{"ghost source", func(p *timeline.Post) { p.IsGhost = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := systemPost(date(2024, time.January, 2, 9, 0), rule)
			tt.mutate(&src)
			proj := Project(src, window)
			assert.Empty(t, proj.Ghosts)
		})
	}
}

func TestProjectSafetyCap(t *testing.T) {
	tests := []struct {
		name string
		rule timeline.RecurrenceRule
	}{
		{
			name: "zero interval",
			rule: timeline.RecurrenceRule{Interval: 0, Unit: timeline.UnitDays, EndType: timeline.EndNever},
		},
		{
			name: "negative interval",
			rule: timeline.RecurrenceRule{Interval: -1, Unit: timeline.UnitHours, EndType: timeline.EndNever},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			src := systemPost(date(2024, time.January, 1, 0, 0), &rule)
			window := timeline.Window{
				From: date(2024, time.January, 1, 0, 0),
				To:   date(2024, time.December, 31, 0, 0),
			}
			proj := Project(src, window)
			assert.Empty(t, proj.Ghosts)
			assert.True(t, proj.CapReached)
		})
	}

	t.Run("tiny interval truncates at cap", func(t *testing.T) {
		rule := timeline.RecurrenceRule{Interval: 1, Unit: timeline.UnitMinutes, EndType: timeline.EndNever}
		src := systemPost(date(2024, time.January, 1, 0, 0), &rule)
		window := timeline.Window{
			From: date(2024, time.January, 1, 0, 0),
			To:   date(2024, time.December, 31, 0, 0),
		}
		proj := Project(src, window)
		assert.Len(t, proj.Ghosts, MaxSteps)
		assert.True(t, proj.CapReached)
	})
}

func TestProjectAllReportsCappedSources(t *testing.T) {
	good := systemPost(date(2024, time.January, 1, 10, 0), &timeline.RecurrenceRule{
		Interval: 1, Unit: timeline.UnitWeeks, EndType: timeline.EndCount, EndCount: 3,
	})
	bad := systemPost(date(2024, time.January, 1, 11, 0), &timeline.RecurrenceRule{
		Interval: 0, Unit: timeline.UnitDays, EndType: timeline.EndNever,
	})
	bad.ID = "sys-2"

	window := timeline.Window{
		From: date(2024, time.January, 1, 0, 0),
		To:   date(2024, time.February, 1, 0, 0),
	}
	ghosts, capped := ProjectAll([]timeline.Post{good, bad}, window)
	assert.Len(t, ghosts, 2)
	assert.Equal(t, []string{"sys-2"}, capped)
}
