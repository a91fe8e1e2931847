package timeline

import "sort"

// Merge combines the three normalized source collections into one sequence
// ordered by Date. It is a pure function: no input slice is modified, no
// record is dropped or duplicated, and any collection may be empty.
//
// Posts with equal timestamps keep their relative input order, published
// first, then scheduled, then system.
func Merge(published, scheduled, system []Post) []Post {
	merged := make([]Post, 0, len(published)+len(scheduled)+len(system))
	merged = append(merged, published...)
	merged = append(merged, scheduled...)
	merged = append(merged, system...)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.Before(merged[j].Date)
	})
	return merged
}

// MergeWithGhosts appends ghost occurrences to an already merged timeline and
// re-sorts. Ghosts are render-time artifacts, so the input timeline is left
// untouched.
func MergeWithGhosts(merged, ghosts []Post) []Post {
	if len(ghosts) == 0 {
		return merged
	}
	out := make([]Post, 0, len(merged)+len(ghosts))
	out = append(out, merged...)
	out = append(out, ghosts...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// SystemSubset returns the system-sourced posts of a merged timeline, in
// order. The recurrence engine projects from this subset only.
func SystemSubset(merged []Post) []Post {
	var system []Post
	for _, p := range merged {
		if p.Type == PostTypeSystem && !p.IsGhost {
			system = append(system, p)
		}
	}
	return system
}

// ClipToWindow returns the entries whose date falls inside the window.
func ClipToWindow(posts []Post, w Window) []Post {
	var out []Post
	for _, p := range posts {
		if w.Contains(p.Date) {
			out = append(out, p)
		}
	}
	return out
}
