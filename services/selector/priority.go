package selector

import "sort"

// Less orders never-measured clips first, then the longest-unmeasured, with
// clip id as the tiebreak.
func Less(a, b Item) bool {
	switch {
	case a.LastTrackedAt == nil && b.LastTrackedAt != nil:
		return true
	case a.LastTrackedAt != nil && b.LastTrackedAt == nil:
		return false
	case a.LastTrackedAt != nil && b.LastTrackedAt != nil && !a.LastTrackedAt.Equal(*b.LastTrackedAt):
		return a.LastTrackedAt.Before(*b.LastTrackedAt)
	}
	return a.ClipID < b.ClipID
}

// Prioritize sorts items in place by Less.
func Prioritize(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return Less(items[i], items[j])
	})
}
