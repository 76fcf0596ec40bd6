package domain

import "cmp"

// CompareStanding orders a before b when a ranks higher: more points, then fewer
// penalties, then the earlier start. Teams that never started come last among equals.
func CompareStanding(a, b Team) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Penalties, b.Penalties); c != 0 {
		return c
	}

	switch {
	case a.StartTime == nil && b.StartTime == nil:
		return 0
	case a.StartTime == nil:
		return 1
	case b.StartTime == nil:
		return -1
	default:
		return a.StartTime.Compare(*b.StartTime)
	}
}
