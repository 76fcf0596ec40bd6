// Package cooldown throttles teams after a failed scan or answer.
package cooldown

import (
	"time"

	"github.com/victornm/ehunt/internal/domain"
)

const DefaultWindow = 60 * time.Second

type Penalty struct {
	Enabled bool
	Points  int64
}

// Guard keeps its state on the team itself (Team.LastWrongScanTime), so it works on
// whatever copy of the team the caller holds under lock.
type Guard struct {
	Window  time.Duration
	Penalty Penalty
}

func NewGuard(window time.Duration, p Penalty) Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	return Guard{Window: window, Penalty: p}
}

// IsLocked reports whether t is still inside its cooldown window at now, and for how long.
func (g Guard) IsLocked(t domain.Team, now time.Time) (bool, time.Duration) {
	if t.LastWrongScanTime == nil {
		return false, 0
	}

	remaining := t.LastWrongScanTime.Add(g.Window).Sub(now)
	if remaining <= 0 {
		return false, 0
	}
	return true, remaining
}

// RecordFailure starts a new window at now. With the penalty enabled it also counts
// the failure and deducts points, never taking the score below zero.
func (g Guard) RecordFailure(t *domain.Team, now time.Time) {
	t.LastWrongScanTime = &now

	if !g.Penalty.Enabled {
		return
	}
	t.Penalties++
	t.Score = max(0, t.Score-g.Penalty.Points)
}
