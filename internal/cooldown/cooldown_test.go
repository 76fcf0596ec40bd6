package cooldown_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/ehunt/internal/cooldown"
	"github.com/victornm/ehunt/internal/domain"
)

func TestGuard_IsLocked(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := map[string]struct {
		team       domain.Team
		wantLocked bool
		wantLeft   time.Duration
	}{
		"never failed":          {team: domain.Team{}, wantLocked: false},
		"just failed":           {team: domain.Team{LastWrongScanTime: at(0)}, wantLocked: true, wantLeft: time.Minute},
		"failed 45s ago":        {team: domain.Team{LastWrongScanTime: at(-45 * time.Second)}, wantLocked: true, wantLeft: 15 * time.Second},
		"window just elapsed":   {team: domain.Team{LastWrongScanTime: at(-time.Minute)}, wantLocked: false},
		"failed long ago":       {team: domain.Team{LastWrongScanTime: at(-time.Hour)}, wantLocked: false},
		"failure in the future": {team: domain.Team{LastWrongScanTime: at(10 * time.Second)}, wantLocked: true, wantLeft: 70 * time.Second},
	}

	g := cooldown.NewGuard(time.Minute, cooldown.Penalty{})
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			locked, left := g.IsLocked(tt.team, now)
			assert.Equal(t, tt.wantLocked, locked)
			assert.Equal(t, tt.wantLeft, left)
		})
	}
}

func TestGuard_RecordFailure(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("cooldown only", func(t *testing.T) {
		team := domain.Team{Score: 40}
		cooldown.NewGuard(0, cooldown.Penalty{}).RecordFailure(&team, now)

		assert.Equal(t, now, *team.LastWrongScanTime)
		assert.Equal(t, int64(40), team.Score)
		assert.Equal(t, 0, team.Penalties)
	})

	t.Run("with penalty", func(t *testing.T) {
		g := cooldown.NewGuard(0, cooldown.Penalty{Enabled: true, Points: 25})
		team := domain.Team{Score: 40}

		g.RecordFailure(&team, now)
		assert.Equal(t, int64(15), team.Score)
		assert.Equal(t, 1, team.Penalties)

		g.RecordFailure(&team, now.Add(time.Minute))
		assert.Equal(t, int64(0), team.Score, "score is floored at zero")
		assert.Equal(t, 2, team.Penalties)
		assert.Equal(t, now.Add(time.Minute), *team.LastWrongScanTime)
	})

	t.Run("default window", func(t *testing.T) {
		assert.Equal(t, cooldown.DefaultWindow, cooldown.NewGuard(-time.Second, cooldown.Penalty{}).Window)
	})
}
