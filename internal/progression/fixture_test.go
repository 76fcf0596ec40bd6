package progression_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/victornm/ehunt/internal/cooldown"
	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/event"
	"github.com/victornm/ehunt/internal/progression"
	"github.com/victornm/ehunt/internal/store"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store *store.Memory
	eb    *event.Bus
	svc   *progression.Service

	mu     sync.Mutex
	events []event.Event
}

type fixtureOption func(c *progression.Config)

func withPenalty(points int64) fixtureOption {
	return func(c *progression.Config) {
		c.Guard.Penalty = cooldown.Penalty{Enabled: true, Points: points}
	}
}

// newFixture builds a hunt of three steps:
//
//	step 1: CP-1 (any)              challenge for any
//	step 2: CP-2A (A), CP-2B (B)    challenge for A, challenge for any, clue for any and for B
//	step 3: CP-3 (any)              challenge for any
//
// The event started at t0 and team "red" of division A is at step 1.
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{store: store.NewMemory(), eb: event.NewBus()}
	for _, name := range []string{domain.EventNameScoreUpdated, domain.EventNameTeamAdvanced} {
		f.eb.Subscribe(name, func(ctx context.Context, e event.Event) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.events = append(f.events, e)
			return nil
		})
	}

	checkpoints := []domain.Checkpoint{
		{CheckpointID: "cp-1", Code: "CP-1", Order: 1, Category: domain.DivisionAny, Content: "welcome"},
		{CheckpointID: "cp-2a", Code: "CP-2A", Order: 2, Category: "A"},
		{CheckpointID: "cp-2b", Code: "CP-2B", Order: 2, Category: "B"},
		{CheckpointID: "cp-3", Code: "CP-3", Order: 3, Category: domain.DivisionAny},
	}
	for _, c := range checkpoints {
		_, err := f.store.PutCheckpoint(ctx, c)
		require.NoError(t, err)
	}

	challenges := []domain.Challenge{
		{ChallengeID: "q-1", Step: 1, Category: domain.DivisionAny, Prompt: "Tallest?", CorrectAnswer: "Eiffel Tower", Points: 100},
		{ChallengeID: "q-2a", Step: 2, Category: "A", Prompt: "For A", CorrectAnswer: "alpha", Points: 100},
		{ChallengeID: "q-2", Step: 2, Category: domain.DivisionAny, Prompt: "For all", CorrectAnswer: "omega", Points: 50},
		{ChallengeID: "q-3", Step: 3, Category: domain.DivisionAny, Prompt: "Last", CorrectAnswer: "end", Points: 250},
	}
	for _, c := range challenges {
		_, err := f.store.PutChallenge(ctx, c)
		require.NoError(t, err)
	}

	clues := []domain.Clue{
		{Step: 2, Category: domain.DivisionAny, Text: "go north"},
		{Step: 2, Category: "B", Text: "go north, B"},
	}
	for _, c := range clues {
		_, err := f.store.PutClue(ctx, c)
		require.NoError(t, err)
	}

	_, err := f.store.CreateTeam(ctx, domain.Team{TeamID: "red", Name: "red", Category: "A"})
	require.NoError(t, err)

	_, err = f.store.UpdateSettings(ctx, func(s *domain.EventSettings) (bool, error) {
		start, end := t0, t0.Add(2*time.Hour)
		s.Started, s.StartTime, s.EndTime = true, &start, &end
		return true, nil
	})
	require.NoError(t, err)

	c := progression.Config{
		Store:     f.store,
		EventBus:  f.eb,
		Guard:     cooldown.NewGuard(time.Minute, cooldown.Penalty{}),
		Divisions: []domain.Division{"A", "B"},
		IntN:      func(int) int { return 0 },
	}
	for _, opt := range opts {
		opt(&c)
	}
	f.svc = progression.NewService(c)

	return f
}

func (f *fixture) team(t *testing.T) domain.Team {
	t.Helper()
	team, err := f.store.Team(context.Background(), "red")
	require.NoError(t, err)
	return team
}

func (f *fixture) logs(t *testing.T) []domain.ScanLog {
	t.Helper()
	logs, err := f.store.ScanLogs(context.Background(), "red")
	require.NoError(t, err)
	return logs
}

func (f *fixture) setTeam(t *testing.T, fn func(t *domain.Team)) {
	t.Helper()
	_, err := f.store.UpdateTeam(context.Background(), "red", func(team *domain.Team) error {
		fn(team)
		return nil
	}, nil)
	require.NoError(t, err)
}

func (f *fixture) published() []event.Event {
	f.eb.Stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.Event(nil), f.events...)
}
