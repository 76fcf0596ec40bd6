// Package progression moves a team through its checkpoint sequence: the gate that
// admits a scan and releases its challenge, and the verifier that checks the answer
// and advances the team.
package progression

import (
	"context"
	stderrors "errors"
	"math/rand/v2"
	"slices"

	"github.com/victornm/ehunt/internal/content"
	"github.com/victornm/ehunt/internal/cooldown"
	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/errors"
	"github.com/victornm/ehunt/internal/event"
	"github.com/victornm/ehunt/internal/store"
)

var DefaultDivisions = []domain.Division{"A", "B", "C", "D", "E"}

type Config struct {
	Store    store.Store
	EventBus *event.Bus
	Guard    cooldown.Guard
	// Divisions a team is rerolled into after every solved checkpoint.
	Divisions []domain.Division
	// IntN returns a number in [0, n). Defaults to math/rand/v2.
	IntN func(n int) int
}

type Service struct {
	store     store.Store
	eb        *event.Bus
	guard     cooldown.Guard
	divisions []domain.Division
	intN      func(n int) int
}

func NewService(c Config) *Service {
	s := &Service{
		store:     c.Store,
		eb:        c.EventBus,
		guard:     c.Guard,
		divisions: c.Divisions,
		intN:      c.IntN,
	}

	if len(s.divisions) == 0 {
		s.divisions = DefaultDivisions
	}
	if s.intN == nil {
		s.intN = rand.IntN
	}
	if s.guard.Window <= 0 {
		s.guard.Window = cooldown.DefaultWindow
	}

	return s
}

func (s *Service) team(ctx context.Context, id string) (domain.Team, error) {
	t, err := s.store.Team(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return domain.Team{}, errors.NotFound("team not found: %s", id)
	}
	return t, err
}

// challengeFor is the challenge released at a step: the oldest one authored for the
// division, else the oldest one for every division.
func (s *Service) challengeFor(ctx context.Context, step int, division domain.Division) (domain.Challenge, error) {
	list, err := content.Resolve(ctx, division, content.Lister(func(ctx context.Context, d domain.Division) ([]domain.Challenge, error) {
		return s.store.Challenges(ctx, step, d)
	}))
	if err != nil {
		return domain.Challenge{}, err
	}
	return list[0], nil
}

func (s *Service) clueFor(ctx context.Context, step int, division domain.Division) (domain.Clue, error) {
	return content.Resolve(ctx, division, func(ctx context.Context, d domain.Division) (domain.Clue, error) {
		return s.store.Clue(ctx, step, d)
	})
}

// reroll picks a division other than current, uniformly. With a single division
// there is nothing to pick and current is kept.
func (s *Service) reroll(current domain.Division) domain.Division {
	choices := slices.DeleteFunc(slices.Clone(s.divisions), func(d domain.Division) bool {
		return d == current
	})
	if len(choices) == 0 {
		return current
	}
	return choices[s.intN(len(choices))]
}
