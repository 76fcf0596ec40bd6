// Package team serves a team its own state and standing, and gives admins the
// corrective actions on a team: reset, time adjustment, penalty removal and deletion.
package team

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/victornm/ehunt/internal/content"
	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/errors"
	"github.com/victornm/ehunt/internal/event"
	"github.com/victornm/ehunt/internal/store"
)

// DefaultQualifiers is how many teams of a division qualify when the caller does not say.
const DefaultQualifiers = 2

type Config struct {
	Store    store.Store
	EventBus *event.Bus
	// Divisions always listed by Qualifiers, even without teams.
	Divisions []domain.Division
}

type Service struct {
	store     store.Store
	eb        *event.Bus
	divisions []domain.Division
}

func NewService(c Config) *Service {
	return &Service{
		store:     c.Store,
		eb:        c.EventBus,
		divisions: c.Divisions,
	}
}

type MeResponse struct {
	Team domain.Team
	// TotalSteps is the last step of the team's current division.
	TotalSteps int
}

func (s *Service) Me(ctx context.Context, teamID string) (*MeResponse, error) {
	t, err := s.get(ctx, teamID)
	if err != nil {
		return nil, err
	}

	total, err := s.store.MaxCheckpointOrder(ctx, t.Category, domain.DivisionAny)
	if err != nil {
		return nil, fmt.Errorf("get total steps: %w", err)
	}

	return &MeResponse{Team: t, TotalSteps: total}, nil
}

// CurrentClue returns the clue leading to the team's current checkpoint.
func (s *Service) CurrentClue(ctx context.Context, teamID string) (*domain.Clue, error) {
	t, err := s.get(ctx, teamID)
	if err != nil {
		return nil, err
	}

	c, err := content.Resolve(ctx, t.Category, func(ctx context.Context, d domain.Division) (domain.Clue, error) {
		return s.store.Clue(ctx, t.CurrentStep, d)
	})
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound("no clue for step %d", t.CurrentStep)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve clue: %w", err)
	}

	return &c, nil
}

// Hints returns the active hints of the team's current step, newest first.
func (s *Service) Hints(ctx context.Context, teamID string) ([]domain.Hint, error) {
	t, err := s.get(ctx, teamID)
	if err != nil {
		return nil, err
	}

	hints, err := s.store.Hints(ctx, t.CurrentStep, t.Category, domain.DivisionAny)
	if err != nil {
		return nil, fmt.Errorf("list hints: %w", err)
	}
	return hints, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Team, error) {
	return s.store.ListTeams(ctx)
}

type QualificationResponse struct {
	Qualified bool
	// Position is 1-based, zero when the team did not qualify.
	Position int
	Top      []domain.Team
}

// Qualification tells whether the team is among the top teams of its division.
// top <= 0 means DefaultQualifiers.
func (s *Service) Qualification(ctx context.Context, teamID string, top int) (*QualificationResponse, error) {
	t, err := s.get(ctx, teamID)
	if err != nil {
		return nil, err
	}

	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}

	resp := &QualificationResponse{Top: standings(teams, t.Category, top)}
	if i := slices.IndexFunc(resp.Top, func(other domain.Team) bool { return other.TeamID == t.TeamID }); i >= 0 {
		resp.Qualified = true
		resp.Position = i + 1
	}

	return resp, nil
}

// Qualifiers returns the top teams of every division.
func (s *Service) Qualifiers(ctx context.Context, top int) (map[domain.Division][]domain.Team, error) {
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}

	divisions := slices.Clone(s.divisions)
	for _, t := range teams {
		if !slices.Contains(divisions, t.Category) {
			divisions = append(divisions, t.Category)
		}
	}

	res := make(map[domain.Division][]domain.Team, len(divisions))
	for _, d := range divisions {
		res[d] = standings(teams, d, top)
	}
	return res, nil
}

func standings(teams []domain.Team, division domain.Division, top int) []domain.Team {
	if top <= 0 {
		top = DefaultQualifiers
	}

	res := make([]domain.Team, 0, top)
	for _, t := range teams {
		if t.Category == division {
			res = append(res, t)
		}
	}
	slices.SortStableFunc(res, domain.CompareStanding)

	if len(res) > top {
		res = res[:top]
	}
	return res
}

// Reset puts a team back at the first step with no score, no penalties and an empty
// ledger, its clock restarting at now.
func (s *Service) Reset(ctx context.Context, teamID string, now time.Time) (*domain.Team, error) {
	t, err := s.store.ResetTeam(ctx, teamID, now)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound("team not found: %s", teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("reset team: %w", err)
	}

	slog.InfoContext(ctx, "team: reset", "team", teamID)
	s.eb.Publish(ctx, domain.EventScoreUpdated{TeamID: t.TeamID, TotalScore: t.Score})

	return &t, nil
}

// Delete removes a team from the event together with its ledgers.
func (s *Service) Delete(ctx context.Context, teamID string) error {
	err := s.store.DeleteTeam(ctx, teamID)
	if stderrors.Is(err, store.ErrNotFound) {
		return errors.NotFound("team not found: %s", teamID)
	}
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}

	slog.InfoContext(ctx, "team: deleted", "team", teamID)
	s.eb.Publish(ctx, domain.EventTeamRemoved{TeamID: teamID})

	return nil
}

// AdjustTime adds minutes to the time a team has played by moving its start back.
// Negative minutes give time back.
func (s *Service) AdjustTime(ctx context.Context, teamID string, minutes int, now time.Time) (*domain.Team, error) {
	return s.update(ctx, teamID, func(t *domain.Team) error {
		start := now
		if t.StartTime != nil {
			start = *t.StartTime
		}
		start = start.Add(-time.Duration(minutes) * time.Minute)
		t.StartTime = &start
		return nil
	})
}

// RemovePenalty forgives one penalty.
func (s *Service) RemovePenalty(ctx context.Context, teamID string) (*domain.Team, error) {
	return s.update(ctx, teamID, func(t *domain.Team) error {
		t.Penalties = max(0, t.Penalties-1)
		return nil
	})
}

func (s *Service) update(ctx context.Context, teamID string, fn store.TeamUpdate) (*domain.Team, error) {
	t, err := s.store.UpdateTeam(ctx, teamID, fn, nil)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound("team not found: %s", teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("update team: %w", err)
	}
	return &t, nil
}

func (s *Service) get(ctx context.Context, teamID string) (domain.Team, error) {
	t, err := s.store.Team(ctx, teamID)
	if stderrors.Is(err, store.ErrNotFound) {
		return domain.Team{}, errors.NotFound("team not found: %s", teamID)
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("get team: %w", err)
	}
	return t, nil
}
