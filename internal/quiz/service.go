// Package quiz runs the once per step quiz a team takes after solving a checkpoint.
package quiz

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/victornm/ehunt/internal/clock"
	"github.com/victornm/ehunt/internal/content"
	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/errors"
	"github.com/victornm/ehunt/internal/event"
	"github.com/victornm/ehunt/internal/scoring"
	"github.com/victornm/ehunt/internal/store"
	"github.com/victornm/ehunt/internal/telemetry"
)

const DefaultSize = 5

type Config struct {
	Store    store.Store
	EventBus *event.Bus
	// Size is the number of questions sampled per quiz.
	Size int
	// Shuffle defaults to math/rand/v2.Shuffle.
	Shuffle func(n int, swap func(i, j int))
}

type Service struct {
	store   store.Store
	eb      *event.Bus
	size    int
	shuffle func(n int, swap func(i, j int))
}

func NewService(c Config) *Service {
	s := &Service{
		store:   c.Store,
		eb:      c.EventBus,
		size:    c.Size,
		shuffle: c.Shuffle,
	}

	if s.size <= 0 {
		s.size = DefaultSize
	}
	if s.shuffle == nil {
		s.shuffle = rand.Shuffle
	}

	return s
}

type GetQuizRequest struct {
	TeamID string
}

type GetQuizResponse struct {
	Step      int
	Questions []domain.Challenge
}

// GetQuiz samples the quiz of the step the team just completed.
func (s *Service) GetQuiz(ctx context.Context, req GetQuizRequest) (*GetQuizResponse, error) {
	team, step, err := s.quizStep(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}

	if err := s.checkNotAttempted(ctx, team.TeamID, step); err != nil {
		return nil, err
	}

	pool, err := content.Resolve(ctx, team.Category, content.Lister(func(ctx context.Context, d domain.Division) ([]domain.Challenge, error) {
		return s.store.Challenges(ctx, step, d)
	}))
	if err != nil && !stderrors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("list challenges: %w", err)
	}

	s.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > s.size {
		pool = pool[:s.size]
	}

	return &GetQuizResponse{
		Step:      step,
		Questions: pool,
	}, nil
}

type Answer struct {
	ChallengeID string
	Answer      string
}

type SubmitQuizRequest struct {
	TeamID    string
	Answers   []Answer
	TimeTaken int
	Now       time.Time
}

type SubmitQuizResponse struct {
	Attempt    domain.QuizAttempt
	TotalScore int64
}

// SubmitQuiz scores a quiz all or nothing: the decayed sum of the points of every
// question when all answers are right, zero otherwise. The attempt is recorded either
// way and closes the quiz of that step for good.
func (s *Service) SubmitQuiz(ctx context.Context, req SubmitQuizRequest) (resp *SubmitQuizResponse, err error) {
	defer func() {
		telemetry.QuizSubmissions.WithLabelValues(telemetry.Result(string(errors.ReasonOf(err)))).Inc()
	}()

	if len(req.Answers) == 0 {
		return nil, errors.InvalidInput("no answers submitted")
	}
	if req.TimeTaken < 0 {
		return nil, errors.InvalidInput("time taken must not be negative")
	}

	seen := make(map[string]struct{}, len(req.Answers))
	for _, a := range req.Answers {
		if a.ChallengeID == "" {
			return nil, errors.InvalidInput("question id is required")
		}
		if _, ok := seen[a.ChallengeID]; ok {
			return nil, errors.InvalidInput("question %s answered twice", a.ChallengeID)
		}
		seen[a.ChallengeID] = struct{}{}
	}

	team, step, err := s.quizStep(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}

	if err := s.checkNotAttempted(ctx, team.TeamID, step); err != nil {
		return nil, err
	}

	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	elapsed, ok := clock.SinceStart(settings, req.Now)
	if !ok {
		return nil, errors.EventNotRunning("event has not started")
	}

	attempt := domain.QuizAttempt{
		TeamID:     team.TeamID,
		Step:       step,
		TotalCount: len(req.Answers),
		TimeTaken:  req.TimeTaken,
		CreateTime: req.Now,
	}

	for _, a := range req.Answers {
		ch, err := s.store.Challenge(ctx, a.ChallengeID)
		if stderrors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get challenge: %w", err)
		}
		if ch.Step != step {
			continue
		}

		attempt.MaxPoints += ch.Points
		if content.Match(a.Answer, ch.CorrectAnswer) {
			attempt.CorrectCount++
		}
	}

	if attempt.CorrectCount == attempt.TotalCount {
		attempt.ScoreEarned = scoring.Award(attempt.MaxPoints, elapsed)
	}

	updated, err := s.store.InsertQuizAttempt(ctx, attempt)
	if stderrors.Is(err, store.ErrDuplicate) {
		return nil, errors.AlreadyAttempted(step)
	}
	if err != nil {
		return nil, fmt.Errorf("insert quiz attempt: %w", err)
	}

	telemetry.PointsAwarded.WithLabelValues("quiz").Add(float64(attempt.ScoreEarned))
	slog.InfoContext(ctx, "quiz: submitted",
		"team", team.TeamID,
		"step", step,
		"correct", attempt.CorrectCount,
		"total", attempt.TotalCount,
		"points", attempt.ScoreEarned,
	)

	s.eb.Publish(ctx, domain.EventQuizSubmitted{
		Team:    updated,
		Attempt: attempt,
	})
	if attempt.ScoreEarned > 0 {
		s.eb.Publish(ctx, domain.EventScoreUpdated{
			TeamID:     updated.TeamID,
			TotalScore: updated.Score,
		})
	}

	return &SubmitQuizResponse{
		Attempt:    attempt,
		TotalScore: updated.Score,
	}, nil
}

// quizStep is the step a team's quiz covers: the one it completed last.
func (s *Service) quizStep(ctx context.Context, teamID string) (domain.Team, int, error) {
	team, err := s.store.Team(ctx, teamID)
	if stderrors.Is(err, store.ErrNotFound) {
		return domain.Team{}, 0, errors.NotFound("team not found: %s", teamID)
	}
	if err != nil {
		return domain.Team{}, 0, fmt.Errorf("get team: %w", err)
	}

	step := team.CurrentStep - 1
	if step < 1 {
		return domain.Team{}, 0, errors.InvalidInput("no completed step to quiz yet")
	}

	return team, step, nil
}

func (s *Service) checkNotAttempted(ctx context.Context, teamID string, step int) error {
	_, err := s.store.QuizAttempt(ctx, teamID, step)
	switch {
	case err == nil:
		return errors.AlreadyAttempted(step)
	case stderrors.Is(err, store.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("get quiz attempt: %w", err)
	}
}
