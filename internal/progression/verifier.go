package progression

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/victornm/ehunt/internal/clock"
	"github.com/victornm/ehunt/internal/content"
	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/errors"
	"github.com/victornm/ehunt/internal/scoring"
	"github.com/victornm/ehunt/internal/store"
	"github.com/victornm/ehunt/internal/telemetry"
)

type VerifyRequest struct {
	TeamID       string
	CheckpointID string
	ChallengeID  string
	Answer       string
	// TimeTaken is the client reported solving time in seconds, kept for audit only.
	TimeTaken int
	Now       time.Time
}

type VerifyResponse struct {
	Team       domain.Team
	Score      int64
	NextStep   int
	IsFinished bool
	NextClue   *domain.Clue
}

// Verify checks the answer to the challenge released at a checkpoint. A correct answer
// advances the team by exactly one step, credits the decayed points and moves the team
// to another division, all in one update of the team.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (resp *VerifyResponse, err error) {
	defer func() {
		telemetry.Verifications.WithLabelValues(telemetry.Result(string(errors.ReasonOf(err)))).Inc()
	}()

	if req.CheckpointID == "" || req.ChallengeID == "" {
		return nil, errors.InvalidInput("checkpoint and challenge are required")
	}
	if strings.TrimSpace(req.Answer) == "" {
		return nil, errors.InvalidInput("answer is required")
	}
	if req.TimeTaken < 0 {
		return nil, errors.InvalidInput("time taken must not be negative")
	}

	team, err := s.team(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}

	cp, err := s.store.Checkpoint(ctx, req.CheckpointID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.OutOfSync()
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	if cp.Order != team.CurrentStep {
		return nil, errors.OutOfSync()
	}

	ch, err := s.store.Challenge(ctx, req.ChallengeID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.ChallengeMissing()
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	if ch.Step != cp.Order {
		return nil, errors.OutOfSync()
	}

	if !content.Match(req.Answer, ch.CorrectAnswer) {
		err := s.recordFailure(ctx, &domain.ScanLog{
			TeamID:       team.TeamID,
			CheckpointID: cp.CheckpointID,
			IsCorrect:    false,
			TimeTaken:    req.TimeTaken,
			CreateTime:   req.Now,
		})
		if err != nil {
			return nil, err
		}
		return nil, errors.IncorrectAnswer(s.guard.Window)
	}

	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	elapsed, _ := clock.ElapsedMinutes(settings, req.Now)
	points := scoring.Award(ch.Points, elapsed)

	advanced, err := s.store.UpdateTeam(ctx, team.TeamID, func(t *domain.Team) error {
		if t.CurrentStep != cp.Order {
			return errors.AlreadyAdvanced()
		}

		t.Score += points
		t.CurrentStep++
		t.Category = s.reroll(t.Category)
		return nil
	}, &domain.ScanLog{
		TeamID:        team.TeamID,
		CheckpointID:  cp.CheckpointID,
		IsCorrect:     true,
		PointsAwarded: points,
		TimeTaken:     req.TimeTaken,
		CreateTime:    req.Now,
	})
	if err != nil {
		return nil, err
	}

	resp = &VerifyResponse{
		Team:     advanced,
		Score:    points,
		NextStep: advanced.CurrentStep,
	}

	highest, err := s.store.MaxCheckpointOrder(ctx, advanced.Category, domain.DivisionAny)
	if err != nil {
		return nil, fmt.Errorf("get total steps: %w", err)
	}
	resp.IsFinished = advanced.CurrentStep > highest

	if !resp.IsFinished {
		clue, err := s.clueFor(ctx, advanced.CurrentStep, advanced.Category)
		switch {
		case err == nil:
			resp.NextClue = &clue
		case stderrors.Is(err, store.ErrNotFound):
			slog.WarnContext(ctx, "progression: no clue authored",
				"team", advanced.TeamID,
				"step", advanced.CurrentStep,
				"division", advanced.Category,
			)
		default:
			return nil, fmt.Errorf("resolve clue: %w", err)
		}
	}

	telemetry.PointsAwarded.WithLabelValues("checkpoint").Add(float64(points))
	slog.InfoContext(ctx, "progression: team advanced",
		"team", advanced.TeamID,
		"step", advanced.CurrentStep,
		"checkpoint", cp.CheckpointID,
		"points", points,
		"division", advanced.Category,
		"finished", resp.IsFinished,
	)

	s.eb.Publish(ctx, domain.EventTeamAdvanced{
		Team:          advanced,
		FromStep:      cp.Order,
		PointsAwarded: points,
		Finished:      resp.IsFinished,
	})
	s.eb.Publish(ctx, domain.EventScoreUpdated{
		TeamID:     advanced.TeamID,
		TotalScore: advanced.Score,
	})

	return resp, nil
}
