package progression

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/errors"
	"github.com/victornm/ehunt/internal/store"
	"github.com/victornm/ehunt/internal/telemetry"
)

type ScanRequest struct {
	TeamID string
	Code   string
	Now    time.Time
}

type ScanResponse struct {
	Checkpoint domain.Checkpoint
	Challenge  domain.Challenge
}

// AdmitScan checks a scanned code against the team's current step and division and
// releases the challenge of that step. A successful scan changes nothing, so it can
// be repeated freely.
func (s *Service) AdmitScan(ctx context.Context, req ScanRequest) (resp *ScanResponse, err error) {
	defer func() {
		telemetry.Scans.WithLabelValues(telemetry.Result(string(errors.ReasonOf(err)))).Inc()
	}()

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, errors.InvalidInput("invalid scan data, please try again")
	}

	team, err := s.team(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}

	if locked, remaining := s.guard.IsLocked(team, req.Now); locked {
		return nil, errors.Locked(remaining)
	}

	cp, err := s.store.CheckpointByCode(ctx, code)
	if stderrors.Is(err, store.ErrNotFound) {
		if err := s.rejectScan(ctx, team.TeamID, "", req.Now); err != nil {
			return nil, err
		}
		return nil, errors.UnknownCode(s.guard.Window)
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}

	if cp.Order != team.CurrentStep {
		if err := s.rejectScan(ctx, team.TeamID, cp.CheckpointID, req.Now); err != nil {
			return nil, err
		}
		slog.DebugContext(ctx, "progression: wrong sequence",
			"team", team.TeamID,
			"step", team.CurrentStep,
			"checkpoint", cp.CheckpointID,
			"order", cp.Order,
		)
		return nil, errors.WrongSequence(s.guard.Window)
	}

	if cp.Category != domain.DivisionAny && cp.Category != team.Category {
		return nil, errors.DivisionMismatch(string(cp.Category))
	}

	ch, err := s.challengeFor(ctx, team.CurrentStep, team.Category)
	if stderrors.Is(err, store.ErrNotFound) {
		slog.ErrorContext(ctx, "progression: no challenge authored",
			"team", team.TeamID,
			"step", team.CurrentStep,
			"division", team.Category,
		)
		return nil, errors.DataIntegrity("no challenge found for step %d", team.CurrentStep)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve challenge: %w", err)
	}

	return &ScanResponse{
		Checkpoint: cp,
		Challenge:  ch,
	}, nil
}

// rejectScan starts the cooldown of a team and records the failed scan with it.
func (s *Service) rejectScan(ctx context.Context, teamID, checkpointID string, now time.Time) error {
	return s.recordFailure(ctx, &domain.ScanLog{
		TeamID:       teamID,
		CheckpointID: checkpointID,
		IsCorrect:    false,
		CreateTime:   now,
	})
}

func (s *Service) recordFailure(ctx context.Context, log *domain.ScanLog) error {
	team, err := s.store.UpdateTeam(ctx, log.TeamID, func(t *domain.Team) error {
		s.guard.RecordFailure(t, log.CreateTime)
		return nil
	}, log)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}

	if s.guard.Penalty.Enabled {
		s.eb.Publish(ctx, domain.EventScoreUpdated{
			TeamID:     team.TeamID,
			TotalScore: team.Score,
		})
	}

	return nil
}
