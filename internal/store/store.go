// Package store persists teams, authored content, the event clock and the audit ledgers.
//
// Two implementations share one contract: Postgres for deployments and Memory for tests
// and single-process runs. Both serialize updates of a team, so a TeamUpdate always
// observes the latest committed row.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/ehunt/internal/domain"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate")
)

// Store is implemented by Postgres and Memory.
type Store interface {
	Settings(ctx context.Context) (domain.EventSettings, error)
	UpdateSettings(ctx context.Context, fn SettingsUpdate) (domain.EventSettings, error)

	CreateTeam(ctx context.Context, t domain.Team) (domain.Team, error)
	Team(ctx context.Context, id string) (domain.Team, error)
	ListTeams(ctx context.Context) ([]domain.Team, error)
	// UpdateTeam applies fn to the locked team and, when log is not nil, appends it
	// in the same unit of work.
	UpdateTeam(ctx context.Context, id string, fn TeamUpdate, log *domain.ScanLog) (domain.Team, error)
	ResetTeam(ctx context.Context, id string, at time.Time) (domain.Team, error)
	// DeleteTeam removes the team with its scan logs and quiz attempts.
	DeleteTeam(ctx context.Context, id string) error

	PutCheckpoint(ctx context.Context, c domain.Checkpoint) (domain.Checkpoint, error)
	Checkpoint(ctx context.Context, id string) (domain.Checkpoint, error)
	CheckpointByCode(ctx context.Context, code string) (domain.Checkpoint, error)
	MaxCheckpointOrder(ctx context.Context, divisions ...domain.Division) (int, error)

	PutChallenge(ctx context.Context, c domain.Challenge) (domain.Challenge, error)
	Challenge(ctx context.Context, id string) (domain.Challenge, error)
	// Challenges lists the challenges of a step authored for exactly division, oldest first.
	Challenges(ctx context.Context, step int, division domain.Division) ([]domain.Challenge, error)

	PutClue(ctx context.Context, c domain.Clue) (domain.Clue, error)
	Clue(ctx context.Context, step int, division domain.Division) (domain.Clue, error)

	PutHint(ctx context.Context, h domain.Hint) (domain.Hint, error)
	// Hints lists the active hints of a step authored for any of divisions, newest first.
	Hints(ctx context.Context, step int, divisions ...domain.Division) ([]domain.Hint, error)

	AppendScanLog(ctx context.Context, l domain.ScanLog) error
	ScanLogs(ctx context.Context, teamID string) ([]domain.ScanLog, error)

	QuizAttempt(ctx context.Context, teamID string, step int) (domain.QuizAttempt, error)
	// InsertQuizAttempt records a and adds a.ScoreEarned to the team atomically.
	// It returns ErrDuplicate when the team already has an attempt for a.Step.
	InsertQuizAttempt(ctx context.Context, a domain.QuizAttempt) (domain.Team, error)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)

// TeamUpdate mutates a locked team. Returning an error aborts the update and is passed through.
type TeamUpdate func(t *domain.Team) error

// SettingsUpdate mutates the locked clock record. rebaseTeams sets every team's start time
// to the new settings' start time within the same unit of work.
type SettingsUpdate func(s *domain.EventSettings) (rebaseTeams bool, err error)

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func defaultSettings() domain.EventSettings {
	return domain.EventSettings{DurationMinutes: 120}
}
