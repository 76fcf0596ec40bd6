package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/ehunt/internal/domain"
)

const maxConcurrent = 100

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PublishLeaderboardUpdated sends the leaderboard to the broadcast channel and to
// every ranked team on its own channel.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data, err := a.newLeaderboard(ctx, e.Leaderboard, 0)
	if err != nil {
		return err
	}

	if err := a.publishNotification(ctx, a.broadcastChannel(), e.Name(), data); err != nil {
		return err
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, a.teamChannel(entry.TeamID), e.Name(), data)
		})
	}

	return eg.Wait()
}

type teamAdvanced struct {
	TeamID        string `json:"teamId"`
	FromStep      int    `json:"fromStep"`
	CurrentStep   int    `json:"currentStep"`
	PointsAwarded int64  `json:"pointsAwarded"`
	TotalScore    int64  `json:"totalScore"`
	Finished      bool   `json:"finished"`
}

func (a *API) PublishTeamAdvanced(ctx context.Context, e domain.EventTeamAdvanced) error {
	return a.publishNotification(ctx, a.teamChannel(e.Team.TeamID), e.Name(), teamAdvanced{
		TeamID:        e.Team.TeamID,
		FromStep:      e.FromStep,
		CurrentStep:   e.Team.CurrentStep,
		PointsAwarded: e.PointsAwarded,
		TotalScore:    e.Team.Score,
		Finished:      e.Finished,
	})
}

type quizSubmitted struct {
	TeamID       string `json:"teamId"`
	Step         int    `json:"step"`
	ScoreEarned  int64  `json:"scoreEarned"`
	TotalScore   int64  `json:"totalScore"`
	CorrectCount int    `json:"correctCount"`
	TotalCount   int    `json:"totalCount"`
}

func (a *API) PublishQuizSubmitted(ctx context.Context, e domain.EventQuizSubmitted) error {
	return a.publishNotification(ctx, a.teamChannel(e.Team.TeamID), e.Name(), quizSubmitted{
		TeamID:       e.Team.TeamID,
		Step:         e.Attempt.Step,
		ScoreEarned:  e.Attempt.ScoreEarned,
		TotalScore:   e.Team.Score,
		CorrectCount: e.Attempt.CorrectCount,
		TotalCount:   e.Attempt.TotalCount,
	})
}

type clockChanged struct {
	gameStatusResponse
	Action string `json:"action"`
}

func (a *API) PublishClockChanged(ctx context.Context, e domain.EventClockChanged) error {
	s := e.Settings
	return a.publishNotification(ctx, a.broadcastChannel(), e.Name(), clockChanged{
		gameStatusResponse: gameStatusResponse{
			Started:         s.Started,
			Paused:          s.Paused,
			Status:          string(s.Status()),
			StartTime:       s.StartTime,
			EndTime:         s.EndTime,
			DurationMinutes: s.DurationMinutes,
			ServerTime:      a.now(),
		},
		Action: e.Action,
	})
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}

func (a *API) teamChannel(teamID string) string {
	return fmt.Sprintf("%s:team:%s", a.prefix, teamID)
}

func (a *API) broadcastChannel() string {
	return a.prefix + ":broadcast"
}
