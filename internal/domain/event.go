package domain

const (
	EventNameClockChanged       = "clock.changed"
	EventNameTeamAdvanced       = "team.advanced"
	EventNameQuizSubmitted      = "quiz.submitted"
	EventNameScoreUpdated       = "score.updated"
	EventNameLeaderboardUpdated = "leaderboard.updated"
	EventNameTeamRemoved        = "team.removed"
)

type EventClockChanged struct {
	Settings EventSettings
	Action   string
}

func (EventClockChanged) Name() string { return EventNameClockChanged }

type EventTeamAdvanced struct {
	Team          Team
	FromStep      int
	PointsAwarded int64
	Finished      bool
}

func (EventTeamAdvanced) Name() string { return EventNameTeamAdvanced }

type EventQuizSubmitted struct {
	Team    Team
	Attempt QuizAttempt
}

func (EventQuizSubmitted) Name() string { return EventNameQuizSubmitted }

// EventScoreUpdated carries the total score of a team after any change, including resets.
type EventScoreUpdated struct {
	TeamID     string
	TotalScore int64
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }

// EventTeamRemoved is published after an admin deleted a team and its ledgers.
type EventTeamRemoved struct {
	TeamID string
}

func (EventTeamRemoved) Name() string { return EventNameTeamRemoved }
