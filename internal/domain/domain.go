package domain

import "time"

// Division partitions teams and content. DivisionAny marks content that applies to every division.
type Division string

const DivisionAny Division = "ANY"

// ClockStatus is the derived state of the event clock.
type ClockStatus string

const (
	ClockNotStarted ClockStatus = "not_started"
	ClockRunning    ClockStatus = "running"
	ClockPaused     ClockStatus = "paused"
	ClockStopped    ClockStatus = "stopped"
)

// EventSettings is the singleton record of the competition clock.
type EventSettings struct {
	Started         bool
	Paused          bool
	StartTime       *time.Time
	DurationMinutes int
	EndTime         *time.Time
}

// Status derives the clock state. A stopped event keeps its timestamps, which is
// how it is told apart from one that never started.
func (s EventSettings) Status() ClockStatus {
	switch {
	case s.Started && s.Paused:
		return ClockPaused
	case s.Started:
		return ClockRunning
	case s.StartTime != nil:
		return ClockStopped
	default:
		return ClockNotStarted
	}
}

type Team struct {
	TeamID            string
	Name              string
	Category          Division
	CurrentStep       int
	Score             int64
	Penalties         int
	LastWrongScanTime *time.Time
	StartTime         *time.Time
	CreateTime        time.Time
}

// Checkpoint is a physical location bound to one step of the sequence.
type Checkpoint struct {
	CheckpointID string
	Code         string
	Order        int
	Category     Division
	Answer       string
	Content      string
}

// Challenge is the question released after a valid scan, also the unit sampled by quizzes.
type Challenge struct {
	ChallengeID   string
	Step          int
	Category      Division
	Prompt        string
	Options       []string
	CorrectAnswer string
	Points        int64
	ImageURL      string
}

// Clue points a team to the checkpoint of a step.
type Clue struct {
	ClueID   string
	Step     int
	Category Division
	Text     string
	ImageURL string
}

// Hint is extra help on a step. Inactive hints are kept but never shown.
type Hint struct {
	HintID     string
	Step       int
	Category   Division
	Title      string
	Content    string
	Active     bool
	CreateTime time.Time
}

// ScanLog is one audit entry per scan or verify attempt.
type ScanLog struct {
	ScanLogID     string
	TeamID        string
	CheckpointID  string // empty when the scanned code is unknown
	IsCorrect     bool
	PointsAwarded int64
	TimeTaken     int
	CreateTime    time.Time
}

// QuizAttempt exists at most once per (team, step).
type QuizAttempt struct {
	QuizAttemptID string
	TeamID        string
	Step          int
	ScoreEarned   int64
	CorrectCount  int
	TotalCount    int
	MaxPoints     int64
	TimeTaken     int
	CreateTime    time.Time
}

// Leaderboard is a list of teams sorted by score in descending order.
type Leaderboard struct {
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	TeamID string
	Score  float64
}
