package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/victornm/ehunt/internal/domain"
)

type quizKey struct {
	teamID string
	step   int
}

// Memory is an in-process store. A single mutex serializes every write, which gives
// the same per-team guarantees as the row locks of Postgres.
type Memory struct {
	mu sync.Mutex

	settings    *domain.EventSettings
	teams       map[string]domain.Team
	teamOrder   []string
	checkpoints []domain.Checkpoint
	challenges  []domain.Challenge
	clues       []domain.Clue
	hints       []domain.Hint
	scanLogs    []domain.ScanLog
	attempts    map[quizKey]domain.QuizAttempt
}

func NewMemory() *Memory {
	return &Memory{
		teams:    make(map[string]domain.Team),
		attempts: make(map[quizKey]domain.QuizAttempt),
	}
}

func (m *Memory) Settings(_ context.Context) (domain.EventSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return cloneSettings(*m.loadSettings()), nil
}

func (m *Memory) UpdateSettings(_ context.Context, fn SettingsUpdate) (domain.EventSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := cloneSettings(*m.loadSettings())
	rebase, err := fn(&s)
	if err != nil {
		return domain.EventSettings{}, err
	}

	if rebase && s.StartTime != nil {
		for id, t := range m.teams {
			t.StartTime = timePtr(*s.StartTime)
			m.teams[id] = t
		}
	}

	stored := cloneSettings(s)
	m.settings = &stored
	return cloneSettings(s), nil
}

func (m *Memory) loadSettings() *domain.EventSettings {
	if m.settings == nil {
		s := defaultSettings()
		m.settings = &s
	}
	return m.settings
}

func (m *Memory) CreateTeam(_ context.Context, t domain.Team) (domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.TeamID == "" {
		t.TeamID = newID()
	}
	if _, ok := m.teams[t.TeamID]; ok {
		return domain.Team{}, ErrDuplicate
	}
	for _, other := range m.teams {
		if t.Name != "" && other.Name == t.Name {
			return domain.Team{}, ErrDuplicate
		}
	}
	if t.CurrentStep == 0 {
		t.CurrentStep = 1
	}
	if t.CreateTime.IsZero() {
		t.CreateTime = time.Now()
	}

	m.teams[t.TeamID] = cloneTeam(t)
	m.teamOrder = append(m.teamOrder, t.TeamID)
	return cloneTeam(t), nil
}

func (m *Memory) Team(_ context.Context, id string) (domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[id]
	if !ok {
		return domain.Team{}, ErrNotFound
	}
	return cloneTeam(t), nil
}

func (m *Memory) ListTeams(_ context.Context) ([]domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	teams := make([]domain.Team, 0, len(m.teamOrder))
	for _, id := range m.teamOrder {
		if t, ok := m.teams[id]; ok {
			teams = append(teams, cloneTeam(t))
		}
	}
	return teams, nil
}

func (m *Memory) UpdateTeam(_ context.Context, id string, fn TeamUpdate, log *domain.ScanLog) (domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[id]
	if !ok {
		return domain.Team{}, ErrNotFound
	}

	t = cloneTeam(t)
	if err := fn(&t); err != nil {
		return domain.Team{}, err
	}

	m.teams[id] = cloneTeam(t)
	if log != nil {
		m.appendScanLog(*log)
	}
	return cloneTeam(t), nil
}

func (m *Memory) ResetTeam(_ context.Context, id string, at time.Time) (domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[id]
	if !ok {
		return domain.Team{}, ErrNotFound
	}

	t.Score = 0
	t.Penalties = 0
	t.CurrentStep = 1
	t.LastWrongScanTime = nil
	t.StartTime = timePtr(at)
	m.teams[id] = t

	m.scanLogs = slices.DeleteFunc(m.scanLogs, func(l domain.ScanLog) bool { return l.TeamID == id })
	for k := range m.attempts {
		if k.teamID == id {
			delete(m.attempts, k)
		}
	}

	return cloneTeam(t), nil
}

func (m *Memory) DeleteTeam(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.teams[id]; !ok {
		return ErrNotFound
	}

	delete(m.teams, id)
	m.teamOrder = slices.DeleteFunc(m.teamOrder, func(other string) bool { return other == id })
	m.scanLogs = slices.DeleteFunc(m.scanLogs, func(l domain.ScanLog) bool { return l.TeamID == id })
	for k := range m.attempts {
		if k.teamID == id {
			delete(m.attempts, k)
		}
	}
	return nil
}

func (m *Memory) PutCheckpoint(_ context.Context, c domain.Checkpoint) (domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.CheckpointID == "" {
		c.CheckpointID = newID()
	}
	existing := -1
	for i, other := range m.checkpoints {
		switch {
		case other.CheckpointID == c.CheckpointID:
			existing = i
		case other.Code == c.Code:
			return domain.Checkpoint{}, ErrDuplicate
		}
	}

	if existing >= 0 {
		m.checkpoints[existing] = c
	} else {
		m.checkpoints = append(m.checkpoints, c)
	}
	return c, nil
}

func (m *Memory) Checkpoint(_ context.Context, id string) (domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.checkpoints {
		if c.CheckpointID == id {
			return c, nil
		}
	}
	return domain.Checkpoint{}, ErrNotFound
}

func (m *Memory) CheckpointByCode(_ context.Context, code string) (domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.checkpoints {
		if c.Code == code {
			return c, nil
		}
	}
	return domain.Checkpoint{}, ErrNotFound
}

func (m *Memory) MaxCheckpointOrder(_ context.Context, divisions ...domain.Division) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var highest int
	for _, c := range m.checkpoints {
		if slices.Contains(divisions, c.Category) && c.Order > highest {
			highest = c.Order
		}
	}
	return highest, nil
}

func (m *Memory) PutChallenge(_ context.Context, c domain.Challenge) (domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ChallengeID == "" {
		c.ChallengeID = newID()
	}
	c.Options = slices.Clone(c.Options)
	for i, other := range m.challenges {
		if other.ChallengeID == c.ChallengeID {
			m.challenges[i] = c
			return c, nil
		}
	}

	m.challenges = append(m.challenges, c)
	return c, nil
}

func (m *Memory) Challenge(_ context.Context, id string) (domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.challenges {
		if c.ChallengeID == id {
			return cloneChallenge(c), nil
		}
	}
	return domain.Challenge{}, ErrNotFound
}

func (m *Memory) Challenges(_ context.Context, step int, division domain.Division) ([]domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []domain.Challenge
	for _, c := range m.challenges {
		if c.Step == step && c.Category == division {
			res = append(res, cloneChallenge(c))
		}
	}
	return res, nil
}

func (m *Memory) PutClue(_ context.Context, c domain.Clue) (domain.Clue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ClueID == "" {
		c.ClueID = newID()
	}
	existing := -1
	for i, other := range m.clues {
		switch {
		case other.ClueID == c.ClueID:
			existing = i
		case other.Step == c.Step && other.Category == c.Category:
			return domain.Clue{}, ErrDuplicate
		}
	}

	if existing >= 0 {
		m.clues[existing] = c
	} else {
		m.clues = append(m.clues, c)
	}
	return c, nil
}

func (m *Memory) Clue(_ context.Context, step int, division domain.Division) (domain.Clue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.clues {
		if c.Step == step && c.Category == division {
			return c, nil
		}
	}
	return domain.Clue{}, ErrNotFound
}

func (m *Memory) PutHint(_ context.Context, h domain.Hint) (domain.Hint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h.HintID == "" {
		h.HintID = newID()
	}
	if h.CreateTime.IsZero() {
		h.CreateTime = time.Now()
	}
	for i, other := range m.hints {
		if other.HintID == h.HintID {
			h.CreateTime = other.CreateTime
			m.hints[i] = h
			return h, nil
		}
	}

	m.hints = append(m.hints, h)
	return h, nil
}

func (m *Memory) Hints(_ context.Context, step int, divisions ...domain.Division) ([]domain.Hint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []domain.Hint
	for _, h := range m.hints {
		if h.Active && h.Step == step && slices.Contains(divisions, h.Category) {
			res = append(res, h)
		}
	}
	slices.SortStableFunc(res, func(a, b domain.Hint) int { return b.CreateTime.Compare(a.CreateTime) })
	return res, nil
}

func (m *Memory) AppendScanLog(_ context.Context, l domain.ScanLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendScanLog(l)
	return nil
}

func (m *Memory) appendScanLog(l domain.ScanLog) {
	if l.ScanLogID == "" {
		l.ScanLogID = newID()
	}
	if l.CreateTime.IsZero() {
		l.CreateTime = time.Now()
	}
	m.scanLogs = append(m.scanLogs, l)
}

func (m *Memory) ScanLogs(_ context.Context, teamID string) ([]domain.ScanLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []domain.ScanLog
	for _, l := range m.scanLogs {
		if l.TeamID == teamID {
			res = append(res, l)
		}
	}
	return res, nil
}

func (m *Memory) QuizAttempt(_ context.Context, teamID string, step int) (domain.QuizAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attempts[quizKey{teamID: teamID, step: step}]
	if !ok {
		return domain.QuizAttempt{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) InsertQuizAttempt(_ context.Context, a domain.QuizAttempt) (domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[a.TeamID]
	if !ok {
		return domain.Team{}, ErrNotFound
	}

	k := quizKey{teamID: a.TeamID, step: a.Step}
	if _, ok := m.attempts[k]; ok {
		return domain.Team{}, ErrDuplicate
	}

	if a.QuizAttemptID == "" {
		a.QuizAttemptID = newID()
	}
	if a.CreateTime.IsZero() {
		a.CreateTime = time.Now()
	}
	m.attempts[k] = a

	t.Score += a.ScoreEarned
	m.teams[a.TeamID] = t
	return cloneTeam(t), nil
}

func cloneTeam(t domain.Team) domain.Team {
	if t.LastWrongScanTime != nil {
		t.LastWrongScanTime = timePtr(*t.LastWrongScanTime)
	}
	if t.StartTime != nil {
		t.StartTime = timePtr(*t.StartTime)
	}
	return t
}

func cloneSettings(s domain.EventSettings) domain.EventSettings {
	if s.StartTime != nil {
		s.StartTime = timePtr(*s.StartTime)
	}
	if s.EndTime != nil {
		s.EndTime = timePtr(*s.EndTime)
	}
	return s
}

func cloneChallenge(c domain.Challenge) domain.Challenge {
	c.Options = slices.Clone(c.Options)
	return c
}
