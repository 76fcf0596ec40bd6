package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/ehunt/internal/domain"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Postgres stores everything in one database. Team updates take a row lock
// (SELECT ... FOR UPDATE), so concurrent requests for one team are serialized.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) withTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback(ctx))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const (
	ensureSettingsStmt = `INSERT INTO event_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING;`
	selectSettingsStmt = `SELECT started, paused, start_time, duration_minutes, end_time FROM event_settings WHERE id = 1`
)

func (p *Postgres) Settings(ctx context.Context) (domain.EventSettings, error) {
	if _, err := p.db.Exec(ctx, ensureSettingsStmt); err != nil {
		return domain.EventSettings{}, fmt.Errorf("ensure settings: %w", err)
	}

	return scanSettings(p.db.QueryRow(ctx, selectSettingsStmt))
}

func (p *Postgres) UpdateSettings(ctx context.Context, fn SettingsUpdate) (domain.EventSettings, error) {
	var s domain.EventSettings
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensureSettingsStmt); err != nil {
			return fmt.Errorf("ensure settings: %w", err)
		}

		var err error
		s, err = scanSettings(tx.QueryRow(ctx, selectSettingsStmt+" FOR UPDATE"))
		if err != nil {
			return err
		}

		rebase, err := fn(&s)
		if err != nil {
			return err
		}

		const updStmt = `
UPDATE event_settings
SET started = $1, paused = $2, start_time = $3, duration_minutes = $4, end_time = $5
WHERE id = 1;`
		if _, err := tx.Exec(ctx, updStmt, s.Started, s.Paused, s.StartTime, s.DurationMinutes, s.EndTime); err != nil {
			return fmt.Errorf("update settings: %w", err)
		}

		if rebase && s.StartTime != nil {
			if _, err := tx.Exec(ctx, `UPDATE teams SET start_time = $1;`, *s.StartTime); err != nil {
				return fmt.Errorf("rebase teams: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return domain.EventSettings{}, err
	}

	return s, nil
}

func scanSettings(row pgx.Row) (domain.EventSettings, error) {
	var s domain.EventSettings
	if err := row.Scan(&s.Started, &s.Paused, &s.StartTime, &s.DurationMinutes, &s.EndTime); err != nil {
		return domain.EventSettings{}, fmt.Errorf("scan settings: %w", err)
	}
	return s, nil
}

const teamColumns = `team_id, name, category, current_step, score, penalties, last_wrong_scan_time, start_time, create_time`

func (p *Postgres) CreateTeam(ctx context.Context, t domain.Team) (domain.Team, error) {
	if t.TeamID == "" {
		t.TeamID = newID()
	}
	if t.CurrentStep == 0 {
		t.CurrentStep = 1
	}
	if t.CreateTime.IsZero() {
		t.CreateTime = time.Now()
	}

	const stmt = `
INSERT INTO teams (` + teamColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	_, err := p.db.Exec(ctx, stmt, t.TeamID, t.Name, string(t.Category), t.CurrentStep, t.Score, t.Penalties,
		t.LastWrongScanTime, t.StartTime, t.CreateTime)
	if isPgError(err, codeUniqueViolation) {
		return domain.Team{}, ErrDuplicate
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("insert team: %w", err)
	}

	return t, nil
}

func (p *Postgres) Team(ctx context.Context, id string) (domain.Team, error) {
	return scanTeam(p.db.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE team_id = $1`, id))
}

func (p *Postgres) ListTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := p.db.Query(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY create_time, team_id`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Team, error) {
		return scanTeam(r)
	})
}

func (p *Postgres) UpdateTeam(ctx context.Context, id string, fn TeamUpdate, log *domain.ScanLog) (domain.Team, error) {
	var t domain.Team
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		t, err = scanTeam(tx.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE team_id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		if err := fn(&t); err != nil {
			return err
		}

		const updStmt = `
UPDATE teams
SET category = $2, current_step = $3, score = $4, penalties = $5, last_wrong_scan_time = $6, start_time = $7
WHERE team_id = $1;`
		if _, err := tx.Exec(ctx, updStmt, t.TeamID, string(t.Category), t.CurrentStep, t.Score, t.Penalties,
			t.LastWrongScanTime, t.StartTime); err != nil {
			return fmt.Errorf("update team: %w", err)
		}

		if log != nil {
			return insertScanLog(ctx, tx, *log)
		}
		return nil
	})
	if err != nil {
		return domain.Team{}, err
	}

	return t, nil
}

func (p *Postgres) ResetTeam(ctx context.Context, id string, at time.Time) (domain.Team, error) {
	var t domain.Team
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		const stmt = `
UPDATE teams
SET score = 0, penalties = 0, current_step = 1, last_wrong_scan_time = NULL, start_time = $2
WHERE team_id = $1
RETURNING ` + teamColumns

		var err error
		t, err = scanTeam(tx.QueryRow(ctx, stmt, id, at))
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM scan_logs WHERE team_id = $1;`, id); err != nil {
			return fmt.Errorf("delete scan logs: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM quiz_attempts WHERE team_id = $1;`, id); err != nil {
			return fmt.Errorf("delete quiz attempts: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Team{}, err
	}

	return t, nil
}

func (p *Postgres) DeleteTeam(ctx context.Context, id string) error {
	// scan_logs and quiz_attempts cascade.
	tag, err := p.db.Exec(ctx, `DELETE FROM teams WHERE team_id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTeam(row pgx.Row) (domain.Team, error) {
	var (
		t        domain.Team
		category string
	)
	err := row.Scan(&t.TeamID, &t.Name, &category, &t.CurrentStep, &t.Score, &t.Penalties,
		&t.LastWrongScanTime, &t.StartTime, &t.CreateTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Team{}, ErrNotFound
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("scan team: %w", err)
	}

	t.Category = domain.Division(category)
	return t, nil
}

const checkpointColumns = `checkpoint_id, code, step_order, category, answer, content`

func (p *Postgres) PutCheckpoint(ctx context.Context, c domain.Checkpoint) (domain.Checkpoint, error) {
	if c.CheckpointID == "" {
		c.CheckpointID = newID()
	}

	const stmt = `
INSERT INTO checkpoints (` + checkpointColumns + `)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (checkpoint_id) DO UPDATE
SET code = EXCLUDED.code, step_order = EXCLUDED.step_order, category = EXCLUDED.category,
    answer = EXCLUDED.answer, content = EXCLUDED.content;`

	_, err := p.db.Exec(ctx, stmt, c.CheckpointID, c.Code, c.Order, string(c.Category), c.Answer, c.Content)
	if isPgError(err, codeUniqueViolation) {
		return domain.Checkpoint{}, ErrDuplicate
	}
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("upsert checkpoint: %w", err)
	}

	return c, nil
}

func (p *Postgres) Checkpoint(ctx context.Context, id string) (domain.Checkpoint, error) {
	return scanCheckpoint(p.db.QueryRow(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE checkpoint_id = $1`, id))
}

func (p *Postgres) CheckpointByCode(ctx context.Context, code string) (domain.Checkpoint, error) {
	return scanCheckpoint(p.db.QueryRow(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE code = $1`, code))
}

func (p *Postgres) MaxCheckpointOrder(ctx context.Context, divisions ...domain.Division) (int, error) {
	cats := make([]string, 0, len(divisions))
	for _, d := range divisions {
		cats = append(cats, string(d))
	}

	var highest int
	err := p.db.QueryRow(ctx, `SELECT COALESCE(MAX(step_order), 0) FROM checkpoints WHERE category = ANY($1)`, cats).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("max checkpoint order: %w", err)
	}

	return highest, nil
}

func scanCheckpoint(row pgx.Row) (domain.Checkpoint, error) {
	var (
		c        domain.Checkpoint
		category string
	)
	err := row.Scan(&c.CheckpointID, &c.Code, &c.Order, &category, &c.Answer, &c.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("scan checkpoint: %w", err)
	}

	c.Category = domain.Division(category)
	return c, nil
}

const challengeColumns = `challenge_id, step, category, prompt, options, correct_answer, points, image_url`

func (p *Postgres) PutChallenge(ctx context.Context, c domain.Challenge) (domain.Challenge, error) {
	if c.ChallengeID == "" {
		c.ChallengeID = newID()
	}
	if c.Options == nil {
		c.Options = []string{}
	}

	const stmt = `
INSERT INTO challenges (` + challengeColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (challenge_id) DO UPDATE
SET step = EXCLUDED.step, category = EXCLUDED.category, prompt = EXCLUDED.prompt, options = EXCLUDED.options,
    correct_answer = EXCLUDED.correct_answer, points = EXCLUDED.points, image_url = EXCLUDED.image_url;`

	_, err := p.db.Exec(ctx, stmt, c.ChallengeID, c.Step, string(c.Category), c.Prompt, c.Options, c.CorrectAnswer, c.Points, c.ImageURL)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("upsert challenge: %w", err)
	}

	return c, nil
}

func (p *Postgres) Challenge(ctx context.Context, id string) (domain.Challenge, error) {
	return scanChallenge(p.db.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE challenge_id = $1`, id))
}

func (p *Postgres) Challenges(ctx context.Context, step int, division domain.Division) ([]domain.Challenge, error) {
	const stmt = `SELECT ` + challengeColumns + ` FROM challenges WHERE step = $1 AND category = $2 ORDER BY create_time, challenge_id`

	rows, err := p.db.Query(ctx, stmt, step, string(division))
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Challenge, error) {
		return scanChallenge(r)
	})
}

func scanChallenge(row pgx.Row) (domain.Challenge, error) {
	var (
		c        domain.Challenge
		category string
	)
	err := row.Scan(&c.ChallengeID, &c.Step, &category, &c.Prompt, &c.Options, &c.CorrectAnswer, &c.Points, &c.ImageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, ErrNotFound
	}
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("scan challenge: %w", err)
	}

	c.Category = domain.Division(category)
	return c, nil
}

func (p *Postgres) PutClue(ctx context.Context, c domain.Clue) (domain.Clue, error) {
	if c.ClueID == "" {
		c.ClueID = newID()
	}

	const stmt = `
INSERT INTO clues (clue_id, step, category, text, image_url)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (clue_id) DO UPDATE
SET step = EXCLUDED.step, category = EXCLUDED.category, text = EXCLUDED.text, image_url = EXCLUDED.image_url;`

	_, err := p.db.Exec(ctx, stmt, c.ClueID, c.Step, string(c.Category), c.Text, c.ImageURL)
	if isPgError(err, codeUniqueViolation) {
		return domain.Clue{}, ErrDuplicate
	}
	if err != nil {
		return domain.Clue{}, fmt.Errorf("upsert clue: %w", err)
	}

	return c, nil
}

func (p *Postgres) Clue(ctx context.Context, step int, division domain.Division) (domain.Clue, error) {
	const stmt = `SELECT clue_id, step, category, text, image_url FROM clues WHERE step = $1 AND category = $2`

	var (
		c        domain.Clue
		category string
	)
	err := p.db.QueryRow(ctx, stmt, step, string(division)).Scan(&c.ClueID, &c.Step, &category, &c.Text, &c.ImageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Clue{}, ErrNotFound
	}
	if err != nil {
		return domain.Clue{}, fmt.Errorf("scan clue: %w", err)
	}

	c.Category = domain.Division(category)
	return c, nil
}

func (p *Postgres) AppendScanLog(ctx context.Context, l domain.ScanLog) error {
	return insertScanLog(ctx, p.db, l)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertScanLog(ctx context.Context, db execer, l domain.ScanLog) error {
	if l.ScanLogID == "" {
		l.ScanLogID = newID()
	}
	if l.CreateTime.IsZero() {
		l.CreateTime = time.Now()
	}

	var checkpoint *string
	if l.CheckpointID != "" {
		checkpoint = &l.CheckpointID
	}

	const stmt = `
INSERT INTO scan_logs (scan_log_id, team_id, checkpoint_id, is_correct, points_awarded, time_taken, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	if _, err := db.Exec(ctx, stmt, l.ScanLogID, l.TeamID, checkpoint, l.IsCorrect, l.PointsAwarded, l.TimeTaken, l.CreateTime); err != nil {
		return fmt.Errorf("insert scan log: %w", err)
	}
	return nil
}

func (p *Postgres) ScanLogs(ctx context.Context, teamID string) ([]domain.ScanLog, error) {
	const stmt = `
SELECT scan_log_id, team_id, COALESCE(checkpoint_id, ''), is_correct, points_awarded, time_taken, create_time
FROM scan_logs
WHERE team_id = $1
ORDER BY create_time, scan_log_id;`

	rows, err := p.db.Query(ctx, stmt, teamID)
	if err != nil {
		return nil, fmt.Errorf("list scan logs: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.ScanLog, error) {
		var l domain.ScanLog
		err := r.Scan(&l.ScanLogID, &l.TeamID, &l.CheckpointID, &l.IsCorrect, &l.PointsAwarded, &l.TimeTaken, &l.CreateTime)
		return l, err
	})
}

const quizAttemptColumns = `quiz_attempt_id, team_id, step, score_earned, correct_count, total_count, max_points, time_taken, create_time`

func (p *Postgres) QuizAttempt(ctx context.Context, teamID string, step int) (domain.QuizAttempt, error) {
	const stmt = `SELECT ` + quizAttemptColumns + ` FROM quiz_attempts WHERE team_id = $1 AND step = $2`

	var a domain.QuizAttempt
	err := p.db.QueryRow(ctx, stmt, teamID, step).Scan(&a.QuizAttemptID, &a.TeamID, &a.Step, &a.ScoreEarned,
		&a.CorrectCount, &a.TotalCount, &a.MaxPoints, &a.TimeTaken, &a.CreateTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizAttempt{}, ErrNotFound
	}
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("scan quiz attempt: %w", err)
	}

	return a, nil
}

// InsertQuizAttempt writes the attempt and credits its score in one transaction.
// The unique (team_id, step) constraint rejects a second attempt with ErrDuplicate.
func (p *Postgres) InsertQuizAttempt(ctx context.Context, a domain.QuizAttempt) (domain.Team, error) {
	if a.QuizAttemptID == "" {
		a.QuizAttemptID = newID()
	}
	if a.CreateTime.IsZero() {
		a.CreateTime = time.Now()
	}

	var t domain.Team
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		const insStmt = `
INSERT INTO quiz_attempts (` + quizAttemptColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

		_, err := tx.Exec(ctx, insStmt, a.QuizAttemptID, a.TeamID, a.Step, a.ScoreEarned,
			a.CorrectCount, a.TotalCount, a.MaxPoints, a.TimeTaken, a.CreateTime)
		switch {
		case isPgError(err, codeUniqueViolation):
			return ErrDuplicate
		case isPgError(err, codeForeignKeyViolation):
			return ErrNotFound
		case err != nil:
			return fmt.Errorf("insert quiz attempt: %w", err)
		}

		const updStmt = `UPDATE teams SET score = score + $2 WHERE team_id = $1 RETURNING ` + teamColumns
		t, err = scanTeam(tx.QueryRow(ctx, updStmt, a.TeamID, a.ScoreEarned))
		return err
	})
	if err != nil {
		return domain.Team{}, err
	}

	return t, nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func (p *Postgres) PutHint(ctx context.Context, h domain.Hint) (domain.Hint, error) {
	if h.HintID == "" {
		h.HintID = newID()
	}
	if h.CreateTime.IsZero() {
		h.CreateTime = time.Now()
	}

	const stmt = `
INSERT INTO hints (hint_id, step, category, title, content, active, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (hint_id) DO UPDATE
SET step = EXCLUDED.step, category = EXCLUDED.category, title = EXCLUDED.title,
    content = EXCLUDED.content, active = EXCLUDED.active
RETURNING create_time;`

	err := p.db.QueryRow(ctx, stmt, h.HintID, h.Step, string(h.Category), h.Title, h.Content, h.Active, h.CreateTime).
		Scan(&h.CreateTime)
	if err != nil {
		return domain.Hint{}, fmt.Errorf("upsert hint: %w", err)
	}

	return h, nil
}

func (p *Postgres) Hints(ctx context.Context, step int, divisions ...domain.Division) ([]domain.Hint, error) {
	const stmt = `
SELECT hint_id, step, category, title, content, active, create_time
FROM hints
WHERE step = $1 AND category = ANY($2) AND active
ORDER BY create_time DESC, hint_id`

	categories := make([]string, 0, len(divisions))
	for _, d := range divisions {
		categories = append(categories, string(d))
	}

	rows, err := p.db.Query(ctx, stmt, step, categories)
	if err != nil {
		return nil, fmt.Errorf("list hints: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Hint, error) {
		var (
			h        domain.Hint
			category string
		)
		if err := r.Scan(&h.HintID, &h.Step, &category, &h.Title, &h.Content, &h.Active, &h.CreateTime); err != nil {
			return domain.Hint{}, fmt.Errorf("scan hint: %w", err)
		}
		h.Category = domain.Division(category)
		return h, nil
	})
}
