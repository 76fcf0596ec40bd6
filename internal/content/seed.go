package content

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/victornm/ehunt/internal/config"
	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/store"
)

// Seed is the content file format.
type Seed struct {
	Teams []struct {
		ID       string
		Name     string
		Category string
	}

	Checkpoints []struct {
		ID       string
		Code     string
		Order    int
		Category string
		Answer   string
		Content  string
	}

	Challenges []struct {
		ID            string
		Step          int
		Category      string
		Prompt        string
		Options       any // a list, or free-form text parsed by ParseOptions
		CorrectAnswer string
		Points        int64
		ImageURL      string
	}

	Clues []struct {
		ID       string
		Step     int
		Category string
		Text     string
		ImageURL string
	}

	Hints []struct {
		ID       string
		Step     int
		Category string
		Title    string
		Content  string
		Active   *bool // defaults to true
	}
}

type Writer interface {
	CreateTeam(ctx context.Context, t domain.Team) (domain.Team, error)
	PutCheckpoint(ctx context.Context, c domain.Checkpoint) (domain.Checkpoint, error)
	PutChallenge(ctx context.Context, c domain.Challenge) (domain.Challenge, error)
	PutClue(ctx context.Context, c domain.Clue) (domain.Clue, error)
	PutHint(ctx context.Context, h domain.Hint) (domain.Hint, error)
}

// LoadSeed reads a seed file with the config loader and writes it through w.
func LoadSeed(ctx context.Context, w Writer, file string, divisions []domain.Division) error {
	var s Seed
	if err := config.Load(file, &s); err != nil {
		return fmt.Errorf("content: %w", err)
	}

	return Apply(ctx, w, s, divisions)
}

// Apply writes s through w. Entries without an id get one derived from their natural
// key, so applying the same seed twice updates rows instead of duplicating them.
// Teams that already exist are left untouched. Teams without a category are dealt
// round robin over divisions.
func Apply(ctx context.Context, w Writer, s Seed, divisions []domain.Division) error {
	for _, c := range s.Checkpoints {
		_, err := w.PutCheckpoint(ctx, domain.Checkpoint{
			CheckpointID: idOr(c.ID, "checkpoint", c.Code),
			Code:         strings.TrimSpace(c.Code),
			Order:        c.Order,
			Category:     division(c.Category),
			Answer:       c.Answer,
			Content:      c.Content,
		})
		if err != nil {
			return fmt.Errorf("content: checkpoint %s: %w", c.Code, err)
		}
	}

	for _, c := range s.Challenges {
		_, err := w.PutChallenge(ctx, domain.Challenge{
			ChallengeID:   idOr(c.ID, "challenge", fmt.Sprint(c.Step), c.Category, c.Prompt),
			Step:          c.Step,
			Category:      division(c.Category),
			Prompt:        c.Prompt,
			Options:       options(c.Options),
			CorrectAnswer: c.CorrectAnswer,
			Points:        c.Points,
			ImageURL:      c.ImageURL,
		})
		if err != nil {
			return fmt.Errorf("content: challenge step %d: %w", c.Step, err)
		}
	}

	for _, c := range s.Clues {
		_, err := w.PutClue(ctx, domain.Clue{
			ClueID:   idOr(c.ID, "clue", fmt.Sprint(c.Step), c.Category),
			Step:     c.Step,
			Category: division(c.Category),
			Text:     c.Text,
			ImageURL: c.ImageURL,
		})
		if err != nil {
			return fmt.Errorf("content: clue step %d: %w", c.Step, err)
		}
	}

	for _, h := range s.Hints {
		_, err := w.PutHint(ctx, domain.Hint{
			HintID:   idOr(h.ID, "hint", fmt.Sprint(h.Step), h.Category, h.Title),
			Step:     h.Step,
			Category: division(h.Category),
			Title:    h.Title,
			Content:  h.Content,
			Active:   h.Active == nil || *h.Active,
		})
		if err != nil {
			return fmt.Errorf("content: hint step %d: %w", h.Step, err)
		}
	}

	var created int
	for i, t := range s.Teams {
		category := division(t.Category)
		if strings.TrimSpace(t.Category) == "" && len(divisions) > 0 {
			category = divisions[i%len(divisions)]
		}

		_, err := w.CreateTeam(ctx, domain.Team{
			TeamID:   idOr(t.ID, "team", t.Name),
			Name:     t.Name,
			Category: category,
		})
		if stderrors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return fmt.Errorf("content: team %s: %w", t.Name, err)
		}
		created++
	}

	slog.InfoContext(ctx, "content: seed applied",
		"checkpoints", len(s.Checkpoints),
		"challenges", len(s.Challenges),
		"clues", len(s.Clues),
		"hints", len(s.Hints),
		"teams", created,
	)
	return nil
}

var seedNamespace = uuid.MustParse("8c0a3f5e-2b7d-4d35-9a61-3f1c5b2e9d40")

func idOr(id string, kind string, key ...string) string {
	if id != "" {
		return id
	}
	return uuid.NewSHA1(seedNamespace, []byte(kind+":"+strings.Join(key, ":"))).String()
}

func division(s string) domain.Division {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "ALL" {
		return domain.DivisionAny
	}
	return domain.Division(s)
}

func options(v any) []string {
	switch o := v.(type) {
	case nil:
		return []string{}
	case string:
		return ParseOptions(o)
	case []string:
		return compact(o)
	case []any:
		out := make([]string, 0, len(o))
		for _, item := range o {
			out = append(out, fmt.Sprint(item))
		}
		return compact(out)
	default:
		return ParseOptions(fmt.Sprint(o))
	}
}
