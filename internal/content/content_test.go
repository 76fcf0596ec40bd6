package content_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/ehunt/internal/content"
	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/store"
)

func TestNormalize(t *testing.T) {
	tests := map[string]struct {
		in   string
		want string
	}{
		"lowercases":                  {in: "Eiffel", want: "eiffel"},
		"trims":                       {in: "  tower \t", want: "tower"},
		"collapses inner whitespace":  {in: "big   ben\n clock", want: "big ben clock"},
		"strips punctuation":          {in: "It's 42!", want: "its 42"},
		"drops non ascii letters":     {in: "café", want: "caf"},
		"only punctuation is empty":   {in: "?!.", want: ""},
		// Punctuation goes before whitespace collapses, so a dash between spaces leaves one space.
		"strips then collapses":       {in: "a - b", want: "a b"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, content.Normalize(tt.in))
		})
	}
}

func TestMatch(t *testing.T) {
	assert.True(t, content.Match("  The ANSWER. ", "the answer"))
	assert.False(t, content.Match("answer", "answers"))
	assert.False(t, content.Match("", ""))
	assert.False(t, content.Match("!!", "??"))
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	_, err := m.PutClue(ctx, domain.Clue{Step: 1, Category: "A", Text: "for A"})
	require.NoError(t, err)
	_, err = m.PutClue(ctx, domain.Clue{Step: 1, Category: domain.DivisionAny, Text: "for all"})
	require.NoError(t, err)
	_, err = m.PutChallenge(ctx, domain.Challenge{Step: 2, Category: domain.DivisionAny, Prompt: "shared"})
	require.NoError(t, err)

	clue := func(step int) func(ctx context.Context, d domain.Division) (domain.Clue, error) {
		return func(ctx context.Context, d domain.Division) (domain.Clue, error) {
			return m.Clue(ctx, step, d)
		}
	}

	c, err := content.Resolve(ctx, "A", clue(1))
	require.NoError(t, err)
	assert.Equal(t, "for A", c.Text)

	c, err = content.Resolve(ctx, "B", clue(1))
	require.NoError(t, err)
	assert.Equal(t, "for all", c.Text)

	_, err = content.Resolve(ctx, "B", clue(2))
	require.ErrorIs(t, err, store.ErrNotFound)

	challenges, err := content.Resolve(ctx, "C", content.Lister(func(ctx context.Context, d domain.Division) ([]domain.Challenge, error) {
		return m.Challenges(ctx, 2, d)
	}))
	require.NoError(t, err)
	require.Len(t, challenges, 1)
	assert.Equal(t, "shared", challenges[0].Prompt)
}

func TestParseOptions(t *testing.T) {
	tests := map[string]struct {
		in   string
		want []string
	}{
		"json array":          {in: `["Paris", " Rome ", ""]`, want: []string{"Paris", "Rome"}},
		"newline separated":   {in: "Paris\nRome\r\n\nBerlin", want: []string{"Paris", "Rome", "Berlin"}},
		"comma separated":     {in: "Paris, Rome,,Berlin", want: []string{"Paris", "Rome", "Berlin"}},
		"broken json splits":  {in: `[Paris, Rome`, want: []string{"[Paris", "Rome"}},
		"blank is empty list": {in: "   ", want: []string{}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, content.ParseOptions(tt.in))
		})
	}
}

func TestLoadSeed(t *testing.T) {
	const seed = `
checkpoints:
  - code: CP-1
    order: 1
    category: any
    answer: tower
    content: You found the tower
  - code: CP-2
    order: 2
    category: b
challenges:
  - step: 1
    category: ANY
    prompt: What is tall?
    options: "tower, tree"
    correctAnswer: tower
    points: 100
  - step: 2
    prompt: Pick one
    options: [x, y]
    correctAnswer: x
    points: 50
clues:
  - step: 1
    text: Look up
hints:
  - step: 1
    category: ALL
    title: Think big
    content: It is the tallest thing around
  - step: 1
    category: A
    title: Old
    content: retired
    active: false
teams:
  - name: red
    category: A
  - name: blue
`
	file := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(file, []byte(seed), 0o600))

	ctx := context.Background()
	m := store.NewMemory()
	divisions := []domain.Division{"A", "B"}

	require.NoError(t, content.LoadSeed(ctx, m, file, divisions))
	// a second boot with the same file must not duplicate anything
	require.NoError(t, content.LoadSeed(ctx, m, file, divisions))

	cp, err := m.CheckpointByCode(ctx, "CP-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DivisionAny, cp.Category)
	assert.Equal(t, "You found the tower", cp.Content)

	cp, err = m.CheckpointByCode(ctx, "CP-2")
	require.NoError(t, err)
	assert.Equal(t, domain.Division("B"), cp.Category)

	step1, err := m.Challenges(ctx, 1, domain.DivisionAny)
	require.NoError(t, err)
	require.Len(t, step1, 1)
	assert.Equal(t, []string{"tower", "tree"}, step1[0].Options)

	step2, err := m.Challenges(ctx, 2, domain.DivisionAny)
	require.NoError(t, err)
	require.Len(t, step2, 1)
	assert.Equal(t, []string{"x", "y"}, step2[0].Options)

	clue, err := m.Clue(ctx, 1, domain.DivisionAny)
	require.NoError(t, err)
	assert.Equal(t, "Look up", clue.Text)

	hints, err := m.Hints(ctx, 1, "A", domain.DivisionAny)
	require.NoError(t, err)
	require.Len(t, hints, 1, "inactive hints are hidden and a reseed does not duplicate")
	assert.Equal(t, "Think big", hints[0].Title)

	teams, err := m.ListTeams(ctx)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, domain.Division("A"), teams[0].Category)
	assert.Equal(t, domain.Division("B"), teams[1].Category)
	assert.Equal(t, 1, teams[1].CurrentStep)
}
