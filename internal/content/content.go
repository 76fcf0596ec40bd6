// Package content holds the rules shared by every flow that reads authored content:
// answer normalization, the division lookup with its "any" fallback and the parser
// for free-form challenge options.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode"

	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/store"
)

// Normalize lowercases s, strips everything outside [a-z0-9 ] and collapses runs of
// whitespace into single spaces. Stripping comes first: "a - b" normalizes to "a b",
// not to "a  b".
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsSpace(r):
			space = true
		case ('a' <= r && r <= 'z') || ('0' <= r && r <= '9'):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}

	return b.String()
}

// Match reports whether submitted equals expected after normalization.
// An answer that normalizes to nothing never matches.
func Match(submitted, expected string) bool {
	n := Normalize(submitted)
	return n != "" && n == Normalize(expected)
}

// Resolve looks up content for division first and falls back to domain.DivisionAny.
// lookup must return store.ErrNotFound when nothing exists for a division.
func Resolve[T any](ctx context.Context, division domain.Division, lookup func(ctx context.Context, d domain.Division) (T, error)) (T, error) {
	v, err := lookup(ctx, division)
	if err == nil || !errors.Is(err, store.ErrNotFound) || division == domain.DivisionAny {
		return v, err
	}

	return lookup(ctx, domain.DivisionAny)
}

// Lister adapts a list query to Resolve: an empty list counts as not found.
func Lister[T any](list func(ctx context.Context, d domain.Division) ([]T, error)) func(ctx context.Context, d domain.Division) ([]T, error) {
	return func(ctx context.Context, d domain.Division) ([]T, error) {
		items, err := list(ctx, d)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, store.ErrNotFound
		}
		return items, nil
	}
}

// ParseOptions turns admin input into a list of options. A JSON array of strings is
// taken as is, anything else is split on newlines and commas. Blank entries are dropped.
func ParseOptions(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}

	var parsed []string
	if strings.HasPrefix(raw, "[") && json.Unmarshal([]byte(raw), &parsed) == nil {
		return compact(parsed)
	}

	return compact(strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	}))
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
