package scoring_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/ehunt/internal/scoring"
)

func TestAward(t *testing.T) {
	tests := map[string]struct {
		points  int64
		minutes float64
		want    int64
	}{
		"instant answer earns full points":  {points: 100, minutes: 0, want: 100},
		"ten minutes in decays linearly":    {points: 100, minutes: 10, want: 96},
		"late answer hits the floor":        {points: 100, minutes: 300, want: 30},
		"floor is rounded up":               {points: 11, minutes: 10000, want: 4},
		"decay is rounded to nearest":       {points: 10, minutes: 12.5, want: 10},
		"fractional minutes":                {points: 250, minutes: 1.5, want: 249},
		"zero points":                       {points: 0, minutes: 5, want: 0},
		"negative points clamp to zero":     {points: -10, minutes: 5, want: 0},
		"negative minutes are treated as 0": {points: 40, minutes: -3, want: 40},
		"exact floor without float residue": {points: 10, minutes: 1000, want: 3},
		"infinite minutes earn the floor":   {points: 100, minutes: math.Inf(1), want: 30},
		"nan minutes are treated as 0":      {points: 100, minutes: math.NaN(), want: 100},
		"negative infinity is treated as 0": {points: 100, minutes: math.Inf(-1), want: 100},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, scoring.Award(tt.points, tt.minutes))
		})
	}
}

func TestAward_Properties(t *testing.T) {
	for _, points := range []int64{0, 1, 7, 10, 15, 100, 333, 1000} {
		assert.Equal(t, points, scoring.Award(points, 0), "full points at t=0: points=%d", points)

		prev := scoring.Award(points, 0)
		for m := 0.0; m <= 600; m += 0.75 {
			got := scoring.Award(points, m)
			assert.GreaterOrEqual(t, got*10, points*3, "floor: points=%d minutes=%v", points, m)
			assert.LessOrEqual(t, got, prev, "non-increasing: points=%d minutes=%v", points, m)
			prev = got
		}
	}

	assert.Equal(t, int64(30), scoring.Award(100, math.MaxFloat32))
}
