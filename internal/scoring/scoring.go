// Package scoring implements the time-decayed award of a correct answer.
//
//	award = max(ceil(points * FloorRatio), round(points - points/TimeDivisor * minutes))
//
// An instant answer earns full points; the value decays linearly with the minutes
// elapsed since the event start and never drops below the floor.
package scoring

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	FloorRatio  = "0.3"
	TimeDivisor = 250
)

var (
	floorRatio  = decimal.RequireFromString(FloorRatio)
	timeDivisor = decimal.NewFromInt(TimeDivisor)
)

// Award returns the points earned for basePoints after elapsedMinutes.
// Negative and NaN minutes count as zero; an infinite time earns the floor.
func Award(basePoints int64, elapsedMinutes float64) int64 {
	if basePoints <= 0 {
		return 0
	}
	if elapsedMinutes < 0 || math.IsNaN(elapsedMinutes) {
		elapsedMinutes = 0
	}

	base := decimal.NewFromInt(basePoints)
	floor := base.Mul(floorRatio).Ceil()
	if math.IsInf(elapsedMinutes, 1) {
		return floor.IntPart()
	}
	decayed := base.Sub(base.Div(timeDivisor).Mul(decimal.NewFromFloat(elapsedMinutes))).Round(0)

	return decimal.Max(floor, decayed).IntPart()
}
