// Package scoring turns qualitative extractor vectors into a reproducible
// severity score and estimates source reliability from corroboration.
package scoring

import (
	"math"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
)

const (
	minVector = 1
	maxVector = 10

	targetExponent   = 1.6
	baseScale        = 2.5
	deepStrikeFactor = 1.25
	visualFactor     = 1.10

	// deferredEffect is the effect level at or below which an unconfirmed
	// event gets no numeric score.
	deferredEffect = 2
)

func clamp(v int) int {
	return max(minVector, min(maxVector, v))
}

// Score computes the severity score. Vectors outside 1..10 are clamped.
func Score(kinetic, target, effect int, deepStrike, visual bool) domain.Score {
	out := domain.Score{
		Status:            domain.ScoreValid,
		Kinetic:           clamp(kinetic),
		Target:            clamp(target),
		Effect:            clamp(effect),
		IsDeepStrike:      deepStrike,
		VisuallyConfirmed: visual,
	}
	if out.Effect <= deferredEffect && !visual {
		out.Status = domain.ScoreDeferred
		return out
	}
	out.Value = int(Raw(out.Kinetic, out.Target, out.Effect, deepStrike, visual))
	return out
}

// Raw returns the unclamped-to-int formula value, bounded to [0,100].
// Inputs are assumed already clamped.
func Raw(kinetic, target, effect int, deepStrike, visual bool) float64 {
	strategic := math.Pow(float64(target), targetExponent) * (float64(effect) / 10)
	kineticMul := 1 + math.Log(float64(kinetic))/2
	raw := strategic * kineticMul * baseScale
	if deepStrike {
		raw *= deepStrikeFactor
	}
	if visual {
		raw *= visualFactor
	}
	return math.Max(0, math.Min(100, raw))
}

// FromExtraction scores an extractor payload.
func FromExtraction(ex domain.Extraction) domain.Score {
	var v domain.TitanVectors
	if ex.TitanVectors != nil {
		v = *ex.TitanVectors
	}
	return Score(v.Kinetic, v.Target, v.Effect, ex.IsDeepStrike, ex.VisuallyConfirmed)
}
