package fusion

import (
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when two vectors have different lengths.
// The matcher treats it as "not comparable" and moves on.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Cosine returns the cosine similarity of a and b. A zero vector has
// similarity 0 with everything.
func Cosine(a []float32, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, na, nb float64
	for i := range a {
		x := float64(a[i])
		dot += x * b[i]
		na += x * x
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
