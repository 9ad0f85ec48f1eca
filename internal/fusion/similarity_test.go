package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	sim, err := Cosine([]float32{1, 0}, []float64{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1, sim, 1e-12)

	sim, err = Cosine([]float32{1, 0}, []float64{0, 3})
	require.NoError(t, err)
	assert.InDelta(t, 0, sim, 1e-12)

	sim, err = Cosine([]float32{0, 0}, []float64{1, 1})
	require.NoError(t, err)
	assert.Zero(t, sim)

	_, err = Cosine([]float32{1}, []float64{1, 0})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestClusterID_Deterministic(t *testing.T) {
	assert.Equal(t, ClusterID("sig-1"), ClusterID("sig-1"))
	assert.NotEqual(t, ClusterID("sig-1"), ClusterID("sig-2"))
	assert.Len(t, ClusterID("sig-1"), 36)
}

func TestParams_Validate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.SameSourceThreshold = 1.5
	p.NearWindow = p.FarWindow * 2
	assert.Error(t, p.Validate())
}
