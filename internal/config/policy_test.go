package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/couchcryptid/kinetic-event-fusion/internal/geovalidate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPolicy_EmptyPathDefaults(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	assert.Equal(t, 48*time.Hour, p.Fusion.Window)
	assert.InDelta(t, 0.85, p.Fusion.SameSourceThreshold, 1e-9)
	assert.InDelta(t, 800.0, p.Kinetic.TeleportDistanceKM, 1e-9)
	assert.Equal(t, []string{"UA", "RU"}, p.Theatre.ValidCountries)
	assert.NotEmpty(t, p.Vocabulary.Locations)
}

func TestLoadPolicy_OverridesDefaults(t *testing.T) {
	path := writePolicy(t, t.TempDir(), `
fusion:
  window: 72h
  same_source_threshold: 0.9
  bonus:
    near_window: 3h
kinetic:
  max_speed_kmh: 90
  min_interval: 10m
theatre:
  valid_countries: [UA]
  strict_box: {min_lat: 45, max_lat: 52, min_lon: 23, max_lon: 40}
vocabulary:
  locations: [velyka novosilka]
`)

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	fp := p.FusionParams()
	assert.Equal(t, 72*time.Hour, fp.Window)
	assert.InDelta(t, 0.9, fp.SameSourceThreshold, 1e-9)
	assert.InDelta(t, 0.70, fp.CrossSourceThreshold, 1e-9)
	assert.Equal(t, 3*time.Hour, fp.NearWindow)
	assert.Equal(t, 24*time.Hour, fp.FarWindow)

	kp := p.KineticParams()
	assert.InDelta(t, 90.0, kp.MaxSpeedKMH, 1e-9)
	assert.Equal(t, 10*time.Minute, kp.MinInterval)
	assert.Equal(t, 24*time.Hour, kp.TeleportWindow)

	gp := p.GeoPolicy()
	assert.Equal(t, []string{"UA"}, gp.ValidCountries)
	assert.InDelta(t, 45.0, gp.StrictBox.MinLat, 1e-9)
	assert.Equal(t, []string{"velyka novosilka"}, p.Vocabulary.Locations)
}

func TestLoadPolicy_Invalid(t *testing.T) {
	tests := []struct {
		name, body, want string
	}{
		{"threshold order", "fusion: {multi_signal_threshold: 0.8}", "multi_signal <= cross_source"},
		{"strict outside extended", "theatre: {strict_box: {min_lat: 30, max_lat: 52, min_lon: 22, max_lon: 40}}", "extended box"},
		{"negative speed", "kinetic: {max_speed_kmh: -5}", "max speed"},
		{"zero window", "fusion: {window: 0s}", "window"},
		{"bad yaml", "fusion: [", "parse policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPolicy(writePolicy(t, t.TempDir(), tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read policy")
}

func TestLoadPolicy_TheatreTermsAnyCase(t *testing.T) {
	path := writePolicy(t, t.TempDir(), `
theatre:
  capitals: [Moscow, Kyiv]
  frontline_terms: [Trench, Mortar]
  valid_countries: [ua, Ru]
`)
	p, err := LoadPolicy(path)
	require.NoError(t, err)

	v := geovalidate.New(p.GeoPolicy(), nil, nil, nil)
	got := v.Validate(context.Background(), domain.ClaimedLocation{PlaceName: "Moscow"},
		"troops in the trench took mortar fire near bakhmut")

	assert.True(t, got.Suspicious, "title-case policy terms must still flag metonymy")
	assert.False(t, got.Accepted)
}
