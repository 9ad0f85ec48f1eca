package geovalidate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGeocoder answers from fixed tables and counts calls.
type fakeGeocoder struct {
	forward map[string]domain.GeocodingResult
	reverse domain.GeocodingResult
	err     error

	forwardCalls int
	reverseCalls int
}

func (f *fakeGeocoder) ForwardGeocode(_ context.Context, name string) (domain.GeocodingResult, error) {
	f.forwardCalls++
	if f.err != nil {
		return domain.GeocodingResult{}, f.err
	}
	return f.forward[name], nil
}

func (f *fakeGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	f.reverseCalls++
	if f.err != nil {
		return domain.GeocodingResult{}, f.err
	}
	return f.reverse, nil
}

var (
	bakhmut = domain.GeocodingResult{Lat: 48.59, Lon: 38.0, CountryCode: "UA", Region: "Donetsk Oblast", FormattedAddress: "Bakhmut, Ukraine"}
	moscow  = domain.GeocodingResult{Lat: 55.75, Lon: 37.62, CountryCode: "RU", Region: "Moscow", FormattedAddress: "Moscow, Russia"}
	warsaw  = domain.GeocodingResult{Lat: 52.23, Lon: 21.01, CountryCode: "PL", Region: "Masovia", FormattedAddress: "Warsaw, Poland"}
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func coords(lat, lon float64) domain.ClaimedLocation {
	return domain.ClaimedLocation{ExplicitLat: domain.NumericCoord(lat), ExplicitLon: domain.NumericCoord(lon)}
}

func newValidator(g domain.Geocoder) *Validator {
	kw := domain.NewKeywordExtractor(domain.DefaultVocabulary())
	p := DefaultPolicy()
	return New(p, g, NewContextRederiver(kw, g, p.Capitals), discard())
}

func TestValidator_Sanity(t *testing.T) {
	tests := []struct {
		name   string
		claim  domain.ClaimedLocation
		reason string
	}{
		{"null island", coords(0, 0), "null island"},
		{"out of range", coords(95, 37), "out of range"},
		{"non numeric", domain.ClaimedLocation{
			ExplicitLat: domain.Coord{Present: true, Raw: "north"},
			ExplicitLon: domain.NumericCoord(37),
		}, "non-numeric"},
		{"missing lon", domain.ClaimedLocation{ExplicitLat: domain.NumericCoord(48)}, "incomplete"},
		{"nothing", domain.ClaimedLocation{}, "no location"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGeocoder{reverse: bakhmut}
			got := newValidator(g).Validate(context.Background(), tt.claim, "")
			assert.False(t, got.Accepted)
			assert.Equal(t, domain.ModeUnchecked, got.Mode)
			assert.Contains(t, got.Reason, tt.reason)
			assert.Zero(t, g.reverseCalls)
		})
	}
}

func TestValidator_ExtendedBoxRejectsWithoutLookup(t *testing.T) {
	g := &fakeGeocoder{reverse: bakhmut}
	got := newValidator(g).Validate(context.Background(), coords(35.0, 139.0), "")

	assert.False(t, got.Accepted)
	assert.Equal(t, domain.ModeUnchecked, got.Mode)
	assert.Zero(t, g.reverseCalls)
}

func TestValidator_VerifiedAccept(t *testing.T) {
	g := &fakeGeocoder{reverse: bakhmut}
	got := newValidator(g).Validate(context.Background(), coords(48.59, 38.0), "")

	assert.True(t, got.Accepted)
	assert.Equal(t, domain.ModeVerified, got.Mode)
	assert.Equal(t, "UA", got.CountryCode)
	assert.Equal(t, "Donetsk Oblast", got.Region)
	require.NotNil(t, got.Location)
	assert.Equal(t, 48.59, got.Location.Lat)
}

func TestValidator_ValidCountryOutsideStrictBox(t *testing.T) {
	g := &fakeGeocoder{reverse: moscow}
	got := newValidator(g).Validate(context.Background(), coords(55.75, 37.62), "")

	assert.False(t, got.Accepted)
	assert.Equal(t, domain.ModeVerified, got.Mode)
	assert.Contains(t, got.Reason, "outside the strict theatre box")
}

func TestValidator_InvalidCountry(t *testing.T) {
	g := &fakeGeocoder{reverse: warsaw}
	got := newValidator(g).Validate(context.Background(), coords(50.0, 23.0), "")

	assert.False(t, got.Accepted)
	assert.Equal(t, domain.ModeVerified, got.Mode)
	assert.Contains(t, got.Reason, "PL")
}

func TestValidator_DegradedMode(t *testing.T) {
	tests := []struct {
		name     string
		geocoder domain.Geocoder
		claim    domain.ClaimedLocation
		accepted bool
	}{
		{"error inside strict box", &fakeGeocoder{err: errors.New("timeout")}, coords(48.59, 38.0), true},
		{"error only inside extended box", &fakeGeocoder{err: errors.New("timeout")}, coords(43.0, 34.0), false},
		{"empty result inside strict box", &fakeGeocoder{}, coords(47.0, 35.0), true},
		{"no gazetteer", nil, coords(48.59, 38.0), true},
		{"no gazetteer offshore", nil, coords(42.5, 31.0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(DefaultPolicy(), tt.geocoder, nil, discard())
			got := v.Validate(context.Background(), tt.claim, "")
			assert.Equal(t, tt.accepted, got.Accepted)
			assert.Equal(t, domain.ModeDegraded, got.Mode)
		})
	}
}

func TestValidator_PlaceNameResolved(t *testing.T) {
	g := &fakeGeocoder{forward: map[string]domain.GeocodingResult{"Bakhmut": bakhmut}}
	got := newValidator(g).Validate(context.Background(), domain.ClaimedLocation{PlaceName: "Bakhmut"}, "")

	assert.True(t, got.Accepted)
	assert.Equal(t, domain.ModeVerified, got.Mode)
	assert.Equal(t, 1, g.forwardCalls)
	assert.Zero(t, g.reverseCalls)
}

func TestValidator_PlaceNameWithoutGazetteer(t *testing.T) {
	v := New(DefaultPolicy(), nil, nil, discard())
	got := v.Validate(context.Background(), domain.ClaimedLocation{PlaceName: "Bakhmut"}, "")

	assert.False(t, got.Accepted)
	assert.Equal(t, domain.ModeDegraded, got.Mode)
}

func TestValidator_PlaceNameNoMatch(t *testing.T) {
	g := &fakeGeocoder{forward: map[string]domain.GeocodingResult{}}
	got := newValidator(g).Validate(context.Background(), domain.ClaimedLocation{PlaceName: "Atlantis"}, "")

	assert.False(t, got.Accepted)
	assert.Contains(t, got.Reason, "no match")
}

func TestValidator_MetonymyCorrected(t *testing.T) {
	g := &fakeGeocoder{
		forward: map[string]domain.GeocodingResult{"Moscow": moscow, "bakhmut": bakhmut},
		reverse: bakhmut,
	}
	claim := domain.ClaimedLocation{PlaceName: "Moscow"}
	text := "Moscow says its troops hit trench lines near Bakhmut with mortar fire"

	got := newValidator(g).Validate(context.Background(), claim, text)

	assert.True(t, got.Suspicious)
	require.NotNil(t, got.Corrected)
	assert.Equal(t, "bakhmut", got.Corrected.PlaceName)
	assert.True(t, got.Accepted)
	assert.Equal(t, "UA", got.CountryCode)
}

func TestValidator_MetonymyWithoutAlternativeRejected(t *testing.T) {
	g := &fakeGeocoder{forward: map[string]domain.GeocodingResult{"Moscow": moscow}, reverse: moscow}
	claim := domain.ClaimedLocation{PlaceName: "Moscow", ExplicitLat: domain.NumericCoord(55.75), ExplicitLon: domain.NumericCoord(37.62)}

	got := newValidator(g).Validate(context.Background(), claim, "reports of trench fighting and mortar fire")

	assert.True(t, got.Suspicious)
	assert.False(t, got.Accepted)
	assert.Contains(t, got.Reason, "metonymy")
	assert.Zero(t, g.reverseCalls)
}

func TestValidator_MetonymyNeedsFrontlineContext(t *testing.T) {
	g := &fakeGeocoder{forward: map[string]domain.GeocodingResult{"Kyiv": {Lat: 50.45, Lon: 30.52, CountryCode: "UA", Region: "Kyiv"}}}
	got := newValidator(g).Validate(context.Background(), domain.ClaimedLocation{PlaceName: "Kyiv"}, "missile strike on power plant")

	assert.False(t, got.Suspicious)
	assert.True(t, got.Accepted)
}

func TestValidator_RederivationCapped(t *testing.T) {
	r := &loopRederiver{}
	v := New(DefaultPolicy(), &fakeGeocoder{reverse: bakhmut}, r, discard())

	got := v.Validate(context.Background(), domain.ClaimedLocation{PlaceName: "Moscow"}, "trench")

	assert.False(t, got.Accepted)
	assert.Equal(t, 1, r.calls)
}

// loopRederiver always proposes another capital.
type loopRederiver struct{ calls int }

func (l *loopRederiver) Rederive(context.Context, domain.ClaimedLocation, string) (domain.ClaimedLocation, error) {
	l.calls++
	return domain.ClaimedLocation{PlaceName: "Kyiv"}, nil
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.StrictBox.MaxLat = 60
	p.ValidCountries = nil
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inside the extended box")
	assert.Contains(t, err.Error(), "valid country")
}

func TestValidator_MetonymyTermsAreCaseInsensitive(t *testing.T) {
	p := DefaultPolicy()
	p.Capitals = []string{"Moscow", " KREMLIN "}
	p.FrontlineTerms = []string{"Trench", "Mortar"}
	v := New(p, nil, nil, discard())

	got := v.Validate(context.Background(), domain.ClaimedLocation{PlaceName: "Moscow"},
		"troops in the trench took mortar fire near bakhmut")

	assert.True(t, got.Suspicious)
	assert.False(t, got.Accepted)
	assert.Contains(t, got.Reason, "metonymy")
}

func TestValidator_PlaceNameWithoutCountryIsDegraded(t *testing.T) {
	noCountry := domain.GeocodingResult{Lat: 48.59, Lon: 38.0, FormattedAddress: "Bakhmut"}
	g := &fakeGeocoder{forward: map[string]domain.GeocodingResult{"Bakhmut": noCountry}}

	got := newValidator(g).Validate(context.Background(), domain.ClaimedLocation{PlaceName: "Bakhmut"}, "")

	assert.True(t, got.Accepted)
	assert.Equal(t, domain.ModeDegraded, got.Mode)
	require.NotNil(t, got.Location)
	assert.InDelta(t, 48.59, got.Location.Lat, 1e-9)
	assert.Zero(t, g.reverseCalls)
}
