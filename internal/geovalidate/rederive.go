package geovalidate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
)

// ErrNoAlternative means the context names no usable non-capital place.
var ErrNoAlternative = errors.New("no alternative location in context")

// ContextRederiver looks for the first non-capital place the context text
// mentions and resolves it through the gazetteer.
type ContextRederiver struct {
	keywords *domain.KeywordExtractor
	geocoder domain.Geocoder
	capitals []string
}

// NewContextRederiver builds the default re-derivation collaborator.
func NewContextRederiver(kw *domain.KeywordExtractor, geocoder domain.Geocoder, capitals []string) *ContextRederiver {
	return &ContextRederiver{keywords: kw, geocoder: geocoder, capitals: foldTerms(capitals, strings.ToLower)}
}

// Rederive implements Rederiver.
func (r *ContextRederiver) Rederive(ctx context.Context, _ domain.ClaimedLocation, contextText string) (domain.ClaimedLocation, error) {
	for _, place := range r.keywords.LocationsInOrder(contextText) {
		if slices.Contains(r.capitals, place) {
			continue
		}
		if r.geocoder == nil {
			return domain.ClaimedLocation{PlaceName: place}, nil
		}
		g, err := r.geocoder.ForwardGeocode(ctx, place)
		if err != nil {
			return domain.ClaimedLocation{}, fmt.Errorf("resolve %q: %w", place, err)
		}
		if g.Empty() {
			continue
		}
		return domain.ClaimedLocation{
			ExplicitLat: domain.NumericCoord(g.Lat),
			ExplicitLon: domain.NumericCoord(g.Lon),
			PlaceName:   place,
		}, nil
	}
	return domain.ClaimedLocation{}, ErrNoAlternative
}
