package domain

import "context"

// GeocodingResult contains location data returned by a gazetteer.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	CountryCode      string // ISO 3166-1 alpha-2, upper case
	Region           string
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Empty reports whether the gazetteer found nothing.
func (r GeocodingResult) Empty() bool {
	return r.FormattedAddress == "" && r.CountryCode == "" && r.Lat == 0 && r.Lon == 0
}

// Geocoder resolves place names and coordinates against an authoritative gazetteer.
type Geocoder interface {
	// ForwardGeocode converts a place name to coordinates, country and region.
	ForwardGeocode(ctx context.Context, name string) (GeocodingResult, error)

	// ReverseGeocode converts coordinates to country and region.
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
