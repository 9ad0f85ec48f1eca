package domain

import "math"

// EarthRadiusKM is the mean Earth radius used for great-circle distances.
const EarthRadiusKM = 6371.0

// Point is a WGS-84 latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BBox is an axis-aligned latitude/longitude box, bounds inclusive.
type BBox struct {
	MinLat float64 `yaml:"min_lat" json:"min_lat"`
	MaxLat float64 `yaml:"max_lat" json:"max_lat"`
	MinLon float64 `yaml:"min_lon" json:"min_lon"`
	MaxLon float64 `yaml:"max_lon" json:"max_lon"`
}

// Contains reports whether p lies inside the box.
func (b BBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Within reports whether b lies entirely inside outer.
func (b BBox) Within(outer BBox) bool {
	return b.MinLat >= outer.MinLat && b.MaxLat <= outer.MaxLat &&
		b.MinLon >= outer.MinLon && b.MaxLon <= outer.MaxLon
}

// Valid reports whether min bounds are below max bounds and inside WGS-84 range.
func (b BBox) Valid() bool {
	return b.MinLat < b.MaxLat && b.MinLon < b.MaxLon &&
		b.MinLat >= -90 && b.MaxLat <= 90 && b.MinLon >= -180 && b.MaxLon <= 180
}

// HaversineKM returns the great-circle distance between a and b.
func HaversineKM(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}
