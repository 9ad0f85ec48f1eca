package domain

import "time"

// VerificationMode says how far geographic validation got.
type VerificationMode string

const (
	// ModeVerified means the gazetteer confirmed (or refuted) the location.
	ModeVerified VerificationMode = "VERIFIED"
	// ModeDegraded means the gazetteer was unavailable and only the strict box was checked.
	ModeDegraded VerificationMode = "DEGRADED"
	// ModeUnchecked means the claim was rejected before any lookup.
	ModeUnchecked VerificationMode = "UNCHECKED"
)

// GeoResult is the geographic validator's verdict.
type GeoResult struct {
	Accepted    bool             `json:"accepted"`
	Mode        VerificationMode `json:"mode"`
	Suspicious  bool             `json:"suspicious,omitempty"`
	Location    *Point           `json:"location,omitempty"`
	Region      string           `json:"region,omitempty"`
	CountryCode string           `json:"country_code,omitempty"`
	Corrected   *ClaimedLocation `json:"corrected,omitempty"`
	Reason      string           `json:"reason"`
}

// UnitStatus distinguishes first sightings from known units.
type UnitStatus string

const (
	UnitNew   UnitStatus = "NEW"
	UnitKnown UnitStatus = "KNOWN"
)

// UnitPosition is the registry's last confirmed sighting of a unit.
type UnitPosition struct {
	UnitID string  `json:"unit_id"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	SeenAt string  `json:"seen_at"`
}

// KineticResult is the movement plausibility verdict for one unit reading.
type KineticResult struct {
	UnitID          string     `json:"unit_id"`
	Status          UnitStatus `json:"status"`
	Plausible       bool       `json:"is_plausible"`
	Backfill        bool       `json:"backfill,omitempty"`
	DistanceKM      float64    `json:"distance_km"`
	TimeDeltaHours  float64    `json:"time_delta_hours"`
	ImpliedSpeedKMH float64    `json:"implied_speed_kmh"`
	Reason          string     `json:"reason"`
}

// ScoreStatus says whether a numeric score was asserted.
type ScoreStatus string

const (
	ScoreValid    ScoreStatus = "VALID"
	ScoreDeferred ScoreStatus = "DEFERRED"
)

// Score is the deterministic severity output with its clamped inputs.
type Score struct {
	Value             int         `json:"value"`
	Status            ScoreStatus `json:"status"`
	Kinetic           int         `json:"kinetic"`
	Target            int         `json:"target"`
	Effect            int         `json:"effect"`
	IsDeepStrike      bool        `json:"is_deep_strike"`
	VisuallyConfirmed bool        `json:"visually_confirmed"`
}

// BiasFlag summarises the source mix behind an event.
type BiasFlag string

const (
	BiasCorroborated   BiasFlag = "CORROBORATED"
	BiasSingleSource   BiasFlag = "SINGLE_SOURCE"
	BiasMessagingOnly  BiasFlag = "MESSAGING_ONLY"
	BiasWebOnly        BiasFlag = "WEB_ONLY"
	BiasUncorroborated BiasFlag = "UNCORROBORATED"
)

// Reliability is the corroboration-based confidence estimate for an event.
type Reliability struct {
	Value       float64  `json:"value"`
	Bias        BiasFlag `json:"bias"`
	MemberCount int      `json:"member_count"`
	SourceCount int      `json:"source_count"`
	CrossSource bool     `json:"cross_source"`
}

// AssessmentReport is what downstream report rendering consumes.
type AssessmentReport struct {
	ClusterID         string           `json:"cluster_id"`
	ValidatedLocation *Point           `json:"validated_location"`
	ValidationMode    VerificationMode `json:"validation_mode"`
	ValidationReason  string           `json:"validation_reason"`
	Score             int              `json:"score"`
	ScoreStatus       ScoreStatus      `json:"score_status"`
	Geo               GeoResult        `json:"geo"`
	ScoreDetail       Score            `json:"score_detail"`
	Kinetic           []KineticResult  `json:"kinetic,omitempty"`
	Reliability       *Reliability     `json:"reliability,omitempty"`
	AssessedAt        time.Time        `json:"assessed_at"`
}
