// Package kinetic judges whether a reported unit position is physically
// reachable from the unit's last known sighting.
package kinetic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
)

// Params are the movement limits for ground units.
type Params struct {
	TeleportDistanceKM float64
	TeleportWindow     time.Duration
	MaxSpeedKMH        float64
	// MinInterval is the shortest time delta at which the speed rule applies.
	MinInterval time.Duration
}

// DefaultParams returns the production limits.
func DefaultParams() Params {
	return Params{
		TeleportDistanceKM: 800,
		TeleportWindow:     24 * time.Hour,
		MaxSpeedKMH:        120,
		MinInterval:        6 * time.Minute,
	}
}

// Validate rejects limits that cannot produce a verdict.
func (p Params) Validate() error {
	var errs []error
	if p.TeleportDistanceKM <= 0 {
		errs = append(errs, errors.New("teleport distance must be positive"))
	}
	if p.TeleportWindow <= 0 {
		errs = append(errs, errors.New("teleport window must be positive"))
	}
	if p.MaxSpeedKMH <= 0 {
		errs = append(errs, errors.New("max speed must be positive"))
	}
	if p.MinInterval <= 0 {
		errs = append(errs, errors.New("minimum interval must be positive"))
	}
	return errors.Join(errs...)
}

// Registry serves last known unit positions. The probe only reads it.
type Registry interface {
	LastPosition(ctx context.Context, unitID string) (domain.UnitPosition, bool, error)
}

// NormalizeUnitID lowercases and collapses punctuation and whitespace so
// "93rd Mech. Brigade" and "93RD  mech brigade" share a registry entry.
func NormalizeUnitID(id string) string {
	fields := strings.FieldsFunc(strings.ToLower(id), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

// Probe checks unit readings against a registry.
type Probe struct {
	params   Params
	registry Registry
	parsers  []domain.TimeParser
}

// NewProbe returns a probe using the default timestamp parser chain.
func NewProbe(p Params, reg Registry) *Probe {
	return &Probe{params: p, registry: reg, parsers: domain.DefaultTimeParsers}
}

// WithRegistry returns a copy of the probe reading from reg.
func (p *Probe) WithRegistry(reg Registry) *Probe {
	cp := *p
	cp.registry = reg
	return &cp
}

// Check judges one reading. Parse and registry failures fail open.
func (p *Probe) Check(ctx context.Context, unitID string, lat, lon float64, at string) domain.KineticResult {
	id := NormalizeUnitID(unitID)
	res := domain.KineticResult{UnitID: id, Status: domain.UnitNew, Plausible: true}

	prev, found, err := p.registry.LastPosition(ctx, id)
	if err != nil {
		res.Reason = fmt.Sprintf("registry unavailable, accepted unverified: %v", err)
		return res
	}
	if !found {
		res.Reason = "first sighting"
		return res
	}
	res.Status = domain.UnitKnown
	res.DistanceKM = domain.HaversineKM(domain.Point{Lat: prev.Lat, Lon: prev.Lon}, domain.Point{Lat: lat, Lon: lon})

	last, okLast := domain.ParseTimestampWith(p.parsers, prev.SeenAt).Time()
	next, okNext := domain.ParseTimestampWith(p.parsers, at).Time()
	if !okLast || !okNext {
		res.Reason = "could not parse timestamps, accepted unverified"
		return res
	}

	delta := next.Sub(last)
	res.TimeDeltaHours = delta.Hours()
	if delta < 0 {
		res.Backfill = true
		res.Reason = "report predates last sighting, historical backfill"
		return res
	}

	if res.DistanceKM > p.params.TeleportDistanceKM && delta < p.params.TeleportWindow {
		res.Plausible = false
		res.Reason = fmt.Sprintf("teleportation: %.0f km in %.1f h", res.DistanceKM, res.TimeDeltaHours)
		return res
	}
	if delta >= p.params.MinInterval {
		res.ImpliedSpeedKMH = res.DistanceKM / res.TimeDeltaHours
		if res.ImpliedSpeedKMH > p.params.MaxSpeedKMH {
			res.Plausible = false
			res.Reason = fmt.Sprintf("implied speed %.0f km/h exceeds %.0f km/h", res.ImpliedSpeedKMH, p.params.MaxSpeedKMH)
			return res
		}
	}
	res.Reason = fmt.Sprintf("plausible movement at %.1f km/h", res.ImpliedSpeedKMH)
	return res
}
