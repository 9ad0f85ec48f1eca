// Package geovalidate decides whether a claimed event location is plausible
// for the theatre: sanity checks, a metonymy heuristic, box checks and an
// authoritative gazetteer lookup with an explicit degraded mode.
package geovalidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
)

// Policy is the theatre definition the validator judges against.
type Policy struct {
	StrictBox        domain.BBox
	ExtendedBox      domain.BBox
	ValidCountries   []string
	Capitals         []string
	FrontlineTerms   []string
	MaxRederivations int
	LookupTimeout    time.Duration
}

// DefaultPolicy covers the Ukraine theatre.
func DefaultPolicy() Policy {
	return Policy{
		StrictBox:      domain.BBox{MinLat: 44.0, MaxLat: 52.5, MinLon: 22.0, MaxLon: 40.5},
		ExtendedBox:    domain.BBox{MinLat: 40.0, MaxLat: 57.0, MinLon: 18.0, MaxLon: 50.0},
		ValidCountries: []string{"UA", "RU"},
		Capitals: []string{
			"moscow", "kyiv", "kiev", "minsk", "washington", "london",
			"brussels", "berlin", "paris", "beijing", "tehran", "kremlin",
		},
		FrontlineTerms: []string{
			"trench", "mortar", "frontline", "front line", "infantry", "dugout",
			"shelling", "assault", "counteroffensive", "artillery", "positions",
		},
		MaxRederivations: 1,
		LookupTimeout:    5 * time.Second,
	}
}

// Validate checks the policy for internal consistency.
func (p Policy) Validate() error {
	var errs []error
	if !p.StrictBox.Valid() {
		errs = append(errs, errors.New("strict box is not a valid box"))
	}
	if !p.ExtendedBox.Valid() {
		errs = append(errs, errors.New("extended box is not a valid box"))
	}
	if !p.StrictBox.Within(p.ExtendedBox) {
		errs = append(errs, errors.New("strict box must lie inside the extended box"))
	}
	if len(p.ValidCountries) == 0 {
		errs = append(errs, errors.New("at least one valid country is required"))
	}
	if p.MaxRederivations < 0 {
		errs = append(errs, errors.New("max re-derivations must not be negative"))
	}
	if p.LookupTimeout <= 0 {
		errs = append(errs, errors.New("lookup timeout must be positive"))
	}
	return errors.Join(errs...)
}

// normalized lower-cases the capital and frontline vocabularies and
// upper-cases country codes, matching how claims and context are compared.
func (p Policy) normalized() Policy {
	p.Capitals = foldTerms(p.Capitals, strings.ToLower)
	p.FrontlineTerms = foldTerms(p.FrontlineTerms, strings.ToLower)
	p.ValidCountries = foldTerms(p.ValidCountries, strings.ToUpper)
	return p
}

func foldTerms(terms []string, fold func(string) string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = fold(strings.TrimSpace(t)); t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// Rederiver proposes the true target location when the claimed place is
// judged to be a metonymic reference.
type Rederiver interface {
	Rederive(ctx context.Context, claimed domain.ClaimedLocation, contextText string) (domain.ClaimedLocation, error)
}

// Validator is stateless apart from its collaborators and safe for
// concurrent use.
type Validator struct {
	policy    Policy
	geocoder  domain.Geocoder
	rederiver Rederiver
	logger    *slog.Logger
}

// New builds a validator. geocoder may be nil, in which case every lookup
// runs in degraded mode. rederiver may be nil, in which case suspicious
// claims are rejected.
func New(policy Policy, geocoder domain.Geocoder, rederiver Rederiver, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{policy: policy.normalized(), geocoder: geocoder, rederiver: rederiver, logger: logger}
}

// Validate judges one claimed location.
func (v *Validator) Validate(ctx context.Context, claimed domain.ClaimedLocation, contextText string) domain.GeoResult {
	var res domain.GeoResult
	attempts := 0
	for {
		if claimed.IsZero() {
			return reject(res, domain.ModeUnchecked, "no location claimed")
		}
		if claimed.HasCoordinates() {
			if reason, ok := sane(claimed); !ok {
				return reject(res, domain.ModeUnchecked, reason)
			}
		}
		if !v.metonymic(claimed.PlaceName, contextText) {
			break
		}
		res.Suspicious = true
		if attempts >= v.policy.MaxRederivations || v.rederiver == nil {
			return reject(res, domain.ModeUnchecked,
				fmt.Sprintf("metonymy: %q in frontline context, could not re-derive target", claimed.PlaceName))
		}
		attempts++
		rctx, cancel := context.WithTimeout(ctx, v.policy.LookupTimeout)
		corrected, err := v.rederiver.Rederive(rctx, claimed, contextText)
		cancel()
		if err != nil {
			v.logger.Warn("location re-derivation failed", "place", claimed.PlaceName, "error", err)
			return reject(res, domain.ModeUnchecked,
				fmt.Sprintf("metonymy: %q in frontline context, re-derivation failed", claimed.PlaceName))
		}
		res.Corrected = &corrected
		claimed = corrected
	}

	if !claimed.HasCoordinates() {
		return v.resolveName(ctx, res, claimed.PlaceName)
	}
	p := domain.Point{Lat: claimed.ExplicitLat.Value, Lon: claimed.ExplicitLon.Value}
	if !v.policy.ExtendedBox.Contains(p) {
		return reject(res, domain.ModeUnchecked, "outside extended theatre box")
	}
	return v.verify(ctx, res, p)
}

// resolveName forward-geocodes a name-only claim before the box checks.
func (v *Validator) resolveName(ctx context.Context, res domain.GeoResult, name string) domain.GeoResult {
	if v.geocoder == nil {
		return reject(res, domain.ModeDegraded, "gazetteer unavailable, place name cannot be resolved")
	}
	lctx, cancel := context.WithTimeout(ctx, v.policy.LookupTimeout)
	defer cancel()
	g, err := v.geocoder.ForwardGeocode(lctx, name)
	if err != nil {
		v.logger.Warn("forward geocode failed", "place", name, "error", err)
		return reject(res, domain.ModeDegraded, "gazetteer unavailable, place name cannot be resolved")
	}
	if g.Empty() {
		return reject(res, domain.ModeVerified, fmt.Sprintf("gazetteer has no match for %q", name))
	}
	p := domain.Point{Lat: g.Lat, Lon: g.Lon}
	res.Location = &p
	if !v.policy.ExtendedBox.Contains(p) {
		return reject(res, domain.ModeUnchecked, "resolved place is outside extended theatre box")
	}
	if g.CountryCode == "" {
		return v.degraded(res, p)
	}
	return v.judge(res, p, g)
}

// verify reverse-geocodes coordinates, falling back to degraded mode.
func (v *Validator) verify(ctx context.Context, res domain.GeoResult, p domain.Point) domain.GeoResult {
	res.Location = &p
	if v.geocoder == nil {
		return v.degraded(res, p)
	}
	lctx, cancel := context.WithTimeout(ctx, v.policy.LookupTimeout)
	defer cancel()
	g, err := v.geocoder.ReverseGeocode(lctx, p.Lat, p.Lon)
	if err != nil {
		v.logger.Warn("reverse geocode failed, degraded validation", "lat", p.Lat, "lon", p.Lon, "error", err)
		return v.degraded(res, p)
	}
	if g.CountryCode == "" {
		return v.degraded(res, p)
	}
	return v.judge(res, p, g)
}

func (v *Validator) judge(res domain.GeoResult, p domain.Point, g domain.GeocodingResult) domain.GeoResult {
	res.Location = &p
	res.CountryCode = strings.ToUpper(g.CountryCode)
	res.Region = g.Region
	res.Mode = domain.ModeVerified
	if !slices.Contains(v.policy.ValidCountries, res.CountryCode) {
		return reject(res, domain.ModeVerified, fmt.Sprintf("country %s is not in the theatre", res.CountryCode))
	}
	if !v.policy.StrictBox.Contains(p) {
		return reject(res, domain.ModeVerified,
			fmt.Sprintf("valid country %s but outside the strict theatre box", res.CountryCode))
	}
	res.Accepted = true
	res.Reason = fmt.Sprintf("verified in %s", describe(res))
	return res
}

func (v *Validator) degraded(res domain.GeoResult, p domain.Point) domain.GeoResult {
	res.Mode = domain.ModeDegraded
	if v.policy.StrictBox.Contains(p) {
		res.Accepted = true
		res.Reason = "gazetteer unavailable, accepted inside strict theatre box without verification"
		return res
	}
	return reject(res, domain.ModeDegraded, "gazetteer unavailable, outside strict theatre box")
}

// metonymic reports whether name is a capital and the context reads like
// frontline fighting.
func (v *Validator) metonymic(name, contextText string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return false
	}
	head, _, _ := strings.Cut(n, ",")
	head = strings.TrimSpace(head)
	if !slices.Contains(v.policy.Capitals, n) && !slices.Contains(v.policy.Capitals, head) {
		return false
	}
	text := strings.ToLower(contextText)
	for _, term := range v.policy.FrontlineTerms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func sane(l domain.ClaimedLocation) (string, bool) {
	lat, lon := l.ExplicitLat, l.ExplicitLon
	if !lat.Present || !lon.Present {
		return "incomplete coordinates", false
	}
	if !lat.Numeric || !lon.Numeric {
		return "non-numeric coordinates", false
	}
	if lat.Value == 0 && lon.Value == 0 {
		return "null island (0,0)", false
	}
	if lat.Value < -90 || lat.Value > 90 || lon.Value < -180 || lon.Value > 180 {
		return "coordinates out of range", false
	}
	return "", true
}

func reject(res domain.GeoResult, mode domain.VerificationMode, reason string) domain.GeoResult {
	res.Accepted = false
	res.Mode = mode
	res.Reason = reason
	return res
}

func describe(r domain.GeoResult) string {
	if r.Region != "" {
		return r.Region + ", " + r.CountryCode
	}
	return r.CountryCode
}
