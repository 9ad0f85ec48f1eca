package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/couchcryptid/kinetic-event-fusion/internal/fusion"
	"github.com/couchcryptid/kinetic-event-fusion/internal/geovalidate"
	"github.com/couchcryptid/kinetic-event-fusion/internal/kinetic"
	"gopkg.in/yaml.v3"
)

// Policy holds the domain parameters loaded from the YAML policy file.
// Unset keys keep their defaults.
type Policy struct {
	Fusion     FusionPolicy      `yaml:"fusion"`
	Kinetic    KineticPolicy     `yaml:"kinetic"`
	Theatre    TheatrePolicy     `yaml:"theatre"`
	Vocabulary domain.Vocabulary `yaml:"vocabulary"`
}

// FusionPolicy mirrors fusion.Params.
type FusionPolicy struct {
	Window               time.Duration `yaml:"window"`
	SameSourceThreshold  float64       `yaml:"same_source_threshold"`
	CrossSourceThreshold float64       `yaml:"cross_source_threshold"`
	MultiSignalThreshold float64       `yaml:"multi_signal_threshold"`
	MultiSignalMinScore  int           `yaml:"multi_signal_min_score"`
	Bonus                BonusPolicy   `yaml:"bonus"`
}

// BonusPolicy holds the signal score weights.
type BonusPolicy struct {
	NearWindow time.Duration `yaml:"near_window"`
	Near       int           `yaml:"near"`
	FarWindow  time.Duration `yaml:"far_window"`
	Far        int           `yaml:"far"`
	Location   int           `yaml:"location"`
	UnitWeapon int           `yaml:"unit_weapon"`
	Action     int           `yaml:"action"`
}

// KineticPolicy mirrors kinetic.Params.
type KineticPolicy struct {
	TeleportDistanceKM float64       `yaml:"teleport_distance_km"`
	TeleportWindow     time.Duration `yaml:"teleport_window"`
	MaxSpeedKMH        float64       `yaml:"max_speed_kmh"`
	MinInterval        time.Duration `yaml:"min_interval"`
}

// TheatrePolicy is the geographic definition of the theatre.
type TheatrePolicy struct {
	StrictBox        domain.BBox   `yaml:"strict_box"`
	ExtendedBox      domain.BBox   `yaml:"extended_box"`
	ValidCountries   []string      `yaml:"valid_countries"`
	Capitals         []string      `yaml:"capitals"`
	FrontlineTerms   []string      `yaml:"frontline_terms"`
	MaxRederivations int           `yaml:"max_rederivations"`
	LookupTimeout    time.Duration `yaml:"lookup_timeout"`
}

// DefaultPolicy returns the built-in parameters.
func DefaultPolicy() *Policy {
	f := fusion.DefaultParams()
	k := kinetic.DefaultParams()
	g := geovalidate.DefaultPolicy()
	return &Policy{
		Fusion: FusionPolicy{
			Window:               f.Window,
			SameSourceThreshold:  f.SameSourceThreshold,
			CrossSourceThreshold: f.CrossSourceThreshold,
			MultiSignalThreshold: f.MultiSignalThreshold,
			MultiSignalMinScore:  f.MultiSignalMinScore,
			Bonus: BonusPolicy{
				NearWindow: f.NearWindow,
				Near:       f.NearBonus,
				FarWindow:  f.FarWindow,
				Far:        f.FarBonus,
				Location:   f.LocationBonus,
				UnitWeapon: f.UnitWeaponBonus,
				Action:     f.ActionBonus,
			},
		},
		Kinetic: KineticPolicy{
			TeleportDistanceKM: k.TeleportDistanceKM,
			TeleportWindow:     k.TeleportWindow,
			MaxSpeedKMH:        k.MaxSpeedKMH,
			MinInterval:        k.MinInterval,
		},
		Theatre: TheatrePolicy{
			StrictBox:        g.StrictBox,
			ExtendedBox:      g.ExtendedBox,
			ValidCountries:   g.ValidCountries,
			Capitals:         g.Capitals,
			FrontlineTerms:   g.FrontlineTerms,
			MaxRederivations: g.MaxRederivations,
			LookupTimeout:    g.LookupTimeout,
		},
		Vocabulary: domain.DefaultVocabulary(),
	}
}

// LoadPolicy reads the policy file at path over the defaults. An empty path
// yields the defaults.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// Validate checks every section and the cross-field constraints.
func (p *Policy) Validate() error {
	var errs []error
	if err := p.FusionParams().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("fusion: %w", err))
	}
	f := p.Fusion
	if f.MultiSignalThreshold > f.CrossSourceThreshold || f.CrossSourceThreshold > f.SameSourceThreshold {
		errs = append(errs, errors.New("fusion: thresholds must satisfy multi_signal <= cross_source <= same_source"))
	}
	if err := p.KineticParams().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("kinetic: %w", err))
	}
	if err := p.GeoPolicy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("theatre: %w", err))
	}
	return errors.Join(errs...)
}

// FusionParams converts the fusion section.
func (p *Policy) FusionParams() fusion.Params {
	f := p.Fusion
	return fusion.Params{
		Window:               f.Window,
		SameSourceThreshold:  f.SameSourceThreshold,
		CrossSourceThreshold: f.CrossSourceThreshold,
		MultiSignalThreshold: f.MultiSignalThreshold,
		MultiSignalMinScore:  f.MultiSignalMinScore,
		NearWindow:           f.Bonus.NearWindow,
		NearBonus:            f.Bonus.Near,
		FarWindow:            f.Bonus.FarWindow,
		FarBonus:             f.Bonus.Far,
		LocationBonus:        f.Bonus.Location,
		UnitWeaponBonus:      f.Bonus.UnitWeapon,
		ActionBonus:          f.Bonus.Action,
	}
}

// KineticParams converts the kinetic section.
func (p *Policy) KineticParams() kinetic.Params {
	k := p.Kinetic
	return kinetic.Params{
		TeleportDistanceKM: k.TeleportDistanceKM,
		TeleportWindow:     k.TeleportWindow,
		MaxSpeedKMH:        k.MaxSpeedKMH,
		MinInterval:        k.MinInterval,
	}
}

// GeoPolicy converts the theatre section.
func (p *Policy) GeoPolicy() geovalidate.Policy {
	t := p.Theatre
	return geovalidate.Policy{
		StrictBox:        t.StrictBox,
		ExtendedBox:      t.ExtendedBox,
		ValidCountries:   t.ValidCountries,
		Capitals:         t.Capitals,
		FrontlineTerms:   t.FrontlineTerms,
		MaxRederivations: t.MaxRederivations,
		LookupTimeout:    t.LookupTimeout,
	}
}
