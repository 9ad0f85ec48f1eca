package fusion

import (
	"errors"
	"time"
)

// Params are the clustering knobs. They are read once when an Engine is
// built so a run stays deterministic.
type Params struct {
	// Window is how far behind the chunk's first timestamp a cluster may
	// have last been seen and still be matchable.
	Window time.Duration

	SameSourceThreshold  float64
	CrossSourceThreshold float64
	MultiSignalThreshold float64
	// MultiSignalMinScore is the signal score at which the multi-signal
	// threshold replaces the source-mix threshold.
	MultiSignalMinScore int

	NearWindow      time.Duration
	NearBonus       int
	FarWindow       time.Duration
	FarBonus        int
	LocationBonus   int
	UnitWeaponBonus int
	ActionBonus     int
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		Window:               48 * time.Hour,
		SameSourceThreshold:  0.85,
		CrossSourceThreshold: 0.70,
		MultiSignalThreshold: 0.65,
		MultiSignalMinScore:  3,
		NearWindow:           6 * time.Hour,
		NearBonus:            2,
		FarWindow:            24 * time.Hour,
		FarBonus:             1,
		LocationBonus:        1,
		UnitWeaponBonus:      1,
		ActionBonus:          1,
	}
}

// Validate rejects parameter sets the matcher cannot work with.
func (p Params) Validate() error {
	var errs []error
	if p.Window <= 0 {
		errs = append(errs, errors.New("window must be positive"))
	}
	for _, th := range []float64{p.SameSourceThreshold, p.CrossSourceThreshold, p.MultiSignalThreshold} {
		if th < -1 || th > 1 {
			errs = append(errs, errors.New("similarity thresholds must be within [-1, 1]"))
			break
		}
	}
	if p.NearWindow > p.FarWindow {
		errs = append(errs, errors.New("near window must not exceed far window"))
	}
	if p.MultiSignalMinScore < 0 {
		errs = append(errs, errors.New("multi-signal minimum score must not be negative"))
	}
	return errors.Join(errs...)
}
