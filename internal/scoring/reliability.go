package scoring

import "github.com/couchcryptid/kinetic-event-fusion/internal/domain"

const (
	baseReliability   = 0.25
	crossSourceBonus  = 0.35
	perSourceBonus    = 0.08
	maxExtraSources   = 5
	corroboratedFloor = 2
)

// Reliability estimates how far an event can be trusted from its
// corroboration metadata alone.
func Reliability(ev domain.UniqueEvent) domain.Reliability {
	sources := len(ev.SourceNames)
	r := domain.Reliability{
		MemberCount: ev.MemberCount,
		SourceCount: sources,
		CrossSource: ev.CrossSourceCorroborated,
		Bias:        bias(ev),
	}
	v := baseReliability
	if ev.CrossSourceCorroborated {
		v += crossSourceBonus
	}
	if sources > 1 {
		v += perSourceBonus * float64(min(sources-1, maxExtraSources))
	}
	r.Value = min(1, max(0, v))
	return r
}

func bias(ev domain.UniqueEvent) domain.BiasFlag {
	if ev.CrossSourceCorroborated {
		return domain.BiasCorroborated
	}
	if len(ev.SourceNames) < corroboratedFloor {
		return domain.BiasSingleSource
	}
	var web, msg, other bool
	for _, t := range ev.SourceTypes {
		switch t {
		case domain.SourceWebNews:
			web = true
		case domain.SourceMessaging:
			msg = true
		default:
			other = true
		}
	}
	switch {
	case msg && !web && !other:
		return domain.BiasMessagingOnly
	case web && !msg && !other:
		return domain.BiasWebOnly
	default:
		return domain.BiasUncorroborated
	}
}
