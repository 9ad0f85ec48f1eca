package mapbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/kinetic-event-fusion/internal/config"
	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/couchcryptid/kinetic-event-fusion/internal/observability"
)

// NewGazetteer builds the cached geocoder cfg describes and probes it once.
// It returns a nil Geocoder when the gazetteer is disabled. A failed probe is
// fatal only when cfg.GazetteerRequired is set; otherwise validation runs
// degraded until the API answers.
func NewGazetteer(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (domain.Geocoder, error) {
	return newGazetteer(ctx, cfg, defaultBaseURL, metrics, logger)
}

func newGazetteer(ctx context.Context, cfg *config.Config, baseURL string, metrics *observability.Metrics, logger *slog.Logger) (domain.Geocoder, error) {
	if !cfg.GazetteerEnabled {
		metrics.GeocodeEnabled.Set(0)
		logger.Info("gazetteer disabled, geo validation runs degraded")
		return nil, nil
	}

	client := NewClient(cfg.MapboxToken, cfg.GazetteerTimeout, cfg.GazetteerRPS, metrics, logger)
	client.baseURL = baseURL

	probeCtx, cancel := context.WithTimeout(ctx, cfg.GazetteerTimeout)
	defer cancel()
	if err := client.Ping(probeCtx); err != nil {
		if cfg.GazetteerRequired {
			return nil, fmt.Errorf("gazetteer required: %w", err)
		}
		logger.Warn("gazetteer probe failed, continuing", "error", err)
	}

	metrics.GeocodeEnabled.Set(1)
	logger.Info("gazetteer enabled",
		"cache_size", cfg.GazetteerCacheSize, "timeout", cfg.GazetteerTimeout, "rps", cfg.GazetteerRPS)
	return NewCachedGeocoder(client, cfg.GazetteerCacheSize, metrics), nil
}
