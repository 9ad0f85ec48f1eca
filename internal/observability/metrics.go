package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fusion"

// Metrics holds the Prometheus counters, histograms, and gauges for both pipelines.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	MessagesProduced prometheus.Counter
	DecodeErrors     *prometheus.CounterVec // labels: kind={signal,extraction}
	TransformErrors  prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Fusion metrics.
	SignalsFused       *prometheus.CounterVec // labels: outcome={created,merged}
	SignalsSkipped     *prometheus.CounterVec // labels: reason={no_embedding,duplicate}
	ActiveClusters     prometheus.Gauge
	ClustersEvicted    prometheus.Counter
	CrossSourceFusions prometheus.Counter
	ChunkCommitErrors  prometheus.Counter

	// Assessment metrics.
	GeoVerdicts     *prometheus.CounterVec // labels: mode={VERIFIED,DEGRADED,UNCHECKED}, accepted={true,false}
	KineticVerdicts *prometheus.CounterVec // labels: status={NEW,KNOWN}, plausible={true,false}
	Scores          *prometheus.CounterVec // labels: status={VALID,DEFERRED}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={forward,reverse}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={forward,reverse}, result={hit,miss,coalesced}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={forward,reverse}
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from the source topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total messages written to sink topics.",
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Records skipped because they could not be decoded or failed schema validation.",
		}, []string{"kind"}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total batch transformation failures.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 50, 100, 250, 500, 1000},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		SignalsFused: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_fused_total",
			Help:      "Signals assigned to a cluster by outcome.",
		}, []string{"outcome"}),
		SignalsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_skipped_total",
			Help:      "Signals excluded from fusion by reason.",
		}, []string{"reason"}),
		ActiveClusters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_clusters",
			Help:      "Clusters currently matchable inside the pruning window.",
		}),
		ClustersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clusters_evicted_total",
			Help:      "Clusters pruned from the active set.",
		}),
		CrossSourceFusions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cross_source_fusions_total",
			Help:      "Clusters that became cross-source corroborated.",
		}),
		ChunkCommitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_commit_errors_total",
			Help:      "Failed durable chunk commits.",
		}),
		GeoVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geo_verdicts_total",
			Help:      "Geographic validation results by mode and acceptance.",
		}, []string{"mode", "accepted"}),
		KineticVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kinetic_verdicts_total",
			Help:      "Kinetic probe results by unit status and plausibility.",
		}, []string{"status", "plausible"}),
		Scores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scores_total",
			Help:      "Scores computed by status.",
		}, []string{"status"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when the gazetteer is enabled, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		m.MessagesConsumed,
		m.MessagesProduced,
		m.DecodeErrors,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.SignalsFused,
		m.SignalsSkipped,
		m.ActiveClusters,
		m.ClustersEvicted,
		m.CrossSourceFusions,
		m.ChunkCommitErrors,
		m.GeoVerdicts,
		m.KineticVerdicts,
		m.Scores,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)

	return m
}
