package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Pipeline modes selectable with PIPELINE_MODE.
const (
	ModeFuse   = "fuse"
	ModeAssess = "assess"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers         []string
	KafkaSourceTopic     string
	KafkaAssignmentTopic string
	KafkaEventTopic      string
	KafkaExtractionTopic string
	KafkaAssessmentTopic string
	KafkaGroupID         string
	HTTPAddr             string
	LogLevel             string
	LogFormat            string
	ShutdownTimeout      time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	PipelineMode      string
	StorePath         string
	PolicyPath        string
	PolicyWatch       bool
	FusionChunkSize   int
	AssessConcurrency int

	// Gazetteer (Mapbox) configuration.
	MapboxToken        string
	GazetteerEnabled   bool
	GazetteerRequired  bool
	GazetteerTimeout   time.Duration
	GazetteerCacheSize int
	GazetteerRPS       float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	gazetteerTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("GAZETTEER_TIMEOUT", "5s"))
	if err != nil || gazetteerTimeout <= 0 {
		return nil, errors.New("invalid GAZETTEER_TIMEOUT")
	}

	rps, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("GAZETTEER_RPS", "10"), 64)
	if err != nil || rps <= 0 {
		return nil, errors.New("invalid GAZETTEER_RPS")
	}

	chunkSize, err := positiveInt("FUSION_CHUNK_SIZE", 5000)
	if err != nil {
		return nil, err
	}
	concurrency, err := positiveInt("ASSESS_CONCURRENCY", 8)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	gazetteerEnabled := mapboxToken != ""
	if v := os.Getenv("GAZETTEER_ENABLED"); v != "" {
		gazetteerEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:     sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-signals"),
		KafkaAssignmentTopic: sharedcfg.EnvOrDefault("KAFKA_ASSIGNMENT_TOPIC", "cluster-assignments"),
		KafkaEventTopic:      sharedcfg.EnvOrDefault("KAFKA_EVENT_TOPIC", "unique-events"),
		KafkaExtractionTopic: sharedcfg.EnvOrDefault("KAFKA_EXTRACTION_TOPIC", "event-extractions"),
		KafkaAssessmentTopic: sharedcfg.EnvOrDefault("KAFKA_ASSESSMENT_TOPIC", "event-assessments"),
		KafkaGroupID:         sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "kinetic-event-fusion"),
		HTTPAddr:             sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:             sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:      shutdownTimeout,
		BatchSize:            batchSize,
		BatchFlushInterval:   flushInterval,

		PipelineMode:      sharedcfg.EnvOrDefault("PIPELINE_MODE", ModeFuse),
		StorePath:         sharedcfg.EnvOrDefault("STORE_PATH", "fusion.db"),
		PolicyPath:        os.Getenv("POLICY_PATH"),
		PolicyWatch:       os.Getenv("POLICY_WATCH") == "true",
		FusionChunkSize:   chunkSize,
		AssessConcurrency: concurrency,

		MapboxToken:        mapboxToken,
		GazetteerEnabled:   gazetteerEnabled,
		GazetteerRequired:  os.Getenv("GAZETTEER_REQUIRED") == "true",
		GazetteerTimeout:   gazetteerTimeout,
		GazetteerCacheSize: parseCacheSize(),
		GazetteerRPS:       rps,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	switch cfg.PipelineMode {
	case ModeFuse:
		if cfg.KafkaSourceTopic == "" || cfg.KafkaAssignmentTopic == "" || cfg.KafkaEventTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC, KAFKA_ASSIGNMENT_TOPIC and KAFKA_EVENT_TOPIC are required in fuse mode")
		}
	case ModeAssess:
		if cfg.KafkaExtractionTopic == "" || cfg.KafkaAssessmentTopic == "" {
			return nil, errors.New("KAFKA_EXTRACTION_TOPIC and KAFKA_ASSESSMENT_TOPIC are required in assess mode")
		}
	default:
		return nil, fmt.Errorf("invalid PIPELINE_MODE %q (want %s or %s)", cfg.PipelineMode, ModeFuse, ModeAssess)
	}
	if cfg.GazetteerEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("GAZETTEER_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if cfg.GazetteerRequired && !cfg.GazetteerEnabled {
		return nil, errors.New("GAZETTEER_REQUIRED is true but the gazetteer is disabled")
	}
	if cfg.PolicyWatch && cfg.PolicyPath == "" {
		return nil, errors.New("POLICY_WATCH is true but POLICY_PATH is not set")
	}

	return cfg, nil
}

func parseCacheSize() int {
	if s := os.Getenv("GAZETTEER_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

func positiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
