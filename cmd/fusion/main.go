package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/kinetic-event-fusion/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/kinetic-event-fusion/internal/adapter/kafka"
	"github.com/couchcryptid/kinetic-event-fusion/internal/adapter/mapbox"
	"github.com/couchcryptid/kinetic-event-fusion/internal/adapter/sqlite"
	"github.com/couchcryptid/kinetic-event-fusion/internal/assess"
	"github.com/couchcryptid/kinetic-event-fusion/internal/config"
	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/couchcryptid/kinetic-event-fusion/internal/fusion"
	"github.com/couchcryptid/kinetic-event-fusion/internal/observability"
	"github.com/couchcryptid/kinetic-event-fusion/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy, watcher, err := loadPolicy(cfg, logger)
	if err != nil {
		logger.Error("failed to load policy", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.Open(cfg.StorePath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.StorePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var (
		reader      *kafkaadapter.Reader
		transformer pipeline.BatchTransformer
	)
	switch cfg.PipelineMode {
	case config.ModeFuse:
		engine, err := fusion.NewEngine(policy.FusionParams())
		if err != nil {
			logger.Error("invalid fusion parameters", "error", err)
			os.Exit(1)
		}
		kw := domain.NewKeywordExtractor(policy.Vocabulary)
		stage := pipeline.NewFusionStage(engine, store, kw, pipeline.FusionTopics{
			Assignments: cfg.KafkaAssignmentTopic,
			Events:      cfg.KafkaEventTopic,
		}, logger, metrics)
		if err := stage.Warm(ctx); err != nil {
			logger.Error("failed to restore active set", "error", err)
			os.Exit(1)
		}
		reader = kafkaadapter.NewReader(cfg, cfg.KafkaSourceTopic, logger)
		transformer = stage

	case config.ModeAssess:
		geocoder, err := mapbox.NewGazetteer(ctx, cfg, metrics, logger)
		if err != nil {
			logger.Error("gazetteer startup probe failed", "error", err)
			os.Exit(1)
		}
		assessor := assess.New(policy, geocoder, store, cfg.AssessConcurrency, logger, metrics)
		if watcher != nil {
			watcher.OnChange(assessor.UpdatePolicy)
			stopWatch, err := watcher.Watch()
			if err != nil {
				logger.Error("failed to watch policy", "path", cfg.PolicyPath, "error", err)
				os.Exit(1)
			}
			defer stopWatch()
		}
		reader = kafkaadapter.NewReader(cfg, cfg.KafkaExtractionTopic, logger)
		transformer = assess.NewStage(assessor, cfg.KafkaAssessmentTopic, logger, metrics)
	}

	writer := kafkaadapter.NewWriter(cfg, logger)
	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, logger, p, store)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	logger.Info("service started", "mode", cfg.PipelineMode, "store", cfg.StorePath)
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// loadPolicy reads the policy file, or the defaults when none is set. The
// watcher is non-nil only with POLICY_WATCH; fusion parameters are read once
// per run, so only the assess mode subscribes to it.
func loadPolicy(cfg *config.Config, logger *slog.Logger) (*config.Policy, *config.PolicyWatcher, error) {
	if cfg.PolicyPath == "" {
		return config.DefaultPolicy(), nil, nil
	}
	if !cfg.PolicyWatch {
		p, err := config.LoadPolicy(cfg.PolicyPath)
		return p, nil, err
	}
	w, err := config.NewPolicyWatcher(cfg.PolicyPath, logger)
	if err != nil {
		return nil, nil, err
	}
	return w.Policy(), w, nil
}
