package assess

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/couchcryptid/kinetic-event-fusion/internal/observability"
)

// Stage is the BatchTransformer of the assess pipeline.
type Stage struct {
	assessor *Assessor
	topic    string
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewStage publishes reports of assessor to topic.
func NewStage(assessor *Assessor, topic string, logger *slog.Logger, metrics *observability.Metrics) *Stage {
	return &Stage{assessor: assessor, topic: topic, logger: logger, metrics: metrics}
}

// TransformBatch decodes extractor payloads, dropping malformed ones, and
// assesses the rest as one batch.
func (s *Stage) TransformBatch(ctx context.Context, raws []domain.RawEvent) ([]domain.OutputEvent, error) {
	extractions := make([]domain.Extraction, 0, len(raws))
	for _, raw := range raws {
		ex, err := domain.DecodeExtraction(raw.Value)
		if err != nil {
			s.metrics.DecodeErrors.WithLabelValues("extraction").Inc()
			s.logger.Warn("invalid extraction, skipping message", "error", err,
				"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
			continue
		}
		extractions = append(extractions, ex)
	}

	reports, err := s.assessor.Assess(ctx, extractions)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OutputEvent, 0, len(reports))
	for _, r := range reports {
		ev, err := domain.NewOutputEvent(s.topic, r.ClusterID, domain.KindAssessment, r)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
