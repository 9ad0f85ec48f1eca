package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/couchcryptid/kinetic-event-fusion/internal/config"
	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces messages to whichever topic each output event names.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer without a fixed topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes the events in a single WriteMessages call. Keys are
// hashed to partitions so updates of one cluster stay ordered.
func (w *Writer) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := toMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// toMessage converts an output event, emitting headers in key order.
func toMessage(ev domain.OutputEvent) (kafkago.Message, error) {
	if ev.Topic == "" {
		return kafkago.Message{}, errors.New("output event has no topic")
	}
	keys := make([]string, 0, len(ev.Headers))
	for k := range ev.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	headers := make([]kafkago.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(ev.Headers[k])})
	}
	return kafkago.Message{
		Topic:   ev.Topic,
		Key:     ev.Key,
		Value:   ev.Value,
		Headers: headers,
	}, nil
}
