package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RawEvent represents an unprocessed message from a source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Output kinds stamped into the event_kind header.
const (
	KindAssignment = "cluster_assignment"
	KindEvent      = "unique_event"
	KindAssessment = "event_assessment"
)

// OutputEvent is the serialized form destined for a sink topic.
type OutputEvent struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// NewOutputEvent marshals v and stamps the kind and processing-time headers.
func NewOutputEvent(topic, key, kind string, v any) (OutputEvent, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize %s: %w", kind, err)
	}
	return OutputEvent{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Headers: map[string]string{
			"event_kind":   kind,
			"processed_at": Now().Format(time.RFC3339),
		},
	}, nil
}

// Checkpoint marks the last committed position of a chunked run.
type Checkpoint struct {
	Name     string
	SortKey  int64
	SignalID string
}

// Chunk is everything one fusion chunk commits in a single durable write.
type Chunk struct {
	Signals     []Signal
	Assignments []Assignment
	Events      []UniqueEvent
	Checkpoint  *Checkpoint
}
