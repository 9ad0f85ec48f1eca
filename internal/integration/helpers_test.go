//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/kinetic-event-fusion/internal/config"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the test and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("fusion-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}), "create topic %s", topic)
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:         []string{broker},
		KafkaSourceTopic:     "raw-signals",
		KafkaAssignmentTopic: "cluster-assignments",
		KafkaEventTopic:      "unique-events",
		KafkaExtractionTopic: "event-extractions",
		KafkaAssessmentTopic: "event-assessments",
		KafkaGroupID:         fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval:   2 * time.Second,
	}
}

func publish(ctx context.Context, t *testing.T, broker, topic string, msgs ...kafkago.Message) {
	t.Helper()
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: topic}
	defer producer.Close()
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

type received struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

func (r received) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Value, v))
}

// consume reads n messages from topic, starting at the beginning.
func consume(ctx context.Context, t *testing.T, broker, topic string, n int) []received {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("verify-%s-%d", topic, time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	defer consumer.Close()

	out := make([]received, 0, n)
	for len(out) < n {
		readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		cancel()
		require.NoError(t, err, "read from %s", topic)

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		out = append(out, received{Key: string(msg.Key), Value: msg.Value, Headers: headers})
	}
	return out
}
