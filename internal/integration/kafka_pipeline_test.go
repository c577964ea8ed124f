//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/vibration-severity-etl/internal/adapter/kafka"
	"github.com/couchcryptid/vibration-severity-etl/internal/config"
	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	"github.com/couchcryptid/vibration-severity-etl/internal/observability"
	"github.com/couchcryptid/vibration-severity-etl/internal/pipeline"
	"github.com/couchcryptid/vibration-severity-etl/internal/store"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-vibration-severity"

const sensorLog = "time\tSpeedX(mm/s)\tSpeedY(mm/s)\tSpeedZ(mm/s)\tDisplacementX(um)\tDisplacementY(um)\tDisplacementZ(um)\tTemperature(°C)\n" +
	"2025-03-23 15:27:52.100\t3\t4\t0\t10\t20\t30\t25\n" +
	"2025-03-23 15:27:52.600\t1\t0\t0\t2\t4\t6\t27\n" +
	"2025-03-23 15:27:53.000\t0\t0\t2\t1\t1\t1\t26\n" +
	"2025-03-23 15:27:54.500\t0\t1\t0\t1\t1\t1\t26\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestAnalyzerPublishesToKafka runs a sensor log through the analyzer with a
// real sqlite store and a real Kafka publisher, then reads the results back.
func TestAnalyzerPublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaTopic:         testTopic,
		BatchSize:          50,
		BatchFlushInterval: 100 * time.Millisecond,
	}

	st, err := store.Open(ctx, store.Options{
		Driver: store.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "vibration.db"),
	}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "run-01.txt"), []byte(sensorLog), 0o600))

	metrics := observability.NewMetricsForTesting()
	a := pipeline.NewAnalyzer(st, t.TempDir(), discardLogger(), metrics, pipeline.WithPublishers(writer))

	summary, err := a.AnalyzeDir(ctx, dataDir, false)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed, "errors: %v", summary.Errors)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	var received []domain.ResultMessage
	for len(received) < 3 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from result topic")

		assert.Equal(t, "run-01.txt", string(msg.Key))
		var rm domain.ResultMessage
		require.NoError(t, json.Unmarshal(msg.Value, &rm))
		received = append(received, rm)
	}

	stored, err := st.ResultsByFile(ctx, "run-01.txt")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, rm := range received {
		assert.Equal(t, int64(stored[i].Key), rm.EpochSeconds, "single partition keeps file order")
		require.NotNil(t, rm.SeverityScore)
		assert.InDelta(t, stored[i].SeverityScore, *rm.SeverityScore, 1e-9)
	}
	assert.Equal(t, 2, received[0].SampleCount)
}
