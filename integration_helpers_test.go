// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

//go:build integration

package streamrouter_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/streamrouter"
	"github.com/xmidt-org/wrp-go/v5"
)

const (
	// messageConsumeWait covers the first group join, which takes seconds.
	messageConsumeWait = 30 * time.Second
)

// configureTestContainersForPodman is a no-op since the Makefile sets the required
// environment variables (DOCKER_HOST, TESTCONTAINERS_DOCKER_SOCKET_OVERRIDE).
func configureTestContainersForPodman(t *testing.T) {
	t.Helper()
}

// setupKafka starts Kafka using testcontainers and returns the container and broker address.
// Automatically registers cleanup to stop Kafka when test completes.
func setupKafka(t *testing.T) (*kafka.KafkaContainer, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	configureTestContainersForPodman(t)

	// confluent-local is built for testcontainers; the version tag is pinned
	// because testcontainers validates it for KRaft mode.
	kafkaContainer, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.8.0",
		kafka.WithClusterID("test-cluster"),
	)
	require.NoError(t, err, "Failed to start Kafka container")

	t.Cleanup(func() {
		t.Log("Stopping Kafka container...")
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "Failed to get Kafka brokers")
	require.NotEmpty(t, brokers, "No Kafka brokers available")

	broker := brokers[0]
	t.Logf("Kafka broker available at: %s", broker)

	require.NoError(t, waitForKafka(ctx, t, broker))

	return kafkaContainer, broker
}

// waitForKafka attempts to connect to Kafka broker until it responds or timeout.
func waitForKafka(ctx context.Context, t *testing.T, broker string) error {
	t.Helper()

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		client, err := kgo.NewClient(
			kgo.SeedBrokers(broker),
			kgo.RequestTimeoutOverhead(5*time.Second),
		)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := client.Ping(pingCtx)
			cancel()
			client.Close()

			if err == nil {
				t.Log("Kafka is ready!")
				return nil
			}
			t.Logf("Kafka not ready yet: %v", err)
		}

		time.Sleep(1 * time.Second)
	}

	return context.DeadlineExceeded
}

// createTestRouter creates a Router joined to a fresh consumer group unless
// group is given.
func createTestRouter(t *testing.T, broker string, group string) *streamrouter.Router {
	t.Helper()

	if group == "" {
		group = "it-" + uuid.NewString()
	}

	r := &streamrouter.Router{
		Brokers:                []string{broker},
		ConsumerGroup:          group,
		AllowAutoTopicCreation: true, // Enable for integration tests
		CleanupTimeout:         10 * time.Second,
	}
	t.Cleanup(func() {
		_ = r.Stop(context.Background())
	})
	return r
}

// startTestRouter registers streams, starts r and waits until it is Running.
func startTestRouter(t *testing.T, r *streamrouter.Router, streams ...*streamrouter.Stream) {
	t.Helper()

	for _, s := range streams {
		require.NoError(t, r.Register(s))
	}
	require.NoError(t, r.Start())
	r.Ready()

	ctx, cancel := context.WithTimeout(context.Background(), messageConsumeWait)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}

// newTestStream creates a stream or fails the test.
func newTestStream(t *testing.T, cfg streamrouter.StreamConfig) *streamrouter.Stream {
	t.Helper()

	s, err := streamrouter.NewStream(cfg)
	require.NoError(t, err)
	return s
}

// produceMessages writes WRP messages to topic, keyed by their source.
func produceMessages(t *testing.T, broker string, topic string, msgs ...*wrp.Message) {
	t.Helper()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.AllowAutoTopicCreation(),
	)
	require.NoError(t, err, "Failed to create Kafka producer")
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), messageConsumeWait)
	defer cancel()

	for _, msg := range msgs {
		value, err := msg.EncodeMsgpack(nil)
		require.NoError(t, err)

		record := &kgo.Record{
			Topic: topic,
			Key:   []byte(msg.Source),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "X-Source", Value: []byte(msg.Source)},
			},
		}
		require.NoError(t, client.ProduceSync(ctx, record).FirstErr())
	}
}

// nextMessage waits for the next message on s.
func nextMessage(t *testing.T, s *streamrouter.Stream) *streamrouter.Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), messageConsumeWait)
	defer cancel()

	msg, err := s.Next(ctx)
	require.NoError(t, err, "No message received")
	return msg
}

// decodeWRPMessage decodes the WRP message carried by a routed message.
func decodeWRPMessage(t *testing.T, msg *streamrouter.Message) *wrp.Message {
	t.Helper()

	decoded, err := msg.WRP()
	require.NoError(t, err, "Failed to decode WRP message")
	return decoded
}

// createTestMessage creates a WRP message for testing.
func createTestMessage(eventType string, deviceID string) *wrp.Message {
	return &wrp.Message{
		Type:        wrp.SimpleEventMessageType,
		Source:      deviceID,
		Destination: "event:" + eventType + "/" + deviceID,
		Payload:     []byte(`{"status":"online"}`),
	}
}
