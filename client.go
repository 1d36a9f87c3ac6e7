// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
)

// kafkaClient is an interface for the franz-go Kafka client methods we need.
// This allows us to mock the client for testing while using the real
// kgo.Client in production.
type kafkaClient interface {
	// PollFetches waits for records, or for ctx to end or the client to close.
	PollFetches(ctx context.Context) kgo.Fetches

	// AddConsumeTopics starts consuming additional topics.
	AddConsumeTopics(topics ...string)

	// PurgeTopicsFromConsuming stops consuming the given topics.
	PurgeTopicsFromConsuming(topics ...string)

	// MarkCommitOffsets marks offsets to be committed by the autocommitter.
	MarkCommitOffsets(unmarked map[string]map[int32]kgo.EpochOffset)

	// CommitMarkedOffsets synchronously commits everything marked so far.
	CommitMarkedOffsets(ctx context.Context) error

	// Close leaves the group and releases resources.
	Close()
}

// Verify that *kgo.Client implements kafkaClient interface at compile time.
var _ kafkaClient = (*kgo.Client)(nil)

// clientFactory is a function that creates a Kafka client from options.
// This allows dependency injection for testing.
type clientFactory func(opts ...kgo.Opt) (kafkaClient, error)

// defaultClientFactory is the production client factory that uses franz-go.
func defaultClientFactory(opts ...kgo.Opt) (kafkaClient, error) {
	return kgo.NewClient(opts...)
}
