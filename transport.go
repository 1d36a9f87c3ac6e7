// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import (
	"context"
	"fmt"
	"sort"
)

// TopicPartition identifies a single partition of a topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// String returns "topic[partition]".
func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s[%d]", tp.Topic, tp.Partition)
}

// Consumer is the transport the Router consumes from.
//
// Implementations invoke the Handler they were created with exactly once per
// inbound message, and report partition assignment changes through it.
type Consumer interface {
	// Subscribe sets the topics to consume. It may be called before Start and
	// again while running to replace the subscription.
	Subscribe(ctx context.Context, pattern Pattern) error

	// Start begins consuming and delivering messages to the Handler.
	Start(ctx context.Context) error

	// Stop stops consuming. Safe to call multiple times.
	Stop(ctx context.Context) error

	// Ack commits progress for the partition up to and including offset.
	// May be buffered, but must not be dropped.
	Ack(tp TopicPartition, offset int64) error
}

// Handler receives messages and rebalance notifications from a Consumer.
// The Router implements Handler.
type Handler interface {
	// OnMessage is called for every inbound message, one at a time. A non-nil
	// error is fatal; the consumer stops delivering.
	OnMessage(ctx context.Context, msg *Message) error

	// OnPartitionsAssigned is called after partitions are assigned to this consumer.
	OnPartitionsAssigned(assigned []TopicPartition)

	// OnPartitionsRevoked is called before partitions are taken away from this consumer.
	OnPartitionsRevoked(revoked []TopicPartition)
}

// ConsumerFactory builds a Consumer that delivers to the given Handler.
type ConsumerFactory func(h Handler) (Consumer, error)

// toTopicPartitions flattens a franz-go style topic -> partitions map into a
// sorted list.
func toTopicPartitions(m map[string][]int32) []TopicPartition {
	tps := make([]TopicPartition, 0, len(m))
	for topic, partitions := range m {
		for _, p := range partitions {
			tps = append(tps, TopicPartition{Topic: topic, Partition: p})
		}
	}
	sort.Slice(tps, func(i, j int) bool {
		if tps[i].Topic != tps[j].Topic {
			return tps[i].Topic < tps[j].Topic
		}
		return tps[i].Partition < tps[j].Partition
	})
	return tps
}
