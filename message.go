// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import (
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is an inbound unit of work routed to subscribers.
//
// The reference count holds the number of subscribers (or groups) that have
// not yet released the message. It is set in one step by the dispatcher
// before the message reaches any inbox.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   []kgo.RecordHeader
	Timestamp time.Time

	refs  atomic.Int64
	acked atomic.Bool
}

// NewMessage creates a message for transports other than Kafka, and for tests.
func NewMessage(topic string, partition int32, offset int64, value []byte) *Message {
	return &Message{
		Topic:     topic,
		Partition: partition,
		Offset:    offset,
		Value:     value,
	}
}

// newMessageFromRecord copies the routing fields of a franz-go record.
func newMessageFromRecord(r *kgo.Record) *Message {
	return &Message{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
		Headers:   r.Headers,
		Timestamp: r.Timestamp,
	}
}

// TopicPartition returns the partition this message was read from.
func (m *Message) TopicPartition() TopicPartition {
	return TopicPartition{Topic: m.Topic, Partition: m.Partition}
}

// Refcount returns the number of outstanding references.
func (m *Message) Refcount() int64 {
	return m.refs.Load()
}

// Acked reports whether the message offset has been forwarded for commit.
func (m *Message) Acked() bool {
	return m.acked.Load()
}

// incrementBulk adds n references in a single atomic step.
func (m *Message) incrementBulk(n int) {
	m.refs.Add(int64(n))
}

// release drops one reference and returns how many remain. The count never
// goes below zero, so releasing a message that was never dispatched reports
// zero remaining.
func (m *Message) release() int64 {
	for {
		cur := m.refs.Load()
		if cur <= 0 {
			return 0
		}
		if m.refs.CompareAndSwap(cur, cur-1) {
			return cur - 1
		}
	}
}

// markAcked flags the message as acked. Only the first caller gets true.
func (m *Message) markAcked() bool {
	return m.acked.CompareAndSwap(false, true)
}
