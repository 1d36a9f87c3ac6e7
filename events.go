// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import "time"

// DispatchEvent describes the fan-out of one inbound message.
type DispatchEvent struct {
	// Topic, Partition and Offset identify the message.
	Topic     string
	Partition int32
	Offset    int64

	// Subscribers is the number of inboxes the message was routed to.
	// Zero means no active subscriber wanted the topic.
	Subscribers int

	// Error is set when the fan-out did not complete.
	Error error

	// ErrorType is the error classification (empty on success).
	ErrorType string

	// Duration is the time spent delivering, including time blocked on
	// full inboxes.
	Duration time.Duration
}

// AckEvent describes an offset forwarded to the consumer for commit.
type AckEvent struct {
	Topic     string
	Partition int32
	Offset    int64

	// Error is set when the consumer rejected the commit.
	Error error

	// ErrorType is the error classification (empty on success).
	ErrorType string
}

// RebalanceEvent describes a partition assignment change.
type RebalanceEvent struct {
	// Assigned is true for assignments and false for revocations.
	Assigned bool

	// Partitions are the affected partitions.
	Partitions []TopicPartition
}
