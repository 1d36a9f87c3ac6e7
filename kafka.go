// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

// kafkaConsumer is the franz-go backed Consumer.
//
// It joins a consumer group, polls from a single goroutine and hands records
// to the Handler one at a time. Acked offsets are marked and committed by
// franz-go's autocommitter, on partition revocation, and on Stop.
type kafkaConsumer struct {
	// opts are the base client options (brokers, group, auth, timeouts).
	opts []kgo.Opt

	handler       Handler
	logger        kgo.Logger
	clientFactory clientFactory

	// mu protects everything below.
	mu      sync.Mutex
	client  kafkaClient
	pattern Pattern
	matcher *patternMatcher

	// marks is the highest acked offset per partition.
	marks map[TopicPartition]int64

	cancelPoll     context.CancelFunc
	cancelDispatch context.CancelFunc
	done           chan struct{}
}

var _ Consumer = (*kafkaConsumer)(nil)

func newKafkaConsumer(h Handler, logger kgo.Logger, factory clientFactory, opts ...kgo.Opt) *kafkaConsumer {
	if factory == nil {
		factory = defaultClientFactory
	}
	return &kafkaConsumer{
		opts:          opts,
		handler:       h,
		logger:        loggerOrNop(logger),
		clientFactory: factory,
		matcher:       &patternMatcher{topics: map[string]struct{}{}},
		marks:         make(map[TopicPartition]int64),
	}
}

// Subscribe replaces the set of consumed topics. Before Start it only records
// the pattern; afterwards it adds new topics and purges dropped ones, committing
// marked offsets first so progress on dropped topics is kept.
func (c *kafkaConsumer) Subscribe(ctx context.Context, pattern Pattern) error {
	next, err := pattern.compile()
	if err != nil {
		return err
	}

	c.mu.Lock()
	client := c.client
	removed, added := c.matcher.diff(next)
	c.pattern = pattern
	c.matcher = next
	if len(removed) > 0 {
		for tp := range c.marks {
			if !next.matches(tp.Topic) {
				delete(c.marks, tp)
			}
		}
	}
	c.mu.Unlock()

	if client == nil {
		return nil
	}

	if len(added) > 0 {
		client.AddConsumeTopics(added...)
	}

	if len(removed) > 0 {
		if err := client.CommitMarkedOffsets(ctx); err != nil {
			c.logger.Log(kgo.LogLevelWarn, "commit before unsubscribing failed", "error", err.Error())
		}
		client.PurgeTopicsFromConsuming(removed...)
	}

	c.logger.Log(kgo.LogLevelInfo, "subscription updated",
		"pattern", pattern.String(), "added", len(added), "removed", len(removed))
	return nil
}

// Start creates the franz-go client and starts the poll loop.
func (c *kafkaConsumer) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return ErrAlreadyStarted
	}

	opts := append([]kgo.Opt{}, c.opts...)
	opts = append(opts,
		kgo.AutoCommitMarks(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			c.onAssigned(assigned)
		}),
		kgo.OnPartitionsRevoked(func(ctx context.Context, _ *kgo.Client, revoked map[string][]int32) {
			c.onRevoked(ctx, revoked)
		}),
		kgo.OnPartitionsLost(func(_ context.Context, _ *kgo.Client, lost map[string][]int32) {
			c.onLost(lost)
		}),
	)
	if topics := c.pattern.Topics(); len(topics) > 0 {
		opts = append(opts, kgo.ConsumeTopics(topics...))
	}

	client, err := c.clientFactory(opts...)
	if err != nil {
		return errors.Join(ErrTransport, fmt.Errorf("failed to create Kafka client"), err)
	}

	pollCtx, cancelPoll := context.WithCancel(context.Background())
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())

	c.client = client
	c.cancelPoll = cancelPoll
	c.cancelDispatch = cancelDispatch
	c.done = make(chan struct{})

	go c.poll(client, pollCtx, dispatchCtx, c.done)

	c.logger.Log(kgo.LogLevelInfo, "Kafka consumer started", "pattern", c.pattern.String())
	return nil
}

// poll delivers records until the client closes, Stop is called, or the
// handler fails. Stop is only observed between messages.
func (c *kafkaConsumer) poll(client kafkaClient, pollCtx, dispatchCtx context.Context, done chan struct{}) {
	defer close(done)

	for {
		fetches := client.PollFetches(pollCtx)
		if fetches.IsClientClosed() || pollCtx.Err() != nil {
			return
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Log(kgo.LogLevelWarn, "fetch error",
				"topic", topic, "partition", partition, "error", err.Error())
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			msg := newMessageFromRecord(iter.Next())
			if err := c.handler.OnMessage(dispatchCtx, msg); err != nil {
				c.logger.Log(kgo.LogLevelError, "dispatch failed, consumer stopped polling",
					"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err.Error())
				return
			}
			if pollCtx.Err() != nil {
				return
			}
		}
	}
}

// Stop waits for the in-flight message, commits marked offsets and closes
// the client. If ctx ends while a message is still being delivered, the
// delivery is cancelled. Safe to call multiple times.
func (c *kafkaConsumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	if client == nil {
		c.mu.Unlock()
		return nil
	}
	c.client = nil
	cancelPoll, cancelDispatch, done := c.cancelPoll, c.cancelDispatch, c.done
	c.mu.Unlock()

	defer cancelDispatch()

	cancelPoll()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Log(kgo.LogLevelWarn, "stop deadline reached during delivery, cancelling it")
		cancelDispatch()
		<-done
	}

	var err error
	if cerr := client.CommitMarkedOffsets(ctx); cerr != nil {
		c.logger.Log(kgo.LogLevelWarn, "commit incomplete during shutdown", "error", cerr.Error())
		err = errors.Join(ErrTransport, fmt.Errorf("final commit failed"), cerr)
	}

	client.Close()

	c.mu.Lock()
	c.marks = make(map[TopicPartition]int64)
	c.mu.Unlock()

	c.logger.Log(kgo.LogLevelInfo, "Kafka consumer stopped")
	return err
}

// Ack marks offset+1 (the next offset to read) for commit. Offsets at or
// below one already acked for the partition are ignored.
func (c *kafkaConsumer) Ack(tp TopicPartition, offset int64) error {
	c.mu.Lock()
	client := c.client
	if client == nil {
		c.mu.Unlock()
		return ErrNotStarted
	}
	if prev, ok := c.marks[tp]; ok && offset <= prev {
		c.mu.Unlock()
		c.logger.Log(kgo.LogLevelDebug, "ignoring out of order ack",
			"topic", tp.Topic, "partition", tp.Partition, "offset", offset, "acked", prev)
		return nil
	}
	c.marks[tp] = offset
	c.mu.Unlock()

	client.MarkCommitOffsets(map[string]map[int32]kgo.EpochOffset{
		tp.Topic: {
			tp.Partition: {Epoch: -1, Offset: offset + 1},
		},
	})
	return nil
}

func (c *kafkaConsumer) onAssigned(assigned map[string][]int32) {
	c.handler.OnPartitionsAssigned(toTopicPartitions(assigned))
}

// onRevoked commits what has been acked so far before the partitions move
// to another group member.
func (c *kafkaConsumer) onRevoked(ctx context.Context, revoked map[string][]int32) {
	tps := toTopicPartitions(revoked)

	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client != nil {
		if err := client.CommitMarkedOffsets(ctx); err != nil {
			c.logger.Log(kgo.LogLevelWarn, "commit on revoke failed", "error", err.Error())
		}
	}

	c.forget(tps)
	c.handler.OnPartitionsRevoked(tps)
}

// onLost handles partitions taken away without a chance to commit.
func (c *kafkaConsumer) onLost(lost map[string][]int32) {
	tps := toTopicPartitions(lost)
	c.forget(tps)
	c.handler.OnPartitionsRevoked(tps)
}

func (c *kafkaConsumer) forget(tps []TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tp := range tps {
		delete(c.marks, tp)
	}
}
