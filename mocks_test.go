// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/twmb/franz-go/pkg/kgo"
)

// mockConsumer is a mock implementation of Consumer for testing.
type mockConsumer struct {
	mock.Mock
}

func (m *mockConsumer) Subscribe(ctx context.Context, pattern Pattern) error {
	args := m.Called(ctx, pattern)
	return args.Error(0)
}

func (m *mockConsumer) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockConsumer) Stop(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockConsumer) Ack(tp TopicPartition, offset int64) error {
	args := m.Called(tp, offset)
	return args.Error(0)
}

// newMockConsumer returns a consumer that accepts every call.
func newMockConsumer() *mockConsumer {
	c := &mockConsumer{}
	c.On("Subscribe", mock.Anything, mock.Anything).Return(nil).Maybe()
	c.On("Start", mock.Anything).Return(nil).Maybe()
	c.On("Stop", mock.Anything).Return(nil).Maybe()
	c.On("Ack", mock.Anything, mock.Anything).Return(nil).Maybe()
	return c
}

// fakeKafkaClient is an in-memory kafkaClient. Tests feed it fetches; it
// records marks, commits and subscription changes.
type fakeKafkaClient struct {
	fetches   chan kgo.Fetches
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	opts      []kgo.Opt
	marked    map[string]map[int32]kgo.EpochOffset
	added     []string
	purged    []string
	commits   int
	commitErr error
}

func newFakeKafkaClient() *fakeKafkaClient {
	return &fakeKafkaClient{
		fetches: make(chan kgo.Fetches, 16),
		closed:  make(chan struct{}),
		marked:  make(map[string]map[int32]kgo.EpochOffset),
	}
}

func (c *fakeKafkaClient) factory(opts ...kgo.Opt) (kafkaClient, error) {
	c.mu.Lock()
	c.opts = opts
	c.mu.Unlock()
	return c, nil
}

func (c *fakeKafkaClient) PollFetches(ctx context.Context) kgo.Fetches {
	select {
	case f := <-c.fetches:
		return f
	case <-c.closed:
		return kgo.NewErrFetch(kgo.ErrClientClosed)
	case <-ctx.Done():
		return kgo.NewErrFetch(ctx.Err())
	}
}

func (c *fakeKafkaClient) AddConsumeTopics(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = append(c.added, topics...)
}

func (c *fakeKafkaClient) PurgeTopicsFromConsuming(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purged = append(c.purged, topics...)
}

func (c *fakeKafkaClient) MarkCommitOffsets(unmarked map[string]map[int32]kgo.EpochOffset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, partitions := range unmarked {
		if c.marked[topic] == nil {
			c.marked[topic] = make(map[int32]kgo.EpochOffset)
		}
		for p, eo := range partitions {
			c.marked[topic][p] = eo
		}
	}
}

func (c *fakeKafkaClient) CommitMarkedOffsets(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits++
	return c.commitErr
}

func (c *fakeKafkaClient) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

func (c *fakeKafkaClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeKafkaClient) markedOffset(topic string, partition int32) (kgo.EpochOffset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	eo, ok := c.marked[topic][partition]
	return eo, ok
}

func (c *fakeKafkaClient) commitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

// fetchOf wraps records, in order, into a single poll result.
func fetchOf(records ...*kgo.Record) kgo.Fetches {
	topics := make([]kgo.FetchTopic, 0, len(records))
	for _, r := range records {
		topics = append(topics, kgo.FetchTopic{
			Topic: r.Topic,
			Partitions: []kgo.FetchPartition{{
				Partition: r.Partition,
				Records:   []*kgo.Record{r},
			}},
		})
	}
	return kgo.Fetches{{Topics: topics}}
}

// recordingHandler is a Handler that records what it receives.
type recordingHandler struct {
	mu       sync.Mutex
	messages []*Message
	assigned []TopicPartition
	revoked  []TopicPartition

	// onMessage, when set, decides the result of OnMessage.
	onMessage func(ctx context.Context, msg *Message) error
	received  chan *Message
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{received: make(chan *Message, 64)}
}

func (h *recordingHandler) OnMessage(ctx context.Context, msg *Message) error {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
	h.received <- msg

	if h.onMessage != nil {
		return h.onMessage(ctx, msg)
	}
	return nil
}

func (h *recordingHandler) OnPartitionsAssigned(assigned []TopicPartition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.assigned = append(h.assigned, assigned...)
}

func (h *recordingHandler) OnPartitionsRevoked(revoked []TopicPartition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.revoked = append(h.revoked, revoked...)
}

// fakeSubscriber is a minimal Subscriber with no validation.
type fakeSubscriber struct {
	id     string
	group  *TaskGroup
	active bool
	topics []string
	inbox  *Inbox
}

func (s *fakeSubscriber) ID() string { return s.id }
func (s *fakeSubscriber) TaskGroup() (TaskGroup, bool) {
	if s.group == nil {
		return TaskGroup{}, false
	}
	return *s.group, true
}
func (s *fakeSubscriber) Active() bool     { return s.active }
func (s *fakeSubscriber) Topics() []string { return s.topics }
func (s *fakeSubscriber) Inbox() *Inbox    { return s.inbox }
