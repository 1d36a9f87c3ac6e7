// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// StreamConfig configures a Stream.
type StreamConfig struct {
	// ID identifies the stream. Optional. If empty, a random UUID is used.
	ID string

	// Topics the stream consumes. Required. Must not be empty.
	Topics []string

	// TaskGroup places the stream in a group sharing one inbox.
	// Optional. If nil, the stream is ungrouped.
	TaskGroup *TaskGroup

	// InboxSize is the inbox capacity.
	// Default: DefaultInboxSize.
	InboxSize int

	// Inactive creates the stream deactivated; it is excluded from routing
	// until SetActive(true) and the next compilation.
	Inactive bool
}

// Stream is the standard Subscriber implementation.
//
// Stream is safe for concurrent use, but Next must be called from a single
// goroutine per group.
type Stream struct {
	id        string
	topics    []string
	taskGroup *TaskGroup
	inbox     *Inbox

	active atomic.Bool
	router atomic.Pointer[Router]
}

var (
	_ Subscriber   = (*Stream)(nil)
	_ RouterLinker = (*Stream)(nil)
)

// NewStream validates cfg and creates a Stream.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}

	s := &Stream{
		id:     id,
		topics: append([]string(nil), cfg.Topics...),
		inbox:  NewInbox(cfg.InboxSize),
	}
	if cfg.TaskGroup != nil {
		g := *cfg.TaskGroup
		s.taskGroup = &g
	}
	s.active.Store(!cfg.Inactive)

	return s, nil
}

func (cfg *StreamConfig) validate() error {
	if len(cfg.Topics) == 0 {
		return errors.Join(ErrValidation, fmt.Errorf("stream topics must not be empty"))
	}
	for i, topic := range cfg.Topics {
		if err := validateTopic(topic); err != nil {
			return fmt.Errorf("stream topic %d: %w", i, err)
		}
	}
	if cfg.InboxSize < 0 {
		return errors.Join(ErrValidation, fmt.Errorf("inbox size must not be negative"))
	}
	return nil
}

// ID implements Subscriber.
func (s *Stream) ID() string { return s.id }

// TaskGroup implements Subscriber.
func (s *Stream) TaskGroup() (TaskGroup, bool) {
	if s.taskGroup == nil {
		return TaskGroup{}, false
	}
	return *s.taskGroup, true
}

// Active implements Subscriber.
func (s *Stream) Active() bool { return s.active.Load() }

// SetActive activates or deactivates the stream. Routing changes on the
// router's next compilation.
func (s *Stream) SetActive(active bool) { s.active.Store(active) }

// Topics implements Subscriber.
func (s *Stream) Topics() []string {
	return append([]string(nil), s.topics...)
}

// Inbox implements Subscriber.
func (s *Stream) Inbox() *Inbox { return s.inbox }

// LinkRouter implements RouterLinker.
func (s *Stream) LinkRouter(r *Router) { s.router.Store(r) }

// Next returns the next message for this stream, waiting until one arrives
// or ctx ends. Grouped streams read from the inbox the router assigned to
// their group.
func (s *Stream) Next(ctx context.Context) (*Message, error) {
	inbox := s.inbox
	if r := s.router.Load(); r != nil {
		inbox = r.InboxFor(s)
	}
	return inbox.Get(ctx)
}

// Ack releases msg on behalf of this stream.
func (s *Stream) Ack(msg *Message) error {
	r := s.router.Load()
	if r == nil {
		return errors.Join(ErrUnknownSubscriber, fmt.Errorf("stream %q is not registered", s.id))
	}
	return r.AckMessage(msg)
}
