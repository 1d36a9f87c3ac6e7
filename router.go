// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/xmidt-org/eventor"
)

// Router owns the single consumer of an application and routes each inbound
// message to the subscribers interested in its topic.
//
// Thread Safety: All methods are safe for concurrent use by multiple goroutines.
//
// Subscribers register before the router compiles its routing table. Start
// waits for Ready (or StartDelay) before compiling, so the subscription
// covers everything registered during application startup. Later
// registrations take effect on Update.
type Router struct {
	// --- STATIC CONFIGURATION (set before the first method call, immutable after) ---

	// Brokers is the list of Kafka broker addresses.
	// Required unless NewConsumer is set. Each address must be in "host:port" format.
	Brokers []string

	// ConsumerGroup is the Kafka consumer group to join.
	// Required unless NewConsumer is set.
	ConsumerGroup string

	// SASL configures SASL authentication.
	// Optional. If nil, no authentication is used.
	SASL sasl.Mechanism

	// TLS configures TLS encryption.
	// Optional. If nil, plaintext connections are used.
	TLS *tls.Config

	// StartOffset is where to begin partitions without a committed offset.
	// Valid: "earliest", "latest". Default: earliest.
	StartOffset StartOffset

	// RequestTimeout sets the maximum time to wait for broker responses.
	// Zero or negative values use the franz-go default.
	RequestTimeout time.Duration

	// SessionTimeout sets the consumer group session timeout.
	// Zero or negative values use the franz-go default.
	SessionTimeout time.Duration

	// AllowAutoTopicCreation enables automatic creation of subscribed topics.
	// Default: false.
	AllowAutoTopicCreation bool

	// StartDelay, when positive, makes Start compile after this delay even if
	// Ready has not been called. This is a fixed wait: subscribers registering
	// after it elapses are missed until the next Update. Prefer Ready.
	// Default: 0 (wait for Ready).
	StartDelay time.Duration

	// AckMode selects when AckMessage commits a message's offset.
	// Valid: "release", "first". Default: release.
	AckMode AckMode

	// CleanupTimeout sets the maximum time Stop waits for the in-flight
	// message and the final commit when the caller's context has no deadline.
	// Zero or negative values mean no timeout.
	CleanupTimeout time.Duration

	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	// NewConsumer creates the consumer the router reads from.
	// Optional. If nil, a franz-go consumer is built from the fields above.
	NewConsumer ConsumerFactory

	// OnAssigned is called when the consumer is assigned partitions.
	// Optional. Called on the consumer's goroutine; must not block for long.
	OnAssigned func(assigned []TopicPartition)

	// OnRevoked is called before partitions are taken from the consumer,
	// for example to discard state buffered for them.
	// Optional. Called on the consumer's goroutine; must not block for long.
	OnRevoked func(revoked []TopicPartition)

	// InitialDispatchEventListeners are registered when Start() is called.
	// Optional.
	InitialDispatchEventListeners []func(*DispatchEvent)

	// --- INTERNAL FIELDS (not for user configuration) ---

	// initOnce guards lazy initialization so the zero Router is usable.
	initOnce sync.Once
	logger   kgo.Logger

	// clientFactory is for internal use only (testing hook).
	// Used by the default franz-go consumer.
	clientFactory clientFactory

	// mu protects the fields below it.
	mu          sync.Mutex
	state       State
	subscribers []Subscriber
	registered  map[string]Subscriber
	consumer    Consumer
	err         error
	cancelStart context.CancelFunc

	// started is closed once Starting resolves (Running, failure or Stop).
	started chan struct{}
	// done is closed when the router reaches Stopped.
	done chan struct{}

	ready     chan struct{}
	readyOnce sync.Once

	// compileMu serializes compilations so snapshots are stored in order.
	compileMu sync.Mutex

	// routes is the current compiled snapshot, swapped atomically so
	// dispatch never sees a partial table.
	routes atomic.Pointer[routes]

	// offsets holds back commits past messages still in use (AckOnRelease).
	offsets *offsetTracker

	dispatchListeners  eventor.Eventor[func(*DispatchEvent)]
	ackListeners       eventor.Eventor[func(*AckEvent)]
	rebalanceListeners eventor.Eventor[func(*RebalanceEvent)]

	registerInitialListenersOnce sync.Once
}

var _ Handler = (*Router)(nil)

func (r *Router) init() {
	r.initOnce.Do(func() {
		r.logger = loggerOrNop(r.Logger)
		r.registered = make(map[string]Subscriber)
		r.started = make(chan struct{})
		r.done = make(chan struct{})
		r.ready = make(chan struct{})
		r.routes.Store(emptyRoutes())
		r.offsets = newOffsetTracker()
	})
}

// AddDispatchEventListener adds a listener called after every inbound
// message has been routed (or failed to be). The returned function removes
// the listener. Listeners run on the consumer's goroutine and must be quick.
func (r *Router) AddDispatchEventListener(fn func(*DispatchEvent)) func() {
	return r.dispatchListeners.Add(fn)
}

// AddAckEventListener adds a listener called for every offset forwarded to
// the consumer. The returned function removes the listener.
func (r *Router) AddAckEventListener(fn func(*AckEvent)) func() {
	return r.ackListeners.Add(fn)
}

// AddRebalanceEventListener adds a listener called on partition assignment
// and revocation. The returned function removes the listener.
func (r *Router) AddRebalanceEventListener(fn func(*RebalanceEvent)) func() {
	return r.rebalanceListeners.Add(fn)
}

// Register adds a subscriber. It is routed to from the next compilation.
//
// Returns ErrDuplicateSubscriber if a subscriber with the same ID is already
// registered, and ErrStopped once the router is stopping.
func (r *Router) Register(sub Subscriber) error {
	r.init()

	if sub == nil {
		return errors.Join(ErrValidation, fmt.Errorf("subscriber must not be nil"))
	}
	id := sub.ID()
	if id == "" {
		return errors.Join(ErrValidation, fmt.Errorf("subscriber ID must not be empty"))
	}

	r.mu.Lock()
	if r.state == Stopping || r.state == Stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	if _, ok := r.registered[id]; ok {
		r.mu.Unlock()
		return errors.Join(ErrDuplicateSubscriber, fmt.Errorf("subscriber %q is already registered", id))
	}
	r.registered[id] = sub
	r.subscribers = append(r.subscribers, sub)
	r.mu.Unlock()

	if l, ok := sub.(RouterLinker); ok {
		l.LinkRouter(r)
	}

	r.logger.Log(kgo.LogLevelDebug, "subscriber registered", "id", id)
	return nil
}

// Unregister removes a subscriber. It stops being routed to from the next
// compilation.
func (r *Router) Unregister(sub Subscriber) error {
	r.init()

	if sub == nil {
		return errors.Join(ErrValidation, fmt.Errorf("subscriber must not be nil"))
	}
	id := sub.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.registered[id]; !ok {
		return errors.Join(ErrUnknownSubscriber, fmt.Errorf("subscriber %q is not registered", id))
	}
	delete(r.registered, id)
	for i, s := range r.subscribers {
		if s.ID() == id {
			r.subscribers = append(r.subscribers[:i:i], r.subscribers[i+1:]...)
			break
		}
	}

	r.logger.Log(kgo.LogLevelDebug, "subscriber unregistered", "id", id)
	return nil
}

// Ready signals that the application has finished registering subscribers.
// A started router compiles and subscribes once Ready is called. Safe to
// call multiple times, before or after Start.
func (r *Router) Ready() {
	r.init()
	r.readyOnce.Do(func() {
		close(r.ready)
	})
}

// Start validates the configuration and begins starting the router in the
// background. Use Wait to learn whether the router reached Running.
//
// Returns an error if:
//   - Configuration is invalid
//   - Already started
func (r *Router) Start() error {
	r.init()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Idle {
		return ErrAlreadyStarted
	}

	r.registerInitialListenersOnce.Do(func() {
		for _, listener := range r.InitialDispatchEventListeners {
			r.dispatchListeners.Add(listener)
		}
	})

	if err := r.validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancelStart = cancel
	r.state = Starting

	go r.delayedStart(ctx)

	r.logger.Log(kgo.LogLevelInfo, "Router starting", "subscribers", len(r.subscribers))
	return nil
}

// delayedStart waits for the readiness signal, then compiles and starts the
// consumer.
func (r *Router) delayedStart(ctx context.Context) {
	defer close(r.started)

	var delay <-chan time.Time
	if r.StartDelay > 0 {
		timer := time.NewTimer(r.StartDelay)
		defer timer.Stop()
		delay = timer.C
	}

	select {
	case <-r.ready:
	case <-delay:
		r.logger.Log(kgo.LogLevelWarn, "start delay elapsed without Ready, compiling registered subscribers",
			"delay", r.StartDelay.String())
	case <-ctx.Done():
		return
	}

	if err := r.run(ctx); err != nil {
		if ctx.Err() != nil {
			// Stop was called while starting.
			return
		}
		r.fail(err)
	}
}

// run compiles the routing table and starts the consumer on its pattern.
func (r *Router) run(ctx context.Context) error {
	rt, err := r.compile()
	if err != nil {
		return err
	}

	consumer, err := r.newConsumer(r)
	if err != nil {
		return errors.Join(ErrTransport, fmt.Errorf("failed to create consumer"), err)
	}

	r.mu.Lock()
	r.consumer = consumer
	r.mu.Unlock()

	if err := consumer.Subscribe(ctx, rt.pattern); err != nil {
		return errors.Join(ErrTransport, fmt.Errorf("failed to subscribe to '%s'", rt.pattern), err)
	}

	if err := consumer.Start(ctx); err != nil {
		return errors.Join(ErrTransport, fmt.Errorf("failed to start consumer"), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Starting {
		return nil
	}
	r.state = Running

	r.logger.Log(kgo.LogLevelInfo, "Router running", "pattern", rt.pattern.String())
	return nil
}

// newConsumer builds the configured consumer, defaulting to franz-go.
func (r *Router) newConsumer(h Handler) (Consumer, error) {
	if r.NewConsumer != nil {
		return r.NewConsumer(h)
	}
	return newKafkaConsumer(h, r.logger, r.clientFactory, r.toKgoOpts()...), nil
}

// Wait blocks until the router is Running, has failed to start, or ctx ends.
// Returns nil once Running, the startup error if starting failed, and
// ErrStopped if the router was stopped first.
func (r *Router) Wait(ctx context.Context) error {
	r.init()

	r.mu.Lock()
	state := r.state
	r.mu.Unlock()
	if state == Idle {
		return ErrNotStarted
	}

	select {
	case <-r.started:
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	if r.state != Running {
		return ErrStopped
	}
	return nil
}

// Update recompiles the routing table from the current subscribers and, when
// a consumer exists, resubscribes it to the new pattern.
func (r *Router) Update(ctx context.Context) error {
	r.init()

	rt, err := r.compile()
	if err != nil {
		return err
	}

	r.mu.Lock()
	consumer := r.consumer
	r.mu.Unlock()

	if consumer == nil {
		return nil
	}

	if err := consumer.Subscribe(ctx, rt.pattern); err != nil {
		return errors.Join(ErrTransport, fmt.Errorf("failed to subscribe to '%s'", rt.pattern), err)
	}
	return nil
}

// compile rebuilds the routing snapshot and swaps it in.
func (r *Router) compile() (*routes, error) {
	r.compileMu.Lock()
	defer r.compileMu.Unlock()

	r.mu.Lock()
	subs := append([]Subscriber(nil), r.subscribers...)
	r.mu.Unlock()

	rt, err := compile(subs, r.routes.Load())
	if err != nil {
		return nil, err
	}
	r.routes.Store(rt)

	r.logger.Log(kgo.LogLevelDebug, "routing table compiled",
		"subscribers", len(subs), "topics", len(rt.table), "pattern", rt.pattern.String())
	return rt, nil
}

// Stop stops the router: a pending start is cancelled, the in-flight message
// is allowed to finish, and the consumer is stopped. Safe to call multiple
// times, and on a router that was never started.
func (r *Router) Stop(ctx context.Context) error {
	r.init()

	r.mu.Lock()
	switch r.state {
	case Idle:
		r.state = Stopped
		close(r.done)
		r.mu.Unlock()
		return nil
	case Stopping, Stopped:
		r.mu.Unlock()
		select {
		case <-r.done:
		case <-ctx.Done():
		}
		return nil
	}
	r.state = Stopping
	cancelStart := r.cancelStart
	r.mu.Unlock()

	r.logger.Log(kgo.LogLevelInfo, "Stopping router")

	cancelStart()
	<-r.started

	// Apply CleanupTimeout only if the context doesn't already have a deadline.
	if r.CleanupTimeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.CleanupTimeout)
			defer cancel()
		}
	}

	r.mu.Lock()
	consumer := r.consumer
	r.mu.Unlock()

	var err error
	if consumer != nil {
		if err = consumer.Stop(ctx); err != nil {
			r.logger.Log(kgo.LogLevelWarn, "consumer stop incomplete", "error", err.Error())
		}
	}

	r.mu.Lock()
	r.consumer = nil
	r.state = Stopped
	close(r.done)
	r.mu.Unlock()

	r.logger.Log(kgo.LogLevelInfo, "Router stopped")
	return err
}

// fail records a fatal error and stops the router in the background.
func (r *Router) fail(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	stopping := r.state == Stopping || r.state == Stopped
	r.mu.Unlock()

	r.logger.Log(kgo.LogLevelError, "router failed", "error", err.Error())

	if !stopping {
		go func() {
			_ = r.Stop(context.Background())
		}()
	}
}

// State returns the current lifecycle state.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the fatal error that stopped the router, if any.
func (r *Router) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done returns a channel closed when the router reaches Stopped.
func (r *Router) Done() <-chan struct{} {
	r.init()
	return r.done
}

// Label returns a short description such as "Router(3)", the number being
// the registered subscribers.
func (r *Router) Label() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("Router(%d)", len(r.subscribers))
}

// Pattern returns the subscription pattern of the current routing table.
func (r *Router) Pattern() Pattern {
	r.init()
	return r.routes.Load().pattern
}

// Table returns the current routing table as topic -> subscriber IDs.
// Grouped subscribers appear once, under their group's representative.
func (r *Router) Table() map[string][]string {
	r.init()
	return r.routes.Load().snapshot()
}

// InboxFor returns the inbox sub drains: its own, or its group's shared one.
func (r *Router) InboxFor(sub Subscriber) *Inbox {
	r.init()
	if in, ok := r.routes.Load().inboxes[sub.ID()]; ok {
		return in
	}
	return sub.Inbox()
}

// OnMessage is the dispatcher, called by the consumer for every inbound
// message. It sets the message's reference count to the number of
// interested subscribers before pushing it into any inbox, so no subscriber
// can release it to zero while others have yet to receive it. Pushes wait on
// full inboxes, stalling delivery for every topic.
//
// A push that fails after others succeeded is fatal: the router stops and
// the error is returned to the consumer.
func (r *Router) OnMessage(ctx context.Context, msg *Message) error {
	r.init()
	startTime := time.Now()

	targets := r.routes.Load().targets(msg.Topic)

	event := DispatchEvent{
		Topic:       msg.Topic,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Subscribers: len(targets),
	}

	if len(targets) == 0 {
		r.dispatchEvent(&event, startTime, nil)
		return nil
	}

	if r.AckMode != AckFirst {
		r.offsets.track(msg.TopicPartition(), msg.Offset)
	}
	msg.incrementBulk(len(targets))

	for i, t := range targets {
		if err := t.inbox.Put(ctx, msg); err != nil {
			err = errors.Join(ErrFanOut,
				fmt.Errorf("message %s@%d delivered to %d of %d subscribers, failed on %q",
					msg.TopicPartition(), msg.Offset, i, len(targets), t.sub.ID()),
				err)
			event.Subscribers = i
			r.dispatchEvent(&event, startTime, err)
			r.fail(err)
			return err
		}
	}

	r.dispatchEvent(&event, startTime, nil)
	return nil
}

// OnPartitionsAssigned implements Handler.
func (r *Router) OnPartitionsAssigned(assigned []TopicPartition) {
	r.init()
	r.logger.Log(kgo.LogLevelInfo, "partitions assigned", "count", len(assigned))

	if r.OnAssigned != nil {
		r.OnAssigned(assigned)
	}
	r.rebalanceListeners.Visit(func(listener func(*RebalanceEvent)) {
		listener(&RebalanceEvent{Assigned: true, Partitions: assigned})
	})
}

// OnPartitionsRevoked implements Handler.
func (r *Router) OnPartitionsRevoked(revoked []TopicPartition) {
	r.init()
	r.logger.Log(kgo.LogLevelInfo, "partitions revoked", "count", len(revoked))

	r.offsets.forget(revoked)
	if r.OnRevoked != nil {
		r.OnRevoked(revoked)
	}
	r.rebalanceListeners.Visit(func(listener func(*RebalanceEvent)) {
		listener(&RebalanceEvent{Assigned: false, Partitions: revoked})
	})
}

// AckMessage releases msg on behalf of one subscriber and commits its offset
// according to AckMode:
//   - AckOnRelease: commits when the last holder releases it, and only once
//     every earlier message of the partition has been released too. The
//     commit then covers the highest offset that is safe.
//   - AckFirst: commits on the first call.
//
// Either way the offset is forwarded at most once per message; further calls
// return nil without effect.
func (r *Router) AckMessage(msg *Message) error {
	if msg == nil {
		return errors.Join(ErrValidation, fmt.Errorf("message must not be nil"))
	}
	r.init()

	if r.AckMode == AckFirst {
		if !msg.markAcked() {
			return nil
		}
		return r.AckOffset(msg.TopicPartition(), msg.Offset)
	}

	if msg.release() > 0 {
		return nil
	}
	if !msg.markAcked() {
		return nil
	}

	tp := msg.TopicPartition()
	offset, ok := r.offsets.release(tp, msg.Offset)
	if !ok {
		// An earlier message on the partition is still held.
		return nil
	}
	return r.AckOffset(tp, offset)
}

// AckOffset forwards a commit of offset for tp to the consumer.
//
// Returns ErrNotStarted without a consumer, or an ErrTransport error if the
// consumer rejects the commit.
func (r *Router) AckOffset(tp TopicPartition, offset int64) error {
	r.init()

	r.mu.Lock()
	consumer := r.consumer
	r.mu.Unlock()

	var err error
	if consumer == nil {
		err = ErrNotStarted
	} else if cerr := consumer.Ack(tp, offset); cerr != nil {
		err = errors.Join(ErrTransport, fmt.Errorf("failed to ack %s@%d", tp, offset), cerr)
	}

	event := AckEvent{
		Topic:     tp.Topic,
		Partition: tp.Partition,
		Offset:    offset,
		Error:     err,
		ErrorType: errorType(err),
	}
	r.ackListeners.Visit(func(listener func(*AckEvent)) {
		listener(&event)
	})

	return err
}

// dispatchEvent dispatches a DispatchEvent to all registered listeners.
func (r *Router) dispatchEvent(event *DispatchEvent, since time.Time, err error) {
	if err != nil {
		event.Error = err
		event.ErrorType = errorType(err)
	}
	event.Duration = time.Since(since)

	r.dispatchListeners.Visit(func(listener func(*DispatchEvent)) {
		listener(event)
	})
}

// validate validates the Router's configuration.
func (r *Router) validate() error {
	if r.NewConsumer == nil {
		if len(r.Brokers) == 0 {
			return errors.Join(ErrValidation, fmt.Errorf("brokers list is required"))
		}
		for i, broker := range r.Brokers {
			if broker == "" {
				return errors.Join(ErrValidation, fmt.Errorf("broker %d is empty", i))
			}
		}
		if r.ConsumerGroup == "" {
			return errors.Join(ErrValidation, fmt.Errorf("consumer group is required"))
		}
	}

	if r.StartDelay < 0 {
		return errors.Join(ErrValidation, fmt.Errorf("start delay must not be negative"))
	}

	if err := validateAckMode(r.AckMode); err != nil {
		return err
	}

	if err := validateStartOffset(r.StartOffset); err != nil {
		return err
	}

	return nil
}

// toKgoOpts converts the Router's configuration to franz-go client options.
// Topic subscription and rebalance callbacks are added by the consumer.
func (r *Router) toKgoOpts() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(r.Brokers...),
		kgo.ConsumerGroup(r.ConsumerGroup),
		kgo.ConsumeResetOffset(r.StartOffset.kgoOffset()),
	}

	if r.logger != nil {
		opts = append(opts, kgo.WithLogger(r.logger))
	}

	if r.AllowAutoTopicCreation {
		opts = append(opts, kgo.AllowAutoTopicCreation())
	}

	if r.SASL != nil {
		opts = append(opts, kgo.SASL(r.SASL))
	}

	if r.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(r.TLS))
	}

	if r.RequestTimeout > 0 {
		opts = append(opts, kgo.RequestTimeoutOverhead(r.RequestTimeout))
	}

	if r.SessionTimeout > 0 {
		opts = append(opts, kgo.SessionTimeout(r.SessionTimeout))
	}

	return opts
}
