// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package streamrouter is the message-routing core of a stream-processing
// runtime. A Router owns the single Kafka consumer of an application, fans
// each inbound message out to the in-process streams subscribed to its topic,
// and commits a message's offset only once the streams are done with it.
//
// # Quick Start
//
//	router := &streamrouter.Router{
//	    Brokers:       []string{"localhost:9092"},
//	    ConsumerGroup: "device-processor",
//	}
//	defer router.Stop(context.Background())
//
//	clicks, _ := streamrouter.NewStream(streamrouter.StreamConfig{
//	    Topics: []string{"clicks"},
//	})
//	if err := router.Register(clicks); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := router.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	router.Ready() // every stream is registered
//	if err := router.Wait(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	for {
//	    msg, err := clicks.Next(ctx)
//	    if err != nil {
//	        return
//	    }
//	    process(msg)
//	    _ = clicks.Ack(msg)
//	}
//
// # Routing
//
// Streams are compiled into a topic table when the router starts and on every
// Update. The consumer subscribes to the alternation of all topics in the
// table ("clicks|orders"). Inactive streams stay registered but receive
// nothing.
//
// Streams sharing a TaskGroup form a group with a single shared inbox: a
// message on one of the group's topics is delivered once to the group, not
// once per member.
//
// # Acknowledgment
//
// Before a message is pushed to any inbox its reference count is set to the
// number of receiving inboxes. With the default AckOnRelease mode each
// AckMessage call releases one reference, and the offset is committed when
// the last one is released. Kafka commits are cumulative, so a partition is
// committed only up to the offset before the lowest message still held.
// AckFirst commits on the first call instead. An offset is forwarded to the
// consumer at most once per message.
//
// # Backpressure
//
// Inboxes are bounded. When one is full the dispatcher waits, which pauses
// delivery for every topic rather than dropping or buffering without limit.
//
// # Startup
//
// Start returns immediately. The router compiles and subscribes when Ready is
// called, or after StartDelay if one is configured. Wait reports whether the
// router reached Running. A failure while delivering stops the router; Done
// is closed and Err reports the cause.
//
// # Observability
//
// Logging uses franz-go's kgo.Logger interface. Dispatch, ack and rebalance
// listeners receive an event for every routed message, forwarded offset and
// partition change:
//
//	router.AddDispatchEventListener(func(e *streamrouter.DispatchEvent) {
//	    if e.Error != nil {
//	        metrics.FanOutErrors.WithLabelValues(e.Topic, e.ErrorType).Inc()
//	    }
//	    metrics.DispatchLatency.WithLabelValues(e.Topic).Observe(e.Duration.Seconds())
//	})
package streamrouter
