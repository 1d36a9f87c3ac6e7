// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import "errors"

var (
	// ErrValidation indicates configuration validation failed.
	ErrValidation = &metricError{
		metric:  "validation_error",
		message: "validation error",
	}

	// ErrDuplicateSubscriber indicates a subscriber was registered twice.
	ErrDuplicateSubscriber = &metricError{
		metric:  "duplicate_subscriber",
		message: "subscriber already registered",
	}

	// ErrUnknownSubscriber indicates the subscriber is not registered.
	ErrUnknownSubscriber = &metricError{
		metric:  "unknown_subscriber",
		message: "subscriber not registered",
	}

	// ErrCompilation indicates the subscriber set could not be compiled into
	// a routing table.
	ErrCompilation = &metricError{
		metric:  "compilation_error",
		message: "compilation failed",
	}

	// ErrTransport indicates the underlying consumer failed to subscribe,
	// start, stop or commit.
	ErrTransport = &metricError{
		metric:  "transport_error",
		message: "transport error",
	}

	// ErrFanOut indicates a message was delivered to some, but not all, of
	// its subscribers. The router terminates when this happens.
	ErrFanOut = &metricError{
		metric:  "fanout_error",
		message: "incomplete fan-out",
	}

	// ErrInboxClosed indicates the inbox no longer accepts messages.
	ErrInboxClosed = &metricError{
		metric:  "inbox_closed",
		message: "inbox closed",
	}

	// ErrNotStarted indicates the router has no running consumer.
	ErrNotStarted = &metricError{
		metric:  "not_started",
		message: "router not started",
	}

	// ErrAlreadyStarted indicates the router has already been started.
	ErrAlreadyStarted = &metricError{
		metric:  "already_started",
		message: "router already started",
	}

	// ErrStopped indicates the router stopped before reaching Running.
	ErrStopped = &metricError{
		metric:  "stopped",
		message: "router stopped",
	}
)

// metricError is an internal error type that wraps errors with a type classification
// for metrics and observability. The metric field provides a string label for grouping
// errors in metrics systems.
type metricError struct {
	metric  string // Type classification for metrics (e.g., "fanout_error", "validation_error")
	message string // Human-readable message
}

// Error implements the error interface.
func (e *metricError) Error() string {
	return e.message
}

func (e *metricError) Metric() string {
	return e.metric
}

func (e *metricError) Is(target error) bool {
	if t, ok := target.(*metricError); ok {
		return e.message == t.message
	}
	return false
}

// errorType extracts the error type string for metrics classification.
// Walks the error chain to find metricError types.
func errorType(err error) string {
	if err == nil {
		return ""
	}

	var me *metricError
	if errors.As(err, &me) {
		return me.Metric()
	}

	return "unknown"
}
