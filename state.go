// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

// State is the lifecycle state of a Router.
type State int

const (
	// Idle is the state of a router that has not been started.
	Idle State = iota

	// Starting indicates the router is waiting for subscribers to finish
	// registering, or is compiling and starting the consumer.
	Starting

	// Running indicates the consumer is delivering messages.
	Running

	// Stopping indicates the consumer is being shut down.
	Stopping

	// Stopped is terminal, reached by Stop or by a fatal error.
	Stopped
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
