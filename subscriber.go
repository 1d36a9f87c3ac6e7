// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import "fmt"

// TaskGroup is the grouping key of a subscriber. Subscribers with equal
// TaskGroup values form a group that shares a single inbox.
type TaskGroup struct {
	Group int
	Index int
}

// String returns "group/index".
func (g TaskGroup) String() string {
	return fmt.Sprintf("%d/%d", g.Group, g.Index)
}

// Subscriber is an in-process consumer of routed messages.
//
// The router reads these values only when compiling its routing table, so
// changes take effect on the next compilation (Start or Update).
type Subscriber interface {
	// ID uniquely identifies the subscriber within a router.
	ID() string

	// TaskGroup returns the grouping key and true, or false when ungrouped.
	TaskGroup() (TaskGroup, bool)

	// Active reports whether the subscriber should receive messages.
	Active() bool

	// Topics returns the topics the subscriber wants.
	Topics() []string

	// Inbox returns the subscriber's own inbox. Group members may be served
	// from another member's inbox; see Router.InboxFor.
	Inbox() *Inbox
}

// RouterLinker is implemented by subscribers that want a reference to the
// router that manages them. LinkRouter is called once, on registration.
type RouterLinker interface {
	LinkRouter(r *Router)
}
