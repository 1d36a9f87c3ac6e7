// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import (
	"errors"
	"fmt"
	"sort"
)

// target is one delivery destination in the routing table.
type target struct {
	sub   Subscriber
	inbox *Inbox
}

// routes is an immutable compiled snapshot of the subscriber set.
// The router swaps whole snapshots; a dispatch reads exactly one.
type routes struct {
	// table maps a topic to the active representatives interested in it.
	table map[string][]target

	// inboxes maps every registered subscriber ID to the inbox it drains.
	inboxes map[string]*Inbox

	// groups pins each task group to one inbox for as long as the group has
	// members, whichever member currently represents it.
	groups map[TaskGroup]*Inbox

	pattern Pattern
	matcher *patternMatcher
}

// emptyRoutes is the snapshot used before the first compilation.
func emptyRoutes() *routes {
	return &routes{
		table:   map[string][]target{},
		inboxes: map[string]*Inbox{},
		groups:  map[TaskGroup]*Inbox{},
		matcher: &patternMatcher{topics: map[string]struct{}{}},
	}
}

// compile derives the grouped inbox assignment, the topic table and the
// subscription pattern from subs, which must be in registration order.
//
// Subscribers sharing a TaskGroup collapse to one representative: the first
// active member, or the first member when none is active. Every member drains
// the group's inbox. A group keeps the inbox it had in prev, so messages
// queued before a member was deactivated or unregistered are still read; a
// new group takes its representative's inbox. Ungrouped subscribers stand
// alone. Only active representatives appear in the table. prev may be nil.
func compile(subs []Subscriber, prev *routes) (*routes, error) {
	rt := &routes{
		table:   make(map[string][]target),
		inboxes: make(map[string]*Inbox, len(subs)),
		groups:  make(map[TaskGroup]*Inbox),
	}

	var order []TaskGroup
	groups := make(map[TaskGroup][]Subscriber)

	for _, sub := range subs {
		g, ok := sub.TaskGroup()
		if !ok {
			rt.inboxes[sub.ID()] = sub.Inbox()
			continue
		}
		if _, seen := groups[g]; !seen {
			order = append(order, g)
		}
		groups[g] = append(groups[g], sub)
	}

	reps := make(map[TaskGroup]target, len(order))
	for _, g := range order {
		members := groups[g]
		rep, err := representative(g, members)
		if err != nil {
			return nil, err
		}

		inbox := rep.Inbox()
		if prev != nil {
			if pinned, ok := prev.groups[g]; ok {
				inbox = pinned
			}
		}
		rt.groups[g] = inbox
		reps[g] = target{sub: rep, inbox: inbox}

		for _, m := range members {
			rt.inboxes[m.ID()] = inbox
		}
	}

	// Targets follow registration order; a group sits where its first
	// member registered.
	for _, sub := range subs {
		t := target{sub: sub, inbox: sub.Inbox()}
		if g, ok := sub.TaskGroup(); ok {
			rep, first := reps[g]
			if !first {
				continue
			}
			delete(reps, g)
			t = rep
		}
		if !t.sub.Active() {
			continue
		}
		seen := make(map[string]struct{})
		for _, topic := range t.sub.Topics() {
			if _, dup := seen[topic]; dup {
				continue
			}
			seen[topic] = struct{}{}
			rt.table[topic] = append(rt.table[topic], t)
		}
	}

	topics := make([]string, 0, len(rt.table))
	for topic := range rt.table {
		topics = append(topics, topic)
	}
	rt.pattern = newPattern(topics)

	matcher, err := rt.pattern.compile()
	if err != nil {
		return nil, errors.Join(ErrCompilation, err)
	}
	rt.matcher = matcher

	return rt, nil
}

// representative picks the member whose inbox the group shares.
func representative(g TaskGroup, members []Subscriber) (Subscriber, error) {
	if len(members) == 0 {
		return nil, errors.Join(ErrCompilation, fmt.Errorf("task group %s has no members", g))
	}
	for _, m := range members {
		if m.Active() {
			return m, nil
		}
	}
	return members[0], nil
}

// targets returns the delivery targets for topic.
func (rt *routes) targets(topic string) []target {
	if !rt.matcher.matches(topic) {
		return nil
	}
	return rt.table[topic]
}

// snapshot returns topic -> subscriber IDs, for inspection.
func (rt *routes) snapshot() map[string][]string {
	out := make(map[string][]string, len(rt.table))
	for topic, targets := range rt.table {
		ids := make([]string, 0, len(targets))
		for _, t := range targets {
			ids = append(ids, t.sub.ID())
		}
		sort.Strings(ids)
		out[topic] = ids
	}
	return out
}
