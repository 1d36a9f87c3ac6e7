// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import "sync"

// offsetTracker holds back commits so that a partition's committed position
// never passes a message a subscriber still holds.
//
// Kafka commits are cumulative: committing offset 7 also commits 5 and 6.
// When offset 6 is released before offset 5, the tracker forwards nothing;
// once 5 is released it forwards 6.
//
//	Offset:    3   4   5   6   7
//	Released:  ✓   ✓   .   ✓   .
//	                   |
//	              forwarded = 4
type offsetTracker struct {
	mu    sync.Mutex
	parts map[TopicPartition]*partitionOffsets
}

type partitionOffsets struct {
	// pending are dispatched offsets not yet released by every holder.
	pending map[int64]struct{}

	// released is the highest released offset.
	released int64

	// forwarded is the highest offset handed to the consumer.
	forwarded int64
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{
		parts: make(map[TopicPartition]*partitionOffsets),
	}
}

// track records a dispatched offset as held.
func (t *offsetTracker) track(tp TopicPartition, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.parts[tp]
	if !ok {
		p = &partitionOffsets{
			pending:   make(map[int64]struct{}),
			released:  -1,
			forwarded: -1,
		}
		t.parts[tp] = p
	}
	p.pending[offset] = struct{}{}
}

// release marks offset as no longer held and returns the offset that may be
// committed now, if it advanced. Offsets that were never tracked (never
// dispatched, or on a partition since revoked) are returned as is.
func (t *offsetTracker) release(tp TopicPartition, offset int64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.parts[tp]
	if !ok {
		return offset, true
	}
	if _, held := p.pending[offset]; !held {
		return offset, true
	}

	delete(p.pending, offset)
	if offset > p.released {
		p.released = offset
	}

	commit := p.released
	for o := range p.pending {
		if o <= commit {
			commit = o - 1
		}
	}

	if commit <= p.forwarded {
		return 0, false
	}
	p.forwarded = commit
	return commit, true
}

// forget drops the state of partitions that are no longer assigned.
func (t *offsetTracker) forget(tps []TopicPartition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tp := range tps {
		delete(t.parts, tp)
	}
}
