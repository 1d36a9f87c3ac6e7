// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import (
	"context"
	"sync"
)

// DefaultInboxSize is the inbox capacity used when none is configured.
const DefaultInboxSize = 1000

// Inbox is a bounded FIFO queue of messages.
//
// The dispatcher is the only writer. Exactly one reader drains an inbox; when
// a task group shares an inbox, that reader is whichever member drains it.
// A full inbox blocks Put, which stalls the dispatcher for every topic.
type Inbox struct {
	ch        chan *Message
	closed    chan struct{}
	closeOnce sync.Once
}

// NewInbox creates an inbox holding at most size messages. Sizes below one
// use DefaultInboxSize.
func NewInbox(size int) *Inbox {
	if size < 1 {
		size = DefaultInboxSize
	}
	return &Inbox{
		ch:     make(chan *Message, size),
		closed: make(chan struct{}),
	}
}

// Put appends msg, waiting while the inbox is full.
// Returns ctx.Err() if ctx ends first, or ErrInboxClosed after Close.
func (in *Inbox) Put(ctx context.Context, msg *Message) error {
	select {
	case <-in.closed:
		return ErrInboxClosed
	default:
	}

	select {
	case in.ch <- msg:
		return nil
	case <-in.closed:
		return ErrInboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get removes and returns the oldest message, waiting while the inbox is
// empty. After Close, buffered messages are still returned; once drained Get
// returns ErrInboxClosed.
func (in *Inbox) Get(ctx context.Context) (*Message, error) {
	select {
	case msg := <-in.ch:
		return msg, nil
	default:
	}

	select {
	case msg := <-in.ch:
		return msg, nil
	case <-in.closed:
		select {
		case msg := <-in.ch:
			return msg, nil
		default:
			return nil, ErrInboxClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of buffered messages.
func (in *Inbox) Len() int {
	return len(in.ch)
}

// Cap returns the inbox capacity.
func (in *Inbox) Cap() int {
	return cap(in.ch)
}

// Close stops the inbox from accepting messages. Safe to call multiple times.
func (in *Inbox) Close() {
	in.closeOnce.Do(func() {
		close(in.closed)
	})
}
