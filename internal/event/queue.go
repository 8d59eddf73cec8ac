// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package event holds the node's pending-event bit field.
//
// Producers (timers, radio callbacks, the companion reader) Set flags from any
// goroutine. The dispatch loop Waits for a non-zero word, and each handler
// Tests and Clears only the bits it owns. Repeated Sets of a pending flag
// coalesce into one occurrence.
package event

import (
	"context"
	"strings"
	"sync/atomic"
)

// Flag is one bit of the event word
type Flag uint32

// Event flags
const (
	Status           Flag = 1 << iota // interval timer wake-up
	InboundBytes                      // companion channel has data
	JoinFinished                      // network join attempt completed
	DataReceived                      // downlink arrived
	TransmitFinished                  // uplink cycle completed
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{Status, "STATUS"},
	{InboundBytes, "INBOUND_BYTES"},
	{JoinFinished, "JOIN_FINISHED"},
	{DataReceived, "DATA_RECEIVED"},
	{TransmitFinished, "TRANSMIT_FINISHED"},
}

// String lists the names of the bits set in f
func (f Flag) String() string {
	if f == 0 {
		return "NONE"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
			f &^= fn.flag
		}
	}
	if f != 0 {
		parts = append(parts, "UNKNOWN")
	}
	return strings.Join(parts, "|")
}

// Queue is the pending-event word plus a wake-up edge for the dispatcher.
// The zero value is not usable; call New.
type Queue struct {
	bits   atomic.Uint32
	wakeup chan struct{} // 1-slot edge, signalled on every Set
}

// New creates an all-clear queue
func New() *Queue {
	return &Queue{wakeup: make(chan struct{}, 1)}
}

// Set marks flag as pending. It never blocks.
func (q *Queue) Set(flag Flag) {
	q.bits.Or(uint32(flag))
	select {
	case q.wakeup <- struct{}{}:
	default:
	}
}

// Test reports whether every bit of flag is pending
func (q *Queue) Test(flag Flag) bool {
	return Flag(q.bits.Load())&flag == flag
}

// Clear removes exactly the bits in mask
func (q *Queue) Clear(mask Flag) {
	q.bits.And(^uint32(mask))
}

// Pending returns the whole event word
func (q *Queue) Pending() Flag {
	return Flag(q.bits.Load())
}

// Wait blocks until at least one flag is pending or ctx is done.
// It returns the pending word observed on wake-up.
func (q *Queue) Wait(ctx context.Context) (Flag, error) {
	for {
		if f := q.Pending(); f != 0 {
			return f, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-q.wakeup:
		}
	}
}
