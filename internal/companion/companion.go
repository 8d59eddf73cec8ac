// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package companion implements the auxiliary byte channel a phone or
// terminal uses to talk to the node, and the line interpreter fed from it.
package companion

import (
	"errors"
	"sync"
)

// ErrEmpty is returned by ReadByte when nothing is buffered
var ErrEmpty = errors.New("companion: no data available")

// Channel is the inbound side of the companion link plus its connection state
type Channel interface {
	Available() int
	ReadByte() (byte, error)
	Connected() bool
	// SetNotify installs a callback run after new bytes are buffered.
	// It may be called from any goroutine.
	SetNotify(fn func())
	Write(p []byte) (int, error)
}

// inbox is the shared receive buffer behind every Channel
type inbox struct {
	mu     sync.Mutex
	data   []byte
	notify func()
}

func (b *inbox) push(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	b.data = append(b.data, p...)
	fn := b.notify
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (b *inbox) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *inbox) ReadByte() (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		return 0, ErrEmpty
	}
	c := b.data[0]
	b.data = b.data[1:]
	if len(b.data) == 0 {
		b.data = b.data[:0:0]
	}
	return c, nil
}

func (b *inbox) SetNotify(fn func()) {
	b.mu.Lock()
	b.notify = fn
	b.mu.Unlock()
}

// Buffer is an in-memory Channel. Push plays the remote peer; whatever the
// node writes back is handed to the output callback.
type Buffer struct {
	inbox

	stateMu   sync.Mutex
	connected bool
	output    func([]byte)
	written   []byte
}

// NewBuffer creates a connected in-memory channel
func NewBuffer() *Buffer {
	return &Buffer{connected: true}
}

// Push queues bytes as if the peer had sent them
func (b *Buffer) Push(p []byte) {
	b.push(p)
}

// Connected implements Channel
func (b *Buffer) Connected() bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.connected
}

// SetConnected changes the reported connection state
func (b *Buffer) SetConnected(c bool) {
	b.stateMu.Lock()
	b.connected = c
	b.stateMu.Unlock()
}

// OnOutput installs a callback for bytes written towards the peer. Without
// one, output accumulates and can be collected with Written.
func (b *Buffer) OnOutput(fn func([]byte)) {
	b.stateMu.Lock()
	b.output = fn
	b.stateMu.Unlock()
}

// Write implements Channel
func (b *Buffer) Write(p []byte) (int, error) {
	b.stateMu.Lock()
	fn := b.output
	if fn == nil {
		b.written = append(b.written, p...)
	}
	b.stateMu.Unlock()
	if fn != nil {
		fn(append([]byte(nil), p...))
	}
	return len(p), nil
}

// Written returns and clears accumulated output
func (b *Buffer) Written() []byte {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	out := b.written
	b.written = nil
	return out
}
