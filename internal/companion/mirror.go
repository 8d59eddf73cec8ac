// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package companion

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Target is where mirrored log lines go
type Target interface {
	io.Writer
	Connected() bool
}

// MirrorHook copies every log message to the companion channel while it is
// connected. Lines are queued and written by a separate goroutine; when the
// queue is full they are dropped.
type MirrorHook struct {
	target  Target
	lines   chan []byte
	dropped atomic.Uint64
	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
}

// NewMirrorHook starts the writer goroutine. Call Close to stop it.
func NewMirrorHook(target Target) *MirrorHook {
	h := &MirrorHook{
		target: target,
		lines:  make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go h.run()
	return h
}

// Levels implements logrus.Hook
func (h *MirrorHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook. Only the message is mirrored, without
// timestamp or fields.
func (h *MirrorHook) Fire(entry *logrus.Entry) error {
	if !h.target.Connected() {
		return nil
	}
	line := []byte(entry.Message + "\n")
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil
	}
	select {
	case h.lines <- line:
	default:
		h.dropped.Add(1)
	}
	return nil
}

func (h *MirrorHook) run() {
	defer close(h.done)
	for line := range h.lines {
		_, _ = h.target.Write(line)
	}
}

// Dropped counts lines lost to a full queue
func (h *MirrorHook) Dropped() uint64 {
	return h.dropped.Load()
}

// Close flushes queued lines and stops the writer. Later entries are ignored.
func (h *MirrorHook) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.lines)
	}
	h.mu.Unlock()
	<-h.done
}
