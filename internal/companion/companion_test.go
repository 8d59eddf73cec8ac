// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package companion

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestBuffer_PushAndRead(t *testing.T) {
	b := NewBuffer()
	var notified atomic.Int32
	b.SetNotify(func() { notified.Add(1) })

	b.Push([]byte("AT"))
	b.Push(nil)
	if got := notified.Load(); got != 1 {
		t.Errorf("notify called %d times, want 1", got)
	}
	if got := b.Available(); got != 2 {
		t.Fatalf("Available() = %d, want 2", got)
	}
	for _, want := range []byte("AT") {
		c, err := b.ReadByte()
		if err != nil || c != want {
			t.Fatalf("ReadByte() = %q, %v, want %q", c, err, want)
		}
	}
	if _, err := b.ReadByte(); !errors.Is(err, ErrEmpty) {
		t.Errorf("ReadByte on empty = %v, want ErrEmpty", err)
	}
}

func TestBuffer_Output(t *testing.T) {
	b := NewBuffer()
	b.Write([]byte("hello\n"))
	if got := string(b.Written()); got != "hello\n" {
		t.Errorf("Written() = %q", got)
	}
	if got := b.Written(); len(got) != 0 {
		t.Errorf("second Written() = %q, want empty", got)
	}

	var seen []byte
	b.OnOutput(func(p []byte) { seen = append(seen, p...) })
	b.Write([]byte("x"))
	if string(seen) != "x" {
		t.Errorf("output callback saw %q", seen)
	}
}

func TestLineInterpreter(t *testing.T) {
	var lines []string
	li := &LineInterpreter{Handle: func(l string) { lines = append(lines, l) }}
	for _, b := range []byte("AT+VER=?\r\n\nATR\n") {
		li.Feed(b)
	}
	li.Feed('X')

	want := []string{"AT+VER=?", "ATR"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
	if li.Pending() != "X" {
		t.Errorf("Pending() = %q, want X", li.Pending())
	}
}

func TestLineInterpreter_Overflow(t *testing.T) {
	var got string
	li := &LineInterpreter{Handle: func(l string) { got = l }}
	for i := 0; i < MaxLineLength+10; i++ {
		li.Feed('a')
	}
	li.Feed('\n')
	if len(got) != MaxLineLength {
		t.Errorf("line length = %d, want %d", len(got), MaxLineLength)
	}
}

func TestMirrorHook(t *testing.T) {
	b := NewBuffer()
	hook := NewMirrorHook(b)

	log := logrus.New()
	log.SetOutput(io.Discard)
	log.AddHook(hook)

	log.WithField("tag", "APP").Info("Timer wakeup")
	b.SetConnected(false)
	log.Info("not mirrored")
	hook.Close()
	log.Info("after close")

	got := string(b.Written())
	if got != "Timer wakeup\n" {
		t.Errorf("mirrored %q, want %q", got, "Timer wakeup\n")
	}
}

func TestWaitReady_SucceedsAfterRetries(t *testing.T) {
	attempts := 0
	var toggles []bool
	err := waitReady(context.Background(), time.Second, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("no such file")
		}
		return nil
	}, func(on bool) { toggles = append(toggles, on) })
	if err != nil {
		t.Fatalf("waitReady: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	want := []bool{true, false, false}
	if len(toggles) != len(want) {
		t.Fatalf("toggles = %v, want %v", toggles, want)
	}
	for i := range want {
		if toggles[i] != want[i] {
			t.Errorf("toggles = %v, want %v", toggles, want)
			break
		}
	}
}

func TestWaitReady_Timeout(t *testing.T) {
	start := time.Now()
	err := waitReady(context.Background(), 30*time.Millisecond, 5*time.Millisecond, func() error {
		return errors.New("busy")
	}, nil)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if !strings.Contains(err.Error(), "busy") {
		t.Errorf("error %q does not carry the last failure", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("gave up before the timeout")
	}
}

func TestWaitReady_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := waitReady(ctx, time.Second, 10*time.Millisecond, func() error {
		return errors.New("busy")
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// stuckTarget blocks every Write until release is closed
type stuckTarget struct {
	release chan struct{}
}

func (s *stuckTarget) Write(p []byte) (int, error) {
	<-s.release
	return len(p), nil
}

func (s *stuckTarget) Connected() bool { return true }

func TestMirrorHook_DropsWhenQueueFull(t *testing.T) {
	target := &stuckTarget{release: make(chan struct{})}
	hook := NewMirrorHook(target)

	log := logrus.New()
	log.SetOutput(io.Discard)
	log.AddHook(hook)

	// 64 queued plus at most one held by the writer
	for i := 0; i < 70; i++ {
		log.Info("line")
	}
	if got := hook.Dropped(); got < 5 || got > 6 {
		t.Errorf("Dropped() = %d, want 5 or 6", got)
	}

	close(target.release)
	hook.Close()
}
