// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package event

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestQueue_SetTestClear(t *testing.T) {
	q := New()
	if q.Pending() != 0 {
		t.Fatalf("new queue pending = %v", q.Pending())
	}

	q.Set(Status)
	q.Set(JoinFinished)
	if !q.Test(Status) || !q.Test(JoinFinished) {
		t.Fatalf("flags not set: %v", q.Pending())
	}
	if q.Test(DataReceived) {
		t.Error("DataReceived reported without being set")
	}

	q.Clear(Status)
	if q.Test(Status) {
		t.Error("Status still set after Clear")
	}
	if !q.Test(JoinFinished) {
		t.Error("Clear(Status) dropped JoinFinished")
	}
}

func TestQueue_ClearOnlyMask(t *testing.T) {
	q := New()
	all := Status | InboundBytes | JoinFinished | DataReceived | TransmitFinished
	for _, f := range []Flag{Status, InboundBytes, JoinFinished, DataReceived, TransmitFinished} {
		q.Set(f)
	}

	q.Clear(JoinFinished | TransmitFinished)
	if got, want := q.Pending(), all&^(JoinFinished|TransmitFinished); got != want {
		t.Errorf("Pending() = %v, want %v", got, want)
	}
}

func TestQueue_Coalescing(t *testing.T) {
	q := New()
	for i := 0; i < 5; i++ {
		q.Set(DataReceived)
	}

	observed := 0
	for i := 0; i < 5; i++ {
		if q.Test(DataReceived) {
			q.Clear(DataReceived)
			observed++
		}
	}
	if observed != 1 {
		t.Errorf("observed %d occurrences, want 1", observed)
	}
}

func TestQueue_WaitWakesOnSet(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Set(TransmitFinished)
	}()

	f, err := q.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if f&TransmitFinished == 0 {
		t.Errorf("Wait returned %v", f)
	}
}

func TestQueue_WaitReturnsImmediatelyWhenPending(t *testing.T) {
	q := New()
	q.Set(Status)
	// Drain the wake-up edge so Wait has to rely on the word itself
	<-q.wakeup

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestQueue_WaitCancelled(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Wait(ctx); err != context.Canceled {
		t.Errorf("Wait err = %v, want context.Canceled", err)
	}
}

func TestQueue_ConcurrentSetClear(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				q.Set(DataReceived)
			}
		}()
	}

	// The consumer only ever clears its own bit, so Status must survive
	q.Set(Status)
	for j := 0; j < 1000; j++ {
		if q.Test(DataReceived) {
			q.Clear(DataReceived)
		}
	}
	wg.Wait()

	if !q.Test(Status) {
		t.Error("Status lost while another bit was cleared concurrently")
	}
}

func TestFlag_String(t *testing.T) {
	tests := []struct {
		flag Flag
		want string
	}{
		{0, "NONE"},
		{Status, "STATUS"},
		{JoinFinished | TransmitFinished, "JOIN_FINISHED|TRANSMIT_FINISHED"},
		{1 << 20, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.flag.String(); got != tt.want {
			t.Errorf("Flag(%d).String() = %q, want %q", uint32(tt.flag), got, tt.want)
		}
	}
}
