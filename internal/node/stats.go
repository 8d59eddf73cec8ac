// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/battnode/internal/radio"
)

// Stats counts what the node has done since it started
type Stats struct {
	mu sync.Mutex
	s  Snapshot
}

// Snapshot is a copy of the counters at one point in time
type Snapshot struct {
	StartTime time.Time

	Cycles       uint64
	SampleErrors uint64
	Skipped      uint64 // managed mode, not joined
	Accepted     uint64
	Busy         uint64
	TooLarge     uint64
	P2PSent      uint64
	TxFinished   uint64 // unconfirmed and p2p completions
	Acks         uint64
	Naks         uint64
	Failures     uint // current consecutive NAK count
	JoinsOK      uint64
	JoinsFailed  uint64
	Downlinks    uint64
	CompanionIn  uint64

	LastVolts    float64
	LastPayload  []byte
	LastDownlink radio.Downlink
	LastCycle    time.Time
}

func newStats() *Stats {
	return &Stats{s: Snapshot{StartTime: time.Now()}}
}

func (st *Stats) update(fn func(s *Snapshot)) {
	st.mu.Lock()
	fn(&st.s)
	st.mu.Unlock()
}

func (st *Stats) cycle() {
	st.update(func(s *Snapshot) {
		s.Cycles++
		s.LastCycle = time.Now()
	})
}

func (st *Stats) sampleError() { st.update(func(s *Snapshot) { s.SampleErrors++ }) }
func (st *Stats) skipped()     { st.update(func(s *Snapshot) { s.Skipped++ }) }
func (st *Stats) p2pSent()     { st.update(func(s *Snapshot) { s.P2PSent++ }) }
func (st *Stats) txFinished()  { st.update(func(s *Snapshot) { s.TxFinished++ }) }

func (st *Stats) sampled(volts float64, payload []byte) {
	st.update(func(s *Snapshot) {
		s.LastVolts = volts
		s.LastPayload = append(s.LastPayload[:0], payload...)
	})
}

func (st *Stats) sendResult(r radio.SendResult) {
	st.update(func(s *Snapshot) {
		switch r {
		case radio.Accepted:
			s.Accepted++
		case radio.Busy:
			s.Busy++
		case radio.RejectedTooLarge:
			s.TooLarge++
		}
	})
}

func (st *Stats) confirmed(acked bool) {
	st.update(func(s *Snapshot) {
		if acked {
			s.Acks++
		} else {
			s.Naks++
		}
	})
}

func (st *Stats) setFailures(f uint) { st.update(func(s *Snapshot) { s.Failures = f }) }

func (st *Stats) join(ok bool) {
	st.update(func(s *Snapshot) {
		if ok {
			s.JoinsOK++
		} else {
			s.JoinsFailed++
		}
	})
}

func (st *Stats) downlink(dl radio.Downlink) {
	st.update(func(s *Snapshot) {
		s.Downlinks++
		s.LastDownlink = dl
	})
}

func (st *Stats) companionBytes(count int) {
	st.update(func(s *Snapshot) { s.CompanionIn += uint64(count) })
}

// Snapshot copies the counters
func (st *Stats) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := st.s
	out.LastPayload = append([]byte(nil), st.s.LastPayload...)
	out.LastDownlink.Data = append([]byte(nil), st.s.LastDownlink.Data...)
	return out
}

// AckRate is the share of confirmed uplinks that were acknowledged, in percent
func (s Snapshot) AckRate() float64 {
	total := s.Acks + s.Naks
	if total == 0 {
		return 0
	}
	return float64(s.Acks) * 100 / float64(total)
}

// String returns a formatted statistics summary
func (s Snapshot) String() string {
	var b strings.Builder
	elapsed := time.Since(s.StartTime)

	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	fmt.Fprintf(&b, "Cycles:          %8d\n", s.Cycles)
	if s.SampleErrors > 0 {
		fmt.Fprintf(&b, "Sample Errors:   %8d\n", s.SampleErrors)
	}
	fmt.Fprintf(&b, "Last Voltage:    %8.2f V\n", s.LastVolts)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, "Skipped (join):  %8d\n", s.Skipped)
	}
	if s.Accepted+s.Busy+s.TooLarge > 0 {
		fmt.Fprintf(&b, "Enqueued:        %8d\n", s.Accepted)
		fmt.Fprintf(&b, "  Busy:             %5d\n", s.Busy)
		fmt.Fprintf(&b, "  Too Large:        %5d\n", s.TooLarge)
	}
	if s.P2PSent > 0 {
		fmt.Fprintf(&b, "P2P Sent:        %8d\n", s.P2PSent)
	}
	if s.Acks+s.Naks > 0 {
		fmt.Fprintf(&b, "ACK / NAK:       %4d / %-4d (%.1f%%)\n", s.Acks, s.Naks, s.AckRate())
		fmt.Fprintf(&b, "Failure Streak:  %8d\n", s.Failures)
	}
	fmt.Fprintf(&b, "Joins ok/failed: %4d / %-4d\n", s.JoinsOK, s.JoinsFailed)
	fmt.Fprintf(&b, "Downlinks:       %8d\n", s.Downlinks)
	if s.CompanionIn > 0 {
		fmt.Fprintf(&b, "Companion Bytes: %8d\n", s.CompanionIn)
	}
	b.WriteString("================================\n")
	return b.String()
}
