// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SimConfig shapes the simulated network
type SimConfig struct {
	JoinDelay     time.Duration // time from Join to OnJoinFinished
	JoinFailures  int           // number of initial join attempts that fail
	Airtime       time.Duration // time from send to OnTransmitFinished
	MaxPayload    int           // bytes allowed at the current data rate
	Confirmed     bool          // network answers uplinks with ACK/NAK
	NakRate       float64       // probability of a NAK once AckScript is used up
	AckScript     []bool        // explicit ACK results consumed in order
	DownlinkEvery int           // deliver a downlink after every Nth uplink, 0 disables
	Seed          int64
}

func (c *SimConfig) setDefaults() {
	if c.JoinDelay <= 0 {
		c.JoinDelay = 2 * time.Second
	}
	if c.Airtime <= 0 {
		c.Airtime = 400 * time.Millisecond
	}
	if c.MaxPayload <= 0 {
		c.MaxPayload = 51
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// Sim is an in-process network and radio. It is used by the CLI when no
// modem is attached and as the far end of the netsim WebSocket server.
type Sim struct {
	cfg   SimConfig
	log   logrus.FieldLogger
	start time.Time

	mu       sync.Mutex
	listener Listener
	session  Session
	rng      *rand.Rand
	joins    int
	inFlight bool
	uplinks  int
	timers   []*time.Timer
	closed   bool
}

// NewSim creates a simulated transport
func NewSim(cfg SimConfig, log logrus.FieldLogger) *Sim {
	cfg.setDefaults()
	return &Sim{
		cfg:   cfg,
		log:   log.WithField("tag", "SIM"),
		start: time.Now(),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
}

// SetListener implements Transport
func (s *Sim) SetListener(l Listener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

// Join implements Transport. The outcome is delivered after JoinDelay.
func (s *Sim) Join(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = Session{}
	s.after(s.cfg.JoinDelay, s.finishJoin)
	return nil
}

func (s *Sim) finishJoin() {
	s.mu.Lock()
	s.joins++
	ok := s.joins > s.cfg.JoinFailures
	if ok {
		s.session.Joined = true
		s.rng.Read(s.session.NwkSKey[:])
		s.rng.Read(s.session.AppSKey[:])
		s.session.DevAddr = 0x26000000 | s.rng.Uint32()&0x01FFFFFF
	}
	l := s.listener
	if s.closed {
		l = nil
	}
	s.mu.Unlock()

	s.log.WithField("ok", ok).Debug("join finished")
	if l != nil {
		l.OnJoinFinished(ok)
	}
}

// Joined implements Transport
func (s *Sim) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Joined
}

// Session implements Transport
func (s *Sim) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// SendManaged implements Transport
func (s *Sim) SendManaged(data []byte, retries uint8) SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !s.session.Joined, s.inFlight:
		return Busy
	case len(data) > s.cfg.MaxPayload:
		return RejectedTooLarge
	}

	s.inFlight = true
	s.log.WithFields(logrus.Fields{"bytes": len(data), "retries": retries}).Debug("uplink queued")
	s.after(s.cfg.Airtime, s.finishUplink)
	return Accepted
}

func (s *Sim) finishUplink() {
	s.mu.Lock()
	s.inFlight = false
	s.uplinks++
	acked := true
	if s.cfg.Confirmed {
		acked = s.nextAck()
	}
	var dl *Downlink
	if s.cfg.DownlinkEvery > 0 && s.uplinks%s.cfg.DownlinkEvery == 0 {
		dl = &Downlink{
			Data: []byte{0x01, byte(s.uplinks)},
			RSSI: int16(-60 - s.rng.Intn(60)),
			SNR:  int8(s.rng.Intn(20) - 5),
			Port: 2,
		}
	}
	l := s.listener
	closed := s.closed
	s.mu.Unlock()

	if l == nil || closed {
		return
	}
	if dl != nil {
		l.OnDataReceived(*dl)
	}
	l.OnTransmitFinished(acked)
}

// nextAck must be called with mu held
func (s *Sim) nextAck() bool {
	if len(s.cfg.AckScript) > 0 {
		ack := s.cfg.AckScript[0]
		s.cfg.AckScript = s.cfg.AckScript[1:]
		return ack
	}
	return s.rng.Float64() >= s.cfg.NakRate
}

// SendP2P implements Transport
func (s *Sim) SendP2P(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.WithField("bytes", len(data)).Debug("p2p frame sent")
	s.after(s.cfg.Airtime, func() {
		s.mu.Lock()
		l := s.listener
		closed := s.closed
		s.mu.Unlock()
		if l != nil && !closed {
			l.OnTransmitFinished(true)
		}
	})
}

// Uptime returns how long the simulated radio has been running
func (s *Sim) Uptime() time.Duration {
	return time.Since(s.start)
}

// Close implements Transport and stops pending deliveries
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	return nil
}

// after must be called with mu held
func (s *Sim) after(d time.Duration, fn func()) {
	if s.closed {
		return
	}
	s.timers = append(s.timers, time.AfterFunc(d, fn))
	// Keep the slice from growing without bound on long runs
	if len(s.timers) > 64 {
		s.timers = s.timers[len(s.timers)-16:]
	}
}
