// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type recorder struct {
	joins     chan bool
	downlinks chan Downlink
	txDone    chan bool
}

func newRecorder() *recorder {
	return &recorder{
		joins:     make(chan bool, 8),
		downlinks: make(chan Downlink, 8),
		txDone:    make(chan bool, 8),
	}
}

func (r *recorder) OnJoinFinished(ok bool)        { r.joins <- ok }
func (r *recorder) OnDataReceived(dl Downlink)    { r.downlinks <- dl }
func (r *recorder) OnTransmitFinished(acked bool) { r.txDone <- acked }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func waitBool(t *testing.T, ch <-chan bool, what string) bool {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return false
	}
}

func fastSim(cfg SimConfig) SimConfig {
	cfg.JoinDelay = 5 * time.Millisecond
	cfg.Airtime = 5 * time.Millisecond
	cfg.Seed = 1
	return cfg
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"lorawan", ModeManaged, false},
		{"LoRaWAN", ModeManaged, false},
		{"managed", ModeManaged, false},
		{" p2p ", ModeP2P, false},
		{"zigbee", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSim_BusyUntilJoined(t *testing.T) {
	sim := NewSim(fastSim(SimConfig{}), quietLogger())
	defer sim.Close()
	rec := newRecorder()
	sim.SetListener(rec)

	if got := sim.SendManaged([]byte{1}, 2); got != Busy {
		t.Fatalf("SendManaged before join = %v, want busy", got)
	}

	if err := sim.Join(context.Background()); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !waitBool(t, rec.joins, "join") {
		t.Fatal("join reported failure")
	}
	if !sim.Joined() {
		t.Fatal("Joined() = false after successful join")
	}
	if s := sim.Session(); s.DevAddr>>25 != 0x13 {
		t.Errorf("DevAddr = %08X, want 0x26/0x27 prefix", s.DevAddr)
	}

	if got := sim.SendManaged([]byte{1}, 2); got != Accepted {
		t.Fatalf("SendManaged after join = %v, want accepted", got)
	}
	if got := sim.SendManaged([]byte{1}, 2); got != Busy {
		t.Errorf("second SendManaged while in flight = %v, want busy", got)
	}
	if !waitBool(t, rec.txDone, "tx finished") {
		t.Error("unconfirmed uplink reported NAK")
	}
}

func TestSim_JoinFailures(t *testing.T) {
	sim := NewSim(fastSim(SimConfig{JoinFailures: 1}), quietLogger())
	defer sim.Close()
	rec := newRecorder()
	sim.SetListener(rec)

	_ = sim.Join(context.Background())
	if waitBool(t, rec.joins, "first join") {
		t.Fatal("first join succeeded, want failure")
	}
	if sim.Joined() {
		t.Fatal("Joined() = true after failed join")
	}
	_ = sim.Join(context.Background())
	if !waitBool(t, rec.joins, "second join") {
		t.Fatal("second join failed")
	}
}

func TestSim_RejectsOversizedPayload(t *testing.T) {
	sim := NewSim(fastSim(SimConfig{MaxPayload: 4}), quietLogger())
	defer sim.Close()
	rec := newRecorder()
	sim.SetListener(rec)
	_ = sim.Join(context.Background())
	waitBool(t, rec.joins, "join")

	if got := sim.SendManaged(make([]byte, 5), 2); got != RejectedTooLarge {
		t.Errorf("SendManaged(5 bytes) = %v, want rejected_too_large", got)
	}
}

func TestSim_AckScript(t *testing.T) {
	script := []bool{false, false, true}
	sim := NewSim(fastSim(SimConfig{Confirmed: true, AckScript: script}), quietLogger())
	defer sim.Close()
	rec := newRecorder()
	sim.SetListener(rec)
	_ = sim.Join(context.Background())
	waitBool(t, rec.joins, "join")

	for i, want := range script {
		if got := sim.SendManaged([]byte{byte(i)}, 2); got != Accepted {
			t.Fatalf("uplink %d: SendManaged = %v", i, got)
		}
		if got := waitBool(t, rec.txDone, "tx finished"); got != want {
			t.Errorf("uplink %d: acked = %v, want %v", i, got, want)
		}
	}
}

func TestSim_DownlinkBeforeTxFinished(t *testing.T) {
	sim := NewSim(fastSim(SimConfig{DownlinkEvery: 1}), quietLogger())
	defer sim.Close()
	rec := newRecorder()
	sim.SetListener(rec)
	_ = sim.Join(context.Background())
	waitBool(t, rec.joins, "join")

	sim.SendManaged([]byte{1}, 2)
	waitBool(t, rec.txDone, "tx finished")
	select {
	case dl := <-rec.downlinks:
		if dl.Port != 2 || len(dl.Data) != 2 {
			t.Errorf("downlink = %+v", dl)
		}
	default:
		t.Fatal("downlink was not delivered before tx finished")
	}
}

func TestSim_P2PAlwaysCompletes(t *testing.T) {
	sim := NewSim(fastSim(SimConfig{}), quietLogger())
	defer sim.Close()
	rec := newRecorder()
	sim.SetListener(rec)

	sim.SendP2P([]byte{0x01, 0x74, 0x01, 0x72})
	if !waitBool(t, rec.txDone, "p2p tx finished") {
		t.Error("p2p tx finished reported false")
	}
}

type countingListener struct {
	events atomic.Int32
}

func (c *countingListener) OnJoinFinished(bool)     { c.events.Add(1) }
func (c *countingListener) OnDataReceived(Downlink) { c.events.Add(1) }
func (c *countingListener) OnTransmitFinished(bool) { c.events.Add(1) }

func TestSim_NothingDeliveredAfterClose(t *testing.T) {
	cfg := fastSim(SimConfig{})
	cfg.JoinDelay = 100 * time.Millisecond
	cfg.Airtime = 100 * time.Millisecond
	sim := NewSim(cfg, quietLogger())
	l := &countingListener{}
	sim.SetListener(l)

	if err := sim.Join(context.Background()); err != nil {
		t.Fatalf("Join: %v", err)
	}
	// Enough pending frames that older timers fall out of the tracked set
	for i := 0; i < 80; i++ {
		sim.SendP2P([]byte{0x01})
	}
	sim.Close()

	time.Sleep(300 * time.Millisecond)
	if got := l.events.Load(); got != 0 {
		t.Errorf("%d events delivered after Close", got)
	}
}

// startBridge connects a Modem to a Sim served by ServeModem over an
// in-memory pipe.
func startBridge(t *testing.T, cfg SimConfig) (*Modem, *recorder) {
	t.Helper()
	nodeEnd, modemEnd := net.Pipe()
	sim := NewSim(fastSim(cfg), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ServeModem(ctx, modemEnd, sim, quietLogger()) }()

	modem := NewModem(nodeEnd, 0x0011223344556677, quietLogger())
	rec := newRecorder()
	modem.SetListener(rec)

	t.Cleanup(func() {
		modem.Close()
		cancel()
		<-served
		sim.Close()
	})
	return modem, rec
}

func TestModem_JoinOverBridge(t *testing.T) {
	modem, rec := startBridge(t, SimConfig{})

	if got := modem.SendManaged([]byte{1}, 2); got != Busy {
		t.Fatalf("SendManaged before join = %v, want busy", got)
	}
	if err := modem.Join(context.Background()); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !waitBool(t, rec.joins, "join") {
		t.Fatal("join failed")
	}
	s := modem.Session()
	if !s.Joined || s.DevAddr == 0 {
		t.Errorf("session = %+v, want joined with address", s)
	}
	if s.NwkSKey == ([SessionKeySize]byte{}) {
		t.Error("NwkSKey not carried across the link")
	}
}

func TestModem_ConfirmedUplinkOverBridge(t *testing.T) {
	modem, rec := startBridge(t, SimConfig{Confirmed: true, AckScript: []bool{false, true}, DownlinkEvery: 2})
	_ = modem.Join(context.Background())
	waitBool(t, rec.joins, "join")

	if got := modem.SendManaged([]byte{0x01, 0x74, 0x01, 0x72}, 2); got != Accepted {
		t.Fatalf("first SendManaged = %v", got)
	}
	if waitBool(t, rec.txDone, "first tx") {
		t.Error("first uplink acked, want NAK")
	}

	if got := modem.SendManaged([]byte{0x01, 0x74, 0x01, 0x72}, 2); got != Accepted {
		t.Fatalf("second SendManaged = %v", got)
	}
	select {
	case dl := <-rec.downlinks:
		if dl.Port != 2 || dl.RSSI >= 0 {
			t.Errorf("downlink = %+v", dl)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for downlink")
	}
	if !waitBool(t, rec.txDone, "second tx") {
		t.Error("second uplink NAK, want ACK")
	}
}

func TestModem_PayloadTooLargeOverBridge(t *testing.T) {
	modem, rec := startBridge(t, SimConfig{MaxPayload: 11})
	_ = modem.Join(context.Background())
	waitBool(t, rec.joins, "join")

	if got := modem.SendManaged(make([]byte, 12), 2); got != RejectedTooLarge {
		t.Errorf("SendManaged(12 bytes) = %v, want rejected_too_large", got)
	}
}

func TestModem_Ping(t *testing.T) {
	modem, _ := startBridge(t, SimConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := modem.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestModem_TimeoutIsBusy(t *testing.T) {
	nodeEnd, farEnd := net.Pipe()
	defer farEnd.Close()
	// Swallow everything without answering
	go io.Copy(io.Discard, farEnd)

	modem := NewModem(nodeEnd, 1, quietLogger())
	defer modem.Close()

	start := time.Now()
	if got := modem.SendManaged([]byte{1}, 2); got != Busy {
		t.Errorf("SendManaged without answer = %v, want busy", got)
	}
	if elapsed := time.Since(start); elapsed < SendResultTimeout {
		t.Errorf("returned after %v, want at least %v", elapsed, SendResultTimeout)
	}
}

func TestModem_ClosedLink(t *testing.T) {
	nodeEnd, farEnd := net.Pipe()
	modem := NewModem(nodeEnd, 1, quietLogger())
	farEnd.Close()

	select {
	case <-modem.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after peer hung up")
	}
	if err := modem.Join(context.Background()); err != ErrLinkClosed {
		t.Errorf("Join on closed link = %v, want ErrLinkClosed", err)
	}
	modem.Close()
}
