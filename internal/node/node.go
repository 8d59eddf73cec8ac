// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package node is the battery sensor node's application loop.
//
// A single goroutine (Run) waits on the event queue and calls the timer,
// companion and radio handlers in that order. Everything else, including the
// radio transport and the companion reader, only sets flags and fills the
// mailbox below.
package node

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/battnode/internal/battery"
	"github.com/Thermoquad/battnode/internal/companion"
	"github.com/Thermoquad/battnode/internal/event"
	"github.com/Thermoquad/battnode/internal/gpio"
	"github.com/Thermoquad/battnode/internal/radio"
	"github.com/Thermoquad/battnode/pkg/lpp"
)

// Fixed node behaviour
const (
	FailureThreshold = 10                     // consecutive NAKs before reset
	ResetDelay       = 100 * time.Millisecond // pause before the reset fires
	PacingDelay      = 5 * time.Millisecond   // per companion byte
	DefaultSamples   = 10
	DefaultChannel   = 1 // LPP_CHANNEL_BATT
	DefaultRetries   = 2
	DefaultInterval  = time.Minute
)

// ErrReset is returned by Run after the reset trigger fired. The node is
// finished; build a new one to start over.
var ErrReset = errors.New("node: reset after repeated transmit failures")

// Resetter performs the system reset
type Resetter interface {
	ResetProcess()
}

// ResetFunc adapts a function to Resetter
type ResetFunc func()

// ResetProcess implements Resetter
func (f ResetFunc) ResetProcess() { f() }

// Options wires a node to its collaborators
type Options struct {
	Name      string
	Radio     radio.Config
	Transport radio.Transport
	Battery   battery.Sampler

	// Optional
	EnablePin   gpio.OutputPin        // peripheral power, high during a cycle
	Companion   companion.Channel     // nil disables the companion handler
	Interpreter companion.Interpreter // defaults to a LineInterpreter that logs lines
	Resetter    Resetter

	Interval       time.Duration
	Samples        int
	BatteryChannel uint8
	Retries        uint8
	PayloadSize    int

	Log logrus.FieldLogger
}

// Node is the application state. Fields below the mailbox mutex are owned by
// the dispatch goroutine.
type Node struct {
	radioCfg  radio.Config
	transport radio.Transport
	battery   battery.Sampler
	enable    gpio.OutputPin
	companion companion.Channel
	interp    companion.Interpreter
	resetter  Resetter

	interval       time.Duration
	samples        int
	batteryChannel uint8
	retries        uint8

	events  *event.Queue
	payload *lpp.Encoder
	stats   *Stats

	appLog  logrus.FieldLogger
	atLog   logrus.FieldLogger
	loraLog logrus.FieldLogger

	// mailbox, written by transport callbacks
	mu       sync.Mutex
	joinOK   bool
	downlink radio.Downlink
	acked    bool

	failures   uint
	resetFired bool
	running    bool

	sleep func(time.Duration)
}

// New validates opts, fills defaults and registers the node as the
// transport's listener.
func New(opts Options) (*Node, error) {
	if opts.Transport == nil {
		return nil, errors.New("node: transport is required")
	}
	if opts.Battery == nil {
		return nil, errors.New("node: battery sampler is required")
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.EnablePin == nil {
		opts.EnablePin = &gpio.Nop{}
	}
	if opts.Resetter == nil {
		opts.Resetter = ResetFunc(func() {})
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Samples <= 0 {
		opts.Samples = DefaultSamples
	}
	if opts.BatteryChannel == 0 {
		opts.BatteryChannel = DefaultChannel
	}
	if opts.Retries == 0 {
		opts.Retries = DefaultRetries
	}
	if opts.PayloadSize <= 0 {
		opts.PayloadSize = lpp.DefaultSize
	}

	log := opts.Log
	if opts.Name != "" {
		log = log.WithField("node", opts.Name)
	}

	n := &Node{
		radioCfg:       opts.Radio,
		transport:      opts.Transport,
		battery:        opts.Battery,
		enable:         opts.EnablePin,
		companion:      opts.Companion,
		interp:         opts.Interpreter,
		resetter:       opts.Resetter,
		interval:       opts.Interval,
		samples:        opts.Samples,
		batteryChannel: opts.BatteryChannel,
		retries:        opts.Retries,
		events:         event.New(),
		payload:        lpp.NewEncoder(opts.PayloadSize),
		stats:          newStats(),
		appLog:         log.WithField("tag", "APP"),
		atLog:          log.WithField("tag", "AT"),
		loraLog:        log.WithField("tag", "LORA"),
		sleep:          time.Sleep,
	}

	if n.interp == nil {
		n.interp = &companion.LineInterpreter{Handle: func(line string) {
			n.atLog.WithField("line", line).Info("Command line received")
		}}
	}
	if n.companion != nil {
		n.companion.SetNotify(func() { n.events.Set(event.InboundBytes) })
		// Bytes left over from a previous node on the same channel
		if n.companion.Available() > 0 {
			n.events.Set(event.InboundBytes)
		}
	}
	n.transport.SetListener(n)
	return n, nil
}

// Run drives the node until ctx is done or the reset trigger fires. It
// returns ctx.Err() on shutdown and ErrReset after a reset.
func (n *Node) Run(ctx context.Context) error {
	n.mu.Lock()
	if n.resetFired {
		n.mu.Unlock()
		return ErrReset
	}
	if n.running {
		n.mu.Unlock()
		return errors.New("node: already running")
	}
	n.running = true
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
	}()

	n.appLog.Info("init_app")
	if err := n.enable.Low(); err != nil {
		n.appLog.WithError(err).Warn("Failed to drive enable line low")
	}

	if n.radioCfg.Mode == radio.ModeManaged {
		n.loraLog.Info("Starting network join")
		if err := n.transport.Join(ctx); err != nil {
			n.loraLog.WithError(err).Error("Join request failed")
		}
	}

	tickerCtx, stopTicker := context.WithCancel(ctx)
	defer stopTicker()
	go n.tick(tickerCtx)

	for {
		if _, err := n.events.Wait(ctx); err != nil {
			return err
		}
		if n.dispatch() {
			return ErrReset
		}
	}
}

func (n *Node) tick(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.events.Set(event.Status)
		}
	}
}

// dispatch runs one pass over the handlers and reports whether the node
// reset during it
func (n *Node) dispatch() bool {
	n.handleTimer()
	n.handleCompanion()
	n.handleRadio()
	return n.resetFired
}

// Trigger requests a sampling cycle now, as if the interval timer fired
func (n *Node) Trigger() {
	n.events.Set(event.Status)
}

// Stats returns a snapshot of the node counters
func (n *Node) Stats() Snapshot {
	return n.stats.Snapshot()
}

// OnJoinFinished implements radio.Listener
func (n *Node) OnJoinFinished(ok bool) {
	n.mu.Lock()
	n.joinOK = ok
	n.mu.Unlock()
	n.events.Set(event.JoinFinished)
}

// OnDataReceived implements radio.Listener
func (n *Node) OnDataReceived(dl radio.Downlink) {
	dl.Data = append([]byte(nil), dl.Data...)
	n.mu.Lock()
	n.downlink = dl
	n.mu.Unlock()
	n.events.Set(event.DataReceived)
}

// OnTransmitFinished implements radio.Listener
func (n *Node) OnTransmitFinished(acked bool) {
	n.mu.Lock()
	n.acked = acked
	n.mu.Unlock()
	n.events.Set(event.TransmitFinished)
}
