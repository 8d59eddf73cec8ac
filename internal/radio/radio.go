// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package radio defines the boundary between the node core and the radio
// stack, plus the transports that implement it.
//
// A Transport accepts uplinks synchronously with a tri-state result and later
// reports join completion, downlinks and transmit completion to its Listener.
// Listener methods may be called from any goroutine.
package radio

import (
	"context"
	"fmt"
	"strings"
)

// Mode selects how uplinks leave the node
type Mode int

const (
	// ModeManaged sends over a managed (LoRaWAN) network after joining
	ModeManaged Mode = iota
	// ModeP2P sends raw frames point to point, no join required
	ModeP2P
)

func (m Mode) String() string {
	switch m {
	case ModeManaged:
		return "lorawan"
	case ModeP2P:
		return "p2p"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "lorawan" (or "managed") and "p2p"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lorawan", "managed", "lpwan":
		return ModeManaged, nil
	case "p2p", "peer":
		return ModeP2P, nil
	default:
		return 0, fmt.Errorf("unknown radio mode %q (use lorawan or p2p)", s)
	}
}

// Config is the radio configuration as seen by the node core
type Config struct {
	Mode      Mode
	Confirmed bool // managed mode only: uplinks request an acknowledgment
}

// SendResult is the synchronous outcome of a managed uplink request
type SendResult int

const (
	Accepted SendResult = iota
	Busy
	RejectedTooLarge
)

func (r SendResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Busy:
		return "busy"
	case RejectedTooLarge:
		return "rejected_too_large"
	default:
		return fmt.Sprintf("SendResult(%d)", int(r))
	}
}

// SessionKeySize is the length of a LoRaWAN session key
const SessionKeySize = 16

// Session is the join state owned by the transport
type Session struct {
	Joined  bool
	NwkSKey [SessionKeySize]byte
	AppSKey [SessionKeySize]byte
	DevAddr uint32
}

// Downlink is one received frame
type Downlink struct {
	Data []byte
	RSSI int16
	SNR  int8
	Port uint8
}

// Listener receives asynchronous radio events
type Listener interface {
	OnJoinFinished(ok bool)
	OnDataReceived(dl Downlink)
	OnTransmitFinished(acked bool)
}

// Transport is the radio stack as consumed by the node
type Transport interface {
	// SetListener installs the event receiver. Call before Join or any send.
	SetListener(l Listener)
	// Join starts a network join. Completion is reported via OnJoinFinished.
	Join(ctx context.Context) error
	Joined() bool
	Session() Session
	// SendManaged enqueues a managed-network uplink. It never blocks on airtime.
	SendManaged(data []byte, retries uint8) SendResult
	// SendP2P transmits point to point, fire and forget.
	SendP2P(data []byte)
	Close() error
}
