// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package companion

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

// Startup readiness wait: the port may take a while to enumerate (USB CDC)
const (
	ReadyTimeout = 5 * time.Second
	ReadyPoll    = 100 * time.Millisecond
)

// ErrNotReady is returned when the port did not appear within ReadyTimeout
var ErrNotReady = errors.New("companion: serial port not ready")

// Serial is a Channel over a UART
type Serial struct {
	inbox

	port      serial.Port
	connected atomic.Bool
	done      chan struct{}
}

// OpenSerial opens the companion UART, retrying every ReadyPoll for up to
// ReadyTimeout. status is toggled on each attempt and driven false at the
// end, like a blinking activity LED; it may be nil.
func OpenSerial(ctx context.Context, portName string, baudRate int, status func(on bool)) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	var port serial.Port
	err := waitReady(ctx, ReadyTimeout, ReadyPoll, func() error {
		p, err := serial.Open(portName, mode)
		if err != nil {
			return err
		}
		port = p
		return nil
	}, status)
	if err != nil {
		return nil, fmt.Errorf("companion port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(ReadyPoll); err != nil {
		port.Close()
		return nil, fmt.Errorf("companion port %s: %w", portName, err)
	}

	s := &Serial{port: port, done: make(chan struct{})}
	s.connected.Store(true)
	go s.readLoop()
	return s, nil
}

// waitReady calls try until it succeeds, the timeout passes or ctx ends
func waitReady(ctx context.Context, timeout, poll time.Duration, try func() error, status func(on bool)) error {
	led := false
	toggle := func(on bool) {
		if status != nil {
			status(on)
		}
	}
	defer toggle(false)

	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		if lastErr = try(); lastErr == nil {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w after %v: %v", ErrNotReady, timeout, lastErr)
		}
		led = !led
		toggle(led)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

func (s *Serial) readLoop() {
	defer close(s.done)
	defer s.connected.Store(false)

	buf := make([]byte, 128)
	for {
		n, err := s.port.Read(buf)
		if err != nil {
			return
		}
		// n == 0 is a read timeout
		if n > 0 {
			s.push(append([]byte(nil), buf[:n]...))
		}
	}
}

// Connected implements Channel
func (s *Serial) Connected() bool {
	return s.connected.Load()
}

// Write implements Channel
func (s *Serial) Write(p []byte) (int, error) {
	if !s.connected.Load() {
		return 0, errors.New("companion: port closed")
	}
	return s.port.Write(p)
}

// Close releases the port and waits for the reader to stop
func (s *Serial) Close() error {
	err := s.port.Close()
	<-s.done
	return err
}
