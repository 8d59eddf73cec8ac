// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gpio drives the node's peripheral enable line.
package gpio

import (
	"fmt"
	"sync"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// OutputPin is a single digital output
type OutputPin interface {
	High() error
	Low() error
}

// Periph is an OutputPin on a host GPIO line resolved through periph.io
type Periph struct {
	name string
	pin  gpio.PinOut
}

var (
	hostOnce sync.Once
	hostErr  error
)

func initHost() error {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	return hostErr
}

// OpenPeriph initializes the host drivers once and claims the named pin
// (e.g. "GPIO17"). The pin starts low.
func OpenPeriph(name string) (*Periph, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("host.Init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	p := &Periph{name: name, pin: pin}
	if err := p.Low(); err != nil {
		return nil, err
	}
	return p, nil
}

// High implements OutputPin
func (p *Periph) High() error {
	if err := p.pin.Out(gpio.High); err != nil {
		return fmt.Errorf("%s high: %w", p.name, err)
	}
	return nil
}

// Low implements OutputPin
func (p *Periph) Low() error {
	if err := p.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("%s low: %w", p.name, err)
	}
	return nil
}

func (p *Periph) String() string {
	return p.name
}

// Nop is an OutputPin for hosts without a wired enable line. It remembers
// the last level so tests and the monitor can show it.
type Nop struct {
	mu    sync.Mutex
	level bool
	edges int
}

// High implements OutputPin
func (n *Nop) High() error {
	n.set(true)
	return nil
}

// Low implements OutputPin
func (n *Nop) Low() error {
	n.set(false)
	return nil
}

func (n *Nop) set(level bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.level != level {
		n.edges++
	}
	n.level = level
}

// Level reports the last driven level
func (n *Nop) Level() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.level
}

// Edges counts level changes since creation
func (n *Nop) Edges() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.edges
}

// Open returns a periph pin for name, or a Nop when name is empty or "none"
func Open(name string) (OutputPin, error) {
	if name == "" || name == "none" {
		return &Nop{}, nil
	}
	p, err := OpenPeriph(name)
	if err != nil {
		return nil, err
	}
	return p, nil
}
