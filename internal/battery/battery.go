// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package battery provides battery voltage samplers in millivolts.
package battery

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sampler reads one battery voltage sample in millivolts
type Sampler interface {
	Read() (uint16, error)
}

// ErrNoReading is returned when a source exists but has no usable value
var ErrNoReading = errors.New("battery: no reading")

// Fixed always returns the same voltage
type Fixed uint16

// Read implements Sampler
func (f Fixed) Read() (uint16, error) {
	return uint16(f), nil
}

// Discharge simulates a cell draining over time: a linear fall from Full to
// Empty over Duration, plus uniform noise of +/- Noise millivolts.
type Discharge struct {
	Full     uint16
	Empty    uint16
	Duration time.Duration
	Noise    uint16

	mu    sync.Mutex
	start time.Time
	rng   *rand.Rand
	now   func() time.Time
}

// NewDischarge creates a discharge curve starting now. Zero fields take
// Li-ion defaults: 4200 mV full, 3300 mV empty over 24h, 15 mV noise.
func NewDischarge(full, empty uint16, duration time.Duration, noise uint16) *Discharge {
	if full == 0 {
		full = 4200
	}
	if empty == 0 || empty > full {
		empty = 3300
	}
	if duration <= 0 {
		duration = 24 * time.Hour
	}
	return &Discharge{
		Full:     full,
		Empty:    empty,
		Duration: duration,
		Noise:    noise,
		start:    time.Now(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// Read implements Sampler
func (d *Discharge) Read() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	frac := float64(d.now().Sub(d.start)) / float64(d.Duration)
	frac = math.Min(math.Max(frac, 0), 1)
	mv := float64(d.Full) - frac*float64(d.Full-d.Empty)
	if d.Noise > 0 {
		mv += float64(d.rng.Intn(2*int(d.Noise)+1) - int(d.Noise))
	}
	return uint16(math.Round(math.Max(mv, 0))), nil
}

// Sysfs reads a Linux power-supply class device
// (/sys/class/power_supply/<name>/voltage_now, microvolts)
type Sysfs struct {
	path string
}

// DefaultSysfsRoot is where power-supply devices are published
const DefaultSysfsRoot = "/sys/class/power_supply"

// NewSysfs opens the named supply under root (DefaultSysfsRoot when empty)
func NewSysfs(root, name string) (*Sysfs, error) {
	if root == "" {
		root = DefaultSysfsRoot
	}
	path := filepath.Join(root, name, "voltage_now")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("battery supply %q: %w", name, err)
	}
	return &Sysfs{path: path}, nil
}

// Read implements Sampler
func (s *Sysfs) Read() (uint16, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.path, err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return 0, ErrNoReading
	}
	uv, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if uv < 0 {
		return 0, fmt.Errorf("%w: negative voltage %d uV", ErrNoReading, uv)
	}
	mv := uv / 1000
	if mv > math.MaxUint16 {
		mv = math.MaxUint16
	}
	return uint16(mv), nil
}

// Open builds a sampler from a source description:
//
//	"fixed:3700"             constant 3700 mV
//	"discharge"              simulated Li-ion discharge
//	"discharge:4200:3300:24h"
//	"sysfs:BAT0"             Linux power-supply class device
func Open(source string) (Sampler, error) {
	kind, arg, _ := strings.Cut(strings.TrimSpace(source), ":")
	switch kind {
	case "fixed":
		mv, err := strconv.ParseUint(arg, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("fixed battery voltage %q: %w", arg, err)
		}
		return Fixed(mv), nil

	case "discharge", "":
		var full, empty uint64
		var duration time.Duration
		if arg != "" {
			parts := strings.Split(arg, ":")
			if len(parts) != 3 {
				return nil, fmt.Errorf("discharge wants full:empty:duration, got %q", arg)
			}
			var err error
			if full, err = strconv.ParseUint(parts[0], 10, 16); err != nil {
				return nil, fmt.Errorf("discharge full voltage: %w", err)
			}
			if empty, err = strconv.ParseUint(parts[1], 10, 16); err != nil {
				return nil, fmt.Errorf("discharge empty voltage: %w", err)
			}
			if duration, err = time.ParseDuration(parts[2]); err != nil {
				return nil, fmt.Errorf("discharge duration: %w", err)
			}
		}
		return NewDischarge(uint16(full), uint16(empty), duration, 15), nil

	case "sysfs":
		if arg == "" {
			return nil, errors.New("sysfs battery source needs a supply name, e.g. sysfs:BAT0")
		}
		return NewSysfs("", arg)

	default:
		return nil, fmt.Errorf("unknown battery source %q", source)
	}
}
