// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lpp encodes sensor readings as Cayenne Low Power Payload.
//
// Each field is [channel, type, value...] with a big-endian fixed point value.
// The encoder appends into a bounded buffer that is truncated, not
// reallocated, by Reset.
package lpp

import (
	"errors"
	"fmt"
	"math"
)

// Field types
const (
	TypeDigitalInput  uint8 = 0
	TypeDigitalOutput uint8 = 1
	TypeAnalogInput   uint8 = 2
	TypeAnalogOutput  uint8 = 3
	TypeIlluminance   uint8 = 101
	TypePresence      uint8 = 102
	TypeTemperature   uint8 = 103
	TypeHumidity      uint8 = 104
	TypeBarometer     uint8 = 115
	TypeVoltage       uint8 = 116
	TypePercentage    uint8 = 120
)

// DefaultSize is the smallest LoRaWAN application payload (EU868 DR0)
const DefaultSize = 51

var (
	// ErrBufferFull is returned when a field does not fit the remaining capacity
	ErrBufferFull = errors.New("lpp: buffer full")
	// ErrOutOfRange is returned when a value cannot be represented by its type
	ErrOutOfRange = errors.New("lpp: value out of range")
)

type fieldSpec struct {
	size       int
	multiplier float64
	signed     bool
}

var specs = map[uint8]fieldSpec{
	TypeDigitalInput:  {size: 1, multiplier: 1},
	TypeDigitalOutput: {size: 1, multiplier: 1},
	TypeAnalogInput:   {size: 2, multiplier: 100, signed: true},
	TypeAnalogOutput:  {size: 2, multiplier: 100, signed: true},
	TypeIlluminance:   {size: 2, multiplier: 1},
	TypePresence:      {size: 1, multiplier: 1},
	TypeTemperature:   {size: 2, multiplier: 10, signed: true},
	TypeHumidity:      {size: 1, multiplier: 2},
	TypeBarometer:     {size: 2, multiplier: 10},
	TypeVoltage:       {size: 2, multiplier: 100},
	TypePercentage:    {size: 1, multiplier: 1},
}

// Encoder builds one payload
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with the given capacity in bytes
func NewEncoder(size int) *Encoder {
	if size <= 0 {
		size = DefaultSize
	}
	return &Encoder{buf: make([]byte, 0, size)}
}

// Reset empties the payload, keeping the allocated buffer
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the encoded payload. The slice is only valid until the next
// Reset or Add call.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Size returns the encoded payload length
func (e *Encoder) Size() int {
	return len(e.buf)
}

// Capacity returns the maximum payload length
func (e *Encoder) Capacity() int {
	return cap(e.buf)
}

// AddVoltage appends a voltage in volts (0.01 V resolution)
func (e *Encoder) AddVoltage(channel uint8, volts float64) error {
	return e.add(channel, TypeVoltage, volts)
}

// AddAnalogInput appends a signed analog value (0.01 resolution)
func (e *Encoder) AddAnalogInput(channel uint8, value float64) error {
	return e.add(channel, TypeAnalogInput, value)
}

// AddTemperature appends a temperature in °C (0.1 resolution)
func (e *Encoder) AddTemperature(channel uint8, celsius float64) error {
	return e.add(channel, TypeTemperature, celsius)
}

// AddRelativeHumidity appends a relative humidity in % (0.5 resolution)
func (e *Encoder) AddRelativeHumidity(channel uint8, percent float64) error {
	return e.add(channel, TypeHumidity, percent)
}

// AddPercentage appends an integer percentage such as battery level
func (e *Encoder) AddPercentage(channel uint8, percent uint8) error {
	return e.add(channel, TypePercentage, float64(percent))
}

// AddDigitalInput appends a single byte digital input
func (e *Encoder) AddDigitalInput(channel uint8, value uint8) error {
	return e.add(channel, TypeDigitalInput, float64(value))
}

func (e *Encoder) add(channel, typ uint8, value float64) error {
	spec := specs[typ]
	if len(e.buf)+2+spec.size > cap(e.buf) {
		return fmt.Errorf("%w: %d + %d > %d", ErrBufferFull, len(e.buf), 2+spec.size, cap(e.buf))
	}

	raw := math.Round(value * spec.multiplier)
	bits := uint(spec.size * 8)
	var lo, hi float64
	if spec.signed {
		lo, hi = -math.Exp2(float64(bits-1)), math.Exp2(float64(bits-1))-1
	} else {
		lo, hi = 0, math.Exp2(float64(bits))-1
	}
	if math.IsNaN(raw) || raw < lo || raw > hi {
		return fmt.Errorf("%w: %v for type %d", ErrOutOfRange, value, typ)
	}

	v := uint64(int64(raw))
	e.buf = append(e.buf, channel, typ)
	for i := spec.size - 1; i >= 0; i-- {
		e.buf = append(e.buf, byte(v>>(uint(i)*8)))
	}
	return nil
}
