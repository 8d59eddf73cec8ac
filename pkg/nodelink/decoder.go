// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nodelink

import (
	"fmt"
	"strings"
	"time"
)

// Decoder is the byte-at-a-time frame decoder state machine
type Decoder struct {
	state        int
	buffer       []byte
	bufferIndex  int
	escapeNext   bool
	addressBytes int
	packet       *Packet
	rawBuffer    []byte // raw bytes including framing, for diagnostics
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		buffer:    make([]byte, MaxPacketSize),
		rawBuffer: make([]byte, 0, MaxPacketSize*2),
	}
}

// Reset returns the decoder to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.bufferIndex = 0
	d.addressBytes = 0
	d.escapeNext = false
	d.packet = nil
	d.rawBuffer = d.rawBuffer[:0]
}

// GetRawBytes returns the raw bytes accumulated since the last frame start
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte feeds one byte into the decoder.
// It returns a packet when a frame completes and an error when one is rejected.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	d.rawBuffer = append(d.rawBuffer, b)

	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}

	escaped := d.escapeNext
	if escaped {
		b ^= EscXor
		d.escapeNext = false
	}

	if !escaped && b == StartByte {
		d.Reset()
		d.rawBuffer = append(d.rawBuffer, StartByte)
		d.state = stateLength
		return nil, nil
	}

	if !escaped && b == EndByte {
		state := d.state
		if state == stateEnd {
			packet := d.packet
			calculated := CalculateCRC(d.buffer[:d.bufferIndex])
			d.Reset()
			if packet.crc != calculated {
				return nil, fmt.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", calculated, packet.crc)
			}
			packet.timestamp = time.Now()
			return packet, nil
		}
		d.Reset()
		return nil, fmt.Errorf("unexpected END byte in state %d", state)
	}

	switch d.state {
	case stateIdle:
		// Waiting for START
		return nil, nil

	case stateLength:
		d.packet = &Packet{length: b, cborPayload: make([]byte, 0, b)}
		d.buffer[0] = b
		d.bufferIndex = 1
		d.addressBytes = 0
		d.state = stateAddress
		return nil, nil

	case stateAddress:
		d.packet.address |= uint64(b) << (d.addressBytes * 8)
		d.buffer[d.bufferIndex] = b
		d.bufferIndex++
		d.addressBytes++
		if d.addressBytes >= AddressSize {
			if d.packet.length == 0 {
				d.state = stateCRC1
			} else {
				d.state = statePayload
			}
		}
		return nil, nil

	case statePayload:
		if d.bufferIndex >= len(d.buffer) {
			d.Reset()
			return nil, fmt.Errorf("buffer overflow: packet exceeds max size")
		}
		d.packet.cborPayload = append(d.packet.cborPayload, b)
		d.buffer[d.bufferIndex] = b
		d.bufferIndex++
		if len(d.packet.cborPayload) >= int(d.packet.length) {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.packet.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.packet.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	case stateEnd:
		d.Reset()
		return nil, fmt.Errorf("extra byte 0x%02X before END", b)

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}

// DecodeAll decodes every complete frame in data, skipping rejected ones.
// It is meant for one-shot buffers such as a WebSocket message.
func DecodeAll(data []byte) ([]*Packet, error) {
	d := NewDecoder()
	var packets []*Packet
	var errs []string
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if p != nil {
			packets = append(packets, p)
		}
	}
	if len(errs) > 0 {
		return packets, fmt.Errorf("%d frame(s) rejected: %s", len(errs), strings.Join(errs, "; "))
	}
	return packets, nil
}
