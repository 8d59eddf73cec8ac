// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nodelink

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrPayloadTooLarge is returned when a CBOR body does not fit the length byte
var ErrPayloadTooLarge = errors.New("nodelink: CBOR payload too large")

// Encoder encodes nodelink packets for transmission.
type Encoder struct{}

// NewEncoder creates a new packet encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode encodes a Packet to wire format.
func (e *Encoder) Encode(p *Packet) ([]byte, error) {
	return EncodePacketFromValues(p.Address(), p.Type(), p.PayloadMap())
}

// EncodePacketFromValues builds a complete wire frame, including framing and
// byte stuffing.
func EncodePacketFromValues(address uint64, msgType uint8, payloadMap map[int]interface{}) ([]byte, error) {
	cborPayload, err := encodeCBORPayload(msgType, payloadMap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR payload: %w", err)
	}

	if len(cborPayload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(cborPayload), MaxPayloadSize)
	}

	// length + address + CBOR is what gets CRC'd and stuffed
	data := make([]byte, 1+AddressSize+len(cborPayload), 1+AddressSize+len(cborPayload)+2)
	data[0] = uint8(len(cborPayload))
	binary.LittleEndian.PutUint64(data[1:1+AddressSize], address)
	copy(data[1+AddressSize:], cborPayload)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)

	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)

	return frame, nil
}

// EncodePacket encodes a Packet and panics on failure.
// Only use it with packets built by the New* helpers.
func EncodePacket(p *Packet) []byte {
	data, err := EncodePacketFromValues(p.Address(), p.Type(), p.PayloadMap())
	if err != nil {
		panic(fmt.Sprintf("nodelink: encode error: %v", err))
	}
	return data
}

func encodeCBORPayload(msgType uint8, payloadMap map[int]interface{}) ([]byte, error) {
	var msg interface{}
	if len(payloadMap) == 0 {
		msg = []interface{}{uint64(msgType), nil}
	} else {
		msg = []interface{}{uint64(msgType), payloadMap}
	}
	return cbor.Marshal(msg)
}

// stuffBytes replaces START, END and ESC with ESC + (byte XOR EscXor).
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}
	return result
}

// UnstuffBytes removes byte stuffing. It is the inverse of stuffBytes.
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			result = append(result, b^EscXor)
			escapeNext = false
		} else if b == EscByte {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, fmt.Errorf("incomplete escape sequence at end of data")
	}

	return result, nil
}
