// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nodelink

import "time"

// Packet is one decoded nodelink frame
type Packet struct {
	length      uint8
	address     uint64
	cborPayload []byte // Raw CBOR bytes: [msg_type, payload_map]
	crc         uint16
	timestamp   time.Time

	// Parsed lazily from cborPayload
	msgType    uint8
	payloadMap map[int]interface{}
	parsed     bool
	parseErr   error
}

// NewPacketWithPayload creates a packet from a message type and payload map.
// CBOR and CRC are produced when the packet is encoded.
func NewPacketWithPayload(address uint64, msgType uint8, payload map[int]interface{}) *Packet {
	return &Packet{
		address:    address,
		msgType:    msgType,
		payloadMap: payload,
		parsed:     true,
		timestamp:  time.Now(),
	}
}

func (p *Packet) ensureParsed() {
	if p.parsed {
		return
	}
	p.parsed = true
	if len(p.cborPayload) == 0 {
		return
	}
	p.msgType, p.payloadMap, p.parseErr = ParseCBORMessage(p.cborPayload)
}

// Length returns the CBOR payload length from the frame header
func (p *Packet) Length() uint8 {
	return p.length
}

// Address returns the DevEUI the frame belongs to
func (p *Packet) Address() uint64 {
	return p.address
}

// Type returns the message type
func (p *Packet) Type() uint8 {
	p.ensureParsed()
	return p.msgType
}

// Payload returns the raw CBOR bytes
func (p *Packet) Payload() []byte {
	return p.cborPayload
}

// PayloadMap returns the decoded payload map (nil for empty payloads)
func (p *Packet) PayloadMap() map[int]interface{} {
	p.ensureParsed()
	return p.payloadMap
}

// ParseError returns any error from decoding the CBOR body
func (p *Packet) ParseError() error {
	p.ensureParsed()
	return p.parseErr
}

// CRC returns the frame CRC
func (p *Packet) CRC() uint16 {
	return p.crc
}

// Timestamp returns when the frame was decoded or built
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// FromModem reports whether the frame was originated by the modem
func (p *Packet) FromModem() bool {
	return p.address == AddressModem
}
