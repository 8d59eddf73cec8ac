// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package nodelink implements the framed link between a battnode host and the
// radio modem that runs the LoRaWAN / P2P stack.
//
// Every frame carries the node's 64-bit DevEUI, a CBOR message [type, map] and
// a CRC-16-CCITT, wrapped in START/END bytes with byte stuffing. The same
// frames travel over a UART or as binary WebSocket messages.
package nodelink

// Framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Frame size limits
const (
	MaxPayloadSize = 255
	AddressSize    = 8
	MaxPacketSize  = 1 + AddressSize + MaxPayloadSize + 2 // before stuffing
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Special addresses
const (
	AddressBroadcast = 0x0000000000000000
	AddressModem     = 0xFFFFFFFFFFFFFFFF // frames originated by the modem itself
)

// Message types - Commands (Node → Modem) 0x10-0x1F
const (
	MsgJoinRequest = 0x10
	MsgSendManaged = 0x11
	MsgSendP2P     = 0x12
	MsgPingRequest = 0x1F
)

// Message types - Responses (Modem → Node) 0x20-0x2F
const (
	MsgSendResult   = 0x20
	MsgPingResponse = 0x2F
)

// Message types - Asynchronous events (Modem → Node) 0x30-0x3F
const (
	MsgJoinFinished = 0x30
	MsgDataReceived = 0x31
	MsgTxFinished   = 0x32
)

// Message types - Errors 0xE0-0xEF
const (
	MsgErrorInvalidCmd = 0xE0
)

// Decoder states
const (
	stateIdle = iota
	stateLength
	stateAddress
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)

// SendStatus is the payload of SEND_RESULT
type SendStatus int

// Send status values
const (
	SendAccepted         SendStatus = 0x00
	SendBusy             SendStatus = 0x01
	SendRejectedTooLarge SendStatus = 0x02
)

// Session key length carried by JOIN_FINISHED
const SessionKeySize = 16
