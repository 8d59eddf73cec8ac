// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nodelink

import (
	"fmt"
	"strings"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	msgType := FormatMessageType(p.Type())

	result := fmt.Sprintf("[%s] %s (0x%02X) addr=%016X len=%d\n", timestamp, msgType, p.Type(), p.address, p.length)

	if err := p.ParseError(); err != nil {
		return result + fmt.Sprintf("  Parse error: %v\n", err)
	}

	return result + FormatPayloadMap(p.Type(), p.PayloadMap())
}

// FormatMessageType returns the name of a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgJoinRequest:
		return "JOIN_REQUEST"
	case MsgSendManaged:
		return "SEND_MANAGED"
	case MsgSendP2P:
		return "SEND_P2P"
	case MsgPingRequest:
		return "PING_REQUEST"
	case MsgSendResult:
		return "SEND_RESULT"
	case MsgPingResponse:
		return "PING_RESPONSE"
	case MsgJoinFinished:
		return "JOIN_FINISHED"
	case MsgDataReceived:
		return "DATA_RECEIVED"
	case MsgTxFinished:
		return "TX_FINISHED"
	case MsgErrorInvalidCmd:
		return "ERROR_INVALID_CMD"
	default:
		return "UNKNOWN"
	}
}

// FormatSendStatus returns the name of a SEND_RESULT status
func FormatSendStatus(s SendStatus) string {
	switch s {
	case SendAccepted:
		return "ACCEPTED"
	case SendBusy:
		return "BUSY"
	case SendRejectedTooLarge:
		return "REJECTED_TOO_LARGE"
	default:
		return "UNKNOWN"
	}
}

// FormatPayloadMap renders the fields of a decoded payload map
func FormatPayloadMap(msgType uint8, m map[int]interface{}) string {
	switch msgType {
	case MsgJoinRequest, MsgPingRequest:
		return "  (no payload)\n"

	case MsgSendManaged:
		data, _ := GetMapBytes(m, 0)
		retries, _ := GetMapUint(m, 1)
		return fmt.Sprintf("  Retries: %d, Data (%d bytes): %s\n", retries, len(data), HexString(data))

	case MsgSendP2P:
		data, _ := GetMapBytes(m, 0)
		return fmt.Sprintf("  Data (%d bytes): %s\n", len(data), HexString(data))

	case MsgSendResult:
		status, _ := GetMapUint(m, 0)
		return fmt.Sprintf("  Status: %s (%d)\n", FormatSendStatus(SendStatus(status)), status)

	case MsgPingResponse:
		uptime, _ := GetMapUint(m, 0)
		return fmt.Sprintf("  Uptime: %d ms (%.2f sec)\n", uptime, float64(uptime)/1000.0)

	case MsgJoinFinished:
		ok, _ := GetMapBool(m, 0)
		if !ok {
			return "  Result: FAILED\n"
		}
		nwk, _ := GetMapBytes(m, 1)
		app, _ := GetMapBytes(m, 2)
		addr, _ := GetMapUint(m, 3)
		return fmt.Sprintf("  Result: JOINED\n  DevAddr: %08X\n  NwkSKey: %s\n  AppSKey: %s\n",
			addr, HexString(nwk), HexString(app))

	case MsgDataReceived:
		data, _ := GetMapBytes(m, 0)
		rssi, _ := GetMapInt(m, 1)
		snr, _ := GetMapInt(m, 2)
		port, _ := GetMapUint(m, 3)
		return fmt.Sprintf("  RSSI: %d dBm, SNR: %d dB, Port: %d\n  Data (%d bytes): %s\n",
			rssi, snr, port, len(data), HexString(data))

	case MsgTxFinished:
		acked, _ := GetMapBool(m, 0)
		if acked {
			return "  Result: ACK\n"
		}
		return "  Result: NAK\n"

	case MsgErrorInvalidCmd:
		t, _ := GetMapUint(m, 0)
		return fmt.Sprintf("  Rejected type: 0x%02X\n", t)
	}

	if len(m) == 0 {
		return "  (no payload)\n"
	}
	var b strings.Builder
	b.WriteString("  Fields:")
	for k, v := range m {
		fmt.Fprintf(&b, " %d=%v", k, v)
	}
	b.WriteString("\n")
	return b.String()
}

// HexString renders bytes as space separated upper-case hex pairs
func HexString(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(data) * 3)
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}
