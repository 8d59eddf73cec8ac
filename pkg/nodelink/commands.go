// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nodelink

// Builders for every nodelink message. They fix the payload keys so callers
// on both sides of the link agree on them.

// NewJoinRequest creates a JOIN_REQUEST (0x10). The modem starts an OTAA join
// and later answers with JOIN_FINISHED.
func NewJoinRequest(devEUI uint64) *Packet {
	return NewPacketWithPayload(devEUI, MsgJoinRequest, nil)
}

// NewSendManaged creates a SEND_MANAGED (0x11) uplink over the managed network.
// retries is the link-margin / retry parameter handed to the MAC.
func NewSendManaged(devEUI uint64, data []byte, retries uint8) *Packet {
	payload := map[int]interface{}{
		0: data,
		1: uint64(retries),
	}
	return NewPacketWithPayload(devEUI, MsgSendManaged, payload)
}

// NewSendP2P creates a SEND_P2P (0x12) raw peer-to-peer transmission.
func NewSendP2P(devEUI uint64, data []byte) *Packet {
	payload := map[int]interface{}{
		0: data,
	}
	return NewPacketWithPayload(devEUI, MsgSendP2P, payload)
}

// NewPingRequest creates a PING_REQUEST (0x1F).
func NewPingRequest(devEUI uint64) *Packet {
	return NewPacketWithPayload(devEUI, MsgPingRequest, nil)
}

// NewSendResult creates a SEND_RESULT (0x20), the synchronous answer to
// SEND_MANAGED.
func NewSendResult(status SendStatus) *Packet {
	payload := map[int]interface{}{
		0: uint64(status),
	}
	return NewPacketWithPayload(AddressModem, MsgSendResult, payload)
}

// NewPingResponse creates a PING_RESPONSE (0x2F) carrying modem uptime.
func NewPingResponse(uptimeMs uint64) *Packet {
	payload := map[int]interface{}{
		0: uptimeMs,
	}
	return NewPacketWithPayload(AddressModem, MsgPingResponse, payload)
}

// NewJoinFinished creates a JOIN_FINISHED (0x30) event. Keys and address are
// only included on success.
func NewJoinFinished(ok bool, nwkSKey, appSKey [SessionKeySize]byte, devAddr uint32) *Packet {
	payload := map[int]interface{}{
		0: ok,
	}
	if ok {
		payload[1] = nwkSKey[:]
		payload[2] = appSKey[:]
		payload[3] = uint64(devAddr)
	}
	return NewPacketWithPayload(AddressModem, MsgJoinFinished, payload)
}

// NewDataReceived creates a DATA_RECEIVED (0x31) downlink event.
func NewDataReceived(data []byte, rssi int16, snr int8, port uint8) *Packet {
	payload := map[int]interface{}{
		0: data,
		1: int64(rssi),
		2: int64(snr),
		3: uint64(port),
	}
	return NewPacketWithPayload(AddressModem, MsgDataReceived, payload)
}

// NewTxFinished creates a TX_FINISHED (0x32) event. acked is only meaningful
// for confirmed uplinks.
func NewTxFinished(acked bool) *Packet {
	payload := map[int]interface{}{
		0: acked,
	}
	return NewPacketWithPayload(AddressModem, MsgTxFinished, payload)
}

// NewErrorInvalidCmd creates an ERROR_INVALID_CMD (0xE0) naming the rejected type.
func NewErrorInvalidCmd(msgType uint8) *Packet {
	payload := map[int]interface{}{
		0: uint64(msgType),
	}
	return NewPacketWithPayload(AddressModem, MsgErrorInvalidCmd, payload)
}
