// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nodelink

import (
	"bytes"
	"testing"
)

func TestNewJoinFinished(t *testing.T) {
	var nwk, app [SessionKeySize]byte
	for i := range nwk {
		nwk[i] = byte(i)
		app[i] = byte(0xF0 + i)
	}

	tests := []struct {
		name     string
		ok       bool
		wantKeys bool
	}{
		{name: "joined carries session", ok: true, wantKeys: true},
		{name: "failed join has no session", ok: false, wantKeys: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := decodeFrame(t, EncodePacket(NewJoinFinished(tt.ok, nwk, app, 0x260B1234)))

			if p.Type() != MsgJoinFinished {
				t.Fatalf("Type() = 0x%02X, want JOIN_FINISHED", p.Type())
			}
			ok, _ := GetMapBool(p.PayloadMap(), 0)
			if ok != tt.ok {
				t.Errorf("ok = %v, want %v", ok, tt.ok)
			}
			gotNwk, hasKeys := GetMapBytes(p.PayloadMap(), 1)
			if hasKeys != tt.wantKeys {
				t.Fatalf("has keys = %v, want %v", hasKeys, tt.wantKeys)
			}
			if tt.wantKeys {
				if !bytes.Equal(gotNwk, nwk[:]) {
					t.Errorf("nwkskey = % X", gotNwk)
				}
				addr, _ := GetMapUint(p.PayloadMap(), 3)
				if addr != 0x260B1234 {
					t.Errorf("devaddr = %08X", addr)
				}
			}
			if errs := ValidatePacket(p); len(errs) != 0 {
				t.Errorf("unexpected validation errors: %v", errs)
			}
		})
	}
}

func TestNewDataReceived_NegativeValues(t *testing.T) {
	p := decodeFrame(t, EncodePacket(NewDataReceived([]byte{1}, -120, -5, 10)))

	rssi, ok := GetMapInt(p.PayloadMap(), 1)
	if !ok || rssi != -120 {
		t.Errorf("rssi = %d, want -120", rssi)
	}
	snr, ok := GetMapInt(p.PayloadMap(), 2)
	if !ok || snr != -5 {
		t.Errorf("snr = %d, want -5", snr)
	}
}

func TestNewSendResult_AllStatuses(t *testing.T) {
	for _, s := range []SendStatus{SendAccepted, SendBusy, SendRejectedTooLarge} {
		p := decodeFrame(t, EncodePacket(NewSendResult(s)))
		got, _ := GetMapUint(p.PayloadMap(), 0)
		if SendStatus(got) != s {
			t.Errorf("status = %d, want %d", got, s)
		}
		if !p.FromModem() {
			t.Errorf("SEND_RESULT should carry the modem address")
		}
	}
}

func TestValidatePacket_Anomalies(t *testing.T) {
	tests := []struct {
		name     string
		msgType  uint8
		payload  map[int]interface{}
		wantType AnomalyType
	}{
		{
			name:     "send result status out of range",
			msgType:  MsgSendResult,
			payload:  map[int]interface{}{0: uint64(7)},
			wantType: AnomalyInvalidValue,
		},
		{
			name:     "tx finished without ack flag",
			msgType:  MsgTxFinished,
			payload:  nil,
			wantType: AnomalyMissingField,
		},
		{
			name:    "join finished with short key",
			msgType: MsgJoinFinished,
			payload: map[int]interface{}{
				0: true,
				1: []byte{1, 2, 3},
				2: make([]byte, SessionKeySize),
				3: uint64(1),
			},
			wantType: AnomalyInvalidLength,
		},
		{
			name:     "positive rssi",
			msgType:  MsgDataReceived,
			payload:  map[int]interface{}{0: []byte{}, 1: int64(5), 2: int64(0), 3: uint64(1)},
			wantType: AnomalyInvalidValue,
		},
		{
			name:     "unknown type",
			msgType:  0x77,
			payload:  nil,
			wantType: AnomalyUnknownType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodePacketFromValues(1, tt.msgType, tt.payload)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			errs := ValidatePacket(decodeFrame(t, frame))
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			found := false
			for _, e := range errs {
				if e.Type == tt.wantType {
					found = true
				}
			}
			if !found {
				t.Errorf("anomaly %d not reported in %v", tt.wantType, errs)
			}
		})
	}
}
