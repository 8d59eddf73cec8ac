// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nodelink

import "fmt"

// AnomalyType classifies a validation failure
type AnomalyType int

const (
	AnomalyMissingField AnomalyType = iota
	AnomalyInvalidLength
	AnomalyInvalidValue
	AnomalyUnknownType
	AnomalyDecodeError
)

// ValidationError describes one problem found in a decoded packet
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket checks field presence and ranges of a decoded packet.
// It returns nil when the packet is valid.
func ValidatePacket(p *Packet) []ValidationError {
	if err := p.ParseError(); err != nil {
		return []ValidationError{{
			Type:    AnomalyDecodeError,
			Message: err.Error(),
		}}
	}

	m := p.PayloadMap()
	switch p.Type() {
	case MsgJoinRequest, MsgPingRequest:
		return nil
	case MsgSendManaged:
		return append(requireBytes(m, 0, "data"), requireUint(m, 1, "retries", 0, 15)...)
	case MsgSendP2P:
		return requireBytes(m, 0, "data")
	case MsgSendResult:
		return requireUint(m, 0, "status", uint64(SendAccepted), uint64(SendRejectedTooLarge))
	case MsgPingResponse:
		return requireUint(m, 0, "uptime", 0, ^uint64(0))
	case MsgJoinFinished:
		return validateJoinFinished(m)
	case MsgDataReceived:
		return validateDataReceived(m)
	case MsgTxFinished:
		if _, ok := GetMapBool(m, 0); !ok {
			return []ValidationError{missing("acked")}
		}
		return nil
	case MsgErrorInvalidCmd:
		return requireUint(m, 0, "type", 0, 255)
	}

	return []ValidationError{{
		Type:    AnomalyUnknownType,
		Message: fmt.Sprintf("unknown message type 0x%02X", p.Type()),
		Details: map[string]interface{}{"type": p.Type()},
	}}
}

func validateJoinFinished(m map[int]interface{}) []ValidationError {
	ok, present := GetMapBool(m, 0)
	if !present {
		return []ValidationError{missing("ok")}
	}
	if !ok {
		return nil
	}

	var errs []ValidationError
	for key, name := range map[int]string{1: "nwkskey", 2: "appskey"} {
		k, present := GetMapBytes(m, key)
		if !present {
			errs = append(errs, missing(name))
			continue
		}
		if len(k) != SessionKeySize {
			errs = append(errs, ValidationError{
				Type:    AnomalyInvalidLength,
				Message: fmt.Sprintf("%s has %d bytes, want %d", name, len(k), SessionKeySize),
				Details: map[string]interface{}{"received": len(k), "expected": SessionKeySize},
			})
		}
	}
	return append(errs, requireUint(m, 3, "devaddr", 0, 0xFFFFFFFF)...)
}

func validateDataReceived(m map[int]interface{}) []ValidationError {
	errs := requireBytes(m, 0, "data")

	rssi, ok := GetMapInt(m, 1)
	if !ok {
		errs = append(errs, missing("rssi"))
	} else if rssi < -200 || rssi > 0 {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("rssi %d dBm out of range", rssi),
			Details: map[string]interface{}{"value": rssi},
		})
	}

	if _, ok := GetMapInt(m, 2); !ok {
		errs = append(errs, missing("snr"))
	}
	return append(errs, requireUint(m, 3, "port", 0, 255)...)
}

func requireBytes(m map[int]interface{}, key int, name string) []ValidationError {
	if _, ok := GetMapBytes(m, key); !ok {
		return []ValidationError{missing(name)}
	}
	return nil
}

func requireUint(m map[int]interface{}, key int, name string, lo, hi uint64) []ValidationError {
	v, ok := GetMapUint(m, key)
	if !ok {
		return []ValidationError{missing(name)}
	}
	if v < lo || v > hi {
		return []ValidationError{{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("%s %d out of range [%d, %d]", name, v, lo, hi),
			Details: map[string]interface{}{"value": v},
		}}
	}
	return nil
}

func missing(name string) ValidationError {
	return ValidationError{
		Type:    AnomalyMissingField,
		Message: fmt.Sprintf("missing field %s", name),
		Details: map[string]interface{}{"field": name},
	}
}
