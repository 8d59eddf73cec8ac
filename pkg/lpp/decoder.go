// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpp

import "fmt"

// Field is one decoded reading
type Field struct {
	Channel uint8
	Type    uint8
	Value   float64
}

// Decode parses a complete payload into its fields
func Decode(data []byte) ([]Field, error) {
	var fields []Field
	for i := 0; i < len(data); {
		if i+2 > len(data) {
			return fields, fmt.Errorf("truncated field header at offset %d", i)
		}
		channel, typ := data[i], data[i+1]
		spec, ok := specs[typ]
		if !ok {
			return fields, fmt.Errorf("unknown type %d at offset %d", typ, i+1)
		}
		i += 2
		if i+spec.size > len(data) {
			return fields, fmt.Errorf("truncated value for type %d at offset %d", typ, i)
		}

		var raw uint64
		for j := 0; j < spec.size; j++ {
			raw = raw<<8 | uint64(data[i+j])
		}
		i += spec.size

		var v float64
		if spec.signed {
			shift := uint(64 - spec.size*8)
			v = float64(int64(raw<<shift) >> shift)
		} else {
			v = float64(raw)
		}
		fields = append(fields, Field{Channel: channel, Type: typ, Value: v / spec.multiplier})
	}
	return fields, nil
}

// TypeName returns a short name for a field type
func TypeName(typ uint8) string {
	switch typ {
	case TypeDigitalInput:
		return "digital_in"
	case TypeDigitalOutput:
		return "digital_out"
	case TypeAnalogInput:
		return "analog_in"
	case TypeAnalogOutput:
		return "analog_out"
	case TypeIlluminance:
		return "illuminance"
	case TypePresence:
		return "presence"
	case TypeTemperature:
		return "temperature"
	case TypeHumidity:
		return "humidity"
	case TypeBarometer:
		return "barometer"
	case TypeVoltage:
		return "voltage"
	case TypePercentage:
		return "percentage"
	default:
		return "unknown"
	}
}
