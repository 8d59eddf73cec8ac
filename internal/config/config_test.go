// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/battnode/internal/radio"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "battnode.json5")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.DeviceName != "RAK-LP" || cfg.Samples != 10 || cfg.BatteryChannel != 1 || cfg.Radio.Retries != 2 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.UseSim() {
		t.Error("default config should use the simulated network")
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SendInterval() != 60*time.Second {
		t.Errorf("SendInterval() = %v", cfg.SendInterval())
	}
}

func TestLoad_JSON5OverDefaults(t *testing.T) {
	path := writeConfig(t, `{
		// field node on the roof
		device_name: "ROOF-1",
		interval: "5m",
		radio: { mode: "lorawan", confirmed: true, },
		sim: { nak_rate: 0.25 },
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DeviceName != "ROOF-1" {
		t.Errorf("DeviceName = %q", cfg.DeviceName)
	}
	if cfg.SendInterval() != 5*time.Minute {
		t.Errorf("SendInterval() = %v", cfg.SendInterval())
	}
	// untouched fields keep their defaults
	if cfg.Samples != 10 || cfg.Radio.Retries != 2 || cfg.Sim.Airtime != "400ms" {
		t.Errorf("defaults lost: %+v", cfg)
	}

	rc, err := cfg.RadioConfig()
	if err != nil {
		t.Fatal(err)
	}
	if rc.Mode != radio.ModeManaged || !rc.Confirmed {
		t.Errorf("RadioConfig() = %+v", rc)
	}
	if sc := cfg.SimConfig(); sc.NakRate != 0.25 || !sc.Confirmed || sc.Airtime != 400*time.Millisecond {
		t.Errorf("SimConfig() = %+v", sc)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", `{device_name: }`, "parse config"},
		{"long name", `{device_name: "ELEVENCHARS"}`, "device_name"},
		{"bad mode", `{radio: {mode: "zigbee"}}`, "unknown radio mode"},
		{"short interval", `{interval: "10ms"}`, "below 1s"},
		{"bad eui", `{dev_eui: "1234"}`, "16 hex digits"},
		{"nak rate", `{sim: {nak_rate: 1.5}}`, "nak_rate"},
		{"port and url", `{modem: {port: "/dev/ttyUSB0", url: "ws://x"}}`, "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestRadioConfig_P2PIgnoresConfirmed(t *testing.T) {
	cfg := Default()
	cfg.Radio.Mode = "p2p"
	cfg.Radio.Confirmed = true
	rc, err := cfg.RadioConfig()
	if err != nil {
		t.Fatal(err)
	}
	if rc.Mode != radio.ModeP2P || rc.Confirmed {
		t.Errorf("RadioConfig() = %+v, want p2p unconfirmed", rc)
	}
}

func TestDevEUIValue_Separators(t *testing.T) {
	cfg := Default()
	cfg.DevEUI = "AC:1F:09:FF:FE:00:00:01"
	v, err := cfg.DevEUIValue()
	if err != nil || v != 0xAC1F09FFFE000001 {
		t.Errorf("DevEUIValue() = %X, %v", v, err)
	}
}
