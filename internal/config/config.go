// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the node settings file. The file is JSON5 so it can
// carry comments and trailing commas; every field is optional and falls back
// to Default.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flynn/json5"

	"github.com/Thermoquad/battnode/internal/radio"
)

// MaxDeviceNameLength is the longest advertised device name
const MaxDeviceNameLength = 10

// Config is the full node configuration
type Config struct {
	DeviceName     string `json:"device_name"`
	DevEUI         string `json:"dev_eui"`  // 16 hex digits
	Interval       string `json:"interval"` // Go duration, e.g. "60s"
	Samples        int    `json:"samples"`
	BatteryChannel uint8  `json:"battery_channel"`
	Battery        string `json:"battery"`    // see battery.Open
	EnablePin      string `json:"enable_pin"` // periph pin name, "" for none

	Radio     RadioSection     `json:"radio"`
	Modem     ModemSection     `json:"modem"`
	Companion CompanionSection `json:"companion"`
	Sim       SimSection       `json:"sim"`
}

// RadioSection selects the uplink path
type RadioSection struct {
	Mode      string `json:"mode"` // "lorawan" or "p2p"
	Confirmed bool   `json:"confirmed"`
	Retries   uint8  `json:"retries"`
}

// ModemSection locates the radio modem. With Sim set, or no port and no URL,
// the node runs against the in-process simulated network.
type ModemSection struct {
	Port        string `json:"port"`
	Baud        int    `json:"baud"`
	URL         string `json:"url"`
	Username    string `json:"username"`
	NoSSLVerify bool   `json:"no_ssl_verify"`
	Sim         bool   `json:"sim"`
}

// CompanionSection configures the companion UART
type CompanionSection struct {
	Port string `json:"port"` // "" disables the companion channel
	Baud int    `json:"baud"`
}

// SimSection shapes the simulated network
type SimSection struct {
	JoinDelay     string  `json:"join_delay"`
	JoinFailures  int     `json:"join_failures"`
	Airtime       string  `json:"airtime"`
	MaxPayload    int     `json:"max_payload"`
	NakRate       float64 `json:"nak_rate"`
	DownlinkEvery int     `json:"downlink_every"`
	Seed          int64   `json:"seed"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DeviceName:     "RAK-LP",
		DevEUI:         "AC1F09FFFE000001",
		Interval:       "60s",
		Samples:        10,
		BatteryChannel: 1,
		Battery:        "discharge",
		Radio: RadioSection{
			Mode:    "lorawan",
			Retries: 2,
		},
		Modem: ModemSection{
			Baud: 115200,
		},
		Companion: CompanionSection{
			Baud: 115200,
		},
		Sim: SimSection{
			JoinDelay:  "2s",
			Airtime:    "400ms",
			MaxPayload: 51,
		},
	}
}

// Load reads path over Default. An empty path returns Default unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once
func (c *Config) Validate() error {
	var errs []error

	if c.DeviceName == "" || len(c.DeviceName) > MaxDeviceNameLength {
		errs = append(errs, fmt.Errorf("device_name %q must be 1-%d characters", c.DeviceName, MaxDeviceNameLength))
	}
	if _, err := c.DevEUIValue(); err != nil {
		errs = append(errs, err)
	}
	if d, err := time.ParseDuration(c.Interval); err != nil {
		errs = append(errs, fmt.Errorf("interval: %w", err))
	} else if d < time.Second {
		errs = append(errs, fmt.Errorf("interval %v is below 1s", d))
	}
	if c.Samples < 1 {
		errs = append(errs, fmt.Errorf("samples must be at least 1, got %d", c.Samples))
	}
	if _, err := radio.ParseMode(c.Radio.Mode); err != nil {
		errs = append(errs, err)
	}
	if c.Modem.Baud <= 0 {
		errs = append(errs, fmt.Errorf("modem baud must be positive, got %d", c.Modem.Baud))
	}
	if c.Companion.Port != "" && c.Companion.Baud <= 0 {
		errs = append(errs, fmt.Errorf("companion baud must be positive, got %d", c.Companion.Baud))
	}
	if c.Modem.URL != "" && c.Modem.Port != "" {
		errs = append(errs, errors.New("modem port and url are mutually exclusive"))
	}
	for name, v := range map[string]string{"sim.join_delay": c.Sim.JoinDelay, "sim.airtime": c.Sim.Airtime} {
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Sim.NakRate < 0 || c.Sim.NakRate > 1 {
		errs = append(errs, fmt.Errorf("sim.nak_rate %v outside [0,1]", c.Sim.NakRate))
	}

	return errors.Join(errs...)
}

// DevEUIValue parses DevEUI. Separators ':' and '-' are allowed.
func (c *Config) DevEUIValue() (uint64, error) {
	s := strings.NewReplacer(":", "", "-", "").Replace(c.DevEUI)
	if len(s) != 16 {
		return 0, fmt.Errorf("dev_eui %q must be 16 hex digits", c.DevEUI)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("dev_eui %q: %w", c.DevEUI, err)
	}
	return v, nil
}

// SendInterval returns the parsed interval. Call after Validate.
func (c *Config) SendInterval() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	return d
}

// RadioConfig converts the radio section for the node core
func (c *Config) RadioConfig() (radio.Config, error) {
	mode, err := radio.ParseMode(c.Radio.Mode)
	if err != nil {
		return radio.Config{}, err
	}
	return radio.Config{
		Mode:      mode,
		Confirmed: c.Radio.Confirmed && mode == radio.ModeManaged,
	}, nil
}

// UseSim reports whether the node should run against the simulated network
func (c *Config) UseSim() bool {
	return c.Modem.Sim || (c.Modem.Port == "" && c.Modem.URL == "")
}

// SimConfig converts the sim section. Call after Validate.
func (c *Config) SimConfig() radio.SimConfig {
	joinDelay, _ := time.ParseDuration(c.Sim.JoinDelay)
	airtime, _ := time.ParseDuration(c.Sim.Airtime)
	return radio.SimConfig{
		JoinDelay:     joinDelay,
		JoinFailures:  c.Sim.JoinFailures,
		Airtime:       airtime,
		MaxPayload:    c.Sim.MaxPayload,
		Confirmed:     c.Radio.Confirmed,
		NakRate:       c.Sim.NakRate,
		DownlinkEvery: c.Sim.DownlinkEvery,
		Seed:          c.Sim.Seed,
	}
}
