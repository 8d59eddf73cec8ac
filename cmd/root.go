// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/battnode/internal/config"
)

var (
	configPath string
	logLevel   string

	// Modem connection flags (serial)
	portName string
	baudRate int

	// Modem connection flags (WebSocket)
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "battnode",
	Short: "Battery sensor node",
	Long: `battnode - application loop for a battery powered LoRa sensor node.

The node samples its battery on a fixed interval, encodes the voltage as
Cayenne LPP and sends it over LoRaWAN (after joining) or point to point.
Ten consecutive unacknowledged confirmed uplinks reset the node.

The radio modem is reached over nodelink framing:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/modem [--username user]
  Neither:   in-process simulated network (see "netsim" to serve one)

For WebSocket authentication, the password is read from the BATTNODE_PASSWORD
environment variable, or prompted interactively if not set.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "JSON5 configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Modem serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "Modem WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger from --log-level
func newLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	log := logrus.New()
	log.Out = os.Stdout
	log.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "01/02/06 15:04:05.000",
	}
	log.Level = level
	return log, nil
}

// loadConfig reads --config and lets explicitly set flags override it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Modem.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Modem.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Modem.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Modem.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Modem.NoSSLVerify = wsNoSSLVerify
	}
	applyRunFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
