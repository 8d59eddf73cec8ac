// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/battnode/internal/battery"
	"github.com/Thermoquad/battnode/internal/companion"
	"github.com/Thermoquad/battnode/internal/config"
	"github.com/Thermoquad/battnode/internal/gpio"
	"github.com/Thermoquad/battnode/internal/node"
	"github.com/Thermoquad/battnode/internal/radio"
)

// Exit code when the node resets and --exit-on-reset is set
const exitCodeReset = 3

// Delay before reopening a lost modem link
const reconnectDelay = time.Second

var (
	runName      string
	runMode      string
	runConfirmed bool
	runInterval  time.Duration
	runCompanion string
	runEnablePin string
	runBattery   string
	runSim       bool
	exitOnReset  bool
)

var errLinkLost = errors.New("modem link lost")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sensor node",
	Long: `Run the node's application loop until interrupted.

Every interval the battery is sampled 10 times, averaged and sent as an LPP
voltage reading on channel 1. In lorawan mode the node joins first and skips
uplinks until joined; in p2p mode every cycle transmits.

When ten confirmed uplinks in a row are not acknowledged the node resets. The
node is then rebuilt with fresh state, or with --exit-on-reset the process
exits with code 3 so an external supervisor can restart it.

A lost modem link is reopened after one second.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addNodeFlags(runCmd)
	runCmd.Flags().BoolVar(&exitOnReset, "exit-on-reset", false, "Exit with code 3 instead of restarting after a reset")
}

// addNodeFlags registers the flags shared by run and monitor
func addNodeFlags(c *cobra.Command) {
	c.Flags().StringVar(&runName, "name", "", "Device name (max 10 characters)")
	c.Flags().StringVar(&runMode, "mode", "", "Radio mode: lorawan or p2p")
	c.Flags().BoolVar(&runConfirmed, "confirmed", false, "Request acknowledgment for LoRaWAN uplinks")
	c.Flags().DurationVar(&runInterval, "interval", 0, "Send interval (e.g. 30s, 5m)")
	c.Flags().StringVar(&runCompanion, "companion", "", "Companion serial port (AT command channel)")
	c.Flags().StringVar(&runEnablePin, "enable-pin", "", "GPIO name of the peripheral enable line (e.g. GPIO17)")
	c.Flags().StringVar(&runBattery, "battery", "", "Battery source: fixed:<mV>, discharge[:full:empty:duration], sysfs:<supply>")
	c.Flags().BoolVar(&runSim, "sim", false, "Use the in-process simulated network even if a modem is configured")
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("name") {
		cfg.DeviceName = runName
	}
	if f.Changed("mode") {
		cfg.Radio.Mode = runMode
	}
	if f.Changed("confirmed") {
		cfg.Radio.Confirmed = runConfirmed
	}
	if f.Changed("interval") {
		cfg.Interval = runInterval.String()
	}
	if f.Changed("companion") {
		cfg.Companion.Port = runCompanion
	}
	if f.Changed("enable-pin") {
		cfg.EnablePin = runEnablePin
	}
	if f.Changed("battery") {
		cfg.Battery = runBattery
	}
	if f.Changed("sim") {
		cfg.Modem.Sim = runSim
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("battnode %s - %s\n", rootCmd.Version, cfg.DeviceName)
	fmt.Printf("Mode: %s | Interval: %s\n", cfg.Radio.Mode, cfg.SendInterval())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	sup, err := newSupervisor(cfg, log)
	if err != nil {
		return err
	}
	defer sup.Close()

	if cfg.Companion.Port != "" {
		ch, err := companion.OpenSerial(ctx, cfg.Companion.Port, cfg.Companion.Baud, func(on bool) {
			log.WithField("tag", "APP").Tracef("status LED %v", on)
		})
		if err != nil {
			// Keep going without AT commands or log mirroring
			log.WithField("tag", "APP").WithError(err).Warn("Companion channel unavailable")
		} else {
			defer ch.Close()
			sup.attachCompanion(ch)
		}
	}

	err = sup.Run(ctx, exitOnReset)
	if errors.Is(err, node.ErrReset) {
		sup.Close()
		os.Exit(exitCodeReset)
	}
	return err
}

// supervisor owns the long-lived resources (enable line, companion channel)
// and rebuilds the transport and node after a reset or lost link
type supervisor struct {
	cfg    *config.Config
	log    *logrus.Logger
	devEUI uint64
	pin    gpio.OutputPin
	batt   battery.Sampler

	companion companion.Channel
	mirror    *companion.MirrorHook

	// onNode is called with every node built, before it runs
	onNode func(n *node.Node, transportInfo string)
}

func newSupervisor(cfg *config.Config, log *logrus.Logger) (*supervisor, error) {
	devEUI, err := cfg.DevEUIValue()
	if err != nil {
		return nil, err
	}
	pin, err := gpio.Open(cfg.EnablePin)
	if err != nil {
		return nil, err
	}
	batt, err := battery.Open(cfg.Battery)
	if err != nil {
		return nil, err
	}
	return &supervisor{cfg: cfg, log: log, devEUI: devEUI, pin: pin, batt: batt}, nil
}

// attachCompanion routes the companion channel into every node and mirrors
// log lines to it
func (s *supervisor) attachCompanion(ch companion.Channel) {
	s.companion = ch
	s.mirror = companion.NewMirrorHook(ch)
	s.log.AddHook(s.mirror)
}

// Close stops log mirroring
func (s *supervisor) Close() {
	if s.mirror != nil {
		s.mirror.Close()
	}
}

// Run restarts the node until ctx is done. With exitOnReset a reset ends the
// loop with node.ErrReset.
func (s *supervisor) Run(ctx context.Context, exitOnReset bool) error {
	log := s.log.WithField("tag", "APP")
	for generation := 1; ; generation++ {
		err := s.runOnce(ctx, generation)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, node.ErrReset):
			if exitOnReset {
				return err
			}
			log.Warn("Node reset, restarting with fresh state")
		case errors.Is(err, errLinkLost):
			log.WithError(err).Warnf("Reconnecting in %v", reconnectDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(reconnectDelay):
			}
		default:
			return err
		}
	}
}

func (s *supervisor) runOnce(ctx context.Context, generation int) error {
	transport, info, err := s.openTransport(ctx)
	if err != nil {
		if s.cfg.UseSim() {
			return err
		}
		return fmt.Errorf("%w: %v", errLinkLost, err)
	}
	defer transport.Close()

	radioCfg, err := s.cfg.RadioConfig()
	if err != nil {
		return err
	}

	n, err := node.New(node.Options{
		Name:           s.cfg.DeviceName,
		Radio:          radioCfg,
		Transport:      transport,
		Battery:        s.batt,
		EnablePin:      s.pin,
		Companion:      s.companion,
		Resetter:       node.ResetFunc(func() { s.log.WithField("tag", "APP").Warn("Resetting node") }),
		Interval:       s.cfg.SendInterval(),
		Samples:        s.cfg.Samples,
		BatteryChannel: s.cfg.BatteryChannel,
		Retries:        s.cfg.Radio.Retries,
		Log:            s.log,
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"tag":        "APP",
		"generation": generation,
		"transport":  info,
	}).Info("Node started")
	if s.onNode != nil {
		s.onNode(n, info)
	}

	nodeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	linkLost := make(chan struct{})
	if modem, ok := transport.(*radio.Modem); ok {
		go func() {
			select {
			case <-modem.Done():
				close(linkLost)
				cancel()
			case <-nodeCtx.Done():
			}
		}()
	}

	err = n.Run(nodeCtx)
	select {
	case <-linkLost:
		if ctx.Err() == nil {
			return errLinkLost
		}
	default:
	}
	return err
}

func (s *supervisor) openTransport(ctx context.Context) (radio.Transport, string, error) {
	if s.cfg.UseSim() {
		return radio.NewSim(s.cfg.SimConfig(), s.log), "Simulated network", nil
	}

	conn, info, err := OpenConnection(s.cfg)
	if err != nil {
		return nil, "", err
	}
	modem := radio.NewModem(conn, s.devEUI, s.log)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if uptime, err := modem.Ping(pingCtx); err != nil {
		s.log.WithField("tag", "LINK").WithError(err).Warn("Modem did not answer ping")
	} else {
		s.log.WithField("tag", "LINK").Infof("Modem up for %s", formatUptime(uint64(uptime.Milliseconds())))
	}
	return modem, info, nil
}
