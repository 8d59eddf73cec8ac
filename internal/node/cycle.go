// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/battnode/internal/event"
	"github.com/Thermoquad/battnode/internal/radio"
)

var errNoSamples = errors.New("no battery samples")

func (n *Node) handleTimer() {
	if !n.events.Test(event.Status) {
		return
	}
	n.events.Clear(event.Status)
	n.appLog.Info("Timer wakeup")
	n.runCycle()
}

// runCycle samples the battery, encodes it and hands it to the radio
func (n *Node) runCycle() {
	n.stats.cycle()

	if err := n.enable.High(); err != nil {
		n.appLog.WithError(err).Warn("Failed to enable peripherals")
	}
	defer func() {
		if err := n.enable.Low(); err != nil {
			n.appLog.WithError(err).Warn("Failed to disable peripherals")
		}
	}()

	n.payload.Reset()

	mv, err := n.averageBattery()
	if err != nil {
		n.stats.sampleError()
		n.appLog.WithError(err).Error("Battery read failed, skip sending")
		return
	}
	volts := mv / 1000
	if err := n.payload.AddVoltage(n.batteryChannel, volts); err != nil {
		n.appLog.WithError(err).Error("Payload encode failed, skip sending")
		return
	}
	n.stats.sampled(volts, n.payload.Bytes())
	n.appLog.WithFields(logrus.Fields{
		"volts":   fmt.Sprintf("%.3f", volts),
		"payload": fmt.Sprintf("% X", n.payload.Bytes()),
	}).Debug("Battery sampled")

	switch n.radioCfg.Mode {
	case radio.ModeManaged:
		if !n.transport.Joined() {
			n.stats.skipped()
			n.appLog.Info("Network not joined, skip sending")
			return
		}
		result := n.transport.SendManaged(n.payload.Bytes(), n.retries)
		n.stats.sendResult(result)
		switch result {
		case radio.Accepted:
			n.appLog.Info("Packet enqueued")
		case radio.Busy:
			n.appLog.Info("LoRa transceiver is busy")
		case radio.RejectedTooLarge:
			n.appLog.Info("Packet error, too big to send with current DR")
		}
	case radio.ModeP2P:
		n.transport.SendP2P(n.payload.Bytes())
		n.stats.p2pSent()
		n.appLog.Debug("P2P packet sent")
	}
}

// averageBattery returns the mean of the configured number of samples in
// millivolts. Failed reads are left out of the mean.
func (n *Node) averageBattery() (float64, error) {
	var sum uint64
	count := 0
	var lastErr error
	for i := 0; i < n.samples; i++ {
		mv, err := n.battery.Read()
		if err != nil {
			lastErr = err
			continue
		}
		sum += uint64(mv)
		count++
	}
	if count == 0 {
		if lastErr == nil {
			lastErr = errNoSamples
		}
		return 0, lastErr
	}
	return float64(sum) / float64(count), nil
}
