// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/battnode/internal/event"
	"github.com/Thermoquad/battnode/internal/radio"
)

// handleRadio services join, downlink and transmit completion. Each flag is
// tested and cleared on its own.
func (n *Node) handleRadio() {
	if n.events.Test(event.JoinFinished) {
		n.events.Clear(event.JoinFinished)
		n.handleJoin()
	}

	if n.events.Test(event.DataReceived) {
		n.events.Clear(event.DataReceived)
		n.handleDownlink()
	}

	if n.events.Test(event.TransmitFinished) {
		n.events.Clear(event.TransmitFinished)
		n.handleTxFinished()
	}
}

func (n *Node) handleJoin() {
	n.mu.Lock()
	ok := n.joinOK
	n.mu.Unlock()

	n.stats.join(ok)
	if !ok {
		// No automatic rejoin; the node keeps skipping uplinks until restarted
		n.loraLog.Warn("Join network failed")
		return
	}

	s := n.transport.Session()
	n.loraLog.Info("Successfully joined network")
	n.loraLog.Infof("NwkSKey: %X", s.NwkSKey[:])
	n.loraLog.Infof("AppSKey: %X", s.AppSKey[:])
	n.loraLog.Infof("DevAddr: %08X", s.DevAddr)
}

func (n *Node) handleDownlink() {
	n.mu.Lock()
	dl := n.downlink
	n.mu.Unlock()

	n.stats.downlink(dl)
	n.appLog.Info("Received package over LoRa")
	n.appLog.WithFields(logrus.Fields{
		"rssi": dl.RSSI,
		"snr":  dl.SNR,
		"port": dl.Port,
	}).Infof("Last RSSI %d", dl.RSSI)
	n.appLog.Info(fmt.Sprintf("% X", dl.Data))
}

func (n *Node) handleTxFinished() {
	n.mu.Lock()
	acked := n.acked
	n.mu.Unlock()

	if n.radioCfg.Mode == radio.ModeP2P {
		n.stats.txFinished()
		n.appLog.Info("P2P TX finished")
		return
	}
	if !n.radioCfg.Confirmed {
		n.stats.txFinished()
		n.appLog.Info("LPWAN TX cycle finished")
		return
	}

	n.stats.confirmed(acked)
	if acked {
		n.failures = 0
		n.stats.setFailures(n.failures)
		n.appLog.Info("LPWAN TX cycle finished ACK")
		return
	}

	n.failures++
	n.stats.setFailures(n.failures)
	n.appLog.WithField("failures", n.failures).Info("LPWAN TX cycle failed NAK")
	if n.failures == FailureThreshold {
		n.appLog.Error("Too many failed sendings, reset node")
		n.sleep(ResetDelay)
		n.resetter.ResetProcess()
		n.mu.Lock()
		n.resetFired = true
		n.mu.Unlock()
	}
}
