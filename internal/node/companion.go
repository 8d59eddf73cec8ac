// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import "github.com/Thermoquad/battnode/internal/event"

// handleCompanion drains the companion channel into the interpreter, one byte
// per PacingDelay, and terminates the batch with a newline
func (n *Node) handleCompanion() {
	if n.companion == nil {
		return
	}
	if !n.events.Test(event.InboundBytes) {
		return
	}
	n.events.Clear(event.InboundBytes)
	if !n.companion.Connected() {
		n.atLog.Debug("Companion disconnected, input held")
		return
	}
	n.atLog.Info("Companion data received")

	count := 0
	for n.companion.Available() > 0 {
		b, err := n.companion.ReadByte()
		if err != nil {
			break
		}
		n.interp.Feed(b)
		count++
		n.sleep(PacingDelay)
	}
	n.interp.Feed('\n')
	n.stats.companionBytes(count)
}
