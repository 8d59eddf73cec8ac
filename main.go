// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Battnode - Battery Sensor Node
//
// Samples a battery voltage on a fixed interval and reports it as a
// Cayenne LPP payload through a LoRaWAN or P2P radio modem.

package main

import (
	"os"

	"github.com/Thermoquad/battnode/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
