// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/battnode/internal/radio"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the modem link with PING_REQUEST",
	Long: `Send PING_REQUEST frames to the radio modem and wait for PING_RESPONSE.

Works over a serial modem or a WebSocket bridge such as "battnode netsim".
The modem answers locally with its uptime; nothing is transmitted over the air.

This is useful for verifying:
  - The serial port or WebSocket connection is established
  - HTTP Basic authentication works
  - The modem is decoding frames addressed to this DevEUI

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}

	devEUI, err := cfg.DevEUIValue()
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	modem := radio.NewModem(conn, devEUI, log.WithField("node", cfg.DeviceName))
	defer modem.Close()

	fmt.Printf("Battnode - Modem Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("DevEUI: %016X\n", devEUI)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0

	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(pingTimeout)*time.Second)
		startTime := time.Now()
		uptime, err := modem.Ping(ctx)
		cancel()

		switch {
		case err == nil:
			rtt := time.Since(startTime)
			fmt.Printf("PONG from modem, uptime=%s, rtt=%v\n",
				formatUptime(uint64(uptime.Milliseconds())), rtt.Round(time.Millisecond))
			successCount++
		case err == context.DeadlineExceeded:
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", err)
			log.WithError(err).WithField("tag", "LINK").Debug("Ping failed")
			failCount++
		}

		if err == radio.ErrLinkClosed {
			failCount += pingCount - i
			break
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
