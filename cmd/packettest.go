// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/battnode/internal/config"
	"github.com/Thermoquad/battnode/pkg/nodelink"
)

var (
	packetTestTimeout int
	packetTestPing    bool
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test the modem link by waiting for a valid nodelink frame",
	Long: `Wait for a valid nodelink frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
frame (passing CRC check), ignoring invalid bytes. A PING_REQUEST is sent
first so an idle modem answers; use --ping=false to only listen.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	packetTestCmd.Flags().BoolVar(&packetTestPing, "ping", true, "Send a PING_REQUEST before listening")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	conn, connInfo, err := OpenConnection(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("battnode - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)

	if packetTestPing {
		if err := sendPing(conn, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}
	}
	fmt.Printf("Waiting for valid nodelink frame...\n\n")

	decoder := nodelink.NewDecoder()
	buf := make([]byte, 128)

	packetChan := make(chan *nodelink.Packet, 1)
	errChan := make(chan error, 1)

	go func() {
		invalidBytes := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				packet, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					invalidBytes++
					continue
				}
				if packet != nil {
					if invalidBytes > 0 {
						fmt.Printf("(skipped %d invalid bytes before sync)\n", invalidBytes)
					}
					packetChan <- packet
					return
				}
			}
		}
	}()

	select {
	case packet := <-packetChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%02X)\n", nodelink.FormatMessageType(packet.Type()), packet.Type())
		fmt.Printf("  Address: 0x%016X\n", packet.Address())
		fmt.Printf("  Length: %d bytes\n", packet.Length())
		fmt.Printf("  CRC: 0x%04X\n", packet.CRC())
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}

func sendPing(conn io.Writer, cfg *config.Config) error {
	devEUI, err := cfg.DevEUIValue()
	if err != nil {
		return err
	}
	_, err = conn.Write(nodelink.EncodePacket(nodelink.NewPingRequest(devEUI)))
	return err
}
