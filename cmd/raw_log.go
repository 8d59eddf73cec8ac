// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/battnode/internal/link"
	"github.com/Thermoquad/battnode/pkg/lpp"
	"github.com/Thermoquad/battnode/pkg/nodelink"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display nodelink frames in human-readable format",
	Long: `Continuously decode and display nodelink frames as they arrive.

Each frame is shown with timestamp, message type, DevEUI and decoded payload.
Uplink data carried by SEND_MANAGED and SEND_P2P is additionally decoded as
Cayenne LPP, and frames failing validation are flagged.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn, connInfo, err := OpenConnection(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("battnode - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := nodelink.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, link.ErrConnectionClosed) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			packet, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if packet != nil {
				printFrame(packet)
			}
		}
	}
}

func printFrame(packet *nodelink.Packet) {
	fmt.Print(nodelink.FormatPacket(packet))

	for _, anomaly := range nodelink.ValidatePacket(packet) {
		fmt.Printf("  \033[1;33mWARNING:\033[0m %s\n", anomaly.Message)
	}

	switch packet.Type() {
	case nodelink.MsgSendManaged, nodelink.MsgSendP2P:
		data, ok := nodelink.GetMapBytes(packet.PayloadMap(), 0)
		if !ok {
			return
		}
		fields, err := lpp.Decode(data)
		for _, f := range fields {
			fmt.Printf("  LPP ch%d %s: %g\n", f.Channel, lpp.TypeName(f.Type), f.Value)
		}
		if err != nil {
			fmt.Printf("  LPP decode: %v\n", err)
		}
	}
}
