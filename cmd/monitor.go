// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/battnode/internal/companion"
	"github.com/Thermoquad/battnode/internal/node"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the node with a live dashboard",
	Long: `Run the node like "run" inside a terminal UI.

The dashboard shows cycle and send counters, the confirmed-uplink failure
streak, join and downlink state, and recent log events. Lines typed into the
AT prompt are delivered to the node through its companion channel, exactly as
if a phone had sent them. Ctrl+S forces a sampling cycle.

Resets always restart the node here; use "run --exit-on-reset" to exit.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	addNodeFlags(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	// Entries reach the screen through the program, never stdout
	log.Out = io.Discard

	sup, err := newSupervisor(cfg, log)
	if err != nil {
		return err
	}

	buf := companion.NewBuffer()
	var companionOut atomic.Uint64
	buf.OnOutput(func(p []byte) { companionOut.Add(uint64(len(p))) })
	sup.attachCompanion(buf)

	p := tea.NewProgram(initialMonitorModel(cfg, buf, &companionOut, sup.mirror), tea.WithAltScreen())
	log.AddHook(&teaHook{p: p})
	sup.onNode = func(n *node.Node, info string) {
		p.Send(nodeStartedMsg{node: n, info: info})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		err := sup.Run(ctx, false)
		p.Send(supervisorDoneMsg{err: err})
		done <- err
	}()

	_, runErr := p.Run()
	cancel()
	supErr := <-done
	sup.Close()

	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return supErr
}
