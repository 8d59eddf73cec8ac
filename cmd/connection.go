// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/battnode/internal/config"
	"github.com/Thermoquad/battnode/internal/link"
)

// prompted holds an interactively entered password so reconnects don't ask again
var prompted string

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("BATTNODE_PASSWORD"); pw != "" {
		return pw, nil
	}
	if prompted != "" {
		return prompted, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		prompted = strings.TrimSpace(password)
		return prompted, nil
	}

	fmt.Fprintln(os.Stderr)
	prompted = string(passwordBytes)
	return prompted, nil
}

// OpenConnection opens the modem link described by the config
func OpenConnection(cfg *config.Config) (link.Connection, string, error) {
	m := cfg.Modem
	if m.URL != "" {
		password := ""
		if m.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := link.DialWebSocket(m.URL, m.Username, password, m.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", m.URL), nil
	}

	if m.Port != "" {
		conn, err := link.OpenSerial(m.Port, m.Baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", m.Port, m.Baud), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}
