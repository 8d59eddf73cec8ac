// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"strings"
	"sync/atomic"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/battnode/internal/companion"
	"github.com/Thermoquad/battnode/internal/config"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		ms   uint64
		want string
	}{
		{0, "0 seconds"},
		{1000, "1 second"},
		{61000, "1 minute and 1 second"},
		{3600000, "1 hour"},
		{90061000, "1 day, 1 hour, 1 minute, and 1 second"},
		{172800000, "2 days"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.ms); got != tt.want {
			t.Errorf("formatUptime(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func newTestMonitor() (monitorModel, *companion.Buffer) {
	buf := companion.NewBuffer()
	var out atomic.Uint64
	return initialMonitorModel(config.Default(), buf, &out, nil), buf
}

func TestMonitor_EnterPushesLine(t *testing.T) {
	m, buf := newTestMonitor()
	m.input.SetValue("AT+BAT=?")

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(monitorModel)

	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}
	var got []byte
	for buf.Available() > 0 {
		b, err := buf.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte: %v", err)
		}
		got = append(got, b)
	}
	if string(got) != "AT+BAT=?\r\n" {
		t.Errorf("companion received %q", got)
	}
	if len(m.logLines) != 1 || m.logLines[0].message != "> AT+BAT=?" {
		t.Errorf("log lines = %+v", m.logLines)
	}
}

func TestMonitor_EnterIgnoresBlankLine(t *testing.T) {
	m, buf := newTestMonitor()
	m.input.SetValue("   ")

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(monitorModel)

	if buf.Available() != 0 {
		t.Errorf("blank line reached companion (%d bytes)", buf.Available())
	}
	if len(m.logLines) != 0 {
		t.Errorf("blank line logged: %+v", m.logLines)
	}
}

func TestMonitor_LogTrimmed(t *testing.T) {
	m, _ := newTestMonitor()
	m.maxLogEntries = 3

	for i := 0; i < 5; i++ {
		updated, _ := m.Update(logMsg{level: logrus.InfoLevel, tag: "APP", message: string(rune('a' + i))})
		m = updated.(monitorModel)
	}

	if len(m.logLines) != 3 {
		t.Fatalf("len(logLines) = %d, want 3", len(m.logLines))
	}
	if m.logLines[0].message != "c" || m.logLines[2].message != "e" {
		t.Errorf("kept %q..%q, want c..e", m.logLines[0].message, m.logLines[2].message)
	}
}

func TestMonitor_Quit(t *testing.T) {
	m, _ := newTestMonitor()

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(monitorModel)

	if !m.quitting {
		t.Error("quitting not set")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("command did not quit")
	}
}

func TestMonitor_ViewBeforeNode(t *testing.T) {
	m, _ := newTestMonitor()

	view := m.View()
	if !strings.Contains(view, "Starting node") {
		t.Error("view missing startup notice")
	}
	if !strings.Contains(view, "RAK-LP") {
		t.Error("view missing device name")
	}
}

func TestMonitor_ViewShowsMirrorDrops(t *testing.T) {
	buf := companion.NewBuffer()
	buf.SetConnected(false)
	hook := companion.NewMirrorHook(buf)
	defer hook.Close()
	var out atomic.Uint64
	m := initialMonitorModel(config.Default(), buf, &out, hook)

	if !strings.Contains(m.View(), "Log lines dropped:") {
		t.Error("view missing mirror drop counter")
	}
}
