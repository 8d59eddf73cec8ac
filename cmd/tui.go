// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/battnode/internal/companion"
	"github.com/Thermoquad/battnode/internal/config"
	"github.com/Thermoquad/battnode/internal/node"
)

// Log entry shown in the events pane
type logLine struct {
	timestamp time.Time
	level     logrus.Level
	tag       string
	message   string
}

// TUI model
type monitorModel struct {
	cfg           *config.Config
	node          *node.Node
	transportInfo string
	generation    int
	snapshot      node.Snapshot

	input        textinput.Model
	companion    *companion.Buffer
	companionOut *atomic.Uint64
	mirror       *companion.MirrorHook

	logLines      []logLine
	maxLogEntries int
	width         int
	height        int
	quitting      bool
	supervisorErr error
}

// Messages
type tickMsg time.Time
type logMsg logLine
type nodeStartedMsg struct {
	node *node.Node
	info string
}
type supervisorDoneMsg struct {
	err error
}

// teaHook forwards log entries into the running program
type teaHook struct {
	p *tea.Program
}

func (h *teaHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *teaHook) Fire(entry *logrus.Entry) error {
	tag, _ := entry.Data["tag"].(string)
	msg := entry.Message
	if err, ok := entry.Data[logrus.ErrorKey].(error); ok {
		msg += ": " + err.Error()
	}
	h.p.Send(logMsg{
		timestamp: entry.Time,
		level:     entry.Level,
		tag:       tag,
		message:   msg,
	})
	return nil
}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialMonitorModel(cfg *config.Config, buf *companion.Buffer, out *atomic.Uint64, mirror *companion.MirrorHook) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "AT+BAT=?"
	ti.Prompt = "AT> "
	ti.CharLimit = companion.MaxLineLength
	ti.Width = 40
	ti.Focus()

	return monitorModel{
		cfg:           cfg,
		input:         ti,
		companion:     buf,
		companionOut:  out,
		mirror:        mirror,
		logLines:      make([]logLine, 0),
		maxLogEntries: 200,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), textinput.Blink)
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "ctrl+s":
			if m.node != nil {
				m.node.Trigger()
			}
			return m, nil
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line != "" {
				m.addLogLine(logrus.InfoLevel, "AT", "> "+line)
				m.companion.Push([]byte(line + "\r\n"))
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		if m.node != nil {
			m.snapshot = m.node.Stats()
		}
		return m, tickCmd()

	case logMsg:
		m.logLines = append(m.logLines, logLine(msg))
		m.trimLog()
		return m, nil

	case nodeStartedMsg:
		m.node = msg.node
		m.transportInfo = msg.info
		m.generation++
		m.snapshot = msg.node.Stats()
		return m, nil

	case supervisorDoneMsg:
		m.supervisorErr = msg.err
		if msg.err != nil {
			m.addLogLine(logrus.ErrorLevel, "APP", "Node stopped: "+msg.err.Error())
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *monitorModel) addLogLine(level logrus.Level, tag, message string) {
	m.logLines = append(m.logLines, logLine{
		timestamp: time.Now(),
		level:     level,
		tag:       tag,
		message:   message,
	})
	m.trimLog()
}

// trimLog keeps only the last maxLogEntries lines
func (m *monitorModel) trimLog() {
	if len(m.logLines) > m.maxLogEntries {
		m.logLines = m.logLines[len(m.logLines)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("BATTNODE - " + m.cfg.DeviceName))
	s.WriteString("\n")
	mode := m.cfg.Radio.Mode
	if m.cfg.Radio.Confirmed && mode != "p2p" {
		mode += " (confirmed)"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("Mode: %s | Interval: %s | %s | Ctrl+S sample now, Enter send line, Esc quit",
		mode, m.cfg.SendInterval(), m.transportInfo)))
	s.WriteString("\n\n")

	if m.node == nil {
		s.WriteString(warningStyle.Render("⏳ Starting node..."))
		s.WriteString("\n\n")
	}

	snap := m.snapshot
	stats := strings.Builder{}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Cycles:"), valueStyle.Render(fmt.Sprintf("%d", snap.Cycles)),
		labelStyle.Render("Battery:"), valueStyle.Render(fmt.Sprintf("%.2f V", snap.LastVolts)),
		labelStyle.Render("Payload:"), valueStyle.Render(fmt.Sprintf("% X", snap.LastPayload)),
	))

	if m.cfg.Radio.Mode == "p2p" {
		stats.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			labelStyle.Render("P2P Sent:"), valueStyle.Render(fmt.Sprintf("%d", snap.P2PSent)),
			labelStyle.Render("TX Finished:"), valueStyle.Render(fmt.Sprintf("%d", snap.TxFinished)),
		))
	} else {
		stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
			labelStyle.Render("Enqueued:"), valueStyle.Render(fmt.Sprintf("%d", snap.Accepted)),
			labelStyle.Render("Busy:"), warningStyle.Render(fmt.Sprintf("%d", snap.Busy)),
			labelStyle.Render("Too Large:"), warningStyle.Render(fmt.Sprintf("%d", snap.TooLarge)),
			labelStyle.Render("Skipped:"), warningStyle.Render(fmt.Sprintf("%d", snap.Skipped)),
		))
		if m.cfg.Radio.Confirmed {
			streak := valueStyle
			if snap.Failures >= node.FailureThreshold/2 {
				streak = errorStyle
			}
			stats.WriteString(fmt.Sprintf("%s %s   %s %s\n",
				labelStyle.Render("ACK/NAK:"), valueStyle.Render(fmt.Sprintf("%d/%d (%.1f%%)", snap.Acks, snap.Naks, snap.AckRate())),
				labelStyle.Render("Failure Streak:"), streak.Render(fmt.Sprintf("%d/%d", snap.Failures, node.FailureThreshold)),
			))
		}
		stats.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			labelStyle.Render("Joins:"), valueStyle.Render(fmt.Sprintf("%d ok", snap.JoinsOK)),
			labelStyle.Render("Failed:"), errorStyle.Render(fmt.Sprintf("%d", snap.JoinsFailed)),
		))
	}

	stats.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Downlinks:"), valueStyle.Render(fmt.Sprintf("%d", snap.Downlinks))))
	if snap.Downlinks > 0 {
		dl := snap.LastDownlink
		stats.WriteString(headerStyle.Render(fmt.Sprintf(" (last: port %d, RSSI %d, SNR %d)", dl.Port, dl.RSSI, dl.SNR)))
	}
	stats.WriteString("\n")

	var mirrorDropped uint64
	if m.mirror != nil {
		mirrorDropped = m.mirror.Dropped()
	}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("Companion in/out:"), valueStyle.Render(fmt.Sprintf("%d/%d bytes", snap.CompanionIn, m.companionOut.Load())),
		labelStyle.Render("Log lines dropped:"), warningStyle.Render(fmt.Sprintf("%d", mirrorDropped)),
		labelStyle.Render("Resets:"), valueStyle.Render(fmt.Sprintf("%d", max(m.generation-1, 0))),
		labelStyle.Render("Uptime:"), valueStyle.Render(formatUptime(uint64(time.Since(snap.StartTime).Milliseconds()))),
	))

	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Reserve space for header, stats and input
	logHeight := m.height - 18
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.logLines) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.logLines) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.logLines); i++ {
			entry := m.logLines[i]
			style := valueStyle
			switch {
			case entry.level <= logrus.ErrorLevel:
				style = errorStyle
			case entry.level == logrus.WarnLevel:
				style = warningStyle
			case entry.level >= logrus.DebugLevel:
				style = headerStyle
			}
			logContent.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				labelStyle.Render(fmt.Sprintf("[%-4s]", entry.tag)),
				style.Render(entry.message),
			))
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))
	s.WriteString("\n")
	s.WriteString(m.input.View())

	return s.String()
}
