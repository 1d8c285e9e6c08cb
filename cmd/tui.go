// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/exstat/pkg/exbus"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type model struct {
	connInfo      string
	monitor       *linkMonitor
	port          exbus.Port
	showAll       bool
	stats         exbus.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  uint64
	lastFrame     *exbus.Frame
	lastFrameAt   time.Time
	bar           progress.Model
	width         int
	height        int
	quitting      bool
	closed        bool
}

// Messages
type tickMsg time.Time
type linkReportMsg linkReport
type linkClosedMsg struct {
	err error
}

// formatElapsed formats a duration as a human-friendly string
func formatElapsed(d time.Duration) string {
	total := int64(d / time.Second)
	if total <= 0 {
		return "0 seconds"
	}

	days := total / 86400
	hours := total / 3600 % 24
	minutes := total / 60 % 60
	seconds := total % 60

	unit := func(n int64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, unit(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, unit(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, unit(minutes, "minute"))
	}
	if seconds > 0 {
		parts = append(parts, unit(seconds, "second"))
	}

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

// channelFraction maps a channel value onto the plausible pulse range
func channelFraction(us uint16) float64 {
	f := float64(int(us)-exbus.MinPlausibleUs) / float64(exbus.MaxPlausibleUs-exbus.MinPlausibleUs)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func initialModel(connInfo string, monitor *linkMonitor, port exbus.Port, showAll bool) model {
	return model{
		connInfo:      connInfo,
		monitor:       monitor,
		port:          port,
		showAll:       showAll,
		stats:         monitor.snapshot(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		width:  80,
		height: 24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		if !m.closed && m.monitor.checkHealth(m.port) {
			m.addLogEntry(fmt.Sprintf("No valid frame after %d junk bytes, trying %d baud",
				m.monitor.health.Threshold(), m.port.BaudRate()), false)
		}
		m.stats = m.monitor.snapshot()
		return m, tickCmd()

	case linkClosedMsg:
		m.closed = true
		m.addLogEntry(fmt.Sprintf("Connection closed: %v", msg.err), true)

	case linkReportMsg:
		m.handleReport(linkReport(msg))
	}

	return m, nil
}

func (m *model) handleReport(r linkReport) {
	if r.synced {
		m.synchronized = true
		m.invalidBytes = r.invalidBytes
		if r.invalidBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", r.invalidBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}
	}

	switch {
	case r.event.IsError():
		m.addLogEntry(exbus.FormatEvent(r.event, &r.frame), true)

	case r.event == exbus.EventFiltered:
		if m.showAll {
			m.addLogEntry(exbus.FormatEvent(r.event, &r.frame), false)
		}

	case r.event == exbus.EventFrame:
		frame := r.frame
		m.lastFrame = &frame
		m.lastFrameAt = r.timestamp

		if len(r.validation) > 0 {
			for _, err := range r.validation {
				m.addLogEntry(fmt.Sprintf("RC_DATA id=%d: %s", r.frame.PacketID(), err.Message), true)
			}
		} else if m.showAll {
			m.addLogEntry(fmt.Sprintf("RC_DATA id=%d (valid)", r.frame.PacketID()), false)
		}
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
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

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
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

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("EXSTAT - ERROR DETECTION"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Baud: %d | Mode: %s | Press 'q' to quit",
		m.connInfo, m.port.BaudRate(), func() string {
			if m.showAll {
				return "All frames"
			}
			return "Errors only"
		}())))
	s.WriteString("\n\n")

	// Sync status
	if !m.synchronized {
		s.WriteString(warningStyle.Render(fmt.Sprintf("⏳ Waiting for synchronization... (%d junk bytes)", m.stats.JunkBytes)))
		s.WriteString("\n\n")
	} else {
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
		s.WriteString("\n\n")
	}

	// Statistics
	var junkPercent float64
	if m.stats.TotalBytes > 0 {
		junkPercent = float64(m.stats.JunkBytes) * 100.0 / float64(m.stats.TotalBytes)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Bytes:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalBytes)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidFrames, m.stats.SuccessRate())),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.Errors())),
	))

	if m.stats.Errors() > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("CRC Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.CRCErrors)),
			statsLabelStyle.Render("Length Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.LengthErrors)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Junk:"), warningStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.JunkBytes, junkPercent)),
		statsLabelStyle.Render("Filtered:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.FilteredFrames)),
		statsLabelStyle.Render("Baud Retries:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.BaudRetries)),
	))

	if m.stats.AnomalousFrames > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.AnomalousFrames)),
			headerStyle.Render("short"), m.stats.ShortFrames,
			headerStyle.Render("sub-length"), m.stats.SubLengthErrors,
			headerStyle.Render("out of range"), m.stats.OutOfRange,
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s",
		statsLabelStyle.Render("Monitoring:"), headerStyle.Render(formatElapsed(time.Since(m.stats.StartTime))),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Channels (only shown once a frame arrived)
	if m.lastFrame != nil {
		s.WriteString(statsLabelStyle.Render(fmt.Sprintf("Latest Frame (id=%d, %s ago):",
			m.lastFrame.PacketID(), time.Since(m.lastFrameAt).Truncate(time.Millisecond))))
		s.WriteString("\n")

		channelContent := strings.Builder{}
		for i := 0; i < m.lastFrame.ChannelCount(); i++ {
			us := m.lastFrame.Channel(i)
			value := statsValueStyle.Render(fmt.Sprintf("%4d us", us))
			if us < exbus.MinPlausibleUs || us > exbus.MaxPlausibleUs {
				value = errorStyle.Render(fmt.Sprintf("%4d us", us))
			}
			channelContent.WriteString(fmt.Sprintf("%s %s %s\n",
				statsLabelStyle.Render(fmt.Sprintf("CH%-2d", i+1)), value, m.bar.ViewAs(channelFraction(us))))
		}

		s.WriteString(boxStyle.Render(strings.TrimSuffix(channelContent.String(), "\n")))
		s.WriteString("\n\n")
	}

	// Error log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 36
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
