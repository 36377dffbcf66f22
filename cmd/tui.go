// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pifarm/fieldlink/pkg/dispatch"
	"github.com/pifarm/fieldlink/pkg/linkproto"
	"github.com/pifarm/fieldlink/pkg/store"
)

// userSwitcher reads and replaces the current-user marker
type userSwitcher interface {
	store.UserDirectory
	store.UserMarker
}

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info and warnings
}

// Latest value per category
type lastReading struct {
	value     string
	user      string
	timestamp time.Time
	anomalous bool
}

// TUI model
type model struct {
	link          string
	storeName     string
	statsInterval int
	showAll       bool
	stats         *dispatch.Statistics
	users         userSwitcher
	eventLog      []eventLogEntry
	maxLogEntries int
	linkUp        bool
	linkSince     time.Time
	readings      map[linkproto.Category]lastReading
	currentUser   string
	input         textinput.Model
	editing       bool
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type resultMsg dispatch.Result
type linkMsg struct {
	up   bool
	info string
	err  error
}
type userMsg struct {
	user string
	err  error
	set  bool // true when the marker was just written
}

// formatDuration formats a duration as a human-friendly string
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}

	units := []struct {
		name string
		size time.Duration
	}{
		{"day", 24 * time.Hour},
		{"hour", time.Hour},
		{"minute", time.Minute},
		{"second", time.Second},
	}

	parts := []string{}
	for _, u := range units {
		n := d / u.size
		if n == 0 {
			continue
		}
		d -= n * u.size
		if n == 1 {
			parts = append(parts, "1 "+u.name)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
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

func initialModel(link, storeName string, statsInterval int, showAll bool, stats *dispatch.Statistics, users userSwitcher) model {
	input := textinput.New()
	input.Placeholder = "user id"
	input.Prompt = "New user: "
	input.CharLimit = 64

	return model{
		link:          link,
		storeName:     storeName,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         stats,
		users:         users,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		readings:      make(map[linkproto.Category]lastReading),
		input:         input,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
		m.loadUser(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) loadUser() tea.Cmd {
	users := m.users
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		user, err := users.CurrentUser(ctx)
		return userMsg{user: user, err: err}
	}
}

func (m model) setUser(id string) tea.Cmd {
	users := m.users
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := users.SetCurrentUser(ctx, id)
		return userMsg{user: id, err: err, set: true}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			return m.updateInput(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "u":
			m.editing = true
			m.input.SetValue("")
			return m, m.input.Focus()
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickCmd()

	case linkMsg:
		m.linkUp = msg.up
		switch {
		case msg.up:
			m.linkSince = time.Now()
			m.addLogEntry("Link open ("+msg.info+")", false)
		case msg.err != nil:
			m.addLogEntry(fmt.Sprintf("Link lost: %v", msg.err), true)
		}

	case userMsg:
		switch {
		case msg.err != nil && errors.Is(msg.err, store.ErrNoCurrentUser):
			m.currentUser = ""
		case msg.err != nil:
			m.addLogEntry(fmt.Sprintf("User lookup failed: %v", msg.err), true)
		default:
			m.currentUser = msg.user
			if msg.set {
				m.addLogEntry("Current user set to "+msg.user, false)
			}
		}

	case resultMsg:
		m.handleResult(dispatch.Result(msg))
	}

	return m, nil
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "esc":
		m.editing = false
		m.input.Blur()
		return m, nil
	case "enter":
		m.editing = false
		m.input.Blur()
		id := strings.TrimSpace(m.input.Value())
		if id == "" {
			return m, nil
		}
		return m, m.setUser(id)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) handleResult(res dispatch.Result) {
	switch res.Kind {
	case dispatch.KindTimeReply:
		if m.showAll {
			m.addLogEntry("Time request answered: "+string(res.Reply), false)
		}

	case dispatch.KindReading:
		m.readings[res.Category] = lastReading{
			value:     res.Value,
			user:      res.User,
			timestamp: res.At,
			anomalous: len(res.Anomalies) > 0,
		}
		m.currentUser = res.User
		label := strings.ToUpper(string(res.Category))
		for _, a := range res.Anomalies {
			m.addLogEntry(fmt.Sprintf("%s: %s", label, a.Message), false)
		}
		if m.showAll {
			m.addLogEntry(fmt.Sprintf("%s %s stored for %s", label, res.Value, res.User), false)
		}

	case dispatch.KindDiscarded:
		m.addLogEntry(fmt.Sprintf("DISCARDED: %v", res.Err), true)

	case dispatch.KindFailed:
		var userErr *dispatch.UserError
		if errors.As(res.Err, &userErr) {
			m.currentUser = ""
		}
		m.addLogEntry(fmt.Sprintf("FAILED: %v", res.Err), true)

	case dispatch.KindIgnored:
		if res.Err != nil && m.showAll {
			m.addLogEntry(fmt.Sprintf("Ignored byte 0x%02X", res.Byte), false)
		}
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
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
	s.WriteString(titleStyle.Render("FIELDLINK - LISTEN"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Store: %s | 'u' switch user, 'r' reset stats, 'q' quit",
		m.link, m.storeName)))
	s.WriteString("\n\n")

	// Link status
	if !m.linkUp {
		s.WriteString(warningStyle.Render("⏳ Waiting for link..."))
	} else {
		s.WriteString(statsValueStyle.Render("✓ Link up"))
		s.WriteString(headerStyle.Render(" for " + formatDuration(time.Since(m.linkSince))))
	}
	s.WriteString("\n")

	// Current user
	if m.editing {
		s.WriteString(m.input.View())
	} else if m.currentUser == "" {
		s.WriteString(statsLabelStyle.Render("User: "))
		s.WriteString(errorStyle.Render("none (readings will fail)"))
	} else {
		s.WriteString(statsLabelStyle.Render("User: "))
		s.WriteString(statsValueStyle.Render(m.currentUser))
	}
	s.WriteString("\n\n")

	// Statistics
	sum := m.stats.Summary()
	var readingPercent, errorPercent float64
	if sum.TotalEvents > 0 {
		readingPercent = float64(sum.Readings) * 100.0 / float64(sum.TotalEvents)
		errorPercent = float64(sum.Errors) * 100.0 / float64(sum.TotalEvents)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Events:"), statsValueStyle.Render(fmt.Sprintf("%d", sum.TotalEvents)),
		statsLabelStyle.Render("Readings:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", sum.Readings, readingPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", sum.Errors, errorPercent)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s",
		statsLabelStyle.Render("Time Replies:"), statsValueStyle.Render(fmt.Sprintf("%d", sum.TimeReplies)),
	))
	if sum.Discarded > 0 {
		statsContent.WriteString(fmt.Sprintf("   %s %s",
			statsLabelStyle.Render("Discarded:"), errorStyle.Render(fmt.Sprintf("%d", sum.Discarded)),
		))
	}
	if sum.AnomalousValues > 0 {
		statsContent.WriteString(fmt.Sprintf("   %s %s",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", sum.AnomalousValues)),
		))
	}
	statsContent.WriteString("\n")

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Event Rate:"), statsValueStyle.Render(fmt.Sprintf("%.2f events/s", sum.EventRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if sum.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.2f err/s", sum.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.2f err/s", sum.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Latest readings (only shown once one arrived)
	if len(m.readings) > 0 {
		s.WriteString(statsLabelStyle.Render("Latest Readings:"))
		s.WriteString("\n")

		readingContent := strings.Builder{}
		for _, category := range []linkproto.Category{linkproto.CategoryPh, linkproto.CategoryPpm} {
			r, ok := m.readings[category]
			if !ok {
				continue
			}
			value := statsValueStyle.Render(r.value)
			if r.anomalous {
				value = warningStyle.Render(r.value + " (anomalous)")
			}
			readingContent.WriteString(fmt.Sprintf("%s %s   %s\n",
				statsLabelStyle.Render(fmt.Sprintf("%-4s", strings.ToUpper(string(category))+":")),
				value,
				headerStyle.Render(fmt.Sprintf("%s, %s ago", r.user, formatDuration(time.Since(r.timestamp)))),
			))
		}

		s.WriteString(boxStyle.Render(strings.TrimSuffix(readingContent.String(), "\n")))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 18 // Reserve space for header, stats and readings
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
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
