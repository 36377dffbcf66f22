// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/pifarm/fieldlink/pkg/clock"
	"github.com/pifarm/fieldlink/pkg/config"
	"github.com/pifarm/fieldlink/pkg/dispatch"
	"github.com/pifarm/fieldlink/pkg/linkproto"
	"github.com/pifarm/fieldlink/pkg/moisture"
	"github.com/pifarm/fieldlink/pkg/store"
)

// ============================================================================
// Formatting
// ============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{90 * time.Second, "1 minute and 30 seconds"},
		{2*time.Hour + 5*time.Second, "2 hours and 5 seconds"},
		{26*time.Hour + 3*time.Minute + time.Second, "1 day, 2 hours, 3 minutes, and 1 second"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatCycle(t *testing.T) {
	cycle := moisture.Cycle{
		User:   "alice",
		Votes:  []moisture.Sample{0, 0, 0, 0, 0, 0, 1, 1, 1, 1},
		Sample: moisture.Dry,
		Pumped: true,
	}
	out := formatCycle(cycle, nil)
	for _, want := range []string{"User:     alice", "(4 wet of 10)", "Soil:     dry", "Pump:     ran"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	out = formatCycle(moisture.Cycle{}, errors.New("sensor gone"))
	if !strings.Contains(out, "User:     (none)") || !strings.Contains(out, "sensor gone") {
		t.Errorf("failure summary incomplete:\n%s", out)
	}
	if strings.Contains(out, "Pump:") {
		t.Errorf("failed cycle should not report the pump:\n%s", out)
	}
}

// ============================================================================
// Logger
// ============================================================================

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldlink.log")
	logger, closer, err := newLogger(config.LogConfig{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	defer closer.Close()

	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("formatter = %T, want JSON", logger.Formatter)
	}

	if _, _, err := newLogger(config.LogConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

// ============================================================================
// Terminal UI
// ============================================================================

func newTestModel(t *testing.T) (model, *store.Memory) {
	t.Helper()
	mem := store.NewMemory(clock.Fixed(time.Date(2024, 6, 10, 14, 40, 0, 0, time.UTC)))
	return initialModel("Serial: /dev/null @ 9600 baud", "memory", 0, true, dispatch.NewStatistics(), mem), mem
}

func TestModel_ReadingUpdatesView(t *testing.T) {
	m, _ := newTestModel(t)

	res := dispatch.Result{
		Kind:      dispatch.KindReading,
		Category:  linkproto.CategoryPh,
		Value:     "15.2",
		User:      "alice",
		At:        time.Now(),
		Anomalies: linkproto.ValidateValue(linkproto.CategoryPh, "15.2"),
	}
	updated, _ := m.Update(resultMsg(res))
	m = updated.(model)

	if m.currentUser != "alice" {
		t.Errorf("currentUser = %q, want alice", m.currentUser)
	}
	got, ok := m.readings[linkproto.CategoryPh]
	if !ok || got.value != "15.2" || !got.anomalous {
		t.Errorf("reading = %+v, want anomalous 15.2", got)
	}

	view := m.View()
	for _, want := range []string{"FIELDLINK - LISTEN", "Latest Readings:", "15.2 (anomalous)", "alice"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_FailureLogged(t *testing.T) {
	m, _ := newTestModel(t)
	m.currentUser = "alice"

	res := dispatch.Result{
		Kind: dispatch.KindFailed,
		Err:  &dispatch.UserError{Err: store.ErrNoCurrentUser},
	}
	updated, _ := m.Update(resultMsg(res))
	m = updated.(model)

	if m.currentUser != "" {
		t.Errorf("currentUser = %q, want cleared", m.currentUser)
	}
	if len(m.eventLog) != 1 || !m.eventLog[0].isError {
		t.Fatalf("eventLog = %+v, want one error entry", m.eventLog)
	}
}

func TestModel_SwitchUser(t *testing.T) {
	m, mem := newTestModel(t)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("u")})
	m = updated.(model)
	if !m.editing {
		t.Fatal("'u' should open the user input")
	}

	for _, r := range "bob" {
		updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = updated.(model)
	}
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(model)
	if m.editing {
		t.Error("enter should close the user input")
	}
	if cmd == nil {
		t.Fatal("enter should return a command that writes the marker")
	}

	msg := cmd()
	updated, _ = m.Update(msg)
	m = updated.(model)

	if m.currentUser != "bob" {
		t.Errorf("currentUser = %q, want bob", m.currentUser)
	}
	got, err := mem.CurrentUser(context.Background())
	if err != nil || got != "bob" {
		t.Errorf("store current user = %q, %v; want bob", got, err)
	}
}

func TestModel_NoCurrentUser(t *testing.T) {
	m, _ := newTestModel(t)

	msg := m.loadUser()()
	updated, _ := m.Update(msg)
	m = updated.(model)

	if m.currentUser != "" {
		t.Errorf("currentUser = %q, want empty", m.currentUser)
	}
	if len(m.eventLog) != 0 {
		t.Errorf("missing user should not be logged as an error: %+v", m.eventLog)
	}
	if !strings.Contains(m.View(), "none (readings will fail)") {
		t.Error("view should warn that no user is set")
	}
}
