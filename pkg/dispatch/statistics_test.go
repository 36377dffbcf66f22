// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispatch

import (
	"errors"
	"strings"
	"testing"

	"github.com/pifarm/fieldlink/pkg/linkproto"
	"github.com/pifarm/fieldlink/pkg/store"
)

func TestStatistics_Observe(t *testing.T) {
	s := NewStatistics()

	results := []Result{
		{Kind: KindIdle},
		{Kind: KindTimeReply},
		{Kind: KindReading, Category: linkproto.CategoryPh, Value: "4.00"},
		{Kind: KindReading, Category: linkproto.CategoryPpm, Value: "-3",
			Anomalies: linkproto.ValidateValue(linkproto.CategoryPpm, "-3")},
		{Kind: KindDiscarded, Err: &DecodeError{Signal: linkproto.SignalPh, Err: linkproto.ErrTagMismatch}},
		{Kind: KindIgnored, Byte: 'x'},
		{Kind: KindIgnored, Byte: 0xFF, Err: &DecodeError{Byte: 0xFF, Err: ErrInvalidByte}},
		{Kind: KindFailed, Err: &UserError{Err: store.ErrNoCurrentUser}},
		{Kind: KindFailed, Err: &StoreError{Err: errors.New("down")}},
	}
	for _, r := range results {
		s.Observe(r)
	}

	checks := []struct {
		name string
		got  uint64
		want uint64
	}{
		{"TotalEvents", s.TotalEvents, 6},
		{"TimeReplies", s.TimeReplies, 1},
		{"PhReadings", s.PhReadings, 1},
		{"PpmReadings", s.PpmReadings, 1},
		{"Discarded", s.Discarded, 1},
		{"IgnoredBytes", s.IgnoredBytes, 2},
		{"DecodeErrors", s.DecodeErrors, 2},
		{"UserErrors", s.UserErrors, 1},
		{"StoreErrors", s.StoreErrors, 1},
		{"AnomalousValues", s.AnomalousValues, 1},
		{"OutOfRange", s.OutOfRange, 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestStatistics_String(t *testing.T) {
	s := NewStatistics()
	s.Observe(Result{Kind: KindReading, Category: linkproto.CategoryPh})
	s.Observe(Result{Kind: KindTimeReply})

	out := s.String()
	for _, want := range []string{
		"=== Statistics",
		"Total Events:           2",
		"Readings Stored:        1 (50.0%)",
		"Time Replies:           1 (50.0%)",
		"Event Rate:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Store Errors") {
		t.Errorf("zero counters should be omitted:\n%s", out)
	}
}

func TestStatistics_Reset(t *testing.T) {
	s := NewStatistics()
	s.Observe(Result{Kind: KindTimeReply})
	s.Reset()

	if s.TotalEvents != 0 || s.TimeReplies != 0 {
		t.Errorf("counters not reset: %d events, %d replies", s.TotalEvents, s.TimeReplies)
	}
}

func TestStatistics_Summary(t *testing.T) {
	s := NewStatistics()
	s.Observe(Result{Kind: KindReading, Category: linkproto.CategoryPh})
	s.Observe(Result{Kind: KindReading, Category: linkproto.CategoryPpm})
	s.Observe(Result{Kind: KindFailed, Err: &StoreError{Err: errors.New("down")}})
	s.Observe(Result{Kind: KindIgnored, Byte: 0xFF, Err: &DecodeError{Byte: 0xFF, Err: ErrInvalidByte}})

	sum := s.Summary()
	if sum.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", sum.TotalEvents)
	}
	if sum.Readings != 2 {
		t.Errorf("Readings = %d, want 2", sum.Readings)
	}
	if sum.Errors != 2 {
		t.Errorf("Errors = %d, want 2", sum.Errors)
	}
	if sum.Elapsed < 0 {
		t.Errorf("Elapsed = %v, want non-negative", sum.Elapsed)
	}
}
