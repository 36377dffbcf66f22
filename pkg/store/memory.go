// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"context"
	"sync"
	"time"

	"github.com/pifarm/fieldlink/pkg/clock"
	"github.com/pifarm/fieldlink/pkg/linkproto"
)

// Memory is an in-process Backend for dry runs and tests
type Memory struct {
	mu       sync.Mutex
	clock    clock.Clock
	last     time.Time
	readings []Reading
	watered  []Watering
	markers  []userMarker
	failNext error
}

type userMarker struct {
	user string
	at   time.Time
}

// NewMemory creates an empty store. A nil clock uses the system clock.
func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.System{}
	}
	return &Memory{clock: clk}
}

// stamp returns a strictly increasing timestamp so ordering by time matches
// write order even with a frozen clock
func (m *Memory) stamp() time.Time {
	now := m.clock.Now()
	if !now.After(m.last) {
		now = m.last.Add(time.Nanosecond)
	}
	m.last = now
	return now
}

// FailNext makes the next write return err
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *Memory) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *Memory) CurrentUser(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.markers) == 0 {
		return "", ErrNoCurrentUser
	}
	latest := m.markers[0]
	for _, mk := range m.markers[1:] {
		if mk.at.After(latest.at) {
			latest = mk
		}
	}
	return latest.user, nil
}

func (m *Memory) SetCurrentUser(ctx context.Context, userID string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.markers = append(m.markers, userMarker{user: userID, at: m.stamp()})
	return nil
}

func (m *Memory) AppendReading(ctx context.Context, userID string, category linkproto.Category, value string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.readings = append(m.readings, Reading{
		User:     userID,
		Category: category,
		Value:    value,
		Time:     m.stamp(),
	})
	return nil
}

func (m *Memory) MarkWatered(ctx context.Context, userID string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.watered = append(m.watered, Watering{User: userID, Time: m.stamp()})
	return nil
}

// Readings returns all stored readings in write order
func (m *Memory) Readings() []Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Reading, len(m.readings))
	copy(out, m.readings)
	return out
}

// ReadingsFor returns the readings of one user and category in write order
func (m *Memory) ReadingsFor(userID string, category linkproto.Category) []Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reading
	for _, r := range m.readings {
		if r.User == userID && r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// Waterings returns all "last watered" markers in write order
func (m *Memory) Waterings() []Watering {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Watering, len(m.watered))
	copy(out, m.watered)
	return out
}

func (m *Memory) Close() error {
	return nil
}
