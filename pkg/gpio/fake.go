// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gpio

import (
	"fmt"
	"sync"
)

// WriteEvent records one output level change on a Fake
type WriteEvent struct {
	Pin   int
	Level Level
}

// Fake is an in-memory Pins for dry runs and tests. Reads return queued
// levels first, then the pin's steady level.
type Fake struct {
	mu        sync.Mutex
	dirs      map[int]Direction
	levels    map[int]Level
	queued    map[int][]Level
	writes    []WriteEvent
	releases  map[int]int
	configErr error
	readErr   error
}

// NewFake creates a Fake with every pin reading HIGH
func NewFake() *Fake {
	return &Fake{
		dirs:     make(map[int]Direction),
		levels:   make(map[int]Level),
		queued:   make(map[int][]Level),
		releases: make(map[int]int),
	}
}

// QueueReads appends levels returned by the next reads of pin
func (f *Fake) QueueReads(pin int, levels ...Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[pin] = append(f.queued[pin], levels...)
}

// SetLevel sets the steady level of pin
func (f *Fake) SetLevel(pin int, level Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[pin] = level
}

// FailConfigure makes every Configure call fail with err
func (f *Fake) FailConfigure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configErr = err
}

// FailReads makes every Read call fail with err
func (f *Fake) FailReads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

// Writes returns the output history
func (f *Fake) Writes() []WriteEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]WriteEvent, len(f.writes))
	copy(out, f.writes)
	return out
}

// Configured reports whether pin is currently claimed
func (f *Fake) Configured(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.dirs[pin]
	return ok
}

// Releases returns how often pin was released
func (f *Fake) Releases(pin int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases[pin]
}

// Level returns the current level of pin
func (f *Fake) Level(pin int) Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.levels[pin]; ok {
		return l
	}
	return High
}

func (f *Fake) Configure(pin int, dir Direction, initial Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configErr != nil {
		return f.configErr
	}
	f.dirs[pin] = dir
	if dir == Output {
		f.levels[pin] = initial
		f.writes = append(f.writes, WriteEvent{Pin: pin, Level: initial})
	}
	return nil
}

func (f *Fake) Read(pin int) (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dir, ok := f.dirs[pin]
	if !ok {
		return Low, fmt.Errorf("pin %d: %w", pin, ErrNotConfigured)
	}
	if dir != Input {
		return Low, fmt.Errorf("pin %d: %w", pin, ErrWrongDirection)
	}
	if f.readErr != nil {
		return Low, f.readErr
	}
	if q := f.queued[pin]; len(q) > 0 {
		f.queued[pin] = q[1:]
		return q[0], nil
	}
	if l, ok := f.levels[pin]; ok {
		return l, nil
	}
	return High, nil
}

func (f *Fake) Write(pin int, level Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	dir, ok := f.dirs[pin]
	if !ok {
		return fmt.Errorf("pin %d: %w", pin, ErrNotConfigured)
	}
	if dir != Output {
		return fmt.Errorf("pin %d: %w", pin, ErrWrongDirection)
	}
	f.levels[pin] = level
	f.writes = append(f.writes, WriteEvent{Pin: pin, Level: level})
	return nil
}

func (f *Fake) Release(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.dirs[pin]; !ok {
		return fmt.Errorf("pin %d: %w", pin, ErrNotConfigured)
	}
	delete(f.dirs, pin)
	f.releases[pin]++
	return nil
}
