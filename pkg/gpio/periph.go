// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gpio

import (
	"fmt"
	"sync"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Host drives the board's pins through periph.io
type Host struct {
	mu   sync.Mutex
	pins map[int]configured
}

type configured struct {
	pin pgpio.PinIO
	dir Direction
}

// NewHost initializes the periph host drivers
func NewHost() (*Host, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}
	return &Host{pins: make(map[int]configured)}, nil
}

func toPeriph(l Level) pgpio.Level {
	if l {
		return pgpio.High
	}
	return pgpio.Low
}

func (h *Host) Configure(num int, dir Direction, initial Level) error {
	name := fmt.Sprintf("GPIO%d", num)
	p := gpioreg.ByName(name)
	if p == nil {
		return fmt.Errorf("failed to find pin '%s'", name)
	}

	var err error
	if dir == Output {
		err = p.Out(toPeriph(initial))
	} else {
		err = p.In(pgpio.PullNoChange, pgpio.NoEdge)
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.pins[num] = configured{pin: p, dir: dir}
	h.mu.Unlock()
	return nil
}

func (h *Host) lookup(num int, want Direction) (pgpio.PinIO, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.pins[num]
	if !ok {
		return nil, fmt.Errorf("GPIO%d: %w", num, ErrNotConfigured)
	}
	if c.dir != want {
		return nil, fmt.Errorf("GPIO%d is an %s: %w", num, c.dir, ErrWrongDirection)
	}
	return c.pin, nil
}

func (h *Host) Read(num int) (Level, error) {
	p, err := h.lookup(num, Input)
	if err != nil {
		return Low, err
	}
	return Level(p.Read() == pgpio.High), nil
}

func (h *Host) Write(num int, level Level) error {
	p, err := h.lookup(num, Output)
	if err != nil {
		return err
	}
	return p.Out(toPeriph(level))
}

// Release halts the pin and leaves it as a floating input
func (h *Host) Release(num int) error {
	h.mu.Lock()
	c, ok := h.pins[num]
	delete(h.pins, num)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("GPIO%d: %w", num, ErrNotConfigured)
	}

	if err := c.pin.Halt(); err != nil {
		return err
	}
	return c.pin.In(pgpio.PullNoChange, pgpio.NoEdge)
}
