// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gpio abstracts the digital pins used by the moisture sensor and the
// pump relay. Pins are numbered BCM-style.
package gpio

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned for operations on a pin that has not been
	// configured or was already released
	ErrNotConfigured = errors.New("pin not configured")

	// ErrWrongDirection is returned when reading an output or writing an input
	ErrWrongDirection = errors.New("pin configured for the other direction")
)

// Level is a digital pin level
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// Direction is the pin mode
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Pins is the GPIO capability. Configure claims a pin and Release returns it
// to a safe input state.
type Pins interface {
	// Configure sets the pin direction. initial is driven immediately for
	// outputs and ignored for inputs.
	Configure(pin int, dir Direction, initial Level) error
	Read(pin int) (Level, error)
	Write(pin int, level Level) error
	Release(pin int) error
}

// Pin is a configured pin handed out by With
type Pin struct {
	pins Pins
	num  int
}

// Number returns the pin number
func (p *Pin) Number() int {
	return p.num
}

func (p *Pin) Read() (Level, error) {
	return p.pins.Read(p.num)
}

func (p *Pin) Write(level Level) error {
	return p.pins.Write(p.num, level)
}

// With configures a pin, runs fn and releases the pin on every path out of
// fn, including panics.
func With(pins Pins, num int, dir Direction, initial Level, fn func(*Pin) error) (err error) {
	if err := pins.Configure(num, dir, initial); err != nil {
		return fmt.Errorf("configure pin %d as %s: %w", num, dir, err)
	}
	defer func() {
		if rerr := pins.Release(num); rerr != nil && err == nil {
			err = fmt.Errorf("release pin %d: %w", num, rerr)
		}
	}()
	return fn(&Pin{pins: pins, num: num})
}
