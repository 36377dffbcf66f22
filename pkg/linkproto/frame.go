// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkproto

import "time"

// Frame is one complete exchange decoded from the microcontroller's byte stream
type Frame struct {
	signal    Signal
	value     string
	raw       []byte // Control byte plus payload line, as received
	timestamp time.Time
}

// NewFrame creates a frame for the given signal and value
func NewFrame(sig Signal, value string, raw []byte) *Frame {
	return &Frame{
		signal:    sig,
		value:     value,
		raw:       raw,
		timestamp: time.Now(),
	}
}

// Signal returns the control byte that opened the exchange
func (f *Frame) Signal() Signal {
	return f.signal
}

// Category returns the reading category, empty for time requests
func (f *Frame) Category() Category {
	return f.signal.Category()
}

// Value returns the raw value text of a reading frame
func (f *Frame) Value() string {
	return f.value
}

// Raw returns the bytes that made up the frame
func (f *Frame) Raw() []byte {
	return f.raw
}

// Timestamp returns the decode timestamp
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// IsReading returns true if the frame carries a sensor value
func (f *Frame) IsReading() bool {
	return f.signal.ExpectsLine()
}
