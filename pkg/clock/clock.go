// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package clock provides the time source used to answer time requests and
// stamp records.
package clock

import "time"

// Clock returns the current instant
type Clock interface {
	Now() time.Time
}

// System reads the host clock.
//
// With LocalAsUTC set, the local wall-clock reading is relabelled as UTC before
// conversion to epoch time. Boards that were flashed against hosts using that
// convention expect the shifted epoch.
type System struct {
	LocalAsUTC bool
}

// Now returns the current time in UTC
func (s System) Now() time.Time {
	now := time.Now()
	if !s.LocalAsUTC {
		return now.UTC()
	}
	_, offset := now.Zone()
	return now.Add(time.Duration(offset) * time.Second).UTC()
}

// Func adapts a function to the Clock interface
type Func func() time.Time

// Now calls f
func (f Func) Now() time.Time {
	return f()
}

// Fixed returns a clock that always reports t
func Fixed(t time.Time) Clock {
	return Func(func() time.Time { return t })
}
