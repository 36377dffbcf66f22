// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkproto

import "fmt"

// Signal is a control byte on the link
type Signal byte

// Category names a reading stream in the store
type Category string

// Reading categories
const (
	CategoryPh       Category = TagPh
	CategoryPpm      Category = TagPpm
	CategoryMoisture Category = "moisture"
)

// DecodeSignal maps a raw byte to a known control signal.
// The second return value is false for every byte that is not a control byte.
func DecodeSignal(b byte) (Signal, bool) {
	switch s := Signal(b); s {
	case SignalTimeRequest, SignalPh, SignalPpm:
		return s, true
	default:
		return 0, false
	}
}

// ExpectsLine reports whether a payload line follows the signal
func (s Signal) ExpectsLine() bool {
	return s == SignalPh || s == SignalPpm
}

// Tag returns the payload tag announced by the signal, or "" if none
func (s Signal) Tag() string {
	switch s {
	case SignalPh:
		return TagPh
	case SignalPpm:
		return TagPpm
	default:
		return ""
	}
}

// Category returns the reading category announced by the signal
func (s Signal) Category() Category {
	return Category(s.Tag())
}

// Prefix returns the expected payload line prefix, e.g. "ph:"
func (s Signal) Prefix() string {
	if tag := s.Tag(); tag != "" {
		return tag + string(TagSeparator)
	}
	return ""
}

// String returns the protocol name of the signal
func (s Signal) String() string {
	switch s {
	case SignalTimeRequest:
		return "TIME_REQUEST"
	case SignalPh:
		return "PH_READING"
	case SignalPpm:
		return "PPM_READING"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(s))
	}
}
