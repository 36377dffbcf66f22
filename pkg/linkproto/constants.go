// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package linkproto implements the host side of the fieldlink serial protocol.
//
// The microcontroller announces each exchange with a single control byte. A time
// request is answered immediately by the host; a pH or PPM control byte is
// followed by one newline-terminated payload line of the form "<tag>:<value>".
// This package provides signal decoding, payload line parsing, the time reply
// encoding, a byte-at-a-time stream decoder and value validation.
package linkproto

// Control bytes sent by the microcontroller
const (
	SignalTimeRequest Signal = '$' // 0x24
	SignalPh          Signal = '#' // 0x23
	SignalPpm         Signal = '&' // 0x26
)

// Framing
const (
	LineTerminator  = '\n'
	TagSeparator    = ':'
	TimeReplyPrefix = 'T'

	// MaxLineLength bounds a payload line including its terminator. The
	// microcontroller never sends more than a tag and a short decimal.
	MaxLineLength = 64
)

// Payload tags
const (
	TagPh  = "ph"
	TagPpm = "ppm"
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLine
)
