// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkproto

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInvalidEncoding is returned for payload lines that are not valid UTF-8
	ErrInvalidEncoding = errors.New("invalid payload encoding")

	// ErrTagMismatch is returned when a line does not start with the tag
	// announced by the preceding control byte
	ErrTagMismatch = errors.New("payload tag mismatch")

	// ErrNoTag is returned when parsing a line for a signal that carries no payload
	ErrNoTag = errors.New("signal carries no payload")
)

// ParsePayloadLine validates a payload line against the signal that announced it
// and returns the raw value text.
//
// The prefix check runs on the line exactly as received. The value is
// everything after the first separator with surrounding whitespace (including
// the line terminator) removed. No numeric conversion is applied.
func ParsePayloadLine(sig Signal, line []byte) (string, error) {
	prefix := sig.Prefix()
	if prefix == "" {
		return "", fmt.Errorf("%w: %s", ErrNoTag, sig)
	}

	if !utf8.Valid(line) {
		return "", fmt.Errorf("%w: %q", ErrInvalidEncoding, line)
	}

	text := string(line)
	if !strings.HasPrefix(text, prefix) {
		return "", fmt.Errorf("%w: expected %q, got %q", ErrTagMismatch, prefix, strings.TrimSpace(text))
	}

	_, value, _ := strings.Cut(text, string(TagSeparator))
	return strings.TrimSpace(value), nil
}

// FormatPayloadLine builds the line the microcontroller sends for a reading.
// Used by tests and link simulators.
func FormatPayloadLine(sig Signal, value string) []byte {
	return []byte(sig.Prefix() + value + string(LineTerminator))
}
