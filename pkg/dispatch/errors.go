// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispatch

import (
	"errors"
	"fmt"

	"github.com/pifarm/fieldlink/pkg/linkproto"
)

// ErrInvalidByte marks a control byte that is not valid UTF-8 on its own
var ErrInvalidByte = errors.New("byte is not valid UTF-8")

// DecodeError reports bytes that could not be turned into an event: an
// undecodable control byte, a line that timed out or overflowed, or a payload
// line that failed to parse. The input is discarded.
type DecodeError struct {
	Signal linkproto.Signal
	Byte   byte
	Line   []byte
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Line != nil {
		return fmt.Sprintf("decode %s line %q: %v", e.Signal, e.Line, e.Err)
	}
	if e.Signal != 0 {
		return fmt.Sprintf("decode %s: %v", e.Signal, e.Err)
	}
	return fmt.Sprintf("decode byte 0x%02X: %v", e.Byte, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// UserError reports a failed current-user lookup. The reading is still
// forwarded with an empty user id; WriteErr holds the resulting sink error.
type UserError struct {
	Err      error
	WriteErr error
}

func (e *UserError) Error() string {
	if e.WriteErr != nil {
		return fmt.Sprintf("resolve current user: %v (write: %v)", e.Err, e.WriteErr)
	}
	return fmt.Sprintf("resolve current user: %v", e.Err)
}

func (e *UserError) Unwrap() []error {
	if e.WriteErr != nil {
		return []error{e.Err, e.WriteErr}
	}
	return []error{e.Err}
}

// StoreError reports a sink write that failed. The reading is dropped.
type StoreError struct {
	User     string
	Category linkproto.Category
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s reading for %q: %v", e.Category, e.User, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ChannelError reports a serial channel failure
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
