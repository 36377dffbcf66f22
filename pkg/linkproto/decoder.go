// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkproto

import "fmt"

// Decoder is a passive, byte-at-a-time decoder for the microcontroller's side
// of the link. It never writes and is used where the stream is only observed
// (logging, probing). The dispatcher reads the channel directly instead.
type Decoder struct {
	state  int
	signal Signal
	line   []byte
}

// NewDecoder creates a new stream decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state: stateIdle,
		line:  make([]byte, 0, MaxLineLength),
	}
}

// Reset returns the decoder to idle, dropping any partial line
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.signal = 0
	d.line = d.line[:0]
}

// Pending returns true while the decoder is waiting for a payload line
func (d *Decoder) Pending() bool {
	return d.state == stateLine
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the exchange is incomplete.
// Returns an error if the payload line is rejected; the decoder is idle again
// afterwards.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case stateIdle:
		sig, ok := DecodeSignal(b)
		if !ok {
			// Not a control byte
			return nil, nil
		}
		if !sig.ExpectsLine() {
			return NewFrame(sig, "", []byte{b}), nil
		}
		d.signal = sig
		d.line = d.line[:0]
		d.state = stateLine
		return nil, nil

	case stateLine:
		d.line = append(d.line, b)
		if b != LineTerminator {
			if len(d.line) >= MaxLineLength {
				sig := d.signal
				d.Reset()
				return nil, fmt.Errorf("%s line exceeds %d bytes", sig, MaxLineLength)
			}
			return nil, nil
		}

		sig := d.signal
		line := append([]byte(nil), d.line...)
		d.Reset()

		value, err := ParsePayloadLine(sig, line)
		if err != nil {
			return nil, err
		}
		raw := append([]byte{byte(sig)}, line...)
		return NewFrame(sig, value, raw), nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}
