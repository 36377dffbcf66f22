// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package serialchan turns a byte connection to the microcontroller (a serial
// port or a serial-over-WebSocket bridge) into a channel with a non-blocking
// availability check, single byte reads and line reads.
package serialchan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pifarm/fieldlink/pkg/linkproto"
)

var (
	// ErrClosed is returned once the underlying connection has failed or been
	// closed. It wraps io.EOF.
	ErrClosed = fmt.Errorf("serial channel closed: %w", io.EOF)

	// ErrLineTimeout is returned when no line terminator arrives within the
	// configured line timeout
	ErrLineTimeout = errors.New("timed out waiting for line terminator")

	// ErrLineTooLong is returned when a line exceeds the maximum line length
	ErrLineTooLong = errors.New("line exceeds maximum length")
)

// Conn provides a common interface for reading/writing bytes from serial or WebSocket
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Option configures a Channel
type Option func(*Channel)

// WithLineTimeout bounds how long ReadLine waits for a terminator.
// Zero (the default) waits until the terminator arrives or the link fails.
func WithLineTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.lineTimeout = d
	}
}

// WithMaxLine sets the maximum accepted line length including the terminator.
// Zero disables the limit.
func WithMaxLine(n int) Option {
	return func(c *Channel) {
		c.maxLine = n
	}
}

// Channel buffers bytes read from a Conn.
//
// A single reader goroutine moves bytes from the connection into a queue; all
// framing happens on the caller's goroutine. A Channel must be used by one
// goroutine at a time.
type Channel struct {
	conn   Conn
	chunks chan []byte
	errc   chan error
	done   chan struct{}
	once   sync.Once

	pending  []byte
	err      error
	skipLine bool // Discard input up to the next terminator

	lineTimeout time.Duration
	maxLine     int
}

// New wraps conn and starts reading from it
func New(conn Conn, opts ...Option) *Channel {
	c := &Channel{
		conn:    conn,
		chunks:  make(chan []byte, 16),
		errc:    make(chan error, 1),
		done:    make(chan struct{}),
		maxLine: linkproto.MaxLineLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

func (c *Channel) readLoop() {
	defer close(c.chunks)

	buf := make([]byte, 256)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case c.chunks <- data:
			case <-c.done:
				return
			}
		}
		if err != nil {
			c.errc <- err
			return
		}
	}
}

// closedErr returns the terminal error after the read loop has exited
func (c *Channel) closedErr() error {
	select {
	case err := <-c.errc:
		if errors.Is(err, io.EOF) {
			return ErrClosed
		}
		return fmt.Errorf("%w: %v", ErrClosed, err)
	default:
		return ErrClosed
	}
}

func (c *Channel) absorb(data []byte) {
	if c.skipLine {
		i := bytes.IndexByte(data, linkproto.LineTerminator)
		if i < 0 {
			return
		}
		data = data[i+1:]
		c.skipLine = false
	}
	c.pending = append(c.pending, data...)
}

// fill blocks until more input arrives, the timeout fires or ctx is done
func (c *Channel) fill(ctx context.Context, timeout <-chan time.Time) error {
	if c.err != nil {
		return c.err
	}
	select {
	case data, ok := <-c.chunks:
		if !ok {
			c.err = c.closedErr()
			return c.err
		}
		c.absorb(data)
		return nil
	case <-timeout:
		return ErrLineTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Available reports whether at least one byte can be read without blocking.
// Buffered bytes are always delivered before a connection error is reported.
func (c *Channel) Available() (bool, error) {
	for len(c.pending) == 0 {
		if c.err != nil {
			return false, c.err
		}
		select {
		case data, ok := <-c.chunks:
			if !ok {
				c.err = c.closedErr()
				continue
			}
			c.absorb(data)
		default:
			return false, nil
		}
	}
	return true, nil
}

// ReadByte reads exactly one byte, blocking until one arrives
func (c *Channel) ReadByte() (byte, error) {
	for len(c.pending) == 0 {
		if err := c.fill(context.Background(), nil); err != nil {
			return 0, err
		}
	}
	b := c.pending[0]
	c.pending = c.pending[1:]
	return b, nil
}

// ReadLine reads up to and including the next line terminator.
//
// On ErrLineTimeout the partial line is dropped. On ErrLineTooLong the rest of
// the oversized line is discarded as it arrives.
func (c *Channel) ReadLine(ctx context.Context) ([]byte, error) {
	var timeout <-chan time.Time
	if c.lineTimeout > 0 {
		timer := time.NewTimer(c.lineTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		if i := bytes.IndexByte(c.pending, linkproto.LineTerminator); i >= 0 {
			n := i + 1
			if c.maxLine > 0 && n > c.maxLine {
				c.pending = c.pending[n:]
				return nil, fmt.Errorf("%w: %d bytes", ErrLineTooLong, n)
			}
			line := make([]byte, n)
			copy(line, c.pending[:n])
			c.pending = c.pending[n:]
			return line, nil
		}

		if c.maxLine > 0 && len(c.pending) >= c.maxLine {
			c.pending = nil
			c.skipLine = true
			return nil, fmt.Errorf("%w: no terminator within %d bytes", ErrLineTooLong, c.maxLine)
		}

		if err := c.fill(ctx, timeout); err != nil {
			if errors.Is(err, ErrLineTimeout) {
				c.pending = nil
			}
			return nil, err
		}
	}
}

// Write sends bytes to the microcontroller
func (c *Channel) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

// Close closes the underlying connection and stops the reader
func (c *Channel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
