// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package serialchan

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// pipeConn is a Conn whose input is fed by the test through an io.Pipe
type pipeConn struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
}

func newPipeConn() *pipeConn {
	r, w := io.Pipe()
	return &pipeConn{r: r, w: w}
}

func (p *pipeConn) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *pipeConn) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *pipeConn) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.r.Close()
}

// feed writes bytes as if the microcontroller had sent them
func (p *pipeConn) feed(t *testing.T, s string) {
	t.Helper()
	if _, err := p.w.Write([]byte(s)); err != nil {
		t.Fatalf("feed: %v", err)
	}
}

func waitAvailable(t *testing.T, c *Channel) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ok, err := c.Available()
		if err != nil {
			t.Fatalf("Available error: %v", err)
		}
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no data became available")
}

// ============================================================
// Availability and Byte Reads
// ============================================================

func TestChannel_AvailableIsNonBlocking(t *testing.T) {
	conn := newPipeConn()
	c := New(conn)
	defer c.Close()

	done := make(chan struct{})
	go func() {
		ok, err := c.Available()
		if ok || err != nil {
			t.Errorf("Available() = %v, %v on empty channel", ok, err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Available blocked")
	}
}

func TestChannel_ReadBytes(t *testing.T) {
	conn := newPipeConn()
	c := New(conn)
	defer c.Close()

	conn.feed(t, "$#&")
	waitAvailable(t, c)

	for _, want := range []byte("$#&") {
		b, err := c.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte error: %v", err)
		}
		if b != want {
			t.Errorf("ReadByte = %q, want %q", b, want)
		}
	}
}

// ============================================================
// Line Reads
// ============================================================

func TestChannel_ReadLineAcrossChunks(t *testing.T) {
	conn := newPipeConn()
	c := New(conn)
	defer c.Close()

	go func() {
		conn.w.Write([]byte("ph:4"))
		time.Sleep(5 * time.Millisecond)
		conn.w.Write([]byte(".00\n$"))
	}()

	line, err := c.ReadLine(context.Background())
	if err != nil {
		t.Fatalf("ReadLine error: %v", err)
	}
	if string(line) != "ph:4.00\n" {
		t.Errorf("ReadLine = %q", line)
	}

	waitAvailable(t, c)
	b, _ := c.ReadByte()
	if b != '$' {
		t.Errorf("byte after line = %q, want '$'", b)
	}
}

func TestChannel_LineTimeoutDropsPartialLine(t *testing.T) {
	conn := newPipeConn()
	c := New(conn, WithLineTimeout(20*time.Millisecond))
	defer c.Close()

	conn.feed(t, "ph:4")
	_, err := c.ReadLine(context.Background())
	if !errors.Is(err, ErrLineTimeout) {
		t.Fatalf("error = %v, want ErrLineTimeout", err)
	}

	conn.feed(t, "x")
	waitAvailable(t, c)
	b, _ := c.ReadByte()
	if b != 'x' {
		t.Errorf("partial line not dropped, next byte = %q", b)
	}
}

func TestChannel_LineTooLongSkipsRemainder(t *testing.T) {
	conn := newPipeConn()
	c := New(conn, WithMaxLine(8))
	defer c.Close()

	go conn.w.Write([]byte("ph:123456789012"))

	_, err := c.ReadLine(context.Background())
	if !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("error = %v, want ErrLineTooLong", err)
	}

	conn.feed(t, "345\n$")
	waitAvailable(t, c)
	b, _ := c.ReadByte()
	if b != '$' {
		t.Errorf("remainder of long line not skipped, next byte = %q", b)
	}
}

func TestChannel_ReadLineContextCancel(t *testing.T) {
	conn := newPipeConn()
	c := New(conn)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.ReadLine(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

// ============================================================
// Close and Write
// ============================================================

func TestChannel_BufferedBytesBeforeClose(t *testing.T) {
	conn := newPipeConn()
	c := New(conn)
	defer c.Close()

	conn.feed(t, "#")
	conn.w.Close()

	waitAvailable(t, c)
	if b, _ := c.ReadByte(); b != '#' {
		t.Fatalf("ReadByte = %q", b)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		_, err := c.Available()
		if err != nil {
			if !errors.Is(err, ErrClosed) || !errors.Is(err, io.EOF) {
				t.Errorf("error = %v, want ErrClosed", err)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("closed connection never reported")
}

func TestChannel_ReadLineOnClosedConnection(t *testing.T) {
	conn := newPipeConn()
	c := New(conn)
	defer c.Close()

	conn.w.CloseWithError(errors.New("device unplugged"))
	_, err := c.ReadLine(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Errorf("error = %v, want ErrClosed", err)
	}
}

func TestChannel_WriteAndClose(t *testing.T) {
	conn := newPipeConn()
	c := New(conn)

	if _, err := c.Write([]byte("T1700000000")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if got := conn.written.String(); got != "T1700000000" {
		t.Errorf("written = %q", got)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}
	if !conn.closed {
		t.Error("underlying connection not closed")
	}
}
