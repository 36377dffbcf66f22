// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dispatch runs the host side of the link protocol: it polls the
// serial channel, answers time requests and forwards sensor readings to a
// sink under the current user.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pifarm/fieldlink/pkg/clock"
	"github.com/pifarm/fieldlink/pkg/linkproto"
	"github.com/pifarm/fieldlink/pkg/store"
)

// DefaultPollInterval is the wait between polls of an idle channel
const DefaultPollInterval = 10 * time.Millisecond

// Channel is the duplex byte link to the microcontroller
type Channel interface {
	// Available reports whether a byte can be read without blocking
	Available() (bool, error)
	ReadByte() (byte, error)
	// ReadLine blocks until a full line (terminator included) arrives
	ReadLine(ctx context.Context) ([]byte, error)
	Write(p []byte) (int, error)
}

// Kind classifies the outcome of one poll
type Kind int

const (
	KindIdle      Kind = iota // no byte was available
	KindTimeReply             // time request answered
	KindReading               // reading forwarded to the sink
	KindDiscarded             // payload line rejected
	KindIgnored               // byte is not a control signal
	KindFailed                // channel, user or sink failure
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindTimeReply:
		return "time_reply"
	case KindReading:
		return "reading"
	case KindDiscarded:
		return "discarded"
	case KindIgnored:
		return "ignored"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is the framing state of the dispatcher
type State int32

const (
	// StateIdle waits for a control byte
	StateIdle State = iota
	// StateCommitted has consumed a reading signal and waits for its line
	StateCommitted
)

func (s State) String() string {
	if s == StateCommitted {
		return "committed"
	}
	return "idle"
}

// Result describes one poll
type Result struct {
	Kind    Kind
	Byte    byte
	Signal  linkproto.Signal
	EventID uuid.UUID
	At      time.Time

	// Time replies
	Reply []byte

	// Readings
	Line      []byte
	Category  linkproto.Category
	Value     string
	User      string
	Anomalies []linkproto.ValidationError
	LineWait  time.Duration

	Err error
}

// Observer receives every non-idle Result
type Observer func(Result)

// Option configures a Dispatcher
type Option func(*Dispatcher)

func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observers = append(d.observers, o)
	}
}

// WithIDGenerator replaces the event id source
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(d *Dispatcher) {
		d.newID = gen
	}
}

// Dispatcher owns a Channel exclusively. PollOnce and Run must be called from
// a single goroutine; State may be read from any goroutine.
type Dispatcher struct {
	ch           Channel
	clock        clock.Clock
	users        store.UserDirectory
	sink         store.ReadingSink
	log          logrus.FieldLogger
	pollInterval time.Duration
	observers    []Observer
	newID        func() uuid.UUID
	state        atomic.Int32
}

// New creates a dispatcher
func New(ch Channel, clk clock.Clock, users store.UserDirectory, sink store.ReadingSink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ch:           ch,
		clock:        clk,
		users:        users,
		sink:         sink,
		log:          logrus.StandardLogger(),
		pollInterval: DefaultPollInterval,
		newID:        uuid.New,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current framing state
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

func (d *Dispatcher) setState(s State) {
	d.state.Store(int32(s))
}

// PollOnce handles at most one control byte. It returns KindIdle immediately
// if nothing is buffered. The returned error is the Result's Err; none of
// them leave the dispatcher unusable except a closed channel.
func (d *Dispatcher) PollOnce(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Kind: KindIdle}, err
	}

	ok, err := d.ch.Available()
	if err != nil {
		return d.finish(Result{
			Kind: KindFailed,
			At:   d.clock.Now(),
			Err:  &ChannelError{Op: "poll", Err: err},
		})
	}
	if !ok {
		return Result{Kind: KindIdle}, nil
	}

	b, err := d.ch.ReadByte()
	if err != nil {
		return d.finish(Result{
			Kind: KindFailed,
			At:   d.clock.Now(),
			Err:  &ChannelError{Op: "read byte", Err: err},
		})
	}

	res := Result{
		Byte:    b,
		EventID: d.newID(),
		At:      d.clock.Now(),
	}

	sig, known := linkproto.DecodeSignal(b)
	if !known {
		res.Kind = KindIgnored
		if b >= utf8.RuneSelf {
			res.Err = &DecodeError{Byte: b, Err: ErrInvalidByte}
		}
		return d.finish(res)
	}
	res.Signal = sig

	if sig.ExpectsLine() {
		d.handleReading(ctx, &res)
	} else {
		d.handleTimeRequest(&res)
	}
	return d.finish(res)
}

func (d *Dispatcher) handleTimeRequest(res *Result) {
	reply := linkproto.FormatTimeReply(res.At)
	if _, err := d.ch.Write(reply); err != nil {
		res.Kind = KindFailed
		res.Err = &ChannelError{Op: "write time reply", Err: err}
		return
	}
	res.Kind = KindTimeReply
	res.Reply = reply
}

func (d *Dispatcher) handleReading(ctx context.Context, res *Result) {
	d.setState(StateCommitted)
	defer d.setState(StateIdle)

	start := time.Now()
	line, err := d.ch.ReadLine(ctx)
	res.LineWait = time.Since(start)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF), ctx.Err() != nil:
			res.Kind = KindFailed
			res.Err = &ChannelError{Op: "read line", Err: err}
		default:
			res.Kind = KindDiscarded
			res.Err = &DecodeError{Signal: res.Signal, Err: err}
		}
		return
	}
	res.Line = line

	value, err := linkproto.ParsePayloadLine(res.Signal, line)
	if err != nil {
		res.Kind = KindDiscarded
		res.Err = &DecodeError{Signal: res.Signal, Line: line, Err: err}
		return
	}
	res.Category = res.Signal.Category()
	res.Value = value
	res.Anomalies = linkproto.ValidateValue(res.Category, value)

	// resolved per event; the marker may change between readings
	user, userErr := d.users.CurrentUser(ctx)
	if userErr != nil {
		user = ""
	}
	res.User = user

	writeErr := d.sink.AppendReading(ctx, user, res.Category, value)
	switch {
	case userErr != nil:
		res.Err = &UserError{Err: userErr, WriteErr: writeErr}
	case writeErr != nil:
		res.Err = &StoreError{User: user, Category: res.Category, Err: writeErr}
	}
	if writeErr != nil {
		res.Kind = KindFailed
	} else {
		res.Kind = KindReading
	}
}

func (d *Dispatcher) finish(res Result) (Result, error) {
	d.logResult(res)
	for _, o := range d.observers {
		o(res)
	}
	return res, res.Err
}

func (d *Dispatcher) logResult(res Result) {
	fields := logrus.Fields{"kind": res.Kind.String()}
	if res.EventID != uuid.Nil {
		fields["event_id"] = res.EventID.String()
	}
	if res.Signal != 0 {
		fields["signal"] = res.Signal.String()
	}
	entry := d.log.WithFields(fields)

	switch res.Kind {
	case KindTimeReply:
		entry.WithField("reply", string(res.Reply)).Info("Time sent")
	case KindReading:
		entry = entry.WithFields(logrus.Fields{
			"user":     res.User,
			"category": res.Category,
			"value":    res.Value,
		})
		if res.Err != nil {
			entry.WithError(res.Err).Warn("Reading stored without current user")
		} else {
			entry.Info("Reading stored")
		}
		for _, a := range res.Anomalies {
			entry.WithField("anomaly", a.Type.String()).Warn(a.Message)
		}
	case KindDiscarded:
		entry.WithError(res.Err).Warn("Payload line discarded")
	case KindIgnored:
		entry = entry.WithField("byte", fmt.Sprintf("0x%02X", res.Byte))
		if res.Err != nil {
			entry = entry.WithError(res.Err)
		}
		entry.Debug("Byte ignored")
	case KindFailed:
		if res.Category != "" {
			entry = entry.WithFields(logrus.Fields{
				"category": res.Category,
				"value":    res.Value,
			})
		}
		entry.WithError(res.Err).Error("Event failed")
	}
}

// Run polls until ctx is cancelled or the channel closes. Every other error
// is logged by PollOnce and the loop continues.
func (d *Dispatcher) Run(ctx context.Context) error {
	timer := time.NewTimer(d.pollInterval)
	defer timer.Stop()

	for {
		res, err := d.PollOnce(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		var chErr *ChannelError
		if errors.As(err, &chErr) && errors.Is(err, io.EOF) {
			return err
		}

		if res.Kind != KindIdle {
			continue
		}

		timer.Reset(d.pollInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}
