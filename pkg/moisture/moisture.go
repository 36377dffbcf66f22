// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package moisture runs the soil moisture cycle: sample the digital sensor,
// take a majority vote, record it, and water through the relay when dry.
package moisture

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pifarm/fieldlink/pkg/gpio"
	"github.com/pifarm/fieldlink/pkg/linkproto"
	"github.com/pifarm/fieldlink/pkg/store"
)

// Sample is a moisture verdict
type Sample int

const (
	// Dry means no moisture detected (sensor output HIGH)
	Dry Sample = 0
	// Wet means moisture detected (sensor output LOW)
	Wet Sample = 1
)

// String returns the stored representation, "0" or "1"
func (s Sample) String() string {
	if s == Wet {
		return "1"
	}
	return "0"
}

// FromLevel converts a raw sensor level
func FromLevel(l gpio.Level) Sample {
	if l == gpio.Low {
		return Wet
	}
	return Dry
}

// Majority returns the most frequent sample. A tie, including an empty
// slice, resolves to Dry.
func Majority(samples []Sample) Sample {
	wet := 0
	for _, s := range samples {
		if s == Wet {
			wet++
		}
	}
	if wet*2 > len(samples) {
		return Wet
	}
	return Dry
}

// State is the controller phase
type State int32

const (
	StateIdle State = iota
	StateSampling
	StateDeciding
	StatePumping
)

func (s State) String() string {
	switch s {
	case StateSampling:
		return "sampling"
	case StateDeciding:
		return "deciding"
	case StatePumping:
		return "pumping"
	default:
		return "idle"
	}
}

// Config holds pin assignments and timings
type Config struct {
	SensorPin int
	RelayPin  int
	Samples   int
	PumpDwell time.Duration
}

// DefaultConfig returns the stock wiring: sensor on BCM 21, relay on BCM 20,
// 10 samples, 5 minutes of pumping
func DefaultConfig() Config {
	return Config{
		SensorPin: 21,
		RelayPin:  20,
		Samples:   10,
		PumpDwell: 5 * time.Minute,
	}
}

// Cycle is the outcome of one RunCycle
type Cycle struct {
	User    string
	Votes   []Sample
	Sample  Sample
	Pumped  bool
	Started time.Time
	// StoreErrors are write failures that were logged and skipped
	StoreErrors []error
}

// Option configures a Controller
type Option func(*Controller)

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithSleep replaces the pump dwell wait
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) {
		c.sleep = sleep
	}
}

// Controller drives one sensor pin and one relay pin
type Controller struct {
	pins  gpio.Pins
	users store.UserDirectory
	sink  store.ReadingSink
	cfg   Config
	log   logrus.FieldLogger
	sleep func(ctx context.Context, d time.Duration) error
	state atomic.Int32
}

// New creates a controller
func New(pins gpio.Pins, users store.UserDirectory, sink store.ReadingSink, cfg Config, opts ...Option) *Controller {
	if cfg.Samples <= 0 {
		cfg.Samples = DefaultConfig().Samples
	}
	c := &Controller{
		pins:  pins,
		users: users,
		sink:  sink,
		cfg:   cfg,
		log:   logrus.StandardLogger(),
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// State returns the current phase
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// TakeReading reads the sensor Samples times back to back and returns the
// majority verdict with the individual votes
func (c *Controller) TakeReading(ctx context.Context) (Sample, []Sample, error) {
	c.setState(StateSampling)
	defer c.setState(StateIdle)

	votes := make([]Sample, 0, c.cfg.Samples)
	err := gpio.With(c.pins, c.cfg.SensorPin, gpio.Input, gpio.Low, func(p *gpio.Pin) error {
		for i := 0; i < c.cfg.Samples; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			level, err := p.Read()
			if err != nil {
				return fmt.Errorf("sensor read %d: %w", i+1, err)
			}
			votes = append(votes, FromLevel(level))
		}
		return nil
	})
	if err != nil {
		return Dry, votes, err
	}

	sample := Majority(votes)
	if sample == Dry {
		c.log.WithField("reading", sample.String()).Info("No soil moisture detected")
	} else {
		c.log.WithField("reading", sample.String()).Info("Soil moisture detected")
	}
	return sample, votes, nil
}

// ActivatePump waters if sample is Dry and reports whether the pump ran
func (c *Controller) ActivatePump(ctx context.Context, sample Sample) (bool, error) {
	if sample != Dry {
		c.log.Info("Plants do not need watering")
		return false, nil
	}
	if err := c.Pump(ctx, c.cfg.PumpDwell); err != nil {
		return false, err
	}
	return true, nil
}

// Pump closes the relay (active low) for d. The relay is driven HIGH again
// and released on every exit path, including cancellation and panics.
func (c *Controller) Pump(ctx context.Context, d time.Duration) error {
	c.setState(StatePumping)
	defer c.setState(StateIdle)

	return gpio.With(c.pins, c.cfg.RelayPin, gpio.Output, gpio.High, func(p *gpio.Pin) (err error) {
		defer func() {
			if werr := p.Write(gpio.High); werr != nil && err == nil {
				err = fmt.Errorf("pump off: %w", werr)
			}
		}()

		if err := p.Write(gpio.Low); err != nil {
			return fmt.Errorf("pump on: %w", err)
		}
		c.log.WithField("duration", d).Info("Pump turned on")

		if err := c.sleep(ctx, d); err != nil {
			c.log.WithError(err).Warn("Pump stopped early")
			return err
		}
		c.log.WithField("duration", d).Info("Pump turned off")
		return nil
	})
}

// RunCycle performs one full moisture cycle. Store failures are logged and
// collected in the Cycle; only sensor and relay failures return an error.
func (c *Controller) RunCycle(ctx context.Context) (Cycle, error) {
	cycle := Cycle{Started: time.Now()}

	user, err := c.users.CurrentUser(ctx)
	if err != nil {
		c.log.WithError(err).Warn("No current user; readings will not be stored")
		user = ""
	}
	cycle.User = user
	log := c.log.WithField("user", user)

	sample, votes, err := c.TakeReading(ctx)
	cycle.Votes = votes
	if err != nil {
		return cycle, fmt.Errorf("moisture sampling failed: %w", err)
	}
	cycle.Sample = sample

	record := func(ctx context.Context, what string, write func(context.Context) error) {
		if err := write(ctx); err != nil {
			log.WithError(err).Errorf("Failed to store %s", what)
			cycle.StoreErrors = append(cycle.StoreErrors, err)
		}
	}

	record(ctx, "moisture reading", func(ctx context.Context) error {
		return c.sink.AppendReading(ctx, user, linkproto.CategoryMoisture, sample.String())
	})

	c.setState(StateDeciding)
	pumped, err := c.ActivatePump(ctx, sample)
	c.setState(StateIdle)
	if err != nil {
		return cycle, fmt.Errorf("pump activation failed: %w", err)
	}
	cycle.Pumped = pumped
	if !pumped {
		return cycle, nil
	}

	// the pump already ran; record it even if the caller is shutting down
	wctx := context.WithoutCancel(ctx)
	record(wctx, "watering time", func(ctx context.Context) error {
		return c.sink.MarkWatered(ctx, user)
	})
	record(wctx, "post-watering reading", func(ctx context.Context) error {
		return c.sink.AppendReading(ctx, user, linkproto.CategoryMoisture, Wet.String())
	})

	return cycle, nil
}
