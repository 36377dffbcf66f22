// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pifarm/fieldlink/pkg/config"
	"github.com/pifarm/fieldlink/pkg/linkproto"
)

// Breaker guards a remote Backend with a circuit breaker. While open, every
// call fails immediately with an error wrapping gobreaker.ErrOpenState.
type Breaker struct {
	Backend
	cb *gobreaker.CircuitBreaker
}

// NewBreaker wraps b
func NewBreaker(b Backend, cfg config.BreakerConfig, log logrus.FieldLogger) *Breaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 1
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "store",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		// missing user and caller cancellation do not count as store failures
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNoCurrentUser) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Store circuit breaker state changed")
		},
	})
	return &Breaker{Backend: b, cb: cb}
}

// State returns the breaker state
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) run(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("store unavailable: %w", err)
	}
	return err
}

func (b *Breaker) CurrentUser(ctx context.Context) (string, error) {
	var user string
	err := b.run(func() error {
		var err error
		user, err = b.Backend.CurrentUser(ctx)
		return err
	})
	return user, err
}

func (b *Breaker) SetCurrentUser(ctx context.Context, userID string) error {
	return b.run(func() error {
		return b.Backend.SetCurrentUser(ctx, userID)
	})
}

func (b *Breaker) AppendReading(ctx context.Context, userID string, category linkproto.Category, value string) error {
	return b.run(func() error {
		return b.Backend.AppendReading(ctx, userID, category, value)
	})
}

func (b *Breaker) MarkWatered(ctx context.Context, userID string) error {
	return b.run(func() error {
		return b.Backend.MarkWatered(ctx, userID)
	})
}
