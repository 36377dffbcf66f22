// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pifarm/fieldlink/pkg/config"
	"github.com/pifarm/fieldlink/pkg/linkproto"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(nil)
	b := NewBreaker(mem, config.BreakerConfig{MaxFailures: 2, OpenTimeout: time.Hour}, quietLogger())
	down := errors.New("connection refused")

	for i := 0; i < 2; i++ {
		mem.FailNext(down)
		if err := b.AppendReading(ctx, "u1", linkproto.CategoryPh, "4.00"); !errors.Is(err, down) {
			t.Fatalf("write %d error = %v", i, err)
		}
	}

	if b.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	err := b.AppendReading(ctx, "u1", linkproto.CategoryPh, "4.00")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error while open = %v, want ErrOpenState", err)
	}
	if n := len(mem.Readings()); n != 0 {
		t.Errorf("backend reached while open: %d readings", n)
	}
}

func TestBreaker_MissingUserDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(NewMemory(nil), config.BreakerConfig{MaxFailures: 1, OpenTimeout: time.Hour}, quietLogger())

	for i := 0; i < 3; i++ {
		if _, err := b.CurrentUser(ctx); !errors.Is(err, ErrNoCurrentUser) {
			t.Fatalf("CurrentUser error = %v", err)
		}
		if err := b.AppendReading(ctx, "", linkproto.CategoryPh, "4.00"); !errors.Is(err, ErrNoCurrentUser) {
			t.Fatalf("AppendReading error = %v", err)
		}
	}

	if b.State() != gobreaker.StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_PassesThrough(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(nil)
	b := NewBreaker(mem, config.BreakerConfig{MaxFailures: 3, OpenTimeout: time.Second}, quietLogger())

	if err := b.SetCurrentUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	user, err := b.CurrentUser(ctx)
	if err != nil || user != "u1" {
		t.Fatalf("CurrentUser() = %q, %v", user, err)
	}
	if err := b.MarkWatered(ctx, user); err != nil {
		t.Fatal(err)
	}
	if n := len(mem.Waterings()); n != 1 {
		t.Errorf("waterings = %d", n)
	}
}
