// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package clock

import (
	"testing"
	"time"
)

func TestSystem_UTC(t *testing.T) {
	before := time.Now()
	got := System{}.Now()
	after := time.Now()

	if got.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", got.Location())
	}
	if got.Before(before.Add(-time.Millisecond)) || got.After(after.Add(time.Millisecond)) {
		t.Errorf("System.Now() = %v outside [%v, %v]", got, before, after)
	}
}

func TestSystem_LocalAsUTC(t *testing.T) {
	_, offset := time.Now().Zone()
	plain := System{}.Now()
	shifted := System{LocalAsUTC: true}.Now()

	drift := shifted.Sub(plain) - time.Duration(offset)*time.Second
	if drift < -time.Second || drift > time.Second {
		t.Errorf("shift = %v, want zone offset %ds", shifted.Sub(plain), offset)
	}
}

func TestFixed(t *testing.T) {
	at := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	c := Fixed(at)
	if !c.Now().Equal(at) || !c.Now().Equal(at) {
		t.Error("Fixed clock should not advance")
	}
}
