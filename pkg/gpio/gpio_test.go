// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gpio

import (
	"errors"
	"testing"
)

// ============================================================
// Scoped acquisition
// ============================================================

func TestWith_ReleasesOnSuccess(t *testing.T) {
	f := NewFake()

	err := With(f, 21, Input, Low, func(p *Pin) error {
		if !f.Configured(21) {
			t.Error("pin not configured inside scope")
		}
		_, err := p.Read()
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if f.Configured(21) || f.Releases(21) != 1 {
		t.Errorf("pin not released: configured=%v releases=%d", f.Configured(21), f.Releases(21))
	}
}

func TestWith_ReleasesOnError(t *testing.T) {
	f := NewFake()
	boom := errors.New("boom")

	err := With(f, 20, Output, High, func(p *Pin) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if f.Releases(20) != 1 {
		t.Errorf("releases = %d, want 1", f.Releases(20))
	}
}

func TestWith_ReleasesOnPanic(t *testing.T) {
	f := NewFake()

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic was swallowed")
			}
		}()
		With(f, 20, Output, High, func(p *Pin) error {
			panic("relay driver fault")
		})
	}()

	if f.Releases(20) != 1 {
		t.Errorf("releases = %d, want 1", f.Releases(20))
	}
}

func TestWith_ConfigureFailure(t *testing.T) {
	f := NewFake()
	f.FailConfigure(errors.New("permission denied"))

	called := false
	err := With(f, 21, Input, Low, func(p *Pin) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if called {
		t.Error("fn ran without a configured pin")
	}
	if f.Releases(21) != 0 {
		t.Error("released a pin that was never configured")
	}
}

// ============================================================
// Fake
// ============================================================

func TestFake_QueuedReads(t *testing.T) {
	f := NewFake()
	f.SetLevel(21, Low)
	f.QueueReads(21, High, High)
	f.Configure(21, Input, Low)

	want := []Level{High, High, Low, Low}
	for i, w := range want {
		got, err := f.Read(21)
		if err != nil {
			t.Fatal(err)
		}
		if got != w {
			t.Errorf("read %d = %v, want %v", i, got, w)
		}
	}
}

func TestFake_OutputHistory(t *testing.T) {
	f := NewFake()
	f.Configure(20, Output, High)
	f.Write(20, Low)
	f.Write(20, High)

	got := f.Writes()
	want := []WriteEvent{{20, High}, {20, Low}, {20, High}}
	if len(got) != len(want) {
		t.Fatalf("writes = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFake_DirectionChecks(t *testing.T) {
	f := NewFake()

	if _, err := f.Read(21); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("read unconfigured: %v", err)
	}

	f.Configure(20, Output, High)
	if _, err := f.Read(20); !errors.Is(err, ErrWrongDirection) {
		t.Errorf("read output: %v", err)
	}

	f.Configure(21, Input, Low)
	if err := f.Write(21, High); !errors.Is(err, ErrWrongDirection) {
		t.Errorf("write input: %v", err)
	}

	f.Release(21)
	if err := f.Release(21); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("double release: %v", err)
	}
}

func TestLevelString(t *testing.T) {
	if High.String() != "HIGH" || Low.String() != "LOW" {
		t.Errorf("level names = %s, %s", High, Low)
	}
}
