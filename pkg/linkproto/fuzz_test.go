// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkproto

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomNoiseByte returns a byte that is neither a control byte nor a line terminator
func randomNoiseByte(rng *rand.Rand) byte {
	for {
		b := byte(rng.Intn(256))
		if _, ok := DecodeSignal(b); ok || b == LineTerminator {
			continue
		}
		return b
	}
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

func TestFuzz_DecoderRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	d := NewDecoder()
	for round := 0; round < rounds; round++ {
		data := make([]byte, rng.Intn(200))
		rng.Read(data)
		for _, b := range data {
			frame, err := d.DecodeByte(b)
			if err != nil && frame != nil {
				t.Fatalf("round %d: frame and error returned together", round)
			}
			if frame != nil && frame.IsReading() {
				if _, perr := ParsePayloadLine(frame.Signal(), frame.Raw()[1:]); perr != nil {
					t.Fatalf("round %d: emitted frame fails re-parse: %v", round, perr)
				}
			}
		}
	}
}

func TestFuzz_DecoderInterleavedExchanges(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for round := 0; round < rounds; round++ {
		d := NewDecoder()
		var stream []byte
		var want []string

		exchanges := rng.Intn(10)
		for i := 0; i < exchanges; i++ {
			for n := rng.Intn(4); n > 0; n-- {
				stream = append(stream, randomNoiseByte(rng))
			}
			switch rng.Intn(3) {
			case 0:
				stream = append(stream, byte(SignalTimeRequest))
				want = append(want, "time")
			case 1:
				value := fmt.Sprintf("%.2f", rng.Float64()*14)
				stream = append(stream, byte(SignalPh))
				stream = append(stream, FormatPayloadLine(SignalPh, value)...)
				want = append(want, "ph="+value)
			case 2:
				value := fmt.Sprintf("%.2f", rng.Float64()*2000)
				stream = append(stream, byte(SignalPpm))
				stream = append(stream, FormatPayloadLine(SignalPpm, value)...)
				want = append(want, "ppm="+value)
			}
		}

		frames, errs := decodeAll(d, stream)
		if len(errs) != 0 {
			t.Fatalf("round %d: unexpected errors %v for %q", round, errs, stream)
		}
		if len(frames) != len(want) {
			t.Fatalf("round %d: got %d frames, want %d for %q", round, len(frames), len(want), stream)
		}
		for i, f := range frames {
			got := "time"
			if f.IsReading() {
				got = string(f.Category()) + "=" + f.Value()
			}
			if got != want[i] {
				t.Fatalf("round %d frame %d: got %s, want %s", round, i, got, want[i])
			}
		}
	}
}
