// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkproto

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Signal Tests
// ============================================================

func TestDecodeSignal_OnlyReservedBytes(t *testing.T) {
	recognized := 0
	for i := 0; i < 256; i++ {
		sig, ok := DecodeSignal(byte(i))
		if !ok {
			continue
		}
		recognized++
		switch byte(i) {
		case '$', '#', '&':
			if byte(sig) != byte(i) {
				t.Errorf("DecodeSignal(0x%02X) = 0x%02X", i, byte(sig))
			}
		default:
			t.Errorf("byte 0x%02X decoded as %s", i, sig)
		}
	}
	if recognized != 3 {
		t.Errorf("expected 3 control bytes, got %d", recognized)
	}
}

func TestSignal_Properties(t *testing.T) {
	tests := []struct {
		sig         Signal
		expectsLine bool
		prefix      string
		category    Category
		name        string
	}{
		{SignalTimeRequest, false, "", "", "TIME_REQUEST"},
		{SignalPh, true, "ph:", CategoryPh, "PH_READING"},
		{SignalPpm, true, "ppm:", CategoryPpm, "PPM_READING"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.sig.ExpectsLine() != tt.expectsLine {
				t.Errorf("ExpectsLine() = %v, want %v", tt.sig.ExpectsLine(), tt.expectsLine)
			}
			if tt.sig.Prefix() != tt.prefix {
				t.Errorf("Prefix() = %q, want %q", tt.sig.Prefix(), tt.prefix)
			}
			if tt.sig.Category() != tt.category {
				t.Errorf("Category() = %q, want %q", tt.sig.Category(), tt.category)
			}
			if tt.sig.String() != tt.name {
				t.Errorf("String() = %q, want %q", tt.sig.String(), tt.name)
			}
		})
	}
}

func TestSignal_NoPayloadByteOpensALine(t *testing.T) {
	// Payload lines start with a lowercase tag, never with a control byte
	for _, tag := range []string{TagPh, TagPpm} {
		if _, ok := DecodeSignal(tag[0]); ok {
			t.Errorf("tag %q starts with a control byte", tag)
		}
	}
}

// ============================================================
// Payload Line Tests
// ============================================================

func TestParsePayloadLine(t *testing.T) {
	tests := []struct {
		name    string
		sig     Signal
		line    []byte
		want    string
		wantErr error
	}{
		{"ph reading", SignalPh, []byte("ph:4.00\n"), "4.00", nil},
		{"ph with CRLF", SignalPh, []byte("ph:4.00\r\n"), "4.00", nil},
		{"ppm reading", SignalPpm, []byte("ppm:434.45\n"), "434.45", nil},
		{"value kept as text", SignalPpm, []byte("ppm:0434.450 \n"), "0434.450", nil},
		{"split on first separator", SignalPh, []byte("ph:4:5\n"), "4:5", nil},
		{"empty value", SignalPh, []byte("ph:\n"), "", nil},
		{"garbage", SignalPh, []byte("garbage\n"), "", ErrTagMismatch},
		{"ppm line after ph signal", SignalPh, []byte("ppm:12\n"), "", ErrTagMismatch},
		{"ph line after ppm signal", SignalPpm, []byte("ph:7\n"), "", ErrTagMismatch},
		{"leading whitespace", SignalPh, []byte(" ph:7\n"), "", ErrTagMismatch},
		{"uppercase tag", SignalPh, []byte("PH:7\n"), "", ErrTagMismatch},
		{"invalid utf8", SignalPh, []byte{'p', 'h', ':', 0xFF, '\n'}, "", ErrInvalidEncoding},
		{"time request has no payload", SignalTimeRequest, []byte("ph:7\n"), "", ErrNoTag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePayloadLine(tt.sig, tt.line)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("value = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatPayloadLine(t *testing.T) {
	line := FormatPayloadLine(SignalPpm, "12.5")
	if string(line) != "ppm:12.5\n" {
		t.Errorf("FormatPayloadLine = %q", line)
	}
	value, err := ParsePayloadLine(SignalPpm, line)
	if err != nil || value != "12.5" {
		t.Errorf("ParsePayloadLine(FormatPayloadLine) = %q, %v", value, err)
	}
}

// ============================================================
// Time Reply Tests
// ============================================================

var timeReplyPattern = regexp.MustCompile(`^T\d+(\.\d+)?$`)

func TestFormatTimeReply(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"whole seconds", time.Unix(1700000000, 0), "T1700000000"},
		{"fractional", time.Unix(1718030412, 531800000), "T1718030412.5318"},
		{"sub-microsecond dropped", time.Unix(1718030412, 500000999), "T1718030412.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(FormatTimeReply(tt.t))
			if got != tt.want {
				t.Errorf("FormatTimeReply = %q, want %q", got, tt.want)
			}
			if !timeReplyPattern.MatchString(got) {
				t.Errorf("%q does not match %s", got, timeReplyPattern)
			}
		})
	}
}

func TestParseTimeReply_RoundTrip(t *testing.T) {
	now := time.Now()
	parsed, err := ParseTimeReply(FormatTimeReply(now))
	if err != nil {
		t.Fatalf("ParseTimeReply error: %v", err)
	}
	if diff := parsed.Sub(now); diff > time.Millisecond || diff < -time.Millisecond {
		t.Errorf("round trip drift %v", diff)
	}
}

func TestParseTimeReply_Invalid(t *testing.T) {
	for _, in := range []string{"", "T", "1700000000", "Tabc"} {
		if _, err := ParseTimeReply([]byte(in)); err == nil {
			t.Errorf("ParseTimeReply(%q) should fail", in)
		}
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func decodeAll(d *Decoder, data []byte) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames, errs
}

func TestDecoder_Exchanges(t *testing.T) {
	d := NewDecoder()
	frames, errs := decodeAll(d, []byte("x$#ph:4.00\n!&ppm:434.45\n"))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}

	if frames[0].Signal() != SignalTimeRequest || frames[0].IsReading() {
		t.Errorf("frame 0 = %s", frames[0].Signal())
	}
	if frames[1].Category() != CategoryPh || frames[1].Value() != "4.00" {
		t.Errorf("frame 1 = %s %q", frames[1].Category(), frames[1].Value())
	}
	if string(frames[1].Raw()) != "#ph:4.00\n" {
		t.Errorf("frame 1 raw = %q", frames[1].Raw())
	}
	if frames[2].Category() != CategoryPpm || frames[2].Value() != "434.45" {
		t.Errorf("frame 2 = %s %q", frames[2].Category(), frames[2].Value())
	}
}

func TestDecoder_ControlBytesInsideLineAreText(t *testing.T) {
	d := NewDecoder()
	// '$' inside the committed line belongs to the line, not a new exchange
	frames, errs := decodeAll(d, []byte("#ph:$\n"))
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("frames=%d errs=%v", len(frames), errs)
	}
	if frames[0].Value() != "$" {
		t.Errorf("value = %q", frames[0].Value())
	}
}

func TestDecoder_RejectedLineRecovers(t *testing.T) {
	d := NewDecoder()
	frames, errs := decodeAll(d, []byte("#garbage\n#ph:7.1\n"))
	if len(errs) != 1 || !errors.Is(errs[0], ErrTagMismatch) {
		t.Fatalf("expected one tag mismatch, got %v", errs)
	}
	if len(frames) != 1 || frames[0].Value() != "7.1" {
		t.Fatalf("expected recovery frame, got %d", len(frames))
	}
	if d.Pending() {
		t.Error("decoder should be idle")
	}
}

func TestDecoder_LineOverflow(t *testing.T) {
	d := NewDecoder()
	long := append([]byte{'#'}, []byte(strings.Repeat("9", MaxLineLength+5))...)
	_, errs := decodeAll(d, long)
	if len(errs) != 1 {
		t.Fatalf("expected one overflow error, got %v", errs)
	}
	if d.Pending() {
		t.Error("decoder should reset after overflow")
	}
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte('#')
	d.DecodeByte('p')
	if !d.Pending() {
		t.Fatal("decoder should be waiting for a line")
	}
	d.Reset()
	frames, _ := decodeAll(d, []byte("h:1\n"))
	if len(frames) != 0 {
		t.Error("partial line should have been dropped")
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidateValue(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		value    string
		want     []AnomalyType
	}{
		{"valid ph", CategoryPh, "6.80", nil},
		{"valid ppm", CategoryPpm, "434.45", nil},
		{"ph too high", CategoryPh, "15", []AnomalyType{AnomalyOutOfRange}},
		{"ph negative", CategoryPh, "-0.5", []AnomalyType{AnomalyOutOfRange}},
		{"ppm negative", CategoryPpm, "-1", []AnomalyType{AnomalyOutOfRange}},
		{"non numeric", CategoryPh, "abc", []AnomalyType{AnomalyNonNumeric}},
		{"empty", CategoryPpm, "", []AnomalyType{AnomalyEmptyValue}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateValue(tt.category, tt.value)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d anomalies, want %d: %v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i].Type != tt.want[i] {
					t.Errorf("anomaly %d = %s, want %s", i, got[i].Type, tt.want[i])
				}
				if got[i].Error() == "" {
					t.Error("anomaly should carry a message")
				}
			}
		})
	}
}

func TestValidateFrame_TimeRequest(t *testing.T) {
	if errs := ValidateFrame(NewFrame(SignalTimeRequest, "", []byte("$"))); len(errs) != 0 {
		t.Errorf("time request should not be validated: %v", errs)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	out := FormatFrame(NewFrame(SignalPh, "15", []byte("#ph:15\n")))
	if !strings.Contains(out, "PH_READING (0x23)") {
		t.Errorf("missing header: %q", out)
	}
	if !strings.Contains(out, "PH: 15") {
		t.Errorf("missing value: %q", out)
	}
	if !strings.Contains(out, "WARNING") {
		t.Errorf("out-of-range value should be flagged: %q", out)
	}

	out = FormatFrame(NewFrame(SignalTimeRequest, "", []byte("$")))
	if !strings.Contains(out, "(no payload)") {
		t.Errorf("time request output: %q", out)
	}
}
