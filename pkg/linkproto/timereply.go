// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkproto

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// FormatTimeReply encodes the answer to a time request: the letter T followed by
// the epoch time in seconds as decimal text with microsecond resolution,
// e.g. "T1718030412.5318". No terminator is appended.
func FormatTimeReply(t time.Time) []byte {
	seconds := float64(t.UnixMicro()) / 1e6
	reply := make([]byte, 0, 24)
	reply = append(reply, TimeReplyPrefix)
	return strconv.AppendFloat(reply, seconds, 'f', -1, 64)
}

// ParseTimeReply decodes a time reply produced by FormatTimeReply
func ParseTimeReply(b []byte) (time.Time, error) {
	if len(b) < 2 || b[0] != TimeReplyPrefix {
		return time.Time{}, fmt.Errorf("time reply must start with %q: %q", TimeReplyPrefix, b)
	}
	seconds, err := strconv.ParseFloat(string(b[1:]), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time reply %q: %w", b, err)
	}
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(math.Round(frac*1e6))*int64(time.Microsecond)), nil
}
