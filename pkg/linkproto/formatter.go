// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkproto

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame for human-readable console output
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X)\n", timestamp, f.Signal(), byte(f.Signal()))

	if f.IsReading() {
		result += fmt.Sprintf("  %s: %s\n", strings.ToUpper(string(f.Category())), f.Value())
		for _, v := range ValidateFrame(f) {
			result += fmt.Sprintf("  \033[1;33mWARNING:\033[0m %s\n", v.Message)
		}
	} else {
		result += "  (no payload)\n"
	}
	return result
}

// FormatRaw renders raw link bytes with control characters escaped
func FormatRaw(b []byte) string {
	return fmt.Sprintf("%q", b)
}
