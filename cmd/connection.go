// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/pifarm/fieldlink/pkg/serialchan"
)

// GetSecret returns the value of env, or prompts for it without echo
func GetSecret(env, prompt string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}

	fmt.Fprintf(os.Stderr, "%s: ", prompt)

	secret, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal; fall back to a plain line read
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(prompt), err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(line), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(secret), nil
}

// OpenConnection opens either the WebSocket bridge or the serial port, as
// configured. The returned string describes the link for banners.
func OpenConnection(ctx context.Context) (serialchan.Conn, string, error) {
	if cfg.Bridge.URL != "" {
		password := cfg.Bridge.Password
		if cfg.Bridge.Username != "" && password == "" {
			var err error
			password, err = GetSecret("FIELDLINK_BRIDGE_PASSWORD", "Password")
			if err != nil {
				return nil, "", err
			}
			// Reconnects reuse it without prompting again
			cfg.Bridge.Password = password
		}

		conn, err := serialchan.OpenWebSocket(cfg.Bridge.URL, cfg.Bridge.Username, password, cfg.Bridge.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", cfg.Bridge.URL), nil
	}

	if cfg.Serial.Port != "" {
		conn, err := serialchan.OpenSerialWithRetry(ctx, cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.OpenRetries, log)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", cfg.Serial.Port, cfg.Serial.Baud), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// openChannel wraps a fresh connection in a line-oriented channel
func openChannel(ctx context.Context) (*serialchan.Channel, string, error) {
	conn, info, err := OpenConnection(ctx)
	if err != nil {
		return nil, "", err
	}
	ch := serialchan.New(conn, serialchan.WithLineTimeout(cfg.Serial.LineTimeout))
	return ch, info, nil
}
