// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pifarm/fieldlink/pkg/linkproto"
	"github.com/pifarm/fieldlink/pkg/serialchan"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display link traffic in human-readable format",
	Long: `Continuously decode and display control bytes and payload lines as they
arrive, with warnings for suspicious values.

The link is only observed: time requests are not answered and nothing is
stored. Stop any running listen service first, the link has a single owner.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Fieldlink - Raw Link Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := linkproto.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// A closed bridge or unplugged device does not come back
			if errors.Is(err, serialchan.ErrConnectionClosed) || errors.Is(err, io.EOF) {
				log.Info("Connection closed")
				return nil
			}
			log.WithError(err).Warn("Read error")
			continue
		}

		for i := 0; i < n; i++ {
			frame, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if frame != nil {
				fmt.Print(linkproto.FormatFrame(frame))
			}
		}
	}
}
