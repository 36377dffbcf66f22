// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pifarm/fieldlink/pkg/linkproto"
)

var (
	probeTimeout int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the link by waiting for a complete control exchange",
	Long: `Wait for a complete control exchange on the link until timeout.

This command connects to a serial port or WebSocket and waits for a time
request, or a pH or PPM signal followed by a well-formed payload line. Other
bytes and rejected lines are skipped.

Exit codes:
  0 - Exchange received before timeout
  1 - Timeout reached without a complete exchange
  2 - Connection error

Useful for checking the wiring or the WebSocket bridge before starting the
listen service.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for an exchange")
}

func runProbe(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Fieldlink - Link Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for a control exchange...\n\n")

	decoder := linkproto.NewDecoder()
	buf := make([]byte, 128)

	frameChan := make(chan *linkproto.Frame, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		skipped := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				frame, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					skipped++
					continue
				}
				if frame == nil {
					if !decoder.Pending() {
						skipped++
					}
					continue
				}
				if skipped > 0 {
					fmt.Printf("(skipped %d bytes before the first exchange)\n", skipped)
				}
				frameChan <- frame
				return
			}
		}
	}()

	select {
	case frame := <-frameChan:
		fmt.Printf("SUCCESS: Received control exchange\n")
		fmt.Printf("  Signal: %s (0x%02X)\n", frame.Signal(), byte(frame.Signal()))
		if frame.IsReading() {
			fmt.Printf("  Category: %s\n", frame.Category())
			fmt.Printf("  Value: %s\n", frame.Value())
			for _, v := range linkproto.ValidateFrame(frame) {
				fmt.Printf("  WARNING: %s\n", v.Message)
			}
		}
		fmt.Printf("  Raw: %s\n", linkproto.FormatRaw(frame.Raw()))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(probeTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No control exchange received within %d seconds\n", probeTimeout)
		os.Exit(1)
	}

	return nil
}
