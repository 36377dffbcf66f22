// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pifarm/fieldlink/pkg/linkproto"
	"github.com/pifarm/fieldlink/pkg/serialchan"
)

var (
	emulateTimeout int
	emulateCount   int
	emulatePh      string
	emulatePpm     string
)

// Quiet period that ends an unterminated time reply
const replyGap = 50 * time.Millisecond

var errReplyTimeout = errors.New("no time reply")

var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Act as the sensor board to test a listening host",
	Long: `Play the microcontroller's side of the link against a host running
'fieldlink listen', typically through the WebSocket bridge.

Sends time requests and waits for each reply, reporting round trip time and
the offset between the host clock and this machine. With --ph or --ppm, a
reading is sent afterwards. Readings are not acknowledged by the protocol, so
check the host's log or store to confirm they arrived.

Exit codes:
  0 - All time requests answered
  1 - One or more requests failed/timed out
  2 - Connection error`,
	RunE: runEmulate,
}

func init() {
	rootCmd.AddCommand(emulateCmd)
	emulateCmd.Flags().IntVar(&emulateTimeout, "timeout", 5, "Timeout in seconds for each time request")
	emulateCmd.Flags().IntVar(&emulateCount, "count", 3, "Number of time requests to send")
	emulateCmd.Flags().StringVar(&emulatePh, "ph", "", "Send a pH reading with this value")
	emulateCmd.Flags().StringVar(&emulatePpm, "ppm", "", "Send a PPM reading with this value")
}

func runEmulate(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	ch := serialchan.New(conn)
	defer ch.Close()

	fmt.Printf("Fieldlink - Board Emulator\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per request\n", emulateTimeout)
	fmt.Printf("Count: %d requests\n\n", emulateCount)

	successCount := 0
	failCount := 0

	for i := 1; i <= emulateCount; i++ {
		fmt.Printf("Time request %d/%d: ", i, emulateCount)

		startTime := time.Now()
		if _, err := ch.Write([]byte{byte(linkproto.SignalTimeRequest)}); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		reply, arrived, err := readTimeReply(ch, time.Duration(emulateTimeout)*time.Second)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
			continue
		}
		rtt := arrived.Sub(startTime)

		hostTime, err := linkproto.ParseTimeReply(reply)
		if err != nil {
			fmt.Printf("BAD REPLY: %v\n", err)
			failCount++
			continue
		}
		offset := hostTime.Sub(startTime.Add(rtt / 2))
		fmt.Printf("%s, rtt=%v, offset=%v\n", reply, rtt.Round(time.Millisecond), offset.Round(time.Millisecond))
		successCount++

		// Small delay between requests
		if i < emulateCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	for _, r := range []struct {
		sig   linkproto.Signal
		value string
	}{
		{linkproto.SignalPh, emulatePh},
		{linkproto.SignalPpm, emulatePpm},
	} {
		if r.value == "" {
			continue
		}
		msg := append([]byte{byte(r.sig)}, linkproto.FormatPayloadLine(r.sig, r.value)...)
		if _, err := ch.Write(msg); err != nil {
			fmt.Printf("Sending %s reading failed: %v\n", r.sig.Category(), err)
			failCount++
			continue
		}
		fmt.Printf("Sent %s reading: %s\n", r.sig.Category(), linkproto.FormatRaw(msg))
	}

	// Summary
	fmt.Printf("\n--- Time request statistics ---\n")
	if emulateCount > 0 {
		fmt.Printf("%d requests sent, %d replies received, %.0f%% loss\n",
			emulateCount, successCount, float64(emulateCount-successCount)/float64(emulateCount)*100)
	}

	if failCount > 0 {
		ch.Close()
		os.Exit(1)
	}
	return nil
}

// readTimeReply collects 'T' followed by digits and a decimal point, and the
// time the 'T' arrived. The reply has no terminator, so it ends at the first
// other byte or after a quiet replyGap.
func readTimeReply(ch *serialchan.Channel, timeout time.Duration) ([]byte, time.Time, error) {
	deadline := time.Now().Add(timeout)
	var (
		reply    []byte
		arrived  time.Time
		lastByte time.Time
	)

	for {
		ok, err := ch.Available()
		if err != nil {
			return nil, arrived, err
		}
		if ok {
			b, err := ch.ReadByte()
			if err != nil {
				return nil, arrived, err
			}
			if len(reply) == 0 {
				if b == linkproto.TimeReplyPrefix {
					reply = append(reply, b)
					arrived = time.Now()
					lastByte = arrived
				}
				continue
			}
			if (b < '0' || b > '9') && b != '.' {
				return reply, arrived, nil
			}
			reply = append(reply, b)
			lastByte = time.Now()
			continue
		}

		if len(reply) > 1 && time.Since(lastByte) >= replyGap {
			return reply, arrived, nil
		}
		if time.Now().After(deadline) {
			if len(reply) > 1 {
				return reply, arrived, nil
			}
			return nil, arrived, fmt.Errorf("%w within %v", errReplyTimeout, timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
