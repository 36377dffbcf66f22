// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pifarm/fieldlink/pkg/gpio"
	"github.com/pifarm/fieldlink/pkg/metrics"
	"github.com/pifarm/fieldlink/pkg/moisture"
	"github.com/pifarm/fieldlink/pkg/store"
)

var (
	waterDryRun     bool
	simulateSoil    string
	metricsTextfile string
)

var waterCmd = &cobra.Command{
	Use:   "water",
	Short: "Run one soil moisture cycle",
	Long: `Sample the soil moisture sensor, store the verdict and run the pump if the
soil is dry.

The sensor is read gpio.samples times and the majority wins; a tie counts as
dry. When the pump ran, a last-watered marker and a wet reading are stored
afterwards. Intended to be run from a cron job or systemd timer.

With --dry-run, simulated pins and an in-memory store are used and the pump
does not wait; --simulate chooses what the simulated sensor reports.`,
	RunE: runWater,
}

func init() {
	rootCmd.AddCommand(waterCmd)
	waterCmd.Flags().BoolVar(&waterDryRun, "dry-run", false, "Use simulated GPIO and an in-memory store")
	waterCmd.Flags().StringVar(&simulateSoil, "simulate", "dry", "Simulated soil for --dry-run (dry or wet)")
	waterCmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write cycle metrics to this file for the node exporter")
}

// openPins returns the board's pins, or simulated ones for a dry run
func openPins(dryRun bool, soil string) (gpio.Pins, error) {
	if !dryRun {
		host, err := gpio.NewHost()
		if err != nil {
			return nil, err
		}
		return host, nil
	}

	fake := gpio.NewFake()
	switch soil {
	case "dry":
		fake.SetLevel(cfg.GPIO.MoisturePin, gpio.High)
	case "wet":
		fake.SetLevel(cfg.GPIO.MoisturePin, gpio.Low)
	default:
		return nil, fmt.Errorf("--simulate must be dry or wet, got %q", soil)
	}
	return fake, nil
}

// newController builds a moisture controller over pins from the config
func newController(pins gpio.Pins, backend store.Backend, dryRun bool) *moisture.Controller {
	mcfg := moisture.Config{
		SensorPin: cfg.GPIO.MoisturePin,
		RelayPin:  cfg.GPIO.RelayPin,
		Samples:   cfg.GPIO.Samples,
		PumpDwell: cfg.GPIO.PumpDwell,
	}

	opts := []moisture.Option{moisture.WithLogger(log)}
	if dryRun {
		opts = append(opts, moisture.WithSleep(func(ctx context.Context, d time.Duration) error {
			log.WithField("duration", d).Info("Dry run: skipping pump dwell")
			return ctx.Err()
		}))
	}
	return moisture.New(pins, backend, backend, mcfg, opts...)
}

func runWater(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pins, err := openPins(waterDryRun, simulateSoil)
	if err != nil {
		return err
	}

	backend, err := openStore(ctx, systemClock(), waterDryRun)
	if err != nil {
		return err
	}
	defer backend.Close()

	fmt.Printf("Fieldlink - Moisture Cycle\n")
	fmt.Printf("Sensor: GPIO%d (%d samples), Relay: GPIO%d (%s)\n",
		cfg.GPIO.MoisturePin, cfg.GPIO.Samples, cfg.GPIO.RelayPin, cfg.GPIO.PumpDwell)
	fmt.Printf("Store: %s\n\n", func() string {
		if waterDryRun {
			return "memory (dry run)"
		}
		return cfg.Store.Backend
	}())

	ctrl := newController(pins, backend, waterDryRun)
	cycle, cycleErr := ctrl.RunCycle(ctx)

	fmt.Print(formatCycle(cycle, cycleErr))

	var pumped time.Duration
	if cycle.Pumped {
		pumped = cfg.GPIO.PumpDwell
	}
	collectors := metrics.New()
	collectors.ObserveCycle(cycle, cycleErr, pumped)
	if metricsTextfile != "" {
		if err := collectors.WriteTextfile(metricsTextfile); err != nil {
			log.WithError(err).Error("Failed to write metrics textfile")
		}
	}

	return cycleErr
}

// formatCycle renders a cycle summary for the console
func formatCycle(c moisture.Cycle, err error) string {
	var s strings.Builder

	user := c.User
	if user == "" {
		user = "(none)"
	}
	fmt.Fprintf(&s, "User:     %s\n", user)

	votes := make([]string, len(c.Votes))
	wet := 0
	for i, v := range c.Votes {
		votes[i] = v.String()
		if v == moisture.Wet {
			wet++
		}
	}
	fmt.Fprintf(&s, "Votes:    %s (%d wet of %d)\n", strings.Join(votes, " "), wet, len(c.Votes))

	if err != nil {
		fmt.Fprintf(&s, "Result:   \033[1;31mFAILED\033[0m %v\n", err)
		return s.String()
	}

	if c.Sample == moisture.Wet {
		fmt.Fprintf(&s, "Soil:     wet\n")
	} else {
		fmt.Fprintf(&s, "Soil:     dry\n")
	}
	if c.Pumped {
		fmt.Fprintf(&s, "Pump:     ran\n")
	} else {
		fmt.Fprintf(&s, "Pump:     idle\n")
	}
	if len(c.StoreErrors) > 0 {
		fmt.Fprintf(&s, "\033[1;33mWARNING:\033[0m %d record(s) not stored\n", len(c.StoreErrors))
		for _, e := range c.StoreErrors {
			fmt.Fprintf(&s, "  %v\n", e)
		}
	}
	return s.String()
}
