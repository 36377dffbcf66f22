// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pifarm/fieldlink/pkg/store"
)

var (
	pumpDuration time.Duration
	pumpDryRun   bool
	pumpNoRecord bool
)

var pumpCmd = &cobra.Command{
	Use:   "pump",
	Short: "Run the pump manually",
	Long: `Close the pump relay for --duration without sampling the sensor, then store a
last-watered marker for the current user.

The relay is opened again when the duration elapses or the command is
interrupted. An interrupted run is not recorded.`,
	RunE: runPump,
}

func init() {
	rootCmd.AddCommand(pumpCmd)
	pumpCmd.Flags().DurationVarP(&pumpDuration, "duration", "d", 0, "How long to run the pump (default gpio.pump_dwell)")
	pumpCmd.Flags().BoolVar(&pumpDryRun, "dry-run", false, "Use simulated GPIO and an in-memory store")
	pumpCmd.Flags().BoolVar(&pumpNoRecord, "no-record", false, "Do not store a last-watered marker")
}

func runPump(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := pumpDuration
	if d == 0 {
		d = cfg.GPIO.PumpDwell
	}
	if d < 0 {
		return fmt.Errorf("--duration must be positive, got %s", d)
	}

	pins, err := openPins(pumpDryRun, "dry")
	if err != nil {
		return err
	}

	backend, err := openStore(ctx, systemClock(), pumpDryRun)
	if err != nil {
		return err
	}
	defer backend.Close()

	fmt.Printf("Fieldlink - Manual Pump\n")
	fmt.Printf("Relay: GPIO%d for %s\n", cfg.GPIO.RelayPin, d)
	fmt.Printf("Press Ctrl+C to stop early\n\n")

	start := time.Now()
	ctrl := newController(pins, backend, pumpDryRun)
	if err := ctrl.Pump(ctx, d); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Printf("Pump stopped after %s\n", time.Since(start).Round(time.Second))
			return nil
		}
		return err
	}
	fmt.Printf("Pump ran for %s\n", d)

	if pumpNoRecord {
		return nil
	}
	return recordWatering(context.WithoutCancel(ctx), backend)
}

// recordWatering stores a last-watered marker for the current user
func recordWatering(ctx context.Context, backend store.Backend) error {
	user, err := backend.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("watering not recorded: %w", err)
	}
	if err := backend.MarkWatered(ctx, user); err != nil {
		return fmt.Errorf("watering not recorded: %w", err)
	}
	log.WithField("user", user).Info("Watering recorded")
	return nil
}
