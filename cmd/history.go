// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pifarm/fieldlink/pkg/config"
	"github.com/pifarm/fieldlink/pkg/linkproto"
	"github.com/pifarm/fieldlink/pkg/store"
)

var (
	historyUser  string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recent readings from the local database",
	Long: `Print the newest readings of each category and the last watering time for a
user. Only available with the sqlite store backend.

Without --user, the current user is shown.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyUser, "user", "", "User id (default: current user)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 5, "Readings per category")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfg.Store.Backend != config.BackendSQLite {
		return fmt.Errorf("history needs the %s backend, configured backend is %s",
			config.BackendSQLite, cfg.Store.Backend)
	}
	if historyLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", historyLimit)
	}

	db, err := store.OpenSQLite(cfg.Store.SQLite.Path, systemClock())
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	user := historyUser
	if user == "" {
		user, err = db.CurrentUser(ctx)
		if errors.Is(err, store.ErrNoCurrentUser) {
			return errors.New("no current user; pass --user")
		}
		if err != nil {
			return err
		}
	}

	fmt.Printf("User: %s\n", user)

	watered, err := db.LastWatered(ctx, user)
	if err != nil {
		return err
	}
	if watered.IsZero() {
		fmt.Printf("Last watered: never\n")
	} else {
		fmt.Printf("Last watered: %s\n", watered.Local().Format("2006-01-02 15:04:05"))
	}

	for _, category := range []linkproto.Category{linkproto.CategoryPh, linkproto.CategoryPpm, linkproto.CategoryMoisture} {
		readings, err := db.Recent(ctx, user, category, historyLimit)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s:\n", category)
		if len(readings) == 0 {
			fmt.Printf("  (none)\n")
			continue
		}
		for _, r := range readings {
			fmt.Printf("  %s  %s\n", r.Time.Local().Format("2006-01-02 15:04:05"), r.Value)
		}
	}
	return nil
}
