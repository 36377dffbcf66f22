// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pifarm/fieldlink/pkg/store"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Show or change the current user",
	Long: `Readings are stored against the current user, which is the id carried by the
most recent current-user marker in the store.`,
}

var userSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Write a new current-user marker",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserSet,
}

var userShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current user",
	Args:  cobra.NoArgs,
	RunE:  runUserShow,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userSetCmd)
	userCmd.AddCommand(userShowCmd)
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, backend store.Backend) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	backend, err := openStore(ctx, systemClock(), false)
	if err != nil {
		return err
	}
	defer backend.Close()

	return fn(ctx, backend)
}

func runUserSet(cmd *cobra.Command, args []string) error {
	id := strings.TrimSpace(args[0])
	if id == "" {
		return errors.New("user id must not be blank")
	}

	return withStore(cmd, func(ctx context.Context, backend store.Backend) error {
		if err := backend.SetCurrentUser(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Current user: %s\n", id)
		return nil
	})
}

func runUserShow(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, backend store.Backend) error {
		user, err := backend.CurrentUser(ctx)
		if errors.Is(err, store.ErrNoCurrentUser) {
			fmt.Println("No current user")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Current user: %s\n", user)
		return nil
	})
}
