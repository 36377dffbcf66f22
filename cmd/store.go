// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"

	"github.com/pifarm/fieldlink/pkg/clock"
	"github.com/pifarm/fieldlink/pkg/config"
	"github.com/pifarm/fieldlink/pkg/store"
)

// systemClock returns the configured host clock
func systemClock() clock.Clock {
	return clock.System{LocalAsUTC: cfg.Clock.LocalAsUTC}
}

// openStore opens the configured backend, prompting for secrets that are
// required but missing. With dryRun set, an in-memory store is returned.
func openStore(ctx context.Context, clk clock.Clock, dryRun bool) (store.Backend, error) {
	if dryRun {
		log.Info("Dry run: readings are kept in memory only")
		return store.NewMemory(clk), nil
	}

	if cfg.Store.Backend == config.BackendInflux && cfg.Store.Influx.Token == "" {
		token, err := GetSecret("FIELDLINK_INFLUX_TOKEN", "InfluxDB token")
		if err != nil {
			return nil, err
		}
		cfg.Store.Influx.Token = token
	}
	if cfg.MQTT.Enabled && cfg.MQTT.Username != "" && cfg.MQTT.Password == "" {
		password, err := GetSecret("FIELDLINK_MQTT_PASSWORD", "MQTT password")
		if err != nil {
			return nil, err
		}
		cfg.MQTT.Password = password
	}

	return store.Open(ctx, cfg, clk, log)
}
