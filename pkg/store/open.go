// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pifarm/fieldlink/pkg/clock"
	"github.com/pifarm/fieldlink/pkg/config"
)

// Open builds the configured backend, wrapped with the circuit breaker and
// MQTT mirror when they are enabled
func Open(ctx context.Context, cfg *config.Config, clk clock.Clock, log logrus.FieldLogger) (Backend, error) {
	var (
		b   Backend
		err error
	)

	switch cfg.Store.Backend {
	case config.BackendInflux:
		b, err = NewInflux(ctx, cfg.Store.Influx, clk)
	case config.BackendRedis:
		b, err = NewRedis(ctx, cfg.Store.Redis, clk)
	case config.BackendSQLite:
		b, err = OpenSQLite(cfg.Store.SQLite.Path, clk)
	case config.BackendMemory:
		b = NewMemory(clk)
	default:
		err = fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, err
	}
	log.WithField("backend", cfg.Store.Backend).Info("Store opened")

	if cfg.Store.Breaker.Enabled && cfg.Store.Backend != config.BackendMemory {
		b = NewBreaker(b, cfg.Store.Breaker, log)
	}

	if cfg.MQTT.Enabled {
		pub, err := ConnectMQTT(ctx, cfg.MQTT, log)
		if err != nil {
			b.Close()
			return nil, err
		}
		b = NewMirror(b, pub, cfg.MQTT.TopicPrefix, clk, log)
	}

	return b, nil
}
