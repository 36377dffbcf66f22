// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/pifarm/fieldlink/pkg/clock"
	"github.com/pifarm/fieldlink/pkg/config"
	"github.com/pifarm/fieldlink/pkg/linkproto"
)

// Influx measurements
const (
	measurementReading     = "reading"
	measurementLastWatered = "last_watered"
	measurementCurrentUser = "current_user"
)

// Influx stores records as points in a single bucket
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
	lookback time.Duration
	clock    clock.Clock
}

// NewInflux connects to InfluxDB and checks the server is reachable
func NewInflux(ctx context.Context, cfg config.InfluxConfig, clk clock.Clock) (*Influx, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete: url, token, org and bucket are required")
	}
	if clk == nil {
		clk = clock.System{}
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	if ok, err := client.Ping(ctx); err != nil || !ok {
		client.Close()
		if err == nil {
			err = fmt.Errorf("server not ready")
		}
		return nil, fmt.Errorf("failed to reach influx at %s: %w", cfg.URL, err)
	}

	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = config.Default().Store.Influx.Lookback
	}

	return &Influx{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
		lookback: lookback,
		clock:    clk,
	}, nil
}

// currentUserQuery selects the newest current_user marker in the lookback window
func currentUserQuery(bucket string, lookback time.Duration) string {
	return fmt.Sprintf(`from(bucket: %q)
  |> range(start: -%ds)
  |> filter(fn: (r) => r._measurement == %q and r._field == "userid")
  |> group()
  |> sort(columns: ["_time"])
  |> last()
`, bucket, int64(lookback.Seconds()), measurementCurrentUser)
}

func (s *Influx) CurrentUser(ctx context.Context) (string, error) {
	res, err := s.queryAPI.Query(ctx, currentUserQuery(s.bucket, s.lookback))
	if err != nil {
		return "", fmt.Errorf("current user query failed: %w", err)
	}
	defer res.Close()

	user := ""
	for res.Next() {
		if v, ok := res.Record().Value().(string); ok {
			user = v
		}
	}
	if err := res.Err(); err != nil {
		return "", fmt.Errorf("current user query failed: %w", err)
	}
	if user == "" {
		return "", ErrNoCurrentUser
	}
	return user, nil
}

func (s *Influx) SetCurrentUser(ctx context.Context, userID string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	point := influxdb2.NewPoint(measurementCurrentUser,
		nil,
		map[string]interface{}{"userid": userID},
		s.clock.Now())
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("influx write error: %w", err)
	}
	return nil
}

func (s *Influx) AppendReading(ctx context.Context, userID string, category linkproto.Category, value string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	point := influxdb2.NewPoint(measurementReading,
		map[string]string{"user": userID, "category": string(category)},
		map[string]interface{}{"value": value},
		s.clock.Now())
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("influx write error: %w", err)
	}
	return nil
}

func (s *Influx) MarkWatered(ctx context.Context, userID string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	point := influxdb2.NewPoint(measurementLastWatered,
		map[string]string{"user": userID},
		map[string]interface{}{"watered": true},
		s.clock.Now())
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("influx write error: %w", err)
	}
	return nil
}

func (s *Influx) Close() error {
	s.client.Close()
	return nil
}
