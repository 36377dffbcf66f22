// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pifarm/fieldlink/pkg/clock"
	"github.com/pifarm/fieldlink/pkg/config"
	"github.com/pifarm/fieldlink/pkg/linkproto"
)

const currentUserKey = "current_user"

// Redis stores readings in per-user streams and the current-user markers in
// a sorted set scored by unix microseconds
type Redis struct {
	client *redis.Client
	clock  clock.Clock
}

// NewRedis connects to Redis and checks the connection
func NewRedis(ctx context.Context, cfg config.RedisConfig, clk clock.Clock) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	if clk == nil {
		clk = clock.System{}
	}
	return &Redis{client: client, clock: clk}, nil
}

func readingStream(userID string, category linkproto.Category) string {
	return fmt.Sprintf("users:%s:%s", userID, category)
}

func wateredStream(userID string) string {
	return fmt.Sprintf("users:%s:last_watered", userID)
}

func (s *Redis) CurrentUser(ctx context.Context) (string, error) {
	members, err := s.client.ZRevRange(ctx, currentUserKey, 0, 0).Result()
	if err != nil {
		return "", fmt.Errorf("current user lookup failed: %w", err)
	}
	if len(members) == 0 {
		return "", ErrNoCurrentUser
	}
	return members[0], nil
}

func (s *Redis) SetCurrentUser(ctx context.Context, userID string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	z := redis.Z{
		Score:  float64(s.clock.Now().UnixMicro()),
		Member: userID,
	}
	if err := s.client.ZAdd(ctx, currentUserKey, z).Err(); err != nil {
		return fmt.Errorf("failed to set current user: %w", err)
	}
	return nil
}

func (s *Redis) AppendReading(ctx context.Context, userID string, category linkproto.Category, value string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: readingStream(userID, category),
		Values: map[string]interface{}{
			"value":     value,
			"timestamp": s.clock.Now().Format(time.RFC3339Nano),
		},
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append reading: %w", err)
	}
	return nil
}

func (s *Redis) MarkWatered(ctx context.Context, userID string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: wateredStream(userID),
		Values: map[string]interface{}{
			"timestamp": s.clock.Now().Format(time.RFC3339Nano),
		},
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to record watering: %w", err)
	}
	return nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}
