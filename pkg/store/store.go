// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package store persists readings and resolves the current user.
//
// Every backend keeps the same three record streams: per-user readings by
// category, per-user "last watered" markers, and a global list of
// current-user markers where the most recently timestamped one wins.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pifarm/fieldlink/pkg/linkproto"
)

// ErrNoCurrentUser is returned when no current-user marker exists, and by
// writes attempted with an empty user id
var ErrNoCurrentUser = errors.New("no current user")

// UserDirectory resolves the user readings are attributed to.
// Implementations must not cache: the marker may change between calls.
type UserDirectory interface {
	CurrentUser(ctx context.Context) (string, error)
}

// UserMarker writes a new current-user marker
type UserMarker interface {
	SetCurrentUser(ctx context.Context, userID string) error
}

// ReadingSink records readings and watering events. Timestamps are assigned
// by the sink at write time.
type ReadingSink interface {
	AppendReading(ctx context.Context, userID string, category linkproto.Category, value string) error
	MarkWatered(ctx context.Context, userID string) error
}

// Backend is a complete store
type Backend interface {
	UserDirectory
	UserMarker
	ReadingSink
	Close() error
}

// Reading is a persisted value
type Reading struct {
	User     string             `cbor:"user"`
	Category linkproto.Category `cbor:"category"`
	Value    string             `cbor:"value"`
	Time     time.Time          `cbor:"timestamp"`
}

// Watering is a persisted "last watered" marker
type Watering struct {
	User string
	Time time.Time
}

// checkUser rejects empty user ids so a missing marker surfaces as a failed
// write instead of a record under an empty key
func checkUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrNoCurrentUser
	}
	return nil
}
