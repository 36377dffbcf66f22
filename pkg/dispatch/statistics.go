// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pifarm/fieldlink/pkg/linkproto"
)

// Statistics tracks event counts and error rates. Observe is safe to call
// from the dispatcher goroutine while another goroutine prints the summary.
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalEvents     uint64
	TimeReplies     uint64
	PhReadings      uint64
	PpmReadings     uint64
	Discarded       uint64
	IgnoredBytes    uint64
	DecodeErrors    uint64
	UserErrors      uint64
	StoreErrors     uint64
	ChannelErrors   uint64
	AnomalousValues uint64
	NonNumeric      uint64
	OutOfRange      uint64

	// Rates (calculated)
	EventRate float64 // events/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Observe updates the counters from one poll result. It has the Observer
// signature so it can be registered with WithObserver.
func (s *Statistics) Observe(res Result) {
	if res.Kind == KindIdle {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastUpdateTime = time.Now()

	if res.Kind == KindIgnored {
		s.IgnoredBytes++
		if res.Err != nil {
			s.DecodeErrors++
		}
		return
	}
	s.TotalEvents++

	switch res.Kind {
	case KindTimeReply:
		s.TimeReplies++
	case KindReading:
		switch res.Category {
		case linkproto.CategoryPh:
			s.PhReadings++
		case linkproto.CategoryPpm:
			s.PpmReadings++
		}
	case KindDiscarded:
		s.Discarded++
	}

	var (
		decodeErr  *DecodeError
		userErr    *UserError
		storeErr   *StoreError
		channelErr *ChannelError
	)
	switch {
	case res.Err == nil:
	case errors.As(res.Err, &decodeErr):
		s.DecodeErrors++
	case errors.As(res.Err, &userErr):
		s.UserErrors++
	case errors.As(res.Err, &storeErr):
		s.StoreErrors++
	case errors.As(res.Err, &channelErr):
		s.ChannelErrors++
	}

	if len(res.Anomalies) > 0 {
		s.AnomalousValues++
		for _, a := range res.Anomalies {
			switch a.Type {
			case linkproto.AnomalyNonNumeric, linkproto.AnomalyEmptyValue:
				s.NonNumeric++
			case linkproto.AnomalyOutOfRange:
				s.OutOfRange++
			}
		}
	}
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.EventRate = float64(s.TotalEvents) / elapsed
		errorCount := s.DecodeErrors + s.UserErrors + s.StoreErrors + s.ChannelErrors
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calculateRates()

	percent := func(n uint64) float64 {
		if s.TotalEvents == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalEvents)
	}

	elapsed := time.Since(s.StartTime)
	readings := s.PhReadings + s.PpmReadings

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Events:    %8d\n", s.TotalEvents)
	result += fmt.Sprintf("Time Replies:    %8d (%.1f%%)\n", s.TimeReplies, percent(s.TimeReplies))
	result += fmt.Sprintf("Readings Stored: %8d (%.1f%%)\n", readings, percent(readings))
	if readings > 0 {
		result += fmt.Sprintf("  pH:               %5d\n", s.PhReadings)
		result += fmt.Sprintf("  PPM:              %5d\n", s.PpmReadings)
	}

	if s.Discarded > 0 {
		result += fmt.Sprintf("Discarded Lines: %8d (%.1f%%)\n", s.Discarded, percent(s.Discarded))
	}
	if s.IgnoredBytes > 0 {
		result += fmt.Sprintf("Ignored Bytes:   %8d\n", s.IgnoredBytes)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.UserErrors > 0 {
		result += fmt.Sprintf("User Errors:     %8d\n", s.UserErrors)
	}
	if s.StoreErrors > 0 {
		result += fmt.Sprintf("Store Errors:    %8d\n", s.StoreErrors)
	}
	if s.ChannelErrors > 0 {
		result += fmt.Sprintf("Channel Errors:  %8d\n", s.ChannelErrors)
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d (%.1f%%)\n", s.AnomalousValues, percent(s.AnomalousValues))
		if s.NonNumeric > 0 {
			result += fmt.Sprintf("  Non-numeric:      %5d\n", s.NonNumeric)
		}
		if s.OutOfRange > 0 {
			result += fmt.Sprintf("  Out of range:     %5d\n", s.OutOfRange)
		}
	}

	result += fmt.Sprintf("Event Rate:      %8.1f events/sec\n", s.EventRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Summary is a point-in-time copy of the headline counters
type Summary struct {
	Elapsed         time.Duration
	TotalEvents     uint64
	TimeReplies     uint64
	Readings        uint64
	Discarded       uint64
	Errors          uint64
	AnomalousValues uint64
	EventRate       float64
	ErrorRate       float64
}

// Summary returns the current counters for display
func (s *Statistics) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calculateRates()
	return Summary{
		Elapsed:         time.Since(s.StartTime),
		TotalEvents:     s.TotalEvents,
		TimeReplies:     s.TimeReplies,
		Readings:        s.PhReadings + s.PpmReadings,
		Discarded:       s.Discarded,
		Errors:          s.DecodeErrors + s.UserErrors + s.StoreErrors + s.ChannelErrors,
		AnomalousValues: s.AnomalousValues,
		EventRate:       s.EventRate,
		ErrorRate:       s.ErrorRate,
	}
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalEvents = 0
	s.TimeReplies = 0
	s.PhReadings = 0
	s.PpmReadings = 0
	s.Discarded = 0
	s.IgnoredBytes = 0
	s.DecodeErrors = 0
	s.UserErrors = 0
	s.StoreErrors = 0
	s.ChannelErrors = 0
	s.AnomalousValues = 0
	s.NonNumeric = 0
	s.OutOfRange = 0
	s.EventRate = 0
	s.ErrorRate = 0
}
