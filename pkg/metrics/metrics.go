// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes dispatcher and moisture cycle counters to Prometheus.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pifarm/fieldlink/pkg/dispatch"
	"github.com/pifarm/fieldlink/pkg/moisture"
)

const namespace = "fieldlink"

// Collectors holds every fieldlink metric on a private registry
type Collectors struct {
	registry *prometheus.Registry

	Events      *prometheus.CounterVec
	Readings    *prometheus.CounterVec
	Errors      *prometheus.CounterVec
	Anomalies   *prometheus.CounterVec
	LastReading *prometheus.GaugeVec
	LineWait    prometheus.Histogram
	ChannelUp   prometheus.Gauge
	Reconnects  prometheus.Counter

	Cycles        *prometheus.CounterVec
	PumpSeconds   prometheus.Counter
	LastCycleTime prometheus.Gauge
}

// New creates and registers the collectors, plus Go runtime and process
// collectors
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),

		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_events_total",
			Help:      "Control bytes handled, by outcome.",
		}, []string{"kind"}),

		Readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_stored_total",
			Help:      "Readings written to the store, by category.",
		}, []string{"category"}),

		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_errors_total",
			Help:      "Dispatcher errors, by type.",
		}, []string{"type"}),

		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reading_anomalies_total",
			Help:      "Readings with suspicious values, by category and anomaly.",
		}, []string{"category", "anomaly"}),

		LastReading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_reading",
			Help:      "Most recent numeric reading, by category.",
		}, []string{"category"}),

		LineWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "line_wait_seconds",
			Help:      "Time spent waiting for a payload line after its signal byte.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),

		ChannelUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_up",
			Help:      "1 while the serial channel is open.",
		}),

		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_reconnects_total",
			Help:      "Serial channel reopen attempts after a failure.",
		}),

		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moisture_cycles_total",
			Help:      "Moisture cycles, by outcome.",
		}, []string{"outcome"}),

		PumpSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pump_seconds_total",
			Help:      "Time the pump relay was closed.",
		}),

		LastCycleTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "moisture_last_cycle_timestamp_seconds",
			Help:      "Unix time of the last moisture cycle.",
		}),
	}

	c.registry.MustRegister(
		c.Events,
		c.Readings,
		c.Errors,
		c.Anomalies,
		c.LastReading,
		c.LineWait,
		c.ChannelUp,
		c.Reconnects,
		c.Cycles,
		c.PumpSeconds,
		c.LastCycleTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the collectors are registered on
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// errorType labels a dispatcher error
func errorType(err error) string {
	var (
		decodeErr  *dispatch.DecodeError
		userErr    *dispatch.UserError
		storeErr   *dispatch.StoreError
		channelErr *dispatch.ChannelError
	)
	switch {
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &userErr):
		return "user"
	case errors.As(err, &storeErr):
		return "store"
	case errors.As(err, &channelErr):
		return "channel"
	default:
		return "other"
	}
}

// ObserveResult records one dispatcher poll. It has the dispatch.Observer
// signature.
func (c *Collectors) ObserveResult(res dispatch.Result) {
	if res.Kind == dispatch.KindIdle {
		return
	}
	c.Events.WithLabelValues(res.Kind.String()).Inc()

	if res.Err != nil {
		c.Errors.WithLabelValues(errorType(res.Err)).Inc()
	}
	if res.LineWait > 0 {
		c.LineWait.Observe(res.LineWait.Seconds())
	}

	if res.Kind != dispatch.KindReading {
		return
	}
	category := string(res.Category)
	c.Readings.WithLabelValues(category).Inc()
	for _, a := range res.Anomalies {
		c.Anomalies.WithLabelValues(category, a.Type.String()).Inc()
	}
	if v, err := strconv.ParseFloat(res.Value, 64); err == nil {
		c.LastReading.WithLabelValues(category).Set(v)
	}
}

// ObserveCycle records one moisture cycle and how long the pump ran
func (c *Collectors) ObserveCycle(cycle moisture.Cycle, err error, pumped time.Duration) {
	outcome := "wet"
	switch {
	case err != nil:
		outcome = "failed"
	case cycle.Pumped:
		outcome = "watered"
	}
	c.Cycles.WithLabelValues(outcome).Inc()
	c.PumpSeconds.Add(pumped.Seconds())
	c.LastCycleTime.Set(float64(cycle.Started.Unix()))
	c.LastReading.WithLabelValues("moisture").Set(float64(cycle.Sample))
}

// SetChannelUp records whether the serial channel is open
func (c *Collectors) SetChannelUp(up bool) {
	if up {
		c.ChannelUp.Set(1)
	} else {
		c.ChannelUp.Set(0)
	}
}

// WriteTextfile writes the current metrics in text format for the node
// exporter textfile collector
func (c *Collectors) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
