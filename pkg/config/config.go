// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads fieldlink settings from a YAML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when --config is not given
const DefaultPath = "/etc/fieldlink/config.yaml"

// Store backends
const (
	BackendInflux = "influx"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Store   StoreConfig   `yaml:"store"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	Clock   ClockConfig   `yaml:"clock"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type SerialConfig struct {
	Port         string        `yaml:"port"`
	Baud         int           `yaml:"baud"`
	LineTimeout  time.Duration `yaml:"line_timeout"` // 0 waits for the terminator indefinitely
	PollInterval time.Duration `yaml:"poll_interval"`
	OpenRetries  int           `yaml:"open_retries"`
}

// BridgeConfig selects a serial-over-WebSocket bridge instead of a local port
type BridgeConfig struct {
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	Password    string `yaml:"-"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

type StoreConfig struct {
	Backend string        `yaml:"backend"`
	Influx  InfluxConfig  `yaml:"influx"`
	Redis   RedisConfig   `yaml:"redis"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Breaker BreakerConfig `yaml:"breaker"`
}

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
	// Lookback bounds the current-user query window
	Lookback time.Duration `yaml:"lookback"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

type MQTTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Broker         string `yaml:"broker"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TopicPrefix    string `yaml:"topic_prefix"`
	ConnectRetries int    `yaml:"connect_retries"`
}

// GPIOConfig uses BCM pin numbers
type GPIOConfig struct {
	RelayPin    int           `yaml:"relay_pin"`
	MoisturePin int           `yaml:"moisture_pin"`
	Samples     int           `yaml:"samples"`
	PumpDwell   time.Duration `yaml:"pump_dwell"`
}

type ClockConfig struct {
	LocalAsUTC bool `yaml:"local_as_utc"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
	Output string `yaml:"output"` // stdout | stderr | file path
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the ops server
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:         "/dev/ttyACM0",
			Baud:         9600,
			PollInterval: 10 * time.Millisecond,
			OpenRetries:  10,
		},
		Store: StoreConfig{
			Backend: BackendInflux,
			Influx: InfluxConfig{
				URL:      "http://localhost:8086",
				Org:      "pifarm",
				Bucket:   "pifarm",
				Lookback: 365 * 24 * time.Hour,
			},
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
			SQLite: SQLiteConfig{
				Path: "/var/lib/fieldlink/fieldlink.db",
			},
			Breaker: BreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
		},
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			ClientID:       "fieldlink",
			TopicPrefix:    "fieldlink",
			ConnectRetries: 5,
		},
		GPIO: GPIOConfig{
			RelayPin:    20,
			MoisturePin: 21,
			Samples:     10,
			PumpDwell:   5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not an
// error; the returned bool reports whether a file was read.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, false, nil
		}
		return nil, false, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, true, nil
}

// ApplyEnv overrides settings from FIELDLINK_* environment variables.
// getenv is os.Getenv outside of tests.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("FIELDLINK_SERIAL_PORT", &c.Serial.Port)
	num("FIELDLINK_SERIAL_BAUD", &c.Serial.Baud)
	dur("FIELDLINK_LINE_TIMEOUT", &c.Serial.LineTimeout)

	str("FIELDLINK_BRIDGE_URL", &c.Bridge.URL)
	str("FIELDLINK_BRIDGE_USERNAME", &c.Bridge.Username)
	str("FIELDLINK_BRIDGE_PASSWORD", &c.Bridge.Password)

	str("FIELDLINK_STORE_BACKEND", &c.Store.Backend)
	str("FIELDLINK_INFLUX_URL", &c.Store.Influx.URL)
	str("FIELDLINK_INFLUX_TOKEN", &c.Store.Influx.Token)
	str("FIELDLINK_INFLUX_ORG", &c.Store.Influx.Org)
	str("FIELDLINK_INFLUX_BUCKET", &c.Store.Influx.Bucket)
	str("FIELDLINK_REDIS_ADDR", &c.Store.Redis.Addr)
	str("FIELDLINK_REDIS_PASSWORD", &c.Store.Redis.Password)
	str("FIELDLINK_SQLITE_PATH", &c.Store.SQLite.Path)

	flag("FIELDLINK_MQTT_ENABLED", &c.MQTT.Enabled)
	str("FIELDLINK_MQTT_BROKER", &c.MQTT.Broker)
	str("FIELDLINK_MQTT_USERNAME", &c.MQTT.Username)
	str("FIELDLINK_MQTT_PASSWORD", &c.MQTT.Password)

	num("FIELDLINK_RELAY_PIN", &c.GPIO.RelayPin)
	num("FIELDLINK_MOISTURE_PIN", &c.GPIO.MoisturePin)
	dur("FIELDLINK_PUMP_DWELL", &c.GPIO.PumpDwell)

	flag("FIELDLINK_LOCAL_AS_UTC", &c.Clock.LocalAsUTC)
	str("FIELDLINK_LOG_LEVEL", &c.Log.Level)
	str("FIELDLINK_METRICS_ADDR", &c.Metrics.Addr)

	return errors.Join(errs...)
}

// Validate checks the settings for consistency
func (c *Config) Validate() error {
	var errs []error

	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud))
	}
	if c.Serial.LineTimeout < 0 {
		errs = append(errs, fmt.Errorf("serial.line_timeout must not be negative"))
	}
	if c.Serial.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("serial.poll_interval must be positive"))
	}

	switch c.Store.Backend {
	case BackendInflux, BackendRedis, BackendSQLite, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}

	if c.GPIO.Samples <= 0 {
		errs = append(errs, fmt.Errorf("gpio.samples must be positive, got %d", c.GPIO.Samples))
	}
	if c.GPIO.RelayPin == c.GPIO.MoisturePin {
		errs = append(errs, fmt.Errorf("gpio.relay_pin and gpio.moisture_pin are both %d", c.GPIO.RelayPin))
	}
	if c.GPIO.PumpDwell <= 0 {
		errs = append(errs, fmt.Errorf("gpio.pump_dwell must be positive"))
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
