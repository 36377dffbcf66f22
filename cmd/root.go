// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pifarm/fieldlink/pkg/config"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Logging flags
	logLevel  string
	logFormat string

	// Populated by PersistentPreRunE for every subcommand
	cfg     *config.Config
	log     *logrus.Logger
	logFile io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "fieldlink",
	Short: "Farm sensor link bridge",
	Long: `Fieldlink - bridges a sensor microcontroller's serial link to a data store.

The microcontroller sends single control bytes: '$' asks for the time, '#'
announces a pH line and '&' announces a PPM line. Readings are stored against
the current user. The same tool runs the soil moisture watering cycle.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

Settings are read from --config (YAML), then FIELDLINK_* environment variables,
then flags. The bridge password is read from FIELDLINK_BRIDGE_PASSWORD, or
prompted interactively if not set. A --password flag is intentionally not
provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text or json)")
}

// setup loads the layered configuration and builds the logger
func setup(cmd *cobra.Command, args []string) error {
	loaded, found, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := loaded.ApplyEnv(os.Getenv); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	applyFlags(cmd, loaded)
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = loaded

	logger, closer, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	log, logFile = logger, closer

	if !found && cmd.Flags().Changed("config") {
		log.WithField("path", configPath).Warn("Config file not found, using defaults")
	}
	return nil
}

// applyFlags copies explicitly set flags over file and environment values
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		c.Serial.Port = portName
	}
	if flags.Changed("baud") {
		c.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		c.Bridge.URL = wsURL
	}
	if flags.Changed("username") {
		c.Bridge.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		c.Bridge.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		c.Log.Format = logFormat
	}
}

func newLogger(lc config.LogConfig) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		return nil, nil, err
	}
	logger.SetLevel(level)

	if lc.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var closer io.Closer
	switch lc.Output {
	case "", "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(lc.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(f)
		closer = f
	}

	return logger, closer, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
