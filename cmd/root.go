// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Shared flags
	configFile  string
	releaseMode string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "exstat",
	Short: "Jeti EX Bus Link Analyzer",
	Long: `exstat - A CLI tool for decoding and diagnosing Jeti EX Bus receiver links.

Decodes the RC channel frames a Jeti receiver sends over EX Bus, tracks CRC
failures and junk bytes, and exposes the decoded channels for inspection,
replay and bridging.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 125000]
  WebSocket: --url ws://host/path [--username user]

Settings may also come from a YAML file (--config) or EXSTAT_* environment
variables, e.g. EXSTAT_PORT=/dev/ttyUSB0.

For WebSocket authentication, the password is read from the EXSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "1.0.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	SilenceUsage: true,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 125000, "Initial baud rate (serial only, 125000 or 250000)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&releaseMode, "release", "sweep", "Frame release mode: sweep or first-read")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format: console or json")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs to this file (rotated)")
}

// Execute runs the root command
func Execute() error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.Execute()
}
