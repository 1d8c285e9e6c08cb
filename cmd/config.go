// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Thermoquad/exstat/internal/logging"
	"github.com/Thermoquad/exstat/pkg/exbus"
)

// newViper returns a viper instance reading EXSTAT_* environment variables
// and, when path is set, a config file.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("EXSTAT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-max-size-mb", 10)
	v.SetDefault("log-max-backups", 3)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return v, nil
}

// applyConfig copies config file and environment values into every flag the
// user did not set on the command line
func applyConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	var firstErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || firstErr != nil || !v.IsSet(f.Name) {
			return
		}
		val := v.Get(f.Name)
		if list, ok := val.([]interface{}); ok {
			parts := make([]string, len(list))
			for i, item := range list {
				parts[i] = fmt.Sprint(item)
			}
			val = strings.Join(parts, ",")
		}
		if err := f.Value.Set(fmt.Sprint(val)); err != nil {
			firstErr = fmt.Errorf("invalid value for %s: %w", f.Name, err)
		}
	})
	return firstErr
}

// loadConfig merges config sources into cmd's flags and builds the logger
func loadConfig(cmd *cobra.Command) error {
	v, err := newViper(configFile)
	if err != nil {
		return err
	}
	if err := applyConfig(v, cmd.Flags()); err != nil {
		return err
	}

	flags := cmd.Flags()
	level, _ := flags.GetString("log-level")
	format, _ := flags.GetString("log-format")
	file, _ := flags.GetString("log-file")
	logger = logging.New(logging.Config{
		Level:      level,
		Format:     format,
		File:       file,
		MaxSizeMB:  v.GetInt("log-max-size-mb"),
		MaxBackups: v.GetInt("log-max-backups"),
	})
	return nil
}

// driverConfig builds the EX Bus driver options from the shared flags
func driverConfig(onRetry exbus.BaudRetryFunc) (exbus.Config, error) {
	mode, ok := exbus.ParseReleaseMode(releaseMode)
	if !ok {
		return exbus.Config{}, fmt.Errorf("unknown release mode %q (use sweep or first-read)", releaseMode)
	}
	return exbus.Config{
		Release:     mode,
		OnBaudRetry: onRetry,
		Logger:      logger.Named("exbus"),
	}, nil
}

// requirePositive rejects a period flag that time.NewTicker would panic on
func requirePositive(flag string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("--%s must be positive (got %s)", flag, d)
	}
	return nil
}
