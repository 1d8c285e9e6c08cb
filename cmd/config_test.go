// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/exstat/pkg/exbus"
)

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("port", "", "")
	flags.Int("baud", exbus.BaudLow, "")
	flags.String("log-level", "warn", "")
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestApplyConfig_Environment(t *testing.T) {
	t.Setenv("EXSTAT_PORT", "/dev/ttyUSB1")
	t.Setenv("EXSTAT_LOG_LEVEL", "debug")

	v, err := newViper("")
	require.NoError(t, err)
	flags := testFlags(t)
	require.NoError(t, applyConfig(v, flags))

	port, _ := flags.GetString("port")
	level, _ := flags.GetString("log-level")
	assert.Equal(t, "/dev/ttyUSB1", port)
	assert.Equal(t, "debug", level)
}

func TestApplyConfig_FileAndFlagPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exstat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: /dev/ttyS0\nbaud: 250000\n"), 0o644))

	v, err := newViper(path)
	require.NoError(t, err)
	flags := testFlags(t, "--port", "/dev/ttyACM0")
	require.NoError(t, applyConfig(v, flags))

	port, _ := flags.GetString("port")
	baud, _ := flags.GetInt("baud")
	assert.Equal(t, "/dev/ttyACM0", port)
	assert.Equal(t, exbus.BaudHigh, baud)
}

func TestApplyConfig_InvalidValue(t *testing.T) {
	t.Setenv("EXSTAT_BAUD", "fast")

	v, err := newViper("")
	require.NoError(t, err)
	assert.Error(t, applyConfig(v, testFlags(t)))
}

func TestNewViper_MissingFile(t *testing.T) {
	_, err := newViper(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDriverConfig(t *testing.T) {
	old := releaseMode
	defer func() { releaseMode = old }()

	releaseMode = "first-read"
	cfg, err := driverConfig(hopBaud)
	require.NoError(t, err)
	assert.Equal(t, exbus.ReleaseOnFirstRead, cfg.Release)
	assert.NotNil(t, cfg.OnBaudRetry)
	assert.NotNil(t, cfg.Logger)

	releaseMode = "never"
	_, err = driverConfig(nil)
	assert.Error(t, err)
}

func TestRequirePositive(t *testing.T) {
	assert.NoError(t, requirePositive("cycle", time.Millisecond))
	assert.ErrorContains(t, requirePositive("cycle", 0), "--cycle must be positive")
	assert.ErrorContains(t, requirePositive("max-gap", -time.Second), "--max-gap")
}

func TestRunCommands_RejectNonPositiveIntervals(t *testing.T) {
	defer func(s, d int, g time.Duration) {
		statsInterval, stabilityDuration, stabilityMaxGap = s, d, g
	}(statsInterval, stabilityDuration, stabilityMaxGap)

	statsInterval = 0
	assert.ErrorContains(t, runErrorDetection(nil, nil), "--stats-interval")

	stabilityDuration, stabilityMaxGap = 30, 0
	assert.ErrorContains(t, runStability(nil, nil), "--max-gap")

	stabilityDuration = -1
	assert.ErrorContains(t, runStability(nil, nil), "--duration")
}
