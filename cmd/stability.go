// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/exstat/pkg/exbus"
)

var stabilityCmd = &cobra.Command{
	Use:   "stability",
	Short: "Test link stability over a fixed duration",
	Long: `Keep the link open and report throughput once per second.

Bytes and validated frames are counted per second, which makes dropouts of
the WebSocket bridge or the receiver easy to spot. The test fails when the
connection drops or no frame arrives for --max-gap.

Exit codes:
  0 - Test completed normally
  1 - Test failed
  2 - Connection error`,
	RunE: runStability,
}

var (
	stabilityDuration int
	stabilityMaxGap   time.Duration
)

func init() {
	rootCmd.AddCommand(stabilityCmd)
	stabilityCmd.Flags().IntVar(&stabilityDuration, "duration", 30, "Test duration in seconds")
	stabilityCmd.Flags().DurationVar(&stabilityMaxGap, "max-gap", 2*time.Second, "Longest allowed time without a valid frame")
}

func runStability(cmd *cobra.Command, args []string) error {
	if err := requirePositive("duration", time.Duration(stabilityDuration)*time.Second); err != nil {
		return err
	}
	if err := requirePositive("max-gap", stabilityMaxGap); err != nil {
		return err
	}

	var bytesReceived, framesReceived atomic.Uint64
	decoder := exbus.NewDecoder()
	port, connInfo, err := openStream(nil, func(b byte) {
		bytesReceived.Add(1)
		if decoder.DecodeByte(b) == exbus.EventFrame {
			framesReceived.Add(1)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer port.Close()

	fmt.Printf("Link Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", stabilityDuration)

	started := time.Now()
	endTime := started.Add(time.Duration(stabilityDuration) * time.Second)
	lastFrameAt := started
	var lastBytes, lastFrames uint64

	results := func(result string) {
		fmt.Printf("\n--- Test Results ---\n")
		fmt.Printf("Duration: %v\n", time.Since(started).Truncate(time.Millisecond))
		fmt.Printf("Frames received: %d\n", framesReceived.Load())
		fmt.Printf("Bytes received: %d (junk: %d)\n", bytesReceived.Load(), decoder.JunkBytes())
		fmt.Printf("Result: %s\n", result)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for time.Now().Before(endTime) {
		select {
		case <-port.Done():
			fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), port.Err())
			results("FAILED (connection error)")
			os.Exit(1)

		case now := <-ticker.C:
			b, f := bytesReceived.Load(), framesReceived.Load()
			if f > lastFrames {
				lastFrameAt = now
			}
			fmt.Printf("[%s] %5d bytes/s %4d frames/s (%.0fs remaining)\n",
				now.Format("15:04:05.000"), b-lastBytes, f-lastFrames, time.Until(endTime).Seconds())
			lastBytes, lastFrames = b, f

			if gap := now.Sub(lastFrameAt); gap > stabilityMaxGap {
				results(fmt.Sprintf("FAILED (no valid frame for %v)", gap.Truncate(time.Millisecond)))
				os.Exit(1)
			}
		}
	}

	results("PASSED (link stable)")
	return nil
}
