// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/exstat/pkg/exbus"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
	metricsAddr   string
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze link errors and implausible frames",
	Long: `Track CRC failures, junk bytes and implausible channel data with statistics.

This command validates each frame and detects:
  - CRC errors and invalid declared lengths
  - Junk bytes outside any valid frame (usually a baud rate mismatch)
  - Short frames, sub-length mismatches and channels outside 800-2200 us
  - Statistics and trends (frame rate, error rate, success rate)

While no frame has validated, the link health check alternates the serial
port between 125000 and 250000 baud once more than 1000 junk bytes pile up.

By default, only errors are displayed. Use --show-all to display valid frames too.
Use --metrics-addr to expose the counters to Prometheus.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	errorDetectionCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9102)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	if err := requirePositive("stats-interval", time.Duration(statsInterval)*time.Second); err != nil {
		return err
	}

	lm, srv := startMetricsServer(metricsAddr)
	if srv != nil {
		defer srv.Close()
	}

	if useTUI {
		return runTUIMode(newLinkMonitor(lm, nil))
	}
	return runTextMode(newLinkMonitor(lm, printReport))
}

// printReport prints one decoder outcome in highlighted format
func printReport(r linkReport) {
	timestamp := r.timestamp.Format("15:04:05.000")

	if r.synced {
		if r.invalidBytes > 0 {
			fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", r.invalidBytes)
		} else {
			fmt.Printf("[SYNC] Synchronized\n\n")
		}
	}

	switch {
	case r.event.IsError():
		fmt.Printf("[%s] \033[1;31m%s:\033[0m %s\n", timestamp, r.event, exbus.FormatEvent(r.event, &r.frame))
		fmt.Print(exbus.FormatHex(r.frame.Bytes()))
		fmt.Printf("  >>> FRAME DISCARDED <<<\n\n")

	case r.event == exbus.EventFiltered:
		if showAll {
			fmt.Printf("[%s] %s\n\n", timestamp, exbus.FormatEvent(r.event, &r.frame))
		}

	case len(r.validation) > 0:
		printValidationErrors(r)

	case showAll:
		fmt.Print(exbus.FormatFrame(&r.frame, r.timestamp))
		fmt.Println()
	}
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(r linkReport) {
	timestamp := r.timestamp.Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (id=%d)\n", timestamp,
		exbus.FormatFrameType(r.frame.Type()), r.frame.PacketID())
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range r.validation {
		switch err.Type {
		case exbus.AnomalyShortFrame:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if length, ok := err.Details["length"].(int); ok {
				fmt.Printf("    Frame length=%d\n", length)
			}

		case exbus.AnomalySubLengthMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)

		case exbus.AnomalyChannelRange:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Print(exbus.FormatChannels(&r.frame))
	fmt.Println()
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(monitor *linkMonitor) error {
	queue := newReportQueue(256)
	monitor.report = queue.push

	port, connInfo, err := openStream(nil, monitor.handleByte)
	if err != nil {
		return err
	}
	defer port.Close()

	m := initialModel(connInfo, monitor, port, showAll)
	p := tea.NewProgram(m)
	go queue.forward(func(r linkReport) {
		p.Send(linkReportMsg(r))
	})
	defer func() {
		if n := queue.dropped.Load(); n > 0 {
			logger.Info("TUI fell behind, reports dropped", zap.Uint64("dropped", n))
		}
	}()

	go func() {
		<-port.Done()
		p.Send(linkClosedMsg{err: port.Err()})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(monitor *linkMonitor) error {
	port, connInfo, err := openStream(nil, monitor.handleByte)
	if err != nil {
		return err
	}
	defer port.Close()

	fmt.Printf("exstat - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	healthTicker := time.NewTicker(time.Second)
	defer healthTicker.Stop()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	for {
		select {
		case <-healthTicker.C:
			if monitor.checkHealth(port) {
				fmt.Printf("[BAUD] No valid frame yet, now trying %d baud\n\n", port.BaudRate())
			}

		case <-statsTicker.C:
			monitor.withStats(func(s *exbus.Statistics) {
				fmt.Println()
				fmt.Print(s.String())
				fmt.Println()
			})

		case <-port.Done():
			fmt.Printf("Connection closed: %v\n\n", port.Err())
			monitor.withStats(func(s *exbus.Statistics) {
				fmt.Print(s.String())
			})
			return nil

		case <-interrupt:
			monitor.withStats(func(s *exbus.Statistics) {
				fmt.Println()
				fmt.Print(s.String())
			})
			return nil
		}
	}
}
