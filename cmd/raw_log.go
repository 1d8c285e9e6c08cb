// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/exstat/pkg/capture"
	"github.com/Thermoquad/exstat/pkg/exbus"
)

var (
	recordFile string
	showErrors bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display decoded RC frames in human-readable format",
	Long: `Continuously decode and display EX Bus RC frames as they arrive.

Each frame is shown with timestamp, header fields and all channels in
microseconds. Use --errors to also print CRC failures and invalid lengths.

With --record, the raw byte stream is also written to a CBOR capture file
that can be played back later with the replay command.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&recordFile, "record", "", "Write a capture of the raw byte stream to this file")
	rawLogCmd.Flags().BoolVar(&showErrors, "errors", false, "Also print decode errors")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	var tee io.Writer
	if recordFile != "" {
		f, err := os.Create(recordFile)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()

		source := portName
		if wsURL != "" {
			source = wsURL
		}
		w, err := capture.NewWriter(f, source, baudRate)
		if err != nil {
			return err
		}
		defer func() {
			chunks, bytes := w.Stats()
			fmt.Printf("Recorded %d bytes in %d chunks to %s\n", bytes, chunks, recordFile)
		}()
		tee = w
	}

	decoder := exbus.NewDecoder()
	port, connInfo, err := openStream(tee, func(b byte) {
		printEvent(decoder.DecodeByte(b), decoder.Frame())
	})
	if err != nil {
		return err
	}
	defer port.Close()

	fmt.Printf("exstat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if recordFile != "" {
		fmt.Printf("Recording: %s\n", recordFile)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	select {
	case <-interrupt:
		return nil
	case <-port.Done():
		if err := port.Err(); err != nil && !errors.Is(err, io.EOF) {
			logger.Sugar().Warnf("link closed: %v", err)
		}
		fmt.Printf("Connection closed\n")
		return nil
	}
}

// printEvent prints frames and, with --errors, decode failures
func printEvent(ev exbus.Event, f *exbus.Frame) {
	switch {
	case ev == exbus.EventFrame:
		fmt.Print(exbus.FormatFrame(f, time.Now()))
	case ev.IsError() && showErrors:
		fmt.Printf("[%s] \033[1;31m%s:\033[0m %s\n", time.Now().Format("15:04:05.000"), ev, exbus.FormatEvent(ev, f))
		fmt.Print(exbus.FormatHex(f.Bytes()))
	}
}
