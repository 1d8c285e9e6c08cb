// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/exstat/pkg/exbus"
)

var (
	linkTestTimeout int
)

var linkTestCmd = &cobra.Command{
	Use:   "link_test",
	Short: "Test connection by waiting for a valid RC frame",
	Long: `Wait for a valid EX Bus RC frame on the connection until timeout.

This command opens the link through the receiver driver and polls it the way
a flight controller would. It ignores junk bytes and waits for a complete RC
frame that passes its CRC check. While nothing validates, the driver's link
health check alternates the serial port between 125000 and 250000 baud.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking receiver wiring and baud rate.`,
	RunE: runLinkTest,
}

func init() {
	rootCmd.AddCommand(linkTestCmd)
	linkTestCmd.Flags().IntVar(&linkTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runLinkTest(cmd *cobra.Command, args []string) error {
	driver, port, connInfo, err := openLink(nil, hopBaud)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer port.Close()

	fmt.Printf("exstat - Link Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", linkTestTimeout)
	fmt.Printf("Waiting for valid RC frame...\n\n")

	poll := time.NewTicker(5 * time.Millisecond)
	defer poll.Stop()
	timeout := time.After(time.Duration(linkTestTimeout) * time.Second)

	for {
		select {
		case <-poll.C:
			if !driver.PollFrameReady() {
				continue
			}
			frame, ok := driver.TakeFrame()
			if !ok {
				continue
			}

			if junk := driver.JunkBytes(); junk > 0 {
				fmt.Printf("(skipped %d junk bytes before sync)\n", junk)
			}
			fmt.Printf("SUCCESS: Received valid frame\n")
			fmt.Printf("  Baud: %d (retries: %d)\n", port.BaudRate(), driver.BaudRetries())
			fmt.Printf("  Source: 0x%02X  Packet ID: %d\n", frame.Source(), frame.PacketID())
			fmt.Printf("  Length: %d bytes (%d channels)\n", frame.Len(), frame.ChannelCount())
			fmt.Printf("  CRC: 0x%04X\n", frame.CRC())
			fmt.Print(exbus.FormatChannels(&frame))
			os.Exit(0)

		case <-port.Done():
			fmt.Fprintf(os.Stderr, "Read error: %v\n", port.Err())
			os.Exit(2)

		case <-timeout:
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds (%d baud retries)\n",
				linkTestTimeout, driver.BaudRetries())
			os.Exit(1)
		}
	}
}
