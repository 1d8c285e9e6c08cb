// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/exstat/pkg/capture"
	"github.com/Thermoquad/exstat/pkg/exbus"
)

var (
	replayRealtime bool
	replayQuiet    bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Play a recorded capture back through the receiver driver",
	Long: `Feed a capture written by raw_log --record through the receiver driver.

Frames are taken from the driver the way a control loop would after every
recorded read, then final link statistics are printed. Use --realtime to
honor the recorded timing.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", false, "Replay with the recorded timing")
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "Only print the final statistics")
}

// replayOpener hands the driver a port backed by a capture file
type replayOpener struct {
	baud    int
	handler exbus.ByteHandler
}

func (o *replayOpener) Open(cfg exbus.PortConfig, handler exbus.ByteHandler) (exbus.Port, error) {
	if o.baud == 0 {
		o.baud = cfg.BaudRate
	}
	o.handler = handler
	return o, nil
}

func (o *replayOpener) BaudRate() int {
	return o.baud
}

func (o *replayOpener) SetBaudRate(baud int) error {
	o.baud = baud
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	r, err := capture.NewReader(f)
	if err != nil {
		return err
	}
	hdr := r.Header()

	cfg, err := driverConfig(nil)
	if err != nil {
		return err
	}
	driver := exbus.NewDriver(cfg)
	opener := &replayOpener{baud: hdr.BaudRate}
	if err := driver.Init(opener); err != nil {
		return err
	}
	monitor := newLinkMonitor(nil, nil)

	fmt.Printf("exstat - Replay\n")
	fmt.Printf("Capture: %s (source %s, %d baud, recorded %s)\n\n",
		args[0], hdr.Source, hdr.BaudRate, hdr.Started().Format(time.RFC3339))

	start := time.Now()
	err = r.Each(func(c capture.Chunk) error {
		if replayRealtime {
			if wait := c.Offset - time.Since(start); wait > 0 {
				time.Sleep(wait)
			}
		}

		for _, b := range c.Data {
			opener.handler(b)
			monitor.handleByte(b)
		}

		if !driver.PollFrameReady() {
			return nil
		}
		if frame, ok := driver.TakeFrame(); ok && !replayQuiet {
			fmt.Print(exbus.FormatFrame(&frame, hdr.Started().Add(c.Offset)))
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Frames delivered by driver: %d\n", driver.FramesReceived())
	monitor.withStats(func(s *exbus.Statistics) {
		fmt.Print(s.String())
	})
	return nil
}
