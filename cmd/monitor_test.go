// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/exstat/internal/metrics"
	"github.com/Thermoquad/exstat/pkg/exbus"
)

func corrupted(frame []byte) []byte {
	out := append([]byte(nil), frame...)
	out[10] ^= 0x01
	return out
}

func TestLinkMonitor_ReportsAfterSync(t *testing.T) {
	var reports []linkReport
	lm := metrics.NewLinkMetrics(prometheus.NewRegistry())
	monitor := newLinkMonitor(lm, func(r linkReport) {
		reports = append(reports, r)
	})

	frame := exbus.MustEncodeRCFrame(0x01, 0x01, centered(16))
	var stream []byte
	stream = append(stream, 0x00, 0x01, 0x02)
	stream = append(stream, corrupted(frame)...)
	stream = append(stream, frame...)
	stream = append(stream, corrupted(frame)...)
	for _, b := range stream {
		monitor.handleByte(b)
	}

	// The error before the first valid frame only shows in the junk count
	require.Len(t, reports, 2)
	assert.Equal(t, exbus.EventFrame, reports[0].event)
	assert.True(t, reports[0].synced)
	assert.Equal(t, uint64(3+len(frame)), reports[0].invalidBytes)
	assert.Empty(t, reports[0].validation)
	assert.Equal(t, uint16(1500), reports[0].frame.Channel(15))

	assert.Equal(t, exbus.EventCRCError, reports[1].event)
	assert.False(t, reports[1].synced)

	stats := monitor.snapshot()
	assert.Equal(t, uint64(len(stream)), stats.TotalBytes)
	assert.Equal(t, uint64(1), stats.ValidFrames)
	assert.Equal(t, uint64(2), stats.CRCErrors)
	assert.Equal(t, uint64(3+2*len(frame)), stats.JunkBytes)
	assert.Equal(t, 2.0, testutil.ToFloat64(lm.Events.WithLabelValues("CRC_ERROR")))
}

func TestLinkMonitor_ReportsValidation(t *testing.T) {
	var reports []linkReport
	monitor := newLinkMonitor(nil, func(r linkReport) {
		reports = append(reports, r)
	})

	ticks := centered(16)
	ticks[3] = exbus.MicrosecondsToTicks(2500)
	for _, b := range exbus.MustEncodeRCFrame(0x01, 0x01, ticks) {
		monitor.handleByte(b)
	}

	require.Len(t, reports, 1)
	require.Len(t, reports[0].validation, 1)
	assert.Equal(t, exbus.AnomalyChannelRange, reports[0].validation[0].Type)

	stats := monitor.snapshot()
	assert.Equal(t, uint64(1), stats.AnomalousFrames)
	assert.Equal(t, uint64(1), stats.OutOfRange)
}

func TestLinkMonitor_CheckHealth(t *testing.T) {
	monitor := newLinkMonitor(nil, nil)
	port := &replayOpener{baud: exbus.BaudLow}

	for i := 0; i < int(exbus.JunkThreshold); i++ {
		monitor.handleByte(0x00)
	}
	assert.False(t, monitor.checkHealth(port))

	monitor.handleByte(0x00)
	assert.True(t, monitor.checkHealth(port))
	assert.Equal(t, exbus.BaudHigh, port.BaudRate())
	assert.Equal(t, uint32(0), monitor.decoder.JunkBytes())
	assert.Equal(t, uint64(1), monitor.snapshot().BaudRetries)
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{2 * time.Hour, "2 hours"},
		{61 * time.Second, "1 minute and 1 second"},
		{90061 * time.Second, "1 day, 1 hour, 1 minute, and 1 second"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatElapsed(tt.in), tt.in.String())
	}
}

func TestChannelFraction(t *testing.T) {
	assert.Equal(t, 0.0, channelFraction(500))
	assert.Equal(t, 0.5, channelFraction(1500))
	assert.Equal(t, 1.0, channelFraction(2400))
}

func TestLinkMonitor_BlockedReporterDoesNotHoldStats(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	monitor := newLinkMonitor(nil, func(linkReport) { <-release })

	go func() {
		for _, b := range exbus.MustEncodeRCFrame(0x01, 0x01, centered(16)) {
			monitor.handleByte(b)
		}
	}()

	// The pump parks in the reporter after the last byte; statistics must
	// stay readable meanwhile
	deadline := time.After(2 * time.Second)
	for {
		snap := make(chan exbus.Statistics, 1)
		go func() { snap <- monitor.snapshot() }()

		select {
		case s := <-snap:
			if s.ValidFrames == 1 {
				assert.False(t, monitor.checkHealth(&replayOpener{baud: exbus.BaudLow}))
				return
			}
		case <-deadline:
			t.Fatal("statistics stayed locked while a report was pending")
		}
	}
}

func TestReportQueue_DropsWhenFull(t *testing.T) {
	q := newReportQueue(2)
	q.push(linkReport{event: exbus.EventFrame})
	q.push(linkReport{event: exbus.EventCRCError})
	q.push(linkReport{event: exbus.EventCRCError})
	assert.Equal(t, uint64(1), q.dropped.Load())

	q.close()
	var got []exbus.Event
	q.forward(func(r linkReport) { got = append(got, r.event) })
	assert.Equal(t, []exbus.Event{exbus.EventFrame, exbus.EventCRCError}, got)
}

func TestErrorDetectionTUI_KeepsUpWithFrames(t *testing.T) {
	queue := newReportQueue(256)
	monitor := newLinkMonitor(nil, queue.push)
	port := &replayOpener{baud: exbus.BaudLow}

	p := tea.NewProgram(initialModel("test", monitor, port, true),
		tea.WithoutRenderer(), tea.WithInput(nil))
	go queue.forward(func(r linkReport) { p.Send(linkReportMsg(r)) })

	exited := make(chan error, 1)
	go func() {
		_, err := p.Run()
		exited <- err
	}()

	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		frame := exbus.MustEncodeRCFrame(0x01, 0x01, centered(16))
		for i := 0; i < 2000; i++ {
			for _, b := range frame {
				monitor.handleByte(b)
			}
		}
	}()

	ticks := time.NewTicker(time.Millisecond)
	defer ticks.Stop()
	deadline := time.After(10 * time.Second)
	for done := false; !done; {
		select {
		case <-pumped:
			done = true
		case now := <-ticks.C:
			p.Send(tickMsg(now))
		case <-deadline:
			t.Fatal("pump stalled behind the TUI event loop")
		}
	}

	assert.Equal(t, uint64(2000), monitor.snapshot().ValidFrames)

	p.Quit()
	select {
	case err := <-exited:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("TUI did not quit")
	}
	queue.close()
}
