// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/exstat/internal/metrics"
	"github.com/Thermoquad/exstat/pkg/exbus"
)

// linkReport is one decoder outcome worth showing to the user
type linkReport struct {
	timestamp  time.Time
	event      exbus.Event
	frame      exbus.Frame
	validation []exbus.ValidationError

	// set on the first valid frame
	synced       bool
	invalidBytes uint64
}

// linkMonitor runs the decoder for the analyzer commands and keeps link
// statistics. handleByte runs on the pump goroutine, everything else may be
// called from any goroutine.
type linkMonitor struct {
	decoder *exbus.Decoder
	health  *exbus.HealthMonitor
	metrics *metrics.LinkMetrics
	report  func(linkReport)

	mu           sync.Mutex
	stats        *exbus.Statistics
	synchronized bool
}

func newLinkMonitor(m *metrics.LinkMetrics, report func(linkReport)) *linkMonitor {
	return &linkMonitor{
		decoder: exbus.NewDecoder(),
		health:  exbus.NewHealthMonitor(0),
		metrics: m,
		report:  report,
		stats:   exbus.NewStatistics(),
	}
}

func (l *linkMonitor) handleByte(b byte) {
	ev := l.decoder.DecodeByte(b)
	if r, ok := l.account(ev, l.decoder.Frame()); ok {
		// The reporter may block (TUI), so it never runs under l.mu
		l.emit(r)
	}
}

// account updates statistics for one event and returns the report to emit,
// if any
func (l *linkMonitor) account(ev exbus.Event, f *exbus.Frame) (linkReport, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stats.Update(ev, f)
	if l.metrics != nil {
		l.metrics.ObserveEvent(ev, f)
	}

	switch {
	case ev == exbus.EventFrame:
		r := linkReport{timestamp: time.Now(), event: ev, frame: *f}
		r.validation = exbus.ValidateFrame(f)
		l.stats.UpdateValidation(r.validation)
		if l.metrics != nil {
			l.metrics.ObserveValidation(r.validation)
		}
		if !l.synchronized {
			l.synchronized = true
			r.synced = true
			r.invalidBytes = l.stats.JunkBytes
		}
		return r, true

	case ev == exbus.EventFiltered || (ev.IsError() && l.synchronized):
		// Errors before the first frame are usually a baud mismatch and
		// only show up in the junk count
		return linkReport{timestamp: time.Now(), event: ev, frame: *f}, true
	}
	return linkReport{}, false
}

func (l *linkMonitor) emit(r linkReport) {
	if l.report != nil {
		l.report(r)
	}
}

// reportQueue hands reports from the pump to a slower consumer. Reports
// that do not fit are dropped and counted, except the sync report.
type reportQueue struct {
	ch      chan linkReport
	dropped atomic.Uint64
}

func newReportQueue(size int) *reportQueue {
	return &reportQueue{ch: make(chan linkReport, size)}
}

func (q *reportQueue) push(r linkReport) {
	if r.synced {
		q.ch <- r
		return
	}
	select {
	case q.ch <- r:
	default:
		q.dropped.Add(1)
	}
}

// forward passes queued reports to send until close is called
func (q *reportQueue) forward(send func(linkReport)) {
	for r := range q.ch {
		send(r)
	}
}

func (q *reportQueue) close() {
	close(q.ch)
}

// checkHealth hops the baud rate when the link produced only junk
func (l *linkMonitor) checkHealth(port exbus.Port) bool {
	if !l.health.Check(l.decoder) {
		return false
	}

	l.mu.Lock()
	l.stats.RecordBaudRetry()
	l.mu.Unlock()
	if l.metrics != nil {
		l.metrics.BaudRetries.Inc()
	}

	logger.Info("no valid EX Bus frame, trying other baud rate",
		zap.Uint32("junk_threshold", l.health.Threshold()))
	hopBaud(port)
	return true
}

// snapshot returns a copy of the current statistics
func (l *linkMonitor) snapshot() exbus.Statistics {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := *l.stats
	s.CalculateRates()
	return s
}

// withStats runs fn with the statistics locked
func (l *linkMonitor) withStats(fn func(*exbus.Statistics)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.stats)
}

// startMetricsServer serves Prometheus metrics on addr and returns the link
// metrics to feed. It returns nils when addr is empty.
func startMetricsServer(addr string) (*metrics.LinkMetrics, *http.Server) {
	if addr == "" {
		return nil, nil
	}

	reg := metrics.NewRegistry()
	lm := metrics.NewLinkMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return lm, srv
}
