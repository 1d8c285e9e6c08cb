// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/exstat/pkg/exbus"
)

// NewRegistry creates a Prometheus registry with the Go and process
// collectors registered
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the metrics HTTP handler for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// LinkMetrics exports EX Bus link counters
type LinkMetrics struct {
	Bytes       prometheus.Counter
	Events      *prometheus.CounterVec // labels: event
	JunkBytes   prometheus.Counter
	Anomalies   *prometheus.CounterVec // labels: type
	BaudRetries prometheus.Counter
	Channels    *prometheus.GaugeVec // labels: channel
}

// NewLinkMetrics registers and returns the link metrics
func NewLinkMetrics(reg prometheus.Registerer) *LinkMetrics {
	m := &LinkMetrics{
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exbus_bytes_received_total",
			Help: "Total bytes received on the EX Bus link.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exbus_decoder_events_total",
			Help: "Decoder events by kind.",
		}, []string{"event"}),
		JunkBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exbus_junk_bytes_total",
			Help: "Bytes discarded outside a valid frame.",
		}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exbus_frame_anomalies_total",
			Help: "Validation anomalies found in CRC-valid frames.",
		}, []string{"type"}),
		BaudRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exbus_baud_retries_total",
			Help: "Baud retries requested by the link health monitor.",
		}),
		Channels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exbus_channel_microseconds",
			Help: "Latest channel value in microseconds.",
		}, []string{"channel"}),
	}
	reg.MustRegister(m.Bytes, m.Events, m.JunkBytes, m.Anomalies, m.BaudRetries, m.Channels)
	return m
}

// ObserveEvent records one decoder event
func (m *LinkMetrics) ObserveEvent(ev exbus.Event, f *exbus.Frame) {
	m.Bytes.Inc()
	if ev != exbus.EventNone {
		m.Events.WithLabelValues(ev.String()).Inc()
	}

	switch ev {
	case exbus.EventJunk:
		m.JunkBytes.Inc()
	case exbus.EventCRCError, exbus.EventOversize, exbus.EventUndersize:
		m.JunkBytes.Add(float64(f.Len()))
	case exbus.EventFrame:
		for i := 0; i < f.ChannelCount(); i++ {
			m.Channels.WithLabelValues(strconv.Itoa(i + 1)).Set(float64(f.Channel(i)))
		}
	}
}

// ObserveValidation records validation anomalies for a frame
func (m *LinkMetrics) ObserveValidation(errs []exbus.ValidationError) {
	for _, e := range errs {
		m.Anomalies.WithLabelValues(anomalyLabel(e.Type)).Inc()
	}
}

func anomalyLabel(t exbus.AnomalyType) string {
	switch t {
	case exbus.AnomalyShortFrame:
		return "short_frame"
	case exbus.AnomalySubLengthMismatch:
		return "sub_length"
	case exbus.AnomalyChannelRange:
		return "channel_range"
	default:
		return "unknown"
	}
}
