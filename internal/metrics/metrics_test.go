// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/exstat/pkg/exbus"
)

func TestLinkMetrics_ObserveEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLinkMetrics(reg)
	d := exbus.NewDecoder()

	stream := []byte{0x00, 0x01}
	stream = append(stream, exbus.MustEncodeRCFrame(0x01, 0x01, []uint16{12000, 16000})...)
	for _, b := range stream {
		ev := d.DecodeByte(b)
		m.ObserveEvent(ev, d.Frame())
	}

	assert.Equal(t, float64(len(stream)), testutil.ToFloat64(m.Bytes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.JunkBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("FRAME")))
	assert.Equal(t, 1500.0, testutil.ToFloat64(m.Channels.WithLabelValues("1")))
	assert.Equal(t, 2000.0, testutil.ToFloat64(m.Channels.WithLabelValues("2")))
}

func TestLinkMetrics_ObserveValidation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLinkMetrics(reg)

	m.ObserveValidation([]exbus.ValidationError{
		{Type: exbus.AnomalyShortFrame},
		{Type: exbus.AnomalyChannelRange},
		{Type: exbus.AnomalyChannelRange},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Anomalies.WithLabelValues("channel_range")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Anomalies.WithLabelValues("short_frame")))
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := NewLinkMetrics(reg)
	m.BaudRetries.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "exbus_baud_retries_total 1")
}
