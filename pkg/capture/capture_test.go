// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/exstat/pkg/exbus"
)

func fakeClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func TestCapture_RecordAndReplay(t *testing.T) {
	var buf bytes.Buffer
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	w, err := newWriter(&buf, "/dev/ttyUSB0", exbus.BaudLow, fakeClock(start, 10*time.Millisecond))
	require.NoError(t, err)

	frame := exbus.MustEncodeRCFrame(0x01, 0x01, []uint16{12000, 12000, 8000, 16000})
	_, err = w.Write(frame[:10])
	require.NoError(t, err)
	_, err = w.Write(frame[10:])
	require.NoError(t, err)
	n, err := w.Write(nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	chunks, total := w.Stats()
	assert.Equal(t, 2, chunks)
	assert.Equal(t, len(frame), total)

	r, err := NewReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", r.Header().Source)
	assert.Equal(t, exbus.BaudLow, r.Header().BaudRate)
	assert.True(t, r.Header().Started().Equal(start))

	d := exbus.NewDecoder()
	var offsets []time.Duration
	var last exbus.Event
	require.NoError(t, r.Each(func(c Chunk) error {
		offsets = append(offsets, c.Offset)
		for _, b := range c.Data {
			last = d.DecodeByte(b)
		}
		return nil
	}))

	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, offsets)
	assert.Equal(t, exbus.EventFrame, last)
	assert.Equal(t, uint16(1500), d.Frame().Channel(0))

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestCapture_RejectsUnknownVersion(t *testing.T) {
	data, err := cbor.Marshal(Header{Version: 99})
	require.NoError(t, err)

	_, err = NewReader(bytes.NewReader(data))
	assert.ErrorContains(t, err, "unsupported capture version")
}

func TestCapture_EmptyInput(t *testing.T) {
	_, err := NewReader(bytes.NewReader(nil))
	assert.Error(t, err)
}
