// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/exstat/pkg/capture"
	"github.com/Thermoquad/exstat/pkg/exbus"
)

// streamConn replays a fixed byte stream and then reports io.EOF
type streamConn struct {
	r      io.Reader
	closed bool
}

func (c *streamConn) Read(p []byte) (int, error) { return c.r.Read(p) }
func (c *streamConn) Close() error               { c.closed = true; return nil }

// serialConn additionally accepts baud changes
type serialConn struct {
	streamConn
	bauds []int
}

func (c *serialConn) SetBaudRate(baud int) error {
	c.bauds = append(c.bauds, baud)
	return nil
}

func centered(n int) []uint16 {
	ticks := make([]uint16, n)
	for i := range ticks {
		ticks[i] = 12000
	}
	return ticks
}

func TestLinkOpener_PumpsEveryByte(t *testing.T) {
	data := append([]byte{0x00, 0x01}, exbus.MustEncodeRCFrame(0x01, 0x01, centered(16))...)
	conn := &streamConn{r: bytes.NewReader(data)}

	var got []byte
	port, err := (&linkOpener{conn: conn}).Open(exbus.PortConfig{BaudRate: exbus.BaudLow}, func(b byte) {
		got = append(got, b)
	})
	require.NoError(t, err)

	lp := port.(*linkPort)
	<-lp.Done()
	assert.ErrorIs(t, lp.Err(), io.EOF)
	assert.Equal(t, data, got)
	assert.Equal(t, exbus.BaudLow, port.BaudRate())
}

func TestLinkOpener_DriverReceivesFrame(t *testing.T) {
	data := exbus.MustEncodeRCFrame(0x01, 0x01, centered(16))
	conn := &serialConn{streamConn: streamConn{r: bytes.NewReader(data)}}

	driver := exbus.NewDriver(exbus.Config{})
	require.NoError(t, driver.Init(&linkOpener{conn: conn}))
	<-driver.Port().(*linkPort).Done()

	require.True(t, driver.PollFrameReady())
	assert.Equal(t, uint16(1500), driver.ReadChannel(0))
	assert.Equal(t, []int{exbus.BaudLow}, conn.bauds)
}

func TestLinkOpener_BaudOverride(t *testing.T) {
	conn := &serialConn{streamConn: streamConn{r: bytes.NewReader(nil)}}

	port, err := (&linkOpener{conn: conn, baud: exbus.BaudHigh}).Open(exbus.PortConfig{BaudRate: exbus.BaudLow}, func(byte) {})
	require.NoError(t, err)
	assert.Equal(t, exbus.BaudHigh, port.BaudRate())
	assert.Equal(t, []int{exbus.BaudHigh}, conn.bauds)
}

func TestLinkOpener_RejectsBaudOutsideRange(t *testing.T) {
	conn := &serialConn{streamConn: streamConn{r: bytes.NewReader(nil)}}

	_, err := (&linkOpener{conn: conn, baud: 115200}).Open(exbus.PortConfig{BaudRate: exbus.BaudLow}, func(byte) {})
	require.Error(t, err)
	assert.Empty(t, conn.bauds)
}

func TestLinkOpener_TeeRecordsCapture(t *testing.T) {
	data := exbus.MustEncodeRCFrame(0x01, 0x02, centered(16))
	conn := &streamConn{r: bytes.NewReader(data)}

	var buf bytes.Buffer
	w, err := capture.NewWriter(&buf, "test", exbus.BaudLow)
	require.NoError(t, err)

	port, err := (&linkOpener{conn: conn, tee: w}).Open(exbus.PortConfig{BaudRate: exbus.BaudLow}, func(byte) {})
	require.NoError(t, err)
	<-port.(*linkPort).Done()

	r, err := capture.NewReader(&buf)
	require.NoError(t, err)
	var replayed []byte
	require.NoError(t, r.Each(func(c capture.Chunk) error {
		replayed = append(replayed, c.Data...)
		return nil
	}))
	assert.Equal(t, data, replayed)
}

func TestHopBaud(t *testing.T) {
	conn := &serialConn{streamConn: streamConn{r: bytes.NewReader(nil)}}
	port, err := (&linkOpener{conn: conn}).Open(exbus.PortConfig{BaudRate: exbus.BaudLow}, func(byte) {})
	require.NoError(t, err)

	hopBaud(port)
	assert.Equal(t, exbus.BaudHigh, port.BaudRate())
	hopBaud(port)
	assert.Equal(t, exbus.BaudLow, port.BaudRate())

	// nil port comes from a driver that was never initialized
	hopBaud(nil)
}

func TestHopBaud_Unsupported(t *testing.T) {
	conn := &streamConn{r: bytes.NewReader(nil)}
	port, err := (&linkOpener{conn: conn}).Open(exbus.PortConfig{BaudRate: exbus.BaudLow}, func(byte) {})
	require.NoError(t, err)

	assert.ErrorIs(t, port.SetBaudRate(exbus.BaudHigh), ErrBaudUnsupported)
	hopBaud(port)
	assert.Equal(t, exbus.BaudLow, port.BaudRate())
}

func TestReplayOpener(t *testing.T) {
	opener := &replayOpener{}
	driver := exbus.NewDriver(exbus.Config{})
	require.NoError(t, driver.Init(opener))
	assert.Equal(t, exbus.BaudLow, opener.BaudRate())

	for _, b := range exbus.MustEncodeRCFrame(0x01, 0x01, centered(16)) {
		opener.handler(b)
	}
	assert.True(t, driver.PollFrameReady())
	assert.Equal(t, uint64(1), driver.FramesReceived())
}
