// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exbus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Function identifies the role a serial port is opened for
type Function int

// Serial port functions
const (
	FunctionSerialRX Function = iota + 1
)

// PortMode is a bit set of serial port capabilities
type PortMode uint8

// Serial port modes
const (
	ModeRX PortMode = 1 << iota
	ModeTX
	// ModeBidir shares one wire for transmit and receive (half duplex)
	ModeBidir
)

// PortConfig describes how the transport should open the link
type PortConfig struct {
	Function Function
	BaudRate int
	Mode     PortMode
	Inverted bool
}

// ByteHandler receives one byte per call, in arrival order
type ByteHandler func(b byte)

// Port is an opened transport
type Port interface {
	BaudRate() int
	SetBaudRate(baud int) error
}

// Opener opens the serial transport and starts delivering bytes to handler
type Opener interface {
	Open(cfg PortConfig, handler ByteHandler) (Port, error)
}

// FunctionConstraint describes the serial requirements of an EX Bus port
type FunctionConstraint struct {
	MinBaudRate      int
	MaxBaudRate      int
	RequiresCallback bool
	HalfDuplex       bool
}

// SerialFunctionConstraint returns the port requirements for EX Bus
func SerialFunctionConstraint() FunctionConstraint {
	return FunctionConstraint{
		MinBaudRate:      BaudLow,
		MaxBaudRate:      BaudHigh,
		RequiresCallback: true,
		HalfDuplex:       true,
	}
}

// Receiver is the interface the control loop uses for any RC link
type Receiver interface {
	ChannelCount() int
	PollFrameReady() bool
	ReadChannel(index int) uint16
}

// BaudRetryFunc is called when the link looks like it runs at the wrong
// baud rate. port is nil when the driver was never initialized.
type BaudRetryFunc func(port Port)

// Config holds driver options. The zero value is usable.
type Config struct {
	Release       ReleaseMode
	JunkThreshold uint32
	OnBaudRetry   BaudRetryFunc
	Logger        *zap.Logger
}

// Driver ties the decoder, health monitor and transport together and
// exposes the Receiver interface.
//
// HandleByte is the producer side and runs on the transport's goroutine.
// PollFrameReady, ReadChannel and ReadChannels are the consumer side.
type Driver struct {
	decoder     *Decoder
	health      *HealthMonitor
	release     ReleaseMode
	onBaudRetry BaudRetryFunc
	logger      *zap.Logger
	port        Port

	mu       sync.Mutex
	latest   Frame
	ready    bool
	readMask uint16

	frames  atomic.Uint64
	retries atomic.Uint64
}

var _ Receiver = (*Driver)(nil)

// NewDriver creates a driver with the given options
func NewDriver(cfg Config) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		decoder:     NewDecoder(),
		health:      NewHealthMonitor(cfg.JunkThreshold),
		release:     cfg.Release,
		onBaudRetry: cfg.OnBaudRetry,
		logger:      logger,
	}
}

// Init opens the transport at the low EX Bus baud rate and registers the
// byte handler.
func (d *Driver) Init(opener Opener) error {
	port, err := opener.Open(PortConfig{
		Function: FunctionSerialRX,
		BaudRate: BaudLow,
		Mode:     ModeBidir | ModeRX,
		Inverted: false,
	}, d.HandleByte)
	if err != nil {
		return fmt.Errorf("failed to open EX Bus port: %w", err)
	}
	if port == nil {
		return fmt.Errorf("failed to open EX Bus port: transport returned no port")
	}

	d.port = port
	d.logger.Info("exbus link opened",
		zap.Int("baud", port.BaudRate()),
		zap.String("release", d.release.String()))
	return nil
}

// Port returns the transport opened by Init, or nil
func (d *Driver) Port() Port {
	return d.port
}

// ChannelCount returns the number of channels this receiver provides
func (d *Driver) ChannelCount() int {
	return NumChannels
}

// HandleByte feeds one received byte to the decoder
func (d *Driver) HandleByte(b byte) {
	if d.decoder.DecodeByte(b) != EventFrame {
		return
	}
	d.publish(d.decoder.Frame())
}

// publish hands a validated frame to the consumer side. A frame that was
// never read is overwritten.
func (d *Driver) publish(f *Frame) {
	d.mu.Lock()
	d.latest = *f
	d.ready = true
	d.readMask = 0
	d.mu.Unlock()
	d.frames.Add(1)
}

// PollFrameReady reports whether an unread frame is available and runs the
// link health check.
func (d *Driver) PollFrameReady() bool {
	d.mu.Lock()
	ready := d.ready
	d.mu.Unlock()

	if d.health.Check(d.decoder) {
		n := d.retries.Add(1)
		d.logger.Warn("no valid EX Bus frame, requesting baud retry",
			zap.Uint32("junk_threshold", d.health.Threshold()),
			zap.Uint64("retries", n))
		if d.onBaudRetry != nil {
			d.onBaudRetry(d.port)
		}
	}

	return ready
}

// ReadChannel returns channel index of the ready frame in microseconds, or
// 0 when no frame is ready or index is out of range.
func (d *Driver) ReadChannel(index int) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readChannel(index)
}

// ReadChannels copies every channel of the ready frame into dst and releases
// the frame. It returns false, leaving dst untouched, when no frame is ready.
func (d *Driver) ReadChannels(dst *[NumChannels]uint16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return false
	}
	d.latest.Channels(dst)
	d.ready = false
	return true
}

// TakeFrame returns a copy of the ready frame and releases it in the same
// critical section. ok is false when no frame is ready.
func (d *Driver) TakeFrame() (f Frame, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return Frame{}, false
	}
	d.ready = false
	return d.latest, true
}

// LatestFrame returns a copy of the most recent valid frame, whether or not
// it has been read. ok is false before the first frame.
func (d *Driver) LatestFrame() (f Frame, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest, d.latest.length > 0
}

// JunkBytes returns the decoder's junk counter
func (d *Driver) JunkBytes() uint32 {
	return d.decoder.JunkBytes()
}

// BaudValid reports whether any frame has validated on this link
func (d *Driver) BaudValid() bool {
	return d.decoder.BaudValid()
}

// FramesReceived returns the number of validated frames
func (d *Driver) FramesReceived() uint64 {
	return d.frames.Load()
}

// BaudRetries returns how many times a baud retry was requested
func (d *Driver) BaudRetries() uint64 {
	return d.retries.Load()
}
