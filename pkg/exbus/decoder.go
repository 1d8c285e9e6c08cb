// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exbus

import "sync/atomic"

// Event describes what a single byte did to the decoder
type Event int

// Decoder events
const (
	EventNone      Event = iota // byte accepted into the current candidate
	EventJunk                   // byte discarded while scanning for a start marker
	EventFrame                  // candidate completed and passed its CRC
	EventCRCError               // candidate completed and failed its CRC
	EventFiltered               // candidate is not an RC frame (telemetry, JetiBox)
	EventOversize               // declared length above MaxFrameSize
	EventUndersize              // declared length below MinFrameSize
)

// Decoder implements the EX Bus frame assembly state machine.
//
// DecodeByte must be called from a single goroutine. JunkBytes, BaudValid
// and ResetJunk may be called from any goroutine.
type Decoder struct {
	state    int
	frame    Frame
	pos      int
	expected int

	junk      atomic.Uint32
	baudValid atomic.Bool
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:    stateIdle,
		expected: MinFrameSize,
	}
}

// Reset returns the decoder to idle. Junk count and baud validity are kept.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.pos = 0
	d.expected = MinFrameSize
}

// Frame returns the last candidate touched by DecodeByte. After EventFrame
// it holds the validated frame; after an error event it holds the bytes that
// were discarded. The contents are only stable until the next DecodeByte.
func (d *Decoder) Frame() *Frame {
	return &d.frame
}

// JunkBytes returns the number of bytes discarded outside a valid frame
func (d *Decoder) JunkBytes() uint32 {
	return d.junk.Load()
}

// ResetJunk clears the junk counter
func (d *Decoder) ResetJunk() {
	d.junk.Store(0)
}

// BaudValid reports whether any frame has ever passed its CRC
func (d *Decoder) BaudValid() bool {
	return d.baudValid.Load()
}

// DecodeByte processes a single byte through the decoder state machine
func (d *Decoder) DecodeByte(b byte) Event {
	switch d.state {
	case stateSkipping:
		d.pos++
		if d.pos >= d.expected {
			d.Reset()
		}
		return EventNone

	case stateIdle:
		if b != StartByte {
			d.junk.Add(1)
			return EventJunk
		}
		d.state = stateCapturing
		d.pos = 0
		// Real length isn't known until the length byte arrives
		d.expected = MinFrameSize
	}

	d.frame.buf[d.pos] = b
	d.pos++

	switch d.pos - 1 {
	case offsetLength:
		switch {
		case b > MaxFrameSize:
			return d.discard(EventOversize)
		case b < MinFrameSize:
			return d.discard(EventUndersize)
		}
		d.expected = int(b)

	case offsetType:
		// Telemetry and JetiBox traffic shares the wire, skip it quietly
		if b != FrameTypeRC {
			d.frame.length = uint8(d.pos)
			d.state = stateSkipping
			return EventFiltered
		}
	}

	if d.pos < d.expected {
		return EventNone
	}

	d.abort()
	if !ValidCRC(d.frame.Bytes()) {
		d.junk.Add(uint32(d.frame.length))
		return EventCRCError
	}
	d.baudValid.Store(true)
	return EventFrame
}

// abort ends the current candidate, keeping its bytes visible via Frame
func (d *Decoder) abort() {
	d.frame.length = uint8(d.pos)
	d.state = stateIdle
	d.pos = 0
	d.expected = MinFrameSize
}

// discard aborts the candidate and charges its bytes to the junk counter
func (d *Decoder) discard(ev Event) Event {
	d.abort()
	d.junk.Add(uint32(d.frame.length))
	return ev
}
