// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exbus

import "encoding/binary"

// Frame is a fixed-capacity EX Bus frame buffer. The zero value is an empty
// frame. Frames are copied by value and never reallocated.
type Frame struct {
	buf    [MaxFrameSize]byte
	length uint8
}

// Len returns the number of bytes in the frame
func (f *Frame) Len() int {
	return int(f.length)
}

// Bytes returns the frame bytes. The slice aliases the frame storage.
func (f *Frame) Bytes() []byte {
	return f.buf[:f.length]
}

// Source returns the source/link identifier byte
func (f *Frame) Source() uint8 {
	return f.buf[offsetSource]
}

// PacketID returns the packet identifier byte
func (f *Frame) PacketID() uint8 {
	return f.buf[offsetPacketID]
}

// Type returns the frame type byte
func (f *Frame) Type() uint8 {
	return f.buf[offsetType]
}

// SubLength returns the sub-length field as sent by the receiver
func (f *Frame) SubLength() uint8 {
	return f.buf[offsetSubLength]
}

// CRC returns the trailer as transmitted
func (f *Frame) CRC() uint16 {
	if f.length < MinFrameSize {
		return 0
	}
	return binary.LittleEndian.Uint16(f.buf[f.length-CRCSize:])
}

// ChannelCount returns how many whole channels fit between the header and
// the CRC trailer, capped at NumChannels.
func (f *Frame) ChannelCount() int {
	n := (int(f.length) - HeaderSize - CRCSize) / 2
	if n < 0 {
		return 0
	}
	if n > NumChannels {
		return NumChannels
	}
	return n
}

// RawChannel returns channel i in ticks (1/8 us), or 0 when the frame does
// not carry that channel.
func (f *Frame) RawChannel(i int) uint16 {
	if i < 0 || i >= f.ChannelCount() {
		return 0
	}
	off := ChannelOffset + 2*i
	return binary.LittleEndian.Uint16(f.buf[off : off+2])
}

// Channel returns channel i in microseconds
func (f *Frame) Channel(i int) uint16 {
	return TicksToMicroseconds(f.RawChannel(i))
}

// Channels decodes every channel into dst and returns the number present in
// the frame. Missing channels are set to 0.
func (f *Frame) Channels(dst *[NumChannels]uint16) int {
	for i := range dst {
		dst[i] = f.Channel(i)
	}
	return f.ChannelCount()
}
