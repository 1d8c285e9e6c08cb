// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package exbus implements the receiver side of the Jeti EX Bus serial link.
//
// EX Bus frames arrive on a half-duplex UART as a continuous byte stream.
// This package synchronizes on frame boundaries, validates the CRC16
// trailer, decodes the 16 RC channels and watches link health so a caller
// can retry a different baud rate when nothing valid has been seen.
package exbus

// Protocol framing bytes
const (
	StartByte   = 0x3E
	FrameTypeRC = 0x31
)

// Frame size limits
const (
	MinFrameSize = 7
	MaxFrameSize = 70

	// Header bytes before the first channel
	HeaderSize = 6
	CRCSize    = 2
)

// Header field offsets
const (
	offsetStart     = 0
	offsetSource    = 1
	offsetLength    = 2
	offsetPacketID  = 3
	offsetType      = 4
	offsetSubLength = 5
)

// Channel layout
const (
	NumChannels   = 16
	ChannelOffset = HeaderSize

	// One tick is 1/8 microsecond
	TicksPerMicrosecond = 8
)

// Baud rates supported by EX Bus receivers
const (
	BaudLow  = 125000
	BaudHigh = 250000
)

// JunkThreshold is the junk byte count that triggers a baud retry while no
// frame has validated.
const JunkThreshold = 1000

// Decoder states (internal)
const (
	stateIdle = iota
	stateCapturing
	stateSkipping // rest of a filtered frame
)
