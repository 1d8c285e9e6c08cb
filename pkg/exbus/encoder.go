// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exbus

import (
	"encoding/binary"
	"fmt"
)

// EncodeFrame builds a complete wire frame: header, payload and CRC trailer.
// The sub-length byte is set to len(payload).
func EncodeFrame(source, packetID, frameType uint8, payload []byte) ([]byte, error) {
	length := HeaderSize + len(payload) + CRCSize
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame too large: %d bytes (max %d)", length, MaxFrameSize)
	}

	frame := make([]byte, HeaderSize, length)
	frame[offsetStart] = StartByte
	frame[offsetSource] = source
	frame[offsetLength] = uint8(length)
	frame[offsetPacketID] = packetID
	frame[offsetType] = frameType
	frame[offsetSubLength] = uint8(len(payload))
	frame = append(frame, payload...)

	// CRC goes out low byte first so the whole frame reduces to zero
	crc := CalculateCRC(frame)
	frame = binary.LittleEndian.AppendUint16(frame, crc)

	return frame, nil
}

// EncodeRCFrame builds an RC channel frame from raw channel ticks
func EncodeRCFrame(source, packetID uint8, ticks []uint16) ([]byte, error) {
	if len(ticks) > NumChannels {
		return nil, fmt.Errorf("too many channels: %d (max %d)", len(ticks), NumChannels)
	}

	payload := make([]byte, 0, 2*len(ticks))
	for _, t := range ticks {
		payload = binary.LittleEndian.AppendUint16(payload, t)
	}
	return EncodeFrame(source, packetID, FrameTypeRC, payload)
}

// EncodeRCFrameMicroseconds builds an RC channel frame from channel values
// in microseconds.
func EncodeRCFrameMicroseconds(source, packetID uint8, us []uint16) ([]byte, error) {
	ticks := make([]uint16, len(us))
	for i, v := range us {
		ticks[i] = MicrosecondsToTicks(v)
	}
	return EncodeRCFrame(source, packetID, ticks)
}

// MustEncodeRCFrame is like EncodeRCFrame but panics on error
func MustEncodeRCFrame(source, packetID uint8, ticks []uint16) []byte {
	data, err := EncodeRCFrame(source, packetID, ticks)
	if err != nil {
		panic(fmt.Sprintf("exbus: encode error: %v", err))
	}
	return data
}
