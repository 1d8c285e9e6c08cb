// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exbus

import (
	"fmt"
	"strings"
	"time"
)

// String returns the event name
func (e Event) String() string {
	switch e {
	case EventNone:
		return "NONE"
	case EventJunk:
		return "JUNK"
	case EventFrame:
		return "FRAME"
	case EventCRCError:
		return "CRC_ERROR"
	case EventFiltered:
		return "FILTERED"
	case EventOversize:
		return "OVERSIZE"
	case EventUndersize:
		return "UNDERSIZE"
	default:
		return "UNKNOWN"
	}
}

// IsError reports whether the event discarded a candidate frame
func (e Event) IsError() bool {
	return e == EventCRCError || e == EventOversize || e == EventUndersize
}

// FormatFrameType returns the human-readable name for a frame type
func FormatFrameType(frameType uint8) string {
	switch frameType {
	case FrameTypeRC:
		return "RC_DATA"
	case 0x3A:
		return "TELEMETRY"
	case 0x3B:
		return "JETIBOX"
	default:
		return "UNKNOWN"
	}
}

// FormatFrame formats a validated frame into a human-readable string
func FormatFrame(f *Frame, ts time.Time) string {
	result := fmt.Sprintf("[%s] %s (0x%02X) src=0x%02X id=%d len=%d crc=0x%04X\n",
		ts.Format("15:04:05.000"), FormatFrameType(f.Type()), f.Type(),
		f.Source(), f.PacketID(), f.Len(), f.CRC())
	result += FormatChannels(f)
	return result
}

// FormatChannels renders the frame's channels four per line, in
// microseconds
func FormatChannels(f *Frame) string {
	count := f.ChannelCount()
	if count == 0 {
		return "  (no channels)\n"
	}

	var b strings.Builder
	for i := 0; i < count; i++ {
		if i%4 == 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, " CH%-2d %4d", i+1, f.Channel(i))
		if i%4 == 3 || i == count-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// FormatEvent describes a decoder error event and the bytes it discarded
func FormatEvent(ev Event, f *Frame) string {
	switch ev {
	case EventCRCError:
		return fmt.Sprintf("CRC mismatch: len=%d trailer=0x%04X residue=0x%04X",
			f.Len(), f.CRC(), CalculateCRC(f.Bytes()))
	case EventOversize:
		return fmt.Sprintf("invalid length: %d (max %d)", f.buf[offsetLength], MaxFrameSize)
	case EventUndersize:
		return fmt.Sprintf("invalid length: %d (min %d)", f.buf[offsetLength], MinFrameSize)
	case EventFiltered:
		return fmt.Sprintf("filtered %s frame (0x%02X)", FormatFrameType(f.buf[offsetType]), f.buf[offsetType])
	default:
		return ev.String()
	}
}

// FormatHex dumps bytes sixteen per line
func FormatHex(data []byte) string {
	result := "  Bytes: "
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			result += "\n         "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}
