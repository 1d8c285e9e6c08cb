// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exbus

// TicksToMicroseconds converts a raw channel value (1/8 us) to microseconds,
// rounding to nearest.
func TicksToMicroseconds(ticks uint16) uint16 {
	return uint16((uint32(ticks) + TicksPerMicrosecond/2) / TicksPerMicrosecond)
}

// MicrosecondsToTicks converts microseconds to raw channel ticks, saturating
// at the largest value the wire can carry.
func MicrosecondsToTicks(us uint16) uint16 {
	ticks := uint32(us) * TicksPerMicrosecond
	if ticks > 0xFFFF {
		return 0xFFFF
	}
	return uint16(ticks)
}

// ReleaseMode selects when a ready frame stops being readable
type ReleaseMode int

const (
	// ReleaseAfterSweep keeps a frame ready until every channel has been
	// read from it once.
	ReleaseAfterSweep ReleaseMode = iota

	// ReleaseOnFirstRead clears frame-ready on the first channel read,
	// whatever its index. Later reads in the same cycle return 0.
	ReleaseOnFirstRead
)

const allChannelsRead = uint16(1<<NumChannels - 1)

// String returns the release mode name
func (m ReleaseMode) String() string {
	switch m {
	case ReleaseAfterSweep:
		return "sweep"
	case ReleaseOnFirstRead:
		return "first-read"
	default:
		return "unknown"
	}
}

// ParseReleaseMode maps a name produced by String back to a ReleaseMode
func ParseReleaseMode(s string) (ReleaseMode, bool) {
	switch s {
	case "sweep", "":
		return ReleaseAfterSweep, true
	case "first-read":
		return ReleaseOnFirstRead, true
	}
	return ReleaseAfterSweep, false
}

// readChannel decodes one channel from the published frame and applies the
// release policy. The caller holds d.mu.
func (d *Driver) readChannel(index int) uint16 {
	if index < 0 || index >= NumChannels || !d.ready {
		return 0
	}

	value := d.latest.Channel(index)

	switch d.release {
	case ReleaseOnFirstRead:
		d.ready = false
	default:
		d.readMask |= 1 << uint(index)
		if d.readMask == allChannelsRead {
			d.ready = false
		}
	}
	return value
}
