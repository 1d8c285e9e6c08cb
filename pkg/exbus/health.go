// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exbus

// HealthMonitor detects a link that produces nothing but junk, which on EX
// Bus almost always means the UART runs at the wrong baud rate.
type HealthMonitor struct {
	threshold uint32
}

// NewHealthMonitor creates a monitor that trips once more than threshold
// junk bytes pile up. A zero threshold selects JunkThreshold.
func NewHealthMonitor(threshold uint32) *HealthMonitor {
	if threshold == 0 {
		threshold = JunkThreshold
	}
	return &HealthMonitor{threshold: threshold}
}

// Threshold returns the junk byte limit
func (h *HealthMonitor) Threshold() uint32 {
	return h.threshold
}

// Check reports whether a baud retry should be attempted. It only fires
// while no frame has ever validated, and resets the junk counter when it
// does.
func (h *HealthMonitor) Check(d *Decoder) bool {
	if d.BaudValid() {
		return false
	}
	for {
		junk := d.junk.Load()
		if junk <= h.threshold {
			return false
		}
		if d.junk.CompareAndSwap(junk, 0) {
			return true
		}
	}
}

// NextBaud returns the baud rate to try after current
func NextBaud(current int) int {
	if current == BaudLow {
		return BaudHigh
	}
	return BaudLow
}
