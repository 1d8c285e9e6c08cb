// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exbus

import (
	"fmt"
	"time"
)

// Statistics tracks link statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalBytes      uint64
	ValidFrames     uint64
	CRCErrors       uint64
	FilteredFrames  uint64
	LengthErrors    uint64
	JunkBytes       uint64
	BaudRetries     uint64
	AnomalousFrames uint64
	ShortFrames     uint64
	SubLengthErrors uint64
	OutOfRange      uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update accounts for one decoder event. f is the decoder's frame at the
// time of the event.
func (s *Statistics) Update(ev Event, f *Frame) {
	s.TotalBytes++

	switch ev {
	case EventJunk:
		s.JunkBytes++
	case EventCRCError:
		s.CRCErrors++
		s.JunkBytes += uint64(f.Len())
	case EventOversize, EventUndersize:
		s.LengthErrors++
		s.JunkBytes += uint64(f.Len())
	case EventFiltered:
		s.FilteredFrames++
	case EventFrame:
		s.ValidFrames++
		s.LastUpdateTime = time.Now()
	}
}

// UpdateValidation accounts for anomalies found in a valid frame
func (s *Statistics) UpdateValidation(validationErrors []ValidationError) {
	if len(validationErrors) == 0 {
		return
	}
	s.AnomalousFrames++
	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyShortFrame:
			s.ShortFrames++
		case AnomalySubLengthMismatch:
			s.SubLengthErrors++
		case AnomalyChannelRange:
			s.OutOfRange++
		}
	}
}

// RecordBaudRetry counts a baud retry request
func (s *Statistics) RecordBaudRetry() {
	s.BaudRetries++
}

// Errors returns the total number of frame-level errors
func (s *Statistics) Errors() uint64 {
	return s.CRCErrors + s.LengthErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.ValidFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// SuccessRate returns the percentage of completed candidates that were valid
func (s *Statistics) SuccessRate() float64 {
	total := s.ValidFrames + s.CRCErrors
	if total == 0 {
		return 0
	}
	return float64(s.ValidFrames) * 100.0 / float64(total)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var junkPercent float64
	if s.TotalBytes > 0 {
		junkPercent = float64(s.JunkBytes) * 100.0 / float64(s.TotalBytes)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Bytes:     %8d\n", s.TotalBytes)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, s.SuccessRate())

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d\n", s.CRCErrors)
	}
	if s.LengthErrors > 0 {
		result += fmt.Sprintf("Length Errors:   %8d\n", s.LengthErrors)
	}
	if s.FilteredFrames > 0 {
		result += fmt.Sprintf("Filtered Frames: %8d\n", s.FilteredFrames)
	}
	result += fmt.Sprintf("Junk Bytes:      %8d (%.1f%%)\n", s.JunkBytes, junkPercent)
	if s.BaudRetries > 0 {
		result += fmt.Sprintf("Baud Retries:    %8d\n", s.BaudRetries)
	}
	if s.AnomalousFrames > 0 {
		result += fmt.Sprintf("Anomalous:       %8d\n", s.AnomalousFrames)
		if s.ShortFrames > 0 {
			result += fmt.Sprintf("  Short Frames:     %5d\n", s.ShortFrames)
		}
		if s.SubLengthErrors > 0 {
			result += fmt.Sprintf("  Sub-length:       %5d\n", s.SubLengthErrors)
		}
		if s.OutOfRange > 0 {
			result += fmt.Sprintf("  Out of Range:     %5d\n", s.OutOfRange)
		}
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
