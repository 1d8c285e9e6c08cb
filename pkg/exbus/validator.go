// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exbus

import "fmt"

// Plausible servo pulse range
const (
	MinPlausibleUs = 800
	MaxPlausibleUs = 2200
)

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyShortFrame AnomalyType = iota
	AnomalySubLengthMismatch
	AnomalyChannelRange
)

// ValidationError represents a frame that decoded but looks wrong
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks a CRC-valid RC frame for anomalies the decoder
// itself does not care about. Returns an empty slice if the frame looks
// sane.
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}

	count := f.ChannelCount()
	if count < NumChannels {
		errors = append(errors, ValidationError{
			Type:    AnomalyShortFrame,
			Message: fmt.Sprintf("Frame carries %d channels (expected %d)", count, NumChannels),
			Details: map[string]interface{}{"channels": count, "expected": NumChannels, "length": f.Len()},
		})
	}

	dataLen := f.Len() - HeaderSize - CRCSize
	if int(f.SubLength()) != dataLen {
		errors = append(errors, ValidationError{
			Type:    AnomalySubLengthMismatch,
			Message: fmt.Sprintf("Sub-length %d does not match data length %d", f.SubLength(), dataLen),
			Details: map[string]interface{}{"sub_length": f.SubLength(), "data_length": dataLen},
		})
	}

	for i := 0; i < count; i++ {
		us := f.Channel(i)
		if us < MinPlausibleUs || us > MaxPlausibleUs {
			errors = append(errors, ValidationError{
				Type:    AnomalyChannelRange,
				Message: fmt.Sprintf("Channel %d out of range (%d us, valid: %d-%d)", i+1, us, MinPlausibleUs, MaxPlausibleUs),
				Details: map[string]interface{}{"channel": i, "value": us, "min": MinPlausibleUs, "max": MaxPlausibleUs},
			})
		}
	}

	return errors
}
