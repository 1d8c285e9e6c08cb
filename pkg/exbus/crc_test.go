// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exbus

import (
	"encoding/binary"
	"testing"
)

func TestCalculateCRC_Empty(t *testing.T) {
	crc := CalculateCRC([]byte{})
	if crc != 0 {
		t.Errorf("CRC of empty data should be 0, got 0x%04X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0x2189, // CRC-16/KERMIT check value
		},
		{
			name:     "single zero byte",
			data:     []byte{0x00},
			expected: 0x0000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := CalculateCRC(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

func TestCalculateCRC_Deterministic(t *testing.T) {
	data := []byte{0x3E, 0x01, 0x28, 0x07, 0x31, 0x20}
	crc1 := CalculateCRC(data)
	crc2 := CalculateCRC(data)
	if crc1 != crc2 {
		t.Errorf("CRC should be deterministic: 0x%04X != 0x%04X", crc1, crc2)
	}
}

func TestValidCRC_TrailerReducesToZero(t *testing.T) {
	inputs := [][]byte{
		[]byte("123456789"),
		{0x3E, 0x01, 0x28, 0x07, 0x31, 0x20},
		{0xFF, 0xFF, 0xFF, 0xFF},
	}

	for _, data := range inputs {
		crc := CalculateCRC(data)
		framed := binary.LittleEndian.AppendUint16(append([]byte{}, data...), crc)
		if !ValidCRC(framed) {
			t.Errorf("data % X with trailer 0x%04X should validate", data, crc)
		}

		// Big-endian trailer must not validate unless both bytes match
		if byte(crc) != byte(crc>>8) {
			swapped := binary.BigEndian.AppendUint16(append([]byte{}, data...), crc)
			if ValidCRC(swapped) {
				t.Errorf("data % X with byte-swapped trailer should not validate", data)
			}
		}
	}
}

func TestValidCRC_SingleBitErrors(t *testing.T) {
	frame := MustEncodeRCFrame(0x01, 0x07, []uint16{12000, 8000, 16000, 12000})
	for i := range frame {
		for bit := 0; bit < 8; bit++ {
			corrupted := append([]byte{}, frame...)
			corrupted[i] ^= 1 << bit
			if ValidCRC(corrupted) {
				t.Fatalf("flipping byte %d bit %d went undetected", i, bit)
			}
		}
	}
}
