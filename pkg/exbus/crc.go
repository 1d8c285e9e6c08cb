// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exbus

// crcUpdate folds one byte into the CRC16-CCITT register (reflected, as
// required by EX Bus).
func crcUpdate(crc uint16, b byte) uint16 {
	d := b ^ byte(crc)
	d ^= d << 4
	return (uint16(d)<<8 | crc>>8) ^ uint16(d>>4) ^ uint16(d)<<3
}

// CalculateCRC computes the EX Bus CRC16 over data
func CalculateCRC(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crcUpdate(crc, b)
	}
	return crc
}

// ValidCRC reports whether data, including its trailing CRC (low byte
// first), reduces to zero.
func ValidCRC(data []byte) bool {
	return CalculateCRC(data) == 0
}
