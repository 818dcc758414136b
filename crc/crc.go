// Package crc implements the frame check sequence of HDLC frames:
// CRC-32/IEEE (reflected poly 0xEDB88320), appended little-endian.
package crc

import (
	"encoding/binary"
	"hash/crc32"
)

const FCS32Len = 4

func FCS32(data []byte) uint32 { return crc32.ChecksumIEEE(data) }

func FCS32Update(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, crc32.IEEETable, data)
}

func AppendFCS32(dst []byte, crc uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, crc)
}

// CheckFCS32 reports whether the last 4 bytes of b are the FCS of the rest.
func CheckFCS32(b []byte) bool {
	if len(b) < FCS32Len {
		return false
	}
	n := len(b) - FCS32Len
	return binary.LittleEndian.Uint32(b[n:]) == FCS32(b[:n])
}
