package util

import (
	"hash/crc32"
	"strconv"
)

// CRC16 computes CRC-16/ARC (poly 0x8005 reflected, init 0). Some stores
// expose only long SKU strings; their checksum is used as a short variant ID.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// ShortID returns the decimal CRC-16 of s.
func ShortID(s string) string {
	return strconv.FormatUint(uint64(CRC16([]byte(s))), 10)
}

// URLID returns the decimal CRC-32 of a URL, used as product ID for stores
// without a product number in their pages.
func URLID(u string) string {
	return strconv.FormatUint(uint64(crc32.ChecksumIEEE([]byte(u))), 10)
}
