package exfat

import (
	"unicode/utf16"

	"encoding/binary"
)

// All multi-byte on-disk fields are little-endian.
var defaultEncoding = binary.LittleEndian

// utf16String decodes a little-endian UTF-16 field of the given
// character count. Embedded NUL code units are skipped; some tools pad
// the declared count with them.
func utf16String(raw []byte, charCount int) string {
	units := make([]uint16, 0, charCount)

	for i := 0; i < charCount && i*2+1 < len(raw); i++ {
		unit := uint16(raw[i*2]) | uint16(raw[i*2+1])<<8
		if unit == 0 {
			continue
		}

		units = append(units, unit)
	}

	return string(utf16.Decode(units))
}
