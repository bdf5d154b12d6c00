package exfat

import (
	"testing"
	"unicode/utf16"

	"encoding/binary"
)

func TestUtf16String(t *testing.T) {
	raw := make([]byte, 16)

	units := utf16.Encode([]rune("hello"))
	for i, unit := range units {
		binary.LittleEndian.PutUint16(raw[i*2:], unit)
	}

	if s := utf16String(raw, 5); s != "hello" {
		t.Fatalf("String not decoded correctly: [%s]", s)
	}
}

func TestUtf16String_SkipsNuls(t *testing.T) {
	// Padding units beyond the character count are NULs and must not
	// survive decoding.
	raw := make([]byte, 16)

	units := utf16.Encode([]rune("abc"))
	for i, unit := range units {
		binary.LittleEndian.PutUint16(raw[i*2:], unit)
	}

	if s := utf16String(raw, 8); s != "abc" {
		t.Fatalf("String not decoded correctly: [%s]", s)
	}
}

func TestUtf16String_NonAscii(t *testing.T) {
	raw := make([]byte, 8)

	units := utf16.Encode([]rune("héllo"))
	for i, unit := range units[:4] {
		binary.LittleEndian.PutUint16(raw[i*2:], unit)
	}

	if s := utf16String(raw, 4); s != "héll" {
		t.Fatalf("String not decoded correctly: [%s]", s)
	}
}
