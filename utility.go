package vdisk

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// CanonicalGuid reduces the various GUID spellings found in LDM metadata
// ("{...}" wrapped, mixed case, NUL padded) to a single comparable form.
func CanonicalGuid(raw string) string {
	s := strings.TrimRight(raw, "\x00")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")

	return strings.ToLower(s)
}

// UnicodeFromUtf16le decodes raw UTF-16LE bytes to a string, dropping any
// trailing NUL.
func UnicodeFromUtf16le(raw []byte) (decoded string, err error) {
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

	decoded, err = decoder.String(string(raw))
	if err != nil {
		return "", err
	}

	return strings.TrimRight(decoded, "\x00"), nil
}

// Utf16leFromUnicode encodes a string as UTF-16LE bytes.
func Utf16leFromUnicode(s string) (raw []byte, err error) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()

	encoded, err := encoder.String(s)
	if err != nil {
		return nil, err
	}

	return []byte(encoded), nil
}

// HexPreview formats up to `limit` bytes as uppercase, space-separated hex
// octets ("0A 1B ..").
func HexPreview(data []byte, limit int) string {
	if len(data) > limit {
		data = data[:limit]
	}

	parts := make([]string, len(data))
	for i, c := range data {
		parts[i] = fmt.Sprintf("%02X", c)
	}

	return strings.Join(parts, " ")
}
