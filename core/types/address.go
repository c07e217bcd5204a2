package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseAddress decodes a 40-character hex identity, with or without a 0x
// prefix, into its fixed-size form.
func ParseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("invalid address %q: expected %d bytes, got %d", s, len(addr), len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// FormatAddress renders an identity as 0x-prefixed lowercase hex.
func FormatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

// IsZeroAddress reports whether the identity is the null identity.
func IsZeroAddress(addr [20]byte) bool {
	return addr == [20]byte{}
}
