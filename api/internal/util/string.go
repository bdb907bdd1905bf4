package util

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode/utf8"
)

// Truncate cuts s to n bytes, backing off to a rune boundary, and marks the cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
