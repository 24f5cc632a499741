package util

import (
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the NFKD form of s. Passphrases are normalized before
// they are used as key material so that visually identical input always
// derives the same key.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}

// ColonHex renders b as uppercase hex pairs separated by colons
// (e.g. "55:27:E8"), the form used for certificate fingerprints and key
// identifiers.
func ColonHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b)*3 - 1)
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
	}
	return sb.String()
}
