package util

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// KeyedHashSize is the length of a KeyedHash digest.
const KeyedHashSize = blake2b.Size256

// KeyedHash returns the BLAKE2b-256 MAC of the NFKD form of secret under key.
// key must be between 1 and 64 bytes.
func KeyedHash(key []byte, secret string) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("keyed hash key must not be empty")
	}
	h, err := blake2b.New256(key)
	if err != nil {
		return nil, fmt.Errorf("keyed hash: %w", err)
	}
	h.Write([]byte(Normalize(secret)))
	return h.Sum(nil), nil
}

// CompareKeyedHash reports whether secret hashes to expected under key,
// comparing in constant time.
func CompareKeyedHash(key []byte, secret string, expected []byte) (bool, error) {
	sum, err := KeyedHash(key, secret)
	if err != nil {
		return false, err
	}
	defer WipeBytes(sum)
	return subtle.ConstantTimeCompare(sum, expected) == 1, nil
}
