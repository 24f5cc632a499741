package util

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
)

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}

// RandomSerial returns a random positive serial number that fits in 63 bits.
// It is used for certificates that are not issued by an authority and so
// have no counter to draw from.
func RandomSerial() (*big.Int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return nil, fmt.Errorf("generating random serial: %w", err)
	}
	return n.Add(n, big.NewInt(1)), nil
}
