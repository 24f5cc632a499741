// Package storage provides the issued-certificate index of an authority.
package storage

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a serial.
	ErrNotFound = errors.New("record not found")

	// ErrExists is returned when a record for the serial is already stored.
	// Serials are never reused, so an existing entry is never overwritten.
	ErrExists = errors.New("record already exists")
)

// Record describes one issued certificate.
type Record struct {
	ID string `json:"id"`
	// Serial is the certificate serial as uppercase hex without leading
	// zeros (see NormalizeSerial).
	Serial         string    `json:"serial"`
	Subject        string    `json:"subject"`
	Issuer         string    `json:"issuer"`
	Type           string    `json:"type"`
	NotBefore      time.Time `json:"not_before"`
	NotAfter       time.Time `json:"not_after"`
	Fingerprint    string    `json:"fingerprint"`
	CertificatePEM string    `json:"certificate_pem"`
	IssuedAt       time.Time `json:"issued_at"`
}

// Clone returns a copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// Repository defines the interface for issued-certificate storage.
type Repository interface {
	// Put stores rec under rec.Serial, failing with ErrExists when the
	// serial is already indexed.
	Put(rec *Record) error
	Get(serial string) (*Record, error)
	// List returns every record ordered by ascending serial.
	List() ([]*Record, error)
}

// NormalizeSerial canonicalises a hex serial so "000B", "0x0b" and "B"
// address the same record.
func NormalizeSerial(serial string) string {
	s := strings.TrimSpace(serial)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.ToUpper(strings.TrimLeft(s, "0"))
	if s == "" {
		return "0"
	}
	return s
}

// SerialLess orders normalised serials numerically.
func SerialLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
