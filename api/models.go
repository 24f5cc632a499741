package api

import (
	"time"

	"github.com/jmcleod/ironca/pki"
)

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// CAInfoResponse is returned from GET /ca.
type CAInfoResponse struct {
	Subject      string          `json:"subject"`
	SerialNumber string          `json:"serial_number"`
	Fingerprint  string          `json:"fingerprint"`
	NotBefore    time.Time       `json:"not_before"`
	NotAfter     time.Time       `json:"not_after"`
	KeyBits      int             `json:"key_bits"`
	NextSerial   string          `json:"next_serial"`
	Extensions   []pki.Extension `json:"extensions"`
	IndexEnabled bool            `json:"index_enabled"`
}

// IssueCertificateRequest is the JSON body for POST /certificates. The key
// pair is generated by the server.
type IssueCertificateRequest struct {
	Subject         pki.Name `json:"subject"`
	Type            string   `json:"type,omitempty"`
	ValidityDays    int      `json:"validity_days,omitempty"`
	SubjectAltNames []string `json:"subject_alt_names,omitempty"`
	// KeyPassword encrypts the returned private key. Empty selects the
	// default key password.
	KeyPassword string `json:"key_password,omitempty"`
}

// CertificateSummary describes an issued certificate.
type CertificateSummary struct {
	SerialNumber string          `json:"serial_number"`
	Subject      string          `json:"subject"`
	Issuer       string          `json:"issuer"`
	Type         string          `json:"type"`
	NotBefore    time.Time       `json:"not_before"`
	NotAfter     time.Time       `json:"not_after"`
	Fingerprint  string          `json:"fingerprint"`
	Extensions   []pki.Extension `json:"extensions,omitempty"`
}

// IssueCertificateResponse is returned from POST /certificates.
type IssueCertificateResponse struct {
	Certificate    CertificateSummary `json:"certificate"`
	CertificatePEM string             `json:"certificate_pem"`
	PrivateKeyPEM  string             `json:"private_key_pem"`
}

// ListCertificatesResponse is returned from GET /certificates.
type ListCertificatesResponse struct {
	Certificates []CertificateSummary `json:"certificates"`
	PaginationMeta
}

// GetCertificateResponse is returned from GET /certificates/{serial}.
type GetCertificateResponse struct {
	Certificate    CertificateSummary `json:"certificate"`
	CertificatePEM string             `json:"certificate_pem"`
	IssuedAt       time.Time          `json:"issued_at"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error string `json:"error"`
}
