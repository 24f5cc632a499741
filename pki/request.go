package pki

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// SigningRequest pairs an identity with the key that wants a certificate
// for it.
type SigningRequest struct {
	Name Name
	Key  *Key

	// SubjectAltNames are DNS names requested for the certificate in
	// addition to any given in CertificateOptions.
	SubjectAltNames []string
}

// NewSigningRequest returns a request for name backed by key.
func NewSigningRequest(name Name, key *Key, sans ...string) *SigningRequest {
	return &SigningRequest{Name: name, Key: key, SubjectAltNames: sans}
}

// Subject returns the name the issued certificate will carry.
func (r *SigningRequest) Subject() Name {
	return r.Name
}

func (r *SigningRequest) validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil signing request", ErrInvalidRequest)
	}
	if r.Key == nil {
		return fmt.Errorf("%w: signing request has no key", ErrInvalidRequest)
	}
	if r.Name.IsEmpty() {
		return fmt.Errorf("%w: signing request has an empty subject", ErrInvalidRequest)
	}
	return nil
}

// EncodePEM returns the request as a PKCS#10 "CERTIFICATE REQUEST" block
// signed by the request's key.
func (r *SigningRequest) EncodePEM() ([]byte, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	template := &x509.CertificateRequest{
		Subject:  r.Name.ToPKIX(),
		DNSNames: r.SubjectAltNames,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, r.Key.priv)
	if err != nil {
		return nil, fmt.Errorf("creating certificate request: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), nil
}
