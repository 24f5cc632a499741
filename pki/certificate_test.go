package pki_test

import (
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmcleod/ironca/pki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureFingerprint = "55:27:E8:46:50:03:39:F4:A3:24:3D:88:57:BA:67:5C:F1:E8:84:1D"

func newSelfSigned(t *testing.T, opts pki.CertificateOptions, sans ...string) *pki.Certificate {
	t.Helper()
	req := pki.NewSigningRequest(fullName(), newTestKey(t), sans...)
	cert, err := pki.NewSelfSignedCertificate(req, opts)
	require.NoError(t, err)
	return cert
}

func extValue(t *testing.T, cert *pki.Certificate, name string) string {
	t.Helper()
	ext, ok := cert.Extension(name)
	require.True(t, ok, "extension %s missing", name)
	return ext.Value
}

func TestParseCertType(t *testing.T) {
	for in, want := range map[string]pki.CertType{
		"":       pki.CertTypeServer,
		"server": pki.CertTypeServer,
		"client": pki.CertTypeClient,
		"ca":     pki.CertTypeCA,
	} {
		got, err := pki.ParseCertType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := pki.ParseCertType("email")
	assert.ErrorIs(t, err, pki.ErrInvalidRequest)
}

func TestSelfSignedCertificate(t *testing.T) {
	cert := newSelfSigned(t, pki.CertificateOptions{})

	assert.Equal(t, pki.StateSigned, cert.State())
	assert.Equal(t, pki.CertTypeServer, cert.Type())
	assert.True(t, cert.IsSelfSigned())
	assert.Equal(t, fullName().String(), cert.Subject().String())
	assert.Equal(t, cert.Subject().String(), cert.Issuer().String())

	parsed, err := cert.X509()
	require.NoError(t, err)
	assert.Equal(t, parsed.Subject.String(), parsed.Issuer.String())
	assert.Positive(t, cert.SerialNumber().Sign())

	assert.Equal(t, time.Duration(pki.DefaultValidityDays)*24*time.Hour, cert.NotAfter().Sub(cert.NotBefore()))
}

func TestSelfSignedWrongKey(t *testing.T) {
	req := pki.NewSigningRequest(fullName(), newTestKey(t))
	cert, err := pki.NewCertificate(req, nil, pki.CertificateOptions{})
	require.NoError(t, err)

	err = cert.Sign(newTestKey(t))
	assert.ErrorIs(t, err, pki.ErrInvalidRequest)
	assert.Equal(t, pki.StateBuilt, cert.State())
}

func TestCertificateExtensionsByType(t *testing.T) {
	t.Run("server", func(t *testing.T) {
		cert := newSelfSigned(t, pki.CertificateOptions{Type: pki.CertTypeServer})
		assert.Equal(t, "TLS Web Server Authentication", extValue(t, cert, pki.ExtExtendedKeyUsage))
		assert.Equal(t, "CA:FALSE", extValue(t, cert, pki.ExtBasicConstraints))
		assert.Equal(t, "Digital Signature, Key Encipherment", extValue(t, cert, pki.ExtKeyUsage))
	})

	t.Run("client", func(t *testing.T) {
		cert := newSelfSigned(t, pki.CertificateOptions{Type: pki.CertTypeClient})
		assert.Equal(t, "TLS Web Client Authentication, E-mail Protection", extValue(t, cert, pki.ExtExtendedKeyUsage))
		assert.Equal(t, pki.CertTypeClient, cert.Type())
	})

	t.Run("ca", func(t *testing.T) {
		cert := newSelfSigned(t, pki.CertificateOptions{Type: pki.CertTypeCA})
		assert.Equal(t, "CA:TRUE", extValue(t, cert, pki.ExtBasicConstraints))
		assert.Equal(t, "Certificate Sign, CRL Sign", extValue(t, cert, pki.ExtKeyUsage))
		_, ok := cert.Extension(pki.ExtExtendedKeyUsage)
		assert.False(t, ok)

		ext, ok := cert.Extension(pki.ExtBasicConstraints)
		require.True(t, ok)
		assert.True(t, ext.Critical)
	})
}

func TestCertificateSubjectAltName(t *testing.T) {
	t.Run("absent without names", func(t *testing.T) {
		cert := newSelfSigned(t, pki.CertificateOptions{})
		_, ok := cert.Extension(pki.ExtSubjectAltName)
		assert.False(t, ok)
	})

	t.Run("single name", func(t *testing.T) {
		cert := newSelfSigned(t, pki.CertificateOptions{SubjectAltNames: []string{"bar.com"}})
		assert.Equal(t, "DNS:bar.com", extValue(t, cert, pki.ExtSubjectAltName))
	})

	t.Run("request and options merged", func(t *testing.T) {
		cert := newSelfSigned(t, pki.CertificateOptions{SubjectAltNames: []string{"bar.com", "foo.com"}}, "foo.com")
		assert.Equal(t, "DNS:foo.com, DNS:bar.com", extValue(t, cert, pki.ExtSubjectAltName))
	})
}

func TestCertificateValidityDays(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 30, 15, 500, time.UTC)
	cert := newSelfSigned(t, pki.CertificateOptions{ValidityDays: 10, NotBefore: start})

	assert.Equal(t, start.Truncate(time.Second), cert.NotBefore())
	assert.Equal(t, int64(10*86400), int64(cert.NotAfter().Sub(cert.NotBefore())/time.Second))
}

func TestNewCertificateValidation(t *testing.T) {
	key := newTestKey(t)

	tests := []struct {
		name string
		req  *pki.SigningRequest
		opts pki.CertificateOptions
	}{
		{"nil request", nil, pki.CertificateOptions{}},
		{"no key", pki.NewSigningRequest(fullName(), nil), pki.CertificateOptions{}},
		{"empty name", pki.NewSigningRequest(pki.Name{}, key), pki.CertificateOptions{}},
		{"negative days", pki.NewSigningRequest(fullName(), key), pki.CertificateOptions{ValidityDays: -1}},
		{"unknown type", pki.NewSigningRequest(fullName(), key), pki.CertificateOptions{Type: "email"}},
		{"negative serial", pki.NewSigningRequest(fullName(), key), pki.CertificateOptions{SerialNumber: big.NewInt(-5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pki.NewCertificate(tt.req, nil, tt.opts)
			assert.ErrorIs(t, err, pki.ErrInvalidRequest)
			assert.Equal(t, pki.KindInvalidRequest, pki.ErrorKind(err))
		})
	}
}

func TestCertificateStateErrors(t *testing.T) {
	req := pki.NewSigningRequest(fullName(), newTestKey(t))
	cert, err := pki.NewCertificate(req, nil, pki.CertificateOptions{SerialNumber: big.NewInt(42)})
	require.NoError(t, err)

	t.Run("built cannot be serialized", func(t *testing.T) {
		assert.Equal(t, pki.StateBuilt, cert.State())
		assert.Equal(t, int64(42), cert.SerialNumber().Int64())

		_, err := cert.Fingerprint()
		assert.ErrorIs(t, err, pki.ErrInvalidState)
		_, err = cert.EncodePEM()
		assert.ErrorIs(t, err, pki.ErrInvalidState)
		_, err = cert.X509()
		assert.ErrorIs(t, err, pki.ErrInvalidState)
	})

	t.Run("built extensions in canonical order", func(t *testing.T) {
		var names []string
		for _, ext := range cert.Extensions() {
			names = append(names, ext.Name)
		}
		assert.Equal(t, []string{pki.ExtBasicConstraints, pki.ExtKeyUsage, pki.ExtExtendedKeyUsage}, names)
	})

	t.Run("signed twice", func(t *testing.T) {
		require.NoError(t, cert.Sign(req.Key))
		err := cert.Sign(req.Key)
		assert.ErrorIs(t, err, pki.ErrInvalidState)
		assert.Equal(t, pki.KindInvalidState, pki.ErrorKind(err))
	})

	t.Run("loaded cannot be signed", func(t *testing.T) {
		loaded, err := pki.LoadCertificateFile(filepath.Join("testdata", "certificate.pem"))
		require.NoError(t, err)
		assert.ErrorIs(t, loaded.Sign(req.Key), pki.ErrInvalidState)
	})

	t.Run("built certificate cannot issue", func(t *testing.T) {
		unsigned, err := pki.NewCertificate(pki.NewSigningRequest(pki.Name{CommonName: "x"}, req.Key), nil, pki.CertificateOptions{Type: pki.CertTypeCA})
		require.NoError(t, err)
		_, err = pki.NewCertificate(req, unsigned, pki.CertificateOptions{})
		assert.ErrorIs(t, err, pki.ErrInvalidState)
	})

	t.Run("non-CA cannot issue", func(t *testing.T) {
		_, err := pki.NewCertificate(req, cert, pki.CertificateOptions{})
		assert.ErrorIs(t, err, pki.ErrInvalidRequest)
	})
}

func TestLoadCertificateFixture(t *testing.T) {
	cert, err := pki.LoadCertificateFile(filepath.Join("testdata", "certificate.pem"))
	require.NoError(t, err)

	assert.Equal(t, pki.StateLoaded, cert.State())
	assert.Equal(t, pki.CertTypeServer, cert.Type())
	assert.Equal(t, "/C=US/ST=North Carolina/L=Fuquay Varina/O=WebPower Design/OU=Web Security/CN=foo.bar.com/emailAddress=eassl@rubyforge.org", cert.Subject().String())
	assert.Equal(t, "/C=US/O=Venda/OU=auto-CA/CN=CA", cert.Issuer().String())
	assert.Equal(t, int64(2), cert.SerialNumber().Int64())
	assert.False(t, cert.IsSelfSigned())

	fp, err := cert.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fixtureFingerprint, fp)

	again, err := pki.LoadCertificateFile(filepath.Join("testdata", "certificate.pem"))
	require.NoError(t, err)
	fp2, err := again.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp, fp2)

	var names []string
	for _, ext := range cert.Extensions() {
		names = append(names, ext.Name)
	}
	assert.Equal(t, []string{
		pki.ExtBasicConstraints,
		pki.ExtKeyUsage,
		pki.ExtSubjectKeyIdentifier,
		pki.ExtExtendedKeyUsage,
		pki.ExtAuthorityKeyIdentifier,
	}, names)
	assert.Equal(t, "TLS Web Server Authentication", extValue(t, cert, pki.ExtExtendedKeyUsage))
	assert.Equal(t, "FA:76:3D:F4:84:9B:B3:89:2C:21:3F:1F:4F:9E:C4:F2:18:28:B7:06", extValue(t, cert, pki.ExtSubjectKeyIdentifier))
}

func TestLoadCertificateErrors(t *testing.T) {
	_, err := pki.LoadCertificateFile(filepath.Join("testdata", "missing.pem"))
	assert.ErrorIs(t, err, pki.ErrNotFound)
	assert.Equal(t, pki.KindNotFound, pki.ErrorKind(err))

	_, err = pki.LoadCertificateFile(filepath.Join("testdata", "Rakefile"))
	assert.ErrorIs(t, err, pki.ErrInvalidFormat)

	_, err = pki.LoadCertificateFile(filepath.Join("testdata", "unencrypted_key.pem"))
	assert.ErrorIs(t, err, pki.ErrInvalidFormat)

	bogus := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("junk")})
	_, err = pki.ParseCertificate(bogus)
	assert.ErrorIs(t, err, pki.ErrInvalidFormat)
}

func TestCertificateRoundTrip(t *testing.T) {
	cert := newSelfSigned(t, pki.CertificateOptions{Type: pki.CertTypeClient}, "foo.com")

	data, err := cert.EncodePEM()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "-----BEGIN CERTIFICATE-----"))

	loaded, err := pki.ParseCertificate(data)
	require.NoError(t, err)

	want, err := cert.Fingerprint()
	require.NoError(t, err)
	got, err := loaded.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, cert.Subject(), loaded.Subject())
	assert.Equal(t, pki.CertTypeClient, loaded.Type())
	assert.Equal(t, cert.Extensions(), loaded.Extensions())
}

func TestSigningRequestEncodePEM(t *testing.T) {
	req := pki.NewSigningRequest(fullName(), newTestKey(t), "foo.com", "bar.com")
	assert.Equal(t, fullName(), req.Subject())

	data, err := req.EncodePEM()
	require.NoError(t, err)

	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	assert.Equal(t, "CERTIFICATE REQUEST", block.Type)

	csr, err := x509.ParseCertificateRequest(block.Bytes)
	require.NoError(t, err)
	require.NoError(t, csr.CheckSignature())
	assert.Equal(t, fullName(), pki.NameFromPKIX(csr.Subject))
	assert.Equal(t, []string{"foo.com", "bar.com"}, csr.DNSNames)

	_, err = pki.NewSigningRequest(pki.Name{}, req.Key).EncodePEM()
	assert.ErrorIs(t, err, pki.ErrInvalidRequest)
}
