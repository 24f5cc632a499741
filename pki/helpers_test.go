package pki_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmcleod/ironca/pki"
	"github.com/stretchr/testify/require"
)

// testKeyBits keeps key generation fast. Tests that assert the default size
// generate a full 2048-bit key themselves.
const testKeyBits = 1024

// fixtureCAPassword decrypts testdata/CA/cakey.pem.
const fixtureCAPassword = "1234"

func newTestKey(t *testing.T) *pki.Key {
	t.Helper()
	key, err := pki.GenerateKey(testKeyBits)
	require.NoError(t, err)
	return key
}

func fullName() pki.Name {
	return pki.Name{
		Country:      "GB",
		State:        "London",
		City:         "London",
		Organization: "Venda Ltd",
		Department:   "Development",
		CommonName:   "foo.bar.com",
		Email:        "dev@venda.com",
	}
}

// copyFixtureCA copies testdata/CA into a temp dir so tests can consume
// serials without touching the checked-in counter.
func copyFixtureCA(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{pki.KeyFileName, pki.CertificateFileName, pki.SerialFileName} {
		data, err := os.ReadFile(filepath.Join("testdata", "CA", name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
	}
	return dir
}

// writeAuthorityDir lays out key and certPEM as a CA directory with the
// counter at 1. The key is encrypted with fixtureCAPassword.
func writeAuthorityDir(t *testing.T, key *pki.Key, certPEM []byte) string {
	t.Helper()
	dir := t.TempDir()
	keyPEM, err := key.EncodePEM(fixtureCAPassword)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, pki.KeyFileName), keyPEM, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, pki.CertificateFileName), certPEM, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, pki.SerialFileName), []byte("0001"), 0o600))
	return dir
}
