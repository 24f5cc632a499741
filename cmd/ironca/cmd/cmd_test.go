package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironca/pki"
)

// run executes the CLI with args and returns what it wrote to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func initCA(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "ca")
	_, err := run(t, "ca", "init", "--ca-dir", dir, "--password", "pw", "--cn", "Test CA", "--key-bits", "1024")
	require.NoError(t, err)
	return dir
}

func TestCAInitWritesLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ca")
	out, err := run(t, "ca", "init", "--ca-dir", dir, "--password", "pw", "--key-bits", "1024")
	require.NoError(t, err)
	assert.Contains(t, out, "/CN=CA")

	for _, name := range []string{pki.KeyFileName, pki.CertificateFileName, pki.SerialFileName} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	ca, err := pki.LoadAuthority(dir, "pw")
	require.NoError(t, err)
	assert.Equal(t, 1024, ca.Key().Length())
	assert.Equal(t, uint64(1), ca.Serial().Peek())
}

func TestCAInitRefusesToOverwrite(t *testing.T) {
	dir := initCA(t)

	_, err := run(t, "ca", "init", "--ca-dir", dir, "--password", "pw", "--key-bits", "1024")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, err = run(t, "ca", "init", "--ca-dir", dir, "--password", "pw", "--key-bits", "1024", "--force")
	require.NoError(t, err)
}

func TestCAInitForceStartsFreshIndex(t *testing.T) {
	dir := initCA(t)
	_, err := run(t, "issue", "--ca-dir", dir, "--password", "pw", "--cn", "old.example.com",
		"--key-bits", "1024", "--cert-out", filepath.Join(t.TempDir(), "old.pem"))
	require.NoError(t, err)

	_, err = run(t, "ca", "init", "--ca-dir", dir, "--password", "pw", "--cn", "New CA", "--key-bits", "1024", "--force")
	require.NoError(t, err)
	rotated, err := filepath.Glob(filepath.Join(dir, IndexFileName+".*"))
	require.NoError(t, err)
	assert.Len(t, rotated, 1)

	certPath := filepath.Join(t.TempDir(), "new.pem")
	_, err = run(t, "issue", "--ca-dir", dir, "--password", "pw", "--cn", "new.example.com",
		"--key-bits", "1024", "--cert-out", certPath)
	require.NoError(t, err)

	out, err := run(t, "index", "list", "--ca-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "/CN=new.example.com")
	assert.NotContains(t, out, "/CN=old.example.com")

	out, err = run(t, "index", "show", "--ca-dir", dir, "1")
	require.NoError(t, err)
	shown, err := pki.ParseCertificate([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "/CN=new.example.com", shown.Subject().String())
	assert.Equal(t, "/CN=New CA", shown.Issuer().String())
}

func TestCAInfo(t *testing.T) {
	dir := initCA(t)

	out, err := run(t, "ca", "info", "--ca-dir", dir, "--password", "pw")
	require.NoError(t, err)
	assert.Contains(t, out, "/CN=Test CA")
	assert.Contains(t, out, "basicConstraints (critical):")
	assert.Regexp(t, `Next Serial:\s+1\n`, out)

	_, err = run(t, "ca", "info", "--ca-dir", dir, "--password", "wrong")
	assert.ErrorIs(t, err, pki.ErrDecrypt)
}

func TestCAInfoPasswordFromEnv(t *testing.T) {
	dir := initCA(t)
	t.Setenv("IRONCA_PASSWORD", "pw")
	t.Setenv("IRONCA_CA_DIR", dir)

	out, err := run(t, "ca", "info", "--pem")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "-----BEGIN CERTIFICATE-----"))
}

func TestCAInfoFromConfigFile(t *testing.T) {
	dir := initCA(t)
	cfg := filepath.Join(t.TempDir(), "ironca.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("ca-dir: "+dir+"\npassword: pw\n"), 0o600))

	out, err := run(t, "ca", "info", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "/CN=Test CA")
}

func TestIssueVerifyAndIndex(t *testing.T) {
	dir := initCA(t)
	work := t.TempDir()
	certPath := filepath.Join(work, "www.pem")
	keyPath := filepath.Join(work, "www.key")
	csrPath := filepath.Join(work, "www.csr")

	_, err := run(t, "issue", "--ca-dir", dir, "--password", "pw",
		"--cn", "www.example.com", "--san", "example.com", "--san", "www.example.com",
		"--key-bits", "1024", "--key-password", "kp",
		"--cert-out", certPath, "--key-out", keyPath, "--csr-out", csrPath)
	require.NoError(t, err)

	cert, err := pki.LoadCertificateFile(certPath)
	require.NoError(t, err)
	assert.Equal(t, "/CN=www.example.com", cert.Subject().String())
	assert.Equal(t, "/CN=Test CA", cert.Issuer().String())
	assert.Equal(t, int64(1), cert.SerialNumber().Int64())

	_, err = pki.LoadKeyFile(keyPath, "kp")
	require.NoError(t, err)
	csr, err := os.ReadFile(csrPath)
	require.NoError(t, err)
	assert.Contains(t, string(csr), "CERTIFICATE REQUEST")

	out, err := run(t, "verify", "--ca-dir", dir, certPath)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")

	fp, err := cert.Fingerprint()
	require.NoError(t, err)
	out, err = run(t, "fingerprint", certPath)
	require.NoError(t, err)
	assert.Equal(t, "SHA1 Fingerprint="+fp+"\n", out)

	out, err = run(t, "index", "list", "--ca-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "/CN=www.example.com")

	out, err = run(t, "index", "show", "--ca-dir", dir, "0001")
	require.NoError(t, err)
	pem, err := cert.EncodePEM()
	require.NoError(t, err)
	assert.Equal(t, string(pem), out)

	out, err = run(t, "ca", "info", "--ca-dir", dir, "--password", "pw")
	require.NoError(t, err)
	assert.Regexp(t, `Next Serial:\s+2\n`, out)
}

func TestIssueWithExistingKey(t *testing.T) {
	dir := initCA(t)
	work := t.TempDir()
	keyPath := filepath.Join(work, "client.key")

	_, err := run(t, "key", "gen", "--bits", "1024", "--key-password", "kp", "-o", keyPath)
	require.NoError(t, err)

	out, err := run(t, "issue", "--ca-dir", dir, "--password", "pw", "--no-index",
		"--type", "client", "--cn", "alice", "--key", keyPath, "--key-password", "kp")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "-----BEGIN CERTIFICATE-----"))
	assert.NotContains(t, out, "PRIVATE KEY", "an existing key is not written back")

	cert, err := pki.ParseCertificate([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, pki.CertTypeClient, cert.Type())

	_, err = os.Stat(filepath.Join(dir, IndexFileName))
	assert.True(t, os.IsNotExist(err), "--no-index leaves no index behind")
}

func TestIssueRejectsBadType(t *testing.T) {
	dir := initCA(t)

	_, err := run(t, "issue", "--ca-dir", dir, "--password", "pw", "--cn", "x", "--type", "email")
	assert.ErrorIs(t, err, pki.ErrInvalidRequest)
}

func TestSelfSign(t *testing.T) {
	work := t.TempDir()
	certPath := filepath.Join(work, "self.pem")

	_, err := run(t, "selfsign", "--cn", "self.example.com", "--key-bits", "1024",
		"--days", "10", "--cert-out", certPath, "--key-out", filepath.Join(work, "self.key"))
	require.NoError(t, err)

	cert, err := pki.LoadCertificateFile(certPath)
	require.NoError(t, err)
	assert.True(t, cert.IsSelfSigned())
	assert.Equal(t, 10*24*60*60.0, cert.NotAfter().Sub(cert.NotBefore()).Seconds())
}

func TestIndexListWithoutIndex(t *testing.T) {
	dir := initCA(t)

	_, err := run(t, "index", "list", "--ca-dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no certificate index")
}

func TestIssueServingCertificate(t *testing.T) {
	ca, err := pki.NewAuthority(pki.Name{}, pki.WithKeyBits(1024))
	require.NoError(t, err)

	pair, err := issueServingCertificate(ca, []string{"ca.internal", "localhost"})
	require.NoError(t, err)
	require.Len(t, pair.Certificate, 2)
	assert.Equal(t, "ca.internal", pair.Leaf.Subject.CommonName)
	assert.Equal(t, []string{"ca.internal", "localhost"}, pair.Leaf.DNSNames)
	assert.Equal(t, uint64(2), ca.Serial().Peek())
}
