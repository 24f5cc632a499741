package pki

import (
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/jmcleod/ironca/internal/uuid"
	"github.com/jmcleod/ironca/storage"
)

const (
	// DefaultRootValidityDays is the lifetime of a freshly created root.
	DefaultRootValidityDays = 3650

	// File names of the on-disk authority layout.
	KeyFileName         = "cakey.pem"
	CertificateFileName = "cacert.pem"
	SerialFileName      = "serial.txt"
)

// Authority holds a CA key, its self-signed root certificate and the serial
// counter, and issues certificates signed by that key.
//
// An Authority is not safe for concurrent use. Callers issuing from several
// goroutines must serialize CreateCertificate.
type Authority struct {
	key    *Key
	cert   *Certificate
	serial *Serial
	dir    string

	// password encrypts the CA key whenever it is persisted.
	password *memguard.Enclave

	keyBits          int
	rootValidityDays int
	logger           *slog.Logger
	index            storage.Repository
	now              func() time.Time
}

// AuthorityOption configures an Authority.
type AuthorityOption func(*Authority)

// WithKeyBits sets the CA key size used by NewAuthority.
func WithKeyBits(bits int) AuthorityOption {
	return func(a *Authority) {
		a.keyBits = bits
	}
}

// WithRootValidityDays sets the lifetime of the root created by NewAuthority.
func WithRootValidityDays(days int) AuthorityOption {
	return func(a *Authority) {
		a.rootValidityDays = days
	}
}

// WithLogger sets the logger for issuance events. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) AuthorityOption {
	return func(a *Authority) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithIndex records every issued certificate in repo.
func WithIndex(repo storage.Repository) AuthorityOption {
	return func(a *Authority) {
		a.index = repo
	}
}

// WithClock overrides the time source used for validity windows.
func WithClock(now func() time.Time) AuthorityOption {
	return func(a *Authority) {
		if now != nil {
			a.now = now
		}
	}
}

// WithPassword sets the password the CA key is encrypted with on Save.
// LoadAuthority replaces it with the password the key was loaded with.
func WithPassword(password string) AuthorityOption {
	return func(a *Authority) {
		a.password = newPasswordEnclave(password)
	}
}

func newPasswordEnclave(password string) *memguard.Enclave {
	return memguard.NewEnclave([]byte(passwordOrDefault(password)))
}

func newAuthority(opts []AuthorityOption) *Authority {
	a := &Authority{
		keyBits:          DefaultKeyBits,
		rootValidityDays: DefaultRootValidityDays,
		logger:           slog.Default(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.password == nil {
		a.password = newPasswordEnclave("")
	}
	return a
}

// NewAuthority creates a CA in memory: a fresh key, a self-signed root for
// name (CN=CA when name is empty) carrying serial 0, and a serial counter
// starting at 1. Nothing is written until Save is called.
func NewAuthority(name Name, opts ...AuthorityOption) (*Authority, error) {
	a := newAuthority(opts)
	if name.IsEmpty() {
		name = Name{CommonName: DefaultCommonName}
	}

	key, err := GenerateKey(a.keyBits)
	if err != nil {
		return nil, fmt.Errorf("creating authority key: %w", err)
	}
	req := NewSigningRequest(name, key)
	root, err := NewCertificate(req, nil, CertificateOptions{
		Type:         CertTypeCA,
		ValidityDays: a.rootValidityDays,
		SerialNumber: big.NewInt(0),
		NotBefore:    a.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("building root certificate: %w", err)
	}
	if err := root.Sign(key); err != nil {
		return nil, fmt.Errorf("signing root certificate: %w", err)
	}

	a.key = key
	a.cert = root
	a.serial = NewSerial()
	a.logger.Info("authority created",
		slog.String("subject", name.String()),
		slog.Int("key_bits", key.Length()))
	return a, nil
}

// LoadAuthority reads cakey.pem, cacert.pem and serial.txt from dir. The key
// is decrypted with password (DefaultKeyPassword when empty). A missing key
// or certificate fails with ErrNotFound; a missing serial file starts the
// counter at 1.
func LoadAuthority(dir, password string, opts ...AuthorityOption) (*Authority, error) {
	a := newAuthority(opts)

	key, err := LoadKeyFile(filepath.Join(dir, KeyFileName), password)
	if err != nil {
		return nil, fmt.Errorf("loading authority: %w", err)
	}
	cert, err := LoadCertificateFile(filepath.Join(dir, CertificateFileName))
	if err != nil {
		return nil, fmt.Errorf("loading authority: %w", err)
	}
	if !key.priv.PublicKey.Equal(cert.cert.PublicKey) {
		return nil, fmt.Errorf("loading authority: %w: key does not match certificate %s", ErrInvalidFormat, cert.Subject())
	}
	if !cert.IsSelfSigned() {
		return nil, fmt.Errorf("loading authority: %w: certificate %s is not self-signed", ErrInvalidFormat, cert.Subject())
	}
	if cert.canIssue() != nil {
		return nil, fmt.Errorf("loading authority: %w: certificate %s is not a CA certificate", ErrInvalidFormat, cert.Subject())
	}
	serial, err := LoadSerial(filepath.Join(dir, SerialFileName))
	if err != nil {
		return nil, fmt.Errorf("loading authority: %w", err)
	}

	a.key = key
	a.cert = cert
	a.serial = serial
	a.dir = filepath.Clean(dir)
	a.password = newPasswordEnclave(password)
	a.logger.Debug("authority loaded",
		slog.String("dir", a.dir),
		slog.String("subject", cert.Subject().String()),
		slog.Uint64("next_serial", serial.Peek()))
	return a, nil
}

// Save writes the authority to dir using the on-disk layout read by
// LoadAuthority and binds the serial counter to dir/serial.txt.
func (a *Authority) Save(dir string) error {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating authority directory: %w", err)
	}

	buf, err := a.password.Open()
	if err != nil {
		return fmt.Errorf("opening authority password: %w", err)
	}
	keyPEM, err := a.key.EncodePEM(string(buf.Bytes()))
	buf.Destroy()
	if err != nil {
		return err
	}
	certPEM, err := a.cert.EncodePEM()
	if err != nil {
		return err
	}

	if err := writeFileAtomic(filepath.Join(dir, KeyFileName), keyPEM, 0o600); err != nil {
		return fmt.Errorf("writing authority key: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, CertificateFileName), certPEM, 0o644); err != nil {
		return fmt.Errorf("writing authority certificate: %w", err)
	}
	if err := a.serial.bind(filepath.Join(dir, SerialFileName)); err != nil {
		return err
	}
	a.dir = dir
	a.logger.Info("authority saved", slog.String("dir", dir))
	return nil
}

// CreateCertificate issues a certificate for req signed by the CA key.
//
// The request and options are validated first. The serial is then consumed
// and persisted before signing, so a later failure leaves a gap in the
// sequence but never reuses a serial. opts.SerialNumber must be nil.
func (a *Authority) CreateCertificate(req *SigningRequest, opts CertificateOptions) (*Certificate, error) {
	if opts.SerialNumber != nil {
		return nil, fmt.Errorf("%w: serial numbers are assigned by the authority", ErrInvalidRequest)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	if err := a.cert.canIssue(); err != nil {
		return nil, err
	}

	n, err := a.serial.Next()
	if err != nil {
		return nil, fmt.Errorf("consuming serial: %w", err)
	}
	opts.SerialNumber = new(big.Int).SetUint64(n)
	if opts.NotBefore.IsZero() {
		opts.NotBefore = a.now()
	}

	cert, err := NewCertificate(req, a.cert, opts)
	if err != nil {
		return nil, err
	}
	if err := cert.Sign(a.key); err != nil {
		return nil, err
	}

	if a.index != nil {
		if err := a.record(cert); err != nil {
			a.logger.Warn("failed to update certificate index on issue",
				"serial", formatSerial(n), "error", err)
		}
	}
	a.logger.Info("certificate issued",
		slog.String("serial", formatSerial(n)),
		slog.String("subject", cert.Subject().String()),
		slog.String("type", string(cert.Type())))
	return cert, nil
}

func (a *Authority) record(cert *Certificate) error {
	rec, err := NewRecord(cert)
	if err != nil {
		return err
	}
	rec.IssuedAt = a.now().UTC()
	return a.index.Put(rec)
}

// NewRecord describes a signed or loaded certificate as an index record.
func NewRecord(cert *Certificate) (*storage.Record, error) {
	fp, err := cert.Fingerprint()
	if err != nil {
		return nil, err
	}
	certPEM, err := cert.EncodePEM()
	if err != nil {
		return nil, err
	}
	return &storage.Record{
		ID:             uuid.New(),
		Serial:         strings.ToUpper(cert.SerialNumber().Text(16)),
		Subject:        cert.Subject().String(),
		Issuer:         cert.Issuer().String(),
		Type:           string(cert.Type()),
		NotBefore:      cert.NotBefore(),
		NotAfter:       cert.NotAfter(),
		Fingerprint:    fp,
		CertificatePEM: string(certPEM),
	}, nil
}

// Key returns the CA private key.
func (a *Authority) Key() *Key { return a.key }

// Certificate returns the self-signed root.
func (a *Authority) Certificate() *Certificate { return a.cert }

// Serial returns the counter issuance draws from.
func (a *Authority) Serial() *Serial { return a.serial }

// Subject returns the root certificate subject, which is also the issuer of
// every certificate this authority creates.
func (a *Authority) Subject() Name { return a.cert.Subject() }

// Dir returns the directory the authority was loaded from or saved to, or
// "" for an authority that only lives in memory.
func (a *Authority) Dir() string { return a.dir }

// Index returns the configured certificate index, if any.
func (a *Authority) Index() storage.Repository { return a.index }

// Bootstrap creates an in-memory CA named CN=CA and issues a server
// certificate for name and key with the given DNS names. It returns the CA,
// the signing request it issued from and the certificate. A nil key is
// replaced by a freshly generated one.
func Bootstrap(name Name, key *Key, sans []string, opts ...AuthorityOption) (*Authority, *SigningRequest, *Certificate, error) {
	ca, err := NewAuthority(Name{}, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	if key == nil {
		key, err = GenerateKey(ca.keyBits)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	req := NewSigningRequest(name, key, sans...)
	cert, err := ca.CreateCertificate(req, CertificateOptions{Type: CertTypeServer})
	if err != nil {
		return nil, nil, nil, err
	}
	return ca, req, cert, nil
}
