package pki

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"slices"
	"time"

	"github.com/jmcleod/ironca/internal/util"
)

// DefaultValidityDays is the lifetime of a certificate when none is given.
const DefaultValidityDays = 365

// CertType selects the extension profile of a certificate.
type CertType string

const (
	CertTypeServer CertType = "server"
	CertTypeClient CertType = "client"
	CertTypeCA     CertType = "ca"
)

// ParseCertType accepts "server", "client" or "ca". The empty string maps to
// CertTypeServer.
func ParseCertType(s string) (CertType, error) {
	switch CertType(s) {
	case "", CertTypeServer:
		return CertTypeServer, nil
	case CertTypeClient:
		return CertTypeClient, nil
	case CertTypeCA:
		return CertTypeCA, nil
	default:
		return "", fmt.Errorf("%w: unknown certificate type %q", ErrInvalidRequest, s)
	}
}

// State is the lifecycle position of a Certificate.
type State int

const (
	// StateBuilt certificates have a template but no signature yet.
	StateBuilt State = iota
	// StateSigned certificates were signed by this process.
	StateSigned
	// StateLoaded certificates were decoded from existing PEM.
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateSigned:
		return "signed"
	case StateLoaded:
		return "loaded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CertificateOptions enumerates the recognised issuance options. The zero
// value describes a server certificate valid for DefaultValidityDays.
type CertificateOptions struct {
	Type            CertType
	ValidityDays    int
	SubjectAltNames []string

	// SerialNumber defaults to a random 63-bit value.
	SerialNumber *big.Int
	// NotBefore defaults to the current time.
	NotBefore time.Time
}

func (o CertificateOptions) normalize() (CertificateOptions, error) {
	t, err := ParseCertType(string(o.Type))
	if err != nil {
		return o, err
	}
	o.Type = t
	switch {
	case o.ValidityDays == 0:
		o.ValidityDays = DefaultValidityDays
	case o.ValidityDays < 0:
		return o, fmt.Errorf("%w: validity must be positive, got %d days", ErrInvalidRequest, o.ValidityDays)
	}
	if o.SerialNumber != nil && o.SerialNumber.Sign() < 0 {
		return o, fmt.Errorf("%w: negative serial number", ErrInvalidRequest)
	}
	return o, nil
}

// Certificate is an X.509 certificate that is either waiting to be signed
// (StateBuilt) or carries an encoding (StateSigned, StateLoaded).
type Certificate struct {
	state    State
	certType CertType
	subject  Name
	issuer   Name

	// Set while built.
	template   *x509.Certificate
	subjectKey *Key
	parent     *x509.Certificate

	// Set once signed or loaded.
	der  []byte
	cert *x509.Certificate
}

// NewCertificate builds an unsigned certificate for req. When ca is nil the
// certificate is self-signed and must be signed with req.Key; otherwise its
// issuer is ca's subject and it must be signed with the CA key.
func NewCertificate(req *SigningRequest, ca *Certificate, opts CertificateOptions) (*Certificate, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	var parent *x509.Certificate
	issuer := req.Name
	if ca != nil {
		if err := ca.canIssue(); err != nil {
			return nil, err
		}
		parent = ca.cert
		issuer = ca.subject
	}

	serial := opts.SerialNumber
	if serial == nil {
		serial, err = util.RandomSerial()
		if err != nil {
			return nil, err
		}
	} else {
		serial = new(big.Int).Set(serial)
	}

	notBefore := opts.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now()
	}
	notBefore = notBefore.UTC().Truncate(time.Second)
	notAfter := notBefore.Add(time.Duration(opts.ValidityDays) * 24 * time.Hour)

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               req.Name.ToPKIX(),
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
		DNSNames:              mergeNames(req.SubjectAltNames, opts.SubjectAltNames),
	}
	switch opts.Type {
	case CertTypeServer:
		template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	case CertTypeClient:
		template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageEmailProtection}
	case CertTypeCA:
		template.IsCA = true
		template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	}

	return &Certificate{
		state:      StateBuilt,
		certType:   opts.Type,
		subject:    req.Name,
		issuer:     issuer,
		template:   template,
		subjectKey: req.Key,
		parent:     parent,
	}, nil
}

// NewSelfSignedCertificate builds a certificate for req and signs it with
// req.Key.
func NewSelfSignedCertificate(req *SigningRequest, opts CertificateOptions) (*Certificate, error) {
	c, err := NewCertificate(req, nil, opts)
	if err != nil {
		return nil, err
	}
	if err := c.Sign(req.Key); err != nil {
		return nil, err
	}
	return c, nil
}

// mergeNames returns the union of a and b in first-seen order.
func mergeNames(a, b []string) []string {
	var out []string
	for _, n := range slices.Concat(a, b) {
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// Sign signs a built certificate with key: the CA's key for CA-issued
// certificates, the request's own key for self-signed ones.
func (c *Certificate) Sign(key *Key) error {
	if c.state != StateBuilt {
		return fmt.Errorf("%w: cannot sign a %s certificate", ErrInvalidState, c.state)
	}
	if key == nil {
		return fmt.Errorf("%w: nil signing key", ErrInvalidRequest)
	}

	parent := c.parent
	if parent == nil {
		if !key.Equal(c.subjectKey) {
			return fmt.Errorf("%w: self-signed certificate must be signed with its own key", ErrInvalidRequest)
		}
		parent = c.template
	}

	der, err := x509.CreateCertificate(rand.Reader, c.template, parent, c.subjectKey.Public(), key.priv)
	if err != nil {
		return fmt.Errorf("signing certificate: %w", err)
	}
	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("parsing signed certificate: %w", err)
	}

	c.der = der
	c.cert = parsed
	c.state = StateSigned
	c.template, c.subjectKey, c.parent = nil, nil, nil
	return nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// LoadCertificateFile reads a PEM certificate from path.
func LoadCertificateFile(path string) (*Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("certificate %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("reading certificate %s: %w", path, err)
	}
	c, err := ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("certificate %s: %w", path, err)
	}
	return c, nil
}

// ParseCertificate decodes the first PEM "CERTIFICATE" block in data.
func ParseCertificate(data []byte) (*Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidFormat)
	}
	if block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidFormat, block.Type)
	}
	parsed, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return &Certificate{
		state:    StateLoaded,
		certType: inferCertType(parsed),
		subject:  NameFromPKIX(parsed.Subject),
		issuer:   NameFromPKIX(parsed.Issuer),
		der:      parsed.Raw,
		cert:     parsed,
	}, nil
}

func inferCertType(c *x509.Certificate) CertType {
	if c.BasicConstraintsValid && c.IsCA {
		return CertTypeCA
	}
	if slices.Contains(c.ExtKeyUsage, x509.ExtKeyUsageClientAuth) &&
		!slices.Contains(c.ExtKeyUsage, x509.ExtKeyUsageServerAuth) {
		return CertTypeClient
	}
	return CertTypeServer
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (c *Certificate) State() State { return c.state }

func (c *Certificate) Type() CertType { return c.certType }

func (c *Certificate) Subject() Name { return c.subject }

func (c *Certificate) Issuer() Name { return c.issuer }

// IsSelfSigned reports whether issuer and subject are the same name. Signed
// and loaded certificates compare their encoded names byte for byte.
func (c *Certificate) IsSelfSigned() bool {
	if c.cert != nil {
		return bytes.Equal(c.cert.RawSubject, c.cert.RawIssuer)
	}
	return c.issuer.Equal(c.subject)
}

// canIssue reports why c cannot act as the issuer of other certificates.
func (c *Certificate) canIssue() error {
	if c.cert == nil {
		return fmt.Errorf("%w: issuer certificate is %s", ErrInvalidState, c.state)
	}
	if !c.cert.BasicConstraintsValid || !c.cert.IsCA {
		return fmt.Errorf("%w: issuer certificate %s is not a CA", ErrInvalidRequest, c.subject)
	}
	return nil
}

func (c *Certificate) fields() *x509.Certificate {
	if c.cert != nil {
		return c.cert
	}
	return c.template
}

// SerialNumber returns a copy of the certificate serial.
func (c *Certificate) SerialNumber() *big.Int {
	return new(big.Int).Set(c.fields().SerialNumber)
}

func (c *Certificate) NotBefore() time.Time { return c.fields().NotBefore }

func (c *Certificate) NotAfter() time.Time { return c.fields().NotAfter }

// Extensions lists the recognised X.509v3 extensions with OpenSSL-style
// values.
func (c *Certificate) Extensions() []Extension {
	return renderExtensions(c.fields())
}

// Extension looks up a single extension by its short name, such as
// ExtExtendedKeyUsage.
func (c *Certificate) Extension(name string) (Extension, bool) {
	for _, ext := range c.Extensions() {
		if ext.Name == name {
			return ext, true
		}
	}
	return Extension{}, false
}

// X509 returns the parsed certificate. It is only available once the
// certificate is signed or loaded.
func (c *Certificate) X509() (*x509.Certificate, error) {
	if c.cert == nil {
		return nil, fmt.Errorf("%w: certificate is %s", ErrInvalidState, c.state)
	}
	return c.cert, nil
}

// Fingerprint returns the SHA-1 digest of the DER encoding as uppercase,
// colon-separated hex pairs.
func (c *Certificate) Fingerprint() (string, error) {
	if c.der == nil {
		return "", fmt.Errorf("%w: certificate is %s", ErrInvalidState, c.state)
	}
	sum := sha1.Sum(c.der)
	return util.ColonHex(sum[:]), nil
}

// EncodePEM returns the certificate as a PEM "CERTIFICATE" block.
func (c *Certificate) EncodePEM() ([]byte, error) {
	if c.der == nil {
		return nil, fmt.Errorf("%w: certificate is %s", ErrInvalidState, c.state)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.der}), nil
}

// Verify checks that c was signed by ca.
func (c *Certificate) Verify(ca *Certificate) error {
	if c.cert == nil || ca.cert == nil {
		return fmt.Errorf("%w: both certificates must be signed or loaded", ErrInvalidState)
	}
	if err := c.cert.CheckSignatureFrom(ca.cert); err != nil {
		return fmt.Errorf("verifying certificate %s: %w", c.subject, err)
	}
	return nil
}
