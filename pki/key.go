package pki

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jmcleod/ironca/internal/util"
)

const (
	// DefaultKeyBits is the modulus size used when no size is requested.
	DefaultKeyBits = 2048

	// DefaultKeyPassword encrypts serialized keys when the caller supplies no
	// password, so keys are never written in plaintext.
	DefaultKeyPassword = "ssl_password"

	pemTypeRSAPrivateKey = "RSA PRIVATE KEY"
	pemTypePrivateKey    = "PRIVATE KEY"
)

// Key owns an RSA private key. It is immutable once constructed.
type Key struct {
	priv *rsa.PrivateKey
}

// GenerateKey creates a Key with fresh RSA material of the given modulus
// size. A non-positive bits value selects DefaultKeyBits.
func GenerateKey(bits int) (*Key, error) {
	if bits <= 0 {
		bits = DefaultKeyBits
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generating %d-bit RSA key: %w", bits, err)
	}
	return &Key{priv: priv}, nil
}

// LoadKeyFile reads a PEM-encoded RSA key from path. See ParseKey for the
// password handling.
func LoadKeyFile(path, password string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("key %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("reading key %s: %w", path, err)
	}
	k, err := ParseKey(data, password)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", path, err)
	}
	return k, nil
}

// ParseKey decodes a PKCS#1 ("RSA PRIVATE KEY") or PKCS#8 ("PRIVATE KEY")
// PEM block. Blocks marked Proc-Type: 4,ENCRYPTED are decrypted with
// password, or DefaultKeyPassword when password is empty; unencrypted blocks
// ignore the password.
func ParseKey(data []byte, password string) (*Key, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidFormat)
	}

	der := block.Bytes
	// Legacy RFC 1423 PEM encryption is deprecated in crypto/x509 but it is
	// the Proc-Type/DEK-Info format CA keys are persisted in.
	encrypted := x509.IsEncryptedPEMBlock(block)
	if encrypted {
		secret := []byte(util.Normalize(passwordOrDefault(password)))
		defer util.WipeBytes(secret)

		plain, err := x509.DecryptPEMBlock(block, secret)
		if err != nil {
			if errors.Is(err, x509.IncorrectPasswordError) {
				return nil, ErrDecrypt
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		der = plain
	}

	priv, err := parseRSAPrivateKey(block.Type, der)
	if err != nil {
		// Legacy PEM encryption has no integrity check, so a wrong password
		// can still produce correctly padded garbage.
		if encrypted {
			return nil, ErrDecrypt
		}
		return nil, err
	}
	return &Key{priv: priv}, nil
}

func parseRSAPrivateKey(pemType string, der []byte) (*rsa.PrivateKey, error) {
	switch pemType {
	case pemTypeRSAPrivateKey:
		priv, err := x509.ParsePKCS1PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		return priv, nil
	case pemTypePrivateKey:
		anyKey, err := x509.ParsePKCS8PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		priv, ok := anyKey.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key (%T)", ErrInvalidFormat, anyKey)
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidFormat, pemType)
	}
}

// Length returns the modulus size in bits of the wrapped key material.
func (k *Key) Length() int {
	return k.priv.N.BitLen()
}

// Public returns the RSA public key.
func (k *Key) Public() crypto.PublicKey {
	return k.priv.Public()
}

// Signer exposes the private key for signing operations such as TLS.
func (k *Key) Signer() crypto.Signer {
	return k.priv
}

// Equal reports whether k and other wrap the same key material.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	return k.priv.Equal(other.priv)
}

// EncodePEM returns the key as an encrypted PKCS#1 PEM block. An empty
// password selects DefaultKeyPassword.
func (k *Key) EncodePEM(password string) ([]byte, error) {
	secret := []byte(util.Normalize(passwordOrDefault(password)))
	defer util.WipeBytes(secret)

	der := x509.MarshalPKCS1PrivateKey(k.priv)
	defer util.WipeBytes(der)

	block, err := x509.EncryptPEMBlock(rand.Reader, pemTypeRSAPrivateKey, der, secret, x509.PEMCipherAES256)
	if err != nil {
		return nil, fmt.Errorf("encrypting private key: %w", err)
	}
	return pem.EncodeToMemory(block), nil
}

func passwordOrDefault(password string) string {
	if password == "" {
		return DefaultKeyPassword
	}
	return password
}
