package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/ironca/pki"
	bboltstore "github.com/jmcleod/ironca/storage/bbolt"
)

// IndexFileName is the bbolt database kept next to the CA files.
const IndexFileName = "index.db"

func addNameFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("country", "", "Country (C)")
	f.String("state", "", "State or province (ST)")
	f.String("city", "", "Locality (L)")
	f.String("org", "", "Organization (O)")
	f.String("ou", "", "Organizational unit (OU)")
	f.String("cn", "", "Common name (CN)")
	f.String("email", "", "Email address")
}

func nameFromConfig(v *viper.Viper) pki.Name {
	return pki.Name{
		Country:      v.GetString("country"),
		State:        v.GetString("state"),
		City:         v.GetString("city"),
		Organization: v.GetString("org"),
		Department:   v.GetString("ou"),
		CommonName:   v.GetString("cn"),
		Email:        v.GetString("email"),
	}
}

// addKeyFlags registers the flags for supplying or generating a subject key.
func addKeyFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("key", "", "Existing private key PEM to certify (a new key is generated when empty)")
	f.String("key-password", "", "Password for --key and for the written key (defaults to the built-in key password)")
	f.Int("key-bits", pki.DefaultKeyBits, "Size of a generated key")
	f.String("key-out", "", "Where to write a generated key (stdout when empty)")
	f.String("cert-out", "", "Where to write the certificate (stdout when empty)")
	f.String("csr-out", "", "Also write the signing request PEM here")
}

// subjectKey loads --key or generates a new key. generated reports whether
// the key is new and so must be written out.
func subjectKey(v *viper.Viper) (key *pki.Key, generated bool, err error) {
	if path := v.GetString("key"); path != "" {
		key, err = pki.LoadKeyFile(path, v.GetString("key-password"))
		return key, false, err
	}
	key, err = pki.GenerateKey(v.GetInt("key-bits"))
	return key, true, err
}

// writeIssued writes the certificate, the signing request and, when
// generated, the encrypted key to the configured destinations.
func writeIssued(cmd *cobra.Command, v *viper.Viper, req *pki.SigningRequest, cert *pki.Certificate, generated bool) error {
	certPEM, err := cert.EncodePEM()
	if err != nil {
		return err
	}
	if err := writeOutput(cmd, v.GetString("cert-out"), certPEM, 0o644); err != nil {
		return err
	}
	if path := v.GetString("csr-out"); path != "" {
		csrPEM, err := req.EncodePEM()
		if err != nil {
			return err
		}
		if err := writeOutput(cmd, path, csrPEM, 0o644); err != nil {
			return err
		}
	}
	if !generated {
		return nil
	}
	keyPEM, err := req.Key.EncodePEM(v.GetString("key-password"))
	if err != nil {
		return err
	}
	return writeOutput(cmd, v.GetString("key-out"), keyPEM, 0o600)
}

// writeOutput writes data to path, or to the command's stdout when path is
// empty.
func writeOutput(cmd *cobra.Command, path string, data []byte, perm os.FileMode) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// openIndex opens dir/index.db. A short lock timeout keeps the CLI from
// hanging while a server holds the database.
func openIndex(dir string, readOnly bool) (*bboltstore.Store, error) {
	path := filepath.Join(dir, IndexFileName)
	if readOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("no certificate index in %s: %w", dir, err)
		}
	}
	return bboltstore.NewRepositoryFromFile(path, &bbolt.Options{
		Timeout:  time.Second,
		ReadOnly: readOnly,
	})
}
