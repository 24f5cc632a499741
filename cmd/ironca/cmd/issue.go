package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jmcleod/ironca/pki"
)

func newIssueCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a certificate signed by the CA in --ca-dir",
		Long: `Issues a server, client or CA certificate for the given name. A new key is
generated unless --key names an existing one. The serial counter in the CA
directory is advanced and the certificate is recorded in index.db.`,
		Example: `  ironca issue --cn www.example.com --san example.com --cert-out www.pem --key-out www.key
  ironca issue --type client --cn alice --email alice@example.com --key alice.key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := opts.v
			certType, err := pki.ParseCertType(v.GetString("type"))
			if err != nil {
				return err
			}

			caOpts := []pki.AuthorityOption{pki.WithLogger(opts.logger)}
			if !v.GetBool("no-index") {
				idx, err := openIndex(opts.caDir(), false)
				if err != nil {
					return err
				}
				defer idx.Close()
				caOpts = append(caOpts, pki.WithIndex(idx))
			}
			ca, err := pki.LoadAuthority(opts.caDir(), opts.password(), caOpts...)
			if err != nil {
				return err
			}

			key, generated, err := subjectKey(v)
			if err != nil {
				return err
			}
			req := pki.NewSigningRequest(nameFromConfig(v), key, v.GetStringSlice("san")...)
			cert, err := ca.CreateCertificate(req, pki.CertificateOptions{
				Type:         certType,
				ValidityDays: v.GetInt("days"),
			})
			if err != nil {
				return err
			}
			return writeIssued(cmd, v, req, cert, generated)
		},
	}
	addNameFlags(cmd)
	addKeyFlags(cmd)
	cmd.Flags().String("type", string(pki.CertTypeServer), "Certificate type: server, client or ca")
	cmd.Flags().Int("days", pki.DefaultValidityDays, "Validity in days")
	cmd.Flags().StringSlice("san", nil, "DNS subject alternative name (repeatable)")
	cmd.Flags().Bool("no-index", false, "Do not record the certificate in index.db")
	return cmd
}

func newSelfSignCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selfsign",
		Short: "Create a self-signed certificate without a CA",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := opts.v
			certType, err := pki.ParseCertType(v.GetString("type"))
			if err != nil {
				return err
			}
			key, generated, err := subjectKey(v)
			if err != nil {
				return err
			}
			req := pki.NewSigningRequest(nameFromConfig(v), key, v.GetStringSlice("san")...)
			cert, err := pki.NewSelfSignedCertificate(req, pki.CertificateOptions{
				Type:         certType,
				ValidityDays: v.GetInt("days"),
			})
			if err != nil {
				return err
			}
			opts.logger.Debug("self-signed certificate created", "subject", cert.Subject().String())
			return writeIssued(cmd, v, req, cert, generated)
		},
	}
	addNameFlags(cmd)
	addKeyFlags(cmd)
	cmd.Flags().String("type", string(pki.CertTypeServer), "Certificate type: server, client or ca")
	cmd.Flags().Int("days", pki.DefaultValidityDays, "Validity in days")
	cmd.Flags().StringSlice("san", nil, "DNS subject alternative name (repeatable)")
	return cmd
}
