package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironca/pki"
)

func newFingerprintCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint CERT",
		Short: "Print the SHA-1 fingerprint of a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, err := pki.LoadCertificateFile(args[0])
			if err != nil {
				return err
			}
			if opts.v.GetBool("text") {
				return printCertificate(cmd.OutOrStdout(), cert)
			}
			fp, err := cert.Fingerprint()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SHA1 Fingerprint=%s\n", fp)
			return nil
		},
	}
	cmd.Flags().Bool("text", false, "Print all certificate details")
	return cmd
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify CERT",
		Short: "Check that a certificate was signed by the CA in --ca-dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := pki.LoadCertificateFile(filepath.Join(opts.caDir(), pki.CertificateFileName))
			if err != nil {
				return err
			}
			cert, err := pki.LoadCertificateFile(args[0])
			if err != nil {
				return err
			}
			if err := cert.Verify(root); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", args[0])
			return nil
		},
	}
}
