package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironca/pki"
)

func newCACmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ca",
		Short: "Create and inspect the certificate authority",
	}
	cmd.AddCommand(newCAInitCmd(opts), newCAInfoCmd(opts))
	return cmd
}

func newCAInitCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new CA in --ca-dir",
		Long: `Generates a CA key and a self-signed root certificate and writes
cakey.pem, cacert.pem and serial.txt to --ca-dir. The root is named CN=CA
unless name flags are given. With --force an existing index.db is renamed
to index.db.<timestamp> so the new CA starts with an empty index.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.caDir()
			if _, err := os.Stat(filepath.Join(dir, pki.KeyFileName)); err == nil && !opts.v.GetBool("force") {
				return fmt.Errorf("a CA already exists in %s (use --force to replace it)", dir)
			}

			ca, err := pki.NewAuthority(nameFromConfig(opts.v),
				pki.WithKeyBits(opts.v.GetInt("key-bits")),
				pki.WithRootValidityDays(opts.v.GetInt("days")),
				pki.WithPassword(opts.password()),
				pki.WithLogger(opts.logger),
			)
			if err != nil {
				return err
			}
			rotated, err := rotateIndex(dir, time.Now())
			if err != nil {
				return err
			}
			if rotated != "" {
				opts.logger.Info("previous certificate index moved aside", "path", rotated)
			}
			if err := ca.Save(dir); err != nil {
				return err
			}
			return printCAInfo(cmd.OutOrStdout(), ca)
		},
	}
	addNameFlags(cmd)
	cmd.Flags().Int("key-bits", pki.DefaultKeyBits, "CA key size")
	cmd.Flags().Int("days", pki.DefaultRootValidityDays, "Root certificate validity in days")
	cmd.Flags().Bool("force", false, "Replace an existing CA")
	return cmd
}

// rotateIndex renames the index in dir out of the way and returns the new
// path, or "" when there was no index. Records are keyed by serial, and a
// new CA restarts its serials at 1.
func rotateIndex(dir string, now time.Time) (string, error) {
	path := filepath.Join(dir, IndexFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	rotated := path + "." + now.UTC().Format("20060102T150405Z")
	if err := os.Rename(path, rotated); err != nil {
		return "", fmt.Errorf("moving previous certificate index aside: %w", err)
	}
	return rotated, nil
}

func newCAInfoCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the CA certificate and serial counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ca, err := pki.LoadAuthority(opts.caDir(), opts.password(), pki.WithLogger(opts.logger))
			if err != nil {
				return err
			}
			if opts.v.GetBool("pem") {
				data, err := ca.Certificate().EncodePEM()
				if err != nil {
					return err
				}
				return writeOutput(cmd, "", data, 0)
			}
			return printCAInfo(cmd.OutOrStdout(), ca)
		},
	}
	cmd.Flags().Bool("pem", false, "Print the CA certificate PEM instead")
	return cmd
}

func printCAInfo(w io.Writer, ca *pki.Authority) error {
	if err := printCertificate(w, ca.Certificate()); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Key Bits:\t%d\n", ca.Key().Length())
	fmt.Fprintf(tw, "Next Serial:\t%s\n", strings.ToUpper(strconv.FormatUint(ca.Serial().Peek(), 16)))
	if ca.Dir() != "" {
		fmt.Fprintf(tw, "Directory:\t%s\n", ca.Dir())
	}
	return tw.Flush()
}

func printCertificate(w io.Writer, cert *pki.Certificate) error {
	fp, err := cert.Fingerprint()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Subject:\t%s\n", cert.Subject())
	fmt.Fprintf(tw, "Issuer:\t%s\n", cert.Issuer())
	fmt.Fprintf(tw, "Serial:\t%s\n", strings.ToUpper(cert.SerialNumber().Text(16)))
	fmt.Fprintf(tw, "Type:\t%s\n", cert.Type())
	fmt.Fprintf(tw, "Not Before:\t%s\n", cert.NotBefore().Format(time.RFC3339))
	fmt.Fprintf(tw, "Not After:\t%s\n", cert.NotAfter().Format(time.RFC3339))
	fmt.Fprintf(tw, "SHA1 Fingerprint:\t%s\n", fp)
	for _, ext := range cert.Extensions() {
		crit := ""
		if ext.Critical {
			crit = " (critical)"
		}
		fmt.Fprintf(tw, "%s%s:\t%s\n", ext.Name, crit, ext.Value)
	}
	return tw.Flush()
}
