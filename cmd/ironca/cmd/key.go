package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jmcleod/ironca/pki"
)

func newKeyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Private key tools",
	}

	gen := &cobra.Command{
		Use:   "gen",
		Short: "Generate an encrypted RSA private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := pki.GenerateKey(opts.v.GetInt("bits"))
			if err != nil {
				return err
			}
			data, err := key.EncodePEM(opts.v.GetString("key-password"))
			if err != nil {
				return err
			}
			opts.logger.Debug("key generated", "bits", key.Length())
			return writeOutput(cmd, opts.v.GetString("out"), data, 0o600)
		},
	}
	gen.Flags().Int("bits", pki.DefaultKeyBits, "Modulus size in bits")
	gen.Flags().String("key-password", "", "Encryption password (defaults to the built-in key password)")
	gen.Flags().StringP("out", "o", "", "Output file (stdout when empty)")

	cmd.AddCommand(gen)
	return cmd
}
