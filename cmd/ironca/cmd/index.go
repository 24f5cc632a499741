package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the issued-certificate index",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List issued certificates in serial order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := openIndex(opts.caDir(), true)
			if err != nil {
				return err
			}
			defer idx.Close()

			records, err := idx.List()
			if err != nil {
				return err
			}
			if opts.v.GetBool("json") {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SERIAL\tTYPE\tNOT AFTER\tSUBJECT")
			for _, rec := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.Serial, rec.Type, rec.NotAfter.Format(time.DateOnly), rec.Subject)
			}
			return tw.Flush()
		},
	}
	list.Flags().Bool("json", false, "Print records as JSON")

	show := &cobra.Command{
		Use:   "show SERIAL",
		Short: "Print the PEM of an issued certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := openIndex(opts.caDir(), true)
			if err != nil {
				return err
			}
			defer idx.Close()

			rec, err := idx.Get(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), rec.CertificatePEM)
			return err
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}
