package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is overridden at build time with -ldflags "-X".
var Version = "dev"

// rootOptions carries the resolved configuration for one invocation. Every
// flag is bound into v, so IRONCA_<FLAG> environment variables and keys in
// the --config file override defaults.
type rootOptions struct {
	v      *viper.Viper
	logger *slog.Logger
}

func (o *rootOptions) caDir() string    { return o.v.GetString("ca-dir") }
func (o *rootOptions) password() string { return o.v.GetString("password") }

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "ironca",
		Short: "IronCA is a small RSA certificate authority",
		Long: `A certificate authority for issuing server, client and CA certificates
from a CA kept on local disk, with an optional HTTP API.
Complete documentation is available at https://github.com/jmcleod/ironca`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file")
	pf.String("ca-dir", "./ca", "Directory holding cakey.pem, cacert.pem and serial.txt")
	pf.String("password", "", "CA key password (defaults to the built-in key password)")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")

	cmd.AddCommand(
		newKeyCmd(opts),
		newCACmd(opts),
		newIssueCmd(opts),
		newSelfSignCmd(opts),
		newFingerprintCmd(opts),
		newVerifyCmd(opts),
		newIndexCmd(opts),
		newServerCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load binds the executing command's flags into viper, reads the optional
// config file and builds the logger.
func (o *rootOptions) load(cmd *cobra.Command) error {
	o.v.SetEnvPrefix("IRONCA")
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()
	if err := o.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	if path := o.v.GetString("config"); path != "" {
		o.v.SetConfigFile(path)
		if err := o.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(o.v.GetString("log-level"))); err != nil {
		return fmt.Errorf("invalid log level %q", o.v.GetString("log-level"))
	}
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
