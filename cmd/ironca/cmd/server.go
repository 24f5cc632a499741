package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/ironca/api"
	"github.com/jmcleod/ironca/pki"
)

const (
	sweepInterval      = 5 * time.Minute
	servingCertDays    = 30
	defaultServingName = "localhost"
)

func newServerCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the CA over HTTPS",
		Long: `Serves the HTTP API under /api/v1 for the CA in --ca-dir. Issued
certificates are recorded in index.db. Without --tls-cert and --tls-key the
CA issues its own short-lived serving certificate at startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.String("addr", ":8443", "Address to listen on")
	f.String("tls-cert", "", "Path to TLS certificate file")
	f.String("tls-key", "", "Path to TLS key file")
	f.StringSlice("tls-san", []string{defaultServingName}, "DNS names for the CA-issued serving certificate")
	f.Bool("plain-http", false, "Serve plain HTTP (behind a TLS-terminating proxy)")
	f.String("token", "", "Bearer token required by the API (open when empty)")
	f.StringSlice("trusted-proxies", nil, "CIDR ranges whose X-Forwarded-For is trusted")
	return cmd
}

func runServer(cmd *cobra.Command, opts *rootOptions) error {
	v := opts.v
	logger := opts.logger

	idx, err := openIndex(opts.caDir(), false)
	if err != nil {
		return fmt.Errorf("failed to open certificate index: %w", err)
	}
	defer idx.Close()

	ca, err := pki.LoadAuthority(opts.caDir(), opts.password(),
		pki.WithLogger(logger),
		pki.WithIndex(idx),
	)
	if err != nil {
		return err
	}

	proxies, err := api.ParseTrustedProxies(v.GetStringSlice("trusted-proxies"))
	if err != nil {
		return err
	}
	a, err := api.New(ca,
		api.WithLogger(logger),
		api.WithToken(v.GetString("token")),
		api.WithTrustedProxies(proxies),
		api.WithAlertFunc(func(e api.AlertEvent) {
			logger.Warn("alert", "type", e.Type, "count", e.Count, "threshold", e.Threshold, "message", e.Message)
		}),
	)
	if err != nil {
		return err
	}
	if v.GetString("token") == "" {
		logger.Warn("no API token configured; issuance is open to every client")
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/api/v1", a.Router())

	server := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	plain := v.GetBool("plain-http")
	if !plain {
		tlsConfig, err := serverTLSConfig(opts, ca)
		if err != nil {
			return err
		}
		server.TLSConfig = tlsConfig
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go sweepLoop(ctx, a)

	done := make(chan error, 1)
	go func() {
		var err error
		if plain {
			err = server.ListenAndServe()
		} else {
			err = server.ListenAndServeTLS("", "")
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("server failed: %w", err)
			return
		}
		done <- nil
	}()

	printBanner(cmd.OutOrStdout())
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s (ca: %s)...\n", ca.Subject(), server.Addr, ca.Dir())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-done:
		return err
	}
}

// serverTLSConfig loads --tls-cert/--tls-key, or has the CA issue a serving
// certificate for --tls-san. The issued certificate consumes a serial and is
// recorded in the index like any other.
func serverTLSConfig(opts *rootOptions, ca *pki.Authority) (*tls.Config, error) {
	v := opts.v
	certFile, keyFile := v.GetString("tls-cert"), v.GetString("tls-key")
	if certFile != "" && keyFile != "" {
		pair, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{pair}, MinVersion: tls.VersionTLS12}, nil
	}

	pair, err := issueServingCertificate(ca, v.GetStringSlice("tls-san"))
	if err != nil {
		return nil, fmt.Errorf("failed to issue serving certificate: %w", err)
	}
	opts.logger.Info("using CA-issued serving certificate",
		slog.String("subject", pair.Leaf.Subject.String()),
		slog.Time("not_after", pair.Leaf.NotAfter))
	return &tls.Config{Certificates: []tls.Certificate{pair}, MinVersion: tls.VersionTLS12}, nil
}

func issueServingCertificate(ca *pki.Authority, sans []string) (tls.Certificate, error) {
	cn := defaultServingName
	if len(sans) > 0 {
		cn = sans[0]
	}
	key, err := pki.GenerateKey(pki.DefaultKeyBits)
	if err != nil {
		return tls.Certificate{}, err
	}
	cert, err := ca.CreateCertificate(pki.NewSigningRequest(pki.Name{CommonName: cn}, key, sans...), pki.CertificateOptions{
		Type:         pki.CertTypeServer,
		ValidityDays: servingCertDays,
	})
	if err != nil {
		return tls.Certificate{}, err
	}
	leaf, err := cert.X509()
	if err != nil {
		return tls.Certificate{}, err
	}
	root, err := ca.Certificate().X509()
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: [][]byte{leaf.Raw, root.Raw},
		PrivateKey:  key.Signer(),
		Leaf:        leaf,
	}, nil
}

func sweepLoop(ctx context.Context, a *api.API) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.SweepRateLimits()
		}
	}
}
