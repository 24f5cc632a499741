// Package api exposes a certificate authority over HTTP.
package api

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/ironca/pki"
	"github.com/jmcleod/ironca/storage"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	ca    *pki.Authority
	index storage.Repository

	// issueMu serializes issuance. The Authority itself is not safe for
	// concurrent use.
	issueMu sync.Mutex

	audit          *auditLogger
	token          *tokenVerifier
	authLimiter    *authRateLimiter
	trustedProxies []netip.Prefix
	keyBits        int

	// Collected by options and resolved in New.
	rawToken string
	alertFn  AlertFunc
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithToken requires "Authorization: Bearer <token>" on every route except
// /health, /ca.pem and the documentation. Only a keyed digest of the token
// is kept.
func WithToken(token string) Option {
	return func(a *API) {
		a.rawToken = token
	}
}

// WithKeyBits sets the size of keys generated for issued certificates.
func WithKeyBits(bits int) Option {
	return func(a *API) {
		a.keyBits = bits
	}
}

// WithTrustedProxies lists the CIDR ranges whose forwarding headers are
// believed when attributing authentication failures to a client IP.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithAlertFunc registers a callback for issuance and authentication
// failure spikes.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// New creates a new API serving ca. Issued certificates are listed from the
// authority's index when one is configured.
func New(ca *pki.Authority, opts ...Option) (*API, error) {
	a := &API{
		ca:          ca,
		index:       ca.Index(),
		authLimiter: newAuthRateLimiter(),
		keyBits:     pki.DefaultKeyBits,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	if a.alertFn != nil {
		a.audit.metrics = newMetricsCollector(a.alertFn)
	}
	if a.rawToken != "" {
		v, err := newTokenVerifier(a.rawToken)
		a.rawToken = ""
		if err != nil {
			return nil, fmt.Errorf("configuring bearer token: %w", err)
		}
		a.token = v
	}
	return a, nil
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(securityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
		Title:   "IronCA API",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
		Title:   "IronCA API",
	}, nil))

	r.Get("/health", a.Health)
	r.Get("/ca.pem", a.GetCACertificatePEM)

	r.Group(func(r chi.Router) {
		r.Use(a.TokenMiddleware)
		r.Get("/ca", a.GetCAInfo)
		r.Post("/certificates", a.IssueCertificate)
		r.Get("/certificates", a.ListCertificates)
		r.Get("/certificates/{serial}", a.GetCertificate)
	})

	return r
}
