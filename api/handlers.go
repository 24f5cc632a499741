package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/ironca/pki"
	"github.com/jmcleod/ironca/storage"
)

// Health handles GET /health.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// GetCACertificatePEM handles GET /ca.pem.
func (a *API) GetCACertificatePEM(w http.ResponseWriter, r *http.Request) {
	data, err := a.ca.Certificate().EncodePEM()
	if err != nil {
		mapError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GetCAInfo handles GET /ca.
func (a *API) GetCAInfo(w http.ResponseWriter, r *http.Request) {
	root := a.ca.Certificate()
	fp, err := root.Fingerprint()
	if err != nil {
		mapError(w, err)
		return
	}

	a.issueMu.Lock()
	next := a.ca.Serial().Peek()
	a.issueMu.Unlock()

	writeJSON(w, http.StatusOK, CAInfoResponse{
		Subject:      root.Subject().String(),
		SerialNumber: serialHex(root),
		Fingerprint:  fp,
		NotBefore:    root.NotBefore(),
		NotAfter:     root.NotAfter(),
		KeyBits:      a.ca.Key().Length(),
		NextSerial:   strings.ToUpper(strconv.FormatUint(next, 16)),
		Extensions:   root.Extensions(),
		IndexEnabled: a.index != nil,
	})
}

// IssueCertificate handles POST /certificates.
// Generates a key pair, issues a certificate for it and returns both; the
// private key is encrypted with the requested password.
func (a *API) IssueCertificate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[IssueCertificateRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}

	// Reject bad input before paying for key generation.
	certType, err := pki.ParseCertType(req.Type)
	if err != nil {
		mapError(w, err)
		return
	}
	if req.Subject.IsEmpty() {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}
	if req.ValidityDays < 0 {
		writeError(w, http.StatusBadRequest, "validity_days must not be negative")
		return
	}

	key, err := pki.GenerateKey(a.keyBits)
	if err != nil {
		mapError(w, err)
		return
	}
	csr := pki.NewSigningRequest(req.Subject, key)
	opts := pki.CertificateOptions{
		Type:            certType,
		ValidityDays:    req.ValidityDays,
		SubjectAltNames: req.SubjectAltNames,
	}

	a.issueMu.Lock()
	cert, err := a.ca.CreateCertificate(csr, opts)
	a.issueMu.Unlock()
	if err != nil {
		a.audit.logFailure(AuditCertIssueFailed, r, err.Error(),
			slog.String("subject", req.Subject.String()))
		mapError(w, err)
		return
	}

	certPEM, err := cert.EncodePEM()
	if err != nil {
		mapError(w, err)
		return
	}
	keyPEM, err := key.EncodePEM(req.KeyPassword)
	if err != nil {
		mapError(w, err)
		return
	}
	summary, err := summarize(cert)
	if err != nil {
		mapError(w, err)
		return
	}

	a.audit.log(AuditCertIssued, r,
		slog.String("serial", summary.SerialNumber),
		slog.String("subject", summary.Subject),
		slog.String("type", summary.Type))
	a.audit.log(AuditPrivateKeyIssued, r,
		slog.String("serial", summary.SerialNumber))
	writeJSON(w, http.StatusCreated, IssueCertificateResponse{
		Certificate:    summary,
		CertificatePEM: string(certPEM),
		PrivateKeyPEM:  string(keyPEM),
	})
}

// ListCertificates handles GET /certificates.
func (a *API) ListCertificates(w http.ResponseWriter, r *http.Request) {
	if a.index == nil {
		writeError(w, http.StatusNotImplemented, "certificate index is not enabled")
		return
	}
	records, err := a.index.List()
	if err != nil {
		mapError(w, err)
		return
	}

	limit, offset := parsePagination(r)
	page, meta := paginate(records, limit, offset)
	resp := ListCertificatesResponse{
		Certificates:   make([]CertificateSummary, 0, len(page)),
		PaginationMeta: meta,
	}
	for _, rec := range page {
		resp.Certificates = append(resp.Certificates, recordSummary(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCertificate handles GET /certificates/{serial}.
func (a *API) GetCertificate(w http.ResponseWriter, r *http.Request) {
	if a.index == nil {
		writeError(w, http.StatusNotImplemented, "certificate index is not enabled")
		return
	}
	rec, err := a.index.Get(chi.URLParam(r, "serial"))
	if err != nil {
		mapError(w, err)
		return
	}

	summary := recordSummary(rec)
	if cert, err := pki.ParseCertificate([]byte(rec.CertificatePEM)); err == nil {
		summary.Extensions = cert.Extensions()
	} else {
		slog.Debug("get certificate: stored PEM did not parse", "serial", rec.Serial, "error", err)
	}
	writeJSON(w, http.StatusOK, GetCertificateResponse{
		Certificate:    summary,
		CertificatePEM: rec.CertificatePEM,
		IssuedAt:       rec.IssuedAt,
	})
}

func summarize(cert *pki.Certificate) (CertificateSummary, error) {
	fp, err := cert.Fingerprint()
	if err != nil {
		return CertificateSummary{}, err
	}
	return CertificateSummary{
		SerialNumber: serialHex(cert),
		Subject:      cert.Subject().String(),
		Issuer:       cert.Issuer().String(),
		Type:         string(cert.Type()),
		NotBefore:    cert.NotBefore(),
		NotAfter:     cert.NotAfter(),
		Fingerprint:  fp,
		Extensions:   cert.Extensions(),
	}, nil
}

func recordSummary(rec *storage.Record) CertificateSummary {
	return CertificateSummary{
		SerialNumber: rec.Serial,
		Subject:      rec.Subject,
		Issuer:       rec.Issuer,
		Type:         rec.Type,
		NotBefore:    rec.NotBefore,
		NotAfter:     rec.NotAfter,
		Fingerprint:  rec.Fingerprint,
	}
}

func serialHex(cert *pki.Certificate) string {
	return strings.ToUpper(cert.SerialNumber().Text(16))
}
