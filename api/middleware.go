package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmcleod/ironca/internal/util"
)

const tokenKeyLen = 32

// tokenVerifier checks bearer tokens against a keyed BLAKE2b digest so the
// configured token never stays in memory in plaintext. The MAC key is
// random per process and each check costs one hash.
type tokenVerifier struct {
	key    []byte
	digest []byte
}

func newTokenVerifier(token string) (*tokenVerifier, error) {
	key, err := util.RandomBytes(tokenKeyLen)
	if err != nil {
		return nil, err
	}
	digest, err := util.KeyedHash(key, token)
	if err != nil {
		return nil, err
	}
	return &tokenVerifier{key: key, digest: digest}, nil
}

func (v *tokenVerifier) verify(candidate string) bool {
	ok, err := util.CompareKeyedHash(v.key, candidate, v.digest)
	return err == nil && ok
}

// TokenMiddleware enforces the bearer token configured with WithToken.
// Without a token every request passes. Repeated failures from one client
// IP are locked out with exponential backoff.
func (a *API) TokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.token == nil {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := a.extractClientIP(r)
		if blocked, retryAfter := a.authLimiter.check(clientIP); blocked {
			a.audit.logFailure(AuditAuthRateLimited, r, "too many failures",
				slog.String("client_ip", clientIP))
			writeRateLimited(w, retryAfter)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			a.authLimiter.recordFailure(clientIP)
			a.audit.logFailure(AuditAuthFailure, r, "missing bearer token",
				slog.String("client_ip", clientIP))
			w.Header().Set("WWW-Authenticate", `Bearer realm="ironca"`)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !a.token.verify(token) {
			a.authLimiter.recordFailure(clientIP)
			a.audit.logFailure(AuditAuthFailure, r, "invalid bearer token",
				slog.String("client_ip", clientIP))
			w.Header().Set("WWW-Authenticate", `Bearer realm="ironca", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		a.authLimiter.recordSuccess(clientIP)
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// securityHeaders sets response headers suited to a JSON/PEM API. Responses
// may carry private keys, so nothing is cached.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		if requestIsSecure(r) {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
