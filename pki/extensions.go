package pki

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"strings"

	"github.com/jmcleod/ironca/internal/util"
)

// Extension names, as OpenSSL abbreviates them.
const (
	ExtBasicConstraints       = "basicConstraints"
	ExtKeyUsage               = "keyUsage"
	ExtExtendedKeyUsage       = "extendedKeyUsage"
	ExtSubjectAltName         = "subjectAltName"
	ExtSubjectKeyIdentifier   = "subjectKeyIdentifier"
	ExtAuthorityKeyIdentifier = "authorityKeyIdentifier"
)

var extensionOIDs = map[string]asn1.ObjectIdentifier{
	ExtBasicConstraints:       {2, 5, 29, 19},
	ExtKeyUsage:               {2, 5, 29, 15},
	ExtExtendedKeyUsage:       {2, 5, 29, 37},
	ExtSubjectAltName:         {2, 5, 29, 17},
	ExtSubjectKeyIdentifier:   {2, 5, 29, 14},
	ExtAuthorityKeyIdentifier: {2, 5, 29, 35},
}

// canonicalExtensionOrder is used for certificates that have not been
// encoded yet.
var canonicalExtensionOrder = []string{
	ExtBasicConstraints,
	ExtKeyUsage,
	ExtExtendedKeyUsage,
	ExtSubjectAltName,
	ExtSubjectKeyIdentifier,
	ExtAuthorityKeyIdentifier,
}

// Extension is a rendered X.509v3 extension.
type Extension struct {
	Name     string `json:"name"`
	Critical bool   `json:"critical"`
	Value    string `json:"value"`
}

var extKeyUsageNames = map[x509.ExtKeyUsage]string{
	x509.ExtKeyUsageAny:             "Any Extended Key Usage",
	x509.ExtKeyUsageServerAuth:      "TLS Web Server Authentication",
	x509.ExtKeyUsageClientAuth:      "TLS Web Client Authentication",
	x509.ExtKeyUsageCodeSigning:     "Code Signing",
	x509.ExtKeyUsageEmailProtection: "E-mail Protection",
	x509.ExtKeyUsageIPSECEndSystem:  "IPSec End System",
	x509.ExtKeyUsageIPSECTunnel:     "IPSec Tunnel",
	x509.ExtKeyUsageIPSECUser:       "IPSec User",
	x509.ExtKeyUsageTimeStamping:    "Time Stamping",
	x509.ExtKeyUsageOCSPSigning:     "OCSP Signing",
}

var keyUsageNames = []struct {
	bit  x509.KeyUsage
	name string
}{
	{x509.KeyUsageDigitalSignature, "Digital Signature"},
	{x509.KeyUsageContentCommitment, "Non Repudiation"},
	{x509.KeyUsageKeyEncipherment, "Key Encipherment"},
	{x509.KeyUsageDataEncipherment, "Data Encipherment"},
	{x509.KeyUsageKeyAgreement, "Key Agreement"},
	{x509.KeyUsageCertSign, "Certificate Sign"},
	{x509.KeyUsageCRLSign, "CRL Sign"},
	{x509.KeyUsageEncipherOnly, "Encipher Only"},
	{x509.KeyUsageDecipherOnly, "Decipher Only"},
}

// renderExtensions works on both templates and parsed certificates. Parsed
// certificates keep their encoded extension order and criticality.
func renderExtensions(c *x509.Certificate) []Extension {
	values := make(map[string]string, len(canonicalExtensionOrder))

	if c.BasicConstraintsValid {
		v := "CA:FALSE"
		if c.IsCA {
			v = "CA:TRUE"
			if c.MaxPathLen > 0 || c.MaxPathLenZero {
				v += fmt.Sprintf(", pathlen:%d", c.MaxPathLen)
			}
		}
		values[ExtBasicConstraints] = v
	}
	if c.KeyUsage != 0 {
		var parts []string
		for _, ku := range keyUsageNames {
			if c.KeyUsage&ku.bit != 0 {
				parts = append(parts, ku.name)
			}
		}
		values[ExtKeyUsage] = strings.Join(parts, ", ")
	}
	if len(c.ExtKeyUsage) > 0 || len(c.UnknownExtKeyUsage) > 0 {
		var parts []string
		for _, eku := range c.ExtKeyUsage {
			name, ok := extKeyUsageNames[eku]
			if !ok {
				name = fmt.Sprintf("ExtKeyUsage(%d)", eku)
			}
			parts = append(parts, name)
		}
		for _, oid := range c.UnknownExtKeyUsage {
			parts = append(parts, oid.String())
		}
		values[ExtExtendedKeyUsage] = strings.Join(parts, ", ")
	}
	if san := renderSubjectAltName(c); san != "" {
		values[ExtSubjectAltName] = san
	}
	if len(c.SubjectKeyId) > 0 {
		values[ExtSubjectKeyIdentifier] = util.ColonHex(c.SubjectKeyId)
	}
	if len(c.AuthorityKeyId) > 0 {
		values[ExtAuthorityKeyIdentifier] = util.ColonHex(c.AuthorityKeyId)
	}

	if len(c.Extensions) > 0 {
		var out []Extension
		for _, raw := range c.Extensions {
			name := extensionName(raw.Id)
			v, ok := values[name]
			if !ok {
				continue
			}
			out = append(out, Extension{Name: name, Critical: raw.Critical, Value: v})
		}
		return out
	}

	var out []Extension
	for _, name := range canonicalExtensionOrder {
		v, ok := values[name]
		if !ok {
			continue
		}
		// crypto/x509 always marks these two critical when encoding.
		critical := name == ExtBasicConstraints || name == ExtKeyUsage
		out = append(out, Extension{Name: name, Critical: critical, Value: v})
	}
	return out
}

func renderSubjectAltName(c *x509.Certificate) string {
	var parts []string
	for _, d := range c.DNSNames {
		parts = append(parts, "DNS:"+d)
	}
	for _, e := range c.EmailAddresses {
		parts = append(parts, "email:"+e)
	}
	for _, ip := range c.IPAddresses {
		parts = append(parts, "IP Address:"+ip.String())
	}
	for _, u := range c.URIs {
		parts = append(parts, "URI:"+u.String())
	}
	return strings.Join(parts, ", ")
}

func extensionName(oid asn1.ObjectIdentifier) string {
	for name, known := range extensionOIDs {
		if oid.Equal(known) {
			return name
		}
	}
	return ""
}
