package pki

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"strings"
)

// DefaultCommonName is the subject common name of an authority created
// without an explicit name.
const DefaultCommonName = "CA"

var (
	oidCountry            = asn1.ObjectIdentifier{2, 5, 4, 6}
	oidProvince           = asn1.ObjectIdentifier{2, 5, 4, 8}
	oidLocality           = asn1.ObjectIdentifier{2, 5, 4, 7}
	oidOrganization       = asn1.ObjectIdentifier{2, 5, 4, 10}
	oidOrganizationalUnit = asn1.ObjectIdentifier{2, 5, 4, 11}
	oidCommonName         = asn1.ObjectIdentifier{2, 5, 4, 3}
	oidEmailAddress       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}
)

// Name is a Distinguished Name. Empty fields are omitted when rendered and
// encoded.
type Name struct {
	Country      string `json:"country,omitempty"`
	State        string `json:"state,omitempty"`
	City         string `json:"city,omitempty"`
	Organization string `json:"organization,omitempty"`
	Department   string `json:"department,omitempty"`
	CommonName   string `json:"common_name,omitempty"`
	Email        string `json:"email,omitempty"`
}

type nameAttr struct {
	label string
	oid   asn1.ObjectIdentifier
	value string
}

// attrs lists the populated fields in canonical order.
func (n Name) attrs() []nameAttr {
	all := []nameAttr{
		{"C", oidCountry, n.Country},
		{"ST", oidProvince, n.State},
		{"L", oidLocality, n.City},
		{"O", oidOrganization, n.Organization},
		{"OU", oidOrganizationalUnit, n.Department},
		{"CN", oidCommonName, n.CommonName},
		{"emailAddress", oidEmailAddress, n.Email},
	}
	out := all[:0]
	for _, a := range all {
		if a.value != "" {
			out = append(out, a)
		}
	}
	return out
}

// String renders the name as /C=../ST=../L=../O=../OU=../CN=../emailAddress=..
// with only the populated fields, in that order.
func (n Name) String() string {
	var sb strings.Builder
	for _, a := range n.attrs() {
		sb.WriteByte('/')
		sb.WriteString(a.label)
		sb.WriteByte('=')
		sb.WriteString(a.value)
	}
	return sb.String()
}

// Equal compares rendered forms.
func (n Name) Equal(other Name) bool {
	return n.String() == other.String()
}

// IsEmpty reports whether no field is populated.
func (n Name) IsEmpty() bool {
	return len(n.attrs()) == 0
}

// ToPKIX converts n for use in an x509 template. Attributes are carried in
// ExtraNames so the encoded RDN sequence follows the canonical order.
func (n Name) ToPKIX() pkix.Name {
	var pn pkix.Name
	for _, a := range n.attrs() {
		pn.ExtraNames = append(pn.ExtraNames, pkix.AttributeTypeAndValue{Type: a.oid, Value: a.value})
	}
	pn.CommonName = n.CommonName
	if n.Country != "" {
		pn.Country = []string{n.Country}
	}
	if n.State != "" {
		pn.Province = []string{n.State}
	}
	if n.City != "" {
		pn.Locality = []string{n.City}
	}
	if n.Organization != "" {
		pn.Organization = []string{n.Organization}
	}
	if n.Department != "" {
		pn.OrganizationalUnit = []string{n.Department}
	}
	return pn
}

// NameFromPKIX extracts the recognised attributes of a parsed certificate
// subject or issuer. When an attribute repeats, the first value wins.
func NameFromPKIX(pn pkix.Name) Name {
	var n Name
	set := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	for _, atv := range pn.Names {
		v, ok := atv.Value.(string)
		if !ok {
			continue
		}
		switch {
		case atv.Type.Equal(oidCountry):
			set(&n.Country, v)
		case atv.Type.Equal(oidProvince):
			set(&n.State, v)
		case atv.Type.Equal(oidLocality):
			set(&n.City, v)
		case atv.Type.Equal(oidOrganization):
			set(&n.Organization, v)
		case atv.Type.Equal(oidOrganizationalUnit):
			set(&n.Department, v)
		case atv.Type.Equal(oidCommonName):
			set(&n.CommonName, v)
		case atv.Type.Equal(oidEmailAddress):
			set(&n.Email, v)
		}
	}
	return n
}
