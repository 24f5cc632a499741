package pki_test

import (
	"testing"

	"github.com/jmcleod/ironca/pki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameString(t *testing.T) {
	tests := []struct {
		name string
		in   pki.Name
		want string
	}{
		{"full", fullName(), "/C=GB/ST=London/L=London/O=Venda Ltd/OU=Development/CN=foo.bar.com/emailAddress=dev@venda.com"},
		{"common name only", pki.Name{CommonName: "CA"}, "/CN=CA"},
		{"gaps omitted", pki.Name{Country: "US", Organization: "Venda", Email: "a@b.c"}, "/C=US/O=Venda/emailAddress=a@b.c"},
		{"empty", pki.Name{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.String())
		})
	}
}

func TestNameEqual(t *testing.T) {
	assert.True(t, fullName().Equal(fullName()))
	assert.False(t, fullName().Equal(pki.Name{CommonName: "foo.bar.com"}))
	assert.True(t, pki.Name{}.IsEmpty())
	assert.False(t, pki.Name{City: "London"}.IsEmpty())
}

func TestNamePKIXRoundTrip(t *testing.T) {
	in := fullName()
	pn := in.ToPKIX()

	require.Len(t, pn.ExtraNames, 7)
	assert.Equal(t, "foo.bar.com", pn.CommonName)
	assert.Equal(t, []string{"Venda Ltd"}, pn.Organization)

	// NameFromPKIX reads Names, which is what a parsed certificate carries.
	pn.Names = pn.ExtraNames
	assert.Equal(t, in, pki.NameFromPKIX(pn))
}
