package pki_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jmcleod/ironca/pki"
	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want pki.Kind
	}{
		{nil, pki.KindUnknown},
		{errors.New("boom"), pki.KindUnknown},
		{fmt.Errorf("key x: %w", pki.ErrNotFound), pki.KindNotFound},
		{fmt.Errorf("wrapped twice: %w", fmt.Errorf("inner: %w", pki.ErrInvalidFormat)), pki.KindFormat},
		{pki.ErrDecrypt, pki.KindDecrypt},
		{pki.ErrInvalidState, pki.KindInvalidState},
		{pki.ErrInvalidRequest, pki.KindInvalidRequest},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pki.ErrorKind(tt.err), "%v", tt.err)
	}

	assert.Equal(t, "not-found", pki.KindNotFound.String())
	assert.Equal(t, "unknown", pki.KindUnknown.String())
}
