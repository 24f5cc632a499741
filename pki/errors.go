package pki

import "errors"

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// ErrNotFound is returned when a key, certificate or CA file does not
	// exist on the backing store.
	ErrNotFound = errors.New("not found")

	// ErrInvalidFormat is returned when content exists but does not parse as
	// the expected PEM/DER structure.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrDecrypt is returned when a password does not decrypt an encrypted
	// private key.
	ErrDecrypt = errors.New("unable to decrypt private key")

	// ErrInvalidState is returned when an operation is invoked on a
	// certificate in the wrong lifecycle state, such as signing twice.
	ErrInvalidState = errors.New("invalid certificate state")

	// ErrInvalidRequest is returned when issuance parameters are rejected
	// before any state is touched (empty subject, negative validity, unknown
	// certificate type).
	ErrInvalidRequest = errors.New("invalid request")
)

// Kind classifies an error returned by this package.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindFormat
	KindDecrypt
	KindInvalidState
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindFormat:
		return "format"
	case KindDecrypt:
		return "decrypt"
	case KindInvalidState:
		return "invalid-state"
	case KindInvalidRequest:
		return "invalid-request"
	default:
		return "unknown"
	}
}

// ErrorKind reports which sentinel err wraps, so callers can switch on the
// failure class instead of chaining errors.Is checks.
func ErrorKind(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDecrypt):
		return KindDecrypt
	case errors.Is(err, ErrInvalidFormat):
		return KindFormat
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}
