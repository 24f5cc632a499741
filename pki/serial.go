package pki

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
)

var errSerialExhausted = fmt.Errorf("%w: serial counter exhausted", ErrInvalidState)

// Serial is the authority's certificate serial counter, persisted as an
// uppercase hexadecimal text file of at least four digits (e.g. "000B",
// "1A2B3").
//
// The file is read, incremented and rewritten without locking. Two
// processes consuming from the same file concurrently can hand out the same
// value; a single writer per file is assumed.
type Serial struct {
	path  string
	value uint64
}

// NewSerial returns an unpersisted counter starting at 1.
func NewSerial() *Serial {
	return &Serial{value: 1}
}

// LoadSerial reads the counter stored at path. A missing file yields a
// counter at 1; the file is created by the first call to Next.
func LoadSerial(path string) (*Serial, error) {
	s := &Serial{path: path, value: 1}
	v, ok, err := readSerialFile(path)
	if err != nil {
		return nil, err
	}
	if ok {
		s.value = v
	}
	return s, nil
}

// Peek returns the value the next call to Next will hand out.
func (s *Serial) Peek() uint64 {
	return s.value
}

// Path returns the backing file, or "" for an unpersisted counter.
func (s *Serial) Path() string {
	return s.path
}

// Next consumes the current value. For a persisted counter the file is
// re-read first so that values written by another writer are honoured,
// and the incremented value is durably stored before Next returns. Once the
// counter holds the largest uint64, Next fails and leaves it unchanged.
func (s *Serial) Next() (uint64, error) {
	cur := s.value
	if s.path != "" {
		v, ok, err := readSerialFile(s.path)
		if err != nil {
			return 0, err
		}
		if ok {
			cur = v
		}
	}
	if cur == math.MaxUint64 {
		return 0, errSerialExhausted
	}
	if s.path != "" {
		if err := writeFileAtomic(s.path, []byte(formatSerial(cur+1)), 0o600); err != nil {
			return 0, fmt.Errorf("storing serial: %w", err)
		}
	}
	s.value = cur + 1
	return cur, nil
}

// bind attaches the counter to path and stores the current value there.
// Binding to the path already in use leaves the file untouched.
func (s *Serial) bind(path string) error {
	if path == s.path {
		return nil
	}
	if err := writeFileAtomic(path, []byte(formatSerial(s.value)), 0o600); err != nil {
		return fmt.Errorf("storing serial: %w", err)
	}
	s.path = path
	return nil
}

func formatSerial(v uint64) string {
	return fmt.Sprintf("%04X", v)
}

func parseSerial(text string) (uint64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("%w: empty serial", ErrInvalidFormat)
	}
	v, err := strconv.ParseUint(text, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: serial %q: %v", ErrInvalidFormat, text, err)
	}
	return v, nil
}

func readSerialFile(path string) (uint64, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("reading serial %s: %w", path, err)
	}
	v, err := parseSerial(string(data))
	if err != nil {
		return 0, false, fmt.Errorf("serial %s: %w", path, err)
	}
	return v, true, nil
}
