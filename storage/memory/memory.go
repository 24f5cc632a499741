// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"fmt"
	"slices"
	"sync"

	"github.com/jmcleod/ironca/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu   sync.RWMutex
	data map[string]*storage.Record
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]*storage.Record)}
}

func (r *Repository) Put(rec *storage.Record) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}
	key := storage.NormalizeSerial(rec.Serial)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[key]; ok {
		return fmt.Errorf("serial %s: %w", key, storage.ErrExists)
	}
	cp := rec.Clone()
	cp.Serial = key
	r.data[key] = cp
	return nil
}

func (r *Repository) Get(serial string) (*storage.Record, error) {
	key := storage.NormalizeSerial(serial)

	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[key]
	if !ok {
		return nil, fmt.Errorf("serial %s: %w", key, storage.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (r *Repository) List() ([]*storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*storage.Record, 0, len(r.data))
	for _, rec := range r.data {
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(a, b *storage.Record) int {
		switch {
		case storage.SerialLess(a.Serial, b.Serial):
			return -1
		case storage.SerialLess(b.Serial, a.Serial):
			return 1
		default:
			return 0
		}
	})
	return out, nil
}
