// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmcleod/ironca/storage"
	"go.etcd.io/bbolt"
)

var bucketCertificates = []byte("certificates")

// keyWidth covers the 20-octet maximum of an X.509 serial.
const keyWidth = 40

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// recordKey zero-pads the serial so the cursor walks records in numeric
// order.
func recordKey(serial string) []byte {
	if len(serial) >= keyWidth {
		return []byte(serial)
	}
	return []byte(strings.Repeat("0", keyWidth-len(serial)) + serial)
}

func (s *Store) Put(rec *storage.Record) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}
	cp := rec.Clone()
	cp.Serial = storage.NormalizeSerial(rec.Serial)
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketCertificates)
		if err != nil {
			return err
		}
		key := recordKey(cp.Serial)
		if b.Get(key) != nil {
			return fmt.Errorf("serial %s: %w", cp.Serial, storage.ErrExists)
		}
		data, err := json.Marshal(cp)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func (s *Store) Get(serial string) (*storage.Record, error) {
	serial = storage.NormalizeSerial(serial)
	var rec storage.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCertificates)
		if b == nil {
			return fmt.Errorf("serial %s: %w", serial, storage.ErrNotFound)
		}
		data := b.Get(recordKey(serial))
		if data == nil {
			return fmt.Errorf("serial %s: %w", serial, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) List() ([]*storage.Record, error) {
	var out []*storage.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCertificates)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec storage.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding record %s: %w", k, err)
			}
			out = append(out, &rec)
			return nil
		})
	})
	return out, err
}
