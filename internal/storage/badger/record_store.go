// Package badger implements the record store on an embedded Badger database.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/storage"
)

// Key prefixes.
var (
	prefixHeight       = []byte("h/")  // h/<module>/<height be64> -> observation
	prefixLatestHeight = []byte("hl/") // hl/<module> -> latest observation
	prefixSigned       = []byte("s/")  // s/<hash> -> signed record
)

// maxConflictRetries bounds retries of a write transaction that lost a race.
const maxConflictRetries = 5

// RecordStore implements storage.RecordStore using Badger.
type RecordStore struct {
	db *badger.DB
}

// Open opens (or creates) a Badger database at path. An empty path opens
// an in-memory database.
func Open(path string) (*RecordStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Disable badger's built-in logging.

	db, err := badger.Open(opts)
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "Cannot acquire directory lock") ||
			strings.Contains(errMsg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("database at %s is locked by another process (is another cosigner running?): %w", path, err)
		}
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	return &RecordStore{db: db}, nil
}

// Compile-time interface check.
var _ storage.RecordStore = (*RecordStore)(nil)

func heightKey(module string, height int64) []byte {
	key := make([]byte, 0, len(prefixHeight)+len(module)+1+8)
	key = append(key, prefixHeight...)
	key = append(key, module...)
	key = append(key, '/')
	return binary.BigEndian.AppendUint64(key, uint64(height))
}

func latestHeightKey(module string) []byte {
	return append(append([]byte{}, prefixLatestHeight...), module...)
}

func signedKey(hash string) []byte {
	return append(append([]byte{}, prefixSigned...), hash...)
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *RecordStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// UpsertHeight inserts obs unless (module, height) already exists.
func (s *RecordStore) UpsertHeight(_ context.Context, obs *domain.HeightObservation) (bool, error) {
	if obs == nil || obs.Module == "" {
		return false, storage.ErrInvalidInput
	}

	value, err := json.Marshal(obs)
	if err != nil {
		return false, fmt.Errorf("encode height: %w", err)
	}

	var inserted bool
	err = s.update(func(txn *badger.Txn) error {
		inserted = false
		key := heightKey(obs.Module, obs.Height)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, value); err != nil {
			return err
		}

		latest, err := getJSON[domain.HeightObservation](txn, latestHeightKey(obs.Module))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if latest == nil || obs.ObservedAt > latest.ObservedAt ||
			(obs.ObservedAt == latest.ObservedAt && obs.Height > latest.Height) {
			if err := txn.Set(latestHeightKey(obs.Module), value); err != nil {
				return err
			}
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("badger upsert height: %w", err)
	}
	return inserted, nil
}

// LatestHeight returns the most recently observed row for module.
func (s *RecordStore) LatestHeight(_ context.Context, module string) (*domain.HeightObservation, error) {
	var obs *domain.HeightObservation
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		obs, err = getJSON[domain.HeightObservation](txn, latestHeightKey(module))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger latest height: %w", err)
	}
	return obs, nil
}

// GetSigned retrieves a record by transaction hash.
func (s *RecordStore) GetSigned(_ context.Context, transactionHash string) (*domain.SignedTransactionRecord, error) {
	var r *domain.SignedTransactionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		r, err = getJSON[domain.SignedTransactionRecord](txn, signedKey(transactionHash))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get signed: %w", err)
	}
	return r, nil
}

// InsertSigned adds a new record. Returns ErrDuplicateKey if transaction_hash exists.
func (s *RecordStore) InsertSigned(_ context.Context, r *domain.SignedTransactionRecord) error {
	if r == nil || r.TransactionHash == "" {
		return storage.ErrInvalidInput
	}

	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode signed record: %w", err)
	}

	err = s.update(func(txn *badger.Txn) error {
		key := signedKey(r.TransactionHash)
		if _, err := txn.Get(key); err == nil {
			return storage.ErrDuplicateKey
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, value)
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("badger insert signed: %w", err)
	}
	return nil
}

// SumSignedAmount sums amount_xem over records signed at or after since.
func (s *RecordStore) SumSignedAmount(_ context.Context, since int64) (float64, error) {
	var total float64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixSigned
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefixSigned); it.ValidForPrefix(prefixSigned); it.Next() {
			var r domain.SignedTransactionRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				return err
			}
			if since > 0 && r.SignedAt < since {
				continue
			}
			total += r.AmountXEM
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger sum signed: %w", err)
	}
	return total, nil
}

// Close closes the database.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

func getJSON[T any](txn *badger.Txn, key []byte) (*T, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	var v T
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}
