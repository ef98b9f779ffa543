package memory

import (
	"context"
	"sync"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/storage"
)

type heightKey struct {
	module string
	height int64
}

// RecordStore is an in-memory implementation of storage.RecordStore.
type RecordStore struct {
	mu      sync.RWMutex
	heights map[heightKey]*domain.HeightObservation
	signed  map[string]*domain.SignedTransactionRecord // keyed by transaction_hash
}

// NewRecordStore creates a new in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		heights: make(map[heightKey]*domain.HeightObservation),
		signed:  make(map[string]*domain.SignedTransactionRecord),
	}
}

// UpsertHeight inserts obs unless (module, height) already exists.
func (s *RecordStore) UpsertHeight(_ context.Context, obs *domain.HeightObservation) (bool, error) {
	if obs == nil || obs.Module == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := heightKey{module: obs.Module, height: obs.Height}
	if _, exists := s.heights[key]; exists {
		return false, nil
	}
	obsCopy := *obs
	s.heights[key] = &obsCopy
	return true, nil
}

// LatestHeight returns the most recently observed row for module.
func (s *RecordStore) LatestHeight(_ context.Context, module string) (*domain.HeightObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.HeightObservation
	for key, obs := range s.heights {
		if key.module != module {
			continue
		}
		if latest == nil || newerObservation(obs, latest) {
			latest = obs
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	obsCopy := *latest
	return &obsCopy, nil
}

// newerObservation orders by observed_at, then height.
func newerObservation(a, b *domain.HeightObservation) bool {
	if a.ObservedAt != b.ObservedAt {
		return a.ObservedAt > b.ObservedAt
	}
	return a.Height > b.Height
}

// GetSigned retrieves a record by transaction hash.
func (s *RecordStore) GetSigned(_ context.Context, transactionHash string) (*domain.SignedTransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.signed[transactionHash]
	if !exists {
		return nil, storage.ErrNotFound
	}
	recordCopy := *r
	return &recordCopy, nil
}

// InsertSigned adds a new record. Returns ErrDuplicateKey if transaction_hash exists.
func (s *RecordStore) InsertSigned(_ context.Context, r *domain.SignedTransactionRecord) error {
	if r == nil || r.TransactionHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.signed[r.TransactionHash]; exists {
		return storage.ErrDuplicateKey
	}
	recordCopy := *r
	s.signed[r.TransactionHash] = &recordCopy
	return nil
}

// SumSignedAmount sums amount_xem over records signed at or after since.
func (s *RecordStore) SumSignedAmount(_ context.Context, since int64) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, r := range s.signed {
		if since > 0 && r.SignedAt < since {
			continue
		}
		total += r.AmountXEM
	}
	return total, nil
}

// Close is a no-op.
func (s *RecordStore) Close() error { return nil }

// Verify interface compliance at compile time.
var _ storage.RecordStore = (*RecordStore)(nil)
