package postgres

import "nem-cosigner/internal/storage"

// RecordStore bundles the PostgreSQL stores behind storage.RecordStore.
type RecordStore struct {
	*HeightStore
	*SignedTransactionStore
	pool *Pool
}

// NewRecordStore creates a RecordStore over pool. Close closes the pool.
func NewRecordStore(pool *Pool) *RecordStore {
	return &RecordStore{
		HeightStore:            NewHeightStore(pool),
		SignedTransactionStore: NewSignedTransactionStore(pool),
		pool:                   pool,
	}
}

// Close closes the underlying pool.
func (s *RecordStore) Close() error {
	s.pool.Close()
	return nil
}

var _ storage.RecordStore = (*RecordStore)(nil)
