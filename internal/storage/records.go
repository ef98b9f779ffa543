package storage

import (
	"context"

	"nem-cosigner/internal/domain"
)

// HeightStore provides access to height_observations storage.
type HeightStore interface {
	// UpsertHeight inserts obs unless (module, height) already exists.
	// Returns true when a row was inserted. Existing rows are never updated.
	UpsertHeight(ctx context.Context, obs *domain.HeightObservation) (bool, error)

	// LatestHeight returns the most recently observed row for module.
	// Returns ErrNotFound if the module has no observations.
	LatestHeight(ctx context.Context, module string) (*domain.HeightObservation, error)
}

// SignedTransactionStore provides access to signed_transactions storage.
type SignedTransactionStore interface {
	// GetSigned retrieves a record by transaction hash. Returns ErrNotFound if not exists.
	GetSigned(ctx context.Context, transactionHash string) (*domain.SignedTransactionRecord, error)

	// InsertSigned adds a new record. Returns ErrDuplicateKey if transaction_hash exists.
	InsertSigned(ctx context.Context, r *domain.SignedTransactionRecord) error

	// SumSignedAmount returns the sum of amount_xem over records with
	// signed_at >= since (ms). since <= 0 sums all records.
	SumSignedAmount(ctx context.Context, since int64) (float64, error)
}

// RecordStore combines the stores the co-signer needs.
type RecordStore interface {
	HeightStore
	SignedTransactionStore
	Close() error
}
