package postgres

import (
	"context"
	"fmt"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/storage"
)

// SignedTransactionStore implements storage.SignedTransactionStore using PostgreSQL.
type SignedTransactionStore struct {
	pool *Pool
}

// NewSignedTransactionStore creates a new SignedTransactionStore.
func NewSignedTransactionStore(pool *Pool) *SignedTransactionStore {
	return &SignedTransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignedTransactionStore = (*SignedTransactionStore)(nil)

// GetSigned retrieves a record by transaction hash. Returns ErrNotFound if not exists.
func (s *SignedTransactionStore) GetSigned(ctx context.Context, transactionHash string) (*domain.SignedTransactionRecord, error) {
	query := `
		SELECT transaction_hash, multisig_address, cosigner_address, amount_xem,
		       node_context, raw_payload, signed_at
		FROM signed_transactions
		WHERE transaction_hash = $1
	`

	var r domain.SignedTransactionRecord
	err := s.pool.QueryRow(ctx, query, transactionHash).Scan(
		&r.TransactionHash,
		&r.MultisigAddress,
		&r.CosignerAddress,
		&r.AmountXEM,
		&r.NodeContext,
		&r.RawPayload,
		&r.SignedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get signed transaction: %w", err)
	}
	return &r, nil
}

// InsertSigned adds a new record. Returns ErrDuplicateKey if transaction_hash exists.
func (s *SignedTransactionStore) InsertSigned(ctx context.Context, r *domain.SignedTransactionRecord) error {
	if r == nil || r.TransactionHash == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO signed_transactions (
			transaction_hash, multisig_address, cosigner_address, amount_xem,
			node_context, raw_payload, signed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		r.TransactionHash,
		r.MultisigAddress,
		r.CosignerAddress,
		r.AmountXEM,
		r.NodeContext,
		r.RawPayload,
		r.SignedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert signed transaction: %w", err)
	}
	return nil
}

// SumSignedAmount sums amount_xem over records signed at or after since.
func (s *SignedTransactionStore) SumSignedAmount(ctx context.Context, since int64) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount_xem), 0)
		FROM signed_transactions
		WHERE $1::BIGINT <= 0 OR signed_at >= $1
	`

	var total float64
	if err := s.pool.QueryRow(ctx, query, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum signed amount: %w", err)
	}
	return total, nil
}
