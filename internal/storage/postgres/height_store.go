package postgres

import (
	"context"
	"fmt"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/storage"
)

// HeightStore implements storage.HeightStore using PostgreSQL.
type HeightStore struct {
	pool *Pool
}

// NewHeightStore creates a new HeightStore.
func NewHeightStore(pool *Pool) *HeightStore {
	return &HeightStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HeightStore = (*HeightStore)(nil)

// UpsertHeight inserts obs unless (module, height) already exists.
func (s *HeightStore) UpsertHeight(ctx context.Context, obs *domain.HeightObservation) (bool, error) {
	if obs == nil || obs.Module == "" {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO height_observations (module, height, observed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (module, height) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query, obs.Module, obs.Height, obs.ObservedAt)
	if err != nil {
		return false, fmt.Errorf("upsert height: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// LatestHeight returns the most recently observed row for module.
func (s *HeightStore) LatestHeight(ctx context.Context, module string) (*domain.HeightObservation, error) {
	query := `
		SELECT module, height, observed_at
		FROM height_observations
		WHERE module = $1
		ORDER BY observed_at DESC, height DESC
		LIMIT 1
	`

	var obs domain.HeightObservation
	err := s.pool.QueryRow(ctx, query, module).Scan(&obs.Module, &obs.Height, &obs.ObservedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("latest height: %w", err)
	}
	return &obs, nil
}
