package daemon

import (
	"context"
	"fmt"

	"nem-cosigner/internal/config"
	"nem-cosigner/internal/log"
	"nem-cosigner/internal/storage"
	badgerstore "nem-cosigner/internal/storage/badger"
	"nem-cosigner/internal/storage/memory"
	"nem-cosigner/internal/storage/migrations"
	pgstore "nem-cosigner/internal/storage/postgres"
)

// OpenStore opens the record store backend named in cfg.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.RecordStore, error) {
	logger := log.WithComponent("store")

	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn().Msg("using in-memory record store; signatures are forgotten on restart")
		return memory.NewRecordStore(), nil

	case config.BackendBadger:
		store, err := badgerstore.Open(cfg.Store.BadgerPath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.Store.BadgerPath).Msg("badger record store opened")
		return store, nil

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
			logger.Info().Msg("postgres migrations applied")
		}
		return pgstore.NewRecordStore(pool), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
