package daemon

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nem-cosigner/internal/config"
	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/storage/memory"
)

func TestOpenStore_DefaultBackendSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}
	cfg.Store.Backend = config.BackendBadger
	cfg.Store.BadgerPath = filepath.Join(t.TempDir(), "records")

	store, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, store.InsertSigned(ctx, &domain.SignedTransactionRecord{
		TransactionHash: "ABC",
		AmountXEM:       10,
		SignedAt:        1700000000000,
	}))
	require.NoError(t, store.Close())

	reopened, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.GetSigned(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, 10.0, rec.AmountXEM)

	sum, err := reopened.SumSignedAmount(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 10.0, sum)
}

func TestOpenStore_Memory(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Backend = config.BackendMemory

	store, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &memory.RecordStore{}, store)
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Backend = "redis"

	_, err := OpenStore(context.Background(), cfg)
	assert.Error(t, err)
}
