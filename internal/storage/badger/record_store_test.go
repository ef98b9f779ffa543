package badger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/storage"
)

func openTestStore(t *testing.T) *RecordStore {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordStore_UpsertHeightIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	obs := &domain.HeightObservation{Module: "monitor", Height: 1000, ObservedAt: 1700000000000}

	inserted, err := store.UpsertHeight(ctx, obs)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := *obs
	again.ObservedAt = 1700000060000
	inserted, err = store.UpsertHeight(ctx, &again)
	require.NoError(t, err)
	assert.False(t, inserted)

	latest, err := store.LatestHeight(ctx, "monitor")
	require.NoError(t, err)
	assert.Equal(t, *obs, *latest)
}

func TestRecordStore_LatestHeight(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.LatestHeight(ctx, "monitor")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	for _, obs := range []domain.HeightObservation{
		{Module: "monitor", Height: 10, ObservedAt: 100},
		{Module: "monitor", Height: 12, ObservedAt: 300},
		{Module: "monitor", Height: 11, ObservedAt: 200},
		{Module: "mon", Height: 50, ObservedAt: 900},
	} {
		obs := obs
		_, err := store.UpsertHeight(ctx, &obs)
		require.NoError(t, err)
	}

	latest, err := store.LatestHeight(ctx, "monitor")
	require.NoError(t, err)
	assert.Equal(t, int64(12), latest.Height)
	assert.Equal(t, int64(300), latest.ObservedAt)

	latest, err = store.LatestHeight(ctx, "mon")
	require.NoError(t, err)
	assert.Equal(t, int64(50), latest.Height)
}

func TestRecordStore_SignedLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.GetSigned(ctx, "abc")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rec := &domain.SignedTransactionRecord{
		TransactionHash: "abc",
		MultisigAddress: "TMULTISIG",
		CosignerAddress: "TCOSIGNER",
		AmountXEM:       10,
		NodeContext:     "127.0.0.1:7890",
		RawPayload:      "0102",
		SignedAt:        1000,
	}
	require.NoError(t, store.InsertSigned(ctx, rec))
	assert.ErrorIs(t, store.InsertSigned(ctx, rec), storage.ErrDuplicateKey)

	got, err := store.GetSigned(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, *rec, *got)

	require.NoError(t, store.InsertSigned(ctx, &domain.SignedTransactionRecord{TransactionHash: "def", AmountXEM: 2.5, SignedAt: 2000}))

	total, err := store.SumSignedAmount(ctx, 0)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, total, 1e-9)

	total, err = store.SumSignedAmount(ctx, 1500)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, total, 1e-9)
}

func TestRecordStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.InsertSigned(ctx, &domain.SignedTransactionRecord{TransactionHash: "abc", AmountXEM: 1}))
	require.NoError(t, store.Close())

	store, err = Open(dir)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetSigned(ctx, "abc")
	assert.NoError(t, err)
}

func TestRecordStore_ConcurrentInsertSingleWinner(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.InsertSigned(ctx, &domain.SignedTransactionRecord{TransactionHash: "race", AmountXEM: 1})
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)

	total, err := store.SumSignedAmount(ctx, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, total, 1e-9)
}
