package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/nem"
	"nem-cosigner/internal/nem/stub"
	"nem-cosigner/internal/storage/memory"
)

func newPoller(t *testing.T, interval time.Duration) (*Poller, *stub.RPCClient, *memory.RecordStore, *Queue, *stub.Multisig) {
	t.Helper()
	ms, err := stub.NewMultisig(stub.CosignatoryKey, stub.AccountKey)
	require.NoError(t, err)

	rpc := stub.NewRPCClient()
	store := memory.NewRecordStore()
	q := NewQueue(8)
	p := NewPoller(PollerOptions{
		RPC:             rpc,
		Queue:           q,
		HeightStore:     store,
		MultisigAddress: ms.Address,
		Module:          "monitor",
		Interval:        interval,
		Logger:          zerolog.Nop(),
	})
	return p, rpc, store, q, ms
}

func TestPoller_PollFiltersMultisig(t *testing.T) {
	p, rpc, _, q, ms := newPoller(t, 0)

	pair, err := ms.Pair("abc", innerHash, 5_000_000)
	require.NoError(t, err)
	rpc.AddUnconfirmed(ms.Address, pair)
	rpc.AddUnconfirmed(ms.Address, nem.TransactionMetaDataPair{
		Meta:        nem.TransactionMeta{Hash: &nem.HashData{Data: "def"}},
		Transaction: nem.TransactionJSON{Type: domain.TxTypeTransfer},
	})
	// No hash in metadata and nothing to derive it from.
	rpc.AddUnconfirmed(ms.Address, nem.TransactionMetaDataPair{
		Transaction: nem.TransactionJSON{Type: domain.TxTypeTransfer},
	})

	n, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c := <-q.C()
	assert.Equal(t, "abc", c.Hash)
	assert.Equal(t, domain.SourcePoll, c.Source)
	assert.Equal(t, DefaultPollInterval, p.interval)
}

func TestPoller_PollError(t *testing.T) {
	p, rpc, _, q, _ := newPoller(t, 0)
	rpc.UnconfErr = errors.New("503")

	_, err := p.Poll(context.Background())
	assert.Error(t, err)
	assert.Zero(t, q.Len())
}

func TestPoller_FetchHeightRecordsObservation(t *testing.T) {
	p, rpc, store, _, _ := newPoller(t, 0)
	now := time.UnixMilli(1_700_000_000_000)
	p.now = func() time.Time { return now }
	rpc.SetHeight(1000)

	ctx := context.Background()
	h, err := p.FetchHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), h)

	// Same height again is not an error and stays a single observation.
	_, err = p.FetchHeight(ctx)
	require.NoError(t, err)

	obs, err := store.LatestHeight(ctx, "monitor")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), obs.Height)
	assert.Equal(t, now.UnixMilli(), obs.ObservedAt)
}

func TestPoller_FetchHeightError(t *testing.T) {
	p, rpc, _, _, _ := newPoller(t, 0)
	rpc.HeightErr = errors.New("timeout")

	_, err := p.FetchHeight(context.Background())
	assert.Error(t, err)
}

func TestPoller_RunPollsAtStartupAndOnInterval(t *testing.T) {
	p, rpc, _, q, ms := newPoller(t, 10*time.Millisecond)
	pair, err := ms.Pair("abc", innerHash, 1)
	require.NoError(t, err)
	rpc.AddUnconfirmed(ms.Address, pair)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Startup poll plus at least one tick
	for i := 0; i < 2; i++ {
		select {
		case c := <-q.C():
			assert.Equal(t, "abc", c.Hash)
		case <-time.After(time.Second):
			t.Fatal("poller did not enqueue")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPoller_RunSurvivesFailedCycle(t *testing.T) {
	p, rpc, _, _, _ := newPoller(t, 5*time.Millisecond)
	rpc.UnconfErr = errors.New("boom")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Run(ctx), context.DeadlineExceeded)
}
