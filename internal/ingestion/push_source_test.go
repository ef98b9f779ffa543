package ingestion

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/nem"
	"nem-cosigner/internal/nem/stub"
)

var innerHash = strings.Repeat("ab", 32)

func newPushSource(t *testing.T, queueSize int) (*PushSource, *stub.WSClient, *Queue, *stub.Multisig) {
	t.Helper()
	ms, err := stub.NewMultisig(stub.CosignatoryKey, stub.AccountKey)
	require.NoError(t, err)

	ws := stub.NewWSClient()
	q := NewQueue(queueSize)
	src := NewPushSource(PushSourceOptions{
		WS:              ws,
		Queue:           q,
		MultisigAddress: strings.ToLower(ms.Address),
		HeightBuffer:    2,
		Logger:          zerolog.Nop(),
	})
	require.NoError(t, src.Register(context.Background()))
	require.NoError(t, ws.Connect(context.Background(), domain.Endpoint{Host: "node", Port: 7890}))
	return src, ws, q, ms
}

func TestPushSource_RegistersTopics(t *testing.T) {
	_, ws, _, ms := newPushSource(t, 4)
	assert.ElementsMatch(t, []string{
		nem.TopicNewBlocks,
		nem.TopicErrors,
		"/unconfirmed/" + ms.Address,
	}, ws.Topics())
}

func TestPushSource_Heights(t *testing.T) {
	src, ws, _, _ := newPushSource(t, 4)

	assert.True(t, ws.Publish(nem.TopicNewBlocks, []byte(`{"height":1000,"timeStamp":1}`)))
	assert.True(t, ws.Publish(nem.TopicNewBlocks, []byte(`not json`)))
	assert.True(t, ws.Publish(nem.TopicNewBlocks, []byte(`{"height":1001}`)))
	// Buffer of two is full; this one is dropped.
	assert.True(t, ws.Publish(nem.TopicNewBlocks, []byte(`{"height":1002}`)))

	assert.Equal(t, int64(1000), <-src.Heights())
	assert.Equal(t, int64(1001), <-src.Heights())
	assert.Empty(t, src.Heights())
}

func TestPushSource_UnconfirmedEnqueuesMultisig(t *testing.T) {
	_, ws, q, ms := newPushSource(t, 4)
	topic := nem.TopicUnconfirmed(ms.Address)

	pair, err := ms.Pair("ABC", innerHash, 10_000_000)
	require.NoError(t, err)
	body, err := json.Marshal(pair)
	require.NoError(t, err)

	ws.Publish(topic, body)

	transfer := nem.TransactionMetaDataPair{
		Meta:        nem.TransactionMeta{Hash: &nem.HashData{Data: "def"}},
		Transaction: nem.TransactionJSON{Type: domain.TxTypeTransfer, Signer: ms.Account.PublicKeyHex()},
	}
	body, err = json.Marshal(transfer)
	require.NoError(t, err)
	ws.Publish(topic, body)
	ws.Publish(topic, []byte(`{"meta":`))

	require.Equal(t, 1, q.Len())
	c := <-q.C()
	assert.Equal(t, "abc", c.Hash)
	assert.Equal(t, innerHash, c.InnerHash)
	assert.Equal(t, domain.SourcePush, c.Source)
	assert.True(t, c.IsMultisigTransfer())
}

func TestPushSource_FullQueueDrops(t *testing.T) {
	_, ws, q, ms := newPushSource(t, 1)
	topic := nem.TopicUnconfirmed(ms.Address)

	for _, hash := range []string{"aa", "bb"} {
		pair, err := ms.Pair(hash, innerHash, 1)
		require.NoError(t, err)
		body, err := json.Marshal(pair)
		require.NoError(t, err)
		ws.Publish(topic, body)
	}

	require.Equal(t, 1, q.Len())
	assert.Equal(t, "aa", (<-q.C()).Hash)
}

func TestPushSource_ErrorsTopicDoesNotEnqueue(t *testing.T) {
	_, ws, q, _ := newPushSource(t, 1)
	assert.True(t, ws.Publish(nem.TopicErrors, []byte(`{"message":"boom"}`)))
	assert.Zero(t, q.Len())
}

func TestPushSource_RegisterBlocksOnly(t *testing.T) {
	ws := stub.NewWSClient()
	src := NewPushSource(PushSourceOptions{WS: ws, Queue: NewQueue(1), MultisigAddress: "TADDR", Logger: zerolog.Nop()})
	require.NoError(t, src.RegisterBlocks(context.Background()))
	assert.ElementsMatch(t, []string{nem.TopicNewBlocks, nem.TopicErrors}, ws.Topics())
}
