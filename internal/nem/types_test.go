package nem

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nem-cosigner/internal/domain"
)

const unconfirmedMultisigJSON = `{
  "meta": {
    "innerHash": {"data": "AAAA000000000000000000000000000000000000000000000000000000000000"},
    "id": 0,
    "hash": {"data": "BBBB000000000000000000000000000000000000000000000000000000000000"},
    "height": 9007199254740991
  },
  "transaction": {
    "timeStamp": 9111526,
    "fee": 150000,
    "type": 4100,
    "deadline": 9154726,
    "version": -1744830463,
    "signatures": [],
    "signer": "ED9BF729C0D93F238BC4AF468B952C35071D9FE1219B27C30DFE108C2E3DB030",
    "signature": "aa",
    "otherTrans": {
      "timeStamp": 9111526,
      "amount": 3,
      "fee": 50000,
      "recipient": "TBCI2A-67UQZA-KCR6NS-4JWAEI-CEIGEI-M72G3M-VW5S",
      "type": 257,
      "deadline": 9154726,
      "message": {"payload": "6869", "type": 1},
      "version": -1744830462,
      "signer": "2D354D8B7C5B1A4B0A5A1B4E5F2D0B2B8F6A7C5E9D1A3B4C5D6E7F8091A2B3C4",
      "mosaics": [
        {"quantity": 2000000, "mosaicId": {"namespaceId": "nem", "name": "xem"}}
      ]
    }
  }
}`

func TestToCandidate_Multisig(t *testing.T) {
	var pair TransactionMetaDataPair
	require.NoError(t, json.Unmarshal([]byte(unconfirmedMultisigJSON), &pair))

	c, err := pair.ToCandidate(domain.SourcePush)
	require.NoError(t, err)

	assert.True(t, c.IsMultisig())
	assert.True(t, c.IsMultisigTransfer())
	assert.Equal(t, "bbbb000000000000000000000000000000000000000000000000000000000000", c.Hash)
	assert.Equal(t, "aaaa000000000000000000000000000000000000000000000000000000000000", c.InnerHash)
	assert.Equal(t, c.InnerHash, c.TargetHash())
	assert.Equal(t, "ed9bf729c0d93f238bc4af468b952c35071d9fe1219b27c30dfe108c2e3db030", c.SignerPublicKey)
	assert.Equal(t, domain.SourcePush, c.Source)
	assert.NotEmpty(t, c.Raw)

	require.NotNil(t, c.Payload)
	assert.Equal(t, "TBCI2A67UQZAKCR6NS4JWAEICEIGEIM72G3MVW5S", c.Payload.Recipient)
	assert.Equal(t, int64(3), c.Payload.Amount)
	require.NotNil(t, c.Payload.Message)
	assert.Equal(t, []byte("hi"), c.Payload.Message.Payload)
	require.Len(t, c.Payload.Mosaics, 1)
	assert.Equal(t, domain.XEM, c.Payload.Mosaics[0].ID)
	assert.InDelta(t, 6.0, domain.ExtractAmount(c.Payload, domain.DefaultAsset), 1e-9)
}

func TestToCandidate_ComputesMissingHashes(t *testing.T) {
	c := testMultisigCandidate(t)
	pair := TransactionMetaDataPair{
		Transaction: TransactionJSON{
			TimeStamp: c.TimeStamp,
			Fee:       c.Fee,
			Type:      c.Type,
			Deadline:  c.Deadline,
			Version:   c.Version,
			Signer:    c.SignerPublicKey,
			OtherTrans: &TransactionJSON{
				TimeStamp: c.Payload.TimeStamp,
				Amount:    c.Payload.Amount,
				Fee:       c.Payload.Fee,
				Recipient: c.Payload.Recipient,
				Type:      c.Payload.Type,
				Deadline:  c.Payload.Deadline,
				Version:   c.Payload.Version,
				Signer:    c.Payload.SignerPublicKey,
			},
		},
	}

	got, err := pair.ToCandidate(domain.SourcePoll)
	require.NoError(t, err)

	outer, err := SerializeMultisig(c)
	require.NoError(t, err)
	inner, err := SerializeTransfer(c.Payload)
	require.NoError(t, err)

	assert.Equal(t, Hash(outer), got.Hash)
	assert.Equal(t, Hash(inner), got.InnerHash)
}

func TestToCandidate_NoHash(t *testing.T) {
	pair := TransactionMetaDataPair{
		Transaction: TransactionJSON{Type: domain.TxTypeTransfer},
	}
	_, err := pair.ToCandidate(domain.SourcePoll)
	assert.Error(t, err)
}

func TestToCandidate_RESTInnerHashField(t *testing.T) {
	var pair TransactionMetaDataPair
	require.NoError(t, json.Unmarshal([]byte(unconfirmedMultisigJSON), &pair))
	inner := "cccc000000000000000000000000000000000000000000000000000000000000"
	pair.Meta.InnerHash = nil
	pair.Meta.Data = &inner

	c, err := pair.ToCandidate(domain.SourcePoll)
	require.NoError(t, err)
	assert.Equal(t, inner, c.InnerHash)
}
