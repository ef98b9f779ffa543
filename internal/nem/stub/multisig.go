package stub

import (
	"encoding/hex"
	"fmt"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/nem"
)

// Test private keys. Any 32 bytes form a valid key.
const (
	CosignatoryKey = "1111111111111111111111111111111111111111111111111111111111111111"
	AccountKey     = "2222222222222222222222222222222222222222222222222222222222222222"
	BotKey         = "3333333333333333333333333333333333333333333333333333333333333333"
	OutsiderKey    = "4444444444444444444444444444444444444444444444444444444444444444"
)

// Multisig builds correctly signed multisig transfers for tests.
type Multisig struct {
	Network     nem.Network
	Cosignatory *nem.KeyPair // originates the multisig wrapper
	Account     *nem.KeyPair // the multisig account
	Address     string       // address of Account
}

// NewMultisig creates a Multisig on the test network.
func NewMultisig(cosignatoryKey, accountKey string) (*Multisig, error) {
	cosignatory, err := nem.NewKeyPair(cosignatoryKey)
	if err != nil {
		return nil, fmt.Errorf("cosignatory key: %w", err)
	}
	account, err := nem.NewKeyPair(accountKey)
	if err != nil {
		return nil, fmt.Errorf("account key: %w", err)
	}
	return &Multisig{
		Network:     nem.Testnet,
		Cosignatory: cosignatory,
		Account:     account,
		Address:     nem.AddressFromPublicKey(account.PublicKey(), nem.Testnet),
	}, nil
}

// Pair returns a signed unconfirmed multisig transfer of amount micro-XEM.
// hash and innerHash are the metadata hashes; innerHash must be 64 hex chars.
func (m *Multisig) Pair(hash, innerHash string, amount int64) (nem.TransactionMetaDataPair, error) {
	inner := &nem.TransactionJSON{
		TimeStamp: 1000,
		Amount:    amount,
		Fee:       50000,
		Recipient: nem.AddressFromPublicKey(m.Cosignatory.PublicKey(), m.Network),
		Type:      domain.TxTypeTransfer,
		Deadline:  4600,
		Version:   nem.Version(m.Network, 1),
		Signer:    m.Account.PublicKeyHex(),
	}
	pair := nem.TransactionMetaDataPair{
		Meta: nem.TransactionMeta{
			Hash:      &nem.HashData{Data: hash},
			InnerHash: &nem.HashData{Data: innerHash},
		},
		Transaction: nem.TransactionJSON{
			TimeStamp:  1000,
			Fee:        150000,
			Type:       domain.TxTypeMultisig,
			Deadline:   4600,
			Version:    nem.Version(m.Network, 1),
			Signer:     m.Cosignatory.PublicKeyHex(),
			OtherTrans: inner,
		},
	}

	c, err := pair.ToCandidate(domain.SourcePoll)
	if err != nil {
		return pair, err
	}
	data, err := nem.SerializeMultisig(c)
	if err != nil {
		return pair, err
	}
	sig, err := m.Cosignatory.Sign(data)
	if err != nil {
		return pair, err
	}
	pair.Transaction.Signature = hex.EncodeToString(sig)
	return pair, nil
}

// Candidate returns the normalized form of Pair.
func (m *Multisig) Candidate(hash, innerHash string, amount int64, source domain.Source) (*domain.TransactionCandidate, error) {
	pair, err := m.Pair(hash, innerHash, amount)
	if err != nil {
		return nil, err
	}
	return pair.ToCandidate(source)
}
