package nem

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"nem-cosigner/internal/domain"
)

// TransactionMetaDataPair is the NIS pairing of metadata and transaction.
// Both the REST API and the unconfirmed push topic use this shape.
type TransactionMetaDataPair struct {
	Meta        TransactionMeta `json:"meta"`
	Transaction TransactionJSON `json:"transaction"`
}

// TransactionMeta carries the hashes of a transaction when NIS supplies them.
type TransactionMeta struct {
	Hash      *HashData `json:"hash,omitempty"`
	InnerHash *HashData `json:"innerHash,omitempty"`
	// Data is the inner hash on unconfirmed REST responses.
	Data   *string `json:"data,omitempty"`
	Height int64   `json:"height,omitempty"`
}

// HashData wraps a hex hash.
type HashData struct {
	Data string `json:"data"`
}

// TransactionJSON is the NIS JSON form of a transaction (transfer or multisig).
type TransactionJSON struct {
	TimeStamp  int64            `json:"timeStamp"`
	Amount     int64            `json:"amount,omitempty"`
	Fee        int64            `json:"fee"`
	Recipient  string           `json:"recipient,omitempty"`
	Type       int              `json:"type"`
	Deadline   int64            `json:"deadline"`
	Message    *MessageJSON     `json:"message,omitempty"`
	Version    int              `json:"version"`
	Signer     string           `json:"signer"`
	Signature  string           `json:"signature,omitempty"`
	Mosaics    []MosaicJSON     `json:"mosaics,omitempty"`
	OtherTrans *TransactionJSON `json:"otherTrans,omitempty"`
}

// MessageJSON is a hex-encoded message.
type MessageJSON struct {
	Payload string `json:"payload"`
	Type    int    `json:"type"`
}

// MosaicJSON is a mosaic attachment.
type MosaicJSON struct {
	Quantity int64 `json:"quantity"`
	MosaicID struct {
		NamespaceID string `json:"namespaceId"`
		Name        string `json:"name"`
	} `json:"mosaicId"`
}

// BlockJSON is the subset of a block needed from /blocks/new.
type BlockJSON struct {
	Height int64 `json:"height"`
}

// AnnounceResult is the NIS response to /transaction/announce.
type AnnounceResult struct {
	Type            int       `json:"type"`
	Code            int       `json:"code"`
	Message         string    `json:"message"`
	TransactionHash *HashData `json:"transactionHash,omitempty"`
}

// Announce result codes.
const (
	AnnounceNeutral = 0
	AnnounceSuccess = 1
)

// IsSuccess reports a definitive success.
func (r *AnnounceResult) IsSuccess() bool {
	return r.Code == AnnounceSuccess
}

// IsNeutral reports a neutral result (neither accepted nor rejected).
func (r *AnnounceResult) IsNeutral() bool {
	return r.Code == AnnounceNeutral
}

// ToCandidate normalizes a meta/transaction pair.
// The outer hash is taken from metadata when present, otherwise computed
// from the serialized multisig wrapper.
func (p *TransactionMetaDataPair) ToCandidate(source domain.Source) (*domain.TransactionCandidate, error) {
	tx := p.Transaction
	c := &domain.TransactionCandidate{
		Type:            tx.Type,
		Version:         tx.Version,
		TimeStamp:       tx.TimeStamp,
		Deadline:        tx.Deadline,
		Fee:             tx.Fee,
		SignerPublicKey: strings.ToLower(tx.Signer),
		Signature:       strings.ToLower(tx.Signature),
		Source:          source,
	}

	if raw, err := json.Marshal(p); err == nil {
		c.Raw = raw
	}

	if tx.OtherTrans != nil {
		payload, err := tx.OtherTrans.toTransfer()
		if err != nil {
			return nil, err
		}
		c.Payload = payload
	}

	if p.Meta.Hash != nil {
		c.Hash = strings.ToLower(p.Meta.Hash.Data)
	}
	if p.Meta.InnerHash != nil && p.Meta.InnerHash.Data != "" {
		c.InnerHash = strings.ToLower(p.Meta.InnerHash.Data)
	} else if p.Meta.Data != nil {
		c.InnerHash = strings.ToLower(*p.Meta.Data)
	}

	if c.IsMultisig() && c.Payload != nil {
		if c.InnerHash == "" {
			if inner, err := SerializeTransfer(c.Payload); err == nil {
				c.InnerHash = Hash(inner)
			}
		}
		if c.Hash == "" {
			if outer, err := SerializeMultisig(c); err == nil {
				c.Hash = Hash(outer)
			}
		}
	}

	if c.Hash == "" {
		return nil, fmt.Errorf("transaction of type %d has no hash", tx.Type)
	}
	return c, nil
}

func (t *TransactionJSON) toTransfer() (*domain.TransferPayload, error) {
	p := &domain.TransferPayload{
		Type:            t.Type,
		Version:         t.Version,
		TimeStamp:       t.TimeStamp,
		Deadline:        t.Deadline,
		Fee:             t.Fee,
		SignerPublicKey: strings.ToLower(t.Signer),
		Recipient:       NormalizeAddress(t.Recipient),
		Amount:          t.Amount,
	}
	if t.Message != nil && t.Message.Payload != "" {
		payload, err := hex.DecodeString(t.Message.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode message payload: %w", err)
		}
		p.Message = &domain.Message{Type: t.Message.Type, Payload: payload}
	}
	for _, m := range t.Mosaics {
		p.Mosaics = append(p.Mosaics, domain.Mosaic{
			ID:       domain.MosaicID{NamespaceID: m.MosaicID.NamespaceID, Name: m.MosaicID.Name},
			Quantity: m.Quantity,
		})
	}
	return p, nil
}
