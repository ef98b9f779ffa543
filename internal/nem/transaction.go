package nem

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"nem-cosigner/internal/domain"
)

// NemesisTime is the NEM network epoch.
var NemesisTime = time.Date(2015, time.March, 29, 0, 6, 25, 0, time.UTC)

// Fee and deadline defaults for multisig signature transactions.
const (
	MultisigSignatureFee = 150000 // 0.15 XEM
	DefaultDeadline      = time.Hour
)

// Timestamp converts t to seconds since the NEM epoch.
func Timestamp(t time.Time) int64 {
	return int64(t.Sub(NemesisTime) / time.Second)
}

// Version returns the transaction version field for network.
func Version(network Network, v int) int {
	return int(network)<<24 | v
}

// Hash returns the hex Keccak-256 hash of serialized transaction bytes.
func Hash(data []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MultisigSignature is a cosignature of a pending multisig transaction.
type MultisigSignature struct {
	TimeStamp       int64
	Deadline        int64
	Fee             int64
	Version         int
	SignerPublicKey []byte // cosigner
	OtherHash       string // hex hash of the inner transaction being co-signed
	MultisigAccount string // address of the multisig account
}

// NewMultisigSignature prepares a cosignature for hash on behalf of multisigAddress.
func NewMultisigSignature(network Network, signer *KeyPair, multisigAddress, hash string, now time.Time) *MultisigSignature {
	ts := Timestamp(now)
	return &MultisigSignature{
		TimeStamp:       ts,
		Deadline:        ts + int64(DefaultDeadline/time.Second),
		Fee:             MultisigSignatureFee,
		Version:         Version(network, 1),
		SignerPublicKey: signer.PublicKey(),
		OtherHash:       strings.ToLower(hash),
		MultisigAccount: NormalizeAddress(multisigAddress),
	}
}

// Serialize encodes the transaction in NIS binary form.
func (m *MultisigSignature) Serialize() ([]byte, error) {
	hash, err := hex.DecodeString(m.OtherHash)
	if err != nil {
		return nil, fmt.Errorf("decode other hash: %w", err)
	}
	if len(hash) != 32 {
		return nil, fmt.Errorf("other hash must be 32 bytes, got %d", len(hash))
	}
	if len(m.MultisigAccount) != AddressLength {
		return nil, fmt.Errorf("multisig account must be %d chars, got %d", AddressLength, len(m.MultisigAccount))
	}

	w := &writer{}
	w.header(domain.TxTypeMultisigSignature, m.Version, m.TimeStamp, m.SignerPublicKey, m.Fee, m.Deadline)
	w.u32(4 + 32)
	w.bytes(hash)
	w.bytes([]byte(m.MultisigAccount))
	return w.buf, nil
}

// SignedTransaction is a serialized transaction and its signature, ready to announce.
type SignedTransaction struct {
	Data      string `json:"data"`
	Signature string `json:"signature"`
}

// SignTransaction signs serialized bytes with kp.
func SignTransaction(kp *KeyPair, data []byte) (*SignedTransaction, error) {
	sig, err := kp.Sign(data)
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{
		Data:      hex.EncodeToString(data),
		Signature: hex.EncodeToString(sig),
	}, nil
}

// SerializeTransfer encodes a transfer payload in NIS binary form.
func SerializeTransfer(p *domain.TransferPayload) ([]byte, error) {
	signer, err := hex.DecodeString(p.SignerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode signer: %w", err)
	}
	recipient := NormalizeAddress(p.Recipient)
	if len(recipient) != AddressLength {
		return nil, fmt.Errorf("recipient must be %d chars, got %d", AddressLength, len(recipient))
	}

	w := &writer{}
	w.header(domain.TxTypeTransfer, p.Version, p.TimeStamp, signer, p.Fee, p.Deadline)
	w.bytes([]byte(recipient))
	w.u64(p.Amount)

	if p.Message != nil && len(p.Message.Payload) > 0 {
		w.u32(8 + len(p.Message.Payload))
		w.u32(p.Message.Type)
		w.bytes(p.Message.Payload)
	} else {
		w.u32(0)
	}

	if p.Version&0xFFFFFF >= 2 {
		w.u32(len(p.Mosaics))
		for _, m := range p.Mosaics {
			idLen := 4 + len(m.ID.NamespaceID) + 4 + len(m.ID.Name)
			w.u32(4 + idLen + 8)
			w.u32(idLen)
			w.bytes([]byte(m.ID.NamespaceID))
			w.bytes([]byte(m.ID.Name))
			w.u64(m.Quantity)
		}
	}
	return w.buf, nil
}

// SerializeMultisig encodes a multisig wrapper around its inner transfer.
func SerializeMultisig(c *domain.TransactionCandidate) ([]byte, error) {
	if c.Payload == nil {
		return nil, fmt.Errorf("multisig transaction has no inner transaction")
	}
	inner, err := SerializeTransfer(c.Payload)
	if err != nil {
		return nil, fmt.Errorf("serialize inner: %w", err)
	}
	signer, err := hex.DecodeString(c.SignerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode signer: %w", err)
	}

	w := &writer{}
	w.header(domain.TxTypeMultisig, c.Version, c.TimeStamp, signer, c.Fee, c.Deadline)
	w.bytes(inner)
	return w.buf, nil
}

// writer builds little-endian, length-prefixed NIS encodings.
type writer struct {
	buf []byte
}

func (w *writer) u32(v int) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

func (w *writer) u64(v int64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
}

// bytes writes a 4-byte length prefix followed by b.
func (w *writer) bytes(b []byte) {
	w.u32(len(b))
	w.buf = append(w.buf, b...)
}

func (w *writer) header(txType, version int, timeStamp int64, signer []byte, fee, deadline int64) {
	w.u32(txType)
	w.u32(version)
	w.u32(int(timeStamp))
	w.bytes(signer)
	w.u64(fee)
	w.u32(int(deadline))
}
