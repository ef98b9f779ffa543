package domain

// NIS transaction type codes.
const (
	TxTypeTransfer          = 0x0101 // 257
	TxTypeMultisigSignature = 0x1002 // 4098
	TxTypeMultisig          = 0x1004 // 4100
)

// MosaicID identifies a divisible asset by (namespace, name).
type MosaicID struct {
	NamespaceID string
	Name        string
}

// String returns "namespace:name".
func (m MosaicID) String() string {
	return m.NamespaceID + ":" + m.Name
}

// XEM is the native currency mosaic.
var XEM = MosaicID{NamespaceID: "nem", Name: "xem"}

// Mosaic is a quantity of a divisible asset attached to a transfer.
type Mosaic struct {
	ID       MosaicID
	Quantity int64 // raw, indivisible units
}

// Message is an optional transfer message.
type Message struct {
	Type    int    // 1 plain, 2 secure
	Payload []byte // decoded payload bytes
}

// TransferPayload is the transfer carried inside a multisig wrapper.
type TransferPayload struct {
	Type            int
	Version         int
	TimeStamp       int64
	Deadline        int64
	Fee             int64
	SignerPublicKey string // multisig account public key (hex)
	Recipient       string
	Amount          int64 // raw amount, or multiplier when Mosaics is non-empty
	Message         *Message
	Mosaics         []Mosaic
}

// TransactionCandidate is a normalized view of a transaction observed on the ledger.
// Derived on read, never persisted.
type TransactionCandidate struct {
	Hash            string // outer transaction hash (hex)
	InnerHash       string // inner transaction hash for multisig, empty otherwise
	Type            int    // outer transaction type
	Version         int
	TimeStamp       int64
	Deadline        int64
	Fee             int64
	SignerPublicKey string // originating cosignatory public key (hex)
	Signature       string // outer signature (hex)
	Payload         *TransferPayload
	Raw             []byte // original JSON meta/transaction pair
	Source          Source
}

// IsMultisig reports whether the outer transaction is a multisig wrapper.
func (c *TransactionCandidate) IsMultisig() bool {
	return c.Type == TxTypeMultisig
}

// IsMultisigTransfer reports whether the candidate wraps a transfer.
func (c *TransactionCandidate) IsMultisigTransfer() bool {
	return c.IsMultisig() && c.Payload != nil && c.Payload.Type == TxTypeTransfer
}

// TargetHash returns the hash a cosignature must reference.
func (c *TransactionCandidate) TargetHash() string {
	if c.InnerHash != "" {
		return c.InnerHash
	}
	return c.Hash
}
