package domain

// SignedTransactionRecord is the idempotency marker for a co-signed transaction.
// Corresponds to signed_transactions table in PostgreSQL.
// Created once per TransactionHash after a successful broadcast.
type SignedTransactionRecord struct {
	TransactionHash string  // PRIMARY KEY, hash of the observed multisig transaction
	MultisigAddress string  // watched multisig account
	CosignerAddress string  // this bot's address
	AmountXEM       float64 // amount counted against the limit
	NodeContext     string  // node that accepted the announce (host:port)
	RawPayload      string  // hex-encoded signed signature transaction
	SignedAt        int64   // Unix timestamp in milliseconds
}
