package nem

import "context"

// RPCClient defines the NIS request/response interface.
type RPCClient interface {
	// ChainHeight returns the current confirmed chain height.
	ChainHeight(ctx context.Context) (int64, error)

	// UnconfirmedTransactions returns pending transactions involving address.
	UnconfirmedTransactions(ctx context.Context, address string) ([]TransactionMetaDataPair, error)

	// Announce broadcasts a signed transaction.
	Announce(ctx context.Context, tx *SignedTransaction) (*AnnounceResult, error)
}
