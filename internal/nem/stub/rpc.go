package stub

import (
	"context"
	"sync"

	"nem-cosigner/internal/nem"
)

// RPCClient implements nem.RPCClient for testing.
type RPCClient struct {
	mu sync.Mutex

	Height      int64
	HeightErr   error
	Unconfirmed map[string][]nem.TransactionMetaDataPair
	UnconfErr   error

	// AnnounceResult is returned by Announce; defaults to SUCCESS.
	AnnounceResult *nem.AnnounceResult
	AnnounceErr    error
	Announced      []*nem.SignedTransaction

	HeightCalls int
	BaseURLs    []string
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Unconfirmed: make(map[string][]nem.TransactionMetaDataPair),
	}
}

// ChainHeight returns the configured height.
func (c *RPCClient) ChainHeight(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.HeightCalls++
	if c.HeightErr != nil {
		return 0, c.HeightErr
	}
	return c.Height, nil
}

// UnconfirmedTransactions returns pairs registered for address.
func (c *RPCClient) UnconfirmedTransactions(_ context.Context, address string) ([]nem.TransactionMetaDataPair, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.UnconfErr != nil {
		return nil, c.UnconfErr
	}
	return c.Unconfirmed[nem.NormalizeAddress(address)], nil
}

// Announce records tx and returns the configured result.
func (c *RPCClient) Announce(_ context.Context, tx *nem.SignedTransaction) (*nem.AnnounceResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Announced = append(c.Announced, tx)
	if c.AnnounceErr != nil {
		return nil, c.AnnounceErr
	}
	if c.AnnounceResult != nil {
		return c.AnnounceResult, nil
	}
	return &nem.AnnounceResult{Type: 1, Code: nem.AnnounceSuccess, Message: "SUCCESS"}, nil
}

// SetHeight sets the height returned by ChainHeight.
func (c *RPCClient) SetHeight(h int64) {
	c.mu.Lock()
	c.Height = h
	c.mu.Unlock()
}

// AddUnconfirmed registers a pending transaction for address.
func (c *RPCClient) AddUnconfirmed(address string, pair nem.TransactionMetaDataPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := nem.NormalizeAddress(address)
	c.Unconfirmed[key] = append(c.Unconfirmed[key], pair)
}

// AnnounceCount returns the number of Announce calls.
func (c *RPCClient) AnnounceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Announced)
}

// HeightCallCount returns the number of ChainHeight calls.
func (c *RPCClient) HeightCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.HeightCalls
}

// SetBaseURL records a node switch.
func (c *RPCClient) SetBaseURL(baseURL string) {
	c.mu.Lock()
	c.BaseURLs = append(c.BaseURLs, baseURL)
	c.mu.Unlock()
}

// LastBaseURL returns the most recent SetBaseURL argument.
func (c *RPCClient) LastBaseURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.BaseURLs) == 0 {
		return ""
	}
	return c.BaseURLs[len(c.BaseURLs)-1]
}

// BaseURLHistory returns every SetBaseURL argument in order.
func (c *RPCClient) BaseURLHistory() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.BaseURLs...)
}
