package nem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements RPCClient against the NIS REST API.
// The base URL can be swapped at runtime when the active endpoint changes.
type HTTPClient struct {
	baseMu      sync.RWMutex
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new NIS REST client for baseURL (e.g. http://host:7890).
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetBaseURL points the client at a different node.
func (c *HTTPClient) SetBaseURL(baseURL string) {
	c.baseMu.Lock()
	c.baseURL = baseURL
	c.baseMu.Unlock()
}

// BaseURL returns the node the client currently talks to.
func (c *HTTPClient) BaseURL() string {
	c.baseMu.RLock()
	defer c.baseMu.RUnlock()
	return c.baseURL
}

// apiError is a NIS error body.
type apiError struct {
	Status  int    `json:"status"`
	Err     string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("NIS error %d (%s): %s", e.Status, e.Err, e.Message)
}

// call performs a REST call, retrying up to retries times with exponential
// backoff. 4xx responses other than 429 are not retried.
func (c *HTTPClient) call(ctx context.Context, retries int, method, path string, query url.Values, body interface{}, result interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	target := c.BaseURL() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			apiErr := &apiError{Status: resp.StatusCode}
			if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
				apiErr.Message = string(respBody)
			}
			return apiErr
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}

	if retries == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// ChainHeight retrieves the current chain height.
func (c *HTTPClient) ChainHeight(ctx context.Context) (int64, error) {
	var result BlockJSON
	if err := c.call(ctx, c.maxRetries, http.MethodGet, "/chain/height", nil, nil, &result); err != nil {
		return 0, err
	}
	return result.Height, nil
}

// UnconfirmedTransactions retrieves pending transactions for address.
func (c *HTTPClient) UnconfirmedTransactions(ctx context.Context, address string) ([]TransactionMetaDataPair, error) {
	query := url.Values{"address": {NormalizeAddress(address)}}

	var result struct {
		Data []TransactionMetaDataPair `json:"data"`
	}
	if err := c.call(ctx, c.maxRetries, http.MethodGet, "/account/unconfirmedTransactions", query, nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// Announce broadcasts a signed transaction with a single POST. It is never
// retried: NIS rejects a replayed announce, which would hide a broadcast
// that already landed. A NIS validation failure is returned as a result,
// not an error.
func (c *HTTPClient) Announce(ctx context.Context, tx *SignedTransaction) (*AnnounceResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("nil transaction")
	}
	var result AnnounceResult
	if err := c.call(ctx, 0, http.MethodPost, "/transaction/announce", nil, tx, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
