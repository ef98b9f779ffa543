// Package cosign verifies pending multisig transactions and co-signs them.
package cosign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/nem"
	"nem-cosigner/internal/observability"
	"nem-cosigner/internal/storage"
)

// ErrInvalidPrivateKey marks a signing attempt with a malformed private key.
var ErrInvalidPrivateKey = errors.New("cosign: invalid private key")

// Rejection reasons.
var (
	errNotAllowed     = errors.New("signer not in cosignatory allow-list")
	errWrongAccount   = errors.New("inner account is not the configured multisig account")
	errMissingPayload = errors.New("multisig transaction has no inner transfer")
)

// DefaultRejectionTTL is how long a verification rejection is remembered.
const DefaultRejectionTTL = 10 * time.Minute

// Config configures Engine.
type Config struct {
	Network         nem.Network
	MultisigAddress string
	CosignerAddress string // optional, derived from the private key when empty
	PrivateKey      string // hex; validated on first signing attempt
	AllowList       domain.CosignatoryAllowList
	Asset           domain.AssetDefinition
	Limit           LimitPolicy
	SignEnabled     bool
	RejectionTTL    time.Duration
}

// Options holds Engine collaborators.
type Options struct {
	Config   Config
	Store    storage.SignedTransactionStore
	RPC      nem.RPCClient
	Verifier Verifier
	// NodeContext returns the node announces go to; recorded with each signature.
	NodeContext func() string
	Logger      zerolog.Logger
}

// Engine is the verify / limit / sign / broadcast pipeline.
type Engine struct {
	cfg         Config
	store       storage.SignedTransactionStore
	rpc         nem.RPCClient
	verifier    Verifier
	limiter     *Limiter
	nodeContext func() string
	logger      zerolog.Logger
	now         func() time.Time

	// rejected remembers deterministic verification failures by hash.
	rejected *ttlcache.Cache[string, string]

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	cfg := opts.Config
	if cfg.Asset.ID == (domain.MosaicID{}) {
		cfg.Asset = domain.DefaultAsset
	}
	if cfg.RejectionTTL <= 0 {
		cfg.RejectionTTL = DefaultRejectionTTL
	}
	cfg.MultisigAddress = nem.NormalizeAddress(cfg.MultisigAddress)

	verifier := opts.Verifier
	if verifier == nil {
		verifier = StrictVerifier{}
	}
	nodeContext := opts.NodeContext
	if nodeContext == nil {
		nodeContext = func() string { return "" }
	}

	return &Engine{
		cfg:         cfg,
		store:       opts.Store,
		rpc:         opts.RPC,
		verifier:    verifier,
		limiter:     NewLimiter(cfg.Limit, opts.Store),
		nodeContext: nodeContext,
		logger:      opts.Logger,
		now:         time.Now,
		rejected: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](cfg.RejectionTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
		inflight: make(map[string]struct{}),
	}
}

// Run consumes candidates until ctx is done or the channel closes.
func (e *Engine) Run(ctx context.Context, candidates <-chan *domain.TransactionCandidate) error {
	go e.rejected.Start()
	defer e.rejected.Stop()

	e.logger.Info().
		Str("multisig", e.cfg.MultisigAddress).
		Str("verifier", e.verifier.Name()).
		Bool("sign_enabled", e.cfg.SignEnabled).
		Msg("cosigning engine started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-candidates:
			if !ok {
				return nil
			}
			observability.UpdateQueueDepth(len(candidates))
			if _, err := e.HandleCandidate(ctx, c); err != nil {
				e.logger.Error().Err(err).Str("hash", c.Hash).Str("source", c.Source.String()).Msg("handle candidate")
			}
		}
	}
}

// HandleCandidate runs one candidate through the pipeline. Policy
// rejections are reported as outcomes, not errors.
func (e *Engine) HandleCandidate(ctx context.Context, c *domain.TransactionCandidate) (Outcome, error) {
	outcome, err := e.handle(ctx, c)
	observability.RecordOutcome(outcome.String())
	return outcome, err
}

func (e *Engine) handle(ctx context.Context, c *domain.TransactionCandidate) (Outcome, error) {
	if c == nil || !c.IsMultisig() {
		return OutcomeSkipped, nil
	}
	hash := strings.ToLower(c.Hash)
	logger := e.logger.With().Str("hash", hash).Str("source", c.Source.String()).Logger()

	if !c.IsMultisigTransfer() {
		logger.Debug().Msg("multisig transaction does not wrap a transfer, skipping")
		return OutcomeSkipped, nil
	}

	if item := e.rejected.Get(hash); item != nil {
		logger.Debug().Str("reason", item.Value()).Msg("previously rejected")
		return OutcomeRejected, nil
	}

	if !e.acquire(hash) {
		return OutcomeDuplicate, nil
	}
	defer e.release(hash)

	// Idempotency
	if _, err := e.store.GetSigned(ctx, hash); err == nil {
		logger.Debug().Msg("already signed")
		return OutcomeDuplicate, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return OutcomeError, fmt.Errorf("lookup signed transaction: %w", err)
	}

	if err := e.verify(c); err != nil {
		e.rejected.Set(hash, err.Error(), ttlcache.DefaultTTL)
		logger.Warn().Err(err).Str("signer", c.SignerPublicKey).Msg("candidate rejected")
		return OutcomeRejected, nil
	}

	amount := domain.ExtractAmount(c.Payload, e.cfg.Asset)
	allowed, aggregate, err := e.limiter.Allow(ctx, amount)
	if err != nil {
		return OutcomeError, err
	}
	if !allowed {
		logger.Warn().
			Float64("amount", amount).
			Float64("aggregate", aggregate).
			Float64("ceiling", e.cfg.Limit.Ceiling).
			Msg("signing limit reached")
		return OutcomeRateLimited, nil
	}

	if !e.cfg.SignEnabled {
		logger.Info().Float64("amount", amount).Str("target", c.TargetHash()).Msg("would sign (signing disabled)")
		return OutcomeDryRun, nil
	}

	return e.signAndAnnounce(ctx, c, hash, amount, logger)
}

// verify applies the allow-list, account and signature checks.
func (e *Engine) verify(c *domain.TransactionCandidate) error {
	if !e.cfg.AllowList.Contains(c.SignerPublicKey) {
		return errNotAllowed
	}
	if c.Payload == nil {
		return errMissingPayload
	}
	account, err := nem.AddressFromPublicKeyHex(c.Payload.SignerPublicKey, e.cfg.Network)
	if err != nil {
		return fmt.Errorf("derive inner account: %w", err)
	}
	if account != e.cfg.MultisigAddress {
		return fmt.Errorf("%w: %s", errWrongAccount, account)
	}
	return e.verifier.Verify(c)
}

func (e *Engine) signAndAnnounce(ctx context.Context, c *domain.TransactionCandidate, hash string, amount float64, logger zerolog.Logger) (Outcome, error) {
	kp, err := nem.NewKeyPair(e.cfg.PrivateKey)
	if err != nil {
		logger.Error().Err(err).Msg("configuration error: cannot derive signing key")
		return OutcomeError, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}

	tx := nem.NewMultisigSignature(e.cfg.Network, kp, e.cfg.MultisigAddress, c.TargetHash(), e.now())
	data, err := tx.Serialize()
	if err != nil {
		return OutcomeError, fmt.Errorf("serialize multisig signature: %w", err)
	}
	signed, err := nem.SignTransaction(kp, data)
	if err != nil {
		return OutcomeError, fmt.Errorf("sign multisig signature: %w", err)
	}

	node := e.nodeContext()
	start := time.Now()
	result, err := e.rpc.Announce(ctx, signed)
	observability.RecordRPCLatency("announce", time.Since(start).Seconds())
	if err != nil {
		logger.Warn().Err(err).Str("node", node).Msg("announce failed")
		return OutcomeBroadcastFailed, nil
	}

	switch {
	case result.IsSuccess():
	case result.IsNeutral():
		logger.Info().Str("message", result.Message).Str("node", node).Msg("announce neutral, not recorded")
		return OutcomeBroadcastNeutral, nil
	default:
		logger.Warn().Int("code", result.Code).Str("message", result.Message).Str("node", node).Msg("announce rejected")
		return OutcomeBroadcastFailed, nil
	}

	cosigner := e.cfg.CosignerAddress
	if cosigner == "" {
		cosigner = nem.AddressFromPublicKey(kp.PublicKey(), e.cfg.Network)
	}

	record := &domain.SignedTransactionRecord{
		TransactionHash: hash,
		MultisigAddress: e.cfg.MultisigAddress,
		CosignerAddress: nem.NormalizeAddress(cosigner),
		AmountXEM:       amount,
		NodeContext:     node,
		RawPayload:      signed.Data,
		SignedAt:        e.now().UnixMilli(),
	}
	if err := e.store.InsertSigned(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			logger.Warn().Msg("signature already recorded by a concurrent attempt")
			return OutcomeDuplicate, nil
		}
		return OutcomeError, fmt.Errorf("record signed transaction: %w", err)
	}

	observability.RecordSignedAmount(amount)
	logger.Info().
		Float64("amount", amount).
		Str("target", c.TargetHash()).
		Str("node", node).
		Msg("co-signed multisig transaction")
	return OutcomeSigned, nil
}

func (e *Engine) acquire(hash string) bool {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	if _, busy := e.inflight[hash]; busy {
		return false
	}
	e.inflight[hash] = struct{}{}
	return true
}

func (e *Engine) release(hash string) {
	e.inflightMu.Lock()
	delete(e.inflight, hash)
	e.inflightMu.Unlock()
}
