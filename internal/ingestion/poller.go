package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/nem"
	"nem-cosigner/internal/observability"
	"nem-cosigner/internal/storage"
)

// DefaultPollInterval is the reference interval between pull cycles.
const DefaultPollInterval = 30 * time.Second

// Poller pulls unconfirmed transactions and chain heights over REST,
// covering gaps left by the push channel.
type Poller struct {
	rpc      nem.RPCClient
	queue    *Queue
	heights  storage.HeightStore
	address  string
	module   string
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// PollerOptions contains configuration for creating a Poller.
type PollerOptions struct {
	RPC             nem.RPCClient
	Queue           *Queue
	HeightStore     storage.HeightStore
	MultisigAddress string
	Module          string        // module name height observations are recorded under
	Interval        time.Duration // default DefaultPollInterval
	Logger          zerolog.Logger
}

// NewPoller creates a new Poller.
func NewPoller(opts PollerOptions) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		rpc:      opts.RPC,
		queue:    opts.Queue,
		heights:  opts.HeightStore,
		address:  nem.NormalizeAddress(opts.MultisigAddress),
		module:   opts.Module,
		interval: interval,
		logger:   opts.Logger,
		now:      time.Now,
	}
}

// Poll runs one pull cycle and returns the number of multisig candidates enqueued.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	start := time.Now()
	pairs, err := p.rpc.UnconfirmedTransactions(ctx, p.address)
	observability.RecordRPCLatency("unconfirmed", time.Since(start).Seconds())
	if err != nil {
		observability.RecordPollRun("error", 0)
		return 0, fmt.Errorf("fetch unconfirmed transactions: %w", err)
	}

	enqueued := 0
	for i := range pairs {
		c, err := pairs[i].ToCandidate(domain.SourcePoll)
		if err != nil {
			p.logger.Warn().Err(err).Msg("skipping unconfirmed transaction")
			continue
		}
		if !c.IsMultisig() {
			continue
		}
		if err := p.queue.Enqueue(ctx, c); err != nil {
			observability.RecordPollRun("error", 0)
			return enqueued, err
		}
		enqueued++
	}

	observability.RecordPollRun("success", float64(p.now().Unix()))
	p.logger.Debug().Int("pending", len(pairs)).Int("enqueued", enqueued).Msg("poll cycle complete")
	return enqueued, nil
}

// FetchHeight pulls the chain height and records it as an observation.
// A height already recorded for the module is not an error.
func (p *Poller) FetchHeight(ctx context.Context) (int64, error) {
	start := time.Now()
	height, err := p.rpc.ChainHeight(ctx)
	observability.RecordRPCLatency("chain_height", time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("fetch chain height: %w", err)
	}

	obs := &domain.HeightObservation{
		Module:     p.module,
		Height:     height,
		ObservedAt: p.now().UnixMilli(),
	}
	stored, err := p.heights.UpsertHeight(ctx, obs)
	if err != nil {
		return height, fmt.Errorf("record height %d: %w", height, err)
	}
	observability.RecordHeight(height, stored, float64(obs.ObservedAt)/1000)
	return height, nil
}

// Run polls once at startup and then every interval until ctx is done.
// Individual cycle failures are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Str("multisig", p.address).Dur("interval", p.interval).Msg("fallback poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn().Err(err).Msg("poll cycle failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
