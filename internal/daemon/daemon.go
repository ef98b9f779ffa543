// Package daemon wires the co-signing service together and runs it.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"nem-cosigner/internal/config"
	"nem-cosigner/internal/cosign"
	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/endpoint"
	"nem-cosigner/internal/ingestion"
	"nem-cosigner/internal/log"
	"nem-cosigner/internal/monitor"
	"nem-cosigner/internal/nem"
	"nem-cosigner/internal/storage"
)

// RPC is a request/response client that can follow endpoint switches.
type RPC interface {
	nem.RPCClient
	SetBaseURL(baseURL string)
}

// Options contains the collaborators of a Daemon. RPC and WS default to
// real NIS clients pointed at the first configured endpoint.
type Options struct {
	Config *config.Config
	Store  storage.RecordStore
	RPC    RPC
	WS     nem.WSClient
}

// Daemon owns every component of the service.
type Daemon struct {
	cfg      *config.Config
	caps     config.Capabilities
	store    storage.RecordStore
	rpc      RPC
	ws       nem.WSClient
	registry *endpoint.Registry
	queue    *ingestion.Queue
	push     *ingestion.PushSource
	poller   *ingestion.Poller
	engine   *cosign.Engine
	logger   zerolog.Logger

	// monitorOpts is completed by Run; tests shorten its durations.
	monitorOpts monitor.Options
}

// New builds a Daemon from opts.
func New(opts Options) (*Daemon, error) {
	cfg := opts.Config
	if cfg == nil || opts.Store == nil {
		return nil, errors.New("daemon: config and store are required")
	}
	caps, err := cfg.Capabilities()
	if err != nil {
		return nil, err
	}
	network, err := cfg.NetworkID()
	if err != nil {
		return nil, err
	}
	endpoints, err := cfg.Endpoints()
	if err != nil {
		return nil, err
	}
	registry, err := endpoint.NewRegistry(endpoints)
	if err != nil {
		return nil, err
	}
	verifier, err := cosign.NewVerifier(cfg.Cosign.Verification)
	if err != nil {
		return nil, err
	}

	rpc := opts.RPC
	if rpc == nil {
		rpc = nem.NewHTTPClient(registry.Current().URL(),
			nem.WithTimeout(cfg.RPC.Timeout),
			nem.WithMaxRetries(cfg.RPC.MaxRetries),
		)
	}
	ws := opts.WS
	if ws == nil {
		wsLogger := log.WithComponent("ws")
		ws = nem.NewWSClient(nil,
			nem.WithLogger(wsLogger),
			nem.WithErrorHandler(func(err error) {
				wsLogger.Error().Err(err).Msg("push channel error")
			}),
		)
	}

	queue := ingestion.NewQueue(cfg.Cosign.QueueSize)
	d := &Daemon{
		cfg:      cfg,
		caps:     caps,
		store:    opts.Store,
		rpc:      rpc,
		ws:       ws,
		registry: registry,
		queue:    queue,
		logger:   log.WithComponent("daemon"),
	}

	d.push = ingestion.NewPushSource(ingestion.PushSourceOptions{
		WS:              ws,
		Queue:           queue,
		MultisigAddress: cfg.Account.MultisigAddress,
		Logger:          log.WithComponent("push"),
	})
	d.poller = ingestion.NewPoller(ingestion.PollerOptions{
		RPC:             rpc,
		Queue:           queue,
		HeightStore:     opts.Store,
		MultisigAddress: cfg.Account.MultisigAddress,
		Module:          cfg.Monitor.Module,
		Interval:        cfg.Monitor.PollInterval,
		Logger:          log.WithComponent("poller"),
	})
	d.engine = cosign.NewEngine(cosign.Options{
		Config: cosign.Config{
			Network:         network,
			MultisigAddress: cfg.Account.MultisigAddress,
			CosignerAddress: cfg.Account.CosignerAddress,
			PrivateKey:      cfg.Account.PrivateKey,
			AllowList:       domain.NewCosignatoryAllowList(cfg.AllowList()),
			Limit:           cosign.LimitPolicy{Ceiling: cfg.Cosign.Ceiling, Window: cfg.Cosign.LimitWindow},
			SignEnabled:     caps.Has(config.CapSign),
			RejectionTTL:    cfg.Cosign.RejectionTTL,
		},
		Store:       opts.Store,
		RPC:         rpc,
		Verifier:    verifier,
		NodeContext: func() string { return registry.Current().String() },
		Logger:      log.WithComponent("engine"),
	})
	d.monitorOpts = monitor.Options{
		WS:            ws,
		Registry:      registry,
		Puller:        d.poller,
		Store:         opts.Store,
		OnSwitch:      func(e domain.Endpoint) { rpc.SetBaseURL(e.URL()) },
		Module:        cfg.Monitor.Module,
		CheckInterval: cfg.Monitor.CheckInterval,
		Threshold:     cfg.Monitor.Threshold,
		SettleDelay:   cfg.Monitor.SettleDelay,
		Logger:        log.WithComponent("monitor"),
	}

	if _, relaxed := verifier.(cosign.RelaxedVerifier); relaxed {
		d.logger.Warn().Msg("signature verification is RELAXED: originating signatures are not checked")
	}
	return d, nil
}

// Registry returns the endpoint registry.
func (d *Daemon) Registry() *endpoint.Registry {
	return d.registry
}

// Run starts every enabled component and blocks until ctx is done or one fails.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info().
		Str("capabilities", d.caps.String()).
		Str("network", d.cfg.Network.Mode).
		Str("endpoint", d.registry.Current().String()).
		Int("candidates", len(d.registry.Candidates())).
		Msg("starting co-signer")

	defer d.ws.Close()

	g, ctx := errgroup.WithContext(ctx)

	read := d.caps.Has(config.CapRead)
	tip := d.caps.Has(config.CapTip)

	if tip {
		if err := d.push.RegisterBlocks(ctx); err != nil {
			return err
		}
	}
	if read {
		if err := d.push.RegisterUnconfirmed(ctx); err != nil {
			return err
		}
	}

	if read || tip {
		// A failed first connect is recovered by the monitor's staleness check.
		if err := d.ws.Connect(ctx, d.registry.Current()); err != nil {
			d.logger.Error().Err(err).Str("endpoint", d.registry.Current().String()).Msg("initial push connect failed")
		}
	}

	if tip {
		m := monitor.New(ctx, d.monitorOpts)
		g.Go(func() error { return m.Run(ctx, d.push.Heights()) })
	}
	if read {
		g.Go(func() error { return d.poller.Run(ctx) })
	}
	g.Go(func() error { return d.engine.Run(ctx, d.queue.C()) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		d.logger.Info().Msg("co-signer stopped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	return nil
}
