// Package monitor keeps the push subscription alive by watching chain
// height recency and failing over to another node when it goes stale.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/endpoint"
	"nem-cosigner/internal/nem"
	"nem-cosigner/internal/observability"
	"nem-cosigner/internal/storage"
)

// Monitor states.
const (
	StateSubscribed             = "SUBSCRIBED"
	StateAwaitingStalenessCheck = "AWAITING_STALENESS_CHECK"
	StateSwitching              = "SWITCHING"
)

var allStates = []string{StateSubscribed, StateAwaitingStalenessCheck, StateSwitching}

// Monitor events.
const (
	eventCheck       = "check"
	eventFresh       = "fresh"
	eventStale       = "stale"
	eventResubscribe = "resubscribe"
	eventSwitched    = "switched"
)

// Defaults for the staleness check.
const (
	DefaultCheckInterval = 10 * time.Minute
	DefaultThreshold     = 5 * time.Minute
	DefaultSettleDelay   = 3 * time.Second
	DefaultModule        = "monitor"
)

// HeightPuller is the pull path shared with the fallback poller.
type HeightPuller interface {
	FetchHeight(ctx context.Context) (int64, error)
}

// Options contains configuration for creating a Monitor.
type Options struct {
	WS       nem.WSClient
	Registry *endpoint.Registry
	Puller   HeightPuller
	Store    storage.HeightStore
	// OnSwitch is called with the new endpoint before the push client reconnects,
	// so request/response clients can follow it.
	OnSwitch func(domain.Endpoint)

	Module        string
	CheckInterval time.Duration
	Threshold     time.Duration
	SettleDelay   time.Duration
	Logger        zerolog.Logger
}

// Monitor is the connection health state machine. Run owns all transitions.
type Monitor struct {
	machine  *fsm.FSM
	ws       nem.WSClient
	registry *endpoint.Registry
	puller   HeightPuller
	store    storage.HeightStore
	onSwitch func(domain.Endpoint)

	module        string
	checkInterval time.Duration
	threshold     time.Duration
	settle        time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

// New creates a Monitor in SUBSCRIBED and performs one bootstrap height fetch.
// A failed bootstrap is logged; the staleness check covers it.
func New(ctx context.Context, opts Options) *Monitor {
	m := &Monitor{
		ws:            opts.WS,
		registry:      opts.Registry,
		puller:        opts.Puller,
		store:         opts.Store,
		onSwitch:      opts.OnSwitch,
		module:        opts.Module,
		checkInterval: opts.CheckInterval,
		threshold:     opts.Threshold,
		settle:        opts.SettleDelay,
		logger:        opts.Logger,
		now:           time.Now,
	}
	if m.module == "" {
		m.module = DefaultModule
	}
	if m.checkInterval <= 0 {
		m.checkInterval = DefaultCheckInterval
	}
	if m.threshold <= 0 {
		m.threshold = DefaultThreshold
	}
	if m.settle < 0 {
		m.settle = 0
	}

	m.machine = fsm.NewFSM(
		StateSubscribed,
		fsm.Events{
			{Name: eventCheck, Src: []string{StateSubscribed}, Dst: StateAwaitingStalenessCheck},
			{Name: eventFresh, Src: []string{StateAwaitingStalenessCheck}, Dst: StateSubscribed},
			{Name: eventResubscribe, Src: []string{StateAwaitingStalenessCheck}, Dst: StateSubscribed},
			{Name: eventStale, Src: []string{StateAwaitingStalenessCheck}, Dst: StateSwitching},
			{Name: eventSwitched, Src: []string{StateSwitching}, Dst: StateSubscribed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				observability.SetMonitorState(e.Dst, allStates)
				m.logger.Debug().Str("from", e.Src).Str("to", e.Dst).Msg("monitor state")
			},
		},
	)
	observability.SetMonitorState(StateSubscribed, allStates)

	if h, err := m.puller.FetchHeight(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("bootstrap height fetch failed")
	} else {
		m.logger.Info().Int64("height", h).Msg("bootstrap height fetched")
	}
	return m
}

// State returns the current state.
func (m *Monitor) State() string {
	return m.machine.Current()
}

// Run consumes new-block heights and runs the staleness timer until ctx is done.
func (m *Monitor) Run(ctx context.Context, heights <-chan int64) error {
	timer := time.NewTimer(m.checkInterval)
	defer timer.Stop()

	m.logger.Info().
		Str("endpoint", m.registry.Current().String()).
		Dur("interval", m.checkInterval).
		Dur("threshold", m.threshold).
		Msg("health monitor started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case h, ok := <-heights:
			if !ok {
				heights = nil
				continue
			}
			m.recordHeight(ctx, h)
		case <-timer.C:
			// The timer stays disarmed until check returns, so switches never overlap.
			m.check(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			timer.Reset(m.checkInterval)
		}
	}
}

// recordHeight upserts a push-observed height. Duplicates are ignored.
func (m *Monitor) recordHeight(ctx context.Context, height int64) {
	obs := &domain.HeightObservation{
		Module:     m.module,
		Height:     height,
		ObservedAt: m.now().UnixMilli(),
	}
	stored, err := m.store.UpsertHeight(ctx, obs)
	if err != nil {
		m.logger.Error().Err(err).Int64("height", height).Msg("record height")
		return
	}
	observability.RecordHeight(height, stored, float64(obs.ObservedAt)/1000)
	if stored {
		m.logger.Debug().Int64("height", height).Msg("new block")
	}
}

// check runs one staleness check and returns the result label.
func (m *Monitor) check(ctx context.Context) string {
	m.fire(ctx, eventCheck)

	obs, err := m.store.LatestHeight(ctx, m.module)
	switch {
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		observability.RecordStalenessCheck("store_error")
		m.logger.Error().Err(err).Msg("staleness check could not read heights, resubscribing")
		m.resubscribe(ctx)
		m.fire(ctx, eventResubscribe)
		return "store_error"

	case err == nil && m.now().Sub(time.UnixMilli(obs.ObservedAt)) <= m.threshold:
		observability.RecordStalenessCheck("fresh")
		m.fire(ctx, eventFresh)
		return "fresh"
	}

	observability.RecordStalenessCheck("stale")
	lastEvent := m.logger.Warn()
	if obs != nil {
		lastEvent = lastEvent.Int64("last_height", obs.Height).Time("observed_at", time.UnixMilli(obs.ObservedAt))
	}
	lastEvent.Str("endpoint", m.registry.Current().String()).Msg("push channel stale, switching endpoint")

	m.fire(ctx, eventStale)
	m.switchEndpoint(ctx)
	m.fire(ctx, eventSwitched)
	return "stale"
}

// switchEndpoint pulls once, settles, then moves the push channel to a
// different node. Failures leave the next check to retry.
func (m *Monitor) switchEndpoint(ctx context.Context) {
	if _, err := m.puller.FetchHeight(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("pre-switch height fetch failed")
	}

	select {
	case <-time.After(m.settle):
	case <-ctx.Done():
		return
	}

	if err := m.ws.Disconnect(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("disconnect before switch")
	}

	reason := "stale"
	next, err := m.registry.PickDifferent()
	if err != nil {
		if !errors.Is(err, endpoint.ErrNoAlternative) {
			m.logger.Error().Err(err).Msg("pick endpoint")
		}
		reason = "no_alternative"
		next = m.registry.Current()
		m.logger.Warn().Str("endpoint", next.String()).Msg("no alternative endpoint, reconnecting to current")
	}
	if err := m.registry.SetCurrent(next); err != nil {
		m.logger.Error().Err(err).Msg("set endpoint")
		return
	}
	if m.onSwitch != nil {
		m.onSwitch(next)
	}
	observability.RecordEndpointSwitch(reason)

	if err := m.ws.Connect(ctx, next); err != nil {
		m.logger.Error().Err(err).Str("endpoint", next.String()).Msg("reconnect failed")
		return
	}
	m.logger.Info().Str("endpoint", next.String()).Msg("push channel switched")
}

// resubscribe reconnects to the current endpoint, replaying all topics.
func (m *Monitor) resubscribe(ctx context.Context) {
	if err := m.ws.Disconnect(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("disconnect before resubscribe")
	}
	current := m.registry.Current()
	observability.RecordEndpointSwitch("resubscribe")
	if err := m.ws.Connect(ctx, current); err != nil {
		m.logger.Error().Err(err).Str("endpoint", current.String()).Msg("resubscribe failed")
	}
}

func (m *Monitor) fire(ctx context.Context, event string) {
	if err := m.machine.Event(ctx, event); err != nil {
		m.logger.Error().Err(err).Str("event", event).Str("state", m.machine.Current()).Msg("monitor transition")
	}
}
