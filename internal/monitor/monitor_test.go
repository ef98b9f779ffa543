package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/endpoint"
	"nem-cosigner/internal/ingestion"
	"nem-cosigner/internal/nem/stub"
	"nem-cosigner/internal/storage"
	"nem-cosigner/internal/storage/memory"
)

var (
	nodeA = domain.Endpoint{Host: "node-a", Port: 7890}
	nodeB = domain.Endpoint{Host: "node-b", Port: 7890}
)

type harness struct {
	ws       *stub.WSClient
	rpc      *stub.RPCClient
	store    storage.HeightStore
	registry *endpoint.Registry
	monitor  *Monitor

	mu       sync.Mutex
	switched []domain.Endpoint
	states   []string
}

func newHarness(t *testing.T, candidates []domain.Endpoint, store storage.HeightStore, mutate func(*Options)) *harness {
	t.Helper()
	registry, err := endpoint.NewRegistry(candidates)
	require.NoError(t, err)

	h := &harness{
		ws:       stub.NewWSClient(),
		rpc:      stub.NewRPCClient(),
		store:    store,
		registry: registry,
	}
	h.rpc.SetHeight(1000)
	require.NoError(t, h.ws.Connect(context.Background(), registry.Current()))

	poller := ingestion.NewPoller(ingestion.PollerOptions{
		RPC:         h.rpc,
		Queue:       ingestion.NewQueue(1),
		HeightStore: store,
		Module:      DefaultModule,
		Logger:      zerolog.Nop(),
	})

	opts := Options{
		WS:       h.ws,
		Registry: registry,
		Puller:   poller,
		Store:    store,
		OnSwitch: func(e domain.Endpoint) {
			h.mu.Lock()
			h.switched = append(h.switched, e)
			h.states = append(h.states, h.monitor.State())
			h.mu.Unlock()
		},
		SettleDelay: time.Millisecond,
		Logger:      zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.monitor = New(context.Background(), opts)
	return h
}

func (h *harness) switches() []domain.Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Endpoint(nil), h.switched...)
}

// advance moves the monitor clock d into the future.
func (h *harness) advance(d time.Duration) {
	at := time.Now().Add(d)
	h.monitor.now = func() time.Time { return at }
}

func TestNew_BootstrapFetch(t *testing.T) {
	store := memory.NewRecordStore()
	h := newHarness(t, []domain.Endpoint{nodeA, nodeB}, store, nil)

	assert.Equal(t, StateSubscribed, h.monitor.State())
	assert.Equal(t, 1, h.rpc.HeightCallCount())

	obs, err := store.LatestHeight(context.Background(), DefaultModule)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), obs.Height)

	assert.Equal(t, DefaultCheckInterval, h.monitor.checkInterval)
	assert.Equal(t, DefaultThreshold, h.monitor.threshold)
}

func TestCheck_FreshStaysSubscribed(t *testing.T) {
	h := newHarness(t, []domain.Endpoint{nodeA, nodeB}, memory.NewRecordStore(), nil)
	h.advance(4 * time.Minute)

	assert.Equal(t, "fresh", h.monitor.check(context.Background()))
	assert.Equal(t, StateSubscribed, h.monitor.State())
	assert.Zero(t, h.ws.DisconnectCount())
	assert.Equal(t, 1, h.ws.ConnectCount())
	assert.Equal(t, nodeA, h.registry.Current())
}

func TestCheck_StaleSwitchesEndpoint(t *testing.T) {
	h := newHarness(t, []domain.Endpoint{nodeA, nodeB}, memory.NewRecordStore(), nil)
	h.advance(6 * time.Minute)

	assert.Equal(t, "stale", h.monitor.check(context.Background()))
	assert.Equal(t, StateSubscribed, h.monitor.State())

	assert.Equal(t, 2, h.rpc.HeightCallCount(), "fresh pull before switching")
	assert.Equal(t, 1, h.ws.DisconnectCount())
	assert.Equal(t, nodeB, h.ws.LastConnect())
	assert.Equal(t, nodeB, h.registry.Current())
	assert.Equal(t, []domain.Endpoint{nodeB}, h.switches())
	assert.Equal(t, []string{StateSwitching}, h.states)
	assert.True(t, h.ws.Live())
}

func TestCheck_MissingObservationIsStale(t *testing.T) {
	h := newHarness(t, []domain.Endpoint{nodeA, nodeB}, memory.NewRecordStore(), func(o *Options) {
		o.Module = "other"
	})

	assert.Equal(t, "stale", h.monitor.check(context.Background()))
	assert.Equal(t, nodeB, h.registry.Current())
}

func TestCheck_SingleHostReconnectsToCurrent(t *testing.T) {
	h := newHarness(t, []domain.Endpoint{nodeA}, memory.NewRecordStore(), nil)
	h.advance(time.Hour)

	assert.Equal(t, "stale", h.monitor.check(context.Background()))
	assert.Equal(t, StateSubscribed, h.monitor.State())
	assert.Equal(t, nodeA, h.registry.Current())
	assert.Equal(t, nodeA, h.ws.LastConnect())
	assert.Equal(t, 2, h.ws.ConnectCount())
}

func TestCheck_RepeatedSwitchesNeverStayOnHost(t *testing.T) {
	nodeC := domain.Endpoint{Host: "node-c", Port: 7890}
	h := newHarness(t, []domain.Endpoint{nodeA, nodeB, nodeC}, memory.NewRecordStore(), func(o *Options) {
		o.SettleDelay = 0
	})
	h.advance(time.Hour)

	prev := h.registry.Current()
	for i := 0; i < 20; i++ {
		h.monitor.check(context.Background())
		cur := h.registry.Current()
		assert.NotEqual(t, prev.Host, cur.Host)
		prev = cur
	}
}

func TestCheck_ReconnectFailureRetriedNextCheck(t *testing.T) {
	h := newHarness(t, []domain.Endpoint{nodeA, nodeB}, memory.NewRecordStore(), nil)
	h.advance(time.Hour)
	h.ws.SetConnectErr(errors.New("dial refused"))

	h.monitor.check(context.Background())
	assert.Equal(t, StateSubscribed, h.monitor.State())
	assert.False(t, h.ws.Live())

	h.ws.SetConnectErr(nil)
	h.monitor.check(context.Background())
	assert.True(t, h.ws.Live())
	assert.Equal(t, nodeA, h.ws.LastConnect())
}

type failingHeightStore struct {
	*memory.RecordStore
}

func (failingHeightStore) LatestHeight(context.Context, string) (*domain.HeightObservation, error) {
	return nil, errors.New("connection reset")
}

func TestCheck_StoreErrorResubscribesWithoutSwitching(t *testing.T) {
	h := newHarness(t, []domain.Endpoint{nodeA, nodeB}, failingHeightStore{memory.NewRecordStore()}, nil)

	assert.Equal(t, "store_error", h.monitor.check(context.Background()))
	assert.Equal(t, StateSubscribed, h.monitor.State())
	assert.Equal(t, 1, h.ws.DisconnectCount())
	assert.Equal(t, 2, h.ws.ConnectCount())
	assert.Equal(t, nodeA, h.ws.LastConnect())
	assert.Equal(t, nodeA, h.registry.Current())
	assert.Empty(t, h.switches())
}

func TestRun_RecordsHeightOnce(t *testing.T) {
	store := memory.NewRecordStore()
	h := newHarness(t, []domain.Endpoint{nodeA, nodeB}, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	heights := make(chan int64, 2)
	heights <- 1001
	heights <- 1001
	close(heights)

	done := make(chan error, 1)
	go func() { done <- h.monitor.Run(ctx, heights) }()

	require.Eventually(t, func() bool {
		obs, err := store.LatestHeight(context.Background(), DefaultModule)
		return err == nil && obs.Height == 1001
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	inserted, err := store.UpsertHeight(context.Background(), &domain.HeightObservation{
		Module: DefaultModule, Height: 1001, ObservedAt: time.Now().UnixMilli(),
	})
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestRun_TimerTriggersSwitch(t *testing.T) {
	h := newHarness(t, []domain.Endpoint{nodeA, nodeB}, memory.NewRecordStore(), func(o *Options) {
		o.CheckInterval = 10 * time.Millisecond
		o.Threshold = time.Nanosecond
		o.SettleDelay = 0
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.monitor.Run(ctx, make(chan int64)) }()

	require.Eventually(t, func() bool { return len(h.switches()) >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, nodeB, h.switches()[0])
}

func TestRun_FreshHeightsPreventSwitch(t *testing.T) {
	h := newHarness(t, []domain.Endpoint{nodeA, nodeB}, memory.NewRecordStore(), func(o *Options) {
		o.CheckInterval = 10 * time.Millisecond
		o.Threshold = time.Hour
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.monitor.Run(ctx, make(chan int64)), context.DeadlineExceeded)
	assert.Empty(t, h.switches())
	assert.Equal(t, StateSubscribed, h.monitor.State())
}
