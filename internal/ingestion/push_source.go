package ingestion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/nem"
	"nem-cosigner/internal/observability"
)

// PushSource turns push topics into height events and queued candidates.
type PushSource struct {
	ws      nem.WSClient
	queue   *Queue
	address string
	heights chan int64
	logger  zerolog.Logger
}

// PushSourceOptions contains configuration for creating a PushSource.
type PushSourceOptions struct {
	WS              nem.WSClient
	Queue           *Queue
	MultisigAddress string
	HeightBuffer    int // default 16
	Logger          zerolog.Logger
}

// NewPushSource creates a PushSource. Call Register before connecting.
func NewPushSource(opts PushSourceOptions) *PushSource {
	buf := opts.HeightBuffer
	if buf <= 0 {
		buf = 16
	}
	return &PushSource{
		ws:      opts.WS,
		queue:   opts.Queue,
		address: nem.NormalizeAddress(opts.MultisigAddress),
		heights: make(chan int64, buf),
		logger:  opts.Logger,
	}
}

// Heights delivers new block heights in transport order.
func (s *PushSource) Heights() <-chan int64 {
	return s.heights
}

// Register subscribes the block, error and unconfirmed topics.
// Registrations are replayed by the client on every (re)connect.
func (s *PushSource) Register(ctx context.Context) error {
	if err := s.RegisterBlocks(ctx); err != nil {
		return err
	}
	return s.RegisterUnconfirmed(ctx)
}

// RegisterBlocks subscribes the block and error topics only.
func (s *PushSource) RegisterBlocks(ctx context.Context) error {
	if err := s.subscribe(ctx, nem.TopicNewBlocks, s.handleBlock); err != nil {
		return err
	}
	return s.subscribe(ctx, nem.TopicErrors, s.handleError)
}

// RegisterUnconfirmed subscribes the multisig account's pending transactions.
func (s *PushSource) RegisterUnconfirmed(ctx context.Context) error {
	if err := s.subscribe(ctx, nem.TopicUnconfirmed(s.address), s.handleUnconfirmed); err != nil {
		return err
	}
	s.logger.Info().Str("multisig", s.address).Msg("watching unconfirmed transactions")
	return nil
}

func (s *PushSource) subscribe(ctx context.Context, topic string, handler nem.Handler) error {
	if err := s.ws.Subscribe(ctx, topic, handler); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (s *PushSource) handleBlock(msg nem.Message) {
	observability.RecordPushMessage(nem.TopicNewBlocks)

	var block nem.BlockJSON
	if err := json.Unmarshal(msg.Body, &block); err != nil || block.Height <= 0 {
		s.logger.Warn().Err(err).Bytes("body", msg.Body).Msg("malformed block message")
		return
	}

	select {
	case s.heights <- block.Height:
	default:
		// The monitor only needs recent heights; a stalled consumer loses old ones.
		s.logger.Warn().Int64("height", block.Height).Msg("height buffer full, dropping")
	}
}

func (s *PushSource) handleError(msg nem.Message) {
	observability.RecordPushMessage(nem.TopicErrors)
	observability.RecordPushError()
	s.logger.Error().Bytes("body", msg.Body).Msg("node reported error")
}

func (s *PushSource) handleUnconfirmed(msg nem.Message) {
	observability.RecordPushMessage("unconfirmed")

	var pair nem.TransactionMetaDataPair
	if err := json.Unmarshal(msg.Body, &pair); err != nil {
		s.logger.Warn().Err(err).Msg("malformed unconfirmed transaction message")
		return
	}
	c, err := pair.ToCandidate(domain.SourcePush)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cannot normalize unconfirmed transaction")
		return
	}
	if !c.IsMultisig() {
		return
	}
	if !s.queue.TryEnqueue(c) {
		s.logger.Warn().Str("hash", c.Hash).Msg("candidate queue full, left for the poller")
	}
}
