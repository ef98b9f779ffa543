package nem

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"nem-cosigner/internal/domain"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages. SockJS heartbeats arrive every 25s.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds dial plus the STOMP CONNECT exchange.
	HandshakeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
	}
}

// subscription is one registered topic.
type subscription struct {
	id      string
	topic   string
	handler Handler
}

// WSClientImpl implements WSClient with STOMP over a SockJS websocket.
type WSClientImpl struct {
	config  WSClientConfig
	logger  zerolog.Logger
	onError func(error)

	// conn, endpoint, session and loopDone are guarded by connMu.
	// session increments on every connect and disconnect so a read loop
	// can tell whether its transport is still the live one.
	connMu   sync.Mutex
	conn     *websocket.Conn
	endpoint domain.Endpoint
	session  uint64
	loopDone chan struct{}

	// writeMu serializes writers; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	// subs maps topic to registration, replayed after reconnect
	subs   map[string]*subscription
	subsMu sync.RWMutex
	subSeq atomic.Uint64

	closed       atomic.Bool
	reconnecting atomic.Bool
	done         chan struct{}
	wg           sync.WaitGroup
}

// WSOption configures WSClientImpl.
type WSOption func(*WSClientImpl)

// WithErrorHandler sets the callback for transport errors that are not
// dropped connections. Dropped connections are retried internally.
func WithErrorHandler(fn func(error)) WSOption {
	return func(c *WSClientImpl) {
		c.onError = fn
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) WSOption {
	return func(c *WSClientImpl) {
		c.logger = logger
	}
}

// NewWSClient creates an unconnected client. Call Connect to open the transport.
func NewWSClient(config *WSClientConfig, opts ...WSOption) *WSClientImpl {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClientImpl{
		config: cfg,
		logger: zerolog.Nop(),
		subs:   make(map[string]*subscription),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Start ping goroutine
	c.wg.Add(1)
	go c.pingLoop()

	return c
}

// Connect dials endpoint, performs the STOMP handshake and replays all
// registered topics.
func (c *WSClientImpl) Connect(ctx context.Context, endpoint domain.Endpoint) error {
	c.connMu.Lock()
	expect := c.session
	c.connMu.Unlock()
	return c.connect(ctx, endpoint, expect)
}

var errSuperseded = errors.New("connection superseded")

// connect installs a new transport unless another connect or disconnect
// happened since expect was read.
func (c *WSClientImpl) connect(ctx context.Context, endpoint domain.Endpoint, expect uint64) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	conn, err := c.dial(ctx, endpoint)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	if c.closed.Load() || c.session != expect {
		c.connMu.Unlock()
		conn.Close()
		return errSuperseded
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.session++
	session := c.session
	c.conn = conn
	c.endpoint = endpoint
	loopDone := make(chan struct{})
	c.loopDone = loopDone
	c.connMu.Unlock()

	c.wg.Add(1)
	go c.readLoop(conn, session, loopDone)

	c.logger.Info().Str("endpoint", endpoint.String()).Msg("push channel connected")

	return c.resubscribeAll(conn)
}

// dial opens the websocket and completes the STOMP CONNECT exchange.
func (c *WSClientImpl) dial(ctx context.Context, endpoint domain.Endpoint) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	// SockJS session path: /<server>/<session>/websocket
	url := fmt.Sprintf("%s/%03d/%s/websocket", endpoint.WSURL(), rand.IntN(1000), randomSessionID())

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", endpoint, err)
	}

	if err := c.handshake(conn, endpoint); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *WSClientImpl) handshake(conn *websocket.Conn, endpoint domain.Endpoint) error {
	conn.SetReadDeadline(time.Now().Add(c.config.HandshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	sentConnect := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stomp handshake: %w", err)
		}
		msg, err := sockjsDecode(data)
		if err != nil {
			return fmt.Errorf("stomp handshake: %w", err)
		}

		switch msg.Kind {
		case sockOpen:
			if sentConnect {
				continue
			}
			connect := newFrame(cmdConnect, map[string]string{
				"accept-version": "1.1,1.0",
				"heart-beat":     "0,0",
				"host":           endpoint.Host,
			}, nil)
			if err := c.write(conn, connect); err != nil {
				return fmt.Errorf("write connect: %w", err)
			}
			sentConnect = true
		case sockHeartbeat:
			continue
		case sockClose:
			return fmt.Errorf("stomp handshake: server closed (%d %s)", msg.CloseCode, msg.CloseReason)
		case sockArray:
			for _, f := range msg.Frames {
				switch f.Command {
				case cmdConnected:
					return nil
				case cmdError:
					return fmt.Errorf("stomp handshake: %s", f.Headers["message"])
				}
			}
		}
	}
}

// Subscribe registers handler for topic and subscribes on the live transport.
// Re-registering a topic replaces its handler without a second listener.
func (c *WSClientImpl) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if topic == "" || handler == nil {
		return fmt.Errorf("subscribe: topic and handler are required")
	}

	c.subsMu.Lock()
	if existing, ok := c.subs[topic]; ok {
		existing.handler = handler
		c.subsMu.Unlock()
		return nil
	}
	sub := &subscription{
		id:      "sub-" + strconv.FormatUint(c.subSeq.Add(1), 10),
		topic:   topic,
		handler: handler,
	}
	c.subs[topic] = sub
	c.subsMu.Unlock()

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		// Replayed on next Connect
		return nil
	}
	return c.subscribeOn(conn, sub)
}

// subscribeOn sends SUBSCRIBE for sub. Account topics also need an
// account registration message before NIS publishes to them.
func (c *WSClientImpl) subscribeOn(conn *websocket.Conn, sub *subscription) error {
	frames := []*frame{
		newFrame(cmdSubscribe, map[string]string{"id": sub.id, "destination": sub.topic}, nil),
	}
	if account, ok := strings.CutPrefix(sub.topic, "/unconfirmed/"); ok {
		body := fmt.Sprintf(`{"account":"%s"}`, account)
		frames = append(frames, newFrame(cmdSend, map[string]string{"destination": "/w/api/account/subscribe"}, []byte(body)))
	}
	if err := c.write(conn, frames...); err != nil {
		return fmt.Errorf("write subscribe %s: %w", sub.topic, err)
	}
	c.logger.Debug().Str("topic", sub.topic).Str("id", sub.id).Msg("subscribed")
	return nil
}

// resubscribeAll replays every registration onto conn.
func (c *WSClientImpl) resubscribeAll(conn *websocket.Conn) error {
	c.subsMu.RLock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subsMu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := c.subscribeOn(conn, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Disconnect unsubscribes every topic, closes the transport and waits for
// the read loop to exit. Registrations are kept for the next Connect.
func (c *WSClientImpl) Disconnect(ctx context.Context) error {
	c.connMu.Lock()
	conn := c.conn
	loopDone := c.loopDone
	c.conn = nil
	c.loopDone = nil
	c.session++
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}

	c.subsMu.RLock()
	frames := make([]*frame, 0, len(c.subs)+1)
	for _, s := range c.subs {
		frames = append(frames, newFrame(cmdUnsubscribe, map[string]string{"id": s.id}, nil))
	}
	c.subsMu.RUnlock()
	frames = append(frames, newFrame(cmdDisconnect, nil, nil))

	if err := c.write(conn, frames...); err != nil {
		c.logger.Debug().Err(err).Msg("write unsubscribe on disconnect")
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	conn.Close()

	select {
	case <-loopDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.logger.Info().Msg("push channel disconnected")
	return nil
}

// Endpoint returns the endpoint of the last successful Connect.
func (c *WSClientImpl) Endpoint() domain.Endpoint {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.endpoint
}

// Connected reports whether a transport is installed.
func (c *WSClientImpl) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.session++
	c.connMu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}

	c.wg.Wait()
	return nil
}

// current reports whether session is still the live transport.
func (c *WSClientImpl) current(session uint64) bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.session == session
}

// readLoop reads messages from one transport and dispatches to handlers.
func (c *WSClientImpl) readLoop(conn *websocket.Conn, session uint64, loopDone chan struct{}) {
	defer c.wg.Done()
	defer close(loopDone)

	for {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || !c.current(session) {
				return
			}

			if IsConnectionLost(err) {
				c.logger.Warn().Err(err).Msg("push connection lost, reconnecting to same endpoint")
				if !c.reconnecting.Swap(true) {
					go c.reconnect(session)
				}
				return
			}

			c.reportError(fmt.Errorf("push transport: %w", err))
			return
		}

		c.handleMessage(data)
	}
}

// reconnect re-dials the same endpoint with exponential backoff until it
// succeeds, the client closes, or the owner reconnects or disconnects.
func (c *WSClientImpl) reconnect(session uint64) {
	defer c.reconnecting.Store(false)

	delay := c.config.ReconnectDelay
	endpoint := c.Endpoint()

	for {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		if !c.current(session) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.config.HandshakeTimeout+c.config.WriteTimeout)
		err := c.connect(ctx, endpoint, session)
		cancel()

		if err == nil {
			return
		}
		if errors.Is(err, errSuperseded) || errors.Is(err, ErrClientClosed) {
			return
		}
		c.logger.Warn().Err(err).Dur("retry_in", delay).Msg("reconnect failed")

		// Exponential backoff
		delay *= 2
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
	}
}

// handleMessage processes an incoming SockJS message.
func (c *WSClientImpl) handleMessage(data []byte) {
	msg, err := sockjsDecode(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("undecodable push message")
		return
	}

	switch msg.Kind {
	case sockOpen, sockHeartbeat:
		return
	case sockClose:
		// The transport read that follows reports the drop
		c.logger.Warn().Int("code", msg.CloseCode).Str("reason", msg.CloseReason).Msg("server closed push session")
		return
	}

	for _, f := range msg.Frames {
		switch f.Command {
		case cmdMessage:
			c.dispatch(f)
		case cmdError:
			c.reportError(fmt.Errorf("stomp error: %s", f.Headers["message"]))
		case cmdReceipt, cmdConnected:
		default:
			c.logger.Debug().Str("command", f.Command).Msg("ignoring stomp frame")
		}
	}
}

// dispatch delivers a MESSAGE frame to its topic handler.
func (c *WSClientImpl) dispatch(f *frame) {
	topic := f.Headers["destination"]
	subID := f.Headers["subscription"]

	c.subsMu.RLock()
	sub, ok := c.subs[topic]
	if !ok && subID != "" {
		for _, s := range c.subs {
			if s.id == subID {
				sub, ok = s, true
				break
			}
		}
	}
	c.subsMu.RUnlock()

	if !ok {
		return
	}
	sub.handler(Message{Topic: sub.topic, Body: f.Body})
}

func (c *WSClientImpl) reportError(err error) {
	c.logger.Error().Err(err).Msg("push transport error")
	if c.onError != nil {
		c.onError(err)
	}
}

// write sends STOMP frames as one SockJS message.
func (c *WSClientImpl) write(conn *websocket.Conn, frames ...*frame) error {
	payload, err := sockjsEncode(frames...)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()
			if conn == nil {
				continue
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				// Connection might be dead, reader will handle reconnect
				c.logger.Debug().Err(err).Msg("ping failed")
			}
			c.writeMu.Unlock()
		}
	}
}

const sessionAlphabet = "abcdefghijklmnopqrstuvwxyz012345"

func randomSessionID() string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = sessionAlphabet[rand.IntN(len(sessionAlphabet))]
	}
	return string(b)
}
