// Package ethws subscribes to new chain heads over an Ethereum node's
// WebSocket endpoint. The price server flushes its cache on every header
// this adapter emits, so delivery is best effort: a dropped header only
// delays the flush until the next block.
package ethws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that Subscriber implements outbound.BlockSubscriber
var _ outbound.BlockSubscriber = (*Subscriber)(nil)

// Config holds configuration for the WebSocket head subscriber.
type Config struct {
	// WebSocketURL is the node's WebSocket endpoint (wss://... or ws://...).
	WebSocketURL string

	// ChannelBufferSize is the capacity of the header channel.
	ChannelBufferSize int

	// InitialBackoff is the delay before the first reconnect attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the reconnect delay.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each failure.
	BackoffFactor float64

	// PingInterval is how often to ping the connection.
	PingInterval time.Duration

	// ReadTimeout is the maximum silence tolerated before the connection is
	// considered dead. Must exceed the chain's block time.
	ReadTimeout time.Duration

	// Logger is the structured logger for the subscriber.
	Logger *slog.Logger
}

// ConfigDefaults returns sensible defaults for the subscriber.
func ConfigDefaults() Config {
	return Config{
		ChannelBufferSize: 16,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffFactor:     2.0,
		PingInterval:      15 * time.Second,
		ReadTimeout:       60 * time.Second,
		Logger:            slog.Default(),
	}
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type subscriptionParams struct {
	Subscription string               `json:"subscription"`
	Result       outbound.BlockHeader `json:"result"`
}

// Subscriber maintains an eth_newHeads subscription with automatic
// reconnection.
type Subscriber struct {
	config  Config
	logger  *slog.Logger
	headers chan outbound.BlockHeader
	done    chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewSubscriber creates a new WebSocket head subscriber.
func NewSubscriber(config Config) (*Subscriber, error) {
	if config.WebSocketURL == "" {
		return nil, errors.New("websocket URL is required")
	}

	defaults := ConfigDefaults()
	if config.ChannelBufferSize == 0 {
		config.ChannelBufferSize = defaults.ChannelBufferSize
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.PingInterval == 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Subscriber{
		config:  config,
		logger:  config.Logger.With("component", "ethws-subscriber"),
		headers: make(chan outbound.BlockHeader, config.ChannelBufferSize),
		done:    make(chan struct{}),
	}, nil
}

// Subscribe starts listening for new block headers via eth_newHeads.
// The subscription reconnects automatically if the connection is lost.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan outbound.BlockHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("subscriber is closed")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.connectionManager()

	return s.headers, nil
}

// connectionManager keeps the subscription alive, reconnecting with
// exponential backoff.
func (s *Subscriber) connectionManager() {
	backoff := s.config.InitialBackoff

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		default:
		}

		if err := s.connectAndSubscribe(); err != nil {
			s.logger.Warn("failed to connect", "error", err, "backoff", backoff)

			select {
			case <-s.done:
				return
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * s.config.BackoffFactor)
			if backoff > s.config.MaxBackoff {
				backoff = s.config.MaxBackoff
			}
			continue
		}

		backoff = s.config.InitialBackoff
		s.logger.Info("subscribed to new heads", "url", s.config.WebSocketURL)

		s.readLoop()

		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		default:
			s.logger.Warn("head subscription lost, reconnecting")
		}
	}
}

// connectAndSubscribe establishes the WebSocket connection and subscribes to
// newHeads.
func (s *Subscriber) connectAndSubscribe() error {
	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, s.config.WebSocketURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial websocket: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set read deadline: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	subscribeReq := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_subscribe",
		Params:  []any{"newHeads"},
	}
	if err := conn.WriteJSON(subscribeReq); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send subscription request: %w", err)
	}

	var response jsonRPCResponse
	if err := conn.ReadJSON(&response); err != nil {
		conn.Close()
		return fmt.Errorf("failed to read subscription response: %w", err)
	}
	if response.Error != nil {
		conn.Close()
		return fmt.Errorf("subscription failed: %s", response.Error.Message)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// readLoop reads headers until the connection dies, pinging periodically.
func (s *Subscriber) readLoop() {
	pingTicker := time.NewTicker(s.config.PingInterval)
	defer pingTicker.Stop()

	readErr := make(chan error, 1)
	headerChan := make(chan outbound.BlockHeader, 1)

	go func() {
		for {
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				readErr <- errors.New("connection is nil")
				return
			}

			if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
				readErr <- fmt.Errorf("failed to set read deadline: %w", err)
				return
			}

			var response jsonRPCResponse
			if err := conn.ReadJSON(&response); err != nil {
				readErr <- err
				return
			}

			if response.Method != "eth_subscription" || response.Params == nil {
				continue
			}

			var params subscriptionParams
			if err := json.Unmarshal(response.Params, &params); err != nil {
				s.logger.Warn("failed to parse subscription params", "error", err)
				continue
			}

			select {
			case headerChan <- params.Result:
			case <-s.done:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-s.done:
			s.closeConnection()
			return
		case <-s.ctx.Done():
			s.closeConnection()
			return
		case err := <-readErr:
			s.logger.Warn("read error", "error", err)
			s.closeConnection()
			return
		case header := <-headerChan:
			select {
			case s.headers <- header:
				s.logger.Debug("new head", "number", header.Number, "hash", header.Hash)
			default:
				// A dropped header only delays the next cache flush.
				s.logger.Warn("header channel full, dropping head", "number", header.Number)
			}
		case <-pingTicker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn != nil {
				deadline := time.Now().Add(s.config.PingInterval)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					s.logger.Warn("ping failed", "error", err)
					s.closeConnection()
					return
				}
			}
		}
	}
}

// closeConnection safely closes the current WebSocket connection.
func (s *Subscriber) closeConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Unsubscribe stops the subscription and closes the header channel.
func (s *Subscriber) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	if s.cancel != nil {
		s.cancel()
	}
	close(s.headers)

	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}
