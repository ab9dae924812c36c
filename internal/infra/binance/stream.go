package binance

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	// DefaultWSURL is the Binance combined-stream websocket endpoint.
	DefaultWSURL = "wss://stream.binance.com:9443"

	handshakeTimeout = 10 * time.Second
	maxBackoffShift  = 5 // caps reconnect delay at 2^5 = 32s
	staleAfter       = 30 * time.Second
)

type streamPrice struct {
	price decimal.Decimal
	at    time.Time
}

// Stream keeps a last-price cache warm from the Binance miniTicker
// combined stream. FetchTicker consults it before falling back to
// REST, so a dropped connection degrades to polling instead of failing.
type Stream struct {
	wsURL   string
	symbols []string

	mu        sync.RWMutex
	prices    map[string]streamPrice
	connected bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewStream creates a stream for the configured pairs ("BTC/USDT", ...).
func NewStream(wsURL string, symbols []string) *Stream {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &Stream{
		wsURL:   wsURL,
		symbols: symbols,
		prices:  make(map[string]streamPrice),
		logger:  slog.Default().With("module", "binance_stream"),
	}
}

// Connect starts the connection loop in the background.
func (s *Stream) Connect(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.connectionLoop(ctx)
	return nil
}

// Disconnect stops the stream and waits for the reader to exit.
func (s *Stream) Disconnect() {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
}

// IsConnected reports whether a websocket session is currently up.
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// LastPrice returns the cached price for a pair if it is fresh enough
// to act on.
func (s *Stream) LastPrice(symbol string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[exchangeSymbol(symbol)]
	if !ok || time.Since(p.at) > staleAfter {
		return decimal.Decimal{}, false
	}
	return p.price, true
}

func (s *Stream) streamURL() string {
	parts := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		parts = append(parts, strings.ToLower(exchangeSymbol(sym))+"@miniTicker")
	}
	return s.wsURL + "/stream?streams=" + strings.Join(parts, "/")
}

func (s *Stream) connectionLoop(ctx context.Context) {
	defer s.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := s.connect(ctx)
		if err != nil {
			retryCount++
			delay := backoff(retryCount)
			s.logger.Warn("stream connection failed",
				slog.Any("error", err),
				slog.Int("retry", retryCount),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		retryCount = 0
		s.setConnected(true)
		s.logger.Info("stream connected", slog.Int("symbols", len(s.symbols)))
		s.readLoop(ctx, conn)
		s.setConnected(false)
	}
}

func (s *Stream) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.streamURL(), nil)
	return conn, err
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		// Unblocks ReadMessage when the context is cancelled
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("stream read failed", slog.Any("error", err))
			}
			return
		}

		var env streamEnvelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Data.Symbol == "" {
			continue
		}
		price, err := decimal.NewFromString(env.Data.Close)
		if err != nil {
			continue
		}

		s.mu.Lock()
		s.prices[env.Data.Symbol] = streamPrice{price: price, at: time.Now()}
		s.mu.Unlock()
	}
}

func (s *Stream) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func backoff(retry int) time.Duration {
	if retry > maxBackoffShift {
		retry = maxBackoffShift
	}
	return time.Duration(1<<uint(retry)) * time.Second
}
