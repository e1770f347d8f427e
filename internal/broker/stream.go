// internal/broker/stream.go
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Staleness window after which a streamed quote no longer short-circuits REST.
const streamQuoteTTL = 10 * time.Second

// TouchlineStream keeps a live last-traded-price cache fed by the vendor's
// websocket touchline feed. It is an optional fast path: GetQuote consults it
// first and falls back to REST when the cache is cold or stale.
type TouchlineStream struct {
	url      string
	exchange string
	userID   string
	token    func() string
	logger   *zap.Logger
	dialer   *websocket.Dialer

	mu     sync.RWMutex
	quotes map[string]Quote
	subs   map[string]struct{}

	connMu sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTouchlineStream constructs a stream. The token func is evaluated on each
// (re)connect so the stream always authenticates with the current session.
func NewTouchlineStream(wsURL, exchange, userID string, token func() string, logger *zap.Logger) *TouchlineStream {
	return &TouchlineStream{
		url:      wsURL,
		exchange: exchange,
		userID:   userID,
		token:    token,
		logger:   logger.Named("touchline"),
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		quotes:   make(map[string]Quote),
		subs:     make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Start connects and runs the read loop until the context is cancelled.
// Disconnects are retried with exponential backoff.
func (ts *TouchlineStream) Start(ctx context.Context) {
	ctx, ts.cancel = context.WithCancel(ctx)

	go func() {
		defer close(ts.done)

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = time.Second
		policy.MaxInterval = 30 * time.Second

		for {
			if ctx.Err() != nil {
				return
			}

			_, err := backoff.Retry(ctx, func() (struct{}, error) {
				return struct{}{}, ts.connect(ctx)
			}, backoff.WithBackOff(policy))
			if err != nil {
				ts.logger.Warn("Touchline connect abandoned", zap.Error(err))
				return
			}

			ts.readLoop(ctx)
		}
	}()
}

// Stop cancels the stream and waits for the read loop to exit.
func (ts *TouchlineStream) Stop() {
	if ts.cancel != nil {
		ts.cancel()
	}
	ts.connMu.Lock()
	if ts.conn != nil {
		_ = ts.conn.Close()
	}
	ts.connMu.Unlock()

	select {
	case <-ts.done:
	case <-time.After(5 * time.Second):
		ts.logger.Warn("Timeout waiting for touchline read loop to finish")
	}
}

// Subscribe registers a symbol for touchline updates.
func (ts *TouchlineStream) Subscribe(symbol string) {
	ts.mu.Lock()
	_, already := ts.subs[symbol]
	ts.subs[symbol] = struct{}{}
	ts.mu.Unlock()
	if already {
		return
	}

	ts.connMu.Lock()
	defer ts.connMu.Unlock()
	if ts.conn != nil {
		ts.sendSubscribeLocked([]string{symbol})
	}
}

// Fresh returns the cached quote for symbol if it is recent enough to use.
func (ts *TouchlineStream) Fresh(symbol string) (Quote, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	q, ok := ts.quotes[symbol]
	if !ok || time.Since(q.Time) > streamQuoteTTL {
		return Quote{}, false
	}
	return q, true
}

func (ts *TouchlineStream) connect(ctx context.Context) error {
	conn, _, err := ts.dialer.DialContext(ctx, ts.url, nil)
	if err != nil {
		return fmt.Errorf("dial touchline: %w", err)
	}

	auth := map[string]string{
		"t":          "c",
		"uid":        ts.userID,
		"actid":      ts.userID,
		"susertoken": ts.token(),
		"source":     "API",
	}
	if err := conn.WriteJSON(auth); err != nil {
		_ = conn.Close()
		return fmt.Errorf("touchline auth: %w", err)
	}

	ts.connMu.Lock()
	ts.conn = conn
	ts.mu.RLock()
	symbols := make([]string, 0, len(ts.subs))
	for s := range ts.subs {
		symbols = append(symbols, s)
	}
	ts.mu.RUnlock()
	if len(symbols) > 0 {
		ts.sendSubscribeLocked(symbols)
	}
	ts.connMu.Unlock()

	ts.logger.Info("Touchline stream connected", zap.Int("subscriptions", len(symbols)))
	return nil
}

// sendSubscribeLocked sends a touchline subscribe frame; connMu must be held.
func (ts *TouchlineStream) sendSubscribeLocked(symbols []string) {
	keys := make([]string, 0, len(symbols))
	for _, s := range symbols {
		keys = append(keys, ts.exchange+"|"+s)
	}
	frame := map[string]string{
		"t": "t",
		"k": strings.Join(keys, "#"),
	}
	if err := ts.conn.WriteJSON(frame); err != nil {
		ts.logger.Warn("Touchline subscribe failed", zap.Error(err))
	}
}

func (ts *TouchlineStream) readLoop(ctx context.Context) {
	ts.connMu.Lock()
	conn := ts.conn
	ts.connMu.Unlock()
	if conn == nil {
		return
	}
	defer func() {
		_ = conn.Close()
		ts.connMu.Lock()
		ts.conn = nil
		ts.connMu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				ts.logger.Warn("Touchline read error, reconnecting", zap.Error(err))
			}
			return
		}

		var tick struct {
			Type      string `json:"t"`
			Symbol    string `json:"ts"`
			LastPrice string `json:"lp"`
		}
		if err := json.Unmarshal(data, &tick); err != nil {
			ts.logger.Debug("Skipping malformed touchline frame", zap.Error(err))
			continue
		}
		// "tk" is the subscribe ack with a full snapshot, "tf" the delta feed.
		if (tick.Type != "tk" && tick.Type != "tf") || tick.Symbol == "" || tick.LastPrice == "" {
			continue
		}

		price, err := parsePrice(tick.LastPrice)
		if err != nil {
			continue
		}

		ts.mu.Lock()
		ts.quotes[tick.Symbol] = Quote{
			Symbol:     tick.Symbol,
			LastPrice:  price,
			Time:       time.Now(),
			FromStream: true,
		}
		ts.mu.Unlock()
	}
}
