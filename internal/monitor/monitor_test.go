package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"exitwatch/internal/broker"
	"exitwatch/internal/eventlog"
)

type quoteStep struct {
	price float64
	ok    bool
}

type placedOrder struct {
	symbol string
	qty    int
	side   broker.OrderSide
}

// scriptedBroker replays a fixed quote sequence; once exhausted it repeats
// the last step.
type scriptedBroker struct {
	mu         sync.Mutex
	steps      []quoteStep
	idx        int
	quoteCalls int
	orders     []placedOrder
}

func (b *scriptedBroker) Login(context.Context) bool                      { return true }
func (b *scriptedBroker) ListPositions(context.Context) []broker.Position { return nil }
func (b *scriptedBroker) Logout(context.Context)                          {}

func (b *scriptedBroker) GetQuote(_ context.Context, symbol string) (broker.Quote, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.quoteCalls++
	step := b.steps[len(b.steps)-1]
	if b.idx < len(b.steps) {
		step = b.steps[b.idx]
		b.idx++
	}
	if !step.ok {
		return broker.Quote{}, false
	}
	return broker.Quote{Symbol: symbol, LastPrice: step.price, Time: time.Now()}, true
}

func (b *scriptedBroker) PlaceOrder(_ context.Context, symbol string, qty int, side broker.OrderSide) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, placedOrder{symbol: symbol, qty: qty, side: side})
}

func (b *scriptedBroker) placedOrders() []placedOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]placedOrder, len(b.orders))
	copy(out, b.orders)
	return out
}

func (b *scriptedBroker) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.quoteCalls
}

func newTestMonitor(t *testing.T, b broker.Broker, stopPct, targetPct float64) *PositionMonitor {
	t.Helper()
	return New(Config{
		Position: broker.Position{
			Symbol:       "NIFTY24DEC24000CE",
			NetQuantity:  50,
			AveragePrice: 100,
		},
		StopLossPercent: stopPct,
		TargetPercent:   targetPct,
		Interval:        time.Millisecond,
		Broker:          b,
		Events:          eventlog.New(zaptest.NewLogger(t)),
		Logger:          zaptest.NewLogger(t),
	})
}

func TestMonitorTargetHitOnThirdTick(t *testing.T) {
	b := &scriptedBroker{steps: []quoteStep{
		{price: 99, ok: true},
		{price: 100, ok: true},
		{price: 106, ok: true},
	}}

	mon := newTestMonitor(t, b, 2, 5)
	require.Equal(t, 98.0, mon.Thresholds().StopLoss)
	require.Equal(t, 105.0, mon.Thresholds().Target)

	result, err := mon.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeTarget, result.Outcome)
	assert.Equal(t, 106.0, result.ExitPrice)
	assert.Equal(t, 3, b.calls())

	orders := b.placedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, "NIFTY24DEC24000CE", orders[0].symbol)
	assert.Equal(t, 50, orders[0].qty)
	assert.Equal(t, broker.SideSell, orders[0].side)
}

func TestMonitorStopLossHitOnFirstTick(t *testing.T) {
	b := &scriptedBroker{steps: []quoteStep{{price: 97, ok: true}}}

	mon := newTestMonitor(t, b, 2, 5)
	result, err := mon.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeStopLoss, result.Outcome)
	assert.Equal(t, 97.0, result.ExitPrice)
	assert.Equal(t, 1, b.calls())
	require.Len(t, b.placedOrders(), 1)
}

func TestMonitorExactEqualityCountsAsHit(t *testing.T) {
	tests := []struct {
		name    string
		price   float64
		outcome Outcome
	}{
		{"target boundary", 105, OutcomeTarget},
		{"stop-loss boundary", 98, OutcomeStopLoss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &scriptedBroker{steps: []quoteStep{{price: tt.price, ok: true}}}

			result, err := newTestMonitor(t, b, 2, 5).Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, result.Outcome)
		})
	}
}

func TestMonitorSurvivesFetchFailures(t *testing.T) {
	b := &scriptedBroker{steps: []quoteStep{
		{ok: false},
		{ok: false},
		{price: 110, ok: true},
	}}

	result, err := newTestMonitor(t, b, 2, 5).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeTarget, result.Outcome)
	assert.Equal(t, 3, b.calls())
	require.Len(t, b.placedOrders(), 1)
}

func TestMonitorPlacesExactlyOneOrder(t *testing.T) {
	// Every tick after the first also crosses the stop; the monitor must
	// stop after the first hit.
	b := &scriptedBroker{steps: []quoteStep{
		{price: 97, ok: true},
		{price: 96, ok: true},
		{price: 95, ok: true},
	}}

	_, err := newTestMonitor(t, b, 2, 5).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, b.placedOrders(), 1)
}

func TestMonitorCancelledWithoutOrder(t *testing.T) {
	// Price stays inside the bounds forever.
	b := &scriptedBroker{steps: []quoteStep{{price: 100, ok: true}}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := newTestMonitor(t, b, 2, 5).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, OutcomeCancelled, result.Outcome)
	assert.Empty(t, b.placedOrders())
}
