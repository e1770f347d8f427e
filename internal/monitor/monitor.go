// Package monitor watches one open position until an exit threshold fires.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"exitwatch/internal/broker"
	"exitwatch/internal/eventlog"
)

// Outcome says how a monitor finished.
type Outcome string

const (
	OutcomeTarget    Outcome = "target"
	OutcomeStopLoss  Outcome = "stop_loss"
	OutcomeCancelled Outcome = "cancelled"
)

type state int

const (
	stateWatching state = iota
	stateExiting
	stateDone
)

// Result is reported back to the session controller when a monitor stops.
type Result struct {
	Symbol    string
	Outcome   Outcome
	ExitPrice float64
	Quantity  int
}

// Config holds everything a single position monitor needs.
type Config struct {
	Position        broker.Position
	StopLossPercent float64
	TargetPercent   float64
	Interval        time.Duration
	Broker          broker.Broker
	Events          *eventlog.Log
	Logger          *zap.Logger
}

// PositionMonitor polls quotes for one position and places a single closing
// order when the price crosses the stop-loss or target threshold. The loop is
// bound to the session context: cancellation terminates it without an order.
type PositionMonitor struct {
	cfg        Config
	thresholds Thresholds
	logger     *zap.Logger
	state      state
}

// New computes the thresholds for the position and returns a monitor ready to
// run. Thresholds are fixed here and never recomputed.
func New(cfg Config) *PositionMonitor {
	return &PositionMonitor{
		cfg:        cfg,
		thresholds: ComputeThresholds(cfg.Position.AveragePrice, cfg.StopLossPercent, cfg.TargetPercent),
		logger:     cfg.Logger.Named("monitor").With(zap.String("symbol", cfg.Position.Symbol)),
		state:      stateWatching,
	}
}

// Thresholds returns the derived exit prices.
func (pm *PositionMonitor) Thresholds() Thresholds {
	return pm.thresholds
}

// Run blocks until a threshold fires or the context is cancelled. Exactly one
// closing order is placed, on the first tick where price >= target or
// price <= stop-loss; exact equality counts as a hit.
func (pm *PositionMonitor) Run(ctx context.Context) (Result, error) {
	pos := pm.cfg.Position

	pm.cfg.Events.Info(fmt.Sprintf(
		"Monitoring %s with quantity %d, buy price %.2f, stop-loss %.2f, and target %.2f.",
		pos.Symbol, pos.NetQuantity, pos.AveragePrice, pm.thresholds.StopLoss, pm.thresholds.Target))

	ticker := time.NewTicker(pm.cfg.Interval)
	defer ticker.Stop()

	// First check runs immediately, the ticker paces the rest.
	for {
		if result, done := pm.check(ctx); done {
			return result, nil
		}

		select {
		case <-ctx.Done():
			pm.logger.Debug("Monitor cancelled", zap.Error(ctx.Err()))
			return Result{Symbol: pos.Symbol, Outcome: OutcomeCancelled}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// check fetches one quote and evaluates the exit conditions. A failed fetch
// is non-fatal: the error is already in the event log and the loop keeps
// polling with no retry ceiling.
func (pm *PositionMonitor) check(ctx context.Context) (Result, bool) {
	pos := pm.cfg.Position

	quote, ok := pm.cfg.Broker.GetQuote(ctx, pos.Symbol)
	if !ok {
		return Result{}, false
	}

	price := quote.LastPrice
	switch {
	case price >= pm.thresholds.Target:
		pm.cfg.Events.Success(fmt.Sprintf("Target hit for %s. Placing sell order.", pos.Symbol))
		return pm.exit(ctx, OutcomeTarget, price), true

	case price <= pm.thresholds.StopLoss:
		pm.cfg.Events.Success(fmt.Sprintf("Stop-loss hit for %s. Placing sell order.", pos.Symbol))
		return pm.exit(ctx, OutcomeStopLoss, price), true
	}

	pm.cfg.Events.Info(fmt.Sprintf(
		"%s within bounds. Current: %.2f, Stop-loss: %.2f, Target: %.2f.",
		pos.Symbol, price, pm.thresholds.StopLoss, pm.thresholds.Target))
	return Result{}, false
}

// exit places the single closing order and finishes the state machine.
func (pm *PositionMonitor) exit(ctx context.Context, outcome Outcome, price float64) Result {
	pm.state = stateExiting
	pos := pm.cfg.Position

	pm.cfg.Broker.PlaceOrder(ctx, pos.Symbol, pos.NetQuantity, broker.SideSell)

	pm.state = stateDone
	pm.logger.Info("Position closed",
		zap.String("outcome", string(outcome)),
		zap.Float64("exit_price", price))

	return Result{
		Symbol:    pos.Symbol,
		Outcome:   outcome,
		ExitPrice: price,
		Quantity:  pos.NetQuantity,
	}
}
