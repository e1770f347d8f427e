// internal/bot/session.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"exitwatch/internal/broker"
	"exitwatch/internal/eventlog"
	"exitwatch/internal/monitor"
	"exitwatch/internal/notify"
	"exitwatch/internal/rules"
)

// ErrLoginFailed aborts the run before any polling happens.
var ErrLoginFailed = errors.New("broker login failed")

// SessionConfig wires a session controller.
type SessionConfig struct {
	Broker          broker.Broker
	Events          *eventlog.Log
	Notifier        notify.Notifier
	Logger          *zap.Logger
	Rules           map[string]rules.Rule
	StopLossPercent float64
	TargetPercent   float64
	PollInterval    time.Duration
	MonitorInterval time.Duration
	SessionEnd      time.Time
	ShutdownTimeout time.Duration

	// OnLogin runs once after a successful login (e.g. to start the quote
	// stream). Subscribe is called for every newly tracked symbol. Both are
	// optional.
	OnLogin   func()
	Subscribe func(symbol string)

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// SessionController drives one trading session: login, discover positions,
// spawn one supervised monitor per newly seen position, stop at the cutoff.
type SessionController struct {
	cfg     SessionConfig
	tracker *monitor.Tracker
	logger  *zap.Logger
}

// NewSessionController creates a controller with an empty tracked set.
func NewSessionController(cfg SessionConfig) *SessionController {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SessionController{
		cfg:     cfg,
		tracker: monitor.NewTracker(),
		logger:  cfg.Logger.Named("session"),
	}
}

// Tracker exposes the tracked set for inspection.
func (s *SessionController) Tracker() *monitor.Tracker {
	return s.tracker
}

// Run executes the whole session. A failed login aborts immediately: no
// polling, no orders, no logout. At cutoff (or outer cancellation) in-flight
// monitors are cancelled and drained, bounded by the shutdown timeout, before
// the controller logs out.
func (s *SessionController) Run(ctx context.Context) error {
	s.cfg.Events.Info("Starting the trading session.")

	if !s.cfg.Broker.Login(ctx) {
		s.cfg.Events.Error("Exiting due to failed login.")
		return ErrLoginFailed
	}
	if s.cfg.OnLogin != nil {
		s.cfg.OnLogin()
	}

	monitorCtx, cancelMonitors := context.WithCancel(ctx)
	defer cancelMonitors()
	g, gCtx := errgroup.WithContext(monitorCtx)

	s.pollPositions(ctx, g, gCtx)

	// Cutoff reached (or the outer context fired). Monitors do not outlive
	// the session: cancel and drain them before logging out.
	if ctx.Err() != nil {
		s.cfg.Events.Info("Session interrupted; stopping monitors.")
	} else {
		s.cfg.Events.Info("Session cutoff reached; stopping monitors.")
	}
	cancelMonitors()
	s.drainMonitors(g)

	// Logout must proceed even when the outer context is already cancelled.
	logoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.cfg.Broker.Logout(logoutCtx)

	s.cfg.Events.Info("Shutting down trading session.")
	return nil
}

// pollPositions loops until the cutoff, launching a monitor for every
// position whose symbol has not been seen this session.
func (s *SessionController) pollPositions(ctx context.Context, g *errgroup.Group, monitorCtx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for s.cfg.Now().Before(s.cfg.SessionEnd) {
		positions := s.cfg.Broker.ListPositions(ctx)
		for _, pos := range positions {
			if !s.tracker.Track(pos) {
				continue
			}
			s.cfg.Events.Info(fmt.Sprintf("New position detected: %s.", pos.Symbol))
			s.launchMonitor(g, monitorCtx, pos)
		}

		s.cfg.Events.Info("Waiting before the next position fetch.")
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// launchMonitor resolves per-symbol overrides and runs the monitor inside the
// supervised group.
func (s *SessionController) launchMonitor(g *errgroup.Group, ctx context.Context, pos broker.Position) {
	stopPct, targetPct := s.cfg.StopLossPercent, s.cfg.TargetPercent
	if rule, ok := s.cfg.Rules[pos.Symbol]; ok {
		stopPct, targetPct = rule.StopLossPercent, rule.TargetPercent
		s.logger.Info("Applying exit rule override",
			zap.String("symbol", pos.Symbol),
			zap.Float64("stop_loss_percent", stopPct),
			zap.Float64("target_percent", targetPct))
	}

	if s.cfg.Subscribe != nil {
		s.cfg.Subscribe(pos.Symbol)
	}

	mon := monitor.New(monitor.Config{
		Position:        pos,
		StopLossPercent: stopPct,
		TargetPercent:   targetPct,
		Interval:        s.cfg.MonitorInterval,
		Broker:          s.cfg.Broker,
		Events:          s.cfg.Events,
		Logger:          s.cfg.Logger,
	})

	g.Go(func() error {
		result, err := mon.Run(ctx)
		if err != nil {
			// Cancellation at cutoff, not a failure.
			return nil
		}

		if s.cfg.Notifier != nil {
			verb := "Target"
			if result.Outcome == monitor.OutcomeStopLoss {
				verb = "Stop-loss"
			}
			s.cfg.Notifier.Sendf("%s hit for %s: closed %d @ %.2f",
				verb, result.Symbol, result.Quantity, result.ExitPrice)
		}
		return nil
	})
}

// drainMonitors waits for the supervised group, bounded by the shutdown
// timeout so one hung broker call cannot stall the whole shutdown.
func (s *SessionController) drainMonitors(g *errgroup.Group) {
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
		s.logger.Debug("All monitors finished")
	case <-time.After(timeout):
		s.logger.Warn("Timeout waiting for monitors to finish",
			zap.Duration("timeout", timeout))
	}
}
