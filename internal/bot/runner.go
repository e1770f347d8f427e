// internal/bot/runner.go
package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"exitwatch/internal/broker"
	"exitwatch/internal/config"
	"exitwatch/internal/eventlog"
	"exitwatch/internal/logger"
	"exitwatch/internal/notify"
	"exitwatch/internal/rules"
)

// Runner assembles the session from configuration and drives it to
// completion, handling OS signals and teardown.
type Runner struct {
	log        *logger.Logger
	cfg        *config.Config
	events     *eventlog.Log
	client     *broker.Client
	stream     *broker.TouchlineStream
	notifier   notify.Notifier
	shutdown   *ShutdownHandler
	shutdownCh chan os.Signal
}

// NewRunner wires up the event log, broker client, optional quote stream and
// notifier from config. Each subsystem gets a component-tagged logger.
func NewRunner(cfg *config.Config, log *logger.Logger) (*Runner, error) {
	events := eventlog.New(log.WithComponent("events"))
	client := broker.NewClient(cfg, events, log.WithComponent("broker"))

	var notifier notify.Notifier
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, log.WithComponent("notify"))
		if err != nil {
			return nil, fmt.Errorf("init notifier: %w", err)
		}
		notifier = tg
	} else {
		notifier = notify.NewLog(log.WithComponent("notify"))
	}

	r := &Runner{
		log:        log,
		cfg:        cfg,
		events:     events,
		client:     client,
		notifier:   notifier,
		shutdown:   NewShutdownHandler(log.WithComponent("shutdown"), time.Duration(cfg.ShutdownTimeout)*time.Second),
		shutdownCh: make(chan os.Signal, 1),
	}

	if cfg.StreamQuotes {
		r.stream = broker.NewTouchlineStream(
			cfg.WebSocketURL, cfg.Exchange, cfg.Credentials.UserID,
			client.SessionToken, log.WithComponent("broker"))
		client.AttachStream(r.stream)
	}

	// Forward failures to the notifier so the operator hears about them
	// without watching the log stream.
	events.AddHandler(func(e eventlog.Entry) {
		if e.Status == eventlog.StatusError || e.Status == eventlog.StatusFailed {
			notifier.Sendf("[%s] %s", e.Status, e.Description)
		}
	})

	return r, nil
}

// Events exposes the session event log.
func (r *Runner) Events() *eventlog.Log {
	return r.events
}

// Run executes one full trading session and tears everything down afterward.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		sig := <-r.shutdownCh
		r.log.Info("Signal received: " + sig.String())
		cancel()
	}()

	sessionEnd, err := config.ParseSessionEnd(r.cfg.SessionEnd)
	if err != nil {
		return fmt.Errorf("parse session_end: %w", err)
	}

	exitRules, err := r.loadRules()
	if err != nil {
		return err
	}

	// Every line of this run shares one correlation id.
	sessionLog := r.log.WithOperation("trading_session")

	sessionCfg := SessionConfig{
		Broker:          r.client,
		Events:          r.events,
		Notifier:        r.notifier,
		Logger:          sessionLog,
		Rules:           exitRules,
		StopLossPercent: r.cfg.StopLossPercent,
		TargetPercent:   r.cfg.TargetPercent,
		PollInterval:    time.Duration(r.cfg.PollInterval) * time.Second,
		MonitorInterval: time.Duration(r.cfg.MonitorInterval) * time.Second,
		SessionEnd:      sessionEnd,
		ShutdownTimeout: time.Duration(r.cfg.ShutdownTimeout) * time.Second,
	}

	if r.stream != nil {
		sessionCfg.OnLogin = func() {
			r.stream.Start(runCtx)
			r.shutdown.AddFunc("touchline_stream", func() error {
				r.stream.Stop()
				return nil
			})
		}
		sessionCfg.Subscribe = r.stream.Subscribe
	}

	controller := NewSessionController(sessionCfg)

	runErr := controller.Run(runCtx)
	r.shutdown.Shutdown()

	sessionLog.Info("Session finished",
		zap.Int("tracked_positions", controller.Tracker().Len()),
		zap.Int("event_entries", r.events.Len()))
	return runErr
}

func (r *Runner) loadRules() (map[string]rules.Rule, error) {
	if r.cfg.RulesFile == "" {
		return nil, nil
	}

	manager := rules.NewManager(r.log.WithComponent("rules"))
	loaded, err := manager.LoadRules(r.cfg.RulesFile, r.cfg.StopLossPercent, r.cfg.TargetPercent)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return loaded, nil
}
