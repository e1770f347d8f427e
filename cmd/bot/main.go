// ====================================
// File: cmd/bot/main.go
// ====================================
package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"exitwatch/internal/bot"
	"exitwatch/internal/config"
	"exitwatch/internal/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig("configs/config.yaml")
	if err != nil {
		fallback, _ := zap.NewDevelopment()
		fallback.Fatal("Failed to load configuration", zap.Error(err))
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting position exit watcher")

	runner, err := bot.NewRunner(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize runner", zap.Error(err))
	}

	if err := runner.Run(ctx); err != nil {
		log.Fatal("Session error", zap.Error(err))
	}
}
