// Package rules loads per-symbol exit-rule overrides.
package rules

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Rule overrides the session-wide exit percentages for one symbol.
type Rule struct {
	Symbol          string
	StopLossPercent float64
	TargetPercent   float64
}

// rulesFile is the on-disk YAML structure.
type rulesFile struct {
	Rules []struct {
		Symbol          string  `yaml:"symbol"`
		StopLossPercent float64 `yaml:"stop_loss_percent"`
		TargetPercent   float64 `yaml:"target_percent"`
	} `yaml:"rules"`
}

// Manager loads and validates rule definitions.
type Manager struct {
	logger *zap.Logger
}

// NewManager constructs a Manager with the given logger.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

func clamp(val, min, max, def float64) float64 {
	if val < min || val > max {
		return def
	}
	return val
}

// LoadRules reads symbol overrides from a YAML file. Invalid entries are
// skipped with a warning; out-of-range percentages fall back to the given
// session defaults.
func (m *Manager) LoadRules(path string, defaultStop, defaultTarget float64) (map[string]Rule, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	rules := make(map[string]Rule, len(file.Rules))
	for _, entry := range file.Rules {
		if entry.Symbol == "" {
			m.logger.Warn("Skipping rule with missing symbol")
			continue
		}
		if _, dup := rules[entry.Symbol]; dup {
			m.logger.Warn("Skipping duplicate rule", zap.String("symbol", entry.Symbol))
			continue
		}

		rules[entry.Symbol] = Rule{
			Symbol:          entry.Symbol,
			StopLossPercent: clamp(entry.StopLossPercent, 0, 100, defaultStop),
			TargetPercent:   clamp(entry.TargetPercent, 0, 1000, defaultTarget),
		}
	}

	m.logger.Info("Loaded exit rules", zap.Int("count", len(rules)))
	return rules, nil
}
