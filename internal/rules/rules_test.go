package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRules(t *testing.T) {
	path := writeRulesFile(t, `
rules:
  - symbol: "NIFTY24DEC24000CE"
    stop_loss_percent: 3.0
    target_percent: 8.0
  - symbol: "BANKNIFTY24DEC51000PE"
    stop_loss_percent: 1.5
    target_percent: 4.0
`)

	loaded, err := NewManager(zaptest.NewLogger(t)).LoadRules(path, 2, 5)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, 3.0, loaded["NIFTY24DEC24000CE"].StopLossPercent)
	assert.Equal(t, 8.0, loaded["NIFTY24DEC24000CE"].TargetPercent)
	assert.Equal(t, 1.5, loaded["BANKNIFTY24DEC51000PE"].StopLossPercent)
}

func TestLoadRulesClampsOutOfRangeToDefaults(t *testing.T) {
	path := writeRulesFile(t, `
rules:
  - symbol: "WILD"
    stop_loss_percent: 150
    target_percent: -1
`)

	loaded, err := NewManager(zaptest.NewLogger(t)).LoadRules(path, 2, 5)
	require.NoError(t, err)
	require.Contains(t, loaded, "WILD")

	assert.Equal(t, 2.0, loaded["WILD"].StopLossPercent, "stop above 100 falls back")
	assert.Equal(t, 5.0, loaded["WILD"].TargetPercent, "negative target falls back")
}

func TestLoadRulesSkipsInvalidEntries(t *testing.T) {
	path := writeRulesFile(t, `
rules:
  - symbol: ""
    stop_loss_percent: 2
    target_percent: 5
  - symbol: "DUP"
    stop_loss_percent: 1
    target_percent: 3
  - symbol: "DUP"
    stop_loss_percent: 9
    target_percent: 9
`)

	loaded, err := NewManager(zaptest.NewLogger(t)).LoadRules(path, 2, 5)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	// First definition wins; the duplicate is dropped.
	assert.Equal(t, 1.0, loaded["DUP"].StopLossPercent)
}

func TestLoadRulesErrors(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))

	_, err := m.LoadRules(filepath.Join(t.TempDir(), "missing.yaml"), 2, 5)
	assert.ErrorContains(t, err, "failed to read file")

	path := writeRulesFile(t, "rules: [not: valid: yaml")
	_, err = m.LoadRules(path, 2, 5)
	assert.ErrorContains(t, err, "failed to parse YAML")
}
