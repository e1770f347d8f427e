package logger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{Logger: zap.New(core)}, logs
}

func TestWithOperationAttachesCorrelationID(t *testing.T) {
	log, logs := newObservedLogger()

	log.WithOperation("trading_session").Info("session started")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()

	assert.Equal(t, "trading_session", fields["operation"])
	assert.Contains(t, fields, "start_time")

	id, ok := fields["correlation_id"].(string)
	require.True(t, ok)
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "correlation id must be a valid uuid")
}

func TestWithOperationIDsAreUnique(t *testing.T) {
	log, logs := newObservedLogger()

	log.WithOperation("run").Info("first")
	log.WithOperation("run").Info("second")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.NotEqual(t,
		entries[0].ContextMap()["correlation_id"],
		entries[1].ContextMap()["correlation_id"])
}

func TestWithComponentTagsEntries(t *testing.T) {
	log, logs := newObservedLogger()

	log.WithComponent("broker").Warn("request failed")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "broker", entries[0].ContextMap()["component"])
}
