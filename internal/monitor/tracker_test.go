package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exitwatch/internal/broker"
)

func TestTrackerNeverReadmitsASymbol(t *testing.T) {
	tracker := NewTracker()
	pos := broker.Position{Symbol: "BANKNIFTY24DEC51000PE", NetQuantity: 25, AveragePrice: 310}

	require.True(t, tracker.Track(pos))
	assert.True(t, tracker.Seen(pos.Symbol))

	// The broker reopening the same symbol later must not re-admit it,
	// even with different position data.
	reopened := pos
	reopened.AveragePrice = 450
	assert.False(t, tracker.Track(reopened))
	assert.Equal(t, 1, tracker.Len())
}

func TestTrackerSnapshot(t *testing.T) {
	tracker := NewTracker()
	tracker.Track(broker.Position{Symbol: "A"})
	tracker.Track(broker.Position{Symbol: "B"})

	assert.ElementsMatch(t, []string{"A", "B"}, tracker.Symbols())
	assert.False(t, tracker.Seen("C"))
}
