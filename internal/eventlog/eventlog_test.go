package eventlog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLogPreservesAppendOrder(t *testing.T) {
	log := New(zaptest.NewLogger(t))

	log.Info("Starting the trading session.")
	log.Success("Order placed.")
	log.Failed("Order rejected.")
	log.Error("Exiting due to failed login.")

	entries := log.Entries()
	require.Len(t, entries, 4)

	assert.Equal(t, StatusInfo, entries[0].Status)
	assert.Equal(t, StatusSuccess, entries[1].Status)
	assert.Equal(t, StatusFailed, entries[2].Status)
	assert.Equal(t, StatusError, entries[3].Status)
	assert.Equal(t, "Order placed.", entries[1].Description)

	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Time.Before(entries[i-1].Time))
	}
}

func TestLogConcurrentAppendsLoseNothing(t *testing.T) {
	log := New(zaptest.NewLogger(t))

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				log.Info(fmt.Sprintf("writer %d event %d", w, i))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, log.Len())
}

func TestLogFansOutToHandlers(t *testing.T) {
	log := New(zaptest.NewLogger(t))

	var mu sync.Mutex
	var seen []Entry
	log.AddHandler(func(e Entry) {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
	})

	log.Error("Failed to fetch positions.")
	log.Info("Waiting before the next position fetch.")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, StatusError, seen[0].Status)
	assert.Equal(t, "Failed to fetch positions.", seen[0].Description)
}

func TestEntriesReturnsSnapshot(t *testing.T) {
	log := New(zaptest.NewLogger(t))
	log.Info("first")

	snap := log.Entries()
	log.Info("second")

	assert.Len(t, snap, 1, "snapshot must not grow with later appends")
	assert.Equal(t, 2, log.Len())
}
