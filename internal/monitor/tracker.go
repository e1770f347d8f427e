package monitor

import (
	"sync"

	"exitwatch/internal/broker"
)

// Tracker is the session-lifetime set of symbols already handed to a monitor.
// Entries are never removed, so a symbol is never monitored twice even if the
// broker reopens a position under the same symbol later in the session.
type Tracker struct {
	mu        sync.RWMutex
	positions map[string]broker.Position
}

// NewTracker creates an empty tracked set.
func NewTracker() *Tracker {
	return &Tracker{
		positions: make(map[string]broker.Position),
	}
}

// Track records a position. Returns false when the symbol was already
// tracked; the stored entry is left untouched in that case.
func (t *Tracker) Track(pos broker.Position) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.positions[pos.Symbol]; exists {
		return false
	}
	t.positions[pos.Symbol] = pos
	return true
}

// Seen reports whether the symbol has been tracked this session.
func (t *Tracker) Seen(symbol string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, exists := t.positions[symbol]
	return exists
}

// Len returns the number of tracked symbols.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.positions)
}

// Symbols returns a snapshot of the tracked symbols.
func (t *Tracker) Symbols() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.positions))
	for s := range t.positions {
		out = append(out, s)
	}
	return out
}
