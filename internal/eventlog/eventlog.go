// Package eventlog keeps the session's ordered status history.
package eventlog

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status classifies an event entry.
type Status string

const (
	StatusInfo    Status = "Info"
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
	StatusError   Status = "Error"
)

// Entry is a single timestamped event.
type Entry struct {
	Time        time.Time `json:"time"`
	Status      Status    `json:"status"`
	Description string    `json:"description"`
}

// Handler is called for every appended entry.
type Handler func(entry Entry)

// Log is an append-only, mutex-guarded event log. Entries are mirrored to the
// structured log sink and fanned out to registered handlers. Entries are never
// removed for the lifetime of the session.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	handlers []Handler
	logger   *zap.Logger
}

// New creates an event log emitting to the given zap logger.
func New(logger *zap.Logger) *Log {
	return &Log{
		entries: make([]Entry, 0, 128),
		logger:  logger,
	}
}

// AddHandler registers a handler invoked on every append.
func (l *Log) AddHandler(handler Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, handler)
}

// Log appends an entry and emits it to the console/file sink.
func (l *Log) Log(status Status, description string) {
	entry := Entry{
		Time:        time.Now(),
		Status:      status,
		Description: description,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	handlers := make([]Handler, len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.Unlock()

	if l.logger != nil {
		switch status {
		case StatusError, StatusFailed:
			l.logger.Error(description, zap.String("status", string(status)))
		default:
			l.logger.Info(description, zap.String("status", string(status)))
		}
	}

	// Handlers run outside the lock so a slow sink cannot block appends.
	for _, h := range handlers {
		h(entry)
	}
}

// Infof-style helpers keep call sites short.
func (l *Log) Info(description string)    { l.Log(StatusInfo, description) }
func (l *Log) Success(description string) { l.Log(StatusSuccess, description) }
func (l *Log) Failed(description string)  { l.Log(StatusFailed, description) }
func (l *Log) Error(description string)   { l.Log(StatusError, description) }

// Entries returns a snapshot of the full ordered sequence.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
