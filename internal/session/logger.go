// Package session owns the in-memory history of the current logging
// session. Entries are appended only while the session is active and are
// cleared only by the next Start.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/hdts/internal/models"
)

// MetadataSource resolves sensor metadata at record time.
type MetadataSource interface {
	Lookup(sensorID string) models.SensorMetadata
}

// Status is a point-in-time view of the session.
type Status struct {
	ID        string     `json:"id,omitempty"`
	Active    bool       `json:"active"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Entries   int        `json:"entries"`
}

// Logger is safe for concurrent Record and FullLog calls.
type Logger struct {
	meta MetadataSource
	now  func() time.Time

	mu        sync.RWMutex
	active    bool
	id        string
	startedAt time.Time
	stoppedAt time.Time
	entries   []models.LogEntry
}

// NewLogger returns an inactive logger.
func NewLogger(meta MetadataSource) *Logger {
	return &Logger{meta: meta, now: time.Now}
}

// Start clears all entries and activates a new session. Entries not
// exported beforehand are lost.
func (l *Logger) Start() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	l.active = true
	l.id = uuid.New().String()
	l.startedAt = l.now()
	l.stoppedAt = time.Time{}
	return l.id
}

// Stop deactivates the session; entries stay queryable. Stopping an
// inactive session does nothing.
func (l *Logger) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.active {
		return
	}
	l.active = false
	l.stoppedAt = l.now()
}

// IsActive reports whether Record currently appends.
func (l *Logger) IsActive() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Entry joins a reading with its sensor's current metadata without
// recording it.
func (l *Logger) Entry(r models.SensorReading) models.LogEntry {
	return models.NewLogEntry(r, l.meta.Lookup(r.SensorID))
}

// Record appends the reading joined with metadata as of now. It returns the
// entry and whether it was appended; inactive sessions drop the reading.
func (l *Logger) Record(r models.SensorReading) (models.LogEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.active {
		return models.LogEntry{}, false
	}
	entry := models.NewLogEntry(r, l.meta.Lookup(r.SensorID))
	l.entries = append(l.entries, entry)
	return entry, true
}

// Append records entries built earlier with Entry, so callers that also
// write them elsewhere keep one metadata join. The entries land together or,
// when the session is inactive, not at all; Append reports which.
func (l *Logger) Append(entries ...models.LogEntry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.active {
		return false
	}
	l.entries = append(l.entries, entries...)
	return true
}

// FullLog returns a copy of the entries in insertion order.
func (l *Logger) FullLog() []models.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Logger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Status reports the session state.
func (l *Logger) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Status{ID: l.id, Active: l.active, Entries: len(l.entries)}
	if !l.startedAt.IsZero() {
		t := l.startedAt
		st.StartedAt = &t
	}
	if !l.stoppedAt.IsZero() {
		t := l.stoppedAt
		st.StoppedAt = &t
	}
	return st
}
