// Package engine coordinates the sensor poller and the session logger.
//
// A single loop goroutine copies the poller's latest snapshot into the
// session on every tick while a session is active. Queries merge that
// snapshot with the newest manual entry per sensor; manual entries win for
// the sensors they cover.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rewired-gh/hdts/internal/csvlog"
	"github.com/rewired-gh/hdts/internal/logger"
	"github.com/rewired-gh/hdts/internal/metadata"
	"github.com/rewired-gh/hdts/internal/models"
	"github.com/rewired-gh/hdts/internal/session"
)

// ErrAlreadyRunning is returned by Start on a running engine.
var ErrAlreadyRunning = errors.New("engine already running")

// Poller is the slice of sensor.Poller the engine drives.
type Poller interface {
	Start()
	Stop()
	Latest() map[string]models.SensorReading
}

// Notifier hears about session and export events. Implementations must not
// block for long; failures are logged and otherwise ignored.
type Notifier interface {
	SessionStarted(st session.Status, samples map[string]string) error
	SessionStopped(st session.Status) error
	Exported(path string, rows int, size int) error
}

// Options configure an Engine.
type Options struct {
	Interval  time.Duration
	ExportDir string
	Notifier  Notifier // optional
}

// Status is the combined engine and session state.
type Status struct {
	PollerRunning bool              `json:"poller_running"`
	Logging       bool              `json:"logging"`
	Session       session.Status    `json:"session"`
	Samples       map[string]string `json:"samples"`
}

// Engine is safe for concurrent use.
type Engine struct {
	poller   Poller
	session  *session.Logger
	meta     *metadata.Store
	interval time.Duration
	export   string
	notifier Notifier
	now      func() time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}

	// sessionMu spans the sample binding and the logger transition so a
	// start and a stop cannot interleave.
	sessionMu sync.Mutex
}

// New builds a stopped engine.
func New(poller Poller, sess *session.Logger, meta *metadata.Store, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "exports"
	}
	return &Engine{
		poller:   poller,
		session:  sess,
		meta:     meta,
		interval: opts.Interval,
		export:   opts.ExportDir,
		notifier: opts.Notifier,
		now:      time.Now,
	}
}

// Start starts the poller and the log loop. It returns ErrAlreadyRunning if
// the engine is running; a stopped engine may be started again.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stop != nil {
		return ErrAlreadyRunning
	}
	e.poller.Start()
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(e.stop, e.done)

	logger.Info("Engine started (interval: %v)", e.interval)
	return nil
}

// Stop ends the log loop, waits for it to exit and stops the poller. After
// Stop returns no further entries are recorded by the loop. Stopping a
// stopped engine does nothing.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stop == nil {
		return
	}
	close(e.stop)
	<-e.done
	e.poller.Stop()
	e.stop, e.done = nil, nil

	logger.Info("Engine stopped")
}

// Running reports whether the log loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop != nil
}

func (e *Engine) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logSnapshot(e.now())
	for {
		select {
		case <-stop:
			return
		case tick := <-ticker.C:
			e.logSnapshot(tick)
		}
	}
}

// logSnapshot records one entry per sensor in the poller snapshot, all
// stamped with the tick instant.
func (e *Engine) logSnapshot(tick time.Time) {
	snapshot := e.poller.Latest()
	if len(snapshot) == 0 || !e.session.IsActive() {
		return
	}

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ts := models.Epoch(tick)
	recorded := 0
	for _, id := range ids {
		r := snapshot[id]
		r.Timestamp = ts
		r.Source = models.SourcePoll
		if _, ok := e.session.Record(r); ok {
			recorded++
		}
	}
	logger.Debug("Logged %d sensor value(s) at %s", recorded, tick.UTC().Format(time.RFC3339))
}

// LiveView merges the poller snapshot with the newest manual entry per
// sensor from the session history. Every sensor with a manual entry
// anywhere in the history shows that entry instead of its polled value.
func (e *Engine) LiveView() map[string]models.SensorReading {
	view := e.poller.Latest()
	history := e.session.FullLog()

	seen := make(map[string]bool)
	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		if entry.Source != models.SourceManual || seen[entry.SensorID] {
			continue
		}
		seen[entry.SensorID] = true
		view[entry.SensorID] = entry.Reading()
	}
	return view
}

// FullLog returns the session history.
func (e *Engine) FullLog() []models.LogEntry {
	return e.session.FullLog()
}

// StartSession binds one sample name per manual channel and starts a fresh
// session, discarding the previous history. Invalid sample names leave all
// state untouched.
func (e *Engine) StartSession(samples map[string]string) (session.Status, error) {
	e.sessionMu.Lock()
	if err := e.meta.ActivateSamples(samples); err != nil {
		e.sessionMu.Unlock()
		return session.Status{}, err
	}
	id := e.session.Start()
	st := e.session.Status()
	active := e.meta.ActiveSamples()
	e.sessionMu.Unlock()

	logger.Info("Logging session %s started (samples: %v)", id, active)

	if e.notifier != nil {
		if err := e.notifier.SessionStarted(st, active); err != nil {
			logger.Warn("Failed to send session start notification: %v", err)
		}
	}
	return st, nil
}

// StopSession stops recording and clears the sample names. The history
// stays available for export until the next StartSession.
func (e *Engine) StopSession() session.Status {
	e.sessionMu.Lock()
	wasActive := e.session.IsActive()
	e.session.Stop()
	e.meta.ClearSamples()
	st := e.session.Status()
	e.sessionMu.Unlock()

	if wasActive {
		logger.Info("Logging session %s stopped with %d entries", st.ID, st.Entries)
		if e.notifier != nil {
			if err := e.notifier.SessionStopped(st); err != nil {
				logger.Warn("Failed to send session stop notification: %v", err)
			}
		}
	}
	return st
}

// ExportCSV renders the full log to a timestamped file in the export
// directory and returns its path and contents. An empty log yields
// csvlog.ErrNothingToExport.
func (e *Engine) ExportCSV() (string, []byte, error) {
	entries := e.FullLog()
	path, data, err := csvlog.Export(e.export, entries)
	if err != nil {
		if errors.Is(err, csvlog.ErrNothingToExport) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("export failed: %w", err)
	}
	logger.Info("Exported %d rows to %s", len(entries), path)

	if e.notifier != nil {
		if err := e.notifier.Exported(path, len(entries), len(data)); err != nil {
			logger.Warn("Failed to send export notification: %v", err)
		}
	}
	return path, data, nil
}

// Status reports poller, session and sample state.
func (e *Engine) Status() Status {
	return Status{
		PollerRunning: e.Running(),
		Logging:       e.session.IsActive(),
		Session:       e.session.Status(),
		Samples:       e.meta.ActiveSamples(),
	}
}

// Interval returns the configured poll interval.
func (e *Engine) Interval() time.Duration {
	return e.interval
}
