// Package manual records operator-entered dial readings. A submission is
// validated as a whole before anything is written; accepted values share one
// timestamp across the CSV sink and the session history.
package manual

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/rewired-gh/hdts/internal/csvlog"
	"github.com/rewired-gh/hdts/internal/logger"
	"github.com/rewired-gh/hdts/internal/metadata"
	"github.com/rewired-gh/hdts/internal/models"
	"github.com/rewired-gh/hdts/internal/timestamp"
)

// InvalidValueError reports a channel whose value is not a finite number.
type InvalidValueError struct {
	Channel string
	Value   any
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s must be numeric (got %v)", e.Channel, e.Value)
}

func (e *InvalidValueError) Unwrap() error { return models.ErrValidation }

// SessionRecorder is the slice of session.Logger the recorder needs.
type SessionRecorder interface {
	Entry(r models.SensorReading) models.LogEntry
	Append(entries ...models.LogEntry) bool
}

// Submission is one operator save: values keyed by channel ID and an
// optional client timestamp (nil means now).
type Submission struct {
	Values    map[string]any
	Timestamp any
}

// Result describes an accepted submission.
type Result struct {
	Stamp   timestamp.Stamp
	Entries []models.LogEntry
	Logged  bool // entries also went into the active session
}

// Recorder is safe for concurrent use; CSV appends are serialized by csvlog.
type Recorder struct {
	meta    *metadata.Store
	session SessionRecorder
	csvPath string
}

// NewRecorder wires a recorder to the metadata store, the session and the
// append-only CSV at csvPath.
func NewRecorder(meta *metadata.Store, session SessionRecorder, csvPath string) *Recorder {
	return &Recorder{meta: meta, session: session, csvPath: csvPath}
}

type accepted struct {
	channel metadata.Channel
	value   float64
}

// Submit validates every channel, stamps the submission once, appends the
// rows to the CSV and records them in the session. Any validation failure
// rejects the whole submission before a single write.
func (r *Recorder) Submit(sub Submission) (Result, error) {
	values, err := r.validate(sub.Values)
	if err != nil {
		return Result{}, err
	}

	stamp := timestamp.Normalize(sub.Timestamp)
	if sub.Timestamp != nil && stamp.Fallback {
		return Result{}, &models.ValidationError{Field: "timestamp", Reason: fmt.Sprintf("cannot parse %v", sub.Timestamp)}
	}

	entries := make([]models.LogEntry, 0, len(values))
	for _, v := range values {
		reading, err := models.NewSensorReading(v.channel.SensorID, v.value, stamp.Epoch, models.SourceManual)
		if err != nil {
			return Result{}, &models.ValidationError{Field: v.channel.ID, Reason: err.Error()}
		}
		entries = append(entries, r.session.Entry(reading))
	}

	if _, err := csvlog.AppendEntries(r.csvPath, entries); err != nil {
		return Result{}, fmt.Errorf("failed to append manual rows: %w", err)
	}

	// The session gets the exact entries the CSV received.
	logged := r.session.Append(entries...)

	logger.Info("Saved %d manual reading(s) at %s (session logged: %v)", len(entries), stamp.UTC, logged)
	return Result{Stamp: stamp, Entries: entries, Logged: logged}, nil
}

// validate resolves and coerces every submitted value, returning them in
// configured channel order.
func (r *Recorder) validate(values map[string]any) ([]accepted, error) {
	if len(values) == 0 {
		return nil, &models.ValidationError{Field: "values", Reason: "provide at least one numeric value"}
	}

	var unknown []string
	for id := range values {
		if _, ok := r.meta.Channel(id); !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &models.ValidationError{Field: strings.Join(unknown, ","), Reason: "unknown manual channel"}
	}

	var out []accepted
	for _, ch := range r.meta.Channels() {
		raw, ok := values[ch.ID]
		if !ok {
			continue
		}
		v, err := parseValue(raw)
		if err != nil {
			return nil, &InvalidValueError{Channel: ch.ID, Value: raw}
		}
		out = append(out, accepted{channel: ch, value: v})
	}
	return out, nil
}

// parseValue accepts numbers and numeric strings. Booleans, nil and
// non-finite values are rejected.
func parseValue(raw any) (float64, error) {
	switch v := raw.(type) {
	case nil, bool:
		return 0, fmt.Errorf("not numeric: %v", raw)
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, fmt.Errorf("empty value")
		}
		raw = strings.TrimSpace(v)
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not finite: %v", raw)
	}
	return f, nil
}
