package models

import (
	"errors"
	"fmt"
)

// UnknownSensorType is reported for sensors with no configured metadata.
const UnknownSensorType = "unknown"

// SensorMetadata describes a sensor channel. SampleName is rebound when a
// logging session starts or stops; the other fields are static.
type SensorMetadata struct {
	Type       string `json:"sensor_type" mapstructure:"type"`
	Label      string `json:"sensor_label" mapstructure:"label"`
	Units      string `json:"sensor_units" mapstructure:"units"`
	SampleName string `json:"sample_name" mapstructure:"sample_name"`
}

// DefaultMetadata is returned for sensors missing from the metadata table.
func DefaultMetadata() SensorMetadata {
	return SensorMetadata{Type: UnknownSensorType}
}

// LogEntry is a reading joined with its sensor's metadata at log time.
type LogEntry struct {
	Timestamp   float64 `json:"timestamp"` // epoch seconds
	SensorID    string  `json:"sensor_id"`
	SensorType  string  `json:"sensor_type"`
	SensorLabel string  `json:"sensor_label"`
	SensorUnits string  `json:"sensor_units"`
	SampleName  string  `json:"sample_name"`
	Value       float64 `json:"sensor_value"`
	Source      Source  `json:"source"`
}

// NewLogEntry denormalizes a reading with the given metadata.
func NewLogEntry(r SensorReading, meta SensorMetadata) LogEntry {
	return LogEntry{
		Timestamp:   r.Timestamp,
		SensorID:    r.SensorID,
		SensorType:  meta.Type,
		SensorLabel: meta.Label,
		SensorUnits: meta.Units,
		SampleName:  meta.SampleName,
		Value:       r.Value,
		Source:      r.Source,
	}
}

// Reading recovers the reading an entry was built from.
func (e LogEntry) Reading() SensorReading {
	return SensorReading{
		SensorID:  e.SensorID,
		Value:     e.Value,
		Timestamp: e.Timestamp,
		Source:    e.Source,
	}
}

// ErrValidation is the sentinel all caller-facing validation failures wrap.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a rejected input field. No state is mutated on
// the path that returns it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
