// Package models defines the records that flow through the acquisition engine.
//
// A SensorReading is one instantaneous value, produced either by the hardware
// poller or by a manual dial entry. A LogEntry is a reading joined with the
// sensor's metadata at the moment it was logged; entries are never edited
// after creation, so a later sample-name change does not rewrite history.
//
// Timestamps are epoch seconds as float64, matching the CSV ts_epoch column.
package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Source tags where a reading came from.
type Source string

const (
	// SourcePoll marks readings taken by the hardware poller.
	SourcePoll Source = "poll"
	// SourceManual marks readings submitted by an operator.
	SourceManual Source = "manual"
)

// SensorReading is one instantaneous value for a sensor.
type SensorReading struct {
	SensorID  string  `json:"sensor_id"`
	Value     float64 `json:"sensor_value"`
	Timestamp float64 `json:"timestamp"` // epoch seconds
	Source    Source  `json:"source"`
}

// NewSensorReading builds a validated reading.
func NewSensorReading(sensorID string, value, timestamp float64, source Source) (SensorReading, error) {
	r := SensorReading{
		SensorID:  sensorID,
		Value:     value,
		Timestamp: timestamp,
		Source:    source,
	}
	if err := r.Validate(); err != nil {
		return SensorReading{}, err
	}
	return r, nil
}

// Validate checks that all reading fields are present and finite
func (r *SensorReading) Validate() error {
	if r.SensorID == "" {
		return errors.New("sensor ID must not be empty")
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("value for %s must be finite", r.SensorID)
	}
	if r.Timestamp <= 0 || math.IsNaN(r.Timestamp) || math.IsInf(r.Timestamp, 0) {
		return fmt.Errorf("timestamp for %s must be a positive epoch", r.SensorID)
	}
	if r.Source != SourcePoll && r.Source != SourceManual {
		return fmt.Errorf("unknown source %q", r.Source)
	}
	return nil
}

// Time returns the reading's timestamp as a time.Time in UTC.
func (r SensorReading) Time() time.Time {
	return EpochTime(r.Timestamp)
}

// EpochTime converts float epoch seconds to a UTC time, keeping microsecond
// precision.
func EpochTime(epoch float64) time.Time {
	sec, frac := math.Modf(epoch)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC()
}

// Epoch converts a time to float epoch seconds.
func Epoch(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}
