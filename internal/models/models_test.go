package models

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestSensorReadingValidate(t *testing.T) {
	tests := []struct {
		name    string
		reading SensorReading
		wantErr bool
	}{
		{
			name:    "valid poll reading",
			reading: SensorReading{SensorID: "28-000008ae0bbd", Value: 21.5, Timestamp: 1700000000, Source: SourcePoll},
			wantErr: false,
		},
		{
			name:    "valid manual reading",
			reading: SensorReading{SensorID: "dial_1_manual_entry", Value: -0.25, Timestamp: 1700000000.5, Source: SourceManual},
			wantErr: false,
		},
		{
			name:    "missing sensor ID",
			reading: SensorReading{Value: 1, Timestamp: 1700000000, Source: SourcePoll},
			wantErr: true,
		},
		{
			name:    "NaN value",
			reading: SensorReading{SensorID: "a", Value: math.NaN(), Timestamp: 1700000000, Source: SourcePoll},
			wantErr: true,
		},
		{
			name:    "infinite value",
			reading: SensorReading{SensorID: "a", Value: math.Inf(1), Timestamp: 1700000000, Source: SourcePoll},
			wantErr: true,
		},
		{
			name:    "zero timestamp",
			reading: SensorReading{SensorID: "a", Value: 1, Source: SourcePoll},
			wantErr: true,
		},
		{
			name:    "unknown source",
			reading: SensorReading{SensorID: "a", Value: 1, Timestamp: 1700000000, Source: "usb"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reading.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewSensorReading(t *testing.T) {
	if _, err := NewSensorReading("", 1, 1700000000, SourcePoll); err == nil {
		t.Error("Expected error for empty sensor ID")
	}
	r, err := NewSensorReading("a", 2, 1700000000, SourceManual)
	if err != nil {
		t.Fatalf("NewSensorReading failed: %v", err)
	}
	if r.Source != SourceManual || r.Value != 2 {
		t.Errorf("Unexpected reading %+v", r)
	}
}

func TestEpochConversions(t *testing.T) {
	want := time.Date(2023, 11, 14, 22, 13, 20, 123456000, time.UTC)

	got := EpochTime(1700000000.123456)
	if !got.Equal(want) {
		t.Errorf("EpochTime = %v, want %v", got, want)
	}
	if got.Location() != time.UTC {
		t.Error("EpochTime must return UTC")
	}
	if e := Epoch(want); e != 1700000000.123456 {
		t.Errorf("Epoch = %v", e)
	}

	r := SensorReading{Timestamp: 1700000000}
	if !r.Time().Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Time() = %v", r.Time())
	}
}

func TestLogEntryJoin(t *testing.T) {
	r := SensorReading{SensorID: "28-a", Value: 20.5, Timestamp: 1700000000, Source: SourcePoll}
	meta := SensorMetadata{Type: "temperature", Label: "Temp #1", Units: "°C", SampleName: "HDPE"}

	e := NewLogEntry(r, meta)
	if e.SensorType != "temperature" || e.SensorLabel != "Temp #1" || e.SensorUnits != "°C" || e.SampleName != "HDPE" {
		t.Errorf("Metadata not joined: %+v", e)
	}
	if e.Reading() != r {
		t.Errorf("Reading() = %+v, want %+v", e.Reading(), r)
	}

	if DefaultMetadata().Type != UnknownSensorType {
		t.Error("Default metadata type must be unknown")
	}
}

func TestValidationError(t *testing.T) {
	var err error = &ValidationError{Field: "dial_1", Reason: "sample name is required"}
	if !errors.Is(err, ErrValidation) {
		t.Error("ValidationError must unwrap to ErrValidation")
	}
	if err.Error() != "dial_1: sample name is required" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}
