// Package timestamp reconciles the timestamp shapes that reach the engine
// (epoch numbers, numeric strings, ISO 8601 with or without an offset) into
// one canonical instant and its display forms.
//
// Normalize never fails. Input it cannot interpret resolves to the current
// instant and sets Stamp.Fallback; callers that must not silently re-date
// data check that flag.
package timestamp

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/hdts/internal/models"
)

const (
	// UTCLayout is ISO 8601 with microseconds and an explicit numeric offset.
	UTCLayout = "2006-01-02T15:04:05.000000-07:00"
	// LocalLayout is the timezone-unaware display form in process-local time.
	LocalLayout = "2006-01-02 15:04:05"
)

// Layouts carrying a zone. Z07:00 accepts both "Z" and "+hh:mm"; fractional
// seconds are accepted after the seconds field even when absent from the
// layout.
var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
}

// Layouts without a zone are read as local time.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Stamp is one instant in every representation the CSV row needs.
type Stamp struct {
	Time     time.Time
	Epoch    float64
	UTC      string
	Local    string
	Fallback bool // input was absent or unparsable; Time is "now"
}

// maxEpoch bounds accepted epoch seconds (about year 5138). Larger values
// would overflow microsecond time arithmetic.
const maxEpoch = 1e11

// now is swapped in tests.
var now = time.Now

// FromTime derives a Stamp from an instant. Precision is truncated to
// microseconds so that Epoch, UTC and Local agree exactly.
func FromTime(t time.Time) Stamp {
	t = t.Truncate(time.Microsecond).UTC()
	return Stamp{
		Time:  t,
		Epoch: models.Epoch(t),
		UTC:   t.Format(UTCLayout),
		Local: t.In(time.Local).Format(LocalLayout),
	}
}

// Now returns the Stamp for the current instant.
func Now() Stamp {
	return FromTime(now())
}

// Normalize interprets input as an instant. Numbers (and numeric strings)
// are epoch seconds. Other strings are parsed as ISO 8601; a string with no
// offset is local time. Anything else yields Now() with Fallback set.
func Normalize(input any) Stamp {
	if t, ok := parse(input); ok {
		return FromTime(t)
	}
	s := Now()
	s.Fallback = true
	return s
}

func parse(input any) (time.Time, bool) {
	switch v := input.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v, true
	case float64:
		return fromEpoch(v)
	case float32:
		return fromEpoch(float64(v))
	case int:
		return fromEpoch(float64(v))
	case int32:
		return fromEpoch(float64(v))
	case int64:
		return fromEpoch(float64(v))
	case uint:
		return fromEpoch(float64(v))
	case uint32:
		return fromEpoch(float64(v))
	case uint64:
		return fromEpoch(float64(v))
	case json.Number:
		return parseString(v.String())
	case string:
		return parseString(v)
	}
	return time.Time{}, false
}

func fromEpoch(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxEpoch {
		return time.Time{}, false
	}
	return models.EpochTime(f), true
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
