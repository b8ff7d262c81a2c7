// Package metadata holds the sensor metadata table and the active sample
// names of the current logging session. One Store is built at startup and
// passed to every component that reads or rebinds metadata.
package metadata

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rewired-gh/hdts/internal/models"
)

// Sensor is one configured metadata row. Channel binds the sensor to a
// manual channel's sample slot; it may be empty.
type Sensor struct {
	ID      string
	Channel string
	Meta    models.SensorMetadata
}

// Channel is a manual input slot such as "dial_1".
type Channel struct {
	ID       string
	SensorID string
	Label    string
	Type     string
	Units    string
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sensors  map[string]models.SensorMetadata
	binding  map[string]string // sensor ID -> channel ID
	channels map[string]Channel
	order    []string // channel IDs in configured order
	active   map[string]string
}

// New builds a store from the configured sensors and manual channels. Each
// channel's manual sensor gets a metadata row and is bound to its channel.
func New(sensors []Sensor, channels []Channel) (*Store, error) {
	s := &Store{
		sensors:  make(map[string]models.SensorMetadata, len(sensors)+len(channels)),
		binding:  make(map[string]string),
		channels: make(map[string]Channel, len(channels)),
		active:   make(map[string]string),
	}

	for _, c := range channels {
		if c.ID == "" || c.SensorID == "" {
			return nil, fmt.Errorf("manual channel needs both id and sensor_id: %+v", c)
		}
		if _, dup := s.channels[c.ID]; dup {
			return nil, fmt.Errorf("duplicate manual channel %q", c.ID)
		}
		s.channels[c.ID] = c
		s.order = append(s.order, c.ID)
		s.sensors[c.SensorID] = models.SensorMetadata{Type: c.Type, Label: c.Label, Units: c.Units}
		s.binding[c.SensorID] = c.ID
	}

	for _, sensor := range sensors {
		if sensor.ID == "" {
			return nil, fmt.Errorf("sensor metadata row without id")
		}
		if sensor.Channel != "" {
			if _, ok := s.channels[sensor.Channel]; !ok {
				return nil, fmt.Errorf("sensor %s bound to unknown channel %q", sensor.ID, sensor.Channel)
			}
			s.binding[sensor.ID] = sensor.Channel
		}
		s.sensors[sensor.ID] = sensor.Meta
	}

	return s, nil
}

// Lookup returns the metadata for a sensor, or DefaultMetadata if unknown.
func (s *Store) Lookup(sensorID string) models.SensorMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.sensors[sensorID]
	if !ok {
		return models.DefaultMetadata()
	}
	if meta.Type == "" {
		meta.Type = models.UnknownSensorType
	}
	return meta
}

// SetSampleName rebinds the sample name of one sensor. Unknown sensors get
// a default row so the name is not lost.
func (s *Store) SetSampleName(sensorID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.sensors[sensorID]
	if !ok {
		meta = models.DefaultMetadata()
	}
	meta.SampleName = name
	s.sensors[sensorID] = meta
}

// Channels returns the manual channels in configured order.
func (s *Store) Channels() []Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Channel, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.channels[id])
	}
	return out
}

// Channel resolves a manual channel ID.
func (s *Store) Channel(id string) (Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[id]
	return c, ok
}

// ValidateSamples checks that samples names one non-empty sample for every
// configured channel and nothing else.
func (s *Store) ValidateSamples(samples map[string]string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if strings.TrimSpace(samples[id]) == "" {
			return &models.ValidationError{Field: id, Reason: "sample name is required to start a session"}
		}
	}
	var unknown []string
	for id := range samples {
		if _, ok := s.channels[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &models.ValidationError{Field: strings.Join(unknown, ","), Reason: "unknown channel"}
	}
	return nil
}

// ActivateSamples binds one sample name per channel and rewrites the
// sample_name of every sensor bound to that channel. Nothing changes when
// validation fails.
func (s *Store) ActivateSamples(samples map[string]string) error {
	if err := s.ValidateSamples(samples); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, name := range samples {
		s.active[id] = strings.TrimSpace(name)
	}
	s.rebindLocked()
	return nil
}

// ClearSamples drops the active sample names and blanks the sample_name of
// every bound sensor.
func (s *Store) ClearSamples() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = make(map[string]string)
	s.rebindLocked()
}

// ActiveSample returns the sample name bound to a channel, if any.
func (s *Store) ActiveSample(channelID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[channelID]
}

// ActiveSamples returns a copy of the channel -> sample name bindings.
func (s *Store) ActiveSamples() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.active))
	for k, v := range s.active {
		out[k] = v
	}
	return out
}

func (s *Store) rebindLocked() {
	for sensorID, channelID := range s.binding {
		meta, ok := s.sensors[sensorID]
		if !ok {
			meta = models.DefaultMetadata()
		}
		meta.SampleName = s.active[channelID]
		s.sensors[sensorID] = meta
	}
}
