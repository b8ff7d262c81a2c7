package sensor

import (
	"errors"
	"sync"
	"time"

	"github.com/rewired-gh/hdts/internal/logger"
	"github.com/rewired-gh/hdts/internal/models"
)

// DefaultInterval is the poll cadence used when none is configured.
const DefaultInterval = time.Second

// Poller samples every enumerated device on a fixed interval and keeps the
// latest successful reading per device.
type Poller struct {
	bus      Bus
	devices  []string
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	latest map[string]models.SensorReading

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

// NewPoller enumerates the bus once and returns a stopped poller.
func NewPoller(bus Bus, interval time.Duration) (*Poller, error) {
	if bus == nil {
		return nil, errors.New("sensor bus must not be nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	devices, err := bus.Enumerate()
	if err != nil {
		return nil, err
	}
	logger.Info("Discovered %d sensor device(s): %v", len(devices), devices)

	return &Poller{
		bus:      bus,
		devices:  devices,
		interval: interval,
		now:      time.Now,
		latest:   make(map[string]models.SensorReading, len(devices)),
	}, nil
}

// Devices returns the device IDs found at construction.
func (p *Poller) Devices() []string {
	return append([]string(nil), p.devices...)
}

// Start launches the background sampling goroutine. Calling Start on a
// running poller does nothing.
func (p *Poller) Start() {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(p.stop, p.done)
}

// Stop signals the sampling goroutine and waits until it has exited, so no
// hardware read is in flight when Stop returns.
func (p *Poller) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.stop, p.done = nil, nil
}

// Running reports whether the sampling goroutine is active.
func (p *Poller) Running() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.stop != nil
}

// Latest returns a copy of the latest reading per device.
func (p *Poller) Latest() map[string]models.SensorReading {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]models.SensorReading, len(p.latest))
	for id, r := range p.latest {
		out[id] = r
	}
	return out
}

func (p *Poller) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(stop)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.poll(stop)
		}
	}
}

// poll reads each device once. Reads happen outside the lock; each
// successful value replaces that device's entry atomically.
func (p *Poller) poll(stop <-chan struct{}) {
	for _, id := range p.devices {
		select {
		case <-stop:
			return
		default:
		}

		value, err := p.bus.Read(id)
		if err != nil {
			logger.Debug("Skipping %s this tick: %v", id, err)
			continue
		}
		reading, err := models.NewSensorReading(id, value, models.Epoch(p.now()), models.SourcePoll)
		if err != nil {
			logger.Debug("Discarding reading from %s: %v", id, err)
			continue
		}

		p.mu.Lock()
		p.latest[id] = reading
		p.mu.Unlock()
	}
}
