// Package sensor reads hardware sensors and keeps the latest value of each
// in memory. The bus protocol lives behind the Bus interface; W1Bus covers
// DS18B20 probes on the Linux 1-Wire sysfs tree.
package sensor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrNotReady is returned by a Bus when a device has no valid value this
// tick (CRC failure, conversion in progress, malformed payload).
var ErrNotReady = errors.New("sensor not ready")

// Bus is the hardware collaborator. Enumerate is called once at poller
// construction; Read once per device per tick.
type Bus interface {
	Enumerate() ([]string, error)
	Read(deviceID string) (float64, error)
}

// DefaultW1Dir is where the w1-therm kernel driver exposes devices.
const DefaultW1Dir = "/sys/bus/w1/devices"

// ds18b20Family is the 1-Wire family code prefix of DS18B20 probes.
const ds18b20Family = "28-"

// W1Bus reads DS18B20 probes through w1_slave files.
type W1Bus struct {
	Dir string
}

// NewW1Bus returns a bus rooted at dir, or DefaultW1Dir if dir is empty.
func NewW1Bus(dir string) *W1Bus {
	if dir == "" {
		dir = DefaultW1Dir
	}
	return &W1Bus{Dir: dir}
}

// Enumerate lists device IDs such as "28-000008ae0bbd".
func (b *W1Bus) Enumerate() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(b.Dir, ds18b20Family+"*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list 1-wire devices: %w", err)
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, filepath.Base(m))
	}
	sort.Strings(ids)
	return ids, nil
}

// Read returns the temperature of one probe in degrees Celsius.
func (b *W1Bus) Read(deviceID string) (float64, error) {
	raw, err := os.ReadFile(filepath.Join(b.Dir, deviceID, "w1_slave"))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	return parseW1Slave(string(raw))
}

// parseW1Slave decodes the two-line w1_slave payload:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(payload string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(payload), "\n")
	if len(lines) < 2 {
		return 0, ErrNotReady
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrNotReady
	}
	idx := strings.Index(lines[1], "t=")
	if idx == -1 {
		return 0, ErrNotReady
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(lines[1][idx+2:]), 64)
	if err != nil {
		return 0, ErrNotReady
	}
	return milli / 1000.0, nil
}
