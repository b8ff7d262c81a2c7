// Package csvlog renders log entries in the versioned CSV row schema and
// writes them to disk.
//
// Appends to the manual-entry log are serialized process-wide. When the file
// on disk carries a header other than Header it is renamed to a timestamped
// backup and a fresh file is started, so old rows are never mixed with the
// current schema. No locking is done across processes.
package csvlog

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rewired-gh/hdts/internal/logger"
	"github.com/rewired-gh/hdts/internal/models"
	"github.com/rewired-gh/hdts/internal/timestamp"
)

// Header is the current row schema.
var Header = []string{
	"ts_epoch",
	"ts_utc",
	"ts_local",
	"sensor_id",
	"sensor_type",
	"sensor_label",
	"sensor_units",
	"sample_name",
	"value",
}

// ErrNothingToExport is returned by Export for an empty log.
var ErrNothingToExport = errors.New("nothing to export")

const (
	backupTag      = ".v1_"
	fileTimeLayout = "20060102_150405"
	dirPerm        = 0o755
	filePerm       = 0o644
)

// appendMu serializes every append in the process.
var appendMu sync.Mutex

// now is swapped in tests.
var now = time.Now

// Row renders one entry. All timestamp columns derive from the entry's
// single epoch value.
func Row(e models.LogEntry) []string {
	st := timestamp.FromTime(models.EpochTime(e.Timestamp))
	return []string{
		strconv.FormatFloat(e.Timestamp, 'f', 6, 64),
		st.UTC,
		st.Local,
		e.SensorID,
		e.SensorType,
		e.SensorLabel,
		e.SensorUnits,
		e.SampleName,
		strconv.FormatFloat(e.Value, 'f', -1, 64),
	}
}

// Render writes the header and one row per entry to w.
func Render(w io.Writer, entries []models.LogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(Row(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// AppendEntries appends entries to the CSV at path, creating it (and its
// directory) with a header when missing or empty and rotating it when its
// header does not match. It returns the number of rows written.
func AppendEntries(path string, entries []models.LogEntry) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return 0, fmt.Errorf("failed to create log directory: %w", err)
	}

	appendMu.Lock()
	defer appendMu.Unlock()

	existing, err := readHeader(path)
	if err != nil {
		return 0, err
	}
	if existing != nil && !slices.Equal(existing, Header) {
		backup, err := rotate(path)
		if err != nil {
			return 0, err
		}
		logger.Warn("CSV header mismatch in %s, rotated old file to %s", path, backup)
		existing = nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if existing == nil {
		if err := w.Write(Header); err != nil {
			return 0, fmt.Errorf("failed to write header: %w", err)
		}
	}
	for _, e := range entries {
		if err := w.Write(Row(e)); err != nil {
			return 0, fmt.Errorf("failed to write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return len(entries), nil
}

// readHeader returns the first line of path split into trimmed fields, or
// nil when the file is missing or empty.
func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields, nil
}

// BackupPath names the rotation target for path at instant t, e.g.
// data_log.v1_20250812_182233.csv.
func BackupPath(path string, t time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	if ext == "" {
		ext = ".csv"
	}
	return base + backupTag + t.UTC().Format(fileTimeLayout) + ext
}

// rotate renames path to its backup name. A backup already taken in the
// same second is kept; the new one gets a _<n> suffix.
func rotate(path string) (string, error) {
	first := BackupPath(path, now())
	backup := first
	for n := 1; ; n++ {
		_, err := os.Stat(backup)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to check backup %s: %w", backup, err)
		}
		ext := filepath.Ext(first)
		backup = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(first, ext), n, ext)
	}
	if err := os.Rename(path, backup); err != nil {
		return "", fmt.Errorf("failed to rotate %s: %w", path, err)
	}
	return backup, nil
}

// Export renders entries to log_<UTC time>.csv inside dir and returns the
// file path together with the rendered bytes.
func Export(dir string, entries []models.LogEntry) (string, []byte, error) {
	if len(entries) == 0 {
		return "", nil, ErrNothingToExport
	}

	var buf bytes.Buffer
	if err := Render(&buf, entries); err != nil {
		return "", nil, fmt.Errorf("failed to render export: %w", err)
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, "log_"+now().UTC().Format(fileTimeLayout)+".csv")
	if err := os.WriteFile(path, buf.Bytes(), filePerm); err != nil {
		return "", nil, fmt.Errorf("failed to write export: %w", err)
	}
	return path, buf.Bytes(), nil
}
