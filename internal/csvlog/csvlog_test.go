package csvlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rewired-gh/hdts/internal/models"
)

func entry(id string, v, ts float64) models.LogEntry {
	return models.LogEntry{
		Timestamp:   ts,
		SensorID:    id,
		SensorType:  "dial_indicator",
		SensorLabel: "Manual Dial 1",
		SensorUnits: "mm",
		SampleName:  "HDPE",
		Value:       v,
		Source:      models.SourceManual,
	}
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return records
}

func fixClock(t *testing.T, at time.Time) {
	t.Helper()
	orig := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = orig })
}

func TestRow(t *testing.T) {
	row := Row(entry("dial_1_manual_entry", 1.25, 1700000000.5))

	if len(row) != len(Header) {
		t.Fatalf("Row has %d columns, header has %d", len(row), len(Header))
	}
	if row[0] != "1700000000.500000" {
		t.Errorf("ts_epoch = %q", row[0])
	}
	if row[1] != "2023-11-14T22:13:20.500000+00:00" {
		t.Errorf("ts_utc = %q", row[1])
	}
	wantLocal := time.Unix(1700000000, 0).In(time.Local).Format("2006-01-02 15:04:05")
	if row[2] != wantLocal {
		t.Errorf("ts_local = %q, want %q", row[2], wantLocal)
	}
	if row[3] != "dial_1_manual_entry" || row[7] != "HDPE" || row[8] != "1.25" {
		t.Errorf("Unexpected row %v", row)
	}
}

func TestAppendEntries_CreatesWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "data_log.csv")

	n, err := AppendEntries(path, []models.LogEntry{entry("a", 1, 1700000000)})
	if err != nil || n != 1 {
		t.Fatalf("AppendEntries = %d, %v", n, err)
	}
	if _, err := AppendEntries(path, []models.LogEntry{entry("b", 2, 1700000001), entry("c", 3, 1700000002)}); err != nil {
		t.Fatalf("second AppendEntries failed: %v", err)
	}

	records := readAll(t, path)
	if len(records) != 4 {
		t.Fatalf("Expected header + 3 rows, got %d records", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(Header, ",") {
		t.Errorf("Unexpected header %v", records[0])
	}
	if records[3][3] != "c" {
		t.Errorf("Expected rows in append order, got %v", records[3])
	}
}

func TestAppendEntries_EmptyFileGetsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_log.csv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := AppendEntries(path, []models.LogEntry{entry("a", 1, 1700000000)}); err != nil {
		t.Fatal(err)
	}
	records := readAll(t, path)
	if len(records) != 2 || records[0][0] != "ts_epoch" {
		t.Errorf("Expected header then row, got %v", records)
	}
}

func TestAppendEntries_RotatesMismatchedHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data_log.csv")
	legacy := "timestamp,sensor_id,sensor_type,sensor_label,sensor_units,value\n" +
		"2025-08-12T18:22:33Z,dial_1_manual_entry,dial_indicator,Manual Dial 1,mm,0.5\n"
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	at := time.Date(2025, 8, 13, 9, 0, 1, 0, time.UTC)
	fixClock(t, at)

	if _, err := AppendEntries(path, []models.LogEntry{entry("a", 1, 1700000000)}); err != nil {
		t.Fatalf("AppendEntries failed: %v", err)
	}

	backup := filepath.Join(dir, "data_log.v1_20250813_090001.csv")
	got, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("Expected backup file: %v", err)
	}
	if string(got) != legacy {
		t.Errorf("Backup content changed: %q", got)
	}

	records := readAll(t, path)
	if len(records) != 2 {
		t.Fatalf("Expected fresh file with header + 1 row, got %v", records)
	}
	if strings.Join(records[0], ",") != strings.Join(Header, ",") {
		t.Errorf("Row 1 must be the current header, got %v", records[0])
	}
}

func TestAppendEntries_RotationsInOneSecondKeepBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data_log.csv")
	fixClock(t, time.Date(2025, 8, 13, 9, 0, 1, 0, time.UTC))

	legacies := []string{
		"timestamp,sensor_id,value\nfirst,a,1\n",
		"timestamp,sensor_id,value\nsecond,a,2\n",
	}
	for _, legacy := range legacies {
		if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := AppendEntries(path, []models.LogEntry{entry("a", 1, 1700000000)}); err != nil {
			t.Fatalf("AppendEntries failed: %v", err)
		}
	}

	backups := map[string]string{
		"data_log.v1_20250813_090001.csv":   legacies[0],
		"data_log.v1_20250813_090001_1.csv": legacies[1],
	}
	for name, want := range backups {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Expected backup %s: %v", name, err)
		}
		if string(got) != want {
			t.Errorf("Backup %s = %q, want %q", name, got, want)
		}
	}
}

func TestBackupPath(t *testing.T) {
	at := time.Date(2025, 8, 12, 18, 22, 33, 0, time.UTC)
	tests := map[string]string{
		"/x/data_log.csv": "/x/data_log.v1_20250812_182233.csv",
		"/x/data_log":     "/x/data_log.v1_20250812_182233.csv",
		"/x/log.txt":      "/x/log.v1_20250812_182233.txt",
	}
	for in, want := range tests {
		if got := BackupPath(in, at); got != want {
			t.Errorf("BackupPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAppendEntries_ConcurrentRowsStayWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_log.csv")
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if _, err := AppendEntries(path, []models.LogEntry{entry("a", float64(i), 1700000000)}); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	records := readAll(t, path)
	if len(records) != 201 {
		t.Fatalf("Expected 201 records, got %d", len(records))
	}
	for i, r := range records {
		if len(r) != len(Header) {
			t.Fatalf("Record %d has %d fields", i, len(r))
		}
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	fixClock(t, time.Date(2025, 8, 12, 18, 22, 33, 0, time.UTC))

	entries := []models.LogEntry{entry("a", 1, 1700000000), entry("b", 2.5, 1700000001)}
	path, data, err := Export(dir, entries)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if filepath.Base(path) != "log_20250812_182233.csv" {
		t.Errorf("Unexpected export name %s", path)
	}
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(onDisk, data) {
		t.Error("Returned bytes must equal the file on disk")
	}

	var want bytes.Buffer
	if err := Render(&want, entries); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, want.Bytes()) {
		t.Errorf("Export differs from Render:\n%s\nvs\n%s", data, want.Bytes())
	}
}

func TestExport_NothingToExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")

	path, data, err := Export(dir, nil)
	if !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("Expected ErrNothingToExport, got %v", err)
	}
	if path != "" || data != nil {
		t.Errorf("Expected no output, got %q / %d bytes", path, len(data))
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Empty export must not touch the filesystem")
	}
}
