package telemetry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
)

const testLog = `FinalTime,UsblLatitude,UsblLongitude,Altitude,Pitch,Roll,Camera,Operation
2018-11-25 10:15:30.250000,-42.5921,148.2101,32.4,1.5,-0.7,SCP1,transit
2018-11-25 10:15:30.750000,-42.5922,148.2102,32.5,1.6,-0.6,SCP1,transit
2018-11-25 10:16:00.000000,-42.5930,148.2110,33.1,1.2,-0.4,SCP1,survey
2018-11-25 10:16:05.000000,-42.5931,148.2111,33.0,1.1,-0.5,SCP1,survey
`

func loadTestTable(t *testing.T) *Table {

	table, err := ParseTable(strings.NewReader(testLog))

	if err != nil {
		t.Fatalf("Failed to parse telemetry log, %v", err)
	}

	return table
}

func TestParseTableFloorsTimestamps(t *testing.T) {

	table := loadTestTable(t)

	if table.Len() != 4 {
		t.Fatalf("Unexpected row count: %d", table.Len())
	}

	rsp := table.MatchExact(time.Date(2018, 11, 25, 10, 15, 30, 0, time.UTC))

	if rsp.Quality != Exact {
		t.Fatalf("Expected exact match, got %v", rsp.Quality)
	}

	// two rows floor to the same second; the first in table order wins

	if rsp.Record.Latitude != -42.5921 {
		t.Fatalf("Expected first row to win, got latitude %f", rsp.Record.Latitude)
	}

	if rsp.Record.Raw["FinalTime"] != "2018-11-25 10:15:30.250000" {
		t.Fatalf("Raw column not retained verbatim: %s", rsp.Record.Raw["FinalTime"])
	}
}

func TestParseTableStructuredFields(t *testing.T) {

	table := loadTestTable(t)

	rsp := table.MatchExact(time.Date(2018, 11, 25, 10, 16, 0, 0, time.UTC))

	if rsp.Quality != Exact {
		t.Fatalf("Expected exact match, got %v", rsp.Quality)
	}

	rec := rsp.Record

	if rec.Longitude != 148.2110 {
		t.Fatalf("Unexpected longitude: %f", rec.Longitude)
	}

	if rec.Altitude != 33.1 {
		t.Fatalf("Unexpected altitude: %f", rec.Altitude)
	}

	if rec.Camera != "SCP1" {
		t.Fatalf("Unexpected camera: %s", rec.Camera)
	}

	if rec.Operation != "survey" {
		t.Fatalf("Unexpected operation: %s", rec.Operation)
	}
}

func TestParseTableMissingTimestampColumn(t *testing.T) {

	_, err := ParseTable(strings.NewReader("Latitude,Longitude\n1.0,2.0\n"))

	if !errors.Is(err, ErrMalformedTelemetryFile) {
		t.Fatalf("Expected ErrMalformedTelemetryFile, got %v", err)
	}
}

func TestParseTableUnparsableTimestamp(t *testing.T) {

	_, err := ParseTable(strings.NewReader("FinalTime\nnot-a-time\n"))

	if !errors.Is(err, ErrMalformedTelemetryFile) {
		t.Fatalf("Expected ErrMalformedTelemetryFile, got %v", err)
	}
}

func TestLoadTable(t *testing.T) {

	ctx := context.Background()

	root := t.TempDir()

	err := os.MkdirAll(filepath.Join(root, "data"), 0755)

	if err != nil {
		t.Fatalf("Failed to create data directory, %v", err)
	}

	err = os.WriteFile(filepath.Join(root, "data", "MRITC_IN2018_V06_001.CSV"), []byte(testLog), 0644)

	if err != nil {
		t.Fatalf("Failed to write telemetry log, %v", err)
	}

	bucket, err := blob.OpenBucket(ctx, "file://"+root)

	if err != nil {
		t.Fatalf("Failed to open bucket, %v", err)
	}

	defer bucket.Close()

	table, err := LoadTable(ctx, bucket, "data/")

	if err != nil {
		t.Fatalf("Failed to load telemetry table, %v", err)
	}

	if table.Len() != 4 {
		t.Fatalf("Unexpected row count: %d", table.Len())
	}
}

func TestLoadTableMissingFile(t *testing.T) {

	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, "file://"+t.TempDir())

	if err != nil {
		t.Fatalf("Failed to open bucket, %v", err)
	}

	defer bucket.Close()

	_, err = LoadTable(ctx, bucket, "data/")

	if !errors.Is(err, ErrMissingTelemetryFile) {
		t.Fatalf("Expected ErrMissingTelemetryFile, got %v", err)
	}
}
