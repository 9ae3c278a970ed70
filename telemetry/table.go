// Package telemetry loads the deployment's time-indexed sensor log and
// correlates routed media files against it.
package telemetry

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/GermanHydrogen/mritc-demo-pipeline/naming"
	"gocloud.dev/blob"
)

var (
	// ErrMissingTelemetryFile is returned when no telemetry log can be
	// found in the routed data directory.
	ErrMissingTelemetryFile = errors.New("missing telemetry file")
	// ErrMalformedTelemetryFile is returned when the telemetry log's
	// timestamp column is absent or does not parse.
	ErrMalformedTelemetryFile = errors.New("malformed telemetry file")
)

// TimestampColumn is the name of the telemetry log's timestamp column.
const TimestampColumn = "FinalTime"

// timestampLayout is the raw format of the timestamp column. Values
// are floored to whole seconds on load.
const timestampLayout = "2006-01-02 15:04:05.999999"

// Record is one row of the sensor log, with its timestamp floored to
// the canonical correlation resolution. Raw retains every original
// column verbatim because the structured fields do not cover the whole
// log schema.
type Record struct {
	Timestamp time.Time
	Latitude  float64
	Longitude float64
	Altitude  float64
	Pitch     float64
	Roll      float64
	Camera    string
	Operation string
	Raw       map[string]string
}

// Table is the indexed, read-only telemetry table for one deployment.
type Table struct {
	records []*Record
	index   map[int64]int
}

// LoadTable locates the single expected telemetry log under prefix in
// bucket and parses it. The table is immutable once returned.
func LoadTable(ctx context.Context, bucket *blob.Bucket, prefix string) (*Table, error) {

	iter := bucket.List(&blob.ListOptions{
		Prefix: prefix,
	})

	var log_key string

	for {

		obj, err := iter.Next(ctx)

		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("Failed to list %s, %w", prefix, err)
		}

		if obj.IsDir {
			continue
		}

		if naming.KindForPath(obj.Key) != naming.DataLog {
			continue
		}

		log_key = obj.Key
		break
	}

	if log_key == "" {
		return nil, fmt.Errorf("No telemetry log under %s, %w", prefix, ErrMissingTelemetryFile)
	}

	r, err := bucket.NewReader(ctx, log_key, nil)

	if err != nil {
		return nil, fmt.Errorf("Failed to create reader for %s, %w", log_key, err)
	}

	defer r.Close()

	table, err := ParseTable(r)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse telemetry log %s, %w", log_key, err)
	}

	return table, nil
}

// ParseTable parses a telemetry log in to an indexed Table. The first
// row is the header; every subsequent row's timestamp column is parsed
// and floored to whole seconds.
func ParseTable(r io.Reader) (*Table, error) {

	csv_r := csv.NewReader(r)
	csv_r.TrimLeadingSpace = true

	header, err := csv_r.Read()

	if err != nil {
		return nil, fmt.Errorf("Failed to read telemetry header, %w", ErrMalformedTelemetryFile)
	}

	columns := make(map[string]int)

	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	ts_col, ok := columns[TimestampColumn]

	if !ok {
		return nil, fmt.Errorf("Telemetry log has no %s column, %w", TimestampColumn, ErrMalformedTelemetryFile)
	}

	records := make([]*Record, 0)
	index := make(map[int64]int)

	for {

		row, err := csv_r.Read()

		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("Failed to read telemetry row, %w", ErrMalformedTelemetryFile)
		}

		t, err := time.ParseInLocation(timestampLayout, strings.TrimSpace(row[ts_col]), time.UTC)

		if err != nil {
			return nil, fmt.Errorf("Failed to parse telemetry timestamp '%s', %w", row[ts_col], ErrMalformedTelemetryFile)
		}

		raw := make(map[string]string)

		for name, i := range columns {
			if i < len(row) {
				raw[name] = row[i]
			}
		}

		rec := &Record{
			Timestamp: naming.Canonicalize(t),
			Latitude:  floatColumn(raw, "UsblLatitude"),
			Longitude: floatColumn(raw, "UsblLongitude"),
			Altitude:  floatColumn(raw, "Altitude"),
			Pitch:     floatColumn(raw, "Pitch"),
			Roll:      floatColumn(raw, "Roll"),
			Camera:    raw["Camera"],
			Operation: raw["Operation"],
			Raw:       raw,
		}

		position := len(records)
		records = append(records, rec)

		// first row wins for duplicate floored timestamps

		key := rec.Timestamp.Unix()

		_, exists := index[key]

		if !exists {
			index[key] = position
		}
	}

	table := &Table{
		records: records,
		index:   index,
	}

	return table, nil
}

// Len returns the number of rows in the table.
func (t *Table) Len() int {
	return len(t.records)
}

// floatColumn parses a named column leniently. Schema drift is
// tolerated here; the verbatim value is always retained in Raw.
func floatColumn(raw map[string]string, name string) float64 {

	str_v, ok := raw[name]

	if !ok {
		return 0
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(str_v), 64)

	if err != nil {
		slog.Debug("Failed to parse telemetry column", "column", name, "value", str_v)
		return 0
	}

	return v
}
