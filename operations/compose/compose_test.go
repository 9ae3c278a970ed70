package compose

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/GermanHydrogen/mritc-demo-pipeline/config"
	"github.com/GermanHydrogen/mritc-demo-pipeline/telemetry"
	"github.com/tidwall/gjson"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
)

const testLog = `FinalTime,UsblLatitude,UsblLongitude,Altitude,Pitch,Roll,Camera,Operation
2018-11-25 10:15:30.250000,-42.5921,148.2101,32.4,1.5,-0.7,SCP1,survey
2018-11-25 10:16:00.000000,-42.5930,148.2110,33.1,1.2,-0.4,SCP1,survey
2018-11-25 10:16:05.000000,-42.5931,148.2111,33.0,1.1,-0.5,SCP1,survey
`

const stillKey = "images/MRITC_SCP_IN2018_V06_001_20181125T101530Z_0001.JPG"
const videoKey = "video/MRITC_IN2018_V06_001_20181125T101602Z.MP4"
const thumbKey = "thumbnails/MRITC_SCP_IN2018_V06_001_20181125T101530Z_0001_THUMB.JPG"
const logKey = "data/MRITC_IN2018_V06_001.CSV"

func testConfig() *config.Config {

	return &config.Config{
		PlatformID:   "MRITC",
		VoyageID:     "IN2018_V06",
		DeploymentID: "IN2018_V06_001",
		VoyagePI:     "Keiko Abe",
		License: config.License{
			Name: "CC BY-NC-SA 4.0",
			URI:  "https://creativecommons.org/licenses/by-nc-sa/4.0/",
		},
		Copyright: "CSIRO",
	}
}

func plainJPEG(t *testing.T) []byte {

	im := image.NewRGBA(image.Rect(0, 0, 8, 8))

	buf := new(bytes.Buffer)

	err := jpeg.Encode(buf, im, nil)

	if err != nil {
		t.Fatalf("Failed to encode JPEG, %v", err)
	}

	return buf.Bytes()
}

func testComposer(t *testing.T, files map[string][]byte) *Composer {

	ctx := context.Background()

	root := t.TempDir()

	for key, body := range files {

		path := filepath.Join(root, filepath.FromSlash(key))

		err := os.MkdirAll(filepath.Dir(path), 0755)

		if err != nil {
			t.Fatalf("Failed to create directory for %s, %v", key, err)
		}

		err = os.WriteFile(path, body, 0644)

		if err != nil {
			t.Fatalf("Failed to write %s, %v", key, err)
		}
	}

	bucket, err := blob.OpenBucket(ctx, "file://"+root+"?create_dir=true")

	if err != nil {
		t.Fatalf("Failed to open bucket, %v", err)
	}

	t.Cleanup(func() {
		bucket.Close()
	})

	return &Composer{
		Bucket: bucket,
		Config: testConfig(),
	}
}

func testDeployment(t *testing.T) *Composer {

	return testComposer(t, map[string][]byte{
		stillKey:       plainJPEG(t),
		videoKey:       []byte("not really a video"),
		thumbKey:       plainJPEG(t),
		logKey:         []byte(testLog),
		"overview.jpg": plainJPEG(t),
	})
}

func recordsBySource(records []*OutputRecord) map[string]*OutputRecord {

	by_source := make(map[string]*OutputRecord)

	for _, rec := range records {
		by_source[rec.Source] = rec
	}

	return by_source
}

func TestCompose(t *testing.T) {

	ctx := context.Background()

	c := testDeployment(t)

	records, err := c.Compose(ctx)

	if err != nil {
		t.Fatalf("Failed to compose deployment, %v", err)
	}

	if len(records) != 5 {
		t.Fatalf("Expected one record per file, got %d", len(records))
	}

	by_source := recordsBySource(records)

	if len(by_source) != len(records) {
		t.Fatalf("Duplicate source paths in output mapping")
	}

	still := by_source[stillKey]

	if still.MatchQuality != "exact" {
		t.Fatalf("Unexpected still match quality: %s", still.MatchQuality)
	}

	if still.Destination != "IN2018_V06_001/"+stillKey {
		t.Fatalf("Unexpected still destination: %s", still.Destination)
	}

	if still.Metadata == nil {
		t.Fatalf("Expected still metadata")
	}

	if still.Metadata.Latitude == nil || *still.Metadata.Latitude != -42.5921 {
		t.Fatalf("Unexpected still latitude: %v", still.Metadata.Latitude)
	}

	if still.Metadata.Sensor != "SCP1" {
		t.Fatalf("Unexpected still sensor: %s", still.Metadata.Sensor)
	}

	if still.Ancillary["FinalTime"] != "2018-11-25 10:15:30.250000" {
		t.Fatalf("Raw telemetry column not retained: %s", still.Ancillary["FinalTime"])
	}

	if still.Ancillary["media:fingerprint"] == "" {
		t.Fatalf("Expected still fingerprint in ancillary data")
	}

	if still.Ancillary["media:imagehash_avg"] == "" {
		t.Fatalf("Expected still image hash in ancillary data")
	}

	video := by_source[videoKey]

	if video.MatchQuality != "nearest" {
		t.Fatalf("Unexpected video match quality: %s", video.MatchQuality)
	}

	// 10:16:02 is nearer to the 10:16:00 row than the 10:16:05 row

	if video.Ancillary["FinalTime"] != "2018-11-25 10:16:00.000000" {
		t.Fatalf("Unexpected video telemetry match: %s", video.Ancillary["FinalTime"])
	}

	for _, key := range []string{thumbKey, logKey, "overview.jpg"} {

		rec := by_source[key]

		if rec == nil {
			t.Fatalf("Missing passthrough record for %s", key)
		}

		if rec.MatchQuality != "none" {
			t.Fatalf("Unexpected match quality for %s: %s", key, rec.MatchQuality)
		}

		if rec.Metadata != nil {
			t.Fatalf("Unexpected metadata for %s", key)
		}
	}
}

func TestComposeUnmatchedStillIsPackaged(t *testing.T) {

	ctx := context.Background()

	c := testComposer(t, map[string][]byte{
		"images/MRITC_SCP_IN2018_V06_001_20181125T235959Z_0002.JPG": plainJPEG(t),
		logKey: []byte(testLog),
	})

	records, err := c.Compose(ctx)

	if err != nil {
		t.Fatalf("Failed to compose deployment, %v", err)
	}

	by_source := recordsBySource(records)

	still := by_source["images/MRITC_SCP_IN2018_V06_001_20181125T235959Z_0002.JPG"]

	if still == nil {
		t.Fatalf("Unmatched still was dropped from the output mapping")
	}

	if still.MatchQuality != "none" {
		t.Fatalf("Unexpected match quality: %s", still.MatchQuality)
	}

	if still.Metadata != nil {
		t.Fatalf("Expected no metadata for unmatched still")
	}

	if still.Ancillary["media:fingerprint"] == "" {
		t.Fatalf("Expected fingerprint even without a telemetry match")
	}
}

func TestComposeUnroutedStillIsPackaged(t *testing.T) {

	ctx := context.Background()

	c := testComposer(t, map[string][]byte{
		"NOEXIF_0002.JPG": plainJPEG(t),
		logKey:            []byte(testLog),
	})

	records, err := c.Compose(ctx)

	if err != nil {
		t.Fatalf("Failed to compose deployment, %v", err)
	}

	by_source := recordsBySource(records)

	still := by_source["NOEXIF_0002.JPG"]

	if still == nil {
		t.Fatalf("Unrouted still was dropped from the output mapping")
	}

	if still.Metadata != nil {
		t.Fatalf("Expected no metadata for a still without a standardized name")
	}
}

func TestComposeMissingTelemetry(t *testing.T) {

	ctx := context.Background()

	c := testComposer(t, map[string][]byte{
		stillKey: plainJPEG(t),
	})

	_, err := c.Compose(ctx)

	if !errors.Is(err, telemetry.ErrMissingTelemetryFile) {
		t.Fatalf("Expected ErrMissingTelemetryFile, got %v", err)
	}
}

func TestWriteManifest(t *testing.T) {

	ctx := context.Background()

	c := testDeployment(t)

	records, err := c.Compose(ctx)

	if err != nil {
		t.Fatalf("Failed to compose deployment, %v", err)
	}

	err = WriteManifest(ctx, c.Bucket, c.Config, records)

	if err != nil {
		t.Fatalf("Failed to write manifest, %v", err)
	}

	fh, err := c.Bucket.NewReader(ctx, ManifestKey, nil)

	if err != nil {
		t.Fatalf("Failed to create reader for manifest, %v", err)
	}

	defer fh.Close()

	body, err := io.ReadAll(fh)

	if err != nil {
		t.Fatalf("Failed to read manifest, %v", err)
	}

	deployment_rsp := gjson.GetBytes(body, "deployment_id")

	if deployment_rsp.String() != "IN2018_V06_001" {
		t.Fatalf("Unexpected manifest deployment id: %s", deployment_rsp.String())
	}

	count_rsp := gjson.GetBytes(body, "records.#")

	if count_rsp.Int() != int64(len(records)) {
		t.Fatalf("Unexpected manifest record count: %d", count_rsp.Int())
	}

	quality_rsp := gjson.GetBytes(body, `records.#(source=="`+stillKey+`").match_quality`)

	if quality_rsp.String() != "exact" {
		t.Fatalf("Unexpected manifest match quality: %s", quality_rsp.String())
	}
}
