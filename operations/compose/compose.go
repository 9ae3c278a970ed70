// Package compose assembles the final output mapping for a deployment:
// one record per file pairing its routed location with a deployment
// -prefixed destination path and, for correlated media, structured
// metadata plus the matched telemetry row's raw fields.
package compose

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"sync"

	"github.com/GermanHydrogen/mritc-demo-pipeline/common"
	"github.com/GermanHydrogen/mritc-demo-pipeline/config"
	"github.com/GermanHydrogen/mritc-demo-pipeline/media"
	"github.com/GermanHydrogen/mritc-demo-pipeline/naming"
	"github.com/GermanHydrogen/mritc-demo-pipeline/operations/route"
	"github.com/GermanHydrogen/mritc-demo-pipeline/telemetry"
	"github.com/tidwall/sjson"
	"gocloud.dev/blob"
)

// ManifestKey is where the output mapping is written, relative to the
// deployment root.
const ManifestKey = "manifest.json"

// OutputRecord is the externally consumed artifact for one file.
// Ownership passes to the packaging collaborator once produced.
type OutputRecord struct {
	// The file's current key in the deployment tree.
	Source string `json:"source"`
	// The deployment-prefixed destination path.
	Destination string `json:"destination"`
	// Structured metadata derived from the matched telemetry row.
	// Nil when correlation produced no match.
	Metadata *media.ImageData `json:"metadata,omitempty"`
	// The matched telemetry row's original fields, verbatim, plus
	// media fingerprints for stills.
	Ancillary map[string]string `json:"ancillary,omitempty"`
	// How the file was matched: "exact", "nearest" or "none".
	MatchQuality string `json:"match_quality"`
}

// Composer builds the output mapping for one deployment.
type Composer struct {
	// The deployment bucket, post-routing.
	Bucket *blob.Bucket
	// Deployment identifiers and packaging constants.
	Config *config.Config
}

// Compose loads and indexes the telemetry table, correlates every
// routed media file against it, and returns exactly one OutputRecord
// per file in the deployment tree, sorted by source. A missing or
// malformed telemetry log is fatal here but leaves the routed and
// thumbnailed tree untouched.
func (c *Composer) Compose(ctx context.Context) ([]*OutputRecord, error) {

	table, err := telemetry.LoadTable(ctx, c.Bucket, route.DataPrefix)

	if err != nil {
		return nil, fmt.Errorf("Failed to load telemetry table, %w", err)
	}

	keys, err := c.crawl(ctx)

	if err != nil {
		return nil, fmt.Errorf("Failed to crawl deployment bucket, %w", err)
	}

	rsp_ch := make(chan *OutputRecord)
	done_ch := make(chan bool)

	for _, key := range keys {

		go func(key string) {

			defer func() {
				done_ch <- true
			}()

			rsp_ch <- c.composeFile(ctx, table, key)

		}(key)
	}

	remaining := len(keys)
	records := make([]*OutputRecord, 0, len(keys))

	for remaining > 0 {
		select {
		case <-done_ch:
			remaining -= 1
		case rec := <-rsp_ch:
			records = append(records, rec)
		}
	}

	sort.Slice(records, func(i int, j int) bool {
		return records[i].Source < records[j].Source
	})

	c.warnDuplicates(records)

	return records, nil
}

// crawl lists every file in the deployment tree.
func (c *Composer) crawl(ctx context.Context) ([]string, error) {

	iter := c.Bucket.List(nil)

	keys := make([]string, 0)

	for {

		obj, err := iter.Next(ctx)

		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		if obj.IsDir {
			continue
		}

		if obj.Key == ManifestKey {
			continue
		}

		keys = append(keys, obj.Key)
	}

	return keys, nil
}

// composeFile builds the output record for a single file. Correlation
// failures degrade to a record without metadata; nothing is ever
// dropped from the mapping.
func (c *Composer) composeFile(ctx context.Context, table *telemetry.Table, key string) *OutputRecord {

	logger := slog.Default()
	logger = logger.With("path", key)

	rec := &OutputRecord{
		Source:       key,
		Destination:  path.Join(c.Config.DeploymentID, key),
		MatchQuality: telemetry.None.String(),
	}

	kind := naming.KindForPath(key)

	if naming.IsDerived(key) {
		return rec
	}

	if kind != naming.Still && kind != naming.Video {
		return rec
	}

	// the capture timestamp is re-derived from the standardized name,
	// never re-extracted from the file

	parsed, err := naming.Decode(path.Base(key))

	if err != nil {
		logger.Warn("File carries no decodable standardized name, packaging without metadata", "error", err)
		return rec
	}

	match := table.Match(parsed.Kind, parsed.Timestamp)
	rec.MatchQuality = match.Quality.String()

	if match.Record != nil {
		rec.Metadata = media.NewImageData(c.Config, parsed.Timestamp, match.Record)
		rec.Ancillary = ancillaryFields(match.Record)
	} else {
		logger.Warn("No telemetry match, packaging without metadata", "kind", parsed.Kind)
	}

	if kind == naming.Still {
		c.appendFingerprints(ctx, rec, logger)
	}

	return rec
}

// ancillaryFields copies a telemetry row's raw columns so the record
// owns its map.
func ancillaryFields(rec *telemetry.Record) map[string]string {

	raw := make(map[string]string, len(rec.Raw))

	for k, v := range rec.Raw {
		raw[k] = v
	}

	return raw
}

// appendFingerprints attaches the content hash and perceptual hashes
// of a routed still to its ancillary data. Failures are logged; the
// record stands without them.
func (c *Composer) appendFingerprints(ctx context.Context, rec *OutputRecord, logger *slog.Logger) {

	if rec.Ancillary == nil {
		rec.Ancillary = make(map[string]string)
	}

	fp, err := common.FingerprintFile(ctx, c.Bucket, rec.Source)

	if err != nil {
		logger.Error("Failed to fingerprint still", "error", err)
	} else {
		rec.Ancillary["media:fingerprint"] = fp
	}

	hashes, err := common.ImageHashes(ctx, c.Bucket, rec.Source)

	if err != nil {
		logger.Error("Failed to hash still", "error", err)
		return
	}

	for _, h := range hashes {

		if h == nil {
			continue
		}

		k := fmt.Sprintf("media:imagehash_%s", h.Approach)
		rec.Ancillary[k] = h.Hash
	}
}

// warnDuplicates flags stills whose content fingerprints collide.
// Duplicate captures are packaged anyway; the warning is for QA.
func (c *Composer) warnDuplicates(records []*OutputRecord) {

	lu := new(sync.Map)

	for _, rec := range records {

		fp, ok := rec.Ancillary["media:fingerprint"]

		if !ok {
			continue
		}

		existing, loaded := lu.LoadOrStore(fp, rec.Source)

		if loaded {
			slog.Warn("Duplicate still fingerprint", "path", rec.Source, "duplicate_of", existing)
		}
	}
}

// WriteManifest serializes the output mapping, wrapped in a small
// deployment envelope, to the bucket for the packaging collaborator.
func WriteManifest(ctx context.Context, bucket *blob.Bucket, cfg *config.Config, records []*OutputRecord) error {

	body := []byte(`{}`)

	updates := map[string]interface{}{
		"deployment_id": cfg.DeploymentID,
		"platform_id":   cfg.PlatformID,
		"voyage_id":     cfg.VoyageID,
		"records":       records,
	}

	var err error

	for path, value := range updates {

		body, err = sjson.SetBytes(body, path, value)

		if err != nil {
			return fmt.Errorf("Failed to assign %s property, %w", path, err)
		}
	}

	wr, err := bucket.NewWriter(ctx, ManifestKey, nil)

	if err != nil {
		return fmt.Errorf("Failed to create writer for %s, %w", ManifestKey, err)
	}

	_, err = wr.Write(body)

	if err != nil {
		wr.Close()
		return fmt.Errorf("Failed to write manifest, %w", err)
	}

	err = wr.Close()

	if err != nil {
		return fmt.Errorf("Failed to close manifest writer, %w", err)
	}

	return nil
}
