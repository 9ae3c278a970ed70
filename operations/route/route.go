// Package route relocates a deployment's imported files in to typed
// subdirectories under standardized names.
package route

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/GermanHydrogen/mritc-demo-pipeline/capture"
	"github.com/GermanHydrogen/mritc-demo-pipeline/config"
	"github.com/GermanHydrogen/mritc-demo-pipeline/naming"
	"gocloud.dev/blob"
)

// Typed subdirectories under the deployment root.
const (
	ImagesPrefix = "images/"
	VideoPrefix  = "video/"
	DataPrefix   = "data/"
	ThumbsPrefix = "thumbnails/"
)

// Routed records where one file ended up. Once a file is routed its
// identity is the destination key.
type Routed struct {
	// The file's key before routing.
	Source string
	// The file's key after routing. Equal to Source when the file was
	// left in place (unclassified files, per-file failures).
	Destination string
	// The media kind the file was classified as.
	Kind naming.Kind
	// The canonical capture timestamp. Zero when none was derived.
	Timestamp time.Time
	// The device capture counter. Stills only; -1 otherwise.
	Index int
}

// Router scans a deployment bucket and relocates each file in to its
// typed subdirectory. One bad file never aborts the batch: per-file
// failures are logged and the file is carried through unmoved so it
// still reaches the output mapping.
type Router struct {
	// The bucket holding the deployment's imported (flat) file set.
	Bucket *blob.Bucket
	// The deployment root on the local filesystem. The external
	// container-metadata utility needs real paths.
	LocalRoot string
	// Deployment identifiers and extraction settings.
	Config *config.Config
	// The extractor used for video creation times.
	Video *capture.VideoExtractor
}

// Route classifies and relocates every file at the top level of the
// deployment bucket, returning one Routed entry per file, sorted by
// destination.
func (r *Router) Route(ctx context.Context) ([]*Routed, error) {

	keys, err := r.scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("Failed to scan deployment bucket, %w", err)
	}

	rsp_ch := make(chan *Routed)
	done_ch := make(chan bool)

	for _, key := range keys {

		go func(key string) {

			defer func() {
				done_ch <- true
			}()

			rsp_ch <- r.routeFile(ctx, key)

		}(key)
	}

	remaining := len(keys)
	routed := make([]*Routed, 0, len(keys))

	for remaining > 0 {
		select {
		case <-done_ch:
			remaining -= 1
		case rsp := <-rsp_ch:
			routed = append(routed, rsp)
		}
	}

	sortRouted(routed)
	return routed, nil
}

// scan lists the top level of the bucket, excluding directories and
// already-derived artifacts.
func (r *Router) scan(ctx context.Context) ([]string, error) {

	iter := r.Bucket.List(&blob.ListOptions{
		Delimiter: "/",
	})

	keys := make([]string, 0)

	for {

		select {
		case <-ctx.Done():
			return keys, nil
		default:
			// pass
		}

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

		if naming.IsDerived(obj.Key) {
			continue
		}

		keys = append(keys, obj.Key)
	}

	return keys, nil
}

// routeFile classifies, renames and moves a single file. Failures
// degrade to an unmoved entry rather than an error.
func (r *Router) routeFile(ctx context.Context, key string) *Routed {

	logger := slog.Default()
	logger = logger.With("path", key)

	unmoved := &Routed{
		Source:      key,
		Destination: key,
		Kind:        naming.KindForPath(key),
		Index:       -1,
	}

	switch unmoved.Kind {

	case naming.Still:

		t, err := capture.StillTimestamp(ctx, r.Bucket, key)

		if err != nil {
			logger.Error("Failed to extract still timestamp, leaving file in place", "error", err)
			return unmoved
		}

		index, err := naming.CaptureIndex(key)

		if err != nil {
			logger.Error("Failed to derive capture index, leaving file in place", "error", err)
			return unmoved
		}

		name, err := naming.StillName(r.Config.PlatformID, r.Config.VoyageID, r.Config.DeploymentID, t, index)

		if err != nil {
			logger.Error("Failed to derive standardized name, leaving file in place", "error", err)
			return unmoved
		}

		dest := ImagesPrefix + name

		err = r.move(ctx, key, dest)

		if err != nil {
			logger.Error("Failed to move still, leaving file in place", "error", err)
			return unmoved
		}

		logger.Info("Routed still", "destination", dest)

		return &Routed{
			Source:      key,
			Destination: dest,
			Kind:        naming.Still,
			Timestamp:   t,
			Index:       index,
		}

	case naming.Video:

		// extraction never fails here; a bad video gets the epoch
		// sentinel and stays in the batch

		t := r.Video.Timestamp(ctx, filepath.Join(r.LocalRoot, key))

		name, err := naming.VideoName(r.Config.PlatformID, r.Config.DeploymentID, t)

		if err != nil {
			logger.Error("Failed to derive standardized name, leaving file in place", "error", err)
			return unmoved
		}

		dest := VideoPrefix + name

		err = r.move(ctx, key, dest)

		if err != nil {
			logger.Error("Failed to move video, leaving file in place", "error", err)
			return unmoved
		}

		logger.Info("Routed video", "destination", dest)

		return &Routed{
			Source:      key,
			Destination: dest,
			Kind:        naming.Video,
			Timestamp:   t,
			Index:       -1,
		}

	case naming.DataLog:

		name, err := naming.LogName(r.Config.PlatformID, r.Config.DeploymentID)

		if err != nil {
			logger.Error("Failed to derive standardized name, leaving file in place", "error", err)
			return unmoved
		}

		dest := DataPrefix + name

		err = r.move(ctx, key, dest)

		if err != nil {
			logger.Error("Failed to move data log, leaving file in place", "error", err)
			return unmoved
		}

		logger.Info("Routed data log", "destination", dest)

		return &Routed{
			Source:      key,
			Destination: dest,
			Kind:        naming.DataLog,
			Timestamp:   time.Time{},
			Index:       -1,
		}

	default:

		logger.Debug("Leaving unclassified file in place")
		return unmoved
	}
}

// move copies src to dest and removes src. The copy is deleted again
// if it could not be written completely.
func (r *Router) move(ctx context.Context, src string, dest string) error {

	source_fh, err := r.Bucket.NewReader(ctx, src, nil)

	if err != nil {
		return fmt.Errorf("Failed to create reader for %s, %w", src, err)
	}

	defer source_fh.Close()

	target_wr, err := r.Bucket.NewWriter(ctx, dest, nil)

	if err != nil {
		return fmt.Errorf("Failed to create writer for %s, %w", dest, err)
	}

	_, err = io.Copy(target_wr, source_fh)

	if err != nil {
		target_wr.Close()
		r.Bucket.Delete(ctx, dest)
		return fmt.Errorf("Failed to copy %s to %s, %w", src, dest, err)
	}

	err = target_wr.Close()

	if err != nil {
		return fmt.Errorf("Failed to close writer for %s, %w", dest, err)
	}

	err = r.Bucket.Delete(ctx, src)

	if err != nil {
		return fmt.Errorf("Failed to remove %s after copy, %w", src, err)
	}

	return nil
}

func sortRouted(routed []*Routed) {

	sort.Slice(routed, func(i int, j int) bool {

		if routed[i].Destination != routed[j].Destination {
			return routed[i].Destination < routed[j].Destination
		}

		return routed[i].Source < routed[j].Source
	})
}
