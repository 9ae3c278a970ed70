// Package prune removes a deployment's derived artifacts (thumbnails,
// the overview mosaic, the manifest) so a processing run can be
// repeated from the routed tree.
package prune

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/GermanHydrogen/mritc-demo-pipeline/naming"
	"github.com/GermanHydrogen/mritc-demo-pipeline/operations/compose"
	"gocloud.dev/blob"
)

// Pruner deletes derived artifacts from a deployment bucket.
type Pruner struct {
	Bucket *blob.Bucket
	// When true, log what would be deleted without deleting it.
	Dryrun bool
}

// PruneDerived removes every derived artifact in the deployment tree.
// Source media and the telemetry log are never touched.
func (p *Pruner) PruneDerived(ctx context.Context) error {

	iter := p.Bucket.List(nil)

	keys := make([]string, 0)

	for {

		obj, err := iter.Next(ctx)

		if err == io.EOF {
			break
		}

		if err != nil {
			return fmt.Errorf("Failed to list deployment bucket, %w", err)
		}

		if obj.IsDir {
			continue
		}

		if !naming.IsDerived(obj.Key) && obj.Key != compose.ManifestKey {
			continue
		}

		keys = append(keys, obj.Key)
	}

	wg := new(sync.WaitGroup)

	for _, key := range keys {

		wg.Add(1)

		go func(key string) {

			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			default:
				// pass
			}

			logger := slog.Default()
			logger = logger.With("key", key)

			if p.Dryrun {
				logger.Info("[dryrun] delete key here")
				return
			}

			err := p.Bucket.Delete(ctx, key)

			if err != nil {
				logger.Error("Failed to delete key", "error", err)
				return
			}

			logger.Debug("Pruned derived artifact")

		}(key)
	}

	wg.Wait()
	return nil
}
