package common

/*

You might be thinking: I know, I'll keep one long-lived bucket around
and share it across every stage! The problem is that the stage that
finishes first will call the bucket's Close() method (and something
_should_ call it) which stops it working for everything else still
holding an instance. So buckets are opened as one-offs, per stage, from
the deployment root.

*/

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"gocloud.dev/blob"
)

// OpenDeployment opens the deployment root directory as a blob.Bucket
// instance. Relative paths are made absolute first because the
// fileblob driver requires them.
func OpenDeployment(ctx context.Context, root string) (*blob.Bucket, error) {

	abs_root, err := filepath.Abs(root)

	if err != nil {
		return nil, fmt.Errorf("Failed to derive absolute path for %s, %w", root, err)
	}

	uri := url.URL{
		Scheme: "file",
		Path:   abs_root,
	}

	q := url.Values{}
	q.Set("create_dir", "true")
	q.Set("no_tmp_dir", "true")
	uri.RawQuery = q.Encode()

	bucket, err := blob.OpenBucket(ctx, uri.String())

	if err != nil {
		return nil, fmt.Errorf("Failed to open bucket for %s, %w", root, err)
	}

	return bucket, nil
}
