package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"gocloud.dev/blob"
)

// FingerprintFile generates the SHA-256 hash of a file stored in a
// blob.Bucket instance. Fingerprints travel with packaged imagery so
// downstream catalogues can verify integrity and spot duplicates.
func FingerprintFile(ctx context.Context, bucket *blob.Bucket, path string) (string, error) {

	fh, err := bucket.NewReader(ctx, path, nil)

	if err != nil {
		return "", fmt.Errorf("Failed to create reader for %s, %w", path, err)
	}

	defer fh.Close()

	h := sha256.New()

	_, err = io.Copy(h, fh)

	if err != nil {
		return "", fmt.Errorf("Failed to hash %s, %w", path, err)
	}

	hash := h.Sum(nil)
	str := hex.EncodeToString(hash[:])

	return str, nil
}
