// Package capture derives canonical capture timestamps from embedded
// per-file metadata: the EXIF DateTime tag for still images and the
// container creation-time field (via ffprobe) for video.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/GermanHydrogen/mritc-demo-pipeline/naming"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
	"gocloud.dev/blob"
)

var (
	// ErrNoMetadata is returned when a file carries no embedded
	// capture-time metadata.
	ErrNoMetadata = errors.New("no embedded capture metadata")
	// ErrUnreadableFile is returned when a file cannot be decoded as
	// the media type its extension claims.
	ErrUnreadableFile = errors.New("unreadable media file")
	// ErrUnparsableTimestamp is returned when embedded metadata is
	// present but its timestamp field does not parse.
	ErrUnparsableTimestamp = errors.New("unparsable capture timestamp")
)

// exifTimestampLayout is the EXIF "DateTime" tag format. Values are
// assumed UTC per the capture platform's convention.
const exifTimestampLayout = "2006:01:02 15:04:05"

func init() {
	exif.RegisterParsers(mknote.All...)
}

// StillTimestamp reads the EXIF DateTime tag from the image stored
// under key in bucket and returns it as a canonical timestamp. The
// source file is only ever opened for reading.
func StillTimestamp(ctx context.Context, bucket *blob.Bucket, key string) (time.Time, error) {

	r, err := bucket.NewReader(ctx, key, nil)

	if err != nil {
		return time.Time{}, fmt.Errorf("Failed to create reader for %s, %w", key, err)
	}

	defer r.Close()

	exif_data, err := exif.Decode(r)

	if err != nil {
		return time.Time{}, classifyDecodeFailure(ctx, bucket, key, err)
	}

	tag, err := exif_data.Get(exif.DateTime)

	if err != nil {
		return time.Time{}, fmt.Errorf("Image %s has no EXIF DateTime tag, %w", key, ErrNoMetadata)
	}

	str_dt, err := tag.StringVal()

	if err != nil {
		return time.Time{}, fmt.Errorf("Failed to read EXIF DateTime tag for %s, %w", key, ErrUnparsableTimestamp)
	}

	t, err := time.ParseInLocation(exifTimestampLayout, str_dt, time.UTC)

	if err != nil {
		return time.Time{}, fmt.Errorf("Failed to parse EXIF DateTime '%s' for %s, %w", str_dt, key, ErrUnparsableTimestamp)
	}

	return naming.Canonicalize(t), nil
}

// classifyDecodeFailure distinguishes an image that simply carries no
// EXIF block from one that is not a readable image at all.
func classifyDecodeFailure(ctx context.Context, bucket *blob.Bucket, key string, cause error) error {

	r, err := bucket.NewReader(ctx, key, nil)

	if err != nil {
		return fmt.Errorf("Failed to create reader for %s, %w", key, ErrUnreadableFile)
	}

	defer r.Close()

	_, _, err = image.Decode(r)

	if err != nil {
		return fmt.Errorf("Failed to decode %s as an image, %w", key, ErrUnreadableFile)
	}

	return fmt.Errorf("Image %s has no EXIF metadata (%v), %w", key, cause, ErrNoMetadata)
}
