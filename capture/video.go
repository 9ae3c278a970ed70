package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/GermanHydrogen/mritc-demo-pipeline/naming"
)

// videoTimestampLayout is the container creation-time format emitted
// by ffprobe for the platform's capture hardware.
const videoTimestampLayout = "2006-01-02T15:04:05.000000Z"

// SentinelTimestamp is the well-defined stand-in assigned to a video
// whose creation time cannot be extracted. One bad video must never
// block the batch.
var SentinelTimestamp = time.Unix(0, 0).UTC()

// VideoExtractor reads the creation-time field from a video container
// by shelling out to ffprobe.
type VideoExtractor struct {
	// The ffprobe binary to invoke. Defaults to "ffprobe" in PATH.
	Binary string
	// The maximum time one extraction may take. Expiry is treated as
	// an extraction failure.
	Timeout time.Duration
}

// Timestamp returns the canonical capture timestamp for the video at
// path. It never fails: on any extraction error it logs and returns
// SentinelTimestamp.
func (ex *VideoExtractor) Timestamp(ctx context.Context, path string) time.Time {

	t, err := ex.probe(ctx, path)

	if err != nil {
		slog.Error("Failed to extract video creation time, assigning sentinel", "path", path, "error", err)
		return SentinelTimestamp
	}

	return t
}

// probe invokes ffprobe and parses the creation_time format tag.
func (ex *VideoExtractor) probe(ctx context.Context, path string) (time.Time, error) {

	binary := strings.TrimSpace(ex.Binary)

	if binary == "" {
		binary = "ffprobe"
	}

	if ex.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ex.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, binary,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "format_tags=creation_time",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"--", path,
	)

	output, err := cmd.Output()

	if err != nil {
		return time.Time{}, fmt.Errorf("Failed to run %s for %s, %w", binary, path, err)
	}

	return ParseCreationTime(string(output))
}

// ParseCreationTime parses a raw creation_time value as reported by
// ffprobe in to a canonical timestamp.
func ParseCreationTime(raw string) (time.Time, error) {

	creation_time := strings.TrimSpace(raw)

	if creation_time == "" {
		return time.Time{}, fmt.Errorf("Container metadata has a blank creation time, %w", ErrNoMetadata)
	}

	t, err := time.Parse(videoTimestampLayout, creation_time)

	if err != nil {
		return time.Time{}, fmt.Errorf("Failed to parse creation time '%s', %w", creation_time, ErrUnparsableTimestamp)
	}

	return naming.Canonicalize(t), nil
}
