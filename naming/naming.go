// Package naming defines the standardized file naming scheme for a
// deployment and the single place where names are encoded and decoded.
// Everything that needs to recover a capture timestamp or sequence
// index from a routed file goes through Decode rather than re-parsing
// name fields by hand.
package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedIdentifier is returned when a voyage or deployment
// identifier does not contain the expected number of delimited parts.
var ErrMalformedIdentifier = errors.New("malformed identifier")

// CompactTimestampLayout is the compact ISO 8601 layout embedded in
// standardized names. It is fixed-width so that lexicographic order of
// names equals chronological order within a deployment.
const CompactTimestampLayout = "20060102T150405Z"

// StillToken is the fixed literal token carried by still image names.
const StillToken = "SCP"

// ThumbnailMarker is the suffix appended to thumbnail stems. Files
// carrying it (or the overview stem) are never re-processed.
const ThumbnailMarker = "_THUMB"

// OverviewStem is the basename stem of the mosaic image.
const OverviewStem = "overview"

const delimiter = "_"

// Kind classifies a media file by its extension.
type Kind int

const (
	Unclassified Kind = iota
	Still
	Video
	DataLog
)

// String returns a human-readable label for k.
func (k Kind) String() string {

	switch k {
	case Still:
		return "still"
	case Video:
		return "video"
	case DataLog:
		return "datalog"
	default:
		return "unclassified"
	}
}

// KindForPath classifies path by its (case-insensitive) extension.
func KindForPath(path string) Kind {

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg":
		return Still
	case ".mp4":
		return Video
	case ".csv":
		return DataLog
	default:
		return Unclassified
	}
}

// IsDerived reports whether path names an already-derived artifact
// (a thumbnail or the mosaic) that must be excluded from routing.
func IsDerived(path string) bool {

	name := filepath.Base(path)

	if strings.Contains(name, ThumbnailMarker) {
		return true
	}

	return strings.Contains(name, OverviewStem)
}

// Canonicalize converts t to the canonical correlation resolution:
// UTC, truncated to a whole second.
func Canonicalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// ParseVoyageID splits a voyage identifier in to its prefix and suffix
// tokens, for example "IN2018_V06" in to ("IN2018", "V06").
func ParseVoyageID(voyage_id string) (string, string, error) {

	parts := strings.Split(voyage_id, delimiter)

	if len(parts) != 2 {
		return "", "", fmt.Errorf("Failed to parse voyage ID '%s', %w", voyage_id, ErrMalformedIdentifier)
	}

	return parts[0], parts[1], nil
}

// DeploymentToken returns the short deployment token, the third
// component of a deployment identifier, for example "IN2018_V06_001"
// yields "001".
func DeploymentToken(deployment_id string) (string, error) {

	parts := strings.Split(deployment_id, delimiter)

	if len(parts) != 3 {
		return "", fmt.Errorf("Failed to parse deployment ID '%s', %w", deployment_id, ErrMalformedIdentifier)
	}

	return parts[2], nil
}

// StillName derives the standardized name for a still image captured
// at t with the given device sequence index.
func StillName(platform_id string, voyage_id string, deployment_id string, t time.Time, index int) (string, error) {

	voyage_prefix, voyage_suffix, err := ParseVoyageID(voyage_id)

	if err != nil {
		return "", err
	}

	token, err := DeploymentToken(deployment_id)

	if err != nil {
		return "", err
	}

	stamp := Canonicalize(t).Format(CompactTimestampLayout)

	name := fmt.Sprintf("%s_%s_%s_%s_%s_%s_%04d.JPG", platform_id, StillToken, voyage_prefix, voyage_suffix, token, stamp, index)
	return name, nil
}

// VideoName derives the standardized name for a video captured at t.
// Videos carry no sequence index; the full deployment identifier acts
// as the prefix token instead.
func VideoName(platform_id string, deployment_id string, t time.Time) (string, error) {

	// the deployment ID embeds the voyage ID so the name reads
	// <platform>_<voyage prefix>_<voyage suffix>_<token>_<stamp>

	_, err := DeploymentToken(deployment_id)

	if err != nil {
		return "", err
	}

	stamp := Canonicalize(t).Format(CompactTimestampLayout)

	name := fmt.Sprintf("%s_%s_%s.MP4", platform_id, deployment_id, stamp)
	return name, nil
}

// LogName derives the standardized name for the deployment's telemetry
// log.
func LogName(platform_id string, deployment_id string) (string, error) {

	_, err := DeploymentToken(deployment_id)

	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%s.CSV", platform_id, deployment_id)
	return name, nil
}

// ParsedName holds the fields recovered from a standardized name.
type ParsedName struct {
	// The media kind the name was encoded for.
	Kind Kind
	// The canonical capture timestamp embedded in the name.
	Timestamp time.Time
	// The zero-padded sequence index. Stills only; -1 otherwise.
	Index int
}

// Decode recovers the kind, canonical timestamp and (for stills) the
// sequence index from a standardized name. It is the inverse of
// StillName and VideoName.
func Decode(name string) (*ParsedName, error) {

	kind := KindForPath(name)

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(filepath.Base(name), ext)

	parts := strings.Split(stem, delimiter)

	switch kind {

	case Still:

		// <platform>_SCP_<vpfx>_<vsfx>_<token>_<stamp>_<index>

		if len(parts) != 7 {
			return nil, fmt.Errorf("Failed to decode still name '%s', %w", name, ErrMalformedIdentifier)
		}

		t, err := time.Parse(CompactTimestampLayout, parts[5])

		if err != nil {
			return nil, fmt.Errorf("Failed to decode timestamp in '%s', %w", name, err)
		}

		index, err := strconv.Atoi(parts[6])

		if err != nil {
			return nil, fmt.Errorf("Failed to decode index in '%s', %w", name, err)
		}

		parsed := &ParsedName{
			Kind:      Still,
			Timestamp: t.UTC(),
			Index:     index,
		}

		return parsed, nil

	case Video:

		// <platform>_<vpfx>_<vsfx>_<sequence>_<stamp>

		if len(parts) != 5 {
			return nil, fmt.Errorf("Failed to decode video name '%s', %w", name, ErrMalformedIdentifier)
		}

		t, err := time.Parse(CompactTimestampLayout, parts[4])

		if err != nil {
			return nil, fmt.Errorf("Failed to decode timestamp in '%s', %w", name, err)
		}

		parsed := &ParsedName{
			Kind:      Video,
			Timestamp: t.UTC(),
			Index:     -1,
		}

		return parsed, nil

	default:
		return nil, fmt.Errorf("Name '%s' does not carry an embedded timestamp, %w", name, ErrMalformedIdentifier)
	}
}

// CaptureIndex recovers the device capture counter from a pre-rename
// filename: the run of trailing digits in the stem. Capture devices
// are assumed to name files with a monotonically increasing counter.
func CaptureIndex(name string) (int, error) {

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(filepath.Base(name), ext)

	end := len(stem)
	start := end

	for start > 0 && stem[start-1] >= '0' && stem[start-1] <= '9' {
		start -= 1
	}

	if start == end {
		return 0, fmt.Errorf("Name '%s' has no trailing capture counter, %w", name, ErrMalformedIdentifier)
	}

	index, err := strconv.Atoi(stem[start:end])

	if err != nil {
		return 0, fmt.Errorf("Failed to parse capture counter in '%s', %w", name, err)
	}

	return index, nil
}
