package telemetry

import (
	"time"

	"github.com/GermanHydrogen/mritc-demo-pipeline/naming"
)

// Quality tags how a media file was matched against the table.
type Quality int

const (
	// None means no telemetry row could be attached. The file is
	// still packaged, just without navigation metadata.
	None Quality = iota
	// Exact means a row with the same floored timestamp was found.
	Exact
	// Nearest means the row with the smallest absolute time
	// difference was attached.
	Nearest
)

// String returns a human-readable label for q.
func (q Quality) String() string {

	switch q {
	case Exact:
		return "exact"
	case Nearest:
		return "nearest"
	default:
		return "none"
	}
}

// CorrelationResult pairs a media file's capture timestamp with zero
// or one matched telemetry row.
type CorrelationResult struct {
	Record  *Record
	Quality Quality
}

// Match correlates a canonical capture timestamp against the table.
// Stills require an exact floored-timestamp hit because still capture
// is synchronized to telemetry logging granularity; videos span a
// duration and take the nearest row instead.
func (t *Table) Match(kind naming.Kind, ts time.Time) *CorrelationResult {

	switch kind {
	case naming.Still:
		return t.MatchExact(ts)
	case naming.Video:
		return t.MatchNearest(ts)
	default:
		return &CorrelationResult{Quality: None}
	}
}

// MatchExact looks up a row whose floored timestamp equals ts. When
// several rows share the timestamp the first in table order wins.
func (t *Table) MatchExact(ts time.Time) *CorrelationResult {

	position, ok := t.index[naming.Canonicalize(ts).Unix()]

	if !ok {
		return &CorrelationResult{Quality: None}
	}

	return &CorrelationResult{
		Record:  t.records[position],
		Quality: Exact,
	}
}

// MatchNearest selects the row with the smallest absolute time
// difference to ts, ties broken by first occurrence in table order.
// There is no maximum-distance cutoff: the only case without a match
// is an empty table.
func (t *Table) MatchNearest(ts time.Time) *CorrelationResult {

	if len(t.records) == 0 {
		return &CorrelationResult{Quality: None}
	}

	target := naming.Canonicalize(ts)

	best := 0
	best_diff := absDuration(t.records[0].Timestamp.Sub(target))

	for i, rec := range t.records[1:] {

		diff := absDuration(rec.Timestamp.Sub(target))

		if diff < best_diff {
			best = i + 1
			best_diff = diff
		}
	}

	return &CorrelationResult{
		Record:  t.records[best],
		Quality: Nearest,
	}
}

func absDuration(d time.Duration) time.Duration {

	if d < 0 {
		return -d
	}

	return d
}
