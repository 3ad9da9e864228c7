// Package assemble merges raw adapter output into the immutable,
// provenance-tagged record set the rest of the pipeline works on.
//
// Assembly is a pure, synchronous transform: it performs no I/O and runs
// only after the orchestrator's barrier.
package assemble

import (
	"sort"
	"strings"
	"unicode"

	"github.com/mbaxter/synapse/internal/types"
)

// Result is the outcome of assembling one report.
type Result struct {
	// Report is a new report with normalized, deduplicated records. The
	// orchestration counts (requested/succeeded/failed) are preserved
	// as fetched; deduplication only shrinks the record list.
	Report *types.IntelligenceReport

	// Duplicates lists the records dropped for sharing a content hash
	// with an earlier fetch.
	Duplicates []*types.SourceRecord
}

// Assemble normalizes record text, recomputes content hashes, and drops
// records whose normalized content duplicates an earlier fetch. For each
// duplicate group the earliest FetchedAt wins (SourceID breaks ties) so
// provenance points at the first provider to surface the content.
func Assemble(report *types.IntelligenceReport) *Result {
	// Normalize first: duplicates are judged on normalized content.
	normalized := make([]*types.SourceRecord, 0, len(report.Records))
	for _, r := range report.Records {
		if !r.Succeeded {
			// Failure markers pass through untouched; they carry the
			// counting invariant, not content.
			normalized = append(normalized, r)
			continue
		}
		clean := NormalizeText(r.RawContent)
		if clean == r.RawContent {
			normalized = append(normalized, r)
			continue
		}
		// Records are immutable: normalization produces a new value with
		// the same fetch identity and a recomputed hash.
		nr := *r
		nr.RawContent = clean
		nr.ContentHash = types.HashContent(clean)
		normalized = append(normalized, &nr)
	}

	// Winner per content hash: earliest fetch, then SourceID.
	winners := make(map[string]*types.SourceRecord)
	for _, r := range normalized {
		if !r.Succeeded {
			continue
		}
		prev, seen := winners[r.ContentHash]
		if !seen || earlier(r, prev) {
			winners[r.ContentHash] = r
		}
	}

	var (
		kept       []*types.SourceRecord
		duplicates []*types.SourceRecord
	)
	for _, r := range normalized {
		if !r.Succeeded {
			kept = append(kept, r)
			continue
		}
		if winners[r.ContentHash] == r {
			kept = append(kept, r)
		} else {
			duplicates = append(duplicates, r)
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].SourceID < kept[j].SourceID
	})

	return &Result{
		Report: &types.IntelligenceReport{
			RequestID:        report.RequestID,
			Records:          kept,
			RequestedSources: report.RequestedSources,
			SucceededCount:   report.SucceededCount,
			FailedCount:      report.FailedCount,
			Elapsed:          report.Elapsed,
		},
		Duplicates: duplicates,
	}
}

func earlier(a, b *types.SourceRecord) bool {
	if !a.FetchedAt.Equal(b.FetchedAt) {
		return a.FetchedAt.Before(b.FetchedAt)
	}
	return a.SourceID < b.SourceID
}

// NormalizeText strips control characters, collapses runs of whitespace
// to single spaces, and trims the result. Provider payloads arrive with
// wildly inconsistent encodings of whitespace and invisible characters;
// similarity and hashing both want one canonical form.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := false
	for _, r := range s {
		switch {
		case unicode.IsControl(r), unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		case r == unicode.ReplacementChar:
			// Drop mangled bytes rather than hash them.
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}
