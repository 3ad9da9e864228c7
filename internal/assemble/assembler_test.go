package assemble

import (
	"testing"
	"time"

	"github.com/mbaxter/synapse/internal/types"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"collapse whitespace", "hello   \t\n world", "hello world"},
		{"strip controls", "hel\x00lo\x07 world", "hel lo world"},
		{"trim", "  padded  ", "padded"},
		{"replacement char dropped", "bad�byte", "badbyte"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAssembleDeduplicates(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	early := types.NewSourceRecord("reddit", "the same story", base)
	late := types.NewSourceRecord("hackernews", "the  same\tstory", base.Add(time.Minute))
	distinct := types.NewSourceRecord("arxiv", "something else entirely", base)

	report := &types.IntelligenceReport{
		RequestID:        "req",
		Records:          []*types.SourceRecord{late, early, distinct},
		RequestedSources: 3,
		SucceededCount:   3,
	}

	res := Assemble(report)

	if len(res.Report.Records) != 2 {
		t.Fatalf("kept %d records, want 2", len(res.Report.Records))
	}
	if len(res.Duplicates) != 1 {
		t.Fatalf("duplicates = %d, want 1", len(res.Duplicates))
	}
	if res.Duplicates[0].SourceID != "hackernews" {
		t.Errorf("later fetch should be the duplicate, got %s", res.Duplicates[0].SourceID)
	}

	// Orchestration counts are preserved as fetched.
	if res.Report.SucceededCount != 3 || res.Report.RequestedSources != 3 {
		t.Errorf("counts changed: %d/%d", res.Report.SucceededCount, res.Report.RequestedSources)
	}
	if err := res.Report.Validate(); err != nil {
		t.Errorf("assembled report invariant: %v", err)
	}
}

func TestAssembleNormalizesAndRehashes(t *testing.T) {
	rec := types.NewSourceRecord("rss", "messy\n\ncontent   here", time.Now())
	origHash := rec.ContentHash

	res := Assemble(&types.IntelligenceReport{
		RequestID:        "req",
		Records:          []*types.SourceRecord{rec},
		RequestedSources: 1,
		SucceededCount:   1,
	})

	got := res.Report.Records[0]
	if got.RawContent != "messy content here" {
		t.Errorf("content = %q", got.RawContent)
	}
	if got.ContentHash == origHash {
		t.Error("hash should be recomputed after normalization")
	}
	if got.ID != rec.ID {
		t.Error("fetch identity should be preserved")
	}

	// The input record itself must not be mutated.
	if rec.RawContent != "messy\n\ncontent   here" {
		t.Error("assembler mutated an immutable record")
	}
}

func TestAssemblePassesFailureMarkers(t *testing.T) {
	marker := types.NewFailedRecord("twitter", "timeout", time.Now())
	ok := types.NewSourceRecord("reddit", "content", time.Now())

	res := Assemble(&types.IntelligenceReport{
		RequestID:        "req",
		Records:          []*types.SourceRecord{marker, ok},
		RequestedSources: 2,
		SucceededCount:   1,
		FailedCount:      1,
	})

	if len(res.Report.Records) != 2 {
		t.Fatalf("kept %d records, want 2 (marker preserved)", len(res.Report.Records))
	}
	found := false
	for _, r := range res.Report.Records {
		if !r.Succeeded && r.SourceID == "twitter" {
			found = true
		}
	}
	if !found {
		t.Error("failure marker dropped during assembly")
	}
}
