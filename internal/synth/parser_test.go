package synth

import (
	"testing"

	"github.com/mbaxter/synapse/internal/types"
)

func TestParsePayloadPlainJSON(t *testing.T) {
	p, err := parsePayload(`{"category": "trend", "content": "body text", "referenced_record_ids": ["r1", "r2"]}`)
	if err != nil {
		t.Fatalf("parsePayload: %v", err)
	}
	if p.Category != "trend" || p.Content != "body text" {
		t.Errorf("unexpected payload: %+v", p)
	}
	if len(p.ReferencedRecordIDs) != 2 {
		t.Errorf("expected 2 refs, got %v", p.ReferencedRecordIDs)
	}
}

func TestParsePayloadCodeFence(t *testing.T) {
	raw := "Here is the artifact:\n```json\n{\"category\": \"insight\", \"content\": \"fenced\", \"referenced_record_ids\": [\"r1\"]}\n```\nDone."
	p, err := parsePayload(raw)
	if err != nil {
		t.Fatalf("parsePayload: %v", err)
	}
	if p.Content != "fenced" {
		t.Errorf("content = %q", p.Content)
	}
}

func TestParsePayloadEmbeddedObject(t *testing.T) {
	raw := `Sure! {"category": "digest", "content": "inline {braces} and \"escapes\"", "referenced_record_ids": ["r1"]} hope that helps`
	p, err := parsePayload(raw)
	if err != nil {
		t.Fatalf("parsePayload: %v", err)
	}
	if p.Content != `inline {braces} and "escapes"` {
		t.Errorf("content = %q", p.Content)
	}
}

func TestParsePayloadRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not json at all", `{"category": "insight"}`} {
		if _, err := parsePayload(raw); err == nil {
			t.Errorf("parsePayload(%q) expected error", raw)
		}
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want types.ArtifactCategory
	}{
		{"trend", types.CategoryTrend},
		{" Contrast ", types.CategoryContrast},
		{"DIGEST", types.CategoryDigest},
		{"insight", types.CategoryInsight},
		{"something else", types.CategoryInsight},
		{"", types.CategoryInsight},
	}
	for _, tt := range tests {
		if got := parseCategory(tt.in); got != tt.want {
			t.Errorf("parseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
