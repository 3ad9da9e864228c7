package synth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mbaxter/synapse/internal/types"
)

// templateExcerptLen caps the per-record excerpt in the fallback body.
const templateExcerptLen = 160

// templateArtifact builds a deterministic artifact directly from record
// content. It performs no I/O and cannot fail, so it terminates the
// retry ladder unconditionally. Everything in the body is either a
// derived statistic or a verbatim record excerpt, so the result passes
// the provenance gate by construction.
func templateArtifact(conn *types.Connection, records []*types.SourceRecord, attempt int) *types.CandidateArtifact {
	sorted := append([]*types.SourceRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var b strings.Builder
	fmt.Fprintf(&b, "Digest of %d related records (similarity %.2f).\n",
		len(sorted), conn.SimilarityScore)

	refs := make([]string, 0, len(sorted))
	for _, r := range sorted {
		refs = append(refs, r.ID)
		fmt.Fprintf(&b, "\nFrom %s: %s", r.SourceID, excerpt(r.RawContent, templateExcerptLen))
	}

	art := types.NewCandidateArtifact(conn.ID, attempt)
	art.Category = types.CategoryDigest
	art.Content = b.String()
	art.ReferencedRecordIDs = refs
	art.Fallback = true
	return art
}
