// Package types defines the data model shared across the intelligence
// pipeline: source records, reports, connections, candidate artifacts,
// and the failure taxonomy.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Criticality declares how the orchestrator treats an adapter failure.
type Criticality string

const (
	// CriticalityCritical adapters must succeed or the whole report build
	// fails with ErrQuorumNotMet.
	CriticalityCritical Criticality = "critical"

	// CriticalityOptional adapters may fail; the failure only counts
	// against the quorum fraction.
	CriticalityOptional Criticality = "optional"
)

// IsValid returns true if the criticality is a known value.
func (c Criticality) IsValid() bool {
	return c == CriticalityCritical || c == CriticalityOptional
}

// SourceRecord is one immutable, content-addressed unit of data fetched
// from a single external provider. Records are never mutated after they
// are appended to a report; re-fetching identical content yields the same
// ContentHash.
type SourceRecord struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	RawContent  string    `json:"raw_content"`
	FetchedAt   time.Time `json:"fetched_at"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Succeeded   bool      `json:"succeeded"`

	// FailureKind is set on marker records for failed fetches
	// (e.g. "timeout", "network", "auth").
	FailureKind string `json:"failure_kind,omitempty"`
}

// NewSourceRecord creates a successful record with a fresh ID and a
// content hash computed from the raw content.
func NewSourceRecord(sourceID, rawContent string, fetchedAt time.Time) *SourceRecord {
	return &SourceRecord{
		ID:          uuid.New().String(),
		SourceID:    sourceID,
		RawContent:  rawContent,
		FetchedAt:   fetchedAt,
		ContentHash: HashContent(rawContent),
		Succeeded:   true,
	}
}

// NewFailedRecord creates a marker record for a failed fetch. Marker
// records carry no content and are excluded from assembly and similarity,
// but they keep the succeeded/failed arithmetic honest.
func NewFailedRecord(sourceID, failureKind string, fetchedAt time.Time) *SourceRecord {
	return &SourceRecord{
		ID:          uuid.New().String(),
		SourceID:    sourceID,
		FetchedAt:   fetchedAt,
		Succeeded:   false,
		FailureKind: failureKind,
	}
}

// HasEmbedding reports whether the record can participate in similarity
// computation.
func (r *SourceRecord) HasEmbedding() bool {
	return r.Succeeded && len(r.Embedding) > 0
}

// HashContent returns the hex-encoded SHA-256 of the content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// IntelligenceReport is the outcome of one orchestration run. It is
// created once and read-only after completion.
type IntelligenceReport struct {
	RequestID        string          `json:"request_id"`
	Records          []*SourceRecord `json:"records"`
	RequestedSources int             `json:"requested_sources"`
	SucceededCount   int             `json:"succeeded_count"`
	FailedCount      int             `json:"failed_count"`
	Elapsed          time.Duration   `json:"elapsed"`
}

// RecordByID returns the record with the given ID, or nil.
func (rep *IntelligenceReport) RecordByID(id string) *SourceRecord {
	for _, r := range rep.Records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// RecordIDs returns the IDs of all records in the report.
func (rep *IntelligenceReport) RecordIDs() map[string]bool {
	ids := make(map[string]bool, len(rep.Records))
	for _, r := range rep.Records {
		ids[r.ID] = true
	}
	return ids
}

// SucceededRecords returns only the records whose fetch succeeded.
func (rep *IntelligenceReport) SucceededRecords() []*SourceRecord {
	out := make([]*SourceRecord, 0, len(rep.Records))
	for _, r := range rep.Records {
		if r.Succeeded {
			out = append(out, r)
		}
	}
	return out
}

// Validate checks the report's counting invariant.
func (rep *IntelligenceReport) Validate() error {
	if rep.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}
	if rep.SucceededCount+rep.FailedCount != rep.RequestedSources {
		return fmt.Errorf("succeeded (%d) + failed (%d) != requested (%d)",
			rep.SucceededCount, rep.FailedCount, rep.RequestedSources)
	}
	return nil
}

// Connection is a discovered similarity relationship spanning two or more
// source records. Connections are computed lazily per report and are a
// deterministic function of the report and discovery options.
type Connection struct {
	ID                   string   `json:"id"`
	ParticipantRecordIDs []string `json:"participant_record_ids"`
	SimilarityScore      float64  `json:"similarity_score"`
	NoveltyScore         float64  `json:"novelty_score"`
	RelevanceScore       float64  `json:"relevance_score"`
	EmotionalScore       float64  `json:"emotional_score"`
	BreakthroughScore    float64  `json:"breakthrough_score"`
	Rank                 int      `json:"rank"`
}

// Validate checks the connection against its owning report: at least two
// participants, all of them records the report actually contains.
func (c *Connection) Validate(report *IntelligenceReport) error {
	if len(c.ParticipantRecordIDs) < 2 {
		return fmt.Errorf("connection %s has %d participants, need at least 2",
			c.ID, len(c.ParticipantRecordIDs))
	}
	ids := report.RecordIDs()
	for _, id := range c.ParticipantRecordIDs {
		if !ids[id] {
			return fmt.Errorf("connection %s references record %s not in report %s",
				c.ID, id, report.RequestID)
		}
	}
	return nil
}

// ParticipantKey returns a stable identity for the participant set,
// independent of discovery order.
func (c *Connection) ParticipantKey() string {
	ids := append([]string(nil), c.ParticipantRecordIDs...)
	sort.Strings(ids)
	key := ""
	for i, id := range ids {
		if i > 0 {
			key += "|"
		}
		key += id
	}
	return key
}

// Tier is a discrete quality bucket for a candidate artifact.
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGreat     Tier = "great"
	TierGood      Tier = "good"
	TierFair      Tier = "fair"
	TierPoor      Tier = "poor"
)

// IsValid returns true if the tier is a known value.
func (t Tier) IsValid() bool {
	switch t {
	case TierExcellent, TierGreat, TierGood, TierFair, TierPoor:
		return true
	}
	return false
}

// Acceptable reports whether a candidate at this tier terminates the
// retry loop without another attempt.
func (t Tier) Acceptable() bool {
	switch t {
	case TierExcellent, TierGreat, TierGood:
		return true
	}
	return false
}

// ArtifactCategory classifies what kind of output the synthesis engine
// produced from a connection.
type ArtifactCategory string

const (
	CategoryInsight  ArtifactCategory = "insight"
	CategoryTrend    ArtifactCategory = "trend"
	CategoryContrast ArtifactCategory = "contrast"
	CategoryDigest   ArtifactCategory = "digest"
)

// IsValid returns true if the category is a known value.
func (c ArtifactCategory) IsValid() bool {
	switch c {
	case CategoryInsight, CategoryTrend, CategoryContrast, CategoryDigest:
		return true
	}
	return false
}

// CandidateArtifact is a generated output referencing source records by
// identifier. Each retry attempt produces a new artifact; attempts are
// append-only history, never edited in place.
type CandidateArtifact struct {
	ID                  string             `json:"id"`
	ConnectionID        string             `json:"connection_id"`
	Category            ArtifactCategory   `json:"category"`
	Content             string             `json:"content"`
	ReferencedRecordIDs []string           `json:"referenced_record_ids"`
	DimensionScores     map[string]float64 `json:"dimension_scores,omitempty"`
	QualityScore        float64            `json:"quality_score"`
	Tier                Tier               `json:"tier,omitempty"`
	AttemptNumber       int                `json:"attempt_number"`

	// Fallback marks artifacts produced by the deterministic template
	// strategy after retries were exhausted.
	Fallback bool `json:"fallback,omitempty"`
}

// NewCandidateArtifact creates an artifact shell for a given attempt.
func NewCandidateArtifact(connectionID string, attempt int) *CandidateArtifact {
	return &CandidateArtifact{
		ID:            uuid.New().String(),
		ConnectionID:  connectionID,
		AttemptNumber: attempt,
	}
}

// References reports whether the artifact references the given record ID.
func (a *CandidateArtifact) References(recordID string) bool {
	for _, id := range a.ReferencedRecordIDs {
		if id == recordID {
			return true
		}
	}
	return false
}

// RetryState tracks the retry controller's progress for one connection.
// It is owned exclusively by the controller.
type RetryState struct {
	Attempts      int    `json:"attempts"`
	StrategyIndex int    `json:"strategy_index"`
	LastErrorKind string `json:"last_error_kind,omitempty"`
}
