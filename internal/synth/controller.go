package synth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mbaxter/synapse/internal/discover"
	"github.com/mbaxter/synapse/internal/score"
	"github.com/mbaxter/synapse/internal/types"
)

// State is a phase of the artifact retry lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateGenerating State = "generating"
	StateScored     State = "scored"
	StateRetrying   State = "retrying"
	StateAccepted   State = "accepted"
	StateExhausted  State = "exhausted"
	StateFallback   State = "fallback"
)

// ControllerConfig bounds the artifact retry ladder.
type ControllerConfig struct {
	// MaxAttempts is the number of generated attempts before the
	// deterministic fallback (default 3).
	MaxAttempts int `yaml:"max_attempts"`

	// NarrowTo is how many records the narrowed-selection strategy
	// keeps (default 2).
	NarrowTo int `yaml:"narrow_to"`
}

// DefaultControllerConfig returns production retry settings.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{MaxAttempts: 3, NarrowTo: 2}
}

// Controller drives synthesis attempts for one connection through the
// strategy ladder: full context, then narrowed record selection, then
// simplified constraints, and finally the deterministic template. It
// always returns an artifact.
type Controller struct {
	gen    Generator
	scorer *score.Scorer
	cfg    ControllerConfig
}

// NewController creates a controller.
func NewController(gen Generator, scorer *score.Scorer, cfg ControllerConfig) (*Controller, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.NarrowTo <= 0 {
		cfg.NarrowTo = 2
	}
	return &Controller{gen: gen, scorer: scorer, cfg: cfg}, nil
}

// Produce runs the retry ladder for one connection and returns the best
// artifact it could obtain along with the final retry state. On context
// cancellation it returns the last completed attempt, or the fallback
// template when no attempt completed. It never returns nil.
func (c *Controller) Produce(ctx context.Context, conn *types.Connection, records []*types.SourceRecord, constraints Constraints) (*types.CandidateArtifact, types.RetryState) {
	state := types.RetryState{}
	recordsByID := make(map[string]*types.SourceRecord, len(records))
	for _, r := range records {
		recordsByID[r.ID] = r
	}

	var lastScored *types.CandidateArtifact

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			if lastScored != nil {
				return lastScored, state
			}
			return c.fallback(conn, records, max(attempt-1, 1)), state
		}

		state.Attempts = attempt
		state.StrategyIndex = attempt - 1
		req := c.requestFor(conn, records, constraints, attempt, state.LastErrorKind, lastScored)

		c.logTransition(conn.ID, StateGenerating, attempt, strategyName(attempt))

		raw, err := c.gen.Generate(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if lastScored != nil {
					return lastScored, state
				}
				return c.fallback(conn, records, attempt), state
			}
			state.LastErrorKind = "generation: " + excerpt(err.Error(), 120)
			c.logTransition(conn.ID, StateRetrying, attempt, state.LastErrorKind)
			continue
		}

		p, err := parsePayload(raw)
		if err != nil {
			state.LastErrorKind = "parse: respond with a single JSON object only"
			c.logTransition(conn.ID, StateRetrying, attempt, state.LastErrorKind)
			continue
		}

		if verr := validateProvenance(p.Content, p.ReferencedRecordIDs, recordsByID); verr != nil {
			state.LastErrorKind = "validation: " + strings.Join(verr.Violations, "; ")
			c.logTransition(conn.ID, StateRetrying, attempt, state.LastErrorKind)
			continue
		}

		art := types.NewCandidateArtifact(conn.ID, attempt)
		art.Category = parseCategory(p.Category)
		art.Content = p.Content
		art.ReferencedRecordIDs = p.ReferencedRecordIDs

		tier := c.scorer.Score(art)
		c.logTransition(conn.ID, StateScored, attempt, fmt.Sprintf("quality=%.1f tier=%s", art.QualityScore, tier))

		if tier.Acceptable() {
			c.logTransition(conn.ID, StateAccepted, attempt, string(tier))
			return art, state
		}

		lastScored = art
		state.LastErrorKind = "quality: weakest dimension " + weakestDimension(art)
		if attempt < c.cfg.MaxAttempts {
			c.logTransition(conn.ID, StateRetrying, attempt, state.LastErrorKind)
		}
	}

	c.logTransition(conn.ID, StateExhausted, c.cfg.MaxAttempts, state.LastErrorKind)
	return c.fallback(conn, records, c.cfg.MaxAttempts), state
}

// requestFor builds the generation request for the given rung of the
// strategy ladder.
func (c *Controller) requestFor(conn *types.Connection, records []*types.SourceRecord, constraints Constraints, attempt int, hint string, prior *types.CandidateArtifact) Request {
	req := Request{Connection: conn, Records: records, Constraints: constraints, Hint: hint}
	if attempt >= 2 {
		req.Records = narrowRecords(records, c.cfg.NarrowTo)
	}
	if attempt >= 3 {
		req.Constraints = constraints.Simplified()
	}
	if prior != nil && hint == "" {
		req.Hint = "the previous attempt scored too low; be more specific"
	}
	return req
}

// fallback produces and scores the deterministic template artifact,
// tagged poor regardless of its computed quality.
func (c *Controller) fallback(conn *types.Connection, records []*types.SourceRecord, attempt int) *types.CandidateArtifact {
	art := templateArtifact(conn, records, attempt)
	c.scorer.Score(art)
	art.Tier = types.TierPoor
	c.logTransition(conn.ID, StateFallback, attempt, "deterministic template")
	return art
}

func (c *Controller) logTransition(connID string, s State, attempt int, detail string) {
	fmt.Printf("synthesis %s: %s (attempt %d/%d) %s\n", connID, s, attempt, c.cfg.MaxAttempts, detail)
}

// narrowRecords keeps the n most mutually similar records when
// embeddings are available, otherwise the first n in ID order.
func narrowRecords(records []*types.SourceRecord, n int) []*types.SourceRecord {
	if len(records) <= n {
		return records
	}

	sorted := append([]*types.SourceRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	allEmbedded := true
	for _, r := range sorted {
		if !r.HasEmbedding() {
			allEmbedded = false
			break
		}
	}
	if !allEmbedded {
		return sorted[:n]
	}

	// Rank each record by its total similarity to the others and keep
	// the top n, restoring ID order for a stable prompt.
	type ranked struct {
		rec   *types.SourceRecord
		total float64
	}
	rs := make([]ranked, len(sorted))
	for i, r := range sorted {
		rs[i].rec = r
		for j, other := range sorted {
			if i != j {
				rs[i].total += discover.CosineSimilarity(r.Embedding, other.Embedding)
			}
		}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].total != rs[j].total {
			return rs[i].total > rs[j].total
		}
		return rs[i].rec.ID < rs[j].rec.ID
	})

	kept := make([]*types.SourceRecord, 0, n)
	for _, r := range rs[:n] {
		kept = append(kept, r.rec)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	return kept
}

// weakestDimension names the lowest scoring quality dimension.
func weakestDimension(art *types.CandidateArtifact) string {
	weakest := ""
	low := 101.0
	names := make([]string, 0, len(art.DimensionScores))
	for name := range art.DimensionScores {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v := art.DimensionScores[name]; v < low {
			low = v
			weakest = name
		}
	}
	if weakest == "" {
		return "unknown"
	}
	return weakest
}

func strategyName(attempt int) string {
	switch attempt {
	case 1:
		return "strategy=full-context"
	case 2:
		return "strategy=narrowed-records"
	default:
		return "strategy=simplified-constraints"
	}
}
