// Package discover computes similarity connections across a report's
// records and ranks them by breakthrough potential.
//
// Discovery is CPU-bound and deterministic: the same report and options
// always produce the same ranked output, independent of worker
// scheduling.
package discover

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mbaxter/synapse/internal/types"
)

// Config holds discovery tunables. The similarity floor and score
// weights are calibration knobs carried in configuration, not constants.
type Config struct {
	// SimilarityFloor is the minimum cosine similarity for a pair to
	// form a connection (default 0.7, flagged for calibration).
	SimilarityFloor float64 `yaml:"similarity_floor"`

	// Weights blend the three sub-scores into the breakthrough score
	// (defaults 0.4/0.3/0.3, flagged for calibration).
	Weights Weights `yaml:"weights"`

	// MaxClusterSize caps greedy k-way growth.
	MaxClusterSize int `yaml:"max_cluster_size"`

	// Shards is the worker count for the pairwise computation. Zero
	// means one per CPU.
	Shards int `yaml:"shards"`
}

// Weights blend novelty, relevance, and emotional impact.
type Weights struct {
	Novelty   float64 `yaml:"novelty"`
	Relevance float64 `yaml:"relevance"`
	Emotional float64 `yaml:"emotional"`
}

// DefaultConfig returns the default discovery configuration.
func DefaultConfig() Config {
	return Config{
		SimilarityFloor: 0.7,
		Weights:         Weights{Novelty: 0.4, Relevance: 0.3, Emotional: 0.3},
		MaxClusterSize:  5,
	}
}

// Options select per-call discovery behavior.
type Options struct {
	// MinBreakthroughScore drops connections scoring below it.
	MinBreakthroughScore float64

	// MaxConnections truncates the ranked output. Zero means unlimited.
	MaxConnections int

	// EnableKWay turns on greedy cluster growth beyond pairs.
	EnableKWay bool
}

// Engine discovers and ranks connections.
type Engine struct {
	cfg Config
}

// NewEngine creates a discovery engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.SimilarityFloor < 0 || cfg.SimilarityFloor > 1 {
		return nil, fmt.Errorf("similarity floor must be in [0,1], got %v", cfg.SimilarityFloor)
	}
	wsum := cfg.Weights.Novelty + cfg.Weights.Relevance + cfg.Weights.Emotional
	if wsum <= 0 {
		return nil, fmt.Errorf("breakthrough weights must sum to a positive value")
	}
	if cfg.MaxClusterSize < 2 {
		cfg.MaxClusterSize = DefaultConfig().MaxClusterSize
	}
	if cfg.Shards <= 0 {
		cfg.Shards = runtime.NumCPU()
	}
	return &Engine{cfg: cfg}, nil
}

// Discover computes pairwise similarity over every record with an
// embedding, grows k-way clusters when enabled, scores each connection,
// and returns them ranked by breakthrough score descending.
func (e *Engine) Discover(ctx context.Context, report *types.IntelligenceReport, query string, opts Options) ([]*types.Connection, error) {
	// Candidate set in stable ID order; records without embeddings are
	// degraded out of similarity computation.
	var candidates []*types.SourceRecord
	for _, r := range report.Records {
		if r.HasEmbedding() {
			candidates = append(candidates, r)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	if len(candidates) < 2 {
		return nil, nil
	}

	sims, err := e.pairwise(ctx, candidates)
	if err != nil {
		return nil, err
	}

	// Retain pairs above the floor as seed clusters.
	type pair struct {
		i, j int
		sim  float64
	}
	var seeds []pair
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if s := sims[i][j]; s >= e.cfg.SimilarityFloor {
				seeds = append(seeds, pair{i, j, s})
			}
		}
	}
	// Deterministic growth order: strongest pairs first.
	sort.Slice(seeds, func(a, b int) bool {
		if seeds[a].sim != seeds[b].sim {
			return seeds[a].sim > seeds[b].sim
		}
		if seeds[a].i != seeds[b].i {
			return seeds[a].i < seeds[b].i
		}
		return seeds[a].j < seeds[b].j
	})

	scorer := newScorer(e.cfg.Weights, report, query)

	seen := make(map[string]bool)
	var connections []*types.Connection
	for _, s := range seeds {
		members := []int{s.i, s.j}
		if opts.EnableKWay {
			members = e.grow(members, candidates, sims)
		}

		conn := e.buildConnection(report, candidates, members, sims)
		if seen[conn.ParticipantKey()] {
			continue
		}
		seen[conn.ParticipantKey()] = true

		scorer.score(conn, memberRecords(candidates, members))
		connections = append(connections, conn)
	}

	// Rank: breakthrough desc, then larger participant count, then
	// earliest fetch among participants, then ID. Fully deterministic.
	earliest := func(c *types.Connection) int64 {
		min := int64(math.MaxInt64)
		for _, id := range c.ParticipantRecordIDs {
			if r := report.RecordByID(id); r != nil && r.FetchedAt.UnixNano() < min {
				min = r.FetchedAt.UnixNano()
			}
		}
		return min
	}
	sort.Slice(connections, func(a, b int) bool {
		ca, cb := connections[a], connections[b]
		if ca.BreakthroughScore != cb.BreakthroughScore {
			return ca.BreakthroughScore > cb.BreakthroughScore
		}
		if len(ca.ParticipantRecordIDs) != len(cb.ParticipantRecordIDs) {
			return len(ca.ParticipantRecordIDs) > len(cb.ParticipantRecordIDs)
		}
		ea, eb := earliest(ca), earliest(cb)
		if ea != eb {
			return ea < eb
		}
		return ca.ID < cb.ID
	})

	// Apply floor and truncation, then assign ranks.
	var out []*types.Connection
	for _, c := range connections {
		if c.BreakthroughScore < opts.MinBreakthroughScore {
			continue
		}
		out = append(out, c)
		if opts.MaxConnections > 0 && len(out) == opts.MaxConnections {
			break
		}
	}
	for i, c := range out {
		c.Rank = i + 1
	}
	return out, nil
}

// pairwise computes the full similarity matrix, sharding row ranges
// across workers. Workers write disjoint rows, so the merge is free and
// the result is identical regardless of scheduling.
func (e *Engine) pairwise(ctx context.Context, candidates []*types.SourceRecord) ([][]float64, error) {
	n := len(candidates)
	sims := make([][]float64, n)
	for i := range sims {
		sims[i] = make([]float64, n)
	}

	shards := e.cfg.Shards
	if shards > n {
		shards = n
	}

	g, ctx := errgroup.WithContext(ctx)
	for s := 0; s < shards; s++ {
		s := s
		g.Go(func() error {
			for i := s; i < n; i += shards {
				if err := ctx.Err(); err != nil {
					return err
				}
				for j := i + 1; j < n; j++ {
					sim := CosineSimilarity(candidates[i].Embedding, candidates[j].Embedding)
					sims[i][j] = sim
					sims[j][i] = sim
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pairwise similarity: %w", err)
	}
	return sims, nil
}

// grow greedily adds the record with the highest average similarity to
// all current members, while that average stays above the floor and the
// cluster is under the size cap. Candidate order and index tie-breaks
// keep growth deterministic.
func (e *Engine) grow(members []int, candidates []*types.SourceRecord, sims [][]float64) []int {
	in := make(map[int]bool, len(members))
	for _, m := range members {
		in[m] = true
	}

	for len(members) < e.cfg.MaxClusterSize {
		best, bestAvg := -1, e.cfg.SimilarityFloor
		for c := range candidates {
			if in[c] {
				continue
			}
			sum := 0.0
			for _, m := range members {
				sum += sims[c][m]
			}
			avg := sum / float64(len(members))
			// Ascending index order makes the first maximum win ties.
			if avg > bestAvg {
				best, bestAvg = c, avg
			}
		}
		if best == -1 {
			break
		}
		members = append(members, best)
		in[best] = true
	}

	sort.Ints(members)
	return members
}

// buildConnection assembles a connection for the member set. The ID is
// derived from the report and participant set so recomputation over
// identical inputs yields identical output.
func (e *Engine) buildConnection(report *types.IntelligenceReport, candidates []*types.SourceRecord, members []int, sims [][]float64) *types.Connection {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = candidates[m].ID
	}
	sort.Strings(ids)

	// Average pairwise similarity over the cluster.
	sum, pairs := 0.0, 0
	for a := 0; a < len(members); a++ {
		for b := a + 1; b < len(members); b++ {
			sum += sims[members[a]][members[b]]
			pairs++
		}
	}

	conn := &types.Connection{
		ParticipantRecordIDs: ids,
		SimilarityScore:      sum / float64(pairs),
	}
	conn.ID = "conn-" + types.HashContent(report.RequestID+"|"+conn.ParticipantKey())[:16]
	return conn
}

func memberRecords(candidates []*types.SourceRecord, members []int) []*types.SourceRecord {
	out := make([]*types.SourceRecord, len(members))
	for i, m := range members {
		out[i] = candidates[m]
	}
	return out
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-length vectors score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
