package vectorize

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/mbaxter/synapse/internal/types"
)

// Config holds vectorizer tunables.
type Config struct {
	// BatchSize is how many records go into one provider call.
	BatchSize int `yaml:"batch_size"`

	// MaxConcurrent caps in-flight provider calls.
	MaxConcurrent int `yaml:"max_concurrent"`

	// RequestsPerSecond throttles provider calls. Zero disables the
	// limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// DefaultConfig returns the default vectorizer configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:         16,
		MaxConcurrent:     3,
		RequestsPerSecond: 5,
	}
}

// Stats summarizes one vectorization pass.
type Stats struct {
	Embedded  int
	CacheHits int
	Failed    int
	Elapsed   time.Duration
}

// Vectorizer fills in record embeddings, batched under a concurrency cap
// and rate limit, consulting the cache by content hash first. A failure
// on one batch degrades only its records to "embedding unavailable"; it
// never fails the report.
type Vectorizer struct {
	svc     EmbeddingService
	cache   Cache
	cfg     Config
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// New creates a vectorizer. The cache may be nil.
func New(svc EmbeddingService, cache Cache, cfg Config) (*Vectorizer, error) {
	if svc == nil {
		return nil, fmt.Errorf("embedding service is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Vectorizer{
		svc:     svc,
		cache:   cache,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter: limiter,
	}, nil
}

// EmbedReport populates Embedding on every succeeded record in the
// report that does not already carry one. Failure markers are skipped.
func (v *Vectorizer) EmbedReport(ctx context.Context, report *types.IntelligenceReport) (Stats, error) {
	start := time.Now()
	stats := Stats{}
	model := v.svc.ModelName()

	// Cache pass first so only true misses hit the provider.
	var misses []*types.SourceRecord
	for _, r := range report.Records {
		if !r.Succeeded || len(r.Embedding) > 0 {
			continue
		}
		if v.cache != nil {
			vec, ok, err := v.cache.Get(ctx, r.ContentHash, model)
			if err != nil {
				// A broken cache degrades to a miss; the provider can
				// still serve the record.
				fmt.Printf("embedding cache read failed for %s, treating as miss: %v\n", r.ContentHash, err)
			} else if ok {
				r.Embedding = vec
				stats.CacheHits++
				continue
			}
		}
		misses = append(misses, r)
	}

	// Batch the misses. Batches run concurrently under the semaphore;
	// results land on disjoint record sets so no further coordination is
	// needed.
	type batchResult struct {
		records []*types.SourceRecord
		vecs    [][]float32
		err     error
	}

	var batches [][]*types.SourceRecord
	for i := 0; i < len(misses); i += v.cfg.BatchSize {
		end := i + v.cfg.BatchSize
		if end > len(misses) {
			end = len(misses)
		}
		batches = append(batches, misses[i:end])
	}

	results := make(chan batchResult, len(batches))
	for _, batch := range batches {
		if err := v.sem.Acquire(ctx, 1); err != nil {
			return stats, fmt.Errorf("acquire embedding slot: %w", err)
		}
		go func(batch []*types.SourceRecord) {
			defer v.sem.Release(1)

			if err := v.limiter.Wait(ctx); err != nil {
				results <- batchResult{records: batch, err: err}
				return
			}

			texts := make([]string, len(batch))
			for i, r := range batch {
				texts[i] = r.RawContent
			}
			vecs, err := v.svc.EmbedBatch(ctx, texts)
			results <- batchResult{records: batch, vecs: vecs, err: err}
		}(batch)
	}

	for range batches {
		res := <-results
		if res.err != nil || len(res.vecs) != len(res.records) {
			// Degrade these records out of similarity computation.
			stats.Failed += len(res.records)
			if res.err != nil {
				fmt.Printf("embedding batch failed (%d records degraded): %v\n", len(res.records), res.err)
			}
			continue
		}
		for i, r := range res.records {
			r.Embedding = res.vecs[i]
			stats.Embedded++
			if v.cache != nil {
				if err := v.cache.Put(ctx, r.ContentHash, model, res.vecs[i]); err != nil {
					fmt.Printf("embedding cache store failed for %s: %v\n", r.ContentHash, err)
				}
			}
		}
	}

	stats.Elapsed = time.Since(start)
	return stats, ctx.Err()
}
