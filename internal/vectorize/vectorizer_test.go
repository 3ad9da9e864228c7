package vectorize

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mbaxter/synapse/internal/types"
)

// fakeEmbedder hashes content length into a tiny deterministic vector.
type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int32
	batchSize []int
	failWith  error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.batchSize = append(f.batchSize, len(texts))
	f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                 { return 3 }
func (f *fakeEmbedder) ModelName() string               { return "fake-embed-v1" }
func (f *fakeEmbedder) Ping(ctx context.Context) error  { return nil }
func (f *fakeEmbedder) Close() error                    { return nil }

func testReport(contents ...string) *types.IntelligenceReport {
	now := time.Now()
	records := make([]*types.SourceRecord, len(contents))
	for i, c := range contents {
		records[i] = types.NewSourceRecord("src", c, now)
	}
	return &types.IntelligenceReport{
		RequestID:        "req",
		Records:          records,
		RequestedSources: len(contents),
		SucceededCount:   len(contents),
	}
}

func TestEmbedReportPopulatesEmbeddings(t *testing.T) {
	report := testReport("one", "two", "three")
	v, err := New(&fakeEmbedder{}, NewMemoryCache(), Config{BatchSize: 2, MaxConcurrent: 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	stats, err := v.EmbedReport(context.Background(), report)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if stats.Embedded != 3 {
		t.Errorf("embedded = %d, want 3", stats.Embedded)
	}
	for _, r := range report.Records {
		if !r.HasEmbedding() {
			t.Errorf("record %s missing embedding", r.ID)
		}
	}
}

func TestEmbedReportUsesCache(t *testing.T) {
	cache := NewMemoryCache()
	emb := &fakeEmbedder{}
	v, _ := New(emb, cache, Config{BatchSize: 8, MaxConcurrent: 1})

	first := testReport("alpha", "beta")
	if _, err := v.EmbedReport(context.Background(), first); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	callsAfterFirst := atomic.LoadInt32(&emb.calls)

	// Same content, fresh records: everything should come from cache.
	second := testReport("alpha", "beta")
	stats, err := v.EmbedReport(context.Background(), second)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if stats.CacheHits != 2 || stats.Embedded != 0 {
		t.Errorf("stats = %+v, want 2 cache hits and 0 embeds", stats)
	}
	if atomic.LoadInt32(&emb.calls) != callsAfterFirst {
		t.Error("provider called despite full cache coverage")
	}
	for _, r := range second.Records {
		if !r.HasEmbedding() {
			t.Errorf("cached record %s missing embedding", r.ID)
		}
	}
}

func TestEmbedReportDegradesOnFailure(t *testing.T) {
	report := testReport("x", "y")
	v, _ := New(&fakeEmbedder{failWith: errors.New("provider down")}, nil, Config{BatchSize: 8, MaxConcurrent: 1})

	stats, err := v.EmbedReport(context.Background(), report)
	if err != nil {
		t.Fatalf("embed should not fail the report: %v", err)
	}
	if stats.Failed != 2 {
		t.Errorf("failed = %d, want 2", stats.Failed)
	}
	for _, r := range report.Records {
		if r.HasEmbedding() {
			t.Errorf("failed record %s should have no embedding", r.ID)
		}
	}
}

// brokenCache fails every read; writes are accepted silently.
type brokenCache struct{}

func (brokenCache) Get(ctx context.Context, contentHash, model string) ([]float32, bool, error) {
	return nil, false, errors.New("database disk image is malformed")
}
func (brokenCache) Put(ctx context.Context, contentHash, model string, vec []float32) error {
	return nil
}
func (brokenCache) Close() error { return nil }

func TestEmbedReportTreatsCacheReadErrorAsMiss(t *testing.T) {
	report := testReport("alpha", "beta")
	emb := &fakeEmbedder{}
	v, _ := New(emb, brokenCache{}, Config{BatchSize: 8, MaxConcurrent: 1})

	stats, err := v.EmbedReport(context.Background(), report)
	if err != nil {
		t.Fatalf("a broken cache should not fail the report: %v", err)
	}
	if stats.Embedded != 2 || stats.CacheHits != 0 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 2 embedded via provider", stats)
	}
	for _, r := range report.Records {
		if !r.HasEmbedding() {
			t.Errorf("record %s missing embedding", r.ID)
		}
	}
}

func TestEmbedReportSkipsFailureMarkers(t *testing.T) {
	report := testReport("ok")
	report.Records = append(report.Records, types.NewFailedRecord("down", "timeout", time.Now()))
	report.RequestedSources = 2
	report.FailedCount = 1

	emb := &fakeEmbedder{}
	v, _ := New(emb, nil, Config{})
	stats, err := v.EmbedReport(context.Background(), report)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if stats.Embedded != 1 {
		t.Errorf("embedded = %d, want 1 (marker skipped)", stats.Embedded)
	}
}

func TestEmbedReportBatching(t *testing.T) {
	report := testReport("a", "b", "c", "d", "e")
	emb := &fakeEmbedder{}
	v, _ := New(emb, nil, Config{BatchSize: 2, MaxConcurrent: 2})

	if _, err := v.EmbedReport(context.Background(), report); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if got := atomic.LoadInt32(&emb.calls); got != 3 {
		t.Errorf("provider calls = %d, want 3 batches for 5 records at size 2", got)
	}
}
