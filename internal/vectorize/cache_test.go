package vectorize

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.db")
	cache, err := NewSQLiteCache(path)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "deadbeef", "model-a"); err != nil || ok {
		t.Fatalf("empty cache Get = ok=%v err=%v, want miss", ok, err)
	}

	vec := []float32{0.25, -1.5, 3.0, 0}
	if err := cache.Put(ctx, "deadbeef", "model-a", vec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := cache.Get(ctx, "deadbeef", "model-a")
	if err != nil || !ok {
		t.Fatalf("get after put = ok=%v err=%v", ok, err)
	}
	if len(got) != len(vec) {
		t.Fatalf("len = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("vec[%d] = %v, want %v", i, got[i], vec[i])
		}
	}

	// Same hash, different model: a distinct entry.
	if _, ok, _ := cache.Get(ctx, "deadbeef", "model-b"); ok {
		t.Error("entry leaked across models")
	}

	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "deadbeef", "model-a"); ok {
		t.Error("entry survived Clear")
	}
}

func TestVectorEncodingRoundTrip(t *testing.T) {
	vec := []float32{1.5, -2.25, 0, 1e-8}
	blob := encodeVector(vec)
	out, err := decodeVector(blob, len(vec))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range vec {
		if out[i] != vec[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], vec[i])
		}
	}

	if _, err := decodeVector(blob[:5], len(vec)); err == nil {
		t.Error("truncated blob should fail to decode")
	}
}
