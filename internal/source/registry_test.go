package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mbaxter/synapse/internal/types"
)

func testAdapter(name string) *Func {
	return &Func{
		AdapterName: name,
		Critical:    types.CriticalityOptional,
		CallTimeout: time.Second,
		FetchFunc: func(ctx context.Context, query string) (*types.SourceRecord, error) {
			return types.NewSourceRecord(name, "content from "+name, time.Now()), nil
		},
	}
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(testAdapter("reddit")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(testAdapter("hackernews")); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := r.Register(testAdapter("reddit")); err == nil {
		t.Error("duplicate registration should fail")
	}

	names := r.List()
	if len(names) != 2 || names[0] != "hackernews" || names[1] != "reddit" {
		t.Errorf("List() = %v, want sorted [hackernews reddit]", names)
	}

	if _, err := r.Resolve([]string{"reddit", "missing"}); err == nil {
		t.Error("resolving an unknown adapter should fail")
	}

	adapters, err := r.Resolve([]string{"reddit"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(adapters) != 1 || adapters[0].Name() != "reddit" {
		t.Errorf("resolved wrong adapters: %v", adapters)
	}
}

func TestRegistryRejectsInvalid(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&Func{AdapterName: ""}); err == nil {
		t.Error("empty name should be rejected")
	}
	if err := r.Register(&Func{AdapterName: "x", Critical: "sometimes"}); err == nil {
		t.Error("invalid criticality should be rejected")
	}
}

func TestHTTPAdapterFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("q") != "quantum computing" {
			t.Errorf("query param q = %q", req.URL.Query().Get("q"))
		}
		if req.Header.Get("Authorization") != "Bearer sekrit" {
			t.Errorf("missing bearer token")
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "a breakthrough in qubits"})
	}))
	defer srv.Close()

	a, err := NewHTTPAdapter(HTTPConfig{
		Name:         "newswire",
		Endpoint:     srv.URL,
		APIKey:       "sekrit",
		ContentField: "text",
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	rec, err := a.Fetch(context.Background(), "quantum computing")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rec.RawContent != "a breakthrough in qubits" {
		t.Errorf("content = %q", rec.RawContent)
	}
	if rec.SourceID != "newswire" {
		t.Errorf("source id = %q", rec.SourceID)
	}
	if rec.ContentHash == "" {
		t.Error("content hash should be set")
	}
}

func TestHTTPAdapterErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   types.AdapterErrorKind
	}{
		{"auth", http.StatusUnauthorized, types.AdapterAuth},
		{"rate limit", http.StatusTooManyRequests, types.AdapterRateLimit},
		{"server error", http.StatusInternalServerError, types.AdapterOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			a, err := NewHTTPAdapter(HTTPConfig{Name: "flaky", Endpoint: srv.URL})
			if err != nil {
				t.Fatalf("new adapter: %v", err)
			}

			_, err = a.Fetch(context.Background(), "anything")
			if err == nil {
				t.Fatal("expected fetch error")
			}
			var ae *types.AdapterError
			if !asAdapterError(err, &ae) {
				t.Fatalf("error is not an AdapterError: %v", err)
			}
			if ae.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", ae.Kind, tt.kind)
			}
		})
	}
}

func asAdapterError(err error, target **types.AdapterError) bool {
	ae, ok := err.(*types.AdapterError)
	if ok {
		*target = ae
	}
	return ok
}
