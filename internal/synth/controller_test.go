package synth

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/mbaxter/synapse/internal/score"
	"github.com/mbaxter/synapse/internal/types"
)

// fakeGenerator replays scripted responses and records each request.
type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", fmt.Errorf("no scripted response for call %d", i)
}

// richContent scores well on every quality dimension.
const richContent = "This remarkable research reveals a surprising and powerful shift across both communities, inspiring amazing discussion today. According to the data, the proven pattern is essential reading, so dive in and learn more now."

func payloadJSON(content string, refs ...string) string {
	out := fmt.Sprintf(`{"category": "insight", "content": %q, "referenced_record_ids": [`, content)
	for i, r := range refs {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%q", r)
	}
	return out + "]}"
}

func newTestController(t *testing.T, gen Generator) *Controller {
	t.Helper()
	scorer, err := score.New(score.DefaultWeights())
	if err != nil {
		t.Fatalf("score.New: %v", err)
	}
	ctrl, err := NewController(gen, scorer, DefaultControllerConfig())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return ctrl
}

func controllerFixture() (*types.Connection, []*types.SourceRecord) {
	records := []*types.SourceRecord{
		testRecord("r1", "alpha", "edge compute spending doubled this quarter"),
		testRecord("r2", "beta", "cloud providers report record edge deployments"),
		testRecord("r3", "gamma", "startups pivot toward edge infrastructure"),
	}
	conn := &types.Connection{
		ID:                   "conn-abc",
		ParticipantRecordIDs: []string{"r1", "r2", "r3"},
		SimilarityScore:      0.88,
		BreakthroughScore:    81.5,
	}
	return conn, records
}

func TestControllerFabricatedURLRetriesNarrowed(t *testing.T) {
	conn, records := controllerFixture()
	gen := &fakeGenerator{responses: []string{
		payloadJSON("Edge is booming, see https://fabricated.example/post/99 for proof.", "r1", "r2", "r3"),
		payloadJSON(richContent, "r1", "r2"),
	}}
	ctrl := newTestController(t, gen)

	art, state := ctrl.Produce(context.Background(), conn, records, Constraints{})

	if art == nil {
		t.Fatal("Produce returned nil artifact")
	}
	if art.Fallback {
		t.Error("second attempt should have been accepted, not fallback")
	}
	if art.AttemptNumber != 2 {
		t.Errorf("AttemptNumber = %d, want 2", art.AttemptNumber)
	}
	if !art.Tier.Acceptable() {
		t.Errorf("tier = %s, want acceptable", art.Tier)
	}
	if state.Attempts != 2 {
		t.Errorf("state.Attempts = %d, want 2", state.Attempts)
	}

	if len(gen.requests) != 2 {
		t.Fatalf("generator calls = %d, want 2", len(gen.requests))
	}
	if got := len(gen.requests[0].Records); got != 3 {
		t.Errorf("first attempt records = %d, want full set of 3", got)
	}
	if got := len(gen.requests[1].Records); got != 2 {
		t.Errorf("second attempt records = %d, want narrowed to 2", got)
	}
	if gen.requests[1].Hint == "" {
		t.Error("retry attempt should carry the validation feedback as a hint")
	}
}

func TestControllerExhaustionFallsBackToTemplate(t *testing.T) {
	conn, records := controllerFixture()
	fabricated := payloadJSON("Confirmed by https://invented.example/source.", "r1", "r2", "r3")
	gen := &fakeGenerator{responses: []string{fabricated, fabricated, fabricated}}
	ctrl := newTestController(t, gen)

	art, state := ctrl.Produce(context.Background(), conn, records, Constraints{})

	if !art.Fallback {
		t.Fatal("expected deterministic fallback artifact")
	}
	if art.Tier != types.TierPoor {
		t.Errorf("tier = %s, want poor", art.Tier)
	}
	if art.AttemptNumber != 3 {
		t.Errorf("AttemptNumber = %d, want 3", art.AttemptNumber)
	}
	if art.Category != types.CategoryDigest {
		t.Errorf("category = %q, want digest", art.Category)
	}
	if state.Attempts != 3 {
		t.Errorf("state.Attempts = %d, want 3", state.Attempts)
	}
	if len(gen.requests) != 3 {
		t.Errorf("generator calls = %d, want 3", len(gen.requests))
	}
	// Third attempt runs with simplified constraints.
	if gen.requests[2].Constraints.MaxContentLength == 0 {
		t.Error("third attempt should carry simplified constraints")
	}
}

func TestControllerGenerationErrorsCountAsAttempts(t *testing.T) {
	conn, records := controllerFixture()
	gen := &fakeGenerator{
		errs:      []error{fmt.Errorf("503 overloaded"), nil},
		responses: []string{"", payloadJSON(richContent, "r1", "r2")},
	}
	ctrl := newTestController(t, gen)

	art, state := ctrl.Produce(context.Background(), conn, records, Constraints{})

	if art.Fallback || art.AttemptNumber != 2 {
		t.Errorf("artifact = attempt %d fallback=%v, want attempt 2 accepted", art.AttemptNumber, art.Fallback)
	}
	if state.Attempts != 2 {
		t.Errorf("state.Attempts = %d, want 2", state.Attempts)
	}
}

func TestControllerLowQualityRetries(t *testing.T) {
	conn, records := controllerFixture()
	gen := &fakeGenerator{responses: []string{
		payloadJSON("Item one. Item two.", "r1", "r2", "r3"),
		payloadJSON(richContent, "r1", "r2"),
	}}
	ctrl := newTestController(t, gen)

	art, _ := ctrl.Produce(context.Background(), conn, records, Constraints{})

	if art.AttemptNumber != 2 {
		t.Errorf("AttemptNumber = %d, want 2 after low-quality first attempt", art.AttemptNumber)
	}
	if !art.Tier.Acceptable() {
		t.Errorf("tier = %s, want acceptable", art.Tier)
	}
}

func TestControllerCancellationReturnsLastCompleted(t *testing.T) {
	conn, records := controllerFixture()

	ctx, cancel := context.WithCancel(context.Background())
	low := payloadJSON("Item one. Item two.", "r1", "r2", "r3")
	gen := &fakeGenerator{responses: []string{low, low, low}}

	// The wrapper cancels once the first call returns, so the ladder
	// observes cancellation before attempt two starts.
	ctrl := newTestController(t, &cancelAfterFirst{inner: gen, cancel: cancel})

	art, _ := ctrl.Produce(ctx, conn, records, Constraints{})

	if art == nil {
		t.Fatal("Produce returned nil artifact")
	}
	if art.Fallback {
		t.Error("a completed low-quality attempt should be returned, not the fallback")
	}
	if art.AttemptNumber != 1 {
		t.Errorf("AttemptNumber = %d, want 1", art.AttemptNumber)
	}
}

func TestControllerCancellationBeforeAnyAttemptUsesTemplate(t *testing.T) {
	conn, records := controllerFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ctrl := newTestController(t, &fakeGenerator{})
	art, _ := ctrl.Produce(ctx, conn, records, Constraints{})

	if !art.Fallback {
		t.Error("expected template fallback when cancelled before any attempt")
	}
	if art.Tier != types.TierPoor {
		t.Errorf("tier = %s, want poor", art.Tier)
	}
}

type cancelAfterFirst struct {
	inner  Generator
	cancel context.CancelFunc
	calls  int
}

func (c *cancelAfterFirst) Generate(ctx context.Context, req Request) (string, error) {
	out, err := c.inner.Generate(ctx, req)
	c.calls++
	if c.calls == 1 {
		c.cancel()
	}
	return out, err
}
