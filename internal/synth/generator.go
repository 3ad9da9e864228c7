// Package synth generates candidate artifacts from discovered
// connections and enforces the provenance boundary: generated content may
// reference record identifiers and derived fields, never invented
// quotes, URLs, or author handles.
package synth

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mbaxter/synapse/internal/types"
)

// DefaultModel is the generation model used when none is configured.
const DefaultModel = "claude-sonnet-4-5-20250929"

// GetModel returns the generation model, checking SYNAPSE_MODEL first.
func GetModel() string {
	if model := os.Getenv("SYNAPSE_MODEL"); model != "" {
		return model
	}
	return DefaultModel
}

// Request is one synthesis call: a connection, the read-only records it
// spans, and the active constraints.
type Request struct {
	Connection *types.Connection
	Records    []*types.SourceRecord
	Constraints Constraints

	// Hint carries feedback from a prior low-scoring attempt.
	Hint string
}

// Constraints bound what the synthesis engine may produce.
type Constraints struct {
	// MaxContentLength caps the artifact body in runes.
	MaxContentLength int

	// Tone is a free-form style directive.
	Tone string

	// Category pins the artifact category; empty lets the model choose.
	Category types.ArtifactCategory
}

// Simplified returns a reduced version of the constraints for the
// simplified-constraints retry strategy.
func (c Constraints) Simplified() Constraints {
	out := c
	out.Tone = ""
	if out.MaxContentLength == 0 || out.MaxContentLength > 400 {
		out.MaxContentLength = 400
	}
	return out
}

// Generator produces raw synthesis output for a request. The output is
// untrusted until it passes the validation gate.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// AnthropicConfig configures the Anthropic-backed generator.
type AnthropicConfig struct {
	// APIKey falls back to ANTHROPIC_API_KEY.
	APIKey string

	// Model falls back to GetModel().
	Model string

	// MaxTokens caps the response size (default 2048).
	MaxTokens int

	// Retry configures backoff and the circuit breaker.
	Retry RetryConfig
}

// AnthropicGenerator calls the Anthropic Messages API with retry and a
// circuit breaker so a dead provider fails fast into the fallback
// ladder instead of burning attempts.
type AnthropicGenerator struct {
	client  *anthropic.Client
	model   string
	max     int
	retry   RetryConfig
	breaker *CircuitBreaker
}

var _ Generator = (*AnthropicGenerator)(nil)

// NewAnthropicGenerator creates a generator.
func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetModel()
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	var breaker *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		breaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
	}

	return &AnthropicGenerator{
		client:  &client,
		model:   model,
		max:     maxTokens,
		retry:   retry,
		breaker: breaker,
	}, nil
}

// Generate builds the synthesis prompt and calls the model.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (string, error) {
	prompt := buildPrompt(req)

	start := time.Now()
	var response *anthropic.Message
	err := retryWithBackoff(ctx, g.retry, g.breaker, "synthesis", func(attemptCtx context.Context) error {
		resp, apiErr := g.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(g.model),
			MaxTokens: int64(g.max),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	fmt.Printf("synthesis call: input=%d tokens, output=%d tokens, duration=%v\n",
		response.Usage.InputTokens, response.Usage.OutputTokens, time.Since(start))

	return text.String(), nil
}

// buildPrompt renders the synthesis request. Record content is provided
// read-only; the model is told to reference records by ID and to mark
// its summary as synthesized. The provenance requirement is enforced by
// the validation gate afterwards, never trusted to the prompt.
func buildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("You are synthesizing a short content artifact from a discovered connection ")
	b.WriteString("between source records. Respond with JSON only:\n")
	b.WriteString(`{"category": "insight|trend|contrast|digest", "content": "...", "referenced_record_ids": ["..."]}` + "\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Reference records ONLY by the IDs listed below.\n")
	b.WriteString("- Do NOT invent quotes, URLs, author handles, or timestamps.\n")
	b.WriteString("- The content is your own synthesized summary of the connection.\n\n")

	if req.Constraints.Category != "" {
		fmt.Fprintf(&b, "Required category: %s\n", req.Constraints.Category)
	}
	if req.Constraints.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", req.Constraints.Tone)
	}
	if req.Constraints.MaxContentLength > 0 {
		fmt.Fprintf(&b, "Maximum content length: %d characters\n", req.Constraints.MaxContentLength)
	}
	if req.Hint != "" {
		fmt.Fprintf(&b, "Feedback on the previous attempt: %s\n", req.Hint)
	}

	fmt.Fprintf(&b, "\nConnection %s (similarity %.2f, breakthrough %.1f):\n",
		req.Connection.ID, req.Connection.SimilarityScore, req.Connection.BreakthroughScore)

	records := append([]*types.SourceRecord(nil), req.Records...)
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	for _, r := range records {
		fmt.Fprintf(&b, "\n[record %s] (source: %s)\n%s\n", r.ID, r.SourceID, r.RawContent)
	}

	return b.String()
}
