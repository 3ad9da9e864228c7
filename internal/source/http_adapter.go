package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mbaxter/synapse/internal/types"
)

// Default configuration values for HTTP providers.
const (
	DefaultHTTPTimeout   = 10 * time.Second
	maxResponseBodyBytes = 4 << 20 // 4MB cap on a single provider response
)

// HTTPConfig configures a generic JSON-over-HTTP provider adapter.
type HTTPConfig struct {
	// Name is the provider identifier (required).
	Name string

	// Endpoint is the provider URL (required). The query is appended as
	// the "q" parameter.
	Endpoint string

	// APIKey, when set, is sent as a bearer token.
	APIKey string

	// ContentField selects the top-level JSON field carrying the text
	// payload. Empty means the raw response body is the content.
	ContentField string

	// Criticality defaults to optional.
	Criticality types.Criticality

	// Timeout defaults to DefaultHTTPTimeout.
	Timeout time.Duration

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// HTTPAdapter fetches records from an arbitrary JSON-over-HTTP provider.
// Provider-specific shapes stay in configuration; the pipeline only ever
// sees the Adapter contract.
type HTTPAdapter struct {
	cfg    HTTPConfig
	client *http.Client
}

var _ Adapter = (*HTTPAdapter)(nil)

// NewHTTPAdapter creates an adapter for one HTTP provider endpoint.
func NewHTTPAdapter(cfg HTTPConfig) (*HTTPAdapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("http adapter: name is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("http adapter %s: endpoint is required", cfg.Name)
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("http adapter %s: invalid endpoint: %w", cfg.Name, err)
	}
	if cfg.Criticality == "" {
		cfg.Criticality = types.CriticalityOptional
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &HTTPAdapter{cfg: cfg, client: client}, nil
}

func (h *HTTPAdapter) Name() string                   { return h.cfg.Name }
func (h *HTTPAdapter) Criticality() types.Criticality { return h.cfg.Criticality }
func (h *HTTPAdapter) Timeout() time.Duration         { return h.cfg.Timeout }

// Fetch performs the provider call and wraps the response in a record.
func (h *HTTPAdapter) Fetch(ctx context.Context, query string) (*types.SourceRecord, error) {
	u, err := url.Parse(h.cfg.Endpoint)
	if err != nil {
		return nil, &types.AdapterError{Source: h.cfg.Name, Kind: types.AdapterOther, Err: err}
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, &types.AdapterError{Source: h.cfg.Name, Kind: types.AdapterOther, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		kind := types.AdapterNetwork
		if ctx.Err() == context.DeadlineExceeded {
			kind = types.AdapterTimeout
		}
		return nil, &types.AdapterError{Source: h.cfg.Name, Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, &types.AdapterError{Source: h.cfg.Name, Kind: types.AdapterNetwork, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &types.AdapterError{Source: h.cfg.Name, Kind: types.AdapterAuth,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &types.AdapterError{Source: h.cfg.Name, Kind: types.AdapterRateLimit,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &types.AdapterError{Source: h.cfg.Name, Kind: types.AdapterOther,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))}
	}

	content := string(body)
	if h.cfg.ContentField != "" {
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, &types.AdapterError{Source: h.cfg.Name, Kind: types.AdapterOther,
				Err: fmt.Errorf("decode response: %w", err)}
		}
		raw, ok := payload[h.cfg.ContentField]
		if !ok {
			return nil, &types.AdapterError{Source: h.cfg.Name, Kind: types.AdapterOther,
				Err: fmt.Errorf("response missing field %q", h.cfg.ContentField)}
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			// Non-string field: keep its JSON form.
			text = string(raw)
		}
		content = text
	}

	return types.NewSourceRecord(h.cfg.Name, content, time.Now().UTC()), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
