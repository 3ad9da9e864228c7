package synth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mbaxter/synapse/internal/types"
)

// payload is the structured shape the generator is asked to emit.
type payload struct {
	Category            string   `json:"category"`
	Content             string   `json:"content"`
	ReferencedRecordIDs []string `json:"referenced_record_ids"`
}

// parsePayload extracts the JSON payload from raw model output. Models
// wrap JSON in markdown fences or prose despite instructions, so this
// tries progressively more aggressive extraction before giving up.
func parsePayload(raw string) (*payload, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("empty synthesis output")
	}

	candidates := []string{text}

	if fenced := stripCodeFence(text); fenced != "" && fenced != text {
		candidates = append(candidates, fenced)
	}
	if obj := extractObject(text); obj != "" && obj != text {
		candidates = append(candidates, obj)
	}

	var lastErr error
	for _, c := range candidates {
		var p payload
		if err := json.Unmarshal([]byte(c), &p); err != nil {
			lastErr = err
			continue
		}
		if p.Content == "" {
			lastErr = fmt.Errorf("payload missing content")
			continue
		}
		return &p, nil
	}
	return nil, fmt.Errorf("could not parse synthesis output: %w", lastErr)
}

// stripCodeFence removes ```json ... ``` or ``` ... ``` wrappers.
func stripCodeFence(text string) string {
	start := strings.Index(text, "```")
	if start == -1 {
		return ""
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		// Drop the language tag line.
		if lang := strings.TrimSpace(rest[:nl]); lang == "" || lang == "json" {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// extractObject finds the first balanced top-level JSON object,
// respecting strings and escapes.
func extractObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

// parseCategory normalizes the model's category string, defaulting to
// insight when unrecognized.
func parseCategory(s string) types.ArtifactCategory {
	switch types.ArtifactCategory(strings.ToLower(strings.TrimSpace(s))) {
	case types.CategoryInsight:
		return types.CategoryInsight
	case types.CategoryTrend:
		return types.CategoryTrend
	case types.CategoryContrast:
		return types.CategoryContrast
	case types.CategoryDigest:
		return types.CategoryDigest
	default:
		return types.CategoryInsight
	}
}
