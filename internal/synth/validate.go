package synth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mbaxter/synapse/internal/types"
)

// minQuoteLength is the shortest quoted span treated as a claimed
// verbatim quote. Shorter quotes are scare quotes or term emphasis.
const minQuoteLength = 12

var (
	urlPattern       = regexp.MustCompile(`https?://[^\s"')\]}>]+`)
	handlePattern    = regexp.MustCompile(`(^|[\s(])@([A-Za-z0-9_]{2,})`)
	timestampPattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2})?)?\b`)
	quotePattern     = regexp.MustCompile(`"([^"]+)"|\x{201C}([^\x{201C}\x{201D}]+)\x{201D}`)
)

// validateProvenance checks generated content against the records it
// claims to reference. Every URL, substantial quoted span, author
// handle, and timestamp in the content must appear verbatim in at least
// one referenced record. A nil return means the artifact passed the
// gate.
func validateProvenance(content string, referencedIDs []string, recordsByID map[string]*types.SourceRecord) *types.ValidationError {
	var violations []string

	var sources []string
	for _, id := range referencedIDs {
		rec, ok := recordsByID[id]
		if !ok {
			violations = append(violations, fmt.Sprintf("referenced record %q does not exist in the report", id))
			continue
		}
		sources = append(sources, rec.RawContent)
	}
	if len(referencedIDs) == 0 {
		violations = append(violations, "artifact references no records")
	}

	traceable := func(span string) bool {
		for _, s := range sources {
			if strings.Contains(s, span) {
				return true
			}
		}
		return false
	}

	for _, url := range urlPattern.FindAllString(content, -1) {
		url = strings.TrimRight(url, ".,;:")
		if !traceable(url) {
			violations = append(violations, fmt.Sprintf("URL %q not present in any referenced record", url))
		}
	}

	for _, m := range handlePattern.FindAllStringSubmatch(content, -1) {
		handle := "@" + m[2]
		if !traceable(handle) {
			violations = append(violations, fmt.Sprintf("handle %q not present in any referenced record", handle))
		}
	}

	for _, ts := range timestampPattern.FindAllString(content, -1) {
		if !traceable(ts) {
			violations = append(violations, fmt.Sprintf("timestamp %q not present in any referenced record", ts))
		}
	}

	for _, m := range quotePattern.FindAllStringSubmatch(content, -1) {
		quoted := m[1]
		if quoted == "" {
			quoted = m[2]
		}
		if len([]rune(quoted)) < minQuoteLength {
			continue
		}
		if !traceable(quoted) {
			violations = append(violations, fmt.Sprintf("quoted span %q not present in any referenced record", excerpt(quoted, 60)))
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &types.ValidationError{Violations: violations}
}

// excerpt truncates s to at most n runes for error messages.
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
