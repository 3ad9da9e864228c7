package discover

import (
	"strings"
	"unicode"

	"github.com/mbaxter/synapse/internal/types"
)

// The three sub-scores are independently computable: each is a pure
// function of the participating records (plus the corpus for novelty and
// the request context for relevance), each in [0,100].

// emotionalTriggers weights words that signal psychological impact.
// The lexicon is deliberately small; it ranks connections against each
// other, it does not claim sentiment accuracy.
var emotionalTriggers = map[string]float64{
	"breakthrough": 18, "secret": 15, "shocking": 15, "revealed": 12,
	"warning": 14, "danger": 14, "crisis": 14, "collapse": 12,
	"surge": 10, "soar": 10, "plunge": 10, "record": 8,
	"first": 8, "never": 8, "finally": 8, "banned": 12,
	"urgent": 14, "deadline": 10, "exclusive": 12, "hidden": 10,
	"proof": 8, "exposed": 12, "massive": 8, "tiny": 5,
	"free": 6, "win": 6, "lose": 8, "fear": 12, "hope": 8,
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "from": true, "are": true, "was": true, "were": true,
	"has": true, "have": true, "had": true, "but": true, "not": true,
	"you": true, "your": true, "their": true, "they": true, "its": true,
	"will": true, "can": true, "all": true, "about": true, "into": true,
	"more": true, "than": true, "when": true, "what": true, "who": true,
	"how": true, "out": true, "over": true, "after": true, "been": true,
}

type scorer struct {
	weights Weights
	query   []string

	// corpusFreq counts, per token, how many corpus records contain it.
	corpusFreq map[string]int
	corpusSize int
}

func newScorer(w Weights, report *types.IntelligenceReport, query string) *scorer {
	s := &scorer{
		weights:    w,
		query:      tokenize(query),
		corpusFreq: make(map[string]int),
	}
	for _, r := range report.SucceededRecords() {
		s.corpusSize++
		for tok := range tokenSet(r.RawContent) {
			s.corpusFreq[tok]++
		}
	}
	return s
}

// score fills in the three sub-scores and the blended breakthrough
// score. The blend is a pure, deterministic function of its components.
func (s *scorer) score(conn *types.Connection, records []*types.SourceRecord) {
	conn.NoveltyScore = s.novelty(records)
	conn.RelevanceScore = s.relevance(records)
	conn.EmotionalScore = s.emotional(records)
	conn.BreakthroughScore = s.blend(conn.NoveltyScore, conn.RelevanceScore, conn.EmotionalScore)
}

func (s *scorer) blend(novelty, relevance, emotional float64) float64 {
	wsum := s.weights.Novelty + s.weights.Relevance + s.weights.Emotional
	return (s.weights.Novelty*novelty + s.weights.Relevance*relevance + s.weights.Emotional*emotional) / wsum
}

// novelty penalizes connections whose records share themes that are
// already common across the corpus. A connection held together purely by
// semantics, with no shared surface vocabulary, scores high.
func (s *scorer) novelty(records []*types.SourceRecord) float64 {
	if s.corpusSize == 0 {
		return 50
	}

	// Shared themes: tokens appearing in at least two participants.
	counts := make(map[string]int)
	for _, r := range records {
		for tok := range tokenSet(r.RawContent) {
			counts[tok]++
		}
	}

	var commonness float64
	shared := 0
	for tok, c := range counts {
		if c < 2 {
			continue
		}
		shared++
		commonness += float64(s.corpusFreq[tok]) / float64(s.corpusSize)
	}
	if shared == 0 {
		return 90
	}
	return clampScore((1 - commonness/float64(shared)) * 100)
}

// relevance measures alignment to the active request context: the
// fraction of query terms the cluster's text covers.
func (s *scorer) relevance(records []*types.SourceRecord) float64 {
	if len(s.query) == 0 {
		return 50
	}

	cluster := make(map[string]bool)
	for _, r := range records {
		for tok := range tokenSet(r.RawContent) {
			cluster[tok] = true
		}
	}

	matched := 0
	for _, q := range s.query {
		if cluster[q] {
			matched++
		}
	}
	return clampScore(float64(matched) / float64(len(s.query)) * 100)
}

// emotional aggregates trigger weights in the participating records'
// text, averaged per record so large clusters are not favored for bulk
// alone.
func (s *scorer) emotional(records []*types.SourceRecord) float64 {
	if len(records) == 0 {
		return 0
	}

	total := 0.0
	for _, r := range records {
		weight := 0.0
		for tok := range tokenSet(r.RawContent) {
			weight += emotionalTriggers[tok]
		}
		if weight > 100 {
			weight = 100
		}
		total += weight
	}
	return clampScore(total / float64(len(records)))
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// tokenize lowercases and splits on non-letter/digit runs, dropping
// stopwords and tokens shorter than three runes.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenize(s) {
		set[tok] = true
	}
	return set
}
