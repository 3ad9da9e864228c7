// Package score grades candidate artifacts across six weighted
// dimensions and maps the weighted sum to a quality tier.
package score

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mbaxter/synapse/internal/types"
)

// Dimension names, used as keys in CandidateArtifact.DimensionScores.
const (
	DimLexical     = "lexical_trigger"
	DimEmotional   = "emotional_alignment"
	DimReadability = "readability"
	DimCTA         = "cta_clarity"
	DimUrgency     = "urgency"
	DimTrust       = "trust"
)

// Weights holds the per-dimension blend. Values are fractions of the
// total; they are calibration knobs, not constants.
type Weights struct {
	Lexical     float64 `yaml:"lexical"`
	Emotional   float64 `yaml:"emotional"`
	Readability float64 `yaml:"readability"`
	CTA         float64 `yaml:"cta"`
	Urgency     float64 `yaml:"urgency"`
	Trust       float64 `yaml:"trust"`
}

// DefaultWeights returns the default dimension blend.
func DefaultWeights() Weights {
	return Weights{
		Lexical:     0.20,
		Emotional:   0.25,
		Readability: 0.20,
		CTA:         0.15,
		Urgency:     0.10,
		Trust:       0.10,
	}
}

func (w Weights) sum() float64 {
	return w.Lexical + w.Emotional + w.Readability + w.CTA + w.Urgency + w.Trust
}

// Scorer grades artifacts. Scoring is pure and deterministic.
type Scorer struct {
	weights Weights
}

// New creates a scorer.
func New(weights Weights) (*Scorer, error) {
	if weights.sum() <= 0 {
		return nil, fmt.Errorf("dimension weights must sum to a positive value")
	}
	return &Scorer{weights: weights}, nil
}

// Score fills in the artifact's dimension scores, weighted quality
// score, and tier, and returns the tier.
func (s *Scorer) Score(artifact *types.CandidateArtifact) types.Tier {
	content := artifact.Content
	dims := map[string]float64{
		DimLexical:     lexicalTriggerScore(content),
		DimEmotional:   emotionalAlignmentScore(content),
		DimReadability: readabilityScore(content),
		DimCTA:         ctaClarityScore(content),
		DimUrgency:     urgencyScore(content),
		DimTrust:       trustScore(content),
	}

	total := s.weights.Lexical*dims[DimLexical] +
		s.weights.Emotional*dims[DimEmotional] +
		s.weights.Readability*dims[DimReadability] +
		s.weights.CTA*dims[DimCTA] +
		s.weights.Urgency*dims[DimUrgency] +
		s.weights.Trust*dims[DimTrust]
	quality := total / s.weights.sum()

	artifact.DimensionScores = dims
	artifact.QualityScore = quality
	artifact.Tier = TierFor(quality)
	return artifact.Tier
}

// TierFor maps a quality score to its tier bucket.
func TierFor(quality float64) types.Tier {
	switch {
	case quality >= 85:
		return types.TierExcellent
	case quality >= 75:
		return types.TierGreat
	case quality >= 65:
		return types.TierGood
	case quality >= 50:
		return types.TierFair
	default:
		return types.TierPoor
	}
}

var lexicalTriggers = []string{
	"discover", "unlock", "transform", "proven", "powerful",
	"essential", "ultimate", "instantly", "effortless", "guaranteed",
	"surprising", "remarkable", "stunning",
}

var emotionalWords = []string{
	"love", "fear", "hope", "excited", "shocking", "inspiring",
	"outrage", "joy", "curious", "amazing", "unbelievable", "heartbreaking",
}

var ctaPhrases = []string{
	"learn more", "find out", "read on", "try it", "get started",
	"sign up", "join", "follow", "share", "dive in", "take a look",
}

var urgencyWords = []string{
	"now", "today", "before", "deadline", "limited", "soon",
	"don't wait", "last chance", "act fast", "ends",
}

var trustMarkers = []string{
	"according to", "data", "research", "study", "source",
	"report", "measured", "evidence", "confirmed",
}

func lexicalTriggerScore(content string) float64 {
	return presenceScore(content, lexicalTriggers, 25)
}

func emotionalAlignmentScore(content string) float64 {
	return presenceScore(content, emotionalWords, 30)
}

func ctaClarityScore(content string) float64 {
	return presenceScore(content, ctaPhrases, 60)
}

func urgencyScore(content string) float64 {
	return presenceScore(content, urgencyWords, 40)
}

func trustScore(content string) float64 {
	return presenceScore(content, trustMarkers, 35)
}

// presenceScore awards perHit for each distinct phrase found, capped at
// 100. Coarse by design: it ranks candidates, it does not model prose.
func presenceScore(content string, phrases []string, perHit float64) float64 {
	lower := strings.ToLower(content)
	score := 0.0
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			score += perHit
		}
	}
	if score > 100 {
		return 100
	}
	return score
}

// readabilityScore favors moderate sentence length. Very long or very
// short sentences both read poorly in short-form content.
func readabilityScore(content string) float64 {
	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return 0
	}

	totalWords := 0
	for _, s := range sentences {
		totalWords += len(strings.Fields(s))
	}
	avg := float64(totalWords) / float64(len(sentences))

	switch {
	case avg >= 8 && avg <= 20:
		return 100
	case avg < 8:
		return 50 + avg/8*50
	case avg <= 35:
		return 100 - (avg-20)/15*60
	default:
		return 30
	}
}

func splitSentences(content string) []string {
	var out []string
	for _, s := range strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		s = strings.TrimFunc(s, unicode.IsSpace)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
