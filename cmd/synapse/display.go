package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/mbaxter/synapse/internal/pipeline"
	"github.com/mbaxter/synapse/internal/types"
)

// printResult renders a pipeline run for the terminal.
func printResult(requestID, query string, result *pipeline.Result) {
	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s Pipeline complete for %s\n\n", green("✓"), cyan(query))

	report := result.Report
	fmt.Printf("  Request: %s\n", gray(requestID))
	if result.FromCache {
		fmt.Printf("  Report: %s\n", gray("served from cache"))
	} else {
		fmt.Printf("  Sources: %s succeeded, %s failed (of %d)\n",
			green(fmt.Sprintf("%d", report.SucceededCount)),
			colorFailed(report.FailedCount),
			report.RequestedSources)
		if result.Duplicates > 0 {
			fmt.Printf("  Duplicates removed: %s\n", gray(fmt.Sprintf("%d", result.Duplicates)))
		}
		fmt.Printf("  Embeddings: %d new, %d cached, %d failed\n",
			result.EmbedStats.Embedded, result.EmbedStats.CacheHits, result.EmbedStats.Failed)
	}
	fmt.Printf("  Elapsed: %s\n\n", cyan(result.Elapsed.Round(time.Millisecond).String()))

	for _, rec := range report.Records {
		if !rec.Succeeded {
			fmt.Printf("  %s %s: %s\n", yellow("⚠"), rec.SourceID, gray(rec.FailureKind))
		}
	}

	if len(result.Connections) == 0 {
		fmt.Printf("  %s\n\n", gray("No connections cleared the similarity floor."))
		return
	}

	fmt.Printf("%s Connections:\n\n", cyan(fmt.Sprintf("%d", len(result.Connections))))
	for i, conn := range result.Connections {
		fmt.Printf("  %d. %s (%d records, similarity %.2f, breakthrough %s)\n",
			conn.Rank, gray(conn.ID), len(conn.ParticipantRecordIDs),
			conn.SimilarityScore, cyan(fmt.Sprintf("%.1f", conn.BreakthroughScore)))
		fmt.Printf("     novelty %.0f / relevance %.0f / emotional %.0f\n",
			conn.NoveltyScore, conn.RelevanceScore, conn.EmotionalScore)

		if i < len(result.Artifacts) && result.Artifacts[i] != nil {
			printArtifact(result.Artifacts[i])
		}
		fmt.Println()
	}
}

func printArtifact(art *types.CandidateArtifact) {
	gray := color.New(color.FgHiBlack).SprintFunc()

	label := fmt.Sprintf("%s, attempt %d", art.Tier, art.AttemptNumber)
	if art.Fallback {
		label += ", fallback"
	}
	fmt.Printf("     %s [%s] (%s, quality %.1f)\n",
		tierColor(art.Tier)("●"), art.Category, label, art.QualityScore)

	for _, line := range strings.Split(art.Content, "\n") {
		if line != "" {
			fmt.Printf("     %s\n", line)
		}
	}
	fmt.Printf("     %s\n", gray("refs: "+strings.Join(art.ReferencedRecordIDs, ", ")))
}

func tierColor(t types.Tier) func(a ...interface{}) string {
	switch t {
	case types.TierExcellent, types.TierGreat:
		return color.New(color.FgGreen).SprintFunc()
	case types.TierGood:
		return color.New(color.FgCyan).SprintFunc()
	case types.TierFair:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgRed).SprintFunc()
	}
}

func colorFailed(n int) string {
	if n == 0 {
		return color.New(color.FgGreen).Sprintf("%d", n)
	}
	return color.New(color.FgYellow).Sprintf("%d", n)
}
