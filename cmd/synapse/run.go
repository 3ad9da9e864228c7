package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mbaxter/synapse/internal/config"
	"github.com/mbaxter/synapse/internal/discover"
	"github.com/mbaxter/synapse/internal/synth"
	"github.com/mbaxter/synapse/internal/types"
)

var (
	runSources   string
	runMinScore  float64
	runMaxConns  int
	runNoKWay    bool
	runNoCache   bool
	runMaxLength int
	runTone      string
	runCategory  string
)

var runCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Run the full pipeline for a query",
	Long: `Run the full pipeline: fan out across the configured sources, discover
connections between what came back, and synthesize a validated artifact
for each connection.

Examples:
  synapse run "edge computing"
  synapse run "ai regulation" --sources=hn,arxiv
  synapse run "supply chains" --min-score=70 --max-connections=5
  synapse run "devtools" --category=digest --no-cache`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		query := args[0]

		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(cfg.Sources) == 0 {
			fmt.Fprintf(os.Stderr, "Error: no sources configured in %s\n", configPath)
			os.Exit(1)
		}
		if runNoCache {
			cfg.Cache.Disabled = true
		}

		registry, err := buildRegistry(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		adapters := registry.All()
		if runSources != "" {
			names := strings.Split(runSources, ",")
			for i, n := range names {
				names[i] = strings.TrimSpace(n)
			}
			adapters, err = registry.Resolve(names)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		p, cleanup, err := buildPipeline(cfg, adapters)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := discover.Options{
			MinBreakthroughScore: runMinScore,
			MaxConnections:       runMaxConns,
			EnableKWay:           !runNoKWay,
		}
		constraints := synth.Constraints{
			MaxContentLength: runMaxLength,
			Tone:             runTone,
			Category:         types.ArtifactCategory(runCategory),
		}
		if runCategory != "" && !constraints.Category.IsValid() {
			fmt.Fprintf(os.Stderr, "Error: unknown category %q\n", runCategory)
			os.Exit(1)
		}

		result, err := p.Run(ctx, uuid.New().String(), query, opts, constraints)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(result.RequestID, query, result)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runSources, "sources", "", "Comma-separated source names (default: all configured)")
	runCmd.Flags().Float64Var(&runMinScore, "min-score", 0, "Minimum breakthrough score to keep a connection")
	runCmd.Flags().IntVar(&runMaxConns, "max-connections", 0, "Maximum connections to synthesize (0 = no limit)")
	runCmd.Flags().BoolVar(&runNoKWay, "pairs-only", false, "Disable k-way clustering, keep pairwise connections")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "Skip the report cache")
	runCmd.Flags().IntVar(&runMaxLength, "max-length", 0, "Maximum artifact length in characters (0 = provider default)")
	runCmd.Flags().StringVar(&runTone, "tone", "", "Tone directive for synthesis")
	runCmd.Flags().StringVar(&runCategory, "category", "", "Pin the artifact category: insight, trend, contrast, or digest")
}
