package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mbaxter/synapse/internal/config"
	"github.com/mbaxter/synapse/internal/reportcache"
	"github.com/mbaxter/synapse/internal/vectorize"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the report and embedding caches",
}

var cachePingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check report cache connectivity",
	Run: func(cmd *cobra.Command, args []string) {
		green := color.New(color.FgGreen).SprintFunc()

		cache := openReportCache()
		defer cache.Close()

		if err := cache.Ping(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Report cache reachable\n", green("✓"))
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the report cache and the embedding cache",
	Run: func(cmd *cobra.Command, args []string) {
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		ctx := context.Background()

		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if !cfg.Cache.Disabled {
			cacheCfg, err := cfg.Cache.Build()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			reports := reportcache.New(cacheCfg)
			defer reports.Close()

			removed, err := reports.Clear(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Cleared %d cached reports\n", green("✓"), removed)
		} else {
			fmt.Printf("%s Report cache disabled, skipping\n", gray("→"))
		}

		if cfg.Embedding.CachePath != "" {
			embedCache, err := vectorize.NewSQLiteCache(cfg.Embedding.CachePath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer embedCache.Close()

			if err := embedCache.Clear(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Cleared embedding cache at %s\n", green("✓"), cfg.Embedding.CachePath)
		} else {
			fmt.Printf("%s No persistent embedding cache configured, skipping\n", gray("→"))
		}
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePingCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func openReportCache() *reportcache.Cache {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cacheCfg, err := cfg.Cache.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return reportcache.New(cacheCfg)
}
