package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mbaxter/synapse/internal/config"
	"github.com/mbaxter/synapse/internal/source"
	"github.com/mbaxter/synapse/internal/types"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured intelligence sources",
	Long: `List the sources configured in the config file, in registry order.

Examples:
  synapse sources
  synapse sources --config=prod.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		registry, err := buildRegistry(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printSources(cfg, registry)
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func printSources(cfg *config.Config, registry *source.Registry) {
	cyan := color.New(color.FgCyan).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	names := registry.List()
	if len(names) == 0 {
		fmt.Printf("No sources configured in %s\n", configPath)
		return
	}

	endpoints := make(map[string]string, len(cfg.Sources))
	keyEnvs := make(map[string]string, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		endpoints[sc.Name] = sc.Endpoint
		keyEnvs[sc.Name] = sc.APIKeyEnv
	}

	fmt.Printf("\n%s Configured sources:\n\n", cyan(fmt.Sprintf("%d", len(names))))
	for _, name := range names {
		adapter, _ := registry.Get(name)

		criticality := gray(string(adapter.Criticality()))
		if adapter.Criticality() == types.CriticalityCritical {
			criticality = red(string(adapter.Criticality()))
		}

		fmt.Printf("  %s (%s)\n", cyan(name), criticality)
		fmt.Printf("    Endpoint: %s\n", endpoints[name])
		fmt.Printf("    Timeout: %v\n", adapter.Timeout())
		if env := keyEnvs[name]; env != "" {
			set := gray("unset")
			if os.Getenv(env) != "" {
				set = "set"
			}
			fmt.Printf("    API key: $%s (%s)\n", env, set)
		}
		fmt.Println()
	}
}
