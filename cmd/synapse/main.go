// synapse discovers breakthrough connections across intelligence sources
// and synthesizes validated content artifacts from them.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "synapse",
	Short: "Intelligence orchestration and connection discovery",
	Long: `synapse fans out across configured intelligence sources, embeds what
comes back, discovers high-similarity connections between records, and
synthesizes content artifacts from the strongest ones.

Every artifact is validated against its source records: URLs, quotes,
handles, and timestamps that cannot be traced to a fetched record are
rejected and regenerated.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "synapse.yaml", "Path to the configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
