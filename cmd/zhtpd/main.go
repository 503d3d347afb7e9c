// Command zhtpd is the node daemon entrypoint, mirroring the teacher's
// cmd/synnergy rootCmd/subcommand pattern: node start, identity
// create|import, and domain register|update|rollback|resolve wrap the
// internal packages as thin CLI surfaces.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"zhtp-core/internal/config"
)

var (
	configDir string
	envName   string
)

func main() {
	rootCmd := &cobra.Command{Use: "zhtpd", Short: "zhtp sovereign mesh node"}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "directory containing default.yaml and environment overrides")
	rootCmd.PersistentFlags().StringVar(&envName, "env", string(config.Development), "deployment environment: development|production")

	rootCmd.AddCommand(nodeCmd())
	rootCmd.AddCommand(identityCmd())
	rootCmd.AddCommand(domainCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configDir, config.Environment(envName))
}
