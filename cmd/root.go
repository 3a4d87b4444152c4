package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sunsetwell/scoring-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "scoring-cli",
	Short: "SunsetWell facility scoring and peer grouping pipeline",
	Long: `Builds peer groups, normalizes regulatory metrics, computes facility scores
and peer-group benchmarks for senior care providers.

Jobs run sequentially against the configured store and are recorded in the
job run log. Configuration comes from config.yaml in the working directory
and SUNSETWELL_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
