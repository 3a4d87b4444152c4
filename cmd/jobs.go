package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sunsetwell/scoring-cli/internal/finalize"
	"github.com/sunsetwell/scoring-cli/internal/jobs"
)

var seedWeightsCmd = &cobra.Command{
	Use:   "seed-weights",
	Short: "Replace the stored metric weights for the score version",
	Long: `Deletes the weight rows for the configured score version and inserts
either the compiled-in defaults or the weights from a YAML file.

Examples:
  seed-weights
  seed-weights --file weights/v3.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		file, _ := cmd.Flags().GetString("file")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := newRunner(st).SeedWeights(ctx, file)
		if err != nil {
			return err
		}
		printResult(os.Stdout, res)
		return nil
	},
}

var peerGroupsCmd = &cobra.Command{
	Use:   "peer-groups",
	Short: "Rebuild peer groups for every provider type",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := newRunner(st).BuildPeerGroups(ctx)
		if err != nil {
			return err
		}
		printResult(os.Stdout, res)
		return nil
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize facility metrics and write percentile scores",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := newRunner(st).Normalize(ctx)
		if err != nil {
			return err
		}
		printResult(os.Stdout, res.Result)
		return nil
	},
}

var benchmarksCmd = &cobra.Command{
	Use:   "benchmarks",
	Short: "Compute per peer group metric benchmarks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if date, _ := cmd.Flags().GetString("date"); date != "" {
			cfg.Benchmarks.CalculationDate = date
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := newRunner(st).Benchmarks(ctx)
		if err != nil {
			return err
		}
		printResult(os.Stdout, res)
		return nil
	},
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run peer groups, normalize, score and benchmarks in order",
	Long: `Runs every job in dependency order and stops at the first failure.
Weight seeding runs first only when --seed-weights or --weights-file is set.
With --method legacy the deprecated linear scores are also written.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		seed, _ := cmd.Flags().GetBool("seed-weights")
		file, _ := cmd.Flags().GetString("weights-file")
		methodFlag, _ := cmd.Flags().GetString("method")
		if methodFlag == "" {
			methodFlag = cfg.Scoring.Method
		}
		method, err := finalize.ParseMethod(methodFlag)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		results, err := newRunner(st).Pipeline(ctx, jobs.PipelineOptions{
			SeedWeights: seed,
			WeightsFile: file,
			Method:      method,
		})
		for _, res := range results {
			if res.RunID != "" {
				printResult(os.Stdout, res)
			}
		}
		return err
	},
}

func init() {
	seedWeightsCmd.Flags().String("file", "", "YAML weight file (default: compiled-in weights)")

	benchmarksCmd.Flags().String("date", "", "calculation date YYYY-MM-DD (default: today)")

	pf := pipelineCmd.Flags()
	pf.Bool("seed-weights", false, "seed default weights before scoring")
	pf.String("weights-file", "", "seed weights from a YAML file before scoring")
	pf.String("method", "", "score method: percentile or legacy (default: scoring.method)")

	rootCmd.AddCommand(seedWeightsCmd, peerGroupsCmd, normalizeCmd, benchmarksCmd, pipelineCmd)
}
