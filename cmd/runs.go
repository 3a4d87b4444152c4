package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sunsetwell/scoring-cli/internal/model"
	"github.com/sunsetwell/scoring-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent job runs",
	Long:  "Shows the job run log, newest first, optionally filtered by job and status.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		job, _ := cmd.Flags().GetString("job")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListJobRuns(ctx, store.JobFilter{
			Job:    model.JobName(job),
			Status: model.JobStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func init() {
	f := runsCmd.Flags()
	f.String("job", "", "filter by job (seed_weights, peer_groups, normalize, score, benchmarks)")
	f.String("status", "", "filter by status (running, complete, failed)")
	f.Int("limit", 20, "maximum number of runs")
	f.Bool("json", false, "print runs as JSON")

	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of job runs to out.
func formatRunsList(out io.Writer, runs []model.JobRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tJOB\tSTATUS\tROWS\tSTARTED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "--\t---\t------\t----\t-------\t--------\t-----")

	for _, r := range runs {
		dur := ""
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		errMsg := r.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Job,
			r.Status,
			r.RowsWritten,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			errMsg,
		)
	}
	_ = w.Flush()
}
