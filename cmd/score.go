package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sunsetwell/scoring-cli/internal/finalize"
	"github.com/sunsetwell/scoring-cli/internal/jobs"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute final facility scores from stored normalized metrics",
	Long: `Rebuilds each facility's weighted composite from the normalized metrics
stored for the score version, then writes final scores.

The percentile method ranks composites within (provider type, region) and
writes facility_scores. The legacy method (deprecated) maps composites onto
0-100 with 50 + 25z and writes sunsetwell_scores keyed by calculation date.

Examples:
  score
  score --method legacy
  score --format csv --output scores.csv`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.String("method", "", "score method: percentile or legacy (default: scoring.method)")
	f.String("output", "", "output file path (default: stdout)")
	f.String("format", "none", "export format: none, table, csv or json")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	methodFlag, _ := cmd.Flags().GetString("method")
	outputPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")

	if methodFlag == "" {
		methodFlag = cfg.Scoring.Method
	}
	method, err := finalize.ParseMethod(methodFlag)
	if err != nil {
		return err
	}
	switch format {
	case "none", "table", "csv", "json":
	default:
		return eris.Errorf("score: --format must be none, table, csv or json (got %q)", format)
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	res, err := newRunner(st).Score(ctx, method)
	if err != nil {
		return err
	}
	printResult(os.Stderr, res.Result)

	if format == "none" {
		return nil
	}
	return outputScoreResults(res, format, outputPath)
}

func outputScoreResults(res jobs.ScoreResult, format, outputPath string) error {
	var w io.Writer = os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "score: create output file %s", outputPath)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	rows := scoreRows(res)
	switch format {
	case "csv":
		return writeScoreCSV(w, rows)
	case "table":
		return writeScoreTable(w, rows)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if res.Method == finalize.MethodLegacy {
			return enc.Encode(res.Legacy)
		}
		return enc.Encode(res.Scores)
	default:
		return eris.Errorf("score: unsupported format %q", format)
	}
}

// scoreRow is the flattened export shape shared by both methods.
type scoreRow struct {
	FacilityID   string
	ProviderType string
	Region       string
	Score        float64
	Percentile   string
}

func scoreRows(res jobs.ScoreResult) []scoreRow {
	var out []scoreRow
	if res.Method == finalize.MethodLegacy {
		for _, s := range res.Legacy {
			out = append(out, scoreRow{
				FacilityID:   s.FacilityID,
				ProviderType: string(s.ProviderType),
				Region:       s.Region,
				Score:        s.OverallScore,
				Percentile:   fmt.Sprintf("%.0f", s.OverallPercentile),
			})
		}
		return out
	}
	// Percentile scores are their own cohort percentile.
	for _, s := range res.Scores {
		out = append(out, scoreRow{
			FacilityID:   s.FacilityID,
			ProviderType: string(s.ProviderType),
			Region:       s.Region,
			Score:        s.Score,
			Percentile:   fmt.Sprintf("%.2f", s.Score),
		})
	}
	return out
}

func writeScoreCSV(w io.Writer, rows []scoreRow) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"facility_id", "provider_type", "region", "score", "percentile"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "score: write CSV header")
	}

	for _, r := range rows {
		row := []string{
			r.FacilityID,
			r.ProviderType,
			r.Region,
			fmt.Sprintf("%.2f", r.Score),
			r.Percentile,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "score: write CSV row")
		}
	}
	return nil
}

func writeScoreTable(w io.Writer, rows []scoreRow) error {
	header := fmt.Sprintf("%-40s %-16s %-8s %8s %6s\n",
		"Facility", "Provider", "Region", "Score", "Pctl")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "score: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 82)); err != nil {
		return eris.Wrap(err, "score: write table separator")
	}

	for _, r := range rows {
		id := r.FacilityID
		if len(id) > 40 {
			id = id[:37] + "..."
		}
		region := r.Region
		if region == "" {
			region = "-"
		}
		if _, err := fmt.Fprintf(w, "%-40s %-16s %-8s %8.2f %6s\n",
			id, r.ProviderType, region, r.Score, r.Percentile); err != nil {
			return eris.Wrap(err, "score: write table row")
		}
	}
	return nil
}
