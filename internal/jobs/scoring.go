package jobs

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sunsetwell/scoring-cli/internal/benchmark"
	"github.com/sunsetwell/scoring-cli/internal/catalog"
	"github.com/sunsetwell/scoring-cli/internal/finalize"
	"github.com/sunsetwell/scoring-cli/internal/model"
	"github.com/sunsetwell/scoring-cli/internal/normalize"
)

// ScoreResult carries the final scores alongside the job summary so
// callers can export them.
type ScoreResult struct {
	Result
	Method finalize.Method
	Scores []model.FacilityScore
	Legacy []model.LegacyScore
}

func (r *Runner) finalizer() *finalize.Finalizer {
	return finalize.New(r.settings.Version,
		finalize.WithTenPointScale(r.settings.TenPointScale),
		finalize.WithClock(r.now),
	)
}

// Normalize recomputes normalized metrics for every provider type and
// writes the percentile scores derived from them.
func (r *Runner) Normalize(ctx context.Context) (ScoreResult, error) {
	var out ScoreResult
	out.Method = finalize.MethodPercentile
	meta := map[string]any{"version": r.settings.Version}

	res, err := r.record(ctx, model.JobNormalize, meta, func(ctx context.Context) (Result, error) {
		available, err := r.store.FacilityColumns(ctx)
		if err != nil {
			return Result{}, err
		}
		resolver := r.resolver(ctx)

		var facilities []model.Facility
		for _, pt := range model.ProviderTypes {
			batch, err := r.facilities(ctx, pt, catalog.ForProvider(pt))
			if err != nil {
				return Result{}, err
			}
			facilities = append(facilities, batch...)
		}

		norm := normalize.New(r.settings.Version, resolver, normalize.WithClock(r.now))
		nres := norm.Normalize(catalog.All(), available, facilities)

		written, err := r.store.UpsertNormalized(ctx, nres.Rows)
		if err != nil {
			return Result{RowsWritten: written}, eris.Wrap(err, "jobs: write normalized metrics")
		}

		out.Scores = r.finalizer().Percentile(nres.Composites)
		n, err := r.store.UpsertScores(ctx, out.Scores)
		written += n
		if err != nil {
			return Result{RowsWritten: written}, eris.Wrap(err, "jobs: write facility scores")
		}

		return Result{
			RowsWritten: written,
			Metadata: map[string]any{
				"version":          r.settings.Version,
				"facilities":       len(facilities),
				"normalized_rows":  len(nres.Rows),
				"scores":           len(out.Scores),
				"skipped_metrics":  nres.Skipped,
				"weight_overrides": resolver.Len(),
			},
		}, nil
	})
	out.Result = res
	return out, err
}

// Score rebuilds composites from the stored normalized metrics and writes
// final scores with the given method.
func (r *Runner) Score(ctx context.Context, method finalize.Method) (ScoreResult, error) {
	out := ScoreResult{Method: method}
	meta := map[string]any{"version": r.settings.Version, "method": string(method)}

	res, err := r.record(ctx, model.JobScore, meta, func(ctx context.Context) (Result, error) {
		rows, err := r.store.ListNormalized(ctx, r.settings.Version)
		if err != nil {
			return Result{}, err
		}
		if len(rows) == 0 {
			zap.L().Warn("jobs: no normalized metrics for version, nothing to score",
				zap.String("component", "jobs.score"),
				zap.String("version", r.settings.Version),
			)
		}
		resolver := r.resolver(ctx)
		composites := normalize.Accumulate(rows, resolver)

		var n int64
		switch method {
		case finalize.MethodLegacy:
			out.Legacy = r.finalizer().Legacy(composites, r.settings.CalculationDate)
			n, err = r.store.UpsertLegacyScores(ctx, out.Legacy)
		case finalize.MethodPercentile, "":
			out.Method = finalize.MethodPercentile
			out.Scores = r.finalizer().Percentile(composites)
			n, err = r.store.UpsertScores(ctx, out.Scores)
		default:
			return Result{}, eris.Errorf("jobs: unknown score method %q", method)
		}
		if err != nil {
			return Result{RowsWritten: n}, eris.Wrap(err, "jobs: write scores")
		}
		return Result{
			RowsWritten: n,
			Metadata: map[string]any{
				"version":    r.settings.Version,
				"method":     string(out.Method),
				"composites": len(composites),
			},
		}, nil
	})
	out.Result = res
	return out, err
}

// Benchmarks recomputes benchmark statistics for every stored peer group.
func (r *Runner) Benchmarks(ctx context.Context) (Result, error) {
	agg := benchmark.New(r.store, r.settings.CalculationDate)
	meta := map[string]any{"calculation_date": agg.CalculationDate()}

	return r.record(ctx, model.JobBenchmarks, meta, func(ctx context.Context) (Result, error) {
		available, err := r.store.FacilityColumns(ctx)
		if err != nil {
			return Result{}, err
		}
		groups, err := r.store.ListPeerGroups(ctx)
		if err != nil {
			return Result{}, err
		}
		rows, sum, err := agg.Run(ctx, groups, available)
		if err != nil {
			return Result{}, err
		}
		if len(rows) == 0 {
			zap.L().Warn("jobs: no benchmark rows generated",
				zap.String("component", "jobs.benchmarks"),
				zap.Int("peer_groups", len(groups)),
			)
		}
		n, err := r.store.UpsertBenchmarks(ctx, rows)
		if err != nil {
			return Result{RowsWritten: n}, eris.Wrap(err, "jobs: write benchmarks")
		}
		return Result{
			RowsWritten: n,
			Metadata: map[string]any{
				"calculation_date": agg.CalculationDate(),
				"peer_groups":      sum.Groups,
				"empty_groups":     sum.EmptyGroups,
				"invalid_groups":   sum.InvalidGroups,
			},
		}, nil
	})
}

// PipelineOptions selects the optional pipeline stages.
type PipelineOptions struct {
	SeedWeights bool
	WeightsFile string
	Method      finalize.Method
}

// Pipeline runs the jobs in dependency order: optional weight seeding,
// peer groups, normalization (with percentile scores), the legacy score
// when requested, then benchmarks. It stops at the first failure.
func (r *Runner) Pipeline(ctx context.Context, opts PipelineOptions) ([]Result, error) {
	var results []Result
	step := func(res Result, err error) error {
		results = append(results, res)
		return err
	}

	if opts.SeedWeights || opts.WeightsFile != "" {
		if err := step(r.SeedWeights(ctx, opts.WeightsFile)); err != nil {
			return results, err
		}
	}
	if err := step(r.BuildPeerGroups(ctx)); err != nil {
		return results, err
	}
	norm, err := r.Normalize(ctx)
	if err := step(norm.Result, err); err != nil {
		return results, err
	}
	if opts.Method == finalize.MethodLegacy {
		legacy, err := r.Score(ctx, finalize.MethodLegacy)
		if err := step(legacy.Result, err); err != nil {
			return results, err
		}
	}
	if err := step(r.Benchmarks(ctx)); err != nil {
		return results, err
	}
	return results, nil
}
