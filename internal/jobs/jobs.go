// Package jobs runs the scoring batch jobs against a store and records
// each execution in the job run log.
package jobs

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sunsetwell/scoring-cli/internal/catalog"
	"github.com/sunsetwell/scoring-cli/internal/model"
	"github.com/sunsetwell/scoring-cli/internal/peergroup"
	"github.com/sunsetwell/scoring-cli/internal/store"
	"github.com/sunsetwell/scoring-cli/internal/weights"
)

// Settings are the run-wide knobs shared by every job.
type Settings struct {
	Version         string
	TenPointScale   bool
	Thresholds      peergroup.Thresholds
	CalculationDate string // benchmarks; empty uses today
}

// Result summarizes one job execution.
type Result struct {
	Job         model.JobName
	RunID       string
	RowsWritten int64
	Metadata    map[string]any
	Elapsed     time.Duration
}

// Runner executes jobs sequentially against one store.
type Runner struct {
	store    store.Store
	settings Settings
	now      func() time.Time
}

// New creates a Runner.
func New(s store.Store, settings Settings) *Runner {
	if settings.Thresholds == (peergroup.Thresholds{}) {
		settings.Thresholds = peergroup.DefaultThresholds()
	}
	return &Runner{store: s, settings: settings, now: time.Now}
}

// record wraps fn with the job run log. A failure to write the log entry
// for a failed job is logged and does not mask the job error.
func (r *Runner) record(ctx context.Context, job model.JobName, meta map[string]any, fn func(ctx context.Context) (Result, error)) (Result, error) {
	log := zap.L().With(zap.String("component", "jobs"), zap.String("job", string(job)))

	runID, err := r.store.StartJobRun(ctx, job, meta)
	if err != nil {
		return Result{}, eris.Wrapf(err, "jobs: start run log for %s", job)
	}
	log.Info("job started", zap.String("run_id", runID))

	start := time.Now()
	res, err := fn(ctx)
	res.Job = job
	res.RunID = runID
	res.Elapsed = time.Since(start)

	if err != nil {
		log.Error("job failed", zap.Error(err), zap.Duration("elapsed", res.Elapsed))
		if logErr := r.store.FailJobRun(context.WithoutCancel(ctx), runID, err.Error()); logErr != nil {
			log.Error("failed to record job failure", zap.Error(logErr))
		}
		return res, err
	}

	if err := r.store.CompleteJobRun(ctx, runID, res.RowsWritten, res.Metadata); err != nil {
		return res, eris.Wrapf(err, "jobs: complete run log for %s", job)
	}
	log.Info("job complete",
		zap.Int64("rows", res.RowsWritten),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// resolver loads the weight overrides for the configured version. A load
// failure falls back to the compiled-in defaults.
func (r *Runner) resolver(ctx context.Context) *weights.Resolver {
	rows, err := r.store.LoadWeights(ctx, r.settings.Version)
	if err != nil {
		zap.L().Warn("jobs: loading weight overrides failed, using defaults",
			zap.String("component", "jobs"),
			zap.String("version", r.settings.Version),
			zap.Error(err),
		)
		return weights.DefaultsOnly()
	}
	return weights.NewResolver(rows)
}

// facilities loads every facility of a provider type with the given metric
// columns.
func (r *Runner) facilities(ctx context.Context, pt model.ProviderType, metrics []catalog.Metric) ([]model.Facility, error) {
	out, err := store.Collect(r.store.Facilities(ctx, store.FacilityQuery{
		ProviderType: pt,
		Columns:      catalog.Columns(metrics),
	}))
	if err != nil {
		return nil, eris.Wrapf(err, "jobs: load %s facilities", pt)
	}
	return out, nil
}

// SeedWeights replaces the stored weight set. An empty file seeds the
// compiled-in defaults for the configured version; otherwise the file's
// version and weights are used.
func (r *Runner) SeedWeights(ctx context.Context, file string) (Result, error) {
	meta := map[string]any{"version": r.settings.Version}
	if file != "" {
		meta["file"] = file
	}
	return r.record(ctx, model.JobSeedWeights, meta, func(ctx context.Context) (Result, error) {
		version := r.settings.Version
		rows := catalog.DefaultWeights(version)
		if file != "" {
			loaded, err := weights.LoadFile(file, version)
			if err != nil {
				return Result{}, err
			}
			rows = loaded
			if len(rows) > 0 {
				version = rows[0].Version
			}
		}
		if err := weights.Validate(version, rows); err != nil {
			return Result{}, err
		}

		n, err := r.store.ReplaceWeights(ctx, version, rows)
		if err != nil {
			return Result{}, err
		}
		return Result{RowsWritten: n, Metadata: map[string]any{"version": version, "weights": len(rows)}}, nil
	})
}

// BuildPeerGroups rebuilds peer groups for every provider type. A provider
// type that yields no groups keeps its existing rows.
func (r *Runner) BuildPeerGroups(ctx context.Context) (Result, error) {
	meta := map[string]any{
		"min_state_size":    r.settings.Thresholds.MinStateSize,
		"min_division_size": r.settings.Thresholds.MinDivisionSize,
		"min_segment_size":  r.settings.Thresholds.MinSegmentSize,
	}
	return r.record(ctx, model.JobPeerGroups, meta, func(ctx context.Context) (Result, error) {
		log := zap.L().With(zap.String("component", "jobs.peer_groups"))
		builder := peergroup.NewBuilder(r.settings.Thresholds)

		var res Result
		perType := make(map[string]any, len(model.ProviderTypes))
		for _, pt := range model.ProviderTypes {
			facilities, err := r.facilities(ctx, pt, nil)
			if err != nil {
				return res, err
			}
			built := builder.Build(pt, facilities)
			if len(built.Groups) == 0 {
				log.Warn("no peer groups generated, keeping existing groups",
					zap.String("provider_type", string(pt)),
					zap.Int("facilities", len(facilities)),
				)
				continue
			}

			rows := make([]model.PeerGroup, 0, len(built.Groups))
			for _, g := range built.Groups {
				row, err := g.PeerGroup()
				if err != nil {
					return res, err
				}
				rows = append(rows, row)
			}
			n, err := r.store.ReplacePeerGroups(ctx, pt, rows)
			if err != nil {
				return res, err
			}
			res.RowsWritten += n
			perType[string(pt)] = map[string]any{"groups": len(rows), "discarded": built.Discarded}
		}
		res.Metadata = map[string]any{"provider_types": perType}
		return res, nil
	})
}
