// Package benchmark computes descriptive statistics for each peer group by
// re-evaluating its criteria over the live facility table.
package benchmark

import (
	"context"
	"iter"
	"math"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sunsetwell/scoring-cli/internal/catalog"
	"github.com/sunsetwell/scoring-cli/internal/criteria"
	"github.com/sunsetwell/scoring-cli/internal/model"
	"github.com/sunsetwell/scoring-cli/internal/stats"
	"github.com/sunsetwell/scoring-cli/internal/store"
)

// FacilitySource streams facilities for a query.
type FacilitySource interface {
	Facilities(ctx context.Context, q store.FacilityQuery) iter.Seq2[model.Facility, error]
}

// Summary counts what a run did.
type Summary struct {
	Groups        int
	EmptyGroups   int
	InvalidGroups int
	Rows          int
}

// Aggregator builds benchmark rows for one calculation date.
type Aggregator struct {
	src  FacilitySource
	date string
}

// New creates an Aggregator. An empty calculationDate uses today (UTC).
func New(src FacilitySource, calculationDate string) *Aggregator {
	if calculationDate == "" {
		calculationDate = time.Now().UTC().Format(time.DateOnly)
	}
	return &Aggregator{src: src, date: calculationDate}
}

// CalculationDate returns the date stamped on every row.
func (a *Aggregator) CalculationDate() string { return a.date }

// Run computes benchmarks for every group. available is the set of
// facility columns; metrics whose column is absent are skipped. nil means
// every column is present. Groups whose criteria cannot be parsed or that
// match no facility produce no rows.
func (a *Aggregator) Run(ctx context.Context, groups []model.PeerGroup, available map[string]bool) ([]model.Benchmark, Summary, error) {
	log := zap.L().With(zap.String("component", "benchmark"), zap.String("calculation_date", a.date))

	var out []model.Benchmark
	var sum Summary
	for _, g := range groups {
		metrics := usableMetrics(g.FacilityType, available)
		if len(metrics) == 0 {
			log.Debug("benchmark: no metrics for peer group", zap.String("peer_group", g.ID))
			continue
		}
		sum.Groups++

		crit, unknown, err := criteria.Parse(g.Criteria)
		if err != nil {
			log.Warn("benchmark: invalid peer group criteria, skipping",
				zap.String("peer_group", g.ID), zap.Error(err))
			sum.InvalidGroups++
			continue
		}
		if len(unknown) > 0 {
			log.Warn("benchmark: ignoring unknown criteria keys",
				zap.String("peer_group", g.ID), zap.Strings("keys", unknown))
		}

		rows, err := a.group(ctx, g, crit, metrics)
		if err != nil {
			return nil, sum, eris.Wrapf(err, "benchmark: peer group %s", g.ID)
		}
		if len(rows) == 0 {
			log.Info("benchmark: peer group has no facilities after filtering",
				zap.String("peer_group", g.ID), zap.String("name", g.Name))
			sum.EmptyGroups++
			continue
		}
		out = append(out, rows...)
	}

	sum.Rows = len(out)
	log.Info("benchmark: benchmarks computed",
		zap.Int("groups", sum.Groups),
		zap.Int("empty_groups", sum.EmptyGroups),
		zap.Int("rows", sum.Rows),
	)
	return out, sum, nil
}

func (a *Aggregator) group(ctx context.Context, g model.PeerGroup, crit criteria.Criteria, metrics []catalog.Metric) ([]model.Benchmark, error) {
	q := store.FacilityQuery{
		ProviderType: g.FacilityType,
		Filter:       crit.ServerFilter(),
		Columns:      catalog.Columns(metrics),
	}

	values := make(map[string][]float64, len(metrics))
	for f, err := range a.src.Facilities(ctx, q) {
		if err != nil {
			return nil, err
		}
		if f.ProviderType != g.FacilityType || !crit.Matches(f) {
			continue
		}
		for _, m := range metrics {
			if v, ok := f.Metric(m.Column); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
				values[m.Key] = append(values[m.Key], v)
			}
		}
	}

	var rows []model.Benchmark
	for _, m := range metrics {
		b, ok := Compute(values[m.Key])
		if !ok {
			continue
		}
		b.PeerGroupID = g.ID
		b.MetricName = m.Key
		b.CalculationDate = a.date
		rows = append(rows, b)
	}
	return rows, nil
}

func usableMetrics(pt model.ProviderType, available map[string]bool) []catalog.Metric {
	ms := catalog.ForProvider(pt)
	if available == nil {
		return ms
	}
	return slices.DeleteFunc(ms, func(m catalog.Metric) bool { return !available[m.Column] })
}

// Compute returns the descriptive statistics of values. ok is false for an
// empty sample.
func Compute(values []float64) (model.Benchmark, bool) {
	n := len(values)
	if n == 0 {
		return model.Benchmark{}, false
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mean := stats.Mean(sorted)
	return model.Benchmark{
		Mean:        mean,
		Median:      stats.Quantile(sorted, 0.5),
		StdDev:      stats.StdDev(sorted, mean),
		Min:         sorted[0],
		Max:         sorted[n-1],
		P10:         stats.Quantile(sorted, 0.1),
		P25:         stats.Quantile(sorted, 0.25),
		P50:         stats.Quantile(sorted, 0.5),
		P75:         stats.Quantile(sorted, 0.75),
		P90:         stats.Quantile(sorted, 0.9),
		SampleCount: n,
	}, true
}
