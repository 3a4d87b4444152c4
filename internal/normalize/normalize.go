// Package normalize converts raw facility metrics into z-scores and rank
// percentiles within (provider type, region) cohorts and accumulates the
// weighted composite used by the score finalizer.
package normalize

import (
	"cmp"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/sunsetwell/scoring-cli/internal/catalog"
	"github.com/sunsetwell/scoring-cli/internal/model"
	"github.com/sunsetwell/scoring-cli/internal/stats"
	"github.com/sunsetwell/scoring-cli/internal/weights"
)

// Normalizer scores one metric version against a fixed weight resolver.
type Normalizer struct {
	version  string
	resolver *weights.Resolver
	now      func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the timestamp source for calculated_at.
func WithClock(fn func() time.Time) Option {
	return func(n *Normalizer) {
		if fn != nil {
			n.now = fn
		}
	}
}

// New creates a Normalizer. A nil resolver uses the compiled-in defaults.
func New(version string, resolver *weights.Resolver, opts ...Option) *Normalizer {
	if resolver == nil {
		resolver = weights.DefaultsOnly()
	}
	n := &Normalizer{version: version, resolver: resolver, now: time.Now}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Result is the output of one normalization pass.
type Result struct {
	Rows       []model.NormalizedMetric
	Composites []Composite
	Skipped    []string // metric keys whose source column is absent
}

type cohortKey struct {
	provider model.ProviderType
	region   string
}

type sample struct {
	facility model.Facility
	value    float64
}

// Normalize processes metrics in order. available lists the columns present
// in the facility table; nil means every column is present. The returned
// rows are deduplicated by (facility, metric, version) with the last write
// kept, and sorted by facility then metric.
func (n *Normalizer) Normalize(metrics []catalog.Metric, available map[string]bool, facilities []model.Facility) Result {
	log := zap.L().With(zap.String("component", "normalize"), zap.String("version", n.version))
	calculatedAt := n.now().UTC()

	var res Result
	var rows []model.NormalizedMetric
	for _, m := range metrics {
		if available != nil && !available[m.Column] {
			log.Warn("normalize: metric column missing, skipping",
				zap.String("metric", m.Key),
				zap.String("column", m.Column),
			)
			res.Skipped = append(res.Skipped, m.Key)
			continue
		}

		cohorts := make(map[cohortKey][]sample)
		var order []cohortKey
		for _, f := range facilities {
			if !m.AppliesTo(f.ProviderType) {
				continue
			}
			v, ok := f.Metric(m.Column)
			if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			k := cohortKey{provider: f.ProviderType, region: f.Region()}
			if _, seen := cohorts[k]; !seen {
				order = append(order, k)
			}
			cohorts[k] = append(cohorts[k], sample{facility: f, value: v})
		}
		if len(order) == 0 {
			log.Debug("normalize: no values for metric", zap.String("metric", m.Key))
			continue
		}

		for _, k := range order {
			rows = append(rows, n.cohortRows(m, k, cohorts[k], calculatedAt)...)
		}
	}

	res.Rows = Dedupe(rows)
	res.Composites = Accumulate(res.Rows, n.resolver)
	log.Info("normalize: metrics normalized",
		zap.Int("facilities", len(facilities)),
		zap.Int("rows", len(res.Rows)),
		zap.Int("composites", len(res.Composites)),
		zap.Int("skipped_metrics", len(res.Skipped)),
	)
	return res
}

func (n *Normalizer) cohortRows(m catalog.Metric, k cohortKey, samples []sample, at time.Time) []model.NormalizedMetric {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.value
	}
	mean := stats.Mean(values)
	sd := stats.StdDev(values, mean)
	pct := stats.RankPercentiles(values, m.HigherIsBetter)

	out := make([]model.NormalizedMetric, 0, len(samples))
	for _, s := range samples {
		p, ok := pct[s.value]
		if !ok {
			p = 50
		}
		out = append(out, model.NormalizedMetric{
			FacilityID:   s.facility.ID,
			MetricKey:    m.Key,
			RawValue:     s.value,
			ZScore:       stats.ZScore(s.value, mean, sd, m.HigherIsBetter),
			Percentile:   p,
			Mean:         mean,
			StdDev:       sd,
			ProviderType: k.provider,
			Region:       k.region,
			ScoreVersion: n.version,
			CalculatedAt: at,
		})
	}
	return out
}

type rowKey struct {
	facility, metric, version string
}

// Dedupe keeps the last row per (facility, metric, version) and sorts the
// result by facility then metric.
func Dedupe(rows []model.NormalizedMetric) []model.NormalizedMetric {
	idx := make(map[rowKey]int, len(rows))
	out := make([]model.NormalizedMetric, 0, len(rows))
	for _, r := range rows {
		k := rowKey{r.FacilityID, r.MetricKey, r.ScoreVersion}
		if i, ok := idx[k]; ok {
			out[i] = r
			continue
		}
		idx[k] = len(out)
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b model.NormalizedMetric) int {
		return cmp.Or(
			cmp.Compare(a.FacilityID, b.FacilityID),
			cmp.Compare(a.MetricKey, b.MetricKey),
			cmp.Compare(a.ScoreVersion, b.ScoreVersion),
		)
	})
	return out
}
