// Package finalize turns composite z-scores into published facility scores.
//
// The percentile method writes facility_scores and is the canonical path.
// The legacy linear rescale writes sunsetwell_scores and is deprecated; it
// is kept for consumers that still read that table.
package finalize

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sunsetwell/scoring-cli/internal/model"
	"github.com/sunsetwell/scoring-cli/internal/normalize"
	"github.com/sunsetwell/scoring-cli/internal/stats"
)

// Method selects how composites become scores.
type Method string

const (
	MethodPercentile Method = "percentile"
	MethodLegacy     Method = "legacy"
)

// ParseMethod validates a method name. Empty selects the percentile method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodPercentile, nil
	case MethodPercentile, MethodLegacy:
		return m, nil
	default:
		return "", eris.Errorf("finalize: unknown method %q (want percentile or legacy)", s)
	}
}

// Finalizer converts composites for one score version.
type Finalizer struct {
	version  string
	tenPoint bool
	now      func() time.Time
}

// Option configures a Finalizer.
type Option func(*Finalizer)

// WithTenPointScale rescales final scores from 0-100 to 1-10.
func WithTenPointScale(on bool) Option {
	return func(f *Finalizer) { f.tenPoint = on }
}

// WithClock overrides the timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(f *Finalizer) {
		if fn != nil {
			f.now = fn
		}
	}
}

// New creates a Finalizer.
func New(version string, opts ...Option) *Finalizer {
	f := &Finalizer{version: version, now: time.Now}
	for _, o := range opts {
		o(f)
	}
	return f
}

// TenPoint maps a 0-100 score onto 1-10.
func TenPoint(score float64) float64 {
	return stats.Clamp(score/10+1, 1, 10)
}

type cohort struct {
	provider model.ProviderType
	region   string
}

func cohorts(composites []normalize.Composite) ([]cohort, map[cohort][]normalize.Composite) {
	groups := make(map[cohort][]normalize.Composite)
	var order []cohort
	for _, c := range composites {
		k := cohort{c.ProviderType, c.Region}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}
	return order, groups
}

// Percentile ranks composite scores ascending within each (provider type,
// region) cohort. Scores are rounded to two decimals.
func (f *Finalizer) Percentile(composites []normalize.Composite) []model.FacilityScore {
	at := f.now().UTC()
	order, groups := cohorts(composites)

	var out []model.FacilityScore
	for _, k := range order {
		members := groups[k]
		values := make([]float64, len(members))
		for i, c := range members {
			values[i] = c.Score()
		}
		pct := stats.RankPercentiles(values, true)
		for i, c := range members {
			score, ok := pct[values[i]]
			if !ok {
				score = 50
			}
			score = stats.Round2(score)
			if f.tenPoint {
				score = stats.Round2(TenPoint(score))
			}
			out = append(out, model.FacilityScore{
				FacilityID:   c.FacilityID,
				Score:        score,
				ProviderType: c.ProviderType,
				Region:       c.Region,
				Version:      f.version,
				CalculatedAt: at,
			})
		}
	}

	out = lastPerKey(out, func(s model.FacilityScore) string { return s.FacilityID + "|" + s.Version })
	zap.L().Info("finalize: percentile scores computed",
		zap.String("component", "finalize"),
		zap.Int("cohorts", len(order)),
		zap.Int("scores", len(out)),
	)
	return out
}

// Legacy maps each composite onto 0-100 with 50 + 25z, clamped, and
// assigns the count-based percentile within its cohort. calculationDate is
// YYYY-MM-DD; empty uses today.
//
// Deprecated: use Percentile. Legacy outputs are written to a separate
// table and are not comparable with percentile scores.
func (f *Finalizer) Legacy(composites []normalize.Composite, calculationDate string) []model.LegacyScore {
	if calculationDate == "" {
		calculationDate = f.now().UTC().Format(time.DateOnly)
	}
	order, groups := cohorts(composites)

	var out []model.LegacyScore
	for _, k := range order {
		members := groups[k]
		scores := make([]float64, len(members))
		for i, c := range members {
			s := stats.Clamp(50+c.Score()*25, 0, 100)
			if f.tenPoint {
				s = TenPoint(s)
			}
			scores[i] = stats.Round2(s)
		}
		for i, c := range members {
			out = append(out, model.LegacyScore{
				FacilityID:        c.FacilityID,
				OverallScore:      scores[i],
				OverallPercentile: stats.CountPercentile(scores, scores[i]),
				ProviderType:      c.ProviderType,
				Region:            c.Region,
				CalculationDate:   calculationDate,
				Version:           f.version,
			})
		}
	}

	out = lastPerKey(out, func(s model.LegacyScore) string { return s.FacilityID + "|" + s.CalculationDate })
	zap.L().Info("finalize: legacy scores computed",
		zap.String("component", "finalize"),
		zap.String("calculation_date", calculationDate),
		zap.Int("scores", len(out)),
	)
	return out
}

// lastPerKey keeps the last row for each key and orders rows by key.
func lastPerKey[T any](rows []T, key func(T) string) []T {
	idx := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		k := key(r)
		if i, ok := idx[k]; ok {
			out[i] = r
			continue
		}
		idx[k] = len(out)
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b T) int { return cmp.Compare(key(a), key(b)) })
	return out
}
