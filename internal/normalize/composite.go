package normalize

import (
	"cmp"
	"math"
	"slices"

	"github.com/sunsetwell/scoring-cli/internal/model"
	"github.com/sunsetwell/scoring-cli/internal/weights"
)

// Composite is the weighted sum of a facility's z-scores within one
// (provider type, region) cohort.
type Composite struct {
	FacilityID   string
	ProviderType model.ProviderType
	Region       string
	RawScore     float64
	WeightTotal  float64
	Metrics      int
}

// Score returns RawScore divided by WeightTotal, or 0 when no weighted
// metric contributed.
func (c Composite) Score() float64 {
	if c.WeightTotal == 0 {
		return 0
	}
	return c.RawScore / c.WeightTotal
}

type compositeKey struct {
	facility string
	provider model.ProviderType
	region   string
}

// Accumulate folds normalized rows into composites. Rows whose weight is
// zero or unresolved do not contribute; a facility with no weighted rows
// has no composite. The result is sorted by facility, provider and region.
func Accumulate(rows []model.NormalizedMetric, resolver *weights.Resolver) []Composite {
	if resolver == nil {
		resolver = weights.DefaultsOnly()
	}
	acc := make(map[compositeKey]*Composite)
	for _, r := range rows {
		w, ok := resolver.Resolve(r.ProviderType, r.MetricKey, r.Region)
		if !ok || w == 0 {
			continue
		}
		z := r.ZScore
		if math.IsNaN(z) || math.IsInf(z, 0) {
			z = 0
		}
		k := compositeKey{r.FacilityID, r.ProviderType, r.Region}
		c, found := acc[k]
		if !found {
			c = &Composite{FacilityID: r.FacilityID, ProviderType: r.ProviderType, Region: r.Region}
			acc[k] = c
		}
		c.RawScore += w * z
		c.WeightTotal += math.Abs(w)
		c.Metrics++
	}

	out := make([]Composite, 0, len(acc))
	for _, c := range acc {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Composite) int {
		return cmp.Or(
			cmp.Compare(a.FacilityID, b.FacilityID),
			cmp.Compare(a.ProviderType, b.ProviderType),
			cmp.Compare(a.Region, b.Region),
		)
	})
	return out
}
