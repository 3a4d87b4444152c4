// Package weights resolves metric weights from persisted overrides and the
// compiled-in defaults, and loads weight sets for seeding.
package weights

import (
	"strings"

	"github.com/sunsetwell/scoring-cli/internal/catalog"
	"github.com/sunsetwell/scoring-cli/internal/geo"
	"github.com/sunsetwell/scoring-cli/internal/model"
)

type key struct {
	provider model.ProviderType
	region   string
	metric   string
}

// Resolver answers weight lookups for one run. Overrides are loaded once
// and never refetched.
type Resolver struct {
	overrides map[key]float64
}

// NewResolver indexes override rows. Rows with an empty region are GLOBAL.
// When the same key appears more than once the last row wins.
func NewResolver(rows []model.MetricWeight) *Resolver {
	r := &Resolver{overrides: make(map[key]float64, len(rows))}
	for _, w := range rows {
		r.overrides[key{provider: w.ProviderType, region: scopeKey(w.Region), metric: w.MetricKey}] = w.Weight
	}
	return r
}

// DefaultsOnly returns a Resolver with no overrides.
func DefaultsOnly() *Resolver {
	return NewResolver(nil)
}

// Len reports the number of distinct overrides.
func (r *Resolver) Len() int {
	return len(r.overrides)
}

// Resolve returns the weight for a metric, checking in order: the region
// override, the region's census division override, the GLOBAL override,
// then the compiled-in default. ok is false when nothing matches.
func (r *Resolver) Resolve(pt model.ProviderType, metricKey, region string) (float64, bool) {
	region = scopeKey(region)
	if region != model.GlobalRegion {
		if w, ok := r.overrides[key{pt, region, metricKey}]; ok {
			return w, true
		}
		if d, ok := geo.DivisionFor(region); ok {
			if w, ok := r.overrides[key{pt, geo.DivisionRegion(d), metricKey}]; ok {
				return w, true
			}
		}
	}
	if w, ok := r.overrides[key{pt, model.GlobalRegion, metricKey}]; ok {
		return w, true
	}
	return catalog.DefaultWeight(pt, metricKey)
}

func scopeKey(region string) string {
	region = strings.TrimSpace(region)
	if region == "" || strings.EqualFold(region, model.GlobalRegion) {
		return model.GlobalRegion
	}
	if strings.HasPrefix(strings.ToUpper(region), "DIV:") {
		return "DIV:" + strings.ToLower(region[4:])
	}
	return strings.ToUpper(region)
}
