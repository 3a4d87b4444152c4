// Package peergroup partitions facilities into peer cohorts using a
// state, division, national fallback followed by size and ownership
// segmentation.
package peergroup

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sunsetwell/scoring-cli/internal/criteria"
	"github.com/sunsetwell/scoring-cli/internal/geo"
	"github.com/sunsetwell/scoring-cli/internal/model"
)

// Scope is the geographic level a base group was formed at.
type Scope string

const (
	ScopeState    Scope = "state"
	ScopeDivision Scope = "division"
	ScopeNational Scope = "national"
)

// Default minimum sizes.
const (
	DefaultMinStateSize    = 30
	DefaultMinDivisionSize = 60
	DefaultMinSegmentSize  = 20
)

const nameSep = " · "

// Thresholds are the minimum sample sizes at each level.
type Thresholds struct {
	MinStateSize    int `yaml:"min_state_size" mapstructure:"min_state_size"`
	MinDivisionSize int `yaml:"min_division_size" mapstructure:"min_division_size"`
	MinSegmentSize  int `yaml:"min_segment_size" mapstructure:"min_segment_size"`
}

// DefaultThresholds returns the standard thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinStateSize:    DefaultMinStateSize,
		MinDivisionSize: DefaultMinDivisionSize,
		MinSegmentSize:  DefaultMinSegmentSize,
	}
}

// sizeBounds are the bed-count bracket edges per provider type. Types
// without an entry are never size-segmented.
var sizeBounds = map[model.ProviderType][]float64{
	model.ProviderNursingHome:    {0, 60, 120, 180, math.Inf(1)},
	model.ProviderAssistedLiving: {0, 50, 100, 150, math.Inf(1)},
}

// Group is one accepted peer group with the members used to derive it.
type Group struct {
	Name         string
	Description  string
	FacilityType model.ProviderType
	Scope        Scope
	Criteria     criteria.Criteria
	Members      []model.Facility
}

// PeerGroup converts the group into a persistable row with a fresh id.
func (g Group) PeerGroup() (model.PeerGroup, error) {
	raw, err := json.Marshal(g.Criteria)
	if err != nil {
		return model.PeerGroup{}, eris.Wrapf(err, "peergroup: marshal criteria for %q", g.Name)
	}
	return model.PeerGroup{
		ID:           uuid.NewString(),
		Name:         g.Name,
		Description:  g.Description,
		FacilityType: g.FacilityType,
		Criteria:     raw,
	}, nil
}

// Result is the outcome of building one provider type.
type Result struct {
	Groups []Group
	// Discarded counts facilities that fell into leaves below the
	// minimum segment size.
	Discarded int
}

type baseGroup struct {
	label      string
	scope      Scope
	states     []string
	allowEmpty bool // group contains facilities without a state
	members    []model.Facility
}

type segment struct {
	label    string
	members  []model.Facility
	criteria criteria.Criteria
}

// Builder builds peer groups. It holds no per-run state.
type Builder struct {
	thresholds Thresholds
}

// NewBuilder creates a Builder with the given thresholds.
func NewBuilder(t Thresholds) *Builder {
	return &Builder{thresholds: t}
}

// Build partitions facilities of one provider type. Facilities of other
// provider types are ignored.
func (b *Builder) Build(pt model.ProviderType, facilities []model.Facility) Result {
	log := zap.L().With(zap.String("component", "peergroup.builder"), zap.String("provider_type", string(pt)))

	var pool []model.Facility
	for _, f := range facilities {
		if f.ProviderType == pt {
			pool = append(pool, f)
		}
	}
	if len(pool) == 0 {
		return Result{}
	}

	var res Result
	for _, base := range b.baseGroups(pool) {
		for _, size := range b.sizeSegments(pt, base) {
			for _, leaf := range b.splitByOwnership(size) {
				if len(leaf.members) < b.thresholds.MinSegmentSize {
					res.Discarded += len(leaf.members)
					log.Debug("discarding undersized segment",
						zap.String("base", base.label),
						zap.String("segment", leaf.label),
						zap.Int("size", len(leaf.members)),
					)
					continue
				}
				res.Groups = append(res.Groups, b.group(pt, base, leaf))
			}
		}
	}

	log.Info("built peer groups",
		zap.Int("facilities", len(pool)),
		zap.Int("groups", len(res.Groups)),
		zap.Int("discarded", res.Discarded),
	)
	return res
}

func (b *Builder) group(pt model.ProviderType, base baseGroup, leaf segment) Group {
	geoConstraint := criteria.StateSet{Codes: base.states, AllowMissing: base.allowEmpty}

	var parts []string
	for _, p := range []string{pt.Label(), base.label, leaf.label} {
		if p != "" {
			parts = append(parts, p)
		}
	}

	return Group{
		Name:         strings.Join(parts, nameSep),
		Description:  fmt.Sprintf("%d facilities%s%s", len(leaf.members), nameSep, leaf.label),
		FacilityType: pt,
		Scope:        base.scope,
		Criteria:     leaf.criteria.With(geoConstraint),
		Members:      leaf.members,
	}
}

func (b *Builder) baseGroups(pool []model.Facility) []baseGroup {
	stateBuckets := make(map[string][]model.Facility)
	var national []model.Facility

	for _, f := range pool {
		s := f.PrimaryState()
		if s == "" {
			national = append(national, f)
			continue
		}
		stateBuckets[s] = append(stateBuckets[s], f)
	}

	var groups []baseGroup
	divisionBuckets := make(map[string][]model.Facility)
	divisions := make(map[string]geo.Division)

	for _, s := range sortedKeys(stateBuckets) {
		bucket := stateBuckets[s]
		if len(bucket) >= b.thresholds.MinStateSize {
			groups = append(groups, baseGroup{label: s, scope: ScopeState, states: []string{s}, members: bucket})
			continue
		}
		d, ok := geo.DivisionFor(s)
		if !ok {
			national = append(national, bucket...)
			continue
		}
		divisions[d.Code] = d
		divisionBuckets[d.Code] = append(divisionBuckets[d.Code], bucket...)
	}

	for _, code := range sortedKeys(divisionBuckets) {
		bucket := divisionBuckets[code]
		if len(bucket) >= b.thresholds.MinDivisionSize {
			groups = append(groups, baseGroup{
				label:   divisions[code].Name,
				scope:   ScopeDivision,
				states:  distinctStates(bucket),
				members: bucket,
			})
			continue
		}
		national = append(national, bucket...)
	}

	if len(national) > 0 {
		states := distinctStates(national)
		label := "National"
		if len(states) > 0 {
			label = fmt.Sprintf("Multi-State (%d)", len(states))
		}
		groups = append(groups, baseGroup{
			label:      label,
			scope:      ScopeNational,
			states:     states,
			allowEmpty: countWithState(national) < len(national),
			members:    national,
		})
	}

	return groups
}

func (b *Builder) sizeSegments(pt model.ProviderType, base baseGroup) []segment {
	allSizes := []segment{{label: "All sizes", members: base.members}}

	bounds, ok := sizeBounds[pt]
	if !ok || len(bounds) < 2 {
		return allSizes
	}

	var known, unknown []model.Facility
	for _, f := range base.members {
		if _, ok := f.Capacity(); ok {
			known = append(known, f)
		} else {
			unknown = append(unknown, f)
		}
	}

	var segs []segment
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		var members []model.Facility
		for _, f := range known {
			c, _ := f.Capacity()
			if c >= lo && (math.IsInf(hi, 1) || c < hi) {
				members = append(members, f)
			}
		}
		if len(members) == 0 {
			continue
		}

		r := criteria.BedRange{Min: ptr(lo)}
		label := fmt.Sprintf("%g+ beds", lo)
		if !math.IsInf(hi, 1) {
			r.Max = ptr(hi)
			label = fmt.Sprintf("%g-%g beds", lo, hi-1)
		}
		segs = append(segs, segment{label: label, members: members, criteria: criteria.New(r)})
	}

	if len(segs) == 0 {
		return allSizes
	}
	for _, s := range segs {
		if len(s.members) < b.thresholds.MinSegmentSize {
			return allSizes
		}
	}

	switch {
	case len(unknown) >= b.thresholds.MinSegmentSize:
		segs = append(segs, segment{
			label:    "Capacity Unknown",
			members:  unknown,
			criteria: criteria.New(criteria.BedRange{UnknownOnly: true}),
		})
	case len(unknown) > 0:
		last := &segs[len(segs)-1]
		last.members = append(slices.Clone(last.members), unknown...)
		r := bedRangeOf(last.criteria)
		r.AllowUnknown = true
		last.criteria = last.criteria.With(r)
	}

	return segs
}

func (b *Builder) splitByOwnership(s segment) []segment {
	var forProfit, rest []model.Facility
	for _, f := range s.members {
		if f.OwnershipCategory() == model.OwnershipForProfit {
			forProfit = append(forProfit, f)
		} else {
			rest = append(rest, f)
		}
	}

	minSize := b.thresholds.MinSegmentSize
	if len(forProfit) < minSize || len(rest) < minSize {
		return []segment{{
			label:    s.label,
			members:  s.members,
			criteria: s.criteria.With(criteria.OwnershipHint{Observed: observedOwnership(s.members)}),
		}}
	}

	return []segment{
		{
			label:   s.label + nameSep + "For-Profit",
			members: forProfit,
			criteria: s.criteria.With(
				criteria.OwnershipCategorySet{Categories: []model.OwnershipCategory{model.OwnershipForProfit}},
				criteria.OwnershipHint{Observed: observedOwnership(forProfit)},
			),
		},
		{
			label:   s.label + nameSep + "Non-Profit/Government",
			members: rest,
			criteria: s.criteria.With(
				criteria.OwnershipCategorySet{Categories: []model.OwnershipCategory{model.OwnershipNonProfitOrGov, model.OwnershipOther}},
				criteria.OwnershipHint{Observed: observedOwnership(rest)},
			),
		},
	}
}

func bedRangeOf(c criteria.Criteria) criteria.BedRange {
	for _, con := range c.Constraints() {
		if r, ok := con.(criteria.BedRange); ok {
			return r
		}
	}
	return criteria.BedRange{}
}

func observedOwnership(members []model.Facility) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range members {
		o := f.Ownership()
		if o != "" && !seen[o] {
			seen[o] = true
			out = append(out, o)
		}
	}
	sort.Strings(out)
	return out
}

func distinctStates(members []model.Facility) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range members {
		s := f.PrimaryState()
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func countWithState(members []model.Facility) int {
	n := 0
	for _, f := range members {
		if f.PrimaryState() != "" {
			n++
		}
	}
	return n
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ptr(v float64) *float64 { return &v }
