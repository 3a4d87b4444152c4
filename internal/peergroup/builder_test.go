package peergroup

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sunsetwell/scoring-cli/internal/criteria"
	"github.com/sunsetwell/scoring-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type facilityOpt func(i int, f *model.Facility)

func withBeds(fn func(i int) *float64) facilityOpt {
	return func(i int, f *model.Facility) { f.TotalBeds = fn(i) }
}

func withOwnership(fn func(i int) string) facilityOpt {
	return func(i int, f *model.Facility) { f.OwnershipType = fn(i) }
}

func gen(pt model.ProviderType, state string, n int, opts ...facilityOpt) []model.Facility {
	out := make([]model.Facility, n)
	for i := range out {
		f := model.Facility{
			ID:           fmt.Sprintf("%s-%s-%d", pt, state, i),
			ProviderType: pt,
		}
		if state != "" {
			f.States = []string{state}
		}
		for _, o := range opts {
			o(i, &f)
		}
		out[i] = f
	}
	return out
}

func beds(v float64) func(int) *float64 {
	return func(int) *float64 { return &v }
}

func concat(groups ...[]model.Facility) []model.Facility {
	var out []model.Facility
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func groupNames(res Result) []string {
	var names []string
	for _, g := range res.Groups {
		names = append(names, g.Name)
	}
	return names
}

// assertConsistent checks that each group's serialized criteria select
// exactly its members from the population.
func assertConsistent(t *testing.T, res Result, population []model.Facility) {
	t.Helper()
	for _, g := range res.Groups {
		pg, err := g.PeerGroup()
		require.NoError(t, err)

		var c criteria.Criteria
		require.NoError(t, json.Unmarshal(pg.Criteria, &c))

		members := make(map[string]bool, len(g.Members))
		for _, m := range g.Members {
			members[m.ID] = true
		}
		for _, f := range population {
			if f.ProviderType != g.FacilityType {
				continue
			}
			assert.Equal(t, members[f.ID], c.Matches(f), "group %q facility %s", g.Name, f.ID)
		}
	}
}

func TestBuild_StateGroup(t *testing.T) {
	t.Parallel()

	pop := concat(
		gen(model.ProviderNursingHome, "TX", 35),
		gen(model.ProviderHospice, "TX", 40),
	)
	res := NewBuilder(DefaultThresholds()).Build(model.ProviderNursingHome, pop)

	require.Len(t, res.Groups, 1)
	g := res.Groups[0]
	assert.Equal(t, "Nursing Homes · TX · All sizes", g.Name)
	assert.Equal(t, "35 facilities · All sizes", g.Description)
	assert.Equal(t, ScopeState, g.Scope)
	assert.Len(t, g.Members, 35)

	b, err := json.Marshal(g.Criteria)
	require.NoError(t, err)
	assert.JSONEq(t, `{"states":["TX"]}`, string(b))
	assertConsistent(t, res, pop)
}

func TestBuild_NoStateReachesMinimum(t *testing.T) {
	t.Parallel()

	// Six New England states of 12 each form a division group of 72;
	// two Pacific states of 10 fall through to national.
	var pop []model.Facility
	for _, s := range []string{"CT", "MA", "ME", "NH", "RI", "VT"} {
		pop = append(pop, gen(model.ProviderHospice, s, 12)...)
	}
	pop = append(pop, gen(model.ProviderHospice, "CA", 10)...)
	pop = append(pop, gen(model.ProviderHospice, "OR", 10)...)

	res := NewBuilder(DefaultThresholds()).Build(model.ProviderHospice, pop)

	require.Len(t, res.Groups, 2)
	for _, g := range res.Groups {
		assert.NotEqual(t, ScopeState, g.Scope)
	}
	assert.Equal(t, []string{
		"Hospice · New England · All sizes",
		"Hospice · Multi-State (2) · All sizes",
	}, groupNames(res))
	assert.Equal(t, ScopeDivision, res.Groups[0].Scope)
	assert.Len(t, res.Groups[0].Members, 72)
	assert.Equal(t, ScopeNational, res.Groups[1].Scope)
	assert.Len(t, res.Groups[1].Members, 20)
	assertConsistent(t, res, pop)
}

func TestBuild_UnmappedStateFallsToNational(t *testing.T) {
	t.Parallel()

	pop := gen(model.ProviderNursingHome, "ZZ", 25)
	res := NewBuilder(DefaultThresholds()).Build(model.ProviderNursingHome, pop)

	require.Len(t, res.Groups, 1)
	g := res.Groups[0]
	assert.Equal(t, "Nursing Homes · Multi-State (1) · All sizes", g.Name)
	assert.Equal(t, ScopeNational, g.Scope)
	assert.Len(t, g.Members, 25)
	assertConsistent(t, res, pop)
}

func TestBuild_NationalWithoutStates(t *testing.T) {
	t.Parallel()

	pop := concat(
		gen(model.ProviderHomeHealth, "", 22),
		gen(model.ProviderHomeHealth, "TX", 30),
	)
	res := NewBuilder(DefaultThresholds()).Build(model.ProviderHomeHealth, pop)

	require.Len(t, res.Groups, 2)
	assert.Equal(t, "Home Health · National · All sizes", res.Groups[1].Name)

	b, err := json.Marshal(res.Groups[1].Criteria)
	require.NoError(t, err)
	assert.JSONEq(t, `{"allow_missing_state":true}`, string(b))
	assertConsistent(t, res, pop)
}

func TestBuild_SizeSegmentsKeptWithUnknownMerged(t *testing.T) {
	t.Parallel()

	pop := concat(
		gen(model.ProviderNursingHome, "OH", 20, withBeds(func(i int) *float64 { v := float64(i); return &v })),
		gen(model.ProviderNursingHome, "OH", 20, withBeds(beds(90))),
		gen(model.ProviderNursingHome, "OH", 20, withBeds(beds(150))),
		gen(model.ProviderNursingHome, "OH", 20, withBeds(beds(180))),
		gen(model.ProviderNursingHome, "OH", 5),
	)
	for i := range pop {
		pop[i].ID = fmt.Sprintf("oh-%d", i)
	}

	res := NewBuilder(DefaultThresholds()).Build(model.ProviderNursingHome, pop)

	assert.Equal(t, []string{
		"Nursing Homes · OH · 0-59 beds",
		"Nursing Homes · OH · 60-119 beds",
		"Nursing Homes · OH · 120-179 beds",
		"Nursing Homes · OH · 180+ beds",
	}, groupNames(res))
	last := res.Groups[3]
	assert.Len(t, last.Members, 25)

	b, err := json.Marshal(last.Criteria)
	require.NoError(t, err)
	assert.JSONEq(t, `{"states":["OH"],"bed_count_min":180,"allow_unknown_bed_count":true}`, string(b))
	assertConsistent(t, res, pop)
}

func TestBuild_CapacityUnknownSegment(t *testing.T) {
	t.Parallel()

	pop := concat(
		gen(model.ProviderAssistedLiving, "FL", 20, withBeds(beds(10))),
		gen(model.ProviderAssistedLiving, "FL", 20, withBeds(beds(200))),
		gen(model.ProviderAssistedLiving, "FL", 20),
	)
	for i := range pop {
		pop[i].ID = fmt.Sprintf("fl-%d", i)
	}

	res := NewBuilder(DefaultThresholds()).Build(model.ProviderAssistedLiving, pop)

	assert.Equal(t, []string{
		"Assisted Living · FL · 0-49 beds",
		"Assisted Living · FL · 150+ beds",
		"Assisted Living · FL · Capacity Unknown",
	}, groupNames(res))
	assertConsistent(t, res, pop)
}

func TestBuild_SegmentationAbandonedWhenBracketSmall(t *testing.T) {
	t.Parallel()

	pop := concat(
		gen(model.ProviderNursingHome, "GA", 30, withBeds(beds(30))),
		gen(model.ProviderNursingHome, "GA", 5, withBeds(beds(100))),
	)
	for i := range pop {
		pop[i].ID = fmt.Sprintf("ga-%d", i)
	}

	res := NewBuilder(DefaultThresholds()).Build(model.ProviderNursingHome, pop)

	require.Len(t, res.Groups, 1)
	assert.Equal(t, "Nursing Homes · GA · All sizes", res.Groups[0].Name)
	assert.Len(t, res.Groups[0].Members, 35)
	assertConsistent(t, res, pop)
}

func TestBuild_OwnershipSplit(t *testing.T) {
	t.Parallel()

	pop := concat(
		gen(model.ProviderHospice, "NY", 25, withOwnership(func(int) string { return "For profit - Corporation" })),
		gen(model.ProviderHospice, "NY", 15, withOwnership(func(int) string { return "Non profit - Other" })),
		gen(model.ProviderHospice, "NY", 10),
	)
	for i := range pop {
		pop[i].ID = fmt.Sprintf("ny-%d", i)
	}

	res := NewBuilder(DefaultThresholds()).Build(model.ProviderHospice, pop)

	assert.Equal(t, []string{
		"Hospice · NY · All sizes · For-Profit",
		"Hospice · NY · All sizes · Non-Profit/Government",
	}, groupNames(res))
	assert.Len(t, res.Groups[0].Members, 25)
	assert.Len(t, res.Groups[1].Members, 25)

	b, err := json.Marshal(res.Groups[1].Criteria)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"states": ["NY"],
		"ownership_categories": ["non_profit_or_gov", "other"],
		"ownership_types_observed": ["non profit - other"]
	}`, string(b))
	assertConsistent(t, res, pop)
}

func TestBuild_OwnershipSplitAllOrNothing(t *testing.T) {
	t.Parallel()

	pop := concat(
		gen(model.ProviderHospice, "NY", 25, withOwnership(func(int) string { return "For profit" })),
		gen(model.ProviderHospice, "NY", 19, withOwnership(func(int) string { return "Government" })),
	)
	for i := range pop {
		pop[i].ID = fmt.Sprintf("ny-%d", i)
	}

	res := NewBuilder(DefaultThresholds()).Build(model.ProviderHospice, pop)

	require.Len(t, res.Groups, 1)
	g := res.Groups[0]
	assert.Equal(t, "Hospice · NY · All sizes", g.Name)
	assert.Len(t, g.Members, 44)

	b, err := json.Marshal(g.Criteria)
	require.NoError(t, err)
	assert.JSONEq(t, `{"states":["NY"],"ownership_types_observed":["for profit","government"]}`, string(b))
	assertConsistent(t, res, pop)
}

func TestBuild_DiscardsUndersizedLeaves(t *testing.T) {
	t.Parallel()

	pop := gen(model.ProviderHospice, "WY", 12)
	res := NewBuilder(DefaultThresholds()).Build(model.ProviderHospice, pop)

	assert.Empty(t, res.Groups)
	assert.Equal(t, 12, res.Discarded)
}

func TestBuild_EmptyPopulation(t *testing.T) {
	t.Parallel()

	res := NewBuilder(DefaultThresholds()).Build(model.ProviderNursingHome, gen(model.ProviderHospice, "TX", 50))
	assert.Empty(t, res.Groups)
	assert.Zero(t, res.Discarded)
}

func TestBuild_CustomThresholds(t *testing.T) {
	t.Parallel()

	pop := gen(model.ProviderHomeHealth, "KS", 8)
	res := NewBuilder(Thresholds{MinStateSize: 5, MinDivisionSize: 10, MinSegmentSize: 3}).Build(model.ProviderHomeHealth, pop)

	require.Len(t, res.Groups, 1)
	assert.Equal(t, ScopeState, res.Groups[0].Scope)
}

func TestGroup_PeerGroup(t *testing.T) {
	t.Parallel()

	res := NewBuilder(DefaultThresholds()).Build(model.ProviderNursingHome, gen(model.ProviderNursingHome, "TX", 30))
	require.Len(t, res.Groups, 1)

	pg, err := res.Groups[0].PeerGroup()
	require.NoError(t, err)
	assert.Len(t, pg.ID, 36)
	assert.Equal(t, model.ProviderNursingHome, pg.FacilityType)
	assert.JSONEq(t, `{"states":["TX"]}`, string(pg.Criteria))
}
