package weights

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunsetwell/scoring-cli/internal/model"
)

const nh = model.ProviderNursingHome

func TestResolve_Precedence(t *testing.T) {
	t.Parallel()

	r := NewResolver([]model.MetricWeight{
		{ProviderType: nh, Region: "", MetricKey: "staffing_rating", Weight: 0.2},
		{ProviderType: nh, Region: "TX", MetricKey: "staffing_rating", Weight: 0.3},
		{ProviderType: nh, Region: "DIV:west_south_central", MetricKey: "staffing_rating", Weight: 0.25},
		{ProviderType: nh, Region: "DIV:pacific", MetricKey: "rn_turnover", Weight: 0.07},
	})

	tests := []struct {
		name   string
		metric string
		region string
		want   float64
		ok     bool
	}{
		{"region wins", "staffing_rating", "TX", 0.3, true},
		{"lowercase region", "staffing_rating", "tx", 0.3, true},
		{"division next", "staffing_rating", "OK", 0.25, true},
		{"global next", "staffing_rating", "NY", 0.2, true},
		{"empty region is global", "staffing_rating", "", 0.2, true},
		{"division only metric", "rn_turnover", "CA", 0.07, true},
		{"default", "rn_turnover", "TX", 0.04, true},
		{"default zero", "number_of_substantiated_complaints", "TX", 0, true},
		{"unresolved", "hospice_quality_star", "TX", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, ok := r.Resolve(nh, tt.metric, tt.region)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, w, 1e-9)
		})
	}
}

func TestResolve_ExplicitGlobalRow(t *testing.T) {
	t.Parallel()

	r := NewResolver([]model.MetricWeight{
		{ProviderType: model.ProviderHospice, Region: "global", MetricKey: "hospice_quality_star", Weight: 0.9},
	})
	assert.Equal(t, 1, r.Len())

	w, ok := r.Resolve(model.ProviderHospice, "hospice_quality_star", "WA")
	assert.True(t, ok)
	assert.InDelta(t, 0.9, w, 1e-9)
}

func TestDefaultsOnly(t *testing.T) {
	t.Parallel()

	r := DefaultsOnly()
	assert.Zero(t, r.Len())
	w, ok := r.Resolve(model.ProviderHomeHealth, "home_health_quality_star", "TX")
	assert.True(t, ok)
	assert.InDelta(t, 0.6, w, 1e-9)
}

func TestParse_Valid(t *testing.T) {
	t.Parallel()

	doc := `
version: v3
weights:
  nursing_home:
    GLOBAL:
      health_inspection_rating: 0.5
    tx:
      staffing_rating: 0.2
    DIV:Pacific:
      rn_turnover: 0.05
  assisted_living_facility:
    GLOBAL:
      medicaid_accepted: 1
`
	rows, err := Parse([]byte(doc), "v2")
	require.NoError(t, err)
	assert.Equal(t, []model.MetricWeight{
		{Version: "v3", ProviderType: model.ProviderAssistedLiving, MetricKey: "medicaid_accepted", Weight: 1},
		{Version: "v3", ProviderType: nh, MetricKey: "health_inspection_rating", Weight: 0.5},
		{Version: "v3", ProviderType: nh, Region: "DIV:pacific", MetricKey: "rn_turnover", Weight: 0.05},
		{Version: "v3", ProviderType: nh, Region: "TX", MetricKey: "staffing_rating", Weight: 0.2},
	}, rows)
}

func TestParse_FallbackVersion(t *testing.T) {
	t.Parallel()

	rows, err := Parse([]byte("weights:\n  hospice:\n    GLOBAL:\n      hospice_quality_star: 1\n"), "v2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "v2", rows[0].Version)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	doc := `
weights:
  dialysis:
    GLOBAL:
      x: 1
  nursing_home:
    Texas:
      staffing_rating: 0.2
    DIV:atlantis:
      staffing_rating: 0.2
    GLOBAL:
      staffing_rating: -0.1
      hospice_quality_star: 0.3
      made_up: 0.1
`
	_, err := Parse([]byte(doc), "v2")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown provider type "dialysis"`)
	assert.Contains(t, msg, `region "TEXAS" must be GLOBAL`)
	assert.Contains(t, msg, `unknown census division "DIV:atlantis"`)
	assert.Contains(t, msg, "nursing_home/GLOBAL/staffing_rating: weight must be >= 0")
	assert.Contains(t, msg, "nursing_home/GLOBAL/hospice_quality_star: metric does not apply to provider type")
	assert.Contains(t, msg, "nursing_home/GLOBAL/made_up: unknown metric")
}

func TestParse_BadYAML(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("weights: [1, 2"), "v2")
	assert.Error(t, err)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("version: v3\nweight:\n  nursing_home:\n    GLOBAL:\n      staffing_rating: 1\n"), "v2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights: parse yaml")
	assert.Contains(t, err.Error(), "weight")
}

func TestParse_EmptyDocument(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{"", "version: v3\n", "weights: {}\n"} {
		_, err := Parse([]byte(doc), "v2")
		require.Error(t, err, "doc %q", doc)
		assert.Contains(t, err.Error(), "no weight rows")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Validate("v2", []model.MetricWeight{{ProviderType: nh, MetricKey: "rn_turnover", Weight: 0}}))

	err := Validate("", []model.MetricWeight{
		{ProviderType: nh, MetricKey: "rn_turnover", Weight: math.Inf(1)},
		{ProviderType: "bogus", MetricKey: "rn_turnover", Weight: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version is required")
	assert.Contains(t, err.Error(), "weight must be finite")
	assert.Contains(t, Validate("v2", nil).Error(), "no weight rows")
	assert.Contains(t, err.Error(), "bogus/GLOBAL/rn_turnover: unknown provider type")
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: v9\nweights:\n  home_health:\n    GLOBAL:\n      home_health_cahps_star: 0.5\n"), 0o600))

	rows, err := LoadFile(path, "v2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "v9", rows[0].Version)
	assert.Equal(t, model.ProviderHomeHealth, rows[0].ProviderType)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), "v2")
	assert.Error(t, err)
}
