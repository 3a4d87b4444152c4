// Package catalog holds the static metric definitions and compiled-in
// default weights used by normalization and benchmarking.
package catalog

import (
	"slices"

	"github.com/sunsetwell/scoring-cli/internal/model"
)

// Metric describes one scored regulatory metric.
type Metric struct {
	Key            string
	Column         string
	ProviderTypes  []model.ProviderType
	HigherIsBetter bool
	Description    string
}

// AppliesTo reports whether the metric is scored for the provider type.
func (m Metric) AppliesTo(pt model.ProviderType) bool {
	return slices.Contains(m.ProviderTypes, pt)
}

var nursingHome = []model.ProviderType{model.ProviderNursingHome}

var metrics = []Metric{
	{Key: "staffing_rating", Column: "staffing_rating", ProviderTypes: nursingHome, HigherIsBetter: true, Description: "CMS staffing star rating"},
	{Key: "health_inspection_rating", Column: "health_inspection_rating", ProviderTypes: nursingHome, HigherIsBetter: true, Description: "CMS inspection star rating"},
	{Key: "quality_measure_rating", Column: "quality_measure_rating", ProviderTypes: nursingHome, HigherIsBetter: true, Description: "CMS quality measure star rating"},
	{Key: "total_nurse_hours_per_resident_per_day", Column: "total_nurse_hours_per_resident_per_day", ProviderTypes: nursingHome, HigherIsBetter: true, Description: "Total nurse hours per resident per day"},
	{Key: "rn_hours_per_resident_per_day", Column: "rn_hours_per_resident_per_day", ProviderTypes: nursingHome, HigherIsBetter: true, Description: "Registered nurse hours per resident per day"},
	{Key: "total_nurse_staff_turnover", Column: "total_nurse_staff_turnover", ProviderTypes: nursingHome, HigherIsBetter: false, Description: "Total nurse staff turnover percent"},
	{Key: "rn_turnover", Column: "rn_turnover", ProviderTypes: nursingHome, HigherIsBetter: false, Description: "Registered nurse staff turnover percent"},
	{Key: "number_of_facility_reported_incidents", Column: "number_of_facility_reported_incidents", ProviderTypes: nursingHome, HigherIsBetter: false, Description: "Facility reported incidents (past 3 years)"},
	{Key: "number_of_substantiated_complaints", Column: "number_of_substantiated_complaints", ProviderTypes: nursingHome, HigherIsBetter: false, Description: "Substantiated complaints (past 3 years)"},
	{Key: "licensed_capacity", Column: "licensed_capacity", ProviderTypes: []model.ProviderType{model.ProviderAssistedLiving}, HigherIsBetter: true, Description: "Licensed resident capacity"},
	{Key: "medicaid_accepted", Column: "medicaid_accepted", ProviderTypes: []model.ProviderType{model.ProviderAssistedLiving}, HigherIsBetter: true, Description: "Medicaid accepted (boolean treated as numeric)"},
	{Key: "home_health_quality_star", Column: "home_health_quality_star", ProviderTypes: []model.ProviderType{model.ProviderHomeHealth}, HigherIsBetter: true, Description: "CMS home health quality star rating"},
	{Key: "home_health_cahps_star", Column: "home_health_cahps_star", ProviderTypes: []model.ProviderType{model.ProviderHomeHealth}, HigherIsBetter: true, Description: "CMS home health CAHPS star rating"},
	{Key: "hospice_quality_star", Column: "hospice_quality_star", ProviderTypes: []model.ProviderType{model.ProviderHospice}, HigherIsBetter: true, Description: "Hospice quality star rating"},
	{Key: "hospice_family_experience_star", Column: "hospice_family_experience_star", ProviderTypes: []model.ProviderType{model.ProviderHospice}, HigherIsBetter: true, Description: "Hospice family experience star rating"},
}

var defaultWeights = map[model.ProviderType]map[string]float64{
	model.ProviderNursingHome: {
		"health_inspection_rating":               0.53,
		"staffing_rating":                        0.14,
		"total_nurse_hours_per_resident_per_day": 0.09,
		"rn_hours_per_resident_per_day":          0.09,
		"total_nurse_staff_turnover":             0.06,
		"rn_turnover":                            0.04,
		"quality_measure_rating":                 0.05,
		"number_of_facility_reported_incidents":  0,
		"number_of_substantiated_complaints":     0,
	},
	model.ProviderAssistedLiving: {
		"licensed_capacity": 0.4,
		"medicaid_accepted": 0.6,
	},
	model.ProviderHomeHealth: {
		"home_health_quality_star": 0.6,
		"home_health_cahps_star":   0.4,
	},
	model.ProviderHospice: {
		"hospice_quality_star":           0.6,
		"hospice_family_experience_star": 0.4,
	},
}

// All returns every metric definition in catalog order.
func All() []Metric {
	return slices.Clone(metrics)
}

// ForProvider returns the metrics scored for a provider type.
func ForProvider(pt model.ProviderType) []Metric {
	var out []Metric
	for _, m := range metrics {
		if m.AppliesTo(pt) {
			out = append(out, m)
		}
	}
	return out
}

// Lookup finds a metric by key.
func Lookup(key string) (Metric, bool) {
	for _, m := range metrics {
		if m.Key == key {
			return m, true
		}
	}
	return Metric{}, false
}

// Columns returns the distinct source columns of the given metrics.
func Columns(ms []Metric) []string {
	seen := make(map[string]bool, len(ms))
	var out []string
	for _, m := range ms {
		if !seen[m.Column] {
			seen[m.Column] = true
			out = append(out, m.Column)
		}
	}
	return out
}

// DefaultWeight returns the compiled-in weight. ok is false when the
// provider type has no default for the metric.
func DefaultWeight(pt model.ProviderType, metricKey string) (float64, bool) {
	w, ok := defaultWeights[pt][metricKey]
	return w, ok
}

// DefaultWeights returns the compiled-in defaults as GLOBAL-scope
// override rows for the given version, ordered by provider then catalog.
func DefaultWeights(version string) []model.MetricWeight {
	var out []model.MetricWeight
	for _, pt := range model.ProviderTypes {
		for _, m := range ForProvider(pt) {
			w, ok := defaultWeights[pt][m.Key]
			if !ok {
				continue
			}
			out = append(out, model.MetricWeight{
				Version:      version,
				ProviderType: pt,
				MetricKey:    m.Key,
				Weight:       w,
			})
		}
	}
	return out
}
