package model

import (
	"encoding/json"
	"time"
)

// GlobalRegion is the weight scope used when no region-specific override applies.
const GlobalRegion = "GLOBAL"

// NormalizedMetric is one (facility, metric, version) row in
// facility_metrics_normalized.
type NormalizedMetric struct {
	FacilityID   string       `json:"facility_id"`
	MetricKey    string       `json:"metric_key"`
	RawValue     float64      `json:"raw_value"`
	ZScore       float64      `json:"z_score"`
	Percentile   float64      `json:"percentile"`
	Mean         float64      `json:"mean"`
	StdDev       float64      `json:"std_dev"`
	ProviderType ProviderType `json:"provider_type"`
	Region       string       `json:"region,omitempty"` // "" is stored as NULL
	ScoreVersion string       `json:"score_version"`
	CalculatedAt time.Time    `json:"calculated_at"`
}

// FacilityScore is the public percentile-scaled score, unique per
// (facility, version).
type FacilityScore struct {
	FacilityID   string       `json:"facility_id"`
	Score        float64      `json:"score"`
	ProviderType ProviderType `json:"provider_type"`
	Region       string       `json:"region,omitempty"`
	Version      string       `json:"version"`
	CalculatedAt time.Time    `json:"calculated_at"`
}

// LegacyScore is a row in sunsetwell_scores produced by the linear
// rescale method. Unique per (facility, calculation date).
type LegacyScore struct {
	FacilityID        string       `json:"facility_id"`
	OverallScore      float64      `json:"overall_score"`
	OverallPercentile float64      `json:"overall_percentile"`
	ProviderType      ProviderType `json:"provider_type"`
	Region            string       `json:"region,omitempty"`
	CalculationDate   string       `json:"calculation_date"`
	Version           string       `json:"version"`
}

// MetricWeight is a persisted weight override. Region "" is the
// GLOBAL scope; "DIV:<code>" scopes an override to a census division.
type MetricWeight struct {
	Version      string       `json:"version" yaml:"version"`
	ProviderType ProviderType `json:"provider_type" yaml:"provider_type"`
	Region       string       `json:"region,omitempty" yaml:"region,omitempty"`
	MetricKey    string       `json:"metric_key" yaml:"metric_key"`
	Weight       float64      `json:"weight" yaml:"weight"`
}

// PeerGroup is a persisted peer group definition. Criteria holds the
// JSON predicate object; membership is never materialized.
type PeerGroup struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	FacilityType ProviderType    `json:"facility_type"`
	Criteria     json.RawMessage `json:"criteria"`
}

// Benchmark holds descriptive statistics for one (peer group, metric, date).
type Benchmark struct {
	PeerGroupID     string  `json:"peer_group_id"`
	MetricName      string  `json:"metric_name"`
	Mean            float64 `json:"mean"`
	Median          float64 `json:"median"`
	StdDev          float64 `json:"std_dev"`
	Min             float64 `json:"min_value"`
	Max             float64 `json:"max_value"`
	P10             float64 `json:"p10"`
	P25             float64 `json:"p25"`
	P50             float64 `json:"p50"`
	P75             float64 `json:"p75"`
	P90             float64 `json:"p90"`
	SampleCount     int     `json:"sample_count"`
	CalculationDate string  `json:"calculation_date"`
}
