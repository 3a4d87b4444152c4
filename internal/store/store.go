// Package store persists facilities, peer groups, weights, scoring output
// and the job run log behind a single Store interface with Postgres and
// SQLite implementations.
package store

import (
	"context"
	"iter"

	"github.com/rotisserie/eris"

	"github.com/sunsetwell/scoring-cli/internal/criteria"
	"github.com/sunsetwell/scoring-cli/internal/db"
	"github.com/sunsetwell/scoring-cli/internal/model"
)

// ErrTableMissing is returned when a required table does not exist.
var ErrTableMissing = eris.New("store: table missing")

// Table names.
const (
	TableResources  = "resources"
	TablePeerGroups = "peer_groups"
	TableWeights    = "facility_metric_weights"
	TableNormalized = "facility_metrics_normalized"
	TableScores     = "facility_scores"
	TableLegacy     = "sunsetwell_scores"
	TableBenchmarks = "benchmark_metrics"
	TableJobRuns    = "job_runs"
)

const (
	defaultPageSize  = 1000
	defaultBatchSize = 500
)

// FacilityQuery selects facilities of one provider type. Filter is
// applied in the query; callers still evaluate the full criteria.
type FacilityQuery struct {
	ProviderType model.ProviderType
	Filter       criteria.Filter
	Columns      []string // metric columns to load into Facility.Metrics
}

// JobFilter narrows ListJobRuns.
type JobFilter struct {
	Job    model.JobName
	Status model.JobStatus
	Limit  int
}

// Store defines the persistence interface for the scoring pipeline.
type Store interface {
	// Facilities
	FacilityColumns(ctx context.Context) (map[string]bool, error)
	Facilities(ctx context.Context, q FacilityQuery) iter.Seq2[model.Facility, error]

	// Peer groups
	ReplacePeerGroups(ctx context.Context, pt model.ProviderType, groups []model.PeerGroup) (int64, error)
	ListPeerGroups(ctx context.Context) ([]model.PeerGroup, error)

	// Weights
	LoadWeights(ctx context.Context, version string) ([]model.MetricWeight, error)
	ReplaceWeights(ctx context.Context, version string, rows []model.MetricWeight) (int64, error)

	// Scoring output
	UpsertNormalized(ctx context.Context, rows []model.NormalizedMetric) (int64, error)
	ListNormalized(ctx context.Context, version string) ([]model.NormalizedMetric, error)
	UpsertScores(ctx context.Context, rows []model.FacilityScore) (int64, error)
	UpsertLegacyScores(ctx context.Context, rows []model.LegacyScore) (int64, error)
	UpsertBenchmarks(ctx context.Context, rows []model.Benchmark) (int64, error)

	// Job run log
	StartJobRun(ctx context.Context, job model.JobName, metadata map[string]any) (string, error)
	CompleteJobRun(ctx context.Context, id string, rowsWritten int64, metadata map[string]any) error
	FailJobRun(ctx context.Context, id string, errMsg string) error
	ListJobRuns(ctx context.Context, filter JobFilter) ([]model.JobRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Option tunes paging and write batching.
type Option func(*options)

type options struct {
	pageSize  int
	batchSize int
}

// WithPageSize sets the number of facilities fetched per page.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithBatchSize sets the number of rows written per batch.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{pageSize: defaultPageSize, batchSize: defaultBatchSize}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Upsert targets shared by both drivers.
var (
	normalizedUpsert = db.UpsertConfig{
		Table: TableNormalized,
		Columns: []string{
			"facility_id", "metric_key", "raw_value", "z_score", "percentile",
			"mean", "std_dev", "provider_type", "region", "score_version", "calculated_at",
		},
		ConflictKeys: []string{"facility_id", "metric_key", "score_version"},
	}
	scoreUpsert = db.UpsertConfig{
		Table:        TableScores,
		Columns:      []string{"facility_id", "score", "provider_type", "region", "version", "calculated_at"},
		ConflictKeys: []string{"facility_id", "version"},
	}
	legacyUpsert = db.UpsertConfig{
		Table:        TableLegacy,
		Columns:      []string{"facility_id", "overall_score", "overall_percentile", "peer_group_id", "calculation_date", "version"},
		ConflictKeys: []string{"facility_id", "calculation_date"},
	}
	benchmarkUpsert = db.UpsertConfig{
		Table: TableBenchmarks,
		Columns: []string{
			"peer_group_id", "metric_name", "mean", "median", "std_dev", "min_value", "max_value",
			"p10", "p25", "p50", "p75", "p90", "sample_count", "calculation_date",
		},
		ConflictKeys: []string{"peer_group_id", "metric_name", "calculation_date"},
	}
)

var (
	peerGroupColumns = []string{"id", "name", "description", "facility_type", "criteria"}
	weightColumns    = []string{"version", "provider_type", "region", "metric_key", "weight"}
)

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func normalizedRows(rows []model.NormalizedMetric) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = []any{
			r.FacilityID, r.MetricKey, r.RawValue, r.ZScore, r.Percentile,
			r.Mean, r.StdDev, string(r.ProviderType), nullable(r.Region), r.ScoreVersion, r.CalculatedAt,
		}
	}
	return out
}

func scoreRows(rows []model.FacilityScore) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = []any{r.FacilityID, r.Score, string(r.ProviderType), nullable(r.Region), r.Version, r.CalculatedAt}
	}
	return out
}

func legacyRows(rows []model.LegacyScore) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = []any{r.FacilityID, r.OverallScore, r.OverallPercentile, nil, r.CalculationDate, r.Version}
	}
	return out
}

func benchmarkRows(rows []model.Benchmark) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = []any{
			r.PeerGroupID, r.MetricName, r.Mean, r.Median, r.StdDev, r.Min, r.Max,
			r.P10, r.P25, r.P50, r.P75, r.P90, r.SampleCount, r.CalculationDate,
		}
	}
	return out
}

func peerGroupRows(groups []model.PeerGroup) [][]any {
	out := make([][]any, len(groups))
	for i, g := range groups {
		out[i] = []any{g.ID, g.Name, g.Description, string(g.FacilityType), string(g.Criteria)}
	}
	return out
}

func weightRows(version string, rows []model.MetricWeight) [][]any {
	out := make([][]any, len(rows))
	for i, w := range rows {
		out[i] = []any{version, string(w.ProviderType), nullable(w.Region), w.MetricKey, w.Weight}
	}
	return out
}

// parseProvider normalizes a stored provider type, keeping unknown values
// verbatim so callers can report them.
func parseProvider(raw string) model.ProviderType {
	if pt, ok := model.ParseProviderType(raw); ok {
		return pt
	}
	return model.ProviderType(raw)
}
