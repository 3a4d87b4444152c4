package store

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunsetwell/scoring-cli/internal/criteria"
	"github.com/sunsetwell/scoring-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T, opts ...Option) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock, opts...), mock
}

func expectColumns(mock pgxmock.PgxPoolIface, cols ...string) {
	rows := pgxmock.NewRows([]string{"column_name"})
	for _, c := range cols {
		rows.AddRow(c)
	}
	mock.ExpectQuery(`SELECT column_name FROM information_schema.columns`).
		WithArgs(TableResources).
		WillReturnRows(rows)
}

func TestPostgresStore_Facilities_PagesAndFilters(t *testing.T) {
	s, mock := newMockPostgresStore(t, WithPageSize(2))

	expectColumns(mock, "id", "provider_type", "states", "county", "total_beds", "staffing_rating")

	facilityCols := []string{"id", "provider_type", "states", "county", "total_beds", "staffing_rating"}
	query := `SELECT "id", "provider_type", "states", "county", "total_beds", "staffing_rating" FROM "resources" ` +
		`WHERE provider_type = ANY\(\$1\) AND upper\(btrim\(states\[1\]\)\) = ANY\(\$2\) AND lower\(btrim\(county\)\) = ANY\(\$3\) ` +
		`ORDER BY id LIMIT \$4 OFFSET \$5`

	mock.ExpectQuery(query).
		WithArgs([]string{"nursing_home"}, []string{"TX"}, []string{"travis"}, 2, 0).
		WillReturnRows(pgxmock.NewRows(facilityCols).
			AddRow("f1", "nursing_home", []any{"tx"}, "Travis", pgtype.Numeric{Int: big.NewInt(1255), Exp: -1, Valid: true}, int64(4)).
			AddRow("f2", " Nursing_Home ", []string{"TX"}, "travis", float64(80), nil))
	mock.ExpectQuery(query).
		WithArgs([]string{"nursing_home"}, []string{"TX"}, []string{"travis"}, 2, 2).
		WillReturnRows(pgxmock.NewRows(facilityCols).
			AddRow("f3", "nursing_home", []any{"TX"}, "travis", nil, 5.0))

	c := criteria.New(criteria.State{Code: "tx"}, criteria.County{Name: " Travis "})
	got, err := Collect(s.Facilities(context.Background(), FacilityQuery{
		ProviderType: model.ProviderNursingHome,
		Filter:       c.ServerFilter(),
		Columns:      []string{"staffing_rating", "rn_turnover"},
	}))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "f1", got[0].ID)
	assert.Equal(t, model.ProviderNursingHome, got[0].ProviderType)
	require.NotNil(t, got[0].TotalBeds)
	assert.InDelta(t, 125.5, *got[0].TotalBeds, 1e-9)
	assert.Equal(t, map[string]float64{"staffing_rating": 4}, got[0].Metrics)

	assert.Equal(t, model.ProviderNursingHome, got[1].ProviderType)
	assert.Nil(t, got[1].Metrics)
	assert.Nil(t, got[2].TotalBeds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Facilities_MissingTable(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expectColumns(mock)

	_, err := Collect(s.Facilities(context.Background(), FacilityQuery{ProviderType: model.ProviderHospice}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTableMissing))
	assert.Contains(t, err.Error(), `"resources"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Facilities_FetchError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expectColumns(mock, "id", "provider_type")
	mock.ExpectQuery(`SELECT "id", "provider_type" FROM "resources"`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	_, err := Collect(s.Facilities(context.Background(), FacilityQuery{ProviderType: model.ProviderHospice}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch facilities")
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplacePeerGroups(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM peer_groups WHERE facility_type = \$1`).
		WithArgs("nursing_home").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{TablePeerGroups}, peerGroupColumns).WillReturnResult(2)

	n, err := s.ReplacePeerGroups(context.Background(), model.ProviderNursingHome, []model.PeerGroup{
		{ID: "a", Name: "A", FacilityType: model.ProviderNursingHome, Criteria: json.RawMessage(`{"states":["TX"]}`)},
		{ID: "b", Name: "B", FacilityType: model.ProviderNursingHome, Criteria: json.RawMessage(`{}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplacePeerGroups_TableMissing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM peer_groups`).
		WithArgs("hospice").
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "peer_groups" does not exist`})

	_, err := s.ReplacePeerGroups(context.Background(), model.ProviderHospice, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTableMissing))
	assert.Contains(t, err.Error(), `"peer_groups"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPeerGroups(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, description, facility_type, criteria FROM peer_groups`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description", "facility_type", "criteria"}).
			AddRow("g1", "Nursing Homes · TX · All sizes", nil, "nursing_home", []byte(`{"states":["TX"]}`)).
			AddRow("g2", "Assisted Living · National", strPtr("12 facilities"), "assisted_living_facility", []byte(`{}`)))

	groups, err := s.ListPeerGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Empty(t, groups[0].Description)
	assert.JSONEq(t, `{"states":["TX"]}`, string(groups[0].Criteria))
	assert.Equal(t, model.ProviderAssistedLiving, groups[1].FacilityType)
	assert.Equal(t, "12 facilities", groups[1].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadWeights(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT provider_type, region, metric_key, weight FROM facility_metric_weights WHERE version = \$1`).
		WithArgs("v2").
		WillReturnRows(pgxmock.NewRows([]string{"provider_type", "region", "metric_key", "weight"}).
			AddRow("nursing_home", nil, "staffing_rating", 0.2).
			AddRow("nursing_home", strPtr("TX"), "staffing_rating", 0.3))

	rows, err := s.LoadWeights(context.Background(), "v2")
	require.NoError(t, err)
	assert.Equal(t, []model.MetricWeight{
		{Version: "v2", ProviderType: model.ProviderNursingHome, MetricKey: "staffing_rating", Weight: 0.2},
		{Version: "v2", ProviderType: model.ProviderNursingHome, Region: "TX", MetricKey: "staffing_rating", Weight: 0.3},
	}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceWeights(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM facility_metric_weights WHERE version = \$1`).
		WithArgs("v2").
		WillReturnResult(pgxmock.NewResult("DELETE", 15))
	mock.ExpectCopyFrom(pgx.Identifier{TableWeights}, weightColumns).WillReturnResult(1)
	mock.ExpectCommit()

	n, err := s.ReplaceWeights(context.Background(), "v2", []model.MetricWeight{
		{ProviderType: model.ProviderHospice, MetricKey: "hospice_quality_star", Weight: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertScores(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_facility_scores"}, scoreUpsert.Columns).WillReturnResult(1)
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO "facility_scores"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.UpsertScores(context.Background(), []model.FacilityScore{
		{FacilityID: "f1", Score: 87.5, ProviderType: model.ProviderNursingHome, Region: "TX", Version: "v2", CalculatedAt: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertBenchmarks_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("pool closed"))

	_, err := s.UpsertBenchmarks(context.Background(), []model.Benchmark{{PeerGroupID: "g1", MetricName: "staffing_rating"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "benchmark_metrics batch 0")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_JobRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO job_runs`).
		WithArgs(pgxmock.AnyArg(), "normalize", "running", pgxmock.AnyArg(), []byte(`{"version":"v2"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	id, err := s.StartJobRun(ctx, model.JobNormalize, map[string]any{"version": "v2"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	mock.ExpectExec(`UPDATE job_runs SET status = \$1, completed_at = \$2, rows_written = \$3`).
		WithArgs("complete", pgxmock.AnyArg(), int64(42), pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.CompleteJobRun(ctx, id, 42, nil))

	mock.ExpectExec(`UPDATE job_runs SET status = \$1, completed_at = \$2, error = \$3`).
		WithArgs("failed", pgxmock.AnyArg(), "boom", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.FailJobRun(ctx, id, "boom"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListJobRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	done := started.Add(time.Minute)

	mock.ExpectQuery(`FROM job_runs WHERE true AND job = \$1 ORDER BY started_at DESC LIMIT \$2`).
		WithArgs("score", 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "job", "status", "started_at", "completed_at", "rows_written", "error", "metadata"}).
			AddRow("r1", "score", "complete", started, &done, int64(10), nil, []byte(`{"method":"percentile"}`)).
			AddRow("r2", "score", "running", started, nil, int64(0), nil, nil))

	runs, err := s.ListJobRuns(context.Background(), JobFilter{Job: model.JobScore})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, model.JobStatusComplete, runs[0].Status)
	require.NotNil(t, runs[0].CompletedAt)
	assert.Equal(t, "percentile", runs[0].Metadata["method"])
	assert.Nil(t, runs[1].CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS job_runs`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func strPtr(s string) *string { return &s }
