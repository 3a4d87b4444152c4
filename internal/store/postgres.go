package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sunsetwell/scoring-cli/internal/db"
	"github.com/sunsetwell/scoring-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	opts    options
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlFacilityColumns = `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`
	sqlListPeerGroups  = `SELECT id, name, description, facility_type, criteria FROM peer_groups ORDER BY facility_type, name`
	sqlLoadWeights     = `SELECT provider_type, region, metric_key, weight FROM facility_metric_weights WHERE version = $1`
	sqlListNormalized  = `SELECT facility_id, metric_key, raw_value, z_score, percentile, mean, std_dev, provider_type, region, score_version, calculated_at FROM facility_metrics_normalized WHERE score_version = $1 ORDER BY facility_id, metric_key`
	sqlStartJobRun     = `INSERT INTO job_runs (id, job, status, started_at, metadata) VALUES ($1, $2, $3, $4, $5)`
	sqlCompleteJobRun  = `UPDATE job_runs SET status = $1, completed_at = $2, rows_written = $3, metadata = COALESCE($4, metadata) WHERE id = $5`
	sqlFailJobRun      = `UPDATE job_runs SET status = $1, completed_at = $2, error = $3 WHERE id = $4`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"facility_columns": sqlFacilityColumns,
	"list_peer_groups": sqlListPeerGroups,
	"load_weights":     sqlLoadWeights,
	"list_normalized":  sqlListNormalized,
	"start_job_run":    sqlStartJobRun,
	"complete_job_run": sqlCompleteJobRun,
	"fail_job_run":     sqlFailJobRun,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, opts ...Option) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// job_runs may not exist before the first migrate.
				if isUndefinedTable(err) {
					continue
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, opts: newOptions(opts)}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller keeps ownership
// of the pool's lifecycle.
func NewPostgresWithPool(pool db.Pool, opts ...Option) *PostgresStore {
	return &PostgresStore{pool: pool, opts: newOptions(opts)}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// The production tables are owned elsewhere; only the run log is created here.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS job_runs (
	id           TEXT PRIMARY KEY,
	job          TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	rows_written BIGINT NOT NULL DEFAULT 0,
	error        TEXT,
	metadata     JSONB
);

CREATE INDEX IF NOT EXISTS idx_job_runs_job_started ON job_runs(job, started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

func (s *PostgresStore) tableErr(err error, table, action string) error {
	if isUndefinedTable(err) {
		return eris.Wrapf(ErrTableMissing, "postgres: %s: table %q does not exist", action, table)
	}
	return eris.Wrapf(err, "postgres: %s", action)
}

// --- Facilities ---

func (s *PostgresStore) FacilityColumns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, sqlFacilityColumns, TableResources)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: facility columns")
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan column name")
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: facility columns iterate")
	}
	if len(cols) == 0 {
		return nil, eris.Wrapf(ErrTableMissing, "postgres: table %q does not exist", TableResources)
	}
	return cols, nil
}

func (s *PostgresStore) Facilities(ctx context.Context, q FacilityQuery) iter.Seq2[model.Facility, error] {
	return func(yield func(model.Facility, error) bool) {
		available, err := s.FacilityColumns(ctx)
		if err != nil {
			yield(model.Facility{}, err)
			return
		}
		cols, err := selectColumns(available, q.Columns)
		if err != nil {
			yield(model.Facility{}, err)
			return
		}
		query, args := postgresFacilityQuery(cols, available, q)

		pages := Paginate(ctx, s.opts.pageSize, func(ctx context.Context, offset, limit int) ([]map[string]any, error) {
			return s.facilityPage(ctx, query, args, offset, limit)
		})
		for row, err := range pages {
			if err != nil {
				yield(model.Facility{}, err)
				return
			}
			f, ok := decodeFacility(row, q.Columns)
			if !ok {
				continue
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

func postgresFacilityQuery(cols []string, available map[string]bool, q FacilityQuery) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE provider_type = ANY($1)",
		quoteIdents(cols), pgx.Identifier{TableResources}.Sanitize())
	args := []any{q.ProviderType.SourceValues()}

	if len(q.Filter.States) > 0 && available["states"] {
		args = append(args, q.Filter.States)
		fmt.Fprintf(&b, " AND upper(btrim(states[1])) = ANY($%d)", len(args))
	}
	if len(q.Filter.Counties) > 0 && available["county"] {
		args = append(args, q.Filter.Counties)
		fmt.Fprintf(&b, " AND lower(btrim(county)) = ANY($%d)", len(args))
	}
	fmt.Fprintf(&b, " ORDER BY id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	return b.String(), args
}

func (s *PostgresStore) facilityPage(ctx context.Context, query string, args []any, offset, limit int) ([]map[string]any, error) {
	rows, err := s.pool.Query(ctx, query, slices.Concat(args, []any{limit, offset})...)
	if err != nil {
		return nil, s.tableErr(err, TableResources, "fetch facilities")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var page []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "postgres: read facility row")
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			if i < len(vals) {
				row[fd.Name] = vals[i]
			}
		}
		page = append(page, row)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: fetch facilities at offset %d", offset)
	}
	return page, nil
}

func quoteIdents(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

// --- Peer groups ---

func (s *PostgresStore) ReplacePeerGroups(ctx context.Context, pt model.ProviderType, groups []model.PeerGroup) (int64, error) {
	if _, err := s.pool.Exec(ctx, `DELETE FROM peer_groups WHERE facility_type = $1`, string(pt)); err != nil {
		return 0, s.tableErr(err, TablePeerGroups, "delete peer groups")
	}
	n, err := db.CopyInBatches(ctx, s.pool, TablePeerGroups, peerGroupColumns, peerGroupRows(groups), s.opts.batchSize)
	if err != nil {
		return n, s.tableErr(err, TablePeerGroups, "insert peer groups")
	}
	return n, nil
}

func (s *PostgresStore) ListPeerGroups(ctx context.Context) ([]model.PeerGroup, error) {
	rows, err := s.pool.Query(ctx, sqlListPeerGroups)
	if err != nil {
		return nil, s.tableErr(err, TablePeerGroups, "list peer groups")
	}
	defer rows.Close()

	var groups []model.PeerGroup
	for rows.Next() {
		var g model.PeerGroup
		var desc *string
		var facilityType string
		var crit []byte
		if err := rows.Scan(&g.ID, &g.Name, &desc, &facilityType, &crit); err != nil {
			return nil, eris.Wrap(err, "postgres: scan peer group")
		}
		if desc != nil {
			g.Description = *desc
		}
		g.FacilityType = parseProvider(facilityType)
		g.Criteria = json.RawMessage(crit)
		groups = append(groups, g)
	}
	return groups, eris.Wrap(rows.Err(), "postgres: list peer groups iterate")
}

// --- Weights ---

func (s *PostgresStore) LoadWeights(ctx context.Context, version string) ([]model.MetricWeight, error) {
	rows, err := s.pool.Query(ctx, sqlLoadWeights, version)
	if err != nil {
		return nil, s.tableErr(err, TableWeights, "load weights")
	}
	defer rows.Close()

	var out []model.MetricWeight
	for rows.Next() {
		w := model.MetricWeight{Version: version}
		var pt string
		var region *string
		if err := rows.Scan(&pt, &region, &w.MetricKey, &w.Weight); err != nil {
			return nil, eris.Wrap(err, "postgres: scan weight")
		}
		w.ProviderType = parseProvider(pt)
		if region != nil {
			w.Region = *region
		}
		out = append(out, w)
	}
	return out, eris.Wrap(rows.Err(), "postgres: load weights iterate")
}

func (s *PostgresStore) ReplaceWeights(ctx context.Context, version string, rows []model.MetricWeight) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: replace weights: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM facility_metric_weights WHERE version = $1`, version); err != nil {
		return 0, s.tableErr(err, TableWeights, "delete weights")
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{TableWeights}, weightColumns, pgx.CopyFromRows(weightRows(version, rows)))
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert weights")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: replace weights: commit tx")
	}
	return n, nil
}

// --- Scoring output ---

func (s *PostgresStore) upsert(ctx context.Context, cfg db.UpsertConfig, rows [][]any) (int64, error) {
	n, err := db.BatchedUpsert(ctx, s.pool, cfg, rows, s.opts.batchSize)
	if err != nil {
		return n, s.tableErr(err, cfg.Table, "upsert "+cfg.Table)
	}
	return n, nil
}

func (s *PostgresStore) UpsertNormalized(ctx context.Context, rows []model.NormalizedMetric) (int64, error) {
	return s.upsert(ctx, normalizedUpsert, normalizedRows(rows))
}

func (s *PostgresStore) ListNormalized(ctx context.Context, version string) ([]model.NormalizedMetric, error) {
	rows, err := s.pool.Query(ctx, sqlListNormalized, version)
	if err != nil {
		return nil, s.tableErr(err, TableNormalized, "list normalized metrics")
	}
	defer rows.Close()

	var out []model.NormalizedMetric
	for rows.Next() {
		var m model.NormalizedMetric
		var pt string
		var region *string
		if err := rows.Scan(&m.FacilityID, &m.MetricKey, &m.RawValue, &m.ZScore, &m.Percentile,
			&m.Mean, &m.StdDev, &pt, &region, &m.ScoreVersion, &m.CalculatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan normalized metric")
		}
		m.ProviderType = parseProvider(pt)
		if region != nil {
			m.Region = *region
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list normalized iterate")
}

func (s *PostgresStore) UpsertScores(ctx context.Context, rows []model.FacilityScore) (int64, error) {
	return s.upsert(ctx, scoreUpsert, scoreRows(rows))
}

func (s *PostgresStore) UpsertLegacyScores(ctx context.Context, rows []model.LegacyScore) (int64, error) {
	return s.upsert(ctx, legacyUpsert, legacyRows(rows))
}

func (s *PostgresStore) UpsertBenchmarks(ctx context.Context, rows []model.Benchmark) (int64, error) {
	return s.upsert(ctx, benchmarkUpsert, benchmarkRows(rows))
}

// --- Job run log ---

func (s *PostgresStore) StartJobRun(ctx context.Context, job model.JobName, metadata map[string]any) (string, error) {
	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	if _, err := s.pool.Exec(ctx, sqlStartJobRun, id, string(job), string(model.JobStatusRunning), time.Now().UTC(), metaJSON); err != nil {
		return "", s.tableErr(err, TableJobRuns, "start job run "+string(job))
	}
	return id, nil
}

func (s *PostgresStore) CompleteJobRun(ctx context.Context, id string, rowsWritten int64, metadata map[string]any) error {
	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, sqlCompleteJobRun, string(model.JobStatusComplete), time.Now().UTC(), rowsWritten, metaJSON, id)
	return eris.Wrapf(err, "postgres: complete job run %s", id)
}

func (s *PostgresStore) FailJobRun(ctx context.Context, id string, errMsg string) error {
	_, err := s.pool.Exec(ctx, sqlFailJobRun, string(model.JobStatusFailed), time.Now().UTC(), errMsg, id)
	return eris.Wrapf(err, "postgres: fail job run %s", id)
}

func (s *PostgresStore) ListJobRuns(ctx context.Context, filter JobFilter) ([]model.JobRun, error) {
	query := `SELECT id, job, status, started_at, completed_at, rows_written, error, metadata FROM job_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Job != "" {
		query += fmt.Sprintf(` AND job = $%d`, argIdx)
		args = append(args, string(filter.Job))
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, s.tableErr(err, TableJobRuns, "list job runs")
	}
	defer rows.Close()

	var runs []model.JobRun
	for rows.Next() {
		var r model.JobRun
		var job, status string
		var errStr *string
		var metaJSON []byte
		if err := rows.Scan(&r.ID, &job, &status, &r.StartedAt, &r.CompletedAt, &r.RowsWritten, &errStr, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job run")
		}
		r.Job = model.JobName(job)
		r.Status = model.JobStatus(status)
		if errStr != nil {
			r.Error = *errStr
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &r.Metadata)
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list job runs iterate")
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal job metadata")
	}
	return b, nil
}
