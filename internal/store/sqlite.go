package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sunsetwell/scoring-cli/internal/catalog"
	"github.com/sunsetwell/scoring-cli/internal/db"
	"github.com/sunsetwell/scoring-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It owns its
// schema, including the facility table, and backs local runs and tests.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, opts ...Option) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn, opts: newOptions(opts)}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS resources (
	id                       TEXT PRIMARY KEY,
	facility_id              TEXT,
	provider_type            TEXT NOT NULL,
	states                   TEXT,
	state                    TEXT,
	county                   TEXT,
	zip_code                 TEXT,
	cbsa                     TEXT,
	is_rural                 INTEGER,
	urban_rural              TEXT,
	total_beds               REAL,
	number_of_certified_beds REAL,
	licensed_capacity        REAL,
	ownership_type           TEXT%s
);

CREATE TABLE IF NOT EXISTS peer_groups (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT,
	facility_type TEXT NOT NULL,
	criteria      TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS facility_metric_weights (
	version       TEXT NOT NULL,
	provider_type TEXT NOT NULL,
	region        TEXT,
	metric_key    TEXT NOT NULL,
	weight        REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS facility_metrics_normalized (
	facility_id   TEXT NOT NULL,
	metric_key    TEXT NOT NULL,
	raw_value     REAL,
	z_score       REAL,
	percentile    REAL,
	mean          REAL,
	std_dev       REAL,
	provider_type TEXT,
	region        TEXT,
	score_version TEXT NOT NULL,
	calculated_at DATETIME,
	UNIQUE (facility_id, metric_key, score_version)
);

CREATE TABLE IF NOT EXISTS facility_scores (
	facility_id   TEXT NOT NULL,
	score         REAL NOT NULL,
	provider_type TEXT,
	region        TEXT,
	version       TEXT NOT NULL,
	calculated_at DATETIME,
	UNIQUE (facility_id, version)
);

CREATE TABLE IF NOT EXISTS sunsetwell_scores (
	facility_id        TEXT NOT NULL,
	overall_score      REAL NOT NULL,
	overall_percentile REAL,
	peer_group_id      TEXT,
	calculation_date   TEXT NOT NULL,
	version            TEXT,
	UNIQUE (facility_id, calculation_date)
);

CREATE TABLE IF NOT EXISTS benchmark_metrics (
	peer_group_id    TEXT NOT NULL,
	metric_name      TEXT NOT NULL,
	mean             REAL,
	median           REAL,
	std_dev          REAL,
	min_value        REAL,
	max_value        REAL,
	p10              REAL,
	p25              REAL,
	p50              REAL,
	p75              REAL,
	p90              REAL,
	sample_count     INTEGER,
	calculation_date TEXT NOT NULL,
	UNIQUE (peer_group_id, metric_name, calculation_date)
);

CREATE TABLE IF NOT EXISTS job_runs (
	id           TEXT PRIMARY KEY,
	job          TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	rows_written INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	metadata     TEXT
);

CREATE INDEX IF NOT EXISTS idx_resources_provider_type ON resources(provider_type);
CREATE INDEX IF NOT EXISTS idx_peer_groups_facility_type ON peer_groups(facility_type);
CREATE INDEX IF NOT EXISTS idx_weights_version ON facility_metric_weights(version);
CREATE INDEX IF NOT EXISTS idx_job_runs_job_started ON job_runs(job, started_at);
`

// metricColumns are the catalog columns not already part of the base
// facility schema.
func metricColumns() []string {
	var cols []string
	for _, c := range catalog.Columns(catalog.All()) {
		if !slices.Contains(baseColumns, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

func sqliteSchema() string {
	var b strings.Builder
	for _, c := range metricColumns() {
		fmt.Fprintf(&b, ",\n\t%s REAL", c)
	}
	return fmt.Sprintf(sqliteMigration, b.String())
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema())
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sqliteErr(err error, table, action string) error {
	if err != nil && strings.Contains(err.Error(), "no such table") {
		return eris.Wrapf(ErrTableMissing, "sqlite: %s: table %q does not exist", action, table)
	}
	return eris.Wrapf(err, "sqlite: %s", action)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// --- Facilities ---

func (s *SQLiteStore) FacilityColumns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, TableResources)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: facility columns")
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan column name")
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: facility columns iterate")
	}
	if len(cols) == 0 {
		return nil, eris.Wrapf(ErrTableMissing, "sqlite: table %q does not exist", TableResources)
	}
	return cols, nil
}

func (s *SQLiteStore) Facilities(ctx context.Context, q FacilityQuery) iter.Seq2[model.Facility, error] {
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
		query, args := sqliteFacilityQuery(cols, available, q)

		pages := Paginate(ctx, s.opts.pageSize, func(ctx context.Context, offset, limit int) ([]map[string]any, error) {
			return s.facilityPage(ctx, query, slices.Concat(args, []any{limit, offset}), cols)
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

func sqliteFacilityQuery(cols []string, available map[string]bool, q FacilityQuery) (string, []any) {
	sources := q.ProviderType.SourceValues()
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM resources WHERE provider_type IN (%s)", quoteIdents(cols), placeholders(len(sources)))
	var args []any
	for _, v := range sources {
		args = append(args, v)
	}

	if len(q.Filter.States) > 0 && available["states"] {
		fmt.Fprintf(&b, " AND upper(trim(json_extract(states, '$[0]'))) IN (%s)", placeholders(len(q.Filter.States)))
		for _, v := range q.Filter.States {
			args = append(args, v)
		}
	}
	if len(q.Filter.Counties) > 0 && available["county"] {
		fmt.Fprintf(&b, " AND lower(trim(county)) IN (%s)", placeholders(len(q.Filter.Counties)))
		for _, v := range q.Filter.Counties {
			args = append(args, v)
		}
	}
	b.WriteString(" ORDER BY id LIMIT ? OFFSET ?")
	return b.String(), args
}

func (s *SQLiteStore) facilityPage(ctx context.Context, query string, args []any, cols []string) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteErr(err, TableResources, "fetch facilities")
	}
	defer rows.Close()

	var page []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan facility row")
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		page = append(page, row)
	}
	return page, eris.Wrap(rows.Err(), "sqlite: fetch facilities iterate")
}

// InsertFacilities writes facility rows into the resources table. The
// provider type is stored verbatim so raw source values can be seeded.
func (s *SQLiteStore) InsertFacilities(ctx context.Context, facilities []model.Facility) error {
	metricCols := metricColumns()
	cols := slices.Concat(slices.DeleteFunc(slices.Clone(baseColumns), func(c string) bool { return c == "cbsa_code" }), metricCols)
	stmt := fmt.Sprintf("INSERT INTO resources (%s) VALUES (%s)", quoteIdents(cols), placeholders(len(cols)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert facilities: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, f := range facilities {
		var states any
		if f.States != nil {
			b, err := json.Marshal(f.States)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal states")
			}
			states = string(b)
		}
		var rural any
		if f.IsRural != nil {
			rural = *f.IsRural
		}
		licensed := optional(f.LicensedCapacity)
		if v, ok := f.Metrics["licensed_capacity"]; ok && f.LicensedCapacity == nil {
			licensed = v
		}
		args := []any{
			f.ID, nullable(f.FacilityID), string(f.ProviderType), states, nullable(f.State), nullable(f.County),
			nullable(f.ZipCode), nullable(f.CBSA), rural, nullable(f.UrbanRural),
			optional(f.TotalBeds), optional(f.CertifiedBeds), licensed, nullable(f.OwnershipType),
		}
		for _, c := range metricCols {
			if v, ok := f.Metrics[c]; ok {
				args = append(args, v)
			} else {
				args = append(args, nil)
			}
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return eris.Wrapf(err, "sqlite: insert facility %s", f.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: insert facilities: commit tx")
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// --- Peer groups ---

func (s *SQLiteStore) ReplacePeerGroups(ctx context.Context, pt model.ProviderType, groups []model.PeerGroup) (int64, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM peer_groups WHERE facility_type = ?`, string(pt)); err != nil {
		return 0, sqliteErr(err, TablePeerGroups, "delete peer groups")
	}
	stmt := fmt.Sprintf("INSERT INTO peer_groups (%s) VALUES (%s)", quoteIdents(peerGroupColumns), placeholders(len(peerGroupColumns)))

	var total int64
	for i, batch := range db.Chunk(peerGroupRows(groups), s.opts.batchSize) {
		if err := s.execBatch(ctx, stmt, batch); err != nil {
			return total, sqliteErr(err, TablePeerGroups, fmt.Sprintf("insert peer groups batch %d", i))
		}
		total += int64(len(batch))
	}
	return total, nil
}

func (s *SQLiteStore) ListPeerGroups(ctx context.Context) ([]model.PeerGroup, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, facility_type, criteria FROM peer_groups ORDER BY facility_type, name`)
	if err != nil {
		return nil, sqliteErr(err, TablePeerGroups, "list peer groups")
	}
	defer rows.Close()

	var groups []model.PeerGroup
	for rows.Next() {
		var g model.PeerGroup
		var desc sql.NullString
		var facilityType, crit string
		if err := rows.Scan(&g.ID, &g.Name, &desc, &facilityType, &crit); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan peer group")
		}
		g.Description = desc.String
		g.FacilityType = parseProvider(facilityType)
		g.Criteria = json.RawMessage(crit)
		groups = append(groups, g)
	}
	return groups, eris.Wrap(rows.Err(), "sqlite: list peer groups iterate")
}

// --- Weights ---

func (s *SQLiteStore) LoadWeights(ctx context.Context, version string) ([]model.MetricWeight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider_type, region, metric_key, weight FROM facility_metric_weights WHERE version = ? ORDER BY rowid`,
		version,
	)
	if err != nil {
		return nil, sqliteErr(err, TableWeights, "load weights")
	}
	defer rows.Close()

	var out []model.MetricWeight
	for rows.Next() {
		w := model.MetricWeight{Version: version}
		var pt string
		var region sql.NullString
		if err := rows.Scan(&pt, &region, &w.MetricKey, &w.Weight); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan weight")
		}
		w.ProviderType = parseProvider(pt)
		w.Region = region.String
		out = append(out, w)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: load weights iterate")
}

func (s *SQLiteStore) ReplaceWeights(ctx context.Context, version string, rows []model.MetricWeight) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: replace weights: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM facility_metric_weights WHERE version = ?`, version); err != nil {
		return 0, sqliteErr(err, TableWeights, "delete weights")
	}
	stmt := fmt.Sprintf("INSERT INTO facility_metric_weights (%s) VALUES (%s)", quoteIdents(weightColumns), placeholders(len(weightColumns)))
	for _, args := range weightRows(version, rows) {
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, eris.Wrap(err, "sqlite: insert weight")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: replace weights: commit tx")
	}
	return int64(len(rows)), nil
}

// --- Scoring output ---

// upsert writes rows in batches, one transaction per batch. A failed
// batch leaves earlier batches committed.
func (s *SQLiteStore) upsert(ctx context.Context, cfg db.UpsertConfig, rows [][]any) (int64, error) {
	var sets []string
	for _, c := range cfg.Columns {
		if !slices.Contains(cfg.ConflictKeys, c) {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		cfg.Table, quoteIdents(cfg.Columns), placeholders(len(cfg.Columns)),
		strings.Join(cfg.ConflictKeys, ", "), strings.Join(sets, ", "))

	var total int64
	for i, batch := range db.Chunk(rows, s.opts.batchSize) {
		if err := s.execBatch(ctx, stmt, batch); err != nil {
			return total, sqliteErr(err, cfg.Table, fmt.Sprintf("upsert %s batch %d", cfg.Table, i))
		}
		total += int64(len(batch))
	}
	return total, nil
}

func (s *SQLiteStore) execBatch(ctx context.Context, stmt string, batch [][]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer prepared.Close()

	for _, args := range batch {
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpsertNormalized(ctx context.Context, rows []model.NormalizedMetric) (int64, error) {
	return s.upsert(ctx, normalizedUpsert, normalizedRows(rows))
}

func (s *SQLiteStore) ListNormalized(ctx context.Context, version string) ([]model.NormalizedMetric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT facility_id, metric_key, raw_value, z_score, percentile, mean, std_dev, provider_type, region, score_version, calculated_at
		 FROM facility_metrics_normalized WHERE score_version = ? ORDER BY facility_id, metric_key`,
		version,
	)
	if err != nil {
		return nil, sqliteErr(err, TableNormalized, "list normalized metrics")
	}
	defer rows.Close()

	var out []model.NormalizedMetric
	for rows.Next() {
		var m model.NormalizedMetric
		var pt string
		var region sql.NullString
		if err := rows.Scan(&m.FacilityID, &m.MetricKey, &m.RawValue, &m.ZScore, &m.Percentile,
			&m.Mean, &m.StdDev, &pt, &region, &m.ScoreVersion, &m.CalculatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan normalized metric")
		}
		m.ProviderType = parseProvider(pt)
		m.Region = region.String
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list normalized iterate")
}

func (s *SQLiteStore) UpsertScores(ctx context.Context, rows []model.FacilityScore) (int64, error) {
	return s.upsert(ctx, scoreUpsert, scoreRows(rows))
}

func (s *SQLiteStore) UpsertLegacyScores(ctx context.Context, rows []model.LegacyScore) (int64, error) {
	return s.upsert(ctx, legacyUpsert, legacyRows(rows))
}

func (s *SQLiteStore) UpsertBenchmarks(ctx context.Context, rows []model.Benchmark) (int64, error) {
	return s.upsert(ctx, benchmarkUpsert, benchmarkRows(rows))
}

// ListScores returns persisted facility scores for a version.
func (s *SQLiteStore) ListScores(ctx context.Context, version string) ([]model.FacilityScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT facility_id, score, provider_type, region, version, calculated_at FROM facility_scores WHERE version = ? ORDER BY facility_id`,
		version,
	)
	if err != nil {
		return nil, sqliteErr(err, TableScores, "list scores")
	}
	defer rows.Close()

	var out []model.FacilityScore
	for rows.Next() {
		var fs model.FacilityScore
		var pt string
		var region sql.NullString
		if err := rows.Scan(&fs.FacilityID, &fs.Score, &pt, &region, &fs.Version, &fs.CalculatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		fs.ProviderType = parseProvider(pt)
		fs.Region = region.String
		out = append(out, fs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list scores iterate")
}

// ListBenchmarks returns persisted benchmark rows for a calculation date.
func (s *SQLiteStore) ListBenchmarks(ctx context.Context, date string) ([]model.Benchmark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT peer_group_id, metric_name, mean, median, std_dev, min_value, max_value, p10, p25, p50, p75, p90, sample_count, calculation_date
		 FROM benchmark_metrics WHERE calculation_date = ? ORDER BY peer_group_id, metric_name`,
		date,
	)
	if err != nil {
		return nil, sqliteErr(err, TableBenchmarks, "list benchmarks")
	}
	defer rows.Close()

	var out []model.Benchmark
	for rows.Next() {
		var b model.Benchmark
		if err := rows.Scan(&b.PeerGroupID, &b.MetricName, &b.Mean, &b.Median, &b.StdDev, &b.Min, &b.Max,
			&b.P10, &b.P25, &b.P50, &b.P75, &b.P90, &b.SampleCount, &b.CalculationDate); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan benchmark")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list benchmarks iterate")
}

// --- Job run log ---

func (s *SQLiteStore) StartJobRun(ctx context.Context, job model.JobName, metadata map[string]any) (string, error) {
	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_runs (id, job, status, started_at, metadata) VALUES (?, ?, ?, ?, ?)`,
		id, string(job), string(model.JobStatusRunning), time.Now().UTC(), nullableBytes(metaJSON),
	)
	if err != nil {
		return "", sqliteErr(err, TableJobRuns, "start job run "+string(job))
	}
	return id, nil
}

func (s *SQLiteStore) CompleteJobRun(ctx context.Context, id string, rowsWritten int64, metadata map[string]any) error {
	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_runs SET status = ?, completed_at = ?, rows_written = ?, metadata = COALESCE(?, metadata) WHERE id = ?`,
		string(model.JobStatusComplete), time.Now().UTC(), rowsWritten, nullableBytes(metaJSON), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job run %s", id)
	}
	return checkRowsAffected(res, "job run", id)
}

func (s *SQLiteStore) FailJobRun(ctx context.Context, id string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(model.JobStatusFailed), time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job run %s", id)
	}
	return checkRowsAffected(res, "job run", id)
}

func (s *SQLiteStore) ListJobRuns(ctx context.Context, filter JobFilter) ([]model.JobRun, error) {
	query := `SELECT id, job, status, started_at, completed_at, rows_written, error, metadata FROM job_runs WHERE 1=1`
	var args []any

	if filter.Job != "" {
		query += ` AND job = ?`
		args = append(args, string(filter.Job))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteErr(err, TableJobRuns, "list job runs")
	}
	defer rows.Close()

	var runs []model.JobRun
	for rows.Next() {
		var r model.JobRun
		var job, status string
		var completedAt sql.NullTime
		var errStr, metaJSON sql.NullString
		if err := rows.Scan(&r.ID, &job, &status, &r.StartedAt, &completedAt, &r.RowsWritten, &errStr, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job run")
		}
		r.Job = model.JobName(job)
		r.Status = model.JobStatus(status)
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		r.Error = errStr.String
		if metaJSON.Valid {
			_ = json.Unmarshal([]byte(metaJSON.String), &r.Metadata)
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list job runs iterate")
}

func nullableBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", entity, id)
	}
	return nil
}
