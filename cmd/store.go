package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sunsetwell/scoring-cli/internal/jobs"
	"github.com/sunsetwell/scoring-cli/internal/peergroup"
	"github.com/sunsetwell/scoring-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []store.Option{
		store.WithPageSize(cfg.Store.PageSize),
		store.WithBatchSize(cfg.Store.BatchSize),
	}

	var st store.Store
	var err error
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL, opts...)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		}, opts...)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func newRunner(st store.Store) *jobs.Runner {
	return jobs.New(st, jobs.Settings{
		Version:       cfg.Scoring.Version,
		TenPointScale: cfg.Scoring.TenPointScale,
		Thresholds: peergroup.Thresholds{
			MinStateSize:    cfg.PeerGroups.MinStateSize,
			MinDivisionSize: cfg.PeerGroups.MinDivisionSize,
			MinSegmentSize:  cfg.PeerGroups.MinSegmentSize,
		},
		CalculationDate: cfg.Benchmarks.CalculationDate,
	})
}

// printResult writes a one-line job summary.
func printResult(w io.Writer, res jobs.Result) {
	_, _ = fmt.Fprintf(w, "%s: %d rows written in %s (run %s)\n",
		res.Job, res.RowsWritten, res.Elapsed.Round(time.Millisecond), truncateID(res.RunID))
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
