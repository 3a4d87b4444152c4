package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a table using the PostgreSQL COPY protocol.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}

	return n, nil
}

// CopyInBatches COPYs rows in consecutive batches. Earlier batches stay
// written when a later one fails.
func CopyInBatches(ctx context.Context, pool Pool, table string, columns []string, rows [][]any, batchSize int) (int64, error) {
	var total int64
	for i, batch := range Chunk(rows, batchSize) {
		n, err := CopyFrom(ctx, pool, table, columns, batch)
		if err != nil {
			return total, eris.Wrapf(err, "db: copy batch %d", i)
		}
		total += n
	}
	return total, nil
}
