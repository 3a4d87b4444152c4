package store

import (
	"context"
	"iter"
)

// PageFunc fetches up to limit items starting at offset.
type PageFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// Paginate returns a lazy sequence over the pages produced by fetch. A
// short page ends the sequence; an error is yielded once and ends it.
// Ranging over the sequence again restarts from the first page.
func Paginate[T any](ctx context.Context, pageSize int, fetch PageFunc[T]) iter.Seq2[T, error] {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return func(yield func(T, error) bool) {
		var zero T
		for offset := 0; ; offset += pageSize {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}
			page, err := fetch(ctx, offset, pageSize)
			if err != nil {
				yield(zero, err)
				return
			}
			for _, item := range page {
				if !yield(item, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
		}
	}
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
