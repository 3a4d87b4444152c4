package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sliceFetcher(items []int, calls *int) PageFunc[int] {
	return func(_ context.Context, offset, limit int) ([]int, error) {
		*calls++
		if offset >= len(items) {
			return nil, nil
		}
		return items[offset:min(offset+limit, len(items))], nil
	}
}

func TestPaginate_AllPages(t *testing.T) {
	calls := 0
	got, err := Collect(Paginate(context.Background(), 2, sliceFetcher([]int{1, 2, 3, 4, 5}, &calls)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
	assert.Equal(t, 3, calls)
}

func TestPaginate_ExactMultipleFetchesEmptyPage(t *testing.T) {
	calls := 0
	got, err := Collect(Paginate(context.Background(), 2, sliceFetcher([]int{1, 2, 3, 4}, &calls)))
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, 3, calls)
}

func TestPaginate_Restartable(t *testing.T) {
	calls := 0
	seq := Paginate(context.Background(), 10, sliceFetcher([]int{7, 8}, &calls))
	first, err := Collect(seq)
	require.NoError(t, err)
	second, err := Collect(seq)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, calls)
}

func TestPaginate_Error(t *testing.T) {
	fetch := func(_ context.Context, offset, _ int) ([]int, error) {
		if offset > 0 {
			return nil, errors.New("network down")
		}
		return []int{1}, nil
	}
	_, err := Collect(Paginate(context.Background(), 1, fetch))
	assert.EqualError(t, err, "network down")
}

func TestPaginate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Collect(Paginate(ctx, 1, sliceFetcher([]int{1}, &calls)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestPaginate_DefaultPageSize(t *testing.T) {
	calls := 0
	items := make([]int, 1500)
	got, err := Collect(Paginate(context.Background(), 0, sliceFetcher(items, &calls)))
	require.NoError(t, err)
	assert.Len(t, got, 1500)
	assert.Equal(t, 2, calls)
}
