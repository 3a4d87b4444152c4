package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanStdDev(t *testing.T) {
	t.Parallel()

	vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	m := Mean(vals)
	assert.InDelta(t, 5.0, m, 1e-9)
	assert.InDelta(t, 2.138089935, StdDev(vals, m), 1e-6)

	assert.Zero(t, Mean(nil))
	assert.Zero(t, StdDev([]float64{42}, 42))
	assert.Zero(t, StdDev(nil, 0))
}

func TestZScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		value  float64
		mean   float64
		stddev float64
		higher bool
		want   float64
	}{
		{"higher better above", 7, 5, 2, true, 1},
		{"higher better below", 3, 5, 2, true, -1},
		{"lower better above", 7, 5, 2, false, -1},
		{"lower better below", 3, 5, 2, false, 1},
		{"zero stddev", 9, 5, 0, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, ZScore(tt.value, tt.mean, tt.stddev, tt.higher), 1e-9)
		})
	}
}

func TestRankPercentiles_Ascending(t *testing.T) {
	t.Parallel()

	p := RankPercentiles([]float64{3, 1, 2, 2, 5}, true)
	// sorted: 1, 2, 2, 3, 5
	assert.InDelta(t, 0.0, p[1], 1e-9)
	assert.InDelta(t, 25.0, p[2], 1e-9)
	assert.InDelta(t, 75.0, p[3], 1e-9)
	assert.InDelta(t, 100.0, p[5], 1e-9)
	assert.Len(t, p, 4)
}

func TestRankPercentiles_Descending(t *testing.T) {
	t.Parallel()

	p := RankPercentiles([]float64{10, 20, 30}, false)
	assert.InDelta(t, 100.0, p[10], 1e-9)
	assert.InDelta(t, 50.0, p[20], 1e-9)
	assert.InDelta(t, 0.0, p[30], 1e-9)
}

func TestRankPercentiles_SingleValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[float64]float64{7: 50}, RankPercentiles([]float64{7}, true))
	assert.Equal(t, map[float64]float64{7: 50}, RankPercentiles([]float64{7}, false))
	assert.Empty(t, RankPercentiles(nil, true))
}

func TestRankPercentiles_Monotone(t *testing.T) {
	t.Parallel()

	vals := []float64{5, 1, 4, 4, 2, 3, 3, 3, 9}
	p := RankPercentiles(vals, true)
	for _, a := range vals {
		for _, b := range vals {
			if a >= b {
				assert.GreaterOrEqual(t, p[a], p[b])
			}
		}
	}
}

func TestCountPercentile(t *testing.T) {
	t.Parallel()

	vals := []float64{10, 20, 20, 40}
	assert.InDelta(t, 0.0, CountPercentile(vals, 10), 1e-9)
	assert.InDelta(t, 67.0, CountPercentile(vals, 20), 1e-9)
	assert.InDelta(t, 100.0, CountPercentile(vals, 40), 1e-9)
	assert.InDelta(t, 50.0, CountPercentile([]float64{3}, 3), 1e-9)
}

func TestQuantile(t *testing.T) {
	t.Parallel()

	sorted := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 3.0, Quantile(sorted, 0.5), 1e-9)
	assert.InDelta(t, 1.4, Quantile(sorted, 0.1), 1e-9)
	assert.InDelta(t, 2.0, Quantile(sorted, 0.25), 1e-9)
	assert.InDelta(t, 4.6, Quantile(sorted, 0.9), 1e-9)
	assert.InDelta(t, 5.0, Quantile(sorted, 1), 1e-9)
	assert.InDelta(t, 8.0, Quantile([]float64{8}, 0.9), 1e-9)
	assert.Zero(t, Quantile(nil, 0.5))

	even := []float64{1, 2, 3, 4}
	assert.InDelta(t, 2.5, Quantile(even, 0.5), 1e-9)
}

func TestClampRound(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, Clamp(-3, 0, 100))
	assert.Equal(t, 100.0, Clamp(130, 0, 100))
	assert.Equal(t, 42.0, Clamp(42, 0, 100))
	assert.Equal(t, 66.67, Round2(66.666666))
	assert.Equal(t, 12.35, Round2(12.345001))
}
