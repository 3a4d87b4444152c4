// Package stats implements the descriptive and rank statistics shared by
// normalization, scoring and benchmarking.
package stats

import (
	"math"
	"slices"
)

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the Bessel-corrected sample standard deviation around
// mean. It is 0 when there are fewer than two values.
func StdDev(values []float64, mean float64) float64 {
	n := len(values)
	if n <= 1 {
		return 0
	}
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// ZScore returns the polarity-adjusted z-score. It is 0 when stddev is not
// positive or the result is not finite.
func ZScore(value, mean, stddev float64, higherIsBetter bool) float64 {
	if stddev <= 0 {
		return 0
	}
	var z float64
	if higherIsBetter {
		z = (value - mean) / stddev
	} else {
		z = (mean - value) / stddev
	}
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 0
	}
	return z
}

// RankPercentiles maps each distinct value to its rank percentile. Tied
// values take the position of their first occurrence in ascending order.
// Ascending ranks place the largest value at 100; descending ranks place
// the smallest at 100. A single value gets 50.
func RankPercentiles(values []float64, ascending bool) map[float64]float64 {
	out := make(map[float64]float64, len(values))
	n := len(values)
	if n == 0 {
		return out
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	for i, v := range sorted {
		if _, seen := out[v]; seen {
			continue
		}
		if n == 1 {
			out[v] = 50
			continue
		}
		if ascending {
			out[v] = float64(i) / float64(n-1) * 100
		} else {
			out[v] = float64(n-1-i) / float64(n-1) * 100
		}
	}
	return out
}

// CountPercentile is the legacy percentile: the share of other values at
// or below v, round((count(<= v) - 1) / (n - 1) * 100). A single value
// gets 50.
func CountPercentile(values []float64, v float64) float64 {
	n := len(values)
	if n <= 1 {
		return 50
	}
	var le int
	for _, x := range values {
		if x <= v {
			le++
		}
	}
	return math.Round(float64(le-1) / float64(n-1) * 100)
}

// Quantile returns the q-th quantile of an ascending-sorted slice using
// linear interpolation between order statistics.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	switch n {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	rank := float64(n-1) * q
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if hi >= n {
		return sorted[n-1]
	}
	w := rank - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
