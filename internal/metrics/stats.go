package metrics

import (
	"math"
	"sort"
	"strings"
)

// Performance levels shared by the DORA classifications.
const (
	LevelElite  = "elite"
	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)

// doneMarkers are matched as substrings of a lowercased target status.
var doneMarkers = []string{"done", "closed", "resolved"}

// IsDoneStatus reports whether a workflow status counts as completed.
func IsDoneStatus(status string) bool {
	s := strings.ToLower(status)
	for _, m := range doneMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Percentile returns the nearest-rank percentile of values:
// sorted[min(floor(p*n), n-1)]. values need not be sorted; an empty slice
// yields 0.
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	idx := int(math.Floor(p * float64(n)))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

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

// StdDev returns the population standard deviation.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
