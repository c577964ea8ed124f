package domain

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AggregateBySecond groups samples by their truncated second and returns one
// scored bucket per distinct second in ascending key order. Empty input
// yields an empty result.
func AggregateBySecond(samples []RawSample) []SecondBucket {
	if len(samples) == 0 {
		return []SecondBucket{}
	}

	groups := make(map[EpochKey][]RawSample)
	for _, s := range samples {
		k := s.BucketKey()
		groups[k] = append(groups[k], s)
	}

	keys := make([]EpochKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	buckets := make([]SecondBucket, 0, len(keys))
	for _, k := range keys {
		buckets = append(buckets, summarize(k, groups[k]))
	}
	return buckets
}

func summarize(key EpochKey, group []RawSample) SecondBucket {
	n := len(group)
	levels := make([]float64, n)
	dx := make([]float64, n)
	dy := make([]float64, n)
	dz := make([]float64, n)
	temps := make([]float64, 0, n)
	for i, s := range group {
		levels[i] = s.Level
		dx[i] = s.DispX
		dy[i] = s.DispY
		dz[i] = s.DispZ
		if !math.IsNaN(s.Temperature) {
			temps = append(temps, s.Temperature)
		}
	}

	b := SecondBucket{Key: key, SampleCount: n}
	b.MeanLevel, b.StdLevel = meanStd(levels)
	b.MaxLevel = maxOf(levels)
	b.MeanDispX, b.MaxDispX = meanOf(dx), maxOf(dx)
	b.MeanDispY, b.MaxDispY = meanOf(dy), maxOf(dy)
	b.MeanDispZ, b.MaxDispZ = meanOf(dz), maxOf(dz)
	b.MeanTemperature = math.NaN()
	if len(temps) > 0 {
		b.MeanTemperature = stat.Mean(temps, nil)
	}

	b.SeverityScore, b.VelocityScore, b.MeanDisp = severityTerms(
		b.MeanLevel, b.MaxLevel, b.StdLevel, b.MeanDispX, b.MeanDispY, b.MeanDispZ)
	return b
}

// meanStd returns the mean and sample standard deviation. A single value has
// an undefined deviation and yields NaN.
func meanStd(x []float64) (float64, float64) {
	if floats.HasNaN(x) {
		return math.NaN(), math.NaN()
	}
	if len(x) < 2 {
		return x[0], math.NaN()
	}
	return stat.MeanStdDev(x, nil)
}

func meanOf(x []float64) float64 {
	if floats.HasNaN(x) {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

func maxOf(x []float64) float64 {
	if floats.HasNaN(x) {
		return math.NaN()
	}
	return floats.Max(x)
}
