package utils

import "math"

// Mean returns the arithmetic mean, or 0 for an empty slice.
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

// StdDev returns the sample standard deviation (n-1 denominator), or 0 when
// fewer than two values are given.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := Mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// LinearTrend fits y = slope*x + intercept by least squares over equally
// spaced points x = 0..n-1. Fewer than two points yield a flat line.
func LinearTrend(values []float64) (slope, intercept float64) {
	n := len(values)
	if n < 2 {
		return 0, Mean(values)
	}
	xMean := float64(n-1) / 2
	yMean := Mean(values)
	var num, den float64
	for i, v := range values {
		dx := float64(i) - xMean
		num += dx * (v - yMean)
		den += dx * dx
	}
	slope = num / den
	return slope, yMean - slope*xMean
}
