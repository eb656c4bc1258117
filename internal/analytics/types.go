// Package analytics provides the value types shared by the normalizer, the
// date merger and the forecasting engine.
package analytics

import (
	"math"
	"time"
)

// RawRow is one decoded row of a tabular source: column name to raw cell value.
// Values are strings, numbers, time.Time or nil.
type RawRow map[string]interface{}

// TimeSeriesPoint is a single dated observation. Dates are UTC midnight.
type TimeSeriesPoint struct {
	Time  time.Time
	Value float64
}

// TimeSeriesData represents a collection of time-series data points
type TimeSeriesData []TimeSeriesPoint

// Values extracts just the values from the time series
func (ts TimeSeriesData) Values() []float64 {
	values := make([]float64, len(ts))
	for i, p := range ts {
		values[i] = p.Value
	}
	return values
}

// Mean calculates the mean of all values
func (ts TimeSeriesData) Mean() float64 {
	if len(ts) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range ts {
		sum += p.Value
	}
	return sum / float64(len(ts))
}

// StdDev calculates the sample standard deviation of all values
func (ts TimeSeriesData) StdDev() float64 {
	if len(ts) < 2 {
		return 0
	}
	mean := ts.Mean()
	sumSq := 0.0
	for _, p := range ts {
		diff := p.Value - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(ts)-1))
}

// MergedPoint is one fully populated date of the aligned series.
type MergedPoint struct {
	Date       string    `json:"date"` // YYYY-MM-DD, the merge key
	Time       time.Time `json:"-"`
	Target     float64   `json:"target"`
	CovariateA float64   `json:"covariate_a"`
	CovariateB float64   `json:"covariate_b"`
}

// MergedSeries is ordered by Date with no duplicates.
type MergedSeries []MergedPoint

// TargetSeries returns the target column in date order.
func (s MergedSeries) TargetSeries() TimeSeriesData {
	out := make(TimeSeriesData, len(s))
	for i, p := range s {
		out[i] = TimeSeriesPoint{Time: p.Time, Value: p.Target}
	}
	return out
}
