package forecast

import "math"

// Metrics are in-sample errors over the positions that have a fitted value.
type Metrics struct {
	MAE  float64
	RMSE float64
	MAPE float64
}

// CalculateMetrics computes MAE, RMSE and MAPE for one fit.
func CalculateMetrics(actual []float64, fitted []NullFloat) Metrics {
	return Metrics{
		MAE:  CalculateMAE(actual, fitted),
		RMSE: CalculateRMSE(actual, fitted),
		MAPE: CalculateMAPE(actual, fitted),
	}
}

// CalculateMAE calculates Mean Absolute Error. NaN when no position is fitted.
func CalculateMAE(actual []float64, fitted []NullFloat) float64 {
	sum := 0.0
	count := 0
	for i := range actual {
		if i >= len(fitted) || !fitted[i].Valid {
			continue
		}
		sum += math.Abs(actual[i] - fitted[i].Float64)
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}

// CalculateRMSE calculates Root Mean Squared Error. NaN when no position is
// fitted.
func CalculateRMSE(actual []float64, fitted []NullFloat) float64 {
	sum := 0.0
	count := 0
	for i := range actual {
		if i >= len(fitted) || !fitted[i].Valid {
			continue
		}
		diff := actual[i] - fitted[i].Float64
		sum += diff * diff
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(count))
}

// CalculateMAPE calculates Mean Absolute Percentage Error over fitted
// positions with a non-zero actual. NaN when there are none.
func CalculateMAPE(actual []float64, fitted []NullFloat) float64 {
	sum := 0.0
	count := 0
	for i := range actual {
		if i >= len(fitted) || !fitted[i].Valid || actual[i] == 0 {
			continue
		}
		sum += math.Abs((actual[i] - fitted[i].Float64) / actual[i])
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return (sum / float64(count)) * 100
}

func sumSquaredError(actual []float64, fitted []NullFloat) float64 {
	sum := 0.0
	for i := range actual {
		if !fitted[i].Valid {
			continue
		}
		diff := actual[i] - fitted[i].Float64
		sum += diff * diff
	}
	return sum
}
