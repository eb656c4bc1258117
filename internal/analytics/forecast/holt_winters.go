package forecast

import (
	"context"
	"fmt"

	"github.com/serenitylabs/serenity/internal/utils"
)

// FitLinear runs Holt's linear (trend, no season) smoothing over y.
// fitted[0] is absent; fitted[t] is the prediction made from the state
// before observing y[t].
func FitLinear(y []float64, alpha, beta float64) (*FitResult, error) {
	n := len(y)
	if n < 3 {
		return nil, &InsufficientDataError{Model: ModelLinear, Need: 3, Have: n}
	}

	level := y[0]
	trend := y[1] - y[0]
	fitted := make([]NullFloat, n)

	for t := 1; t < n; t++ {
		fitted[t] = Float(level + trend)

		prevLevel := level
		level = alpha*y[t] + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
	}

	return &FitResult{
		Fitted: fitted,
		Level:  level,
		Trend:  trend,
		SSE:    sumSquaredError(y, fitted),
	}, nil
}

// FitSeasonal runs Holt-Winters smoothing with period m. The first m fitted
// positions are absent. Level and trend are seeded from the means of the
// first two seasons, seasonal factors from the first season.
func FitSeasonal(y []float64, m int, alpha, beta, gamma float64, seasonalType SeasonalType) (*FitResult, error) {
	if m < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPeriod, m)
	}
	model := seasonalType.model()
	n := len(y)
	if n < 2*m+2 {
		return nil, &InsufficientDataError{Model: model, Need: 2*m + 2, Have: n}
	}

	l0 := mean(y[:m])
	l1 := mean(y[m : 2*m])
	level := l1
	trend := (l1 - l0) / float64(m)

	seasonal := make([]float64, m)
	for i := 0; i < m; i++ {
		if seasonalType == SeasonalMultiplicative {
			seasonal[i] = y[i] / nonZero(l0)
		} else {
			seasonal[i] = y[i] - l0
		}
	}

	fitted := make([]NullFloat, n)
	for t := 0; t < n; t++ {
		idx := t % m
		if t >= m {
			if seasonalType == SeasonalMultiplicative {
				fitted[t] = Float((level + trend) * seasonal[idx])
			} else {
				fitted[t] = Float(level + trend + seasonal[idx])
			}
		}

		// Level and trend see this step's seasonal value before it is updated.
		prevLevel := level
		if seasonalType == SeasonalMultiplicative {
			level = alpha*(y[t]/nonZero(seasonal[idx])) + (1-alpha)*(level+trend)
			trend = beta*(level-prevLevel) + (1-beta)*trend
			seasonal[idx] = gamma*(y[t]/nonZero(level)) + (1-gamma)*seasonal[idx]
		} else {
			level = alpha*(y[t]-seasonal[idx]) + (1-alpha)*(level+trend)
			trend = beta*(level-prevLevel) + (1-beta)*trend
			seasonal[idx] = gamma*(y[t]-level) + (1-gamma)*seasonal[idx]
		}
	}

	return &FitResult{
		Fitted:       fitted,
		Level:        level,
		Trend:        trend,
		Seasonal:     seasonal,
		SeasonalType: seasonalType,
		SSE:          sumSquaredError(y, fitted),
	}, nil
}

// ForecastLinear returns level + k*trend for k = 1..horizon.
func ForecastLinear(level, trend float64, horizon int) []float64 {
	if horizon < 0 {
		horizon = 0
	}
	out := make([]float64, horizon)
	for k := 1; k <= horizon; k++ {
		out[k-1] = level + float64(k)*trend
	}
	return out
}

// ForecastSeasonal projects the trend line and applies seasonal[(k-1) mod m]
// at step k.
func ForecastSeasonal(level, trend float64, seasonal []float64, m, horizon int, seasonalType SeasonalType) []float64 {
	if horizon < 0 || m < 1 || len(seasonal) < m {
		horizon = 0
	}
	out := make([]float64, horizon)
	for k := 1; k <= horizon; k++ {
		s := seasonal[(k-1)%m]
		base := level + float64(k)*trend
		if seasonalType == SeasonalMultiplicative {
			out[k-1] = base * s
		} else {
			out[k-1] = base + s
		}
	}
	return out
}

func (st SeasonalType) model() Model {
	if st == SeasonalMultiplicative {
		return ModelMultiplicative
	}
	return ModelAdditive
}

func nonZero(v float64) float64 {
	if v == 0 {
		return epsilon
	}
	return v
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// clampParams bounds manual weights to [0,1] and replaces non-finite ones
// with the defaults.
func clampParams(p Params) Params {
	return Params{
		Alpha: utils.Clamp01(p.Alpha, DefaultAlpha),
		Beta:  utils.Clamp01(p.Beta, DefaultBeta),
		Gamma: utils.Clamp01(p.Gamma, DefaultGamma),
	}
}

// LinearForecaster fits Holt's linear model.
type LinearForecaster struct{}

// NewLinearForecaster creates a new linear forecaster
func NewLinearForecaster() *LinearForecaster {
	return &LinearForecaster{}
}

// HoltWintersForecaster fits a seasonal Holt-Winters model
type HoltWintersForecaster struct {
	seasonalType SeasonalType
}

// NewHoltWintersForecaster creates a new Holt-Winters forecaster
func NewHoltWintersForecaster(seasonalType SeasonalType) *HoltWintersForecaster {
	return &HoltWintersForecaster{seasonalType: seasonalType}
}

func init() {
	RegisterForecaster(NewLinearForecaster())
	RegisterForecaster(NewHoltWintersForecaster(SeasonalAdditive))
	RegisterForecaster(NewHoltWintersForecaster(SeasonalMultiplicative))
}

// Name returns the model name
func (f *LinearForecaster) Name() Model {
	return ModelLinear
}

// Fit grid-searches alpha and beta, or fits once with cfg.Params in manual mode.
func (f *LinearForecaster) Fit(ctx context.Context, y []float64, cfg Config) (*Fit, error) {
	if cfg.AutoFit {
		return OptimizeLinear(ctx, y, cfg.Workers)
	}
	p := clampParams(cfg.Params)
	res, err := FitLinear(y, p.Alpha, p.Beta)
	if err != nil {
		return nil, err
	}
	p.Gamma = 0
	return &Fit{Model: ModelLinear, Params: p, Result: res, Trials: 1}, nil
}

// Name returns the model name
func (f *HoltWintersForecaster) Name() Model {
	return f.seasonalType.model()
}

// Fit grid-searches alpha, beta and gamma, or fits once with cfg.Params in
// manual mode.
func (f *HoltWintersForecaster) Fit(ctx context.Context, y []float64, cfg Config) (*Fit, error) {
	if cfg.AutoFit {
		return OptimizeSeasonal(ctx, y, cfg.SeasonalPeriod, f.seasonalType, cfg.Workers)
	}
	p := clampParams(cfg.Params)
	res, err := FitSeasonal(y, cfg.SeasonalPeriod, p.Alpha, p.Beta, p.Gamma, f.seasonalType)
	if err != nil {
		return nil, err
	}
	return &Fit{Model: f.Name(), Params: p, Result: res, Trials: 1}, nil
}
