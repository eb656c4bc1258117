// Package forecast implements Holt-Winters exponential smoothing in three
// variants (linear, additive seasonal, multiplicative seasonal), a grid-search
// parameter optimizer, in-sample error metrics and fixed-band scenarios.
package forecast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Model names a smoothing variant.
type Model string

const (
	ModelLinear         Model = "linear"
	ModelAdditive       Model = "additive"
	ModelMultiplicative Model = "multiplicative"
)

// Models returns the variants in the order they are fitted and reported.
func Models() []Model {
	return []Model{ModelLinear, ModelAdditive, ModelMultiplicative}
}

// ParseModel accepts the canonical names and the short add/mul aliases.
func ParseModel(s string) (Model, error) {
	switch s {
	case "linear", "lin":
		return ModelLinear, nil
	case "additive", "add":
		return ModelAdditive, nil
	case "multiplicative", "mul":
		return ModelMultiplicative, nil
	}
	return "", fmt.Errorf("unknown model: %s", s)
}

// DisplayName is the localized label shown in the metrics table.
func (m Model) DisplayName() string {
	switch m {
	case ModelLinear:
		return "Линейная"
	case ModelAdditive:
		return "Аддитивная"
	case ModelMultiplicative:
		return "Мультипликативная"
	}
	return string(m)
}

// SeasonalType selects how the seasonal component combines with the level.
type SeasonalType string

const (
	SeasonalAdditive       SeasonalType = "additive"
	SeasonalMultiplicative SeasonalType = "multiplicative"
)

// epsilon replaces an exact zero divisor in the multiplicative variant.
const epsilon = 1e-6

// Default manual-mode smoothing weights.
const (
	DefaultAlpha = 0.3
	DefaultBeta  = 0.1
	DefaultGamma = 0.1
)

var (
	// ErrInsufficientData marks a series too short for the requested model.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidPeriod is returned for a seasonal period below 1.
	ErrInvalidPeriod = errors.New("invalid seasonal period")
)

// InsufficientDataError reports the minimum length a model needed.
type InsufficientDataError struct {
	Model Model
	Need  int
	Have  int
}

func (e *InsufficientDataError) Error() string {
	if e.Model == ModelLinear {
		return fmt.Sprintf("series too short for linear model: need %d points, have %d", e.Need, e.Have)
	}
	return fmt.Sprintf("series too short for %s seasonal model, need at least 2 seasons: need %d points, have %d",
		e.Model, e.Need, e.Have)
}

// Is makes errors.Is(err, ErrInsufficientData) match.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// NullFloat is a float64 that may be absent. It marshals to JSON null when
// not Valid.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Float wraps a present value.
func Float(v float64) NullFloat {
	return NullFloat{Float64: v, Valid: true}
}

// NullIfNaN treats NaN and infinities as absent.
func NullIfNaN(v float64) NullFloat {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NullFloat{}
	}
	return Float(v)
}

// Ptr returns nil when absent.
func (n NullFloat) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, n.Float64, 'g', -1, 64), nil
}

func (n *NullFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = NullFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", data, err)
	}
	*n = Float(v)
	return nil
}

// Params holds the smoothing weights of one fit. Gamma is unused by the
// linear model.
type Params struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Map returns the weights the model actually uses.
func (p Params) Map(model Model) map[string]float64 {
	m := map[string]float64{"alpha": p.Alpha, "beta": p.Beta}
	if model != ModelLinear {
		m["gamma"] = p.Gamma
	}
	return m
}

// FitResult is the outcome of one fit over a series. Fitted has the input's
// length; positions without a one-step-ahead prediction are absent.
type FitResult struct {
	Fitted       []NullFloat
	Level        float64
	Trend        float64
	Seasonal     []float64 // nil for the linear model
	SeasonalType SeasonalType
	SSE          float64
}

// Forecast projects the final state horizon steps ahead.
func (r *FitResult) Forecast(horizon int) []float64 {
	if r.Seasonal == nil {
		return ForecastLinear(r.Level, r.Trend, horizon)
	}
	return ForecastSeasonal(r.Level, r.Trend, r.Seasonal, len(r.Seasonal), horizon, r.SeasonalType)
}

// Config controls a Forecaster.
type Config struct {
	SeasonalPeriod int
	AutoFit        bool
	Params         Params // used when AutoFit is false
	Workers        int    // grid-search parallelism, <= 0 means GOMAXPROCS
}

// DefaultConfig returns the daily-data configuration.
func DefaultConfig() Config {
	return Config{
		SeasonalPeriod: 365,
		AutoFit:        true,
		Params:         Params{Alpha: DefaultAlpha, Beta: DefaultBeta, Gamma: DefaultGamma},
	}
}

// Fit is a fitted model: the chosen weights, the fit result and how many
// grid candidates were tried.
type Fit struct {
	Model  Model
	Params Params
	Result *FitResult
	Trials int
	Failed int
}

// Forecaster interface for all smoothing variants
type Forecaster interface {
	// Name returns the model name
	Name() Model
	// Fit chooses parameters for y (by grid search or from cfg) and fits the model
	Fit(ctx context.Context, y []float64, cfg Config) (*Fit, error)
}

// Registry holds available forecasters
var forecasterRegistry = make(map[Model]Forecaster)

// RegisterForecaster adds a forecaster to the registry
func RegisterForecaster(forecaster Forecaster) {
	forecasterRegistry[forecaster.Name()] = forecaster
}

// GetForecaster returns a forecaster by name
func GetForecaster(name Model) (Forecaster, error) {
	if forecaster, ok := forecasterRegistry[name]; ok {
		return forecaster, nil
	}
	return nil, fmt.Errorf("unknown forecaster: %s", name)
}

// ListForecasters returns the registered model names, sorted
func ListForecasters() []Model {
	names := make([]Model, 0, len(forecasterRegistry))
	for name := range forecasterRegistry {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
