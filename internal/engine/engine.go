// Package engine runs the full forecasting pipeline over three decoded
// sources and returns an immutable ResultBundle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/serenitylabs/serenity/internal/analytics"
	"github.com/serenitylabs/serenity/internal/analytics/forecast"
	"github.com/serenitylabs/serenity/internal/merge"
	"github.com/serenitylabs/serenity/internal/normalize"
	"github.com/serenitylabs/serenity/internal/utils"
)

// Progress checkpoints reported through Options.Progress.
const (
	ProgressStart          = 5
	ProgressRowsRead       = 20
	ProgressMerged         = 35
	ProgressSeries         = 45
	ProgressLinear         = 60
	ProgressAdditive       = 80
	ProgressMultiplicative = 90
	ProgressDone           = 100
)

// ProgressFunc receives a percentage and a short stage name.
type ProgressFunc func(percent int, stage string)

// Input holds the decoded rows of the three sources.
type Input struct {
	Target    []analytics.RawRow
	Index     []analytics.RawRow
	Commodity []analytics.RawRow
}

// Options controls one run.
type Options struct {
	Horizon        int
	SeasonalPeriod int
	AutoFit        bool
	Params         forecast.Params // manual mode weights
	Workers        int
	Strict         bool
	BandUp         float64
	BandDown       float64
	Sources        *[3]merge.SourceSpec // nil uses merge.DefaultSpecs
	Progress       ProgressFunc
}

// DefaultOptions returns the two-year daily forecast with a yearly season.
func DefaultOptions() Options {
	return Options{
		Horizon:        utils.DefaultHorizon,
		SeasonalPeriod: utils.DefaultSeasonalPeriod,
		AutoFit:        true,
		Params: forecast.Params{
			Alpha: forecast.DefaultAlpha,
			Beta:  forecast.DefaultBeta,
			Gamma: forecast.DefaultGamma,
		},
		BandUp:   forecast.DefaultBand,
		BandDown: forecast.DefaultBand,
	}
}

func (o Options) validate() error {
	if o.Horizon < 1 {
		return fmt.Errorf("%w: horizon must be at least 1, got %d", ErrInvalidOptions, o.Horizon)
	}
	if o.SeasonalPeriod < 1 {
		return fmt.Errorf("%w: seasonal period must be at least 1, got %d", ErrInvalidOptions, o.SeasonalPeriod)
	}
	if o.BandUp < 0 || o.BandDown < 0 || o.BandDown > 1 {
		return fmt.Errorf("%w: bands must be non-negative fractions", ErrInvalidOptions)
	}
	return nil
}

func (o Options) report(percent int, stage string) {
	if o.Progress != nil {
		o.Progress(percent, stage)
	}
}

// Run validates the input, merges the sources by date and fits every model
// on the target series. A model that fails is reported in its ModelResult;
// Run itself fails only on validation, an empty merge, cancellation, or when
// no model could be fitted.
func Run(ctx context.Context, in Input, opts Options) (*ResultBundle, error) {
	opts.report(ProgressStart, "start")

	if err := opts.validate(); err != nil {
		return nil, err
	}
	for _, src := range []struct {
		name string
		rows []analytics.RawRow
	}{
		{merge.SourceTarget, in.Target},
		{merge.SourceIndex, in.Index},
		{merge.SourceCommodity, in.Commodity},
	} {
		if len(src.rows) == 0 {
			return nil, &ValidationError{Source: src.name}
		}
	}
	opts.report(ProgressRowsRead, "rows_read")

	mergeOpts := []merge.Option{merge.WithStrict(opts.Strict)}
	if opts.Sources != nil {
		mergeOpts = append(mergeOpts, merge.WithSpecs(*opts.Sources))
	}
	series, report := merge.New(mergeOpts...).Merge(in.Target, in.Index, in.Commodity)
	if len(series) == 0 {
		return nil, ErrEmptyMerge
	}
	opts.report(ProgressMerged, "merged")

	target := series.TargetSeries()
	y := target.Values()
	bundle := &ResultBundle{
		Summary: Summary{
			Observations: len(series),
			From:         series[0].Date,
			To:           series[len(series)-1].Date,
			Mean:         forecast.NullIfNaN(target.Mean()),
			StdDev:       forecast.NullIfNaN(target.StdDev()),
		},
		Dates:         make([]string, len(series)),
		Actual:        y,
		ForecastDates: forecastDates(series[len(series)-1].Time, opts.Horizon),
		Options: RunOptions{
			Horizon:        opts.Horizon,
			SeasonalPeriod: opts.SeasonalPeriod,
			AutoFit:        opts.AutoFit,
			BandUp:         opts.BandUp,
			BandDown:       opts.BandDown,
		},
	}
	for i, p := range series {
		bundle.Dates[i] = p.Date
	}
	if opts.Strict {
		bundle.MergeReport = report
	}
	opts.report(ProgressSeries, "series")

	cfg := forecast.Config{
		SeasonalPeriod: opts.SeasonalPeriod,
		AutoFit:        opts.AutoFit,
		Params:         opts.Params,
		Workers:        opts.Workers,
	}
	checkpoints := map[forecast.Model]int{
		forecast.ModelLinear:         ProgressLinear,
		forecast.ModelAdditive:       ProgressAdditive,
		forecast.ModelMultiplicative: ProgressMultiplicative,
	}

	var modelErrs []error
	for _, model := range forecast.Models() {
		result, err := fitModel(ctx, model, y, cfg, opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			modelErrs = append(modelErrs, fmt.Errorf("%s: %w", model, err))
		}
		bundle.Models = append(bundle.Models, result)
		bundle.Metrics = append(bundle.Metrics, metricsRow(y, result))
		opts.report(checkpoints[model], string(model))
	}

	if len(modelErrs) == len(bundle.Models) {
		return nil, fmt.Errorf("%w: %w", ErrNoModelFitted, errors.Join(modelErrs...))
	}

	bundle.BestModel = bestByRMSE(bundle.Metrics)
	opts.report(ProgressDone, "done")
	return bundle, nil
}

// fitModel always returns a ModelResult; on failure it carries the error
// text and no values.
func fitModel(ctx context.Context, model forecast.Model, y []float64, cfg forecast.Config, opts Options) (ModelResult, error) {
	result := ModelResult{Model: model, Name: model.DisplayName()}

	forecaster, err := forecast.GetForecaster(model)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	fit, err := forecaster.Fit(ctx, y, cfg)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	scenario := forecast.BuildScenario(fit.Result.Forecast(opts.Horizon), opts.BandUp, opts.BandDown)
	if !utils.IsFinite(fit.Result.SSE) || !fittedFinite(fit.Result.Fitted) ||
		!allFinite(scenario.Base, scenario.Optimistic, scenario.Pessimistic) {
		result.Error = ErrNonFinite.Error()
		return result, ErrNonFinite
	}

	result.Parameters = fit.Params.Map(model)
	result.Fitted = fit.Result.Fitted
	result.SSE = fit.Result.SSE
	result.Trials = fit.Trials
	result.Scenario = scenario
	return result, nil
}

func metricsRow(y []float64, result ModelResult) MetricsRow {
	row := MetricsRow{Model: result.Model, Name: result.Name}
	if result.Error != "" {
		return row
	}
	m := forecast.CalculateMetrics(y, result.Fitted)
	row.MAE = forecast.NullIfNaN(m.MAE)
	row.RMSE = forecast.NullIfNaN(m.RMSE)
	row.MAPE = forecast.NullIfNaN(m.MAPE)
	return row
}

// bestByRMSE picks the lowest present RMSE; the first row wins a tie.
func bestByRMSE(rows []MetricsRow) forecast.Model {
	best := -1
	for i, r := range rows {
		if !r.RMSE.Valid {
			continue
		}
		if best < 0 || r.RMSE.Float64 < rows[best].RMSE.Float64 {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return rows[best].Model
}

// forecastDates dates step i (1-based) as last + i days.
func forecastDates(last time.Time, horizon int) []string {
	out := make([]string, horizon)
	for i := 1; i <= horizon; i++ {
		out[i-1] = normalize.FormatISODate(last.Add(time.Duration(i) * utils.ForecastStep))
	}
	return out
}

func allFinite(series ...[]float64) bool {
	for _, values := range series {
		for _, v := range values {
			if !utils.IsFinite(v) {
				return false
			}
		}
	}
	return true
}

func fittedFinite(values []forecast.NullFloat) bool {
	for _, v := range values {
		if v.Valid && !utils.IsFinite(v.Float64) {
			return false
		}
	}
	return true
}
