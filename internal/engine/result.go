package engine

import (
	"fmt"

	"github.com/serenitylabs/serenity/internal/analytics/forecast"
	"github.com/serenitylabs/serenity/internal/merge"
)

// ModelResult is one fitted variant. Error is set and the value fields are
// empty when the model could not be fitted.
type ModelResult struct {
	Model      forecast.Model       `json:"model"`
	Name       string               `json:"name"`
	Parameters map[string]float64   `json:"parameters,omitempty"`
	Fitted     []forecast.NullFloat `json:"fitted,omitempty"`
	Scenario   forecast.Scenario    `json:"forecast"`
	SSE        float64              `json:"sse"`
	Trials     int                  `json:"trials"`
	Error      string               `json:"error,omitempty"`
}

// OK reports whether the model was fitted.
func (r ModelResult) OK() bool {
	return r.Error == ""
}

// MetricsRow holds the in-sample errors of one model. Values are null for a
// failed model.
type MetricsRow struct {
	Model forecast.Model     `json:"model"`
	Name  string             `json:"name"`
	MAE   forecast.NullFloat `json:"mae"`
	RMSE  forecast.NullFloat `json:"rmse"`
	MAPE  forecast.NullFloat `json:"mape"`
}

// Summary describes the merged series. Mean and StdDev are taken over the
// target column, StdDev being the sample deviation (0 below two points).
// Both are null when they overflow.
type Summary struct {
	Observations int                `json:"observations"`
	From         string             `json:"from"`
	To           string             `json:"to"`
	Mean         forecast.NullFloat `json:"mean"`
	StdDev       forecast.NullFloat `json:"std_dev"`
}

// RunOptions echoes the settings a bundle was produced with.
type RunOptions struct {
	Horizon        int     `json:"horizon"`
	SeasonalPeriod int     `json:"seasonal_period"`
	AutoFit        bool    `json:"auto_fit"`
	BandUp         float64 `json:"band_up"`
	BandDown       float64 `json:"band_down"`
}

// ResultBundle is the immutable output of one successful run.
type ResultBundle struct {
	Summary       Summary        `json:"summary"`
	Options       RunOptions     `json:"options"`
	Dates         []string       `json:"dates"`
	Actual        []float64      `json:"actual"`
	ForecastDates []string       `json:"forecast_dates"`
	Models        []ModelResult  `json:"models"`
	Metrics       []MetricsRow   `json:"metrics"`
	BestModel     forecast.Model `json:"best_model,omitempty"`
	MergeReport   *merge.Report  `json:"merge_report,omitempty"`
}

// Model returns the result of one variant.
func (b *ResultBundle) Model(model forecast.Model) (*ModelResult, bool) {
	for i := range b.Models {
		if b.Models[i].Model == model {
			return &b.Models[i], true
		}
	}
	return nil, false
}

// ChartRow is one point of a per-model chart. Observed rows carry Actual and
// Fitted; forecast rows carry the scenario values.
type ChartRow struct {
	Date        string             `json:"date"`
	Actual      forecast.NullFloat `json:"actual"`
	Fitted      forecast.NullFloat `json:"fitted"`
	Base        forecast.NullFloat `json:"base"`
	Optimistic  forecast.NullFloat `json:"optimistic"`
	Pessimistic forecast.NullFloat `json:"pessimistic"`
}

// ChartRows lists the observed dates followed by the forecast dates of one
// model.
func ChartRows(b *ResultBundle, model forecast.Model) ([]ChartRow, error) {
	res, ok := b.Model(model)
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", model)
	}
	if !res.OK() {
		return nil, fmt.Errorf("model %s was not fitted: %s", model, res.Error)
	}

	rows := make([]ChartRow, 0, len(b.Dates)+len(b.ForecastDates))
	for i, d := range b.Dates {
		row := ChartRow{Date: d, Actual: forecast.Float(b.Actual[i])}
		if i < len(res.Fitted) {
			row.Fitted = res.Fitted[i]
		}
		rows = append(rows, row)
	}
	for i, d := range b.ForecastDates {
		rows = append(rows, ChartRow{
			Date:        d,
			Base:        forecast.Float(res.Scenario.Base[i]),
			Optimistic:  forecast.Float(res.Scenario.Optimistic[i]),
			Pessimistic: forecast.Float(res.Scenario.Pessimistic[i]),
		})
	}
	return rows, nil
}

// ForecastColumns is the header of the forecast table.
var ForecastColumns = []string{
	"date",
	"linear_base", "linear_opt", "linear_pes",
	"add_base", "add_opt", "add_pes",
	"mul_base", "mul_opt", "mul_pes",
}

// ForecastRow is one forecast date: base, optimistic and pessimistic for the
// linear, additive and multiplicative models in that order.
type ForecastRow struct {
	Date   string
	Values [9]forecast.NullFloat
}

// ForecastTable lays the scenarios of all models side by side. Columns of a
// failed model are absent.
func ForecastTable(b *ResultBundle) []ForecastRow {
	rows := make([]ForecastRow, len(b.ForecastDates))
	for i, d := range b.ForecastDates {
		rows[i].Date = d
	}
	for slot, model := range forecast.Models() {
		res, ok := b.Model(model)
		if !ok || !res.OK() {
			continue
		}
		for i := range rows {
			rows[i].Values[slot*3] = forecast.Float(res.Scenario.Base[i])
			rows[i].Values[slot*3+1] = forecast.Float(res.Scenario.Optimistic[i])
			rows[i].Values[slot*3+2] = forecast.Float(res.Scenario.Pessimistic[i])
		}
	}
	return rows
}
