package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-9

func TestFitLinear_FittedShape(t *testing.T) {
	for _, n := range []int{3, 4, 50, 500} {
		y := generateSeasonalSeries(n, 12, 20, 0.3, 4)
		res, err := FitLinear(y, 0.4, 0.2)
		if err != nil {
			t.Fatalf("n=%d: FitLinear failed: %v", n, err)
		}
		if len(res.Fitted) != n {
			t.Fatalf("n=%d: expected %d fitted values, got %d", n, n, len(res.Fitted))
		}
		if res.Fitted[0].Valid {
			t.Errorf("n=%d: fitted[0] should be absent", n)
		}
		for i := 1; i < n; i++ {
			if !res.Fitted[i].Valid || math.IsNaN(res.Fitted[i].Float64) || math.IsInf(res.Fitted[i].Float64, 0) {
				t.Fatalf("n=%d: fitted[%d] should be present and finite, got %+v", n, i, res.Fitted[i])
			}
		}
	}
}

func TestFitLinear_KnownValues(t *testing.T) {
	res, err := FitLinear([]float64{1, 3, 2}, 0.5, 0.5)
	if err != nil {
		t.Fatalf("FitLinear failed: %v", err)
	}
	if res.Fitted[1].Float64 != 3 || res.Fitted[2].Float64 != 5 {
		t.Errorf("unexpected fitted values: %+v", res.Fitted)
	}
	if res.Level != 3.5 || res.Trend != 1.25 {
		t.Errorf("unexpected final state: L=%v B=%v", res.Level, res.Trend)
	}
	if res.SSE != 9 {
		t.Errorf("expected SSE 9, got %v", res.SSE)
	}
}

func TestFitLinear_PerfectLine(t *testing.T) {
	y := generateLinearSeries(20, 2, 5)
	res, err := FitLinear(y, 0.3, 0.1)
	if err != nil {
		t.Fatalf("FitLinear failed: %v", err)
	}
	if res.SSE > tolerance {
		t.Errorf("a straight line should fit exactly, SSE=%v", res.SSE)
	}
	next := res.Forecast(1)[0]
	if math.Abs(next-(2*20+5)) > tolerance {
		t.Errorf("expected next value 45, got %v", next)
	}
}

func TestFitLinear_InsufficientData(t *testing.T) {
	for _, n := range []int{0, 1, 2} {
		_, err := FitLinear(generateLinearSeries(n, 1, 0), 0.3, 0.1)
		if !errors.Is(err, ErrInsufficientData) {
			t.Errorf("n=%d: expected ErrInsufficientData, got %v", n, err)
		}
	}
}

func TestForecastLinear(t *testing.T) {
	out := ForecastLinear(10, 2.5, 4)
	if len(out) != 4 {
		t.Fatalf("expected 4 values, got %d", len(out))
	}
	if out[0] != 12.5 {
		t.Errorf("first step should be L+B, got %v", out[0])
	}
	if out[3] != 20 {
		t.Errorf("fourth step should be L+4B, got %v", out[3])
	}
	if len(ForecastLinear(1, 1, 0)) != 0 {
		t.Error("zero horizon should produce no values")
	}
}

func TestFitSeasonal_Additive_KnownValues(t *testing.T) {
	res, err := FitSeasonal([]float64{1, 3, 2, 4, 3, 5}, 2, 0.5, 0.5, 0.5, SeasonalAdditive)
	if err != nil {
		t.Fatalf("FitSeasonal failed: %v", err)
	}
	want := []float64{0.96875, 3.8046875, 2.216796875, 4.96435546875}
	for i, w := range want {
		got := res.Fitted[i+2]
		if !got.Valid || math.Abs(got.Float64-w) > tolerance {
			t.Errorf("fitted[%d] = %+v, want %v", i+2, got, w)
		}
	}
	if math.Abs(res.Level-4.152099609375) > tolerance || math.Abs(res.Trend-0.4176025390625) > tolerance {
		t.Errorf("unexpected final state: L=%v B=%v", res.Level, res.Trend)
	}
	if math.Abs(res.Seasonal[0]+0.92138671875) > tolerance || math.Abs(res.Seasonal[1]-0.8389892578125) > tolerance {
		t.Errorf("unexpected seasonal state: %v", res.Seasonal)
	}
	if math.Abs(res.SSE-1.7163012027740479) > tolerance {
		t.Errorf("unexpected SSE: %v", res.SSE)
	}
}

func TestFitSeasonal_Multiplicative_KnownValues(t *testing.T) {
	res, err := FitSeasonal([]float64{1, 3, 2, 4, 3, 5}, 2, 0.5, 0.5, 0.5, SeasonalMultiplicative)
	if err != nil {
		t.Fatalf("FitSeasonal failed: %v", err)
	}
	if math.Abs(res.Fitted[2].Float64-1.0120738636363638) > tolerance {
		t.Errorf("unexpected fitted[2]: %v", res.Fitted[2])
	}
	if math.Abs(res.SSE-8.672433243117407) > tolerance {
		t.Errorf("unexpected SSE: %v", res.SSE)
	}
}

func TestFitSeasonal_FittedAbsentForFirstSeason(t *testing.T) {
	const m = 12
	y := generateSeasonalSeries(120, m, 50, 0.1, 10)
	for _, st := range []SeasonalType{SeasonalAdditive, SeasonalMultiplicative} {
		res, err := FitSeasonal(y, m, 0.3, 0.1, 0.1, st)
		if err != nil {
			t.Fatalf("%s: FitSeasonal failed: %v", st, err)
		}
		if len(res.Fitted) != len(y) {
			t.Fatalf("%s: fitted length %d, want %d", st, len(res.Fitted), len(y))
		}
		for i, f := range res.Fitted {
			if i < m && f.Valid {
				t.Errorf("%s: fitted[%d] should be absent", st, i)
			}
			if i >= m && !f.Valid {
				t.Errorf("%s: fitted[%d] should be present", st, i)
			}
		}
		if len(res.Seasonal) != m {
			t.Errorf("%s: expected %d seasonal factors, got %d", st, m, len(res.Seasonal))
		}
	}
}

func TestFitSeasonal_InsufficientData(t *testing.T) {
	y := generateLinearSeries(25, 1, 1)
	_, err := FitSeasonal(y, 12, 0.3, 0.1, 0.1, SeasonalAdditive)
	var ide *InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if ide.Need != 26 || ide.Have != 25 || ide.Model != ModelAdditive {
		t.Errorf("unexpected error details: %+v", ide)
	}

	if _, err := FitSeasonal(generateLinearSeries(26, 1, 1), 12, 0.3, 0.1, 0.1, SeasonalAdditive); err != nil {
		t.Errorf("2m+2 points should be enough, got %v", err)
	}
}

func TestFitSeasonal_InvalidPeriod(t *testing.T) {
	_, err := FitSeasonal(generateLinearSeries(10, 1, 1), 0, 0.3, 0.1, 0.1, SeasonalAdditive)
	if !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestFitSeasonal_MultiplicativeZeroSeries(t *testing.T) {
	y := make([]float64, 30)
	res, err := FitSeasonal(y, 7, 0.3, 0.1, 0.1, SeasonalMultiplicative)
	if err != nil {
		t.Fatalf("FitSeasonal failed: %v", err)
	}
	for i, f := range res.Fitted {
		if f.Valid && (math.IsNaN(f.Float64) || math.IsInf(f.Float64, 0)) {
			t.Fatalf("fitted[%d] should be finite on an all-zero series, got %v", i, f.Float64)
		}
	}
}

func TestForecastSeasonal(t *testing.T) {
	seasonal := []float64{1, 2, 3}
	add := ForecastSeasonal(10, 1, seasonal, 3, 5, SeasonalAdditive)
	wantAdd := []float64{12, 14, 16, 15, 17}
	for i := range wantAdd {
		if add[i] != wantAdd[i] {
			t.Errorf("additive[%d] = %v, want %v", i, add[i], wantAdd[i])
		}
	}

	mul := ForecastSeasonal(10, 1, seasonal, 3, 4, SeasonalMultiplicative)
	wantMul := []float64{11, 24, 39, 14}
	for i := range wantMul {
		if mul[i] != wantMul[i] {
			t.Errorf("multiplicative[%d] = %v, want %v", i, mul[i], wantMul[i])
		}
	}
}

func TestForecastSeasonal_Horizon(t *testing.T) {
	y := generateSeasonalSeries(100, 10, 50, 0.2, 5)
	res, err := FitSeasonal(y, 10, 0.3, 0.1, 0.1, SeasonalAdditive)
	if err != nil {
		t.Fatalf("FitSeasonal failed: %v", err)
	}
	out := res.Forecast(25)
	if len(out) != 25 {
		t.Errorf("expected 25 values, got %d", len(out))
	}
	assertAllFinite(t, "forecast", out)
}

func TestLinearForecaster_ManualModeClampsParams(t *testing.T) {
	cfg := Config{AutoFit: false, Params: Params{Alpha: 1.7, Beta: math.NaN(), Gamma: -3}}
	fit, err := NewLinearForecaster().Fit(context.Background(), generateLinearSeries(10, 1, 0), cfg)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if fit.Params.Alpha != 1 || fit.Params.Beta != DefaultBeta || fit.Params.Gamma != 0 {
		t.Errorf("unexpected params: %+v", fit.Params)
	}
	if fit.Trials != 1 {
		t.Errorf("manual mode should run one trial, got %d", fit.Trials)
	}
}

func TestHoltWintersForecaster_ManualMode(t *testing.T) {
	y := generateSeasonalSeries(60, 12, 50, 0.1, 5)
	cfg := Config{SeasonalPeriod: 12, Params: Params{Alpha: 0.3, Beta: 0.1, Gamma: -0.5}}
	fit, err := NewHoltWintersForecaster(SeasonalMultiplicative).Fit(context.Background(), y, cfg)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if fit.Model != ModelMultiplicative {
		t.Errorf("expected multiplicative model, got %s", fit.Model)
	}
	if fit.Params.Gamma != 0 {
		t.Errorf("negative gamma should clamp to 0, got %v", fit.Params.Gamma)
	}

	want, _ := FitSeasonal(y, 12, 0.3, 0.1, 0, SeasonalMultiplicative)
	if fit.Result.SSE != want.SSE {
		t.Errorf("manual fit should equal direct fit: %v != %v", fit.Result.SSE, want.SSE)
	}
}

func TestHoltWintersForecaster_Name(t *testing.T) {
	if NewHoltWintersForecaster(SeasonalAdditive).Name() != ModelAdditive {
		t.Error("additive forecaster has wrong name")
	}
	if NewHoltWintersForecaster(SeasonalMultiplicative).Name() != ModelMultiplicative {
		t.Error("multiplicative forecaster has wrong name")
	}
}
