package forecast

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Candidate weights searched by the optimizer, in enumeration order.
var (
	AlphaGrid        = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}
	LinearBetaGrid   = []float64{0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 0.7}
	SeasonalBetaGrid = []float64{0.01, 0.05, 0.1, 0.2, 0.3, 0.5}
	GammaGrid        = []float64{0.05, 0.1, 0.2, 0.3, 0.5}
)

// LinearCandidates enumerates alpha (outer) by beta (inner).
func LinearCandidates() []Params {
	out := make([]Params, 0, len(AlphaGrid)*len(LinearBetaGrid))
	for _, a := range AlphaGrid {
		for _, b := range LinearBetaGrid {
			out = append(out, Params{Alpha: a, Beta: b})
		}
	}
	return out
}

// SeasonalCandidates enumerates alpha, then beta, then gamma (innermost).
func SeasonalCandidates() []Params {
	out := make([]Params, 0, len(AlphaGrid)*len(SeasonalBetaGrid)*len(GammaGrid))
	for _, a := range AlphaGrid {
		for _, b := range SeasonalBetaGrid {
			for _, g := range GammaGrid {
				out = append(out, Params{Alpha: a, Beta: b, Gamma: g})
			}
		}
	}
	return out
}

// OptimizeLinear fits every linear candidate and keeps the lowest SSE.
func OptimizeLinear(ctx context.Context, y []float64, workers int) (*Fit, error) {
	return optimize(ctx, ModelLinear, LinearCandidates(), workers, func(p Params) (*FitResult, error) {
		return FitLinear(y, p.Alpha, p.Beta)
	})
}

// OptimizeSeasonal fits every seasonal candidate with period m and keeps the
// lowest SSE.
func OptimizeSeasonal(ctx context.Context, y []float64, m int, seasonalType SeasonalType, workers int) (*Fit, error) {
	return optimize(ctx, seasonalType.model(), SeasonalCandidates(), workers, func(p Params) (*FitResult, error) {
		return FitSeasonal(y, m, p.Alpha, p.Beta, p.Gamma, seasonalType)
	})
}

// optimize evaluates candidates on a bounded errgroup. Results land in
// index-addressed slots and are reduced in enumeration order, so the first
// candidate wins a tie regardless of scheduling. Failed candidates are
// skipped; the error of the first one is returned when none succeed.
func optimize(ctx context.Context, model Model, candidates []Params, workers int, fit func(Params) (*FitResult, error)) (*Fit, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]*FitResult, len(candidates))
	errs := make([]error, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], errs[i] = fit(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	best := -1
	failed := 0
	for i, res := range results {
		if errs[i] != nil {
			failed++
			continue
		}
		if best < 0 || better(res.SSE, results[best].SSE) {
			best = i
		}
	}
	if best < 0 {
		return nil, errs[0]
	}

	return &Fit{
		Model:  model,
		Params: candidates[best],
		Result: results[best],
		Trials: len(candidates),
		Failed: failed,
	}, nil
}

// better orders SSE values with non-finite ones last.
func better(sse, bestSSE float64) bool {
	if math.IsNaN(sse) || math.IsInf(sse, 0) {
		return false
	}
	if math.IsNaN(bestSSE) || math.IsInf(bestSSE, 0) {
		return true
	}
	return sse < bestSSE
}
