package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/serenitylabs/serenity/internal/analytics"
	"github.com/serenitylabs/serenity/internal/engine"
	"github.com/serenitylabs/serenity/internal/exporter"
	"github.com/serenitylabs/serenity/internal/tabular"
)

type forecastOptions struct {
	targetPath    string
	indexPath     string
	commodityPath string

	horizon  int
	period   int
	manual   bool
	alpha    float64
	beta     float64
	gamma    float64
	bandUp   float64
	bandDown float64
	strict   bool

	outPath string
	format  string
}

func newForecastCmd(g *globalOptions) *cobra.Command {
	o := &forecastOptions{}

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Fit the three models to local files and print their metrics",
		Example: `  serenityctl forecast --target exxon.xlsx --index sp500.csv --commodity wti.csv
  serenityctl forecast -t exxon.csv -i sp500.csv -m wti.csv --horizon 90 --out forecast.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForecast(cmd, g, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.targetPath, "target", "t", "", "target price file (CSV or XLSX)")
	f.StringVarP(&o.indexPath, "index", "i", "", "market index file (CSV or XLSX)")
	f.StringVarP(&o.commodityPath, "commodity", "m", "", "commodity price file (CSV or XLSX)")
	f.IntVar(&o.horizon, "horizon", 0, "forecast steps in days (default from config)")
	f.IntVar(&o.period, "period", 0, "seasonal period in observations (default from config)")
	f.BoolVar(&o.manual, "manual", false, "use the given alpha, beta and gamma instead of the grid search")
	f.Float64Var(&o.alpha, "alpha", 0, "level smoothing weight for --manual")
	f.Float64Var(&o.beta, "beta", 0, "trend smoothing weight for --manual")
	f.Float64Var(&o.gamma, "gamma", 0, "seasonal smoothing weight for --manual")
	f.Float64Var(&o.bandUp, "band-up", 0, "optimistic scenario fraction")
	f.Float64Var(&o.bandDown, "band-down", 0, "pessimistic scenario fraction")
	f.BoolVar(&o.strict, "strict", false, "report rows dropped during normalization")
	f.StringVarP(&o.outPath, "out", "o", "", "write the forecast table to this file")
	f.StringVar(&o.format, "format", "", "export format: csv or xlsx (default from --out extension)")

	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("index")
	_ = cmd.MarkFlagRequired("commodity")

	return cmd
}

func runForecast(cmd *cobra.Command, g *globalOptions, o *forecastOptions) error {
	cfg, logger, err := g.load(cmd)
	if err != nil {
		return err
	}

	opts := cfg.EngineOptions()
	o.apply(cmd, &opts)

	var input engine.Input
	for _, src := range []struct {
		path string
		rows *[]analytics.RawRow
	}{
		{o.targetPath, &input.Target},
		{o.indexPath, &input.Index},
		{o.commodityPath, &input.Commodity},
	} {
		rows, err := tabular.ReadFile(src.path)
		if err != nil {
			return fmt.Errorf("read %s: %w", src.path, err)
		}
		logger.Debug("Source loaded", "path", src.path, "rows", len(rows))
		*src.rows = rows
	}

	stderr := cmd.ErrOrStderr()
	opts.Progress = func(percent int, stage string) {
		fmt.Fprintf(stderr, "[%3d%%] %s\n", percent, stage)
	}

	bundle, err := engine.Run(cmd.Context(), input, opts)
	if err != nil {
		var verr *engine.ValidationError
		switch {
		case errors.As(err, &verr), errors.Is(err, engine.ErrMissingSource):
			return fmt.Errorf("%w (Загрузите все три набора данных)", err)
		case errors.Is(err, engine.ErrEmptyMerge):
			return fmt.Errorf("%w (Не удалось объединить данные по датам)", err)
		}
		return err
	}

	if err := printReport(cmd.OutOrStdout(), bundle); err != nil {
		return err
	}

	if o.outPath == "" {
		return nil
	}
	format, err := o.exportFormat()
	if err != nil {
		return err
	}
	if err := writeExport(o.outPath, bundle, format); err != nil {
		return err
	}
	logger.Info("Forecast exported", "path", o.outPath, "format", format)
	return nil
}

// apply overrides the configured options with the flags the user set
func (o *forecastOptions) apply(cmd *cobra.Command, opts *engine.Options) {
	f := cmd.Flags()
	if f.Changed("horizon") {
		opts.Horizon = o.horizon
	}
	if f.Changed("period") {
		opts.SeasonalPeriod = o.period
	}
	if o.manual {
		opts.AutoFit = false
	}
	if f.Changed("alpha") {
		opts.Params.Alpha = o.alpha
	}
	if f.Changed("beta") {
		opts.Params.Beta = o.beta
	}
	if f.Changed("gamma") {
		opts.Params.Gamma = o.gamma
	}
	if f.Changed("band-up") {
		opts.BandUp = o.bandUp
	}
	if f.Changed("band-down") {
		opts.BandDown = o.bandDown
	}
	if f.Changed("strict") {
		opts.Strict = o.strict
	}
}

func (o *forecastOptions) exportFormat() (exporter.Format, error) {
	name := o.format
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(o.outPath), ".")
	}
	return exporter.ParseFormat(name)
}

func writeExport(path string, bundle *engine.ResultBundle, format exporter.Format) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := exporter.Write(f, bundle, format); err != nil {
		_ = f.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	return f.Close()
}

// printReport writes the merged range and the metrics table
func printReport(w io.Writer, bundle *engine.ResultBundle) error {
	fmt.Fprintf(w, "Observations: %d (%s .. %s)\n", bundle.Summary.Observations, bundle.Summary.From, bundle.Summary.To)
	fmt.Fprintf(w, "Horizon: %d days, seasonal period %d, auto fit %t\n\n",
		bundle.Options.Horizon, bundle.Options.SeasonalPeriod, bundle.Options.AutoFit)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tMAE\tRMSE\tMAPE\tBEST")
	for _, row := range bundle.Metrics {
		best := ""
		if row.Model == bundle.BestModel {
			best = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.Name,
			formatMetric(row.MAE.Float64, row.MAE.Valid),
			formatMetric(row.RMSE.Float64, row.RMSE.Valid),
			formatMetric(row.MAPE.Float64, row.MAPE.Valid),
			best,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, m := range bundle.Models {
		if !m.OK() {
			fmt.Fprintf(w, "\n%s: %s\n", m.Name, m.Error)
		}
	}
	return nil
}

func formatMetric(v float64, valid bool) string {
	if !valid {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}
