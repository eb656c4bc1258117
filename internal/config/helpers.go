package config

import (
	"net"
	"strconv"

	"github.com/serenitylabs/serenity/internal/analytics/forecast"
	"github.com/serenitylabs/serenity/internal/engine"
	"github.com/serenitylabs/serenity/internal/merge"
)

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Logging.Level == "debug" && c.Logging.Format == "console"
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.HTTPPort))
}

// MaxUploadBytes returns the request body limit in bytes
func (c *RunsConfig) MaxUploadBytes() int {
	return c.MaxUploadMB * 1024 * 1024
}

// Specs returns the candidates in target, index, commodity order with
// their names filled in.
func (c *SourcesConfig) Specs() [3]merge.SourceSpec {
	specs := [3]merge.SourceSpec{c.Target, c.Index, c.Commodity}
	names := [3]string{merge.SourceTarget, merge.SourceIndex, merge.SourceCommodity}
	for i := range specs {
		specs[i].Name = names[i]
	}
	return specs
}

// EngineOptions builds the per-run defaults from configuration
func (c *Config) EngineOptions() engine.Options {
	specs := c.Sources.Specs()
	return engine.Options{
		Horizon:        c.Engine.Horizon,
		SeasonalPeriod: c.Engine.SeasonalPeriod,
		AutoFit:        c.Engine.AutoFit,
		Params: forecast.Params{
			Alpha: c.Engine.Alpha,
			Beta:  c.Engine.Beta,
			Gamma: c.Engine.Gamma,
		},
		Workers:  c.Engine.Workers,
		Strict:   c.Engine.Strict,
		BandUp:   c.Engine.BandUp,
		BandDown: c.Engine.BandDown,
		Sources:  &specs,
	}
}
