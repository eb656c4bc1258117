package models

import (
	"github.com/serenitylabs/serenity/internal/analytics"
	"github.com/serenitylabs/serenity/internal/engine"
)

// RunOptions overrides the configured engine defaults for one run.
// A nil field keeps the configured value.
type RunOptions struct {
	Horizon        *int     `json:"horizon,omitempty" form:"horizon" validate:"omitempty,min=1,max=3650"`
	SeasonalPeriod *int     `json:"seasonal_period,omitempty" form:"seasonal_period" validate:"omitempty,min=1,max=3650"`
	AutoFit        *bool    `json:"auto_fit,omitempty" form:"auto_fit"`
	Alpha          *float64 `json:"alpha,omitempty" form:"alpha" validate:"omitempty,gte=0,lte=1"`
	Beta           *float64 `json:"beta,omitempty" form:"beta" validate:"omitempty,gte=0,lte=1"`
	Gamma          *float64 `json:"gamma,omitempty" form:"gamma" validate:"omitempty,gte=0,lte=1"`
	BandUp         *float64 `json:"band_up,omitempty" form:"band_up" validate:"omitempty,gte=0,lte=10"`
	BandDown       *float64 `json:"band_down,omitempty" form:"band_down" validate:"omitempty,gte=0,lte=1"`
	Strict         *bool    `json:"strict,omitempty" form:"strict"`
}

// Apply returns base with every set override applied
func (o RunOptions) Apply(base engine.Options) engine.Options {
	if o.Horizon != nil {
		base.Horizon = *o.Horizon
	}
	if o.SeasonalPeriod != nil {
		base.SeasonalPeriod = *o.SeasonalPeriod
	}
	if o.AutoFit != nil {
		base.AutoFit = *o.AutoFit
	}
	if o.Alpha != nil {
		base.Params.Alpha = *o.Alpha
	}
	if o.Beta != nil {
		base.Params.Beta = *o.Beta
	}
	if o.Gamma != nil {
		base.Params.Gamma = *o.Gamma
	}
	if o.BandUp != nil {
		base.BandUp = *o.BandUp
	}
	if o.BandDown != nil {
		base.BandDown = *o.BandDown
	}
	if o.Strict != nil {
		base.Strict = *o.Strict
	}
	return base
}

// RowsRunRequest submits already decoded rows for the three sources
type RowsRunRequest struct {
	Target    []analytics.RawRow `json:"target"`
	Index     []analytics.RawRow `json:"index"`
	Commodity []analytics.RawRow `json:"commodity"`
	Options   RunOptions         `json:"options"`
}

// CreateRunQuery holds the query parameters of the run creation endpoints
type CreateRunQuery struct {
	Wait bool `query:"wait"`
}

// ListRunsQuery holds the query parameters of the run listing endpoint
type ListRunsQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=pending processing completed failed"`
	Limit  int    `query:"limit" default:"100" validate:"min=1,max=1000"`
}

// ExportQuery holds the query parameters of the export endpoint
type ExportQuery struct {
	Format string `query:"format" default:"xlsx" validate:"oneof=csv xlsx"`
}
