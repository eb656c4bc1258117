// Package merge aligns the target, index and commodity sources into one
// daily series keyed by ISO date.
package merge

import (
	"sort"
	"strings"

	"github.com/serenitylabs/serenity/internal/analytics"
	"github.com/serenitylabs/serenity/internal/normalize"
)

// Source names used in reports and configuration.
const (
	SourceTarget    = "target"
	SourceIndex     = "index"
	SourceCommodity = "commodity"
)

// Row drop reasons recorded in strict mode.
const (
	ReasonMissingDate   = "missing_date"
	ReasonMissingValue  = "missing_value"
	ReasonDuplicateDate = "duplicate_date"
)

// SourceSpec lists the accepted column names of one source. The first
// candidate present with a non-nil value is used.
type SourceSpec struct {
	Name        string   `mapstructure:"name"`
	DateFields  []string `mapstructure:"date_fields"`
	ValueFields []string `mapstructure:"value_fields"`
}

// DefaultSpecs returns the column candidates of the equity, index and
// commodity exports: the localized name first, then English fallbacks.
func DefaultSpecs() [3]SourceSpec {
	dates := []string{"Дата", "date", "Date"}
	return [3]SourceSpec{
		{Name: SourceTarget, DateFields: dates, ValueFields: []string{"Цена last", "Close", "Last"}},
		{Name: SourceIndex, DateFields: dates, ValueFields: []string{"Значение", "Value", "Close"}},
		{Name: SourceCommodity, DateFields: dates, ValueFields: []string{"Цена", "Price", "WTI"}},
	}
}

// RowIssue describes one dropped or overridden row.
type RowIssue struct {
	Source string `json:"source"`
	Row    int    `json:"row"` // zero-based index into the source rows
	Reason string `json:"reason"`
}

// SourceStats counts rows per source.
type SourceStats struct {
	Rows     int `json:"rows"`
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

// Report summarizes a merge. Issues is only filled in strict mode.
type Report struct {
	Sources map[string]SourceStats `json:"sources"`
	Issues  []RowIssue             `json:"issues,omitempty"`
	Merged  int                    `json:"merged"`
}

// Option configures a Merger.
type Option func(*Merger)

// WithSpecs overrides the column candidates.
func WithSpecs(specs [3]SourceSpec) Option {
	return func(m *Merger) {
		m.specs = specs
	}
}

// WithStrict makes the merger record every dropped row in the report.
func WithStrict(strict bool) Option {
	return func(m *Merger) {
		m.strict = strict
	}
}

// Merger joins three row sets on the normalized date.
type Merger struct {
	specs  [3]SourceSpec
	strict bool
}

// New creates a Merger with the default column candidates.
func New(opts ...Option) *Merger {
	m := &Merger{specs: DefaultSpecs()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MergeByDate merges with default settings. An empty result means the
// sources share no date with complete data; it is not an error.
func MergeByDate(target, index, commodity []analytics.RawRow) analytics.MergedSeries {
	series, _ := New().Merge(target, index, commodity)
	return series
}

type partial struct {
	point      analytics.MergedPoint
	hasTarget  bool
	hasA, hasB bool
}

// Merge normalizes each source, joins them by ISO date and keeps only dates
// present in all three, sorted ascending.
func (m *Merger) Merge(target, index, commodity []analytics.RawRow) (analytics.MergedSeries, *Report) {
	report := &Report{Sources: make(map[string]SourceStats, 3)}
	byDate := make(map[string]*partial)

	sources := [3][]analytics.RawRow{target, index, commodity}
	for i, rows := range sources {
		spec := m.specs[i]
		points, stats, issues := m.normalize(spec, rows)
		report.Sources[spec.Name] = stats
		report.Issues = append(report.Issues, issues...)

		for _, p := range points {
			key := normalize.FormatISODate(p.Time)
			rec, ok := byDate[key]
			if !ok {
				t, _ := normalize.DateFromISO(key)
				rec = &partial{point: analytics.MergedPoint{Date: key, Time: t}}
				byDate[key] = rec
			}
			switch i {
			case 0:
				rec.point.Target, rec.hasTarget = p.Value, true
			case 1:
				rec.point.CovariateA, rec.hasA = p.Value, true
			case 2:
				rec.point.CovariateB, rec.hasB = p.Value, true
			}
		}
	}

	merged := make(analytics.MergedSeries, 0, len(byDate))
	for _, rec := range byDate {
		if rec.hasTarget && rec.hasA && rec.hasB {
			merged = append(merged, rec.point)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})

	report.Merged = len(merged)
	return merged, report
}

// normalize maps rows to dated values; rows missing either are dropped.
func (m *Merger) normalize(spec SourceSpec, rows []analytics.RawRow) ([]analytics.TimeSeriesPoint, SourceStats, []RowIssue) {
	stats := SourceStats{Rows: len(rows)}
	points := make([]analytics.TimeSeriesPoint, 0, len(rows))
	var issues []RowIssue
	seen := make(map[string]int)

	for i, row := range rows {
		d, ok := normalize.ParseDate(lookup(row, spec.DateFields))
		if !ok {
			stats.Dropped++
			if m.strict {
				issues = append(issues, RowIssue{Source: spec.Name, Row: i, Reason: ReasonMissingDate})
			}
			continue
		}
		v, ok := normalize.ParseNumber(lookup(row, spec.ValueFields))
		if !ok {
			stats.Dropped++
			if m.strict {
				issues = append(issues, RowIssue{Source: spec.Name, Row: i, Reason: ReasonMissingValue})
			}
			continue
		}

		if m.strict {
			key := normalize.FormatISODate(d)
			if prev, dup := seen[key]; dup {
				issues = append(issues, RowIssue{Source: spec.Name, Row: prev, Reason: ReasonDuplicateDate})
			}
			seen[key] = i
		}
		stats.Accepted++
		points = append(points, analytics.TimeSeriesPoint{Time: d, Value: v})
	}
	return points, stats, issues
}

// lookup returns the first non-nil value among the candidate columns. Exact
// names win; a case-insensitive, space-trimmed match is the fallback.
func lookup(row analytics.RawRow, candidates []string) interface{} {
	for _, name := range candidates {
		if v, ok := row[name]; ok && v != nil {
			return v
		}
	}
	for _, name := range candidates {
		for key, v := range row {
			if v != nil && strings.EqualFold(strings.TrimSpace(key), name) {
				return v
			}
		}
	}
	return nil
}
