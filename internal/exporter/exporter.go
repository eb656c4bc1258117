// Package exporter serializes a run's forecast table as CSV or as an XLSX
// workbook with Forecasts and Metrics sheets.
package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/serenitylabs/serenity/internal/analytics/forecast"
	"github.com/serenitylabs/serenity/internal/engine"
)

// Format is an export container.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Sheet names of the workbook export.
const (
	SheetForecasts = "Forecasts"
	SheetMetrics   = "Metrics"
)

// MetricsColumns is the header of the metrics sheet.
var MetricsColumns = []string{"model", "name", "mae", "rmse", "mape", "best"}

// ParseFormat accepts csv and xlsx, case-insensitively. Empty means xlsx.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xlsx":
		return FormatXLSX, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export format: %s", s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileName returns the download name of the export.
func (f Format) FileName() string {
	return "serenity_forecasts." + string(f)
}

// Write exports b in the given format.
func Write(w io.Writer, b *engine.ResultBundle, format Format) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, b)
	case FormatXLSX:
		return WriteXLSX(w, b)
	}
	return fmt.Errorf("unsupported export format: %s", format)
}

// WriteCSV writes the forecast table. Absent values are empty cells.
func WriteCSV(w io.Writer, b *engine.ResultBundle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(engine.ForecastColumns); err != nil {
		return err
	}

	record := make([]string, len(engine.ForecastColumns))
	for _, row := range engine.ForecastTable(b) {
		record[0] = row.Date
		for i, v := range row.Values {
			record[i+1] = formatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the forecast table and the metrics table as two sheets.
func WriteXLSX(w io.Writer, b *engine.ResultBundle) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetForecasts); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := setRow(f, SheetForecasts, 1, toCells(engine.ForecastColumns)); err != nil {
		return err
	}
	for i, row := range engine.ForecastTable(b) {
		cells := make([]interface{}, 0, len(row.Values)+1)
		cells = append(cells, row.Date)
		for _, v := range row.Values {
			cells = append(cells, cellValue(v))
		}
		if err := setRow(f, SheetForecasts, i+2, cells); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SheetMetrics); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := setRow(f, SheetMetrics, 1, toCells(MetricsColumns)); err != nil {
		return err
	}
	for i, m := range b.Metrics {
		cells := []interface{}{
			string(m.Model), m.Name,
			cellValue(m.MAE), cellValue(m.RMSE), cellValue(m.MAPE),
			m.Model == b.BestModel,
		}
		if err := setRow(f, SheetMetrics, i+2, cells); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func cellValue(v forecast.NullFloat) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Float64
}

func formatValue(v forecast.NullFloat) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}
