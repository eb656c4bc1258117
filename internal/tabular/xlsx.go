package tabular

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/serenitylabs/serenity/internal/analytics"
)

// ReadXLSX decodes the first sheet of a workbook. Cells are read without
// number formatting so thousands separators and locale date layouts never
// reach the normalizer; cells styled with a date format become time.Time.
func ReadXLSX(r io.Reader) ([]analytics.RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	records, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	dates := &dateCells{f: f, sheet: sheets[0], styles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		dates.date1904 = *props.Date1904
	}
	return toRows(records, dates.convert)
}

// dateCells turns serial numbers in date-formatted cells into times. Style
// lookups are cached per style index.
type dateCells struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

func (d *dateCells) convert(rec, col int, v string) interface{} {
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return v
	}
	name, err := excelize.CoordinatesToCellName(col+1, rec+1)
	if err != nil {
		return v
	}
	idx, err := d.f.GetCellStyle(d.sheet, name)
	if err != nil || idx == 0 {
		return v
	}

	isDate, ok := d.styles[idx]
	if !ok {
		isDate = d.isDateStyle(idx)
		d.styles[idx] = isDate
	}
	if !isDate {
		return v
	}

	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return v
	}
	return t
}

func (d *dateCells) isDateStyle(idx int) bool {
	style, err := d.f.GetStyle(idx)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return isDateFormat(*style.CustomNumFmt)
	}
	return isBuiltInDateFormat(style.NumFmt)
}

// isBuiltInDateFormat reports the built-in number formats that render dates,
// including the East Asian locale ranges.
func isBuiltInDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22:
		return true
	case id >= 27 && id <= 36:
		return true
	case id >= 45 && id <= 47:
		return true
	case id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormat looks for date or time tokens outside quoted literals,
// escapes and bracketed sections such as colors and locales.
func isDateFormat(code string) bool {
	code = strings.ToLower(code)
	if code == "" || code == "general" || code == "@" {
		return false
	}

	inQuote, inBracket := false, false
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case inQuote:
			inQuote = c != '"'
		case inBracket:
			inBracket = c != ']'
		case c == '"':
			inQuote = true
		case c == '[':
			inBracket = true
		case c == '\\' || c == '_' || c == '*':
			i++
		case c == ';':
			// only the positive section decides
			return false
		case strings.IndexByte("ymdhs", c) >= 0:
			return true
		}
	}
	return false
}
