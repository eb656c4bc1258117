// Package tabular decodes uploaded CSV and XLSX files into rows keyed by the
// header of the first line.
package tabular

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/serenitylabs/serenity/internal/analytics"
)

// Format identifies a supported container.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	// ErrEmptyFile is returned when a file has no header row.
	ErrEmptyFile = errors.New("file has no header row")
	// ErrUnsupportedFormat is returned for containers other than CSV and XLSX.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

var zipMagic = []byte("PK\x03\x04")

// DetectFormat uses the zip signature first and the file extension second.
// Anything that is not a workbook is read as delimited text.
func DetectFormat(name string, head []byte) (Format, error) {
	if bytes.HasPrefix(head, zipMagic) {
		return FormatXLSX, nil
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return "", fmt.Errorf("%w: legacy .xls workbooks", ErrUnsupportedFormat)
	}
	return FormatCSV, nil
}

// Read decodes r, choosing the format from its content and name.
func Read(r io.Reader, name string) ([]analytics.RawRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	format, err := DetectFormat(name, data)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		return ReadXLSX(bytes.NewReader(data))
	}
	return ReadCSV(bytes.NewReader(data))
}

// ReadFile opens and decodes a file from disk.
func ReadFile(path string) ([]analytics.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return Read(f, filepath.Base(path))
}

// cellFunc converts the trimmed text of a non-blank cell. rec and col are
// zero-based positions in the records, the header being record 0.
type cellFunc func(rec, col int, v string) interface{}

// toRows maps records to RawRows using the first record as header. Blank
// cells become nil, fully blank lines are skipped, columns without a header
// are dropped and repeated headers get a _1, _2... suffix. Non-blank cells
// are kept as strings unless convert is set.
func toRows(records [][]string, convert cellFunc) ([]analytics.RawRow, error) {
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	header := uniqueHeader(records[0])
	rows := make([]analytics.RawRow, 0, len(records)-1)
	for j, rec := range records[1:] {
		row := make(analytics.RawRow, len(header))
		blank := true
		for i, name := range header {
			if name == "" {
				continue
			}
			var cell interface{}
			if i < len(rec) {
				if v := strings.TrimSpace(rec[i]); v != "" {
					cell = v
					if convert != nil {
						cell = convert(j+1, i, v)
					}
					blank = false
				}
			}
			row[name] = cell
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func uniqueHeader(raw []string) []string {
	header := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if n, ok := seen[h]; ok {
			seen[h] = n + 1
			h = h + "_" + strconv.Itoa(n+1)
		} else {
			seen[h] = 0
		}
		header[i] = h
	}
	return header
}
