package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/serenitylabs/serenity/internal/analytics"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// candidate delimiters in preference order for ties
var delimiters = []rune{',', ';', '\t'}

// ReadCSV decodes delimited text. The delimiter is sniffed from the header
// line and a UTF-8 byte order mark is dropped.
func ReadCSV(r io.Reader) ([]analytics.RawRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return toRows(records, nil)
}

// sniffDelimiter counts candidate delimiters outside quotes on the first line.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	counts := make(map[rune]int, len(delimiters))
	inQuotes := false
	for _, r := range string(line) {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best := delimiters[0]
	for _, d := range delimiters[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}
