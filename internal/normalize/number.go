// Package normalize turns locale-variant raw cell values into canonical
// numbers and UTC calendar dates.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/serenitylabs/serenity/internal/utils"
)

const unicodeMinus = '\u2212'

// ParseNumber converts a raw cell value into a finite float64.
//
// Strings are cleaned before parsing: the Unicode minus sign becomes '-', all
// whitespace (including non-breaking spaces) is removed, a lone comma is read
// as the decimal separator and commas next to a period are thousands
// separators. The longest numeric prefix is parsed and trailing text ignored.
// Blank, "nan", non-numeric and non-finite inputs report false.
func ParseNumber(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case time.Time, *time.Time:
		return 0, false
	case string:
		return parseNumberString(v)
	case []byte:
		return parseNumberString(string(v))
	case fmt.Stringer:
		return parseNumberString(v.String())
	}

	if f, ok := utils.ToFloat64(raw); ok {
		if !utils.IsFinite(f) {
			return 0, false
		}
		return f, true
	}
	return parseNumberString(fmt.Sprint(raw))
}

func parseNumberString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, false
	}

	s = strings.Map(func(r rune) rune {
		if r == unicodeMinus {
			return '-'
		}
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && !hasDot:
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma && hasDot:
		s = strings.ReplaceAll(s, ",", "")
	}

	prefix := leadingFloat(s)
	if prefix == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(prefix, 64)
	if err != nil || !utils.IsFinite(f) {
		return 0, false
	}
	return f, true
}

// leadingFloat returns the longest prefix of s that is a decimal float
// literal: [sign] digits [. digits] [e [sign] digits]. At least one mantissa
// digit is required; an exponent without digits is not consumed.
func leadingFloat(s string) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits > 0 || frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return ""
	}

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		start := j
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if j > start {
			i = j
		}
	}
	return s[:i]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
