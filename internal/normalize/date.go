package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/serenitylabs/serenity/internal/utils"
)

// dayFirstPattern matches D.M.Y, D-M-Y and D/M/Y with 1-2 digit day and month.
var dayFirstPattern = regexp.MustCompile(`^(\d{1,2})[./-](\d{1,2})[./-](\d{2,4})$`)

// calendarLayouts are tried in order before the day-first pattern. Layouts
// without a zone are read as UTC.
var calendarLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006/01/02",
	"2006-1-2",
	"2006/1/2",
	"2006-01",
	time.RFC1123Z,
	time.RFC1123,
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Mon Jan 2 2006",
}

// ParseDate converts a raw cell value into a calendar date.
//
// time.Time values are returned unchanged unless zero. Strings are first tried
// against common calendar layouts (ISO 8601, RFC 1123, English month names)
// and then against the day-first D.M.Y pattern, where two-digit years map to
// 2000+YY and the result is UTC midnight. Day and month are range checked, so
// "40.13.2024" and "31.02.2024" are rejected. Numbers are not dates.
func ParseDate(raw interface{}) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return *v, true
	case string:
		return parseDateString(v)
	case []byte:
		return parseDateString(string(v))
	default:
		return time.Time{}, false
	}
}

func parseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range calendarLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	m := dayFirstPattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > daysIn(time.Month(month), year) {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FormatISODate renders t as YYYY-MM-DD in UTC. It is the merge key.
func FormatISODate(t time.Time) string {
	return t.UTC().Format(utils.ISODateLayout)
}

// DateFromISO parses a merge key back into UTC midnight.
func DateFromISO(key string) (time.Time, error) {
	return time.Parse(utils.ISODateLayout, key)
}
