package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Serial numbers outside this range are not dates a report would carry;
// 2958465 is 9999-12-31 in the 1900 date system.
const (
	minSerial = 1
	maxSerial = 2958465
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"01/02/06",
	"1-2-06",
	"01-02-06",
	"Jan 2, 2006",
	"2-Jan-06",
	"02-Jan-2006",
}

// ParseDate reads a report date cell. Raw cells hold Excel serial numbers;
// hand-typed cells hold text in one of a handful of US formats. The result
// is the calendar date at UTC midnight.
func ParseDate(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return truncate(v), true
	case float64:
		return fromSerial(v)
	case int:
		return fromSerial(float64(v))
	case string:
		return parseDateText(v)
	default:
		return time.Time{}, false
	}
}

func parseDateText(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromSerial(f)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncate(t), true
		}
	}
	return time.Time{}, false
}

func fromSerial(f float64) (time.Time, bool) {
	if f < minSerial || f > maxSerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return time.Time{}, false
	}
	return truncate(t), true
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
