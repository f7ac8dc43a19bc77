// Package clock provides the canonical day-boundary helpers. Every
// "today" computation in the service uses a fixed UTC+9 offset so that
// day boundaries match the marketplace's local calendar regardless of
// server timezone.
package clock

import (
	"fmt"
	"time"
)

// DayFormat is the wire format for calendar-day strings.
const DayFormat = "2006-01-02"

var seoul = time.FixedZone("Asia/Seoul", 9*60*60)

// DayOf returns the calendar day of t in the fixed UTC+9 zone.
func DayOf(t time.Time) string {
	return t.In(seoul).Format(DayFormat)
}

// Today returns the current calendar day in the fixed UTC+9 zone.
func Today() string {
	return DayOf(time.Now())
}

// ParseDay validates a calendar-day string.
func ParseDay(s string) (string, error) {
	t, err := time.ParseInLocation(DayFormat, s, seoul)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t.Format(DayFormat), nil
}
