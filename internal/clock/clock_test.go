package clock

import (
	"testing"
	"time"
)

func TestDayOf_RollsOverAtUTCPlus9(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want string
	}{
		{"utc morning is same day", time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC), "2026-08-31"},
		{"utc 14:59 is same day", time.Date(2026, 8, 31, 14, 59, 59, 0, time.UTC), "2026-08-31"},
		{"utc 15:00 is next day", time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC), "2026-09-01"},
		{"utc late evening is next day", time.Date(2026, 12, 31, 16, 0, 0, 0, time.UTC), "2027-01-01"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DayOf(tc.in); got != tc.want {
				t.Errorf("DayOf(%v) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}

func TestDayOf_IgnoresInputZone(t *testing.T) {
	// The same instant expressed in different zones must land on the
	// same calendar day.
	instant := time.Date(2026, 8, 31, 20, 0, 0, 0, time.UTC)
	other := instant.In(time.FixedZone("UTC-8", -8*60*60))

	if DayOf(instant) != DayOf(other) {
		t.Errorf("DayOf differs by input zone: %s vs %s", DayOf(instant), DayOf(other))
	}
}

func TestParseDay(t *testing.T) {
	got, err := ParseDay("2026-08-31")
	if err != nil {
		t.Fatalf("ParseDay failed: %v", err)
	}
	if got != "2026-08-31" {
		t.Errorf("Expected 2026-08-31, got %s", got)
	}

	for _, bad := range []string{"", "31-08-2026", "2026/08/31", "2026-13-01", "2026-08-32", "today"} {
		if _, err := ParseDay(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}
