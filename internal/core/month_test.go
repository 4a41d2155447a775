package core

import (
	"errors"
	"testing"
	"time"
)

func TestPreviousMonth(t *testing.T) {
	cases := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC), "2024-03"},
		{time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), "2024-03"},
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "2023-12"},
		{time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC), "2024-02"},
		{time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC), "2025-11"},
	}
	for _, tc := range cases {
		if got := PreviousMonth(tc.now).String(); got != tc.want {
			t.Fatalf("PreviousMonth(%s) = %s, want %s", tc.now, got, tc.want)
		}
	}
}

func TestPreviousMonthUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	// 2024-04-01 00:30 local is still March in UTC.
	now := time.Date(2024, 4, 1, 0, 30, 0, 0, loc)
	if got := PreviousMonth(now).String(); got != "2024-03" {
		t.Fatalf("local previous month = %s", got)
	}
	if got := PreviousMonth(now.UTC()).String(); got != "2024-02" {
		t.Fatalf("utc previous month = %s", got)
	}
}

func TestMonthRangeIsHalfOpen(t *testing.T) {
	m := Month{Year: 2024, Month: time.February}
	start, end := m.Range(time.UTC)
	if !start.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %s", start)
	}
	if !end.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("end = %s", end)
	}
	if !InRange(start, start, end) {
		t.Fatal("start must be included")
	}
	if InRange(end, start, end) {
		t.Fatal("end must be excluded")
	}
	if !InRange(end.Add(-time.Nanosecond), start, end) {
		t.Fatal("last instant must be included")
	}
	if InRange(start.Add(-time.Nanosecond), start, end) {
		t.Fatal("instant before start must be excluded")
	}
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2024-03")
	if err != nil || m.Year != 2024 || m.Month != time.March {
		t.Fatalf("unexpected %v %v", m, err)
	}
	if m.String() != "2024-03" {
		t.Fatalf("round trip %s", m)
	}
	for _, bad := range []string{"", "2024-13", "24-03", "2024/03"} {
		if _, err := ParseMonth(bad); !errors.Is(err, ErrInvalidMonth) {
			t.Fatalf("%q expected ErrInvalidMonth, got %v", bad, err)
		}
	}
	if !(Month{2023, time.December}).Before(Month{2024, time.January}) {
		t.Fatal("expected December 2023 before January 2024")
	}
}
