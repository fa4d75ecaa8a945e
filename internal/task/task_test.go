package task

import (
	"strings"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodStart(t *testing.T) {
	tests := []struct {
		name      string
		day       time.Time
		period    Period
		weekStart time.Weekday
		want      time.Time
	}{
		{"day is its own start", date(2026, time.March, 11), Days, time.Sunday, date(2026, time.March, 11)},
		{"wednesday normalizes to sunday", date(2026, time.March, 11), Weeks, time.Sunday, date(2026, time.March, 8)},
		{"sunday stays sunday", date(2026, time.March, 8), Weeks, time.Sunday, date(2026, time.March, 8)},
		{"wednesday with monday weeks", date(2026, time.March, 11), Weeks, time.Monday, date(2026, time.March, 9)},
		{"monday with monday weeks", date(2026, time.March, 9), Weeks, time.Monday, date(2026, time.March, 9)},
		{"mid-month to first", date(2026, time.March, 11), Months, time.Sunday, date(2026, time.March, 1)},
		{"mid-year to jan 1", date(2026, time.March, 11), Year, time.Sunday, date(2026, time.January, 1)},
		{"time of day is dropped", time.Date(2026, time.March, 11, 17, 30, 2, 0, time.UTC), Days, time.Sunday, date(2026, time.March, 11)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PeriodStart(tt.day, tt.period, tt.weekStart)
			if !got.Equal(tt.want) {
				t.Errorf("PeriodStart(%v, %s) = %v, want %v", tt.day, tt.period, got, tt.want)
			}
		})
	}
}

func TestPreviousPeriodStart(t *testing.T) {
	tests := []struct {
		name      string
		day       time.Time
		period    Period
		weekStart time.Weekday
		want      time.Time
	}{
		{"previous day", date(2026, time.March, 11), Days, time.Sunday, date(2026, time.March, 10)},
		{"previous week", date(2026, time.March, 11), Weeks, time.Sunday, date(2026, time.March, 1)},
		{"previous month", date(2026, time.March, 11), Months, time.Sunday, date(2026, time.February, 1)},
		{"previous month across year", date(2026, time.January, 15), Months, time.Sunday, date(2025, time.December, 1)},
		{"previous year", date(2026, time.March, 11), Year, time.Sunday, date(2025, time.January, 1)},
		{"first of month", date(2026, time.March, 1), Days, time.Sunday, date(2026, time.February, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PreviousPeriodStart(tt.day, tt.period, tt.weekStart)
			if !got.Equal(tt.want) {
				t.Errorf("PreviousPeriodStart(%v, %s) = %v, want %v", tt.day, tt.period, got, tt.want)
			}
		})
	}
}

func TestParsePeriod(t *testing.T) {
	for _, p := range Periods {
		got, err := ParsePeriod(string(p))
		if err != nil {
			t.Errorf("ParsePeriod(%q) failed: %v", p, err)
		}
		if got != p {
			t.Errorf("ParsePeriod(%q) = %q", p, got)
		}
	}

	if _, err := ParsePeriod("fortnights"); err == nil {
		t.Error("ParsePeriod(fortnights) should fail")
	}
	if _, err := ParsePeriod(""); err == nil {
		t.Error("ParsePeriod of empty string should fail")
	}
}

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if len(id) != idLength {
			t.Fatalf("NewID() length = %d, want %d", len(id), idLength)
		}
		for _, c := range id {
			if !strings.ContainsRune(idAlphabet, c) {
				t.Fatalf("NewID() = %q contains %q outside the alphabet", id, c)
			}
		}
		if seen[id] {
			t.Fatalf("NewID() produced duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestFieldsOf(t *testing.T) {
	orig := Task{
		ID: "abc", Name: "write tests", Complete: true,
		SortOrder: 3, Period: Weeks, Date: "2026-03-08", Updated: 42,
	}
	f := FieldsOf(orig)

	if *f.Name != orig.Name || *f.Complete != orig.Complete ||
		*f.SortOrder != orig.SortOrder || *f.Period != orig.Period ||
		*f.Date != orig.Date || f.Updated != orig.Updated {
		t.Errorf("FieldsOf(%+v) = %+v", orig, f)
	}

	// The field set must be a copy, not aliased to the task.
	orig.Name = "changed"
	if *f.Name == "changed" {
		t.Error("FieldsOf aliases the task's fields")
	}
}
