// Package task defines the planner's single entity type and the calendar
// bucketing rules shared by the local store, the sync engine, and the
// remote endpoint.
package task

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Period is the granularity bucket a task belongs to.
type Period string

const (
	Days   Period = "days"
	Weeks  Period = "weeks"
	Months Period = "months"
	Year   Period = "year"
)

// Periods lists all valid period tags.
var Periods = []Period{Days, Weeks, Months, Year}

// Valid reports whether p is one of the known period tags.
func (p Period) Valid() bool {
	switch p {
	case Days, Weeks, Months, Year:
		return true
	}
	return false
}

// ParsePeriod converts a string to a Period, erroring on unknown tags.
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown period %q (want days, weeks, months or year)", s)
	}
	return p, nil
}

// DateLayout is the short ISO form used for the date column and the wire.
const DateLayout = "2006-01-02"

// Task is a single planner entry. Date is always a period start, never an
// arbitrary day; Updated is the epoch-millisecond conflict-resolution clock.
type Task struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Complete  bool   `json:"complete"`
	SortOrder int    `json:"sort_order"`
	Period    Period `json:"period"`
	Date      string `json:"date"`
	Updated   int64  `json:"updated"`
}

// Fields is a partial field set, used for update calls and for the sync
// wire format. Nil pointers mean "leave unchanged".
type Fields struct {
	Name      *string `json:"name,omitempty"`
	Complete  *bool   `json:"complete,omitempty"`
	SortOrder *int    `json:"sort_order,omitempty"`
	Period    *Period `json:"period,omitempty"`
	Date      *string `json:"date,omitempty"`
	Updated   int64   `json:"updated,omitempty"`
}

// FieldsOf returns the full field set of t, as enqueued for an upsert.
func FieldsOf(t Task) Fields {
	name, complete, sortOrder, period, date := t.Name, t.Complete, t.SortOrder, t.Period, t.Date
	return Fields{
		Name:      &name,
		Complete:  &complete,
		SortOrder: &sortOrder,
		Period:    &period,
		Date:      &date,
		Updated:   t.Updated,
	}
}

// PeriodStart normalizes day to the start of the period containing it.
// Week starts are configurable; the original planner defaulted to Sunday.
func PeriodStart(day time.Time, p Period, weekStart time.Weekday) time.Time {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	switch p {
	case Weeks:
		diff := (int(start.Weekday()) - int(weekStart) + 7) % 7
		return start.AddDate(0, 0, -diff)
	case Months:
		return time.Date(y, m, 1, 0, 0, 0, 0, day.Location())
	case Year:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, day.Location())
	default: // Days
		return start
	}
}

// PreviousPeriodStart returns the start of the period immediately before
// the one containing day.
func PreviousPeriodStart(day time.Time, p Period, weekStart time.Weekday) time.Time {
	switch p {
	case Weeks:
		return PeriodStart(day.AddDate(0, 0, -7), p, weekStart)
	case Months:
		return PeriodStart(day.AddDate(0, -1, 0), p, weekStart)
	case Year:
		return PeriodStart(day.AddDate(-1, 0, 0), p, weekStart)
	default:
		return PeriodStart(day.AddDate(0, 0, -1), p, weekStart)
	}
}

// ISODate formats a time as the short ISO date used on the wire and in the
// date column.
func ISODate(t time.Time) string {
	return t.Format(DateLayout)
}

// idAlphabet omits 0/1/l and uppercase to avoid ambiguous characters in
// hand-typed or logged ids.
const (
	idAlphabet = "23456789abcdefghijkmnopqrstuvwxyz"
	idLength   = 12
)

// NewID returns a fresh client-side task id: 12 characters drawn from a
// fixed unambiguous alphabet.
func NewID() string {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("task: reading random bytes: %v", err))
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf)
}
