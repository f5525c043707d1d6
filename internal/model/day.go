package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RootPath is the top of the calendar tree. Every day lives at
// calendarByDate/<YYYY>/<MM>/<DD>.
const RootPath = "calendarByDate"

type Status string

const (
	StatusAvailable   Status = "available"
	StatusPending     Status = "pending"
	StatusScheduled   Status = "scheduled"
	StatusUnavailable Status = "unavailable"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusPending, StatusScheduled, StatusUnavailable:
		return true
	}
	return false
}

// DayKey addresses one calendar date.
type DayKey struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDayKey returns a key for the given date, rejecting dates that do not exist.
func NewDayKey(year int, month time.Month, day int) (DayKey, error) {
	mk, err := NewMonthKey(year, month)
	if err != nil {
		return DayKey{}, err
	}
	if day < 1 || day > mk.DaysIn() {
		return DayKey{}, fmt.Errorf("day %d out of range for %s", day, mk)
	}
	return DayKey{Year: year, Month: month, Day: day}, nil
}

// ParseDayKey parses a YYYY-MM-DD date.
func ParseDayKey(s string) (DayKey, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return DayKey{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DayKey{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (k DayKey) MonthKey() MonthKey {
	return MonthKey{Year: k.Year, Month: k.Month}
}

// Segment is the two-digit day component used as the key inside a Month.
func (k DayKey) Segment() string {
	return fmt.Sprintf("%02d", k.Day)
}

func (k DayKey) Path() string {
	return k.MonthKey().Path() + "/" + k.Segment()
}

func (k DayKey) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, int(k.Month), k.Day)
}

// Date returns midnight of the day in loc.
func (k DayKey) Date(loc *time.Location) time.Time {
	return time.Date(k.Year, k.Month, k.Day, 0, 0, 0, 0, loc)
}

func (k DayKey) Weekday() time.Weekday {
	return k.Date(time.UTC).Weekday()
}

// MonthKey addresses one calendar month.
type MonthKey struct {
	Year  int
	Month time.Month
}

func NewMonthKey(year int, month time.Month) (MonthKey, error) {
	if year < 1 || year > 9999 {
		return MonthKey{}, fmt.Errorf("year %d out of range", year)
	}
	if month < time.January || month > time.December {
		return MonthKey{}, fmt.Errorf("month %d out of range", int(month))
	}
	return MonthKey{Year: year, Month: month}, nil
}

// ParseMonthKey parses a YYYY-MM month.
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthKey{}, fmt.Errorf("parse month %q: %w", s, err)
	}
	return MonthKey{Year: t.Year(), Month: t.Month()}, nil
}

func (m MonthKey) Path() string {
	return fmt.Sprintf("%s/%04d/%02d", RootPath, m.Year, int(m.Month))
}

func (m MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// DaysIn returns the number of days in the month.
func (m MonthKey) DaysIn() int {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Day returns the key of day d of the month. d is not validated.
func (m MonthKey) Day(d int) DayKey {
	return DayKey{Year: m.Year, Month: m.Month, Day: d}
}

func (m MonthKey) Next() MonthKey {
	t := time.Date(m.Year, m.Month+1, 1, 0, 0, 0, 0, time.UTC)
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// ParseDayPath splits an absolute path into the day it addresses and the
// remainder below the day node ("" when the path is the day itself).
func ParseDayPath(path string) (DayKey, string, error) {
	parts := strings.SplitN(strings.Trim(path, "/"), "/", 5)
	if len(parts) < 4 || parts[0] != RootPath {
		return DayKey{}, "", fmt.Errorf("path %q is not below a day", path)
	}
	if len(parts[2]) != 2 || len(parts[3]) != 2 {
		return DayKey{}, "", fmt.Errorf("path %q: month and day must be two digits", path)
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return DayKey{}, "", fmt.Errorf("path %q: bad year: %w", path, err)
	}
	month, err := strconv.Atoi(parts[2])
	if err != nil {
		return DayKey{}, "", fmt.Errorf("path %q: bad month: %w", path, err)
	}
	day, err := strconv.Atoi(parts[3])
	if err != nil {
		return DayKey{}, "", fmt.Errorf("path %q: bad day: %w", path, err)
	}
	key, err := NewDayKey(year, time.Month(month), day)
	if err != nil {
		return DayKey{}, "", fmt.Errorf("path %q: %w", path, err)
	}
	rest := ""
	if len(parts) == 5 {
		rest = parts[4]
	}
	return key, rest, nil
}
