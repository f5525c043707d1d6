package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewDayKeyRejectsImpossibleDates(t *testing.T) {
	cases := []struct {
		year  int
		month time.Month
		day   int
		ok    bool
	}{
		{2025, time.February, 28, true},
		{2025, time.February, 29, false},
		{2024, time.February, 29, true},
		{2025, time.April, 31, false},
		{2025, 13, 1, false},
		{2025, time.May, 0, false},
	}
	for _, c := range cases {
		_, err := NewDayKey(c.year, c.month, c.day)
		if (err == nil) != c.ok {
			t.Errorf("NewDayKey(%d, %d, %d) err = %v, want ok=%v", c.year, c.month, c.day, err, c.ok)
		}
	}
}

func TestDayKeyPath(t *testing.T) {
	k, err := NewDayKey(2025, time.May, 8)
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	if got := k.Path(); got != "calendarByDate/2025/05/08" {
		t.Errorf("path = %q", got)
	}
	if got := k.String(); got != "2025-05-08" {
		t.Errorf("string = %q", got)
	}
}

func TestParseDayPath(t *testing.T) {
	key, rest, err := ParseDayPath("calendarByDate/2025/05/15/activities/abc/approved")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if key != (DayKey{2025, time.May, 15}) {
		t.Errorf("key = %v", key)
	}
	if rest != "activities/abc/approved" {
		t.Errorf("rest = %q", rest)
	}

	_, rest, err = ParseDayPath("calendarByDate/2025/05/15")
	if err != nil || rest != "" {
		t.Errorf("day path: rest=%q err=%v", rest, err)
	}

	for _, bad := range []string{"calendarByDate/2025/05", "other/2025/05/15", "calendarByDate/2025/5/15", "calendarByDate/2025/02/30"} {
		if _, _, err := ParseDayPath(bad); err == nil {
			t.Errorf("ParseDayPath(%q) should fail", bad)
		}
	}
}

func TestDaysIn(t *testing.T) {
	if got := (MonthKey{2025, time.February}).DaysIn(); got != 28 {
		t.Errorf("feb 2025 = %d", got)
	}
	if got := (MonthKey{2025, time.July}).DaysIn(); got != 31 {
		t.Errorf("jul 2025 = %d", got)
	}
	if got := (MonthKey{2025, time.December}).Next(); got != (MonthKey{2026, time.January}) {
		t.Errorf("next = %v", got)
	}
}

func TestDefaultDayWireShape(t *testing.T) {
	data, err := json.Marshal(DefaultDay())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"status":"available","reason":null,"activities":null}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestSortedActivities(t *testing.T) {
	d := DayRecord{
		Status: StatusPending,
		Activities: map[string]Activity{
			"b": {ID: "b", StartTime: "05:00 PM"},
			"a": {ID: "a", StartTime: "10:00 AM"},
			"c": {ID: "c", StartTime: "13:30"},
		},
	}
	got := d.SortedActivities()
	if got[0].ID != "a" || got[1].ID != "c" || got[2].ID != "b" {
		t.Errorf("order = %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestCloneIsDeep(t *testing.T) {
	notes := "bring mat"
	d := DayRecord{Status: StatusPending, Activities: map[string]Activity{"a": {ID: "a", Notes: &notes}}}
	c := d.Clone()
	*c.Activities["a"].Notes = "changed"
	c.Activities["b"] = Activity{ID: "b"}
	if *d.Activities["a"].Notes != "bring mat" {
		t.Error("clone shares notes pointer")
	}
	if len(d.Activities) != 1 {
		t.Error("clone shares activities map")
	}
}

func TestMonthRedacted(t *testing.T) {
	m := Month{"15": {Status: StatusPending, Activities: map[string]Activity{
		"a": {ID: "a", Title: "Yoga", BookedBy: &BookedBy{Name: "Test User", Email: "user@example.com"}},
	}}}

	r := m.Redacted()
	if r["15"].Activities["a"].BookedBy != nil {
		t.Error("bookedBy should be removed")
	}
	if r["15"].Activities["a"].Title != "Yoga" || r["15"].Status != StatusPending {
		t.Errorf("redacted = %+v", r["15"])
	}
	if m["15"].Activities["a"].BookedBy == nil {
		t.Error("original must not be modified")
	}
	if len(Month(nil).Redacted()) != 0 {
		t.Error("nil month should redact to empty")
	}
}
