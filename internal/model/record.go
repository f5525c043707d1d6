package model

import (
	"sort"
	"time"
)

type BookedBy struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ActivityDetails is what a caller supplies when adding an activity.
type ActivityDetails struct {
	Title        string
	StartTime    string
	EndTime      string
	ActivityType string
	Notes        string
	BookedBy     *BookedBy
}

// Activity is one booking request or confirmed engagement on a day.
// StartTime and EndTime are wall-clock strings on the owning day.
type Activity struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	StartTime    string    `json:"startTime"`
	EndTime      string    `json:"endTime"`
	ActivityType string    `json:"activityType"`
	Notes        *string   `json:"notes"`
	BookedBy     *BookedBy `json:"bookedBy"`
	Approved     bool      `json:"approved"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// DayRecord is the booking state of one date.
type DayRecord struct {
	Status     Status              `json:"status"`
	Reason     *string             `json:"reason"`
	Activities map[string]Activity `json:"activities"`
}

// DefaultDay is the state of a date that has never been written.
func DefaultDay() DayRecord {
	return DayRecord{Status: StatusAvailable}
}

func (d DayRecord) HasActivities() bool {
	return len(d.Activities) > 0
}

// Clone returns a deep copy.
func (d DayRecord) Clone() DayRecord {
	out := DayRecord{Status: d.Status}
	if d.Reason != nil {
		r := *d.Reason
		out.Reason = &r
	}
	if d.Activities != nil {
		out.Activities = make(map[string]Activity, len(d.Activities))
		for id, a := range d.Activities {
			out.Activities[id] = a.clone()
		}
	}
	return out
}

// SortedActivities returns the activities ordered by start time, then
// submission time, then id.
func (d DayRecord) SortedActivities() []Activity {
	out := make([]Activity, 0, len(d.Activities))
	for _, a := range d.Activities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, iok := ParseClock(out[i].StartTime)
		tj, jok := ParseClock(out[j].StartTime)
		if iok && jok && ti != tj {
			return ti < tj
		}
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (a Activity) clone() Activity {
	if a.Notes != nil {
		n := *a.Notes
		a.Notes = &n
	}
	if a.BookedBy != nil {
		b := *a.BookedBy
		a.BookedBy = &b
	}
	return a
}

// Month is the wire shape of calendarByDate/<YYYY>/<MM>: stored days keyed
// by two-digit day number.
type Month map[string]DayRecord

// Day returns the record for day d, or the default when absent.
func (m Month) Day(d int) DayRecord {
	if rec, ok := m[DayKey{Day: d}.Segment()]; ok {
		return rec
	}
	return DefaultDay()
}

var clockLayouts = []string{"03:04 PM", "3:04 PM", "15:04", "3:04PM", "03:04PM"}

// ParseClock parses a wall-clock string such as "10:00 AM" or "14:30" and
// returns the offset from midnight.
func ParseClock(s string) (time.Duration, bool) {
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, true
		}
	}
	return 0, false
}

// Redacted returns a copy with requester contact details removed, for
// readers who are not admins.
func (d DayRecord) Redacted() DayRecord {
	out := d.Clone()
	for id, a := range out.Activities {
		a.BookedBy = nil
		out.Activities[id] = a
	}
	return out
}

// Redacted applies DayRecord.Redacted to every day.
func (m Month) Redacted() Month {
	out := make(Month, len(m))
	for seg, rec := range m {
		out[seg] = rec.Redacted()
	}
	return out
}
