// Package export renders calendar months for other tools.
package export

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/dukerupert/daybook/internal/model"
)

// MonthData is one month of stored days.
type MonthData struct {
	Key  model.MonthKey
	Days model.Month
}

// ICSOptions controls calendar feed output.
type ICSOptions struct {
	Name     string
	Location *time.Location
	// Place is written to each event's LOCATION.
	Place string
	Now   time.Time
}

// ICS writes approved activities as an iCalendar feed. Requester names and
// emails are left out.
func ICS(w io.Writer, months []MonthData, opts ICSOptions) error {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	stamp := opts.Now
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//daybook//calendar//EN")
	if opts.Name != "" {
		cal.SetName(opts.Name)
		cal.SetXWRCalName(opts.Name)
	}
	cal.SetXWRTimezone(loc.String())

	for _, m := range months {
		for _, seg := range sortedSegments(m.Days) {
			d, err := strconv.Atoi(seg)
			if err != nil {
				continue
			}
			day := m.Key.Day(d)
			for _, act := range m.Days[seg].SortedActivities() {
				if !act.Approved {
					continue
				}
				start, end, ok := activitySpan(day, act, loc)
				if !ok {
					continue
				}
				event := cal.AddEvent(act.ID + "@daybook")
				event.SetDtStampTime(stamp.UTC())
				event.SetStartAt(start)
				event.SetEndAt(end)
				event.SetSummary(act.Title)
				if act.ActivityType != "" {
					event.SetProperty(ics.ComponentPropertyCategories, act.ActivityType)
				}
				if opts.Place != "" {
					event.SetLocation(opts.Place)
				}
			}
		}
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("write calendar: %w", err)
	}
	return nil
}

// activitySpan resolves an activity's wall-clock times on day. An end at
// or before the start rolls over to the next day.
func activitySpan(day model.DayKey, act model.Activity, loc *time.Location) (time.Time, time.Time, bool) {
	from, ok := model.ParseClock(act.StartTime)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	to, ok := model.ParseClock(act.EndTime)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	start := wallClock(day, from, loc)
	end := wallClock(day, to, loc)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, true
}

func wallClock(day model.DayKey, offset time.Duration, loc *time.Location) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(day.Year, day.Month, day.Day, h, m, 0, 0, loc)
}

func sortedSegments(month model.Month) []string {
	segs := make([]string, 0, len(month))
	for seg := range month {
		segs = append(segs, seg)
	}
	sort.Strings(segs)
	return segs
}
