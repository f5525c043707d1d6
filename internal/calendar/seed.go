package calendar

import (
	"context"
	"strings"
	"time"

	"github.com/dukerupert/daybook/internal/availability"
	"github.com/dukerupert/daybook/internal/model"
)

type sampleDay struct {
	date       string
	activities []model.Activity
}

func notes(s string) *string { return &s }

var sampleDays = []sampleDay{
	{"2025-05-15", []model.Activity{
		{ID: "seed_act_1", Title: "Team Meeting", StartTime: "10:00 AM", EndTime: "11:00 AM", ActivityType: "Meeting", Notes: notes("Project updates."), Approved: true},
		{ID: "seed_act_2", Title: "User Yoga Request", StartTime: "05:00 PM", EndTime: "06:00 PM", ActivityType: "Yoga", Notes: notes("Gentle Hatha."),
			BookedBy: &model.BookedBy{Name: "Test User", Email: "user@example.com"}},
	}},
	{"2025-05-20", []model.Activity{
		{ID: "seed_act_3", Title: "Admin Confirmed Workshop", StartTime: "01:00 PM", EndTime: "03:00 PM", ActivityType: "Workshop", Notes: notes("Internal only."), Approved: true},
	}},
	{"2025-06-05", []model.Activity{
		{ID: "seed_act_4", Title: "Workshop Day 1", StartTime: "09:00 AM", EndTime: "05:00 PM", ActivityType: "Full Day Workshop", Approved: true},
	}},
	{"2025-07-04", []model.Activity{
		{ID: "seed_act_6", Title: "Client Onboarding", StartTime: "11:00 AM", EndTime: "12:30 PM", ActivityType: "Meeting", Approved: true},
	}},
}

// DemoMonth builds a month of fixture data. Sundays, days ending in 8 and
// every second Tuesday are unavailable; a handful of dates in mid 2025 get
// sample activities when they are otherwise free.
func DemoMonth(mk model.MonthKey, submittedAt time.Time) model.Month {
	month := make(model.Month, mk.DaysIn())
	tuesdays := 0
	for d := 1; d <= mk.DaysIn(); d++ {
		key := mk.Day(d)
		var reasons []string
		if key.Weekday() == time.Sunday {
			reasons = append(reasons, "Weekend")
		}
		if d%10 == 8 {
			reasons = append(reasons, "Special Block")
		}
		if key.Weekday() == time.Tuesday {
			tuesdays++
			if tuesdays%2 == 0 {
				reasons = append(reasons, "Mid-week Break")
			}
		}

		rec := model.DefaultDay()
		if len(reasons) > 0 {
			reason := strings.Join(reasons, ", ")
			rec = model.DayRecord{Status: model.StatusUnavailable, Reason: &reason}
		}
		month[key.Segment()] = rec
	}

	for _, sample := range sampleDays {
		key, err := model.ParseDayKey(sample.date)
		if err != nil || key.MonthKey() != mk {
			continue
		}
		rec := month[key.Segment()]
		if rec.Status != model.StatusAvailable {
			continue
		}
		rec.Activities = make(map[string]model.Activity, len(sample.activities))
		for _, a := range sample.activities {
			a.SubmittedAt = submittedAt
			rec.Activities[a.ID] = a
		}
		rec.Status = availability.ComputeStatus(rec.Activities, false)
		month[key.Segment()] = rec
	}
	return month
}

// SeedDemoMonth overwrites a month with DemoMonth.
func (s *Service) SeedDemoMonth(ctx context.Context, mk model.MonthKey) (model.Month, error) {
	month := DemoMonth(mk, time.Now().UTC())
	if err := s.store.WriteMonth(ctx, mk, month); err != nil {
		return nil, storeErr("seed month", err)
	}
	s.logger.Info("month seeded", "month", mk.String())
	return month, nil
}
