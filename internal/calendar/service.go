// Package calendar implements the booking and approval operations on top
// of the day store.
package calendar

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/daybook/internal/feed"
	"github.com/dukerupert/daybook/internal/ledger"
	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/store"
)

// DayStore is the persistence the service needs.
type DayStore interface {
	GetDayOrDefault(ctx context.Context, key model.DayKey) (model.DayRecord, error)
	GetMonth(ctx context.Context, mk model.MonthKey) (model.Month, error)
	WriteMonth(ctx context.Context, mk model.MonthKey, month model.Month) error
	Update(ctx context.Context, key model.DayKey, fn store.UpdateFunc) (model.DayRecord, error)
}

// Notifier hears about booking events after they are committed. It must
// not block for long; failures are its own to handle.
type Notifier interface {
	BookingRequested(ctx context.Context, day model.DayKey, act model.Activity)
	BookingDecided(ctx context.Context, day model.DayKey, act model.Activity, approved bool)
}

type nopNotifier struct{}

func (nopNotifier) BookingRequested(context.Context, model.DayKey, model.Activity) {}
func (nopNotifier) BookingDecided(context.Context, model.DayKey, model.Activity, bool) {}

type Service struct {
	store     DayStore
	hub       *feed.Hub
	notifier  Notifier
	validator *validator.Validate
	logger    *slog.Logger
}

func NewService(ds DayStore, hub *feed.Hub, notifier Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		store:     ds,
		hub:       hub,
		notifier:  notifier,
		validator: newValidator(),
		logger:    logger,
	}
}

// GetDay returns the day, or the default record when it was never written.
func (s *Service) GetDay(ctx context.Context, key model.DayKey) (model.DayRecord, error) {
	rec, err := s.store.GetDayOrDefault(ctx, key)
	if err != nil {
		return model.DayRecord{}, storeErr("get day", err)
	}
	return rec, nil
}

// GetMonth returns the stored days of a month. Missing days are absent.
func (s *Service) GetMonth(ctx context.Context, mk model.MonthKey) (model.Month, error) {
	month, err := s.store.GetMonth(ctx, mk)
	if err != nil {
		return nil, storeErr("get month", err)
	}
	return month, nil
}

// SubmitBookingRequest records an unapproved activity on an available day.
// The day becomes pending.
func (s *Service) SubmitBookingRequest(ctx context.Context, key model.DayKey, req BookingRequest) (model.Activity, error) {
	req = req.trimmed()
	if err := s.validate(req, req.StartTime, req.EndTime); err != nil {
		return model.Activity{}, err
	}

	act, _, err := s.add(ctx, key, req.Details(), ledger.AddOptions{})
	if err != nil {
		return model.Activity{}, err
	}

	s.logger.Info("booking requested", "day", key.String(), "activity_id", act.ID)
	s.notifier.BookingRequested(ctx, key, act)
	return act, nil
}

// AdminAddActivity adds an activity on any day regardless of its status.
func (s *Service) AdminAddActivity(ctx context.Context, key model.DayKey, in ActivityInput) (model.Activity, model.DayRecord, error) {
	in = in.trimmed()
	if err := s.validate(in, in.StartTime, in.EndTime); err != nil {
		return model.Activity{}, model.DayRecord{}, err
	}

	act, rec, err := s.add(ctx, key, in.Details(), ledger.AddOptions{
		ByAdmin:        true,
		Approved:       in.Approved,
		ForceAvailable: in.ForceAvailable,
	})
	if err != nil {
		return model.Activity{}, model.DayRecord{}, err
	}
	s.logger.Info("activity added", "day", key.String(), "activity_id", act.ID, "approved", act.Approved, "status", rec.Status)
	return act, rec, nil
}

func (s *Service) add(ctx context.Context, key model.DayKey, details model.ActivityDetails, opts ledger.AddOptions) (model.Activity, model.DayRecord, error) {
	var act model.Activity
	rec, err := s.update(ctx, "add activity", key, func(day model.DayRecord) (ledger.WriteSet, error) {
		ws, a, err := ledger.AddActivity(day, details, opts)
		act = a
		return ws, err
	})
	if err != nil {
		return model.Activity{}, model.DayRecord{}, err
	}
	if stored, ok := rec.Activities[act.ID]; ok {
		act = stored
	}
	return act, rec, nil
}

// AdminSetApproval sets the approval flag of one activity. Approving a
// request tells the requester.
func (s *Service) AdminSetApproval(ctx context.Context, key model.DayKey, id string, approved, forceAvailable bool) (model.DayRecord, error) {
	var before model.Activity
	rec, err := s.update(ctx, "set approval", key, func(day model.DayRecord) (ledger.WriteSet, error) {
		before = day.Activities[id]
		return ledger.SetApproval(day, id, approved, forceAvailable)
	})
	if err != nil {
		return model.DayRecord{}, err
	}

	s.logger.Info("approval set", "day", key.String(), "activity_id", id, "approved", approved, "status", rec.Status)
	if approved && !before.Approved && before.BookedBy != nil {
		s.notifier.BookingDecided(ctx, key, rec.Activities[id], true)
	}
	return rec, nil
}

// AdminDenyActivity declines a request by removing it, then tells the
// requester.
func (s *Service) AdminDenyActivity(ctx context.Context, key model.DayKey, id string) (model.DayRecord, error) {
	var denied model.Activity
	rec, err := s.update(ctx, "deny activity", key, func(day model.DayRecord) (ledger.WriteSet, error) {
		denied = day.Activities[id]
		return ledger.RemoveActivity(day, id)
	})
	if err != nil {
		return model.DayRecord{}, err
	}

	s.logger.Info("activity denied", "day", key.String(), "activity_id", id, "status", rec.Status)
	if denied.BookedBy != nil {
		s.notifier.BookingDecided(ctx, key, denied, false)
	}
	return rec, nil
}

// AdminDeleteActivity removes an activity without telling anyone.
func (s *Service) AdminDeleteActivity(ctx context.Context, key model.DayKey, id string) (model.DayRecord, error) {
	rec, err := s.update(ctx, "delete activity", key, func(day model.DayRecord) (ledger.WriteSet, error) {
		return ledger.RemoveActivity(day, id)
	})
	if err != nil {
		return model.DayRecord{}, err
	}
	s.logger.Info("activity deleted", "day", key.String(), "activity_id", id, "status", rec.Status)
	return rec, nil
}

// AdminSetDayStatus marks a day available or unavailable.
func (s *Service) AdminSetDayStatus(ctx context.Context, key model.DayKey, status model.Status, reason string, policy ledger.OrphanPolicy) (model.DayRecord, error) {
	rec, err := s.update(ctx, "set day status", key, func(day model.DayRecord) (ledger.WriteSet, error) {
		return ledger.OverrideStatus(day, status, reason, policy)
	})
	if err != nil {
		return model.DayRecord{}, err
	}
	s.logger.Info("day status set", "day", key.String(), "status", rec.Status, "orphans", string(policy))
	return rec, nil
}

// AdminInitializeMonth overwrites a month with every day available and
// empty.
func (s *Service) AdminInitializeMonth(ctx context.Context, mk model.MonthKey) (model.Month, error) {
	month := make(model.Month, mk.DaysIn())
	for d := 1; d <= mk.DaysIn(); d++ {
		month[mk.Day(d).Segment()] = model.DefaultDay()
	}
	if err := s.store.WriteMonth(ctx, mk, month); err != nil {
		return nil, storeErr("initialize month", err)
	}
	s.logger.Info("month initialized", "month", mk.String())
	return month, nil
}

// update runs a ledger computation against the current day inside one
// store transaction. Ledger errors pass through untouched; everything
// else is a store failure.
func (s *Service) update(ctx context.Context, op string, key model.DayKey, fn func(model.DayRecord) (ledger.WriteSet, error)) (model.DayRecord, error) {
	var opErr error
	rec, err := s.store.Update(ctx, key, func(day model.DayRecord) (map[string]any, error) {
		ws, err := fn(day)
		if err != nil {
			opErr = err
			return nil, err
		}
		return ws, nil
	})
	if opErr != nil {
		return model.DayRecord{}, opErr
	}
	if err != nil {
		s.logger.Error("store update failed", "op", op, "day", key.String(), "error", err)
		return model.DayRecord{}, storeErr(op, err)
	}
	return rec, nil
}
