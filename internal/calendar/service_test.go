package calendar

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/daybook/internal/availability"
	"github.com/dukerupert/daybook/internal/database"
	"github.com/dukerupert/daybook/internal/feed"
	"github.com/dukerupert/daybook/internal/ledger"
	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/store"
)

type event struct {
	kind     string
	day      model.DayKey
	act      model.Activity
	approved bool
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *fakeNotifier) BookingRequested(_ context.Context, day model.DayKey, act model.Activity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{kind: "requested", day: day, act: act})
}

func (n *fakeNotifier) BookingDecided(_ context.Context, day model.DayKey, act model.Activity, approved bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{kind: "decided", day: day, act: act, approved: approved})
}

func (n *fakeNotifier) all() []event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]event(nil), n.events...)
}

func setupService(t *testing.T) (*Service, *fakeNotifier) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hub := feed.NewHub(slog.Default())
	n := &fakeNotifier{}
	return NewService(store.NewDayStore(db, hub), hub, n, slog.Default()), n
}

func dayKey(t *testing.T, s string) model.DayKey {
	t.Helper()
	k, err := model.ParseDayKey(s)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

var yogaRequest = BookingRequest{
	Name:         "Test User",
	Email:        "user@example.com",
	Title:        "Yoga",
	StartTime:    "05:00 PM",
	EndTime:      "06:00 PM",
	ActivityType: "Yoga",
	Description:  "Gentle Hatha.",
}

func assertConsistent(t *testing.T, rec model.DayRecord) {
	t.Helper()
	if !availability.Consistent(rec) {
		t.Errorf("day inconsistent: %+v", rec)
	}
}

func TestSubmitBookingRequest(t *testing.T) {
	svc, n := setupService(t)
	ctx := context.Background()
	k := dayKey(t, "2025-05-15")

	act, err := svc.SubmitBookingRequest(ctx, k, yogaRequest)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if act.Approved {
		t.Error("request must be unapproved")
	}
	if act.BookedBy == nil || act.BookedBy.Email != "user@example.com" {
		t.Errorf("bookedBy = %+v", act.BookedBy)
	}
	if act.SubmittedAt.IsZero() {
		t.Error("submittedAt not set")
	}

	rec, err := svc.GetDay(ctx, k)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", rec.Status)
	}
	assertConsistent(t, rec)

	events := n.all()
	if len(events) != 1 || events[0].kind != "requested" || events[0].act.ID != act.ID {
		t.Errorf("events = %+v", events)
	}
}

func TestSubmitBookingRequestRejectedUnlessAvailable(t *testing.T) {
	svc, n := setupService(t)
	ctx := context.Background()
	k := dayKey(t, "2025-05-15")

	if _, err := svc.SubmitBookingRequest(ctx, k, yogaRequest); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	// The day is now pending.
	if _, err := svc.SubmitBookingRequest(ctx, k, yogaRequest); !errors.Is(err, ErrNotBookable) {
		t.Fatalf("second submit: err = %v, want ErrNotBookable", err)
	}

	closed := dayKey(t, "2025-05-16")
	if _, err := svc.AdminSetDayStatus(ctx, closed, model.StatusUnavailable, "Holiday", ledger.OrphansUnspecified); err != nil {
		t.Fatalf("close day: %v", err)
	}
	if _, err := svc.SubmitBookingRequest(ctx, closed, yogaRequest); !errors.Is(err, ErrNotBookable) {
		t.Errorf("unavailable day: err = %v, want ErrNotBookable", err)
	}

	rec, _ := svc.GetDay(ctx, closed)
	if rec.HasActivities() {
		t.Error("rejected request was written")
	}
	if got := len(n.all()); got != 1 {
		t.Errorf("notifications = %d, want 1", got)
	}
}

func TestSubmitBookingRequestValidation(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	k := dayKey(t, "2025-05-15")

	cases := []struct {
		name  string
		edit  func(*BookingRequest)
		field string
	}{
		{"missing name", func(r *BookingRequest) { r.Name = "   " }, "name"},
		{"bad email", func(r *BookingRequest) { r.Email = "not-an-email" }, "email"},
		{"missing description", func(r *BookingRequest) { r.Description = "" }, "description"},
		{"bad time", func(r *BookingRequest) { r.StartTime = "teatime" }, "startTime"},
		{"end before start", func(r *BookingRequest) { r.EndTime = "04:00 PM" }, "endTime"},
	}
	for _, c := range cases {
		req := yogaRequest
		c.edit(&req)
		_, err := svc.SubmitBookingRequest(ctx, k, req)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%s: err = %v, want ErrInvalidRequest", c.name, err)
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Fields[0].Field != c.field {
			t.Errorf("%s: fields = %+v, want %s", c.name, ve, c.field)
		}
	}

	rec, _ := svc.GetDay(ctx, k)
	if rec.Status != model.StatusAvailable {
		t.Errorf("invalid requests changed the day: %s", rec.Status)
	}
}

func TestApprovalFlow(t *testing.T) {
	svc, n := setupService(t)
	ctx := context.Background()
	k := dayKey(t, "2025-05-15")

	act, err := svc.SubmitBookingRequest(ctx, k, yogaRequest)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	rec, err := svc.AdminSetApproval(ctx, k, act.ID, true, false)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if rec.Status != model.StatusScheduled {
		t.Errorf("status = %s, want scheduled", rec.Status)
	}
	assertConsistent(t, rec)

	events := n.all()
	if len(events) != 2 || events[1].kind != "decided" || !events[1].approved {
		t.Errorf("events = %+v", events)
	}

	// Approving again does not mail twice.
	if _, err := svc.AdminSetApproval(ctx, k, act.ID, true, false); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if got := len(n.all()); got != 2 {
		t.Errorf("notifications = %d, want 2", got)
	}

	if _, err := svc.AdminSetApproval(ctx, k, "missing", true, false); !errors.Is(err, ErrActivityNotFound) {
		t.Errorf("unknown id: err = %v", err)
	}
}

func TestPendingDominatesForcedAvailable(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	k := dayKey(t, "2025-05-15")

	if _, err := svc.SubmitBookingRequest(ctx, k, yogaRequest); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, rec, err := svc.AdminAddActivity(ctx, k, ActivityInput{
		Title: "Team Meeting", StartTime: "10:00 AM", EndTime: "11:00 AM",
		Approved: true, ForceAvailable: true,
	})
	if err != nil {
		t.Fatalf("admin add: %v", err)
	}
	if rec.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", rec.Status)
	}
	assertConsistent(t, rec)
}

func TestAdminAddActivityForcedAvailable(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	k := dayKey(t, "2025-05-15")

	act, rec, err := svc.AdminAddActivity(ctx, k, ActivityInput{
		Title: "Open Studio", StartTime: "09:00 AM", EndTime: "10:00 AM",
		Approved: true, ForceAvailable: true,
	})
	if err != nil {
		t.Fatalf("admin add: %v", err)
	}
	if !act.Approved || act.BookedBy != nil {
		t.Errorf("activity = %+v", act)
	}
	if rec.Status != model.StatusAvailable {
		t.Errorf("status = %s, want available", rec.Status)
	}

	// The forced day is bookable again.
	if _, err := svc.SubmitBookingRequest(ctx, k, yogaRequest); err != nil {
		t.Errorf("submit on forced day: %v", err)
	}
}

func TestAdminAddActivityOnUnavailableDay(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	k := dayKey(t, "2025-05-18")

	if _, err := svc.AdminSetDayStatus(ctx, k, model.StatusUnavailable, "Weekend", ledger.OrphansUnspecified); err != nil {
		t.Fatalf("set unavailable: %v", err)
	}
	act, rec, err := svc.AdminAddActivity(ctx, k, ActivityInput{Title: "Private Session", StartTime: "09:00 AM", EndTime: "10:00 AM", Approved: true})
	if err != nil {
		t.Fatalf("admin add: %v", err)
	}
	if rec.Status != model.StatusScheduled {
		t.Errorf("status = %s, want scheduled", rec.Status)
	}
	if rec.Reason != nil {
		t.Errorf("reason = %q on a scheduled day", *rec.Reason)
	}

	rec, err = svc.AdminDeleteActivity(ctx, k, act.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Status != model.StatusAvailable || rec.Reason != nil || rec.Activities != nil {
		t.Errorf("after delete = %+v", rec)
	}
}

func TestApprovalOnUnavailableDayDropsReason(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	k := dayKey(t, "2025-05-15")

	act, err := svc.SubmitBookingRequest(ctx, k, yogaRequest)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.AdminSetDayStatus(ctx, k, model.StatusUnavailable, "Retreat", ledger.OrphansUnspecified); err != nil {
		t.Fatalf("set unavailable: %v", err)
	}
	rec, err := svc.AdminSetApproval(ctx, k, act.ID, true, false)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if rec.Status != model.StatusScheduled || rec.Reason != nil {
		t.Errorf("after approve = %+v", rec)
	}
}

func TestSetDayStatusUnavailableIsIdempotent(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	k := dayKey(t, "2025-05-20")

	first, err := svc.AdminSetDayStatus(ctx, k, model.StatusUnavailable, "Holiday", ledger.OrphansUnspecified)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.AdminSetDayStatus(ctx, k, model.StatusUnavailable, "Holiday", ledger.OrphansUnspecified)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	stored, err := svc.GetDay(ctx, k)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(first, second) || !reflect.DeepEqual(second, stored) {
		t.Errorf("records differ:\nfirst  %+v\nsecond %+v\nstored %+v", first, second, stored)
	}
	if stored.Status != model.StatusUnavailable || stored.Reason == nil || *stored.Reason != "Holiday" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestDenyRemovesRequest(t *testing.T) {
	svc, n := setupService(t)
	ctx := context.Background()
	k := dayKey(t, "2025-05-15")

	act, _ := svc.SubmitBookingRequest(ctx, k, yogaRequest)
	rec, err := svc.AdminDenyActivity(ctx, k, act.ID)
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	if rec.Status != model.StatusAvailable || rec.Activities != nil {
		t.Errorf("after deny = %+v", rec)
	}

	events := n.all()
	last := events[len(events)-1]
	if last.kind != "decided" || last.approved || last.act.ID != act.ID {
		t.Errorf("last event = %+v", last)
	}

	if _, err := svc.AdminDenyActivity(ctx, k, act.ID); !errors.Is(err, ErrActivityNotFound) {
		t.Errorf("second deny: err = %v", err)
	}
}

func TestDeleteLastActivityClearsActivities(t *testing.T) {
	svc, n := setupService(t)
	ctx := context.Background()
	k := dayKey(t, "2025-05-20")

	act, _, err := svc.AdminAddActivity(ctx, k, ActivityInput{Title: "Workshop", StartTime: "01:00 PM", EndTime: "03:00 PM", Approved: true})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	rec, err := svc.AdminDeleteActivity(ctx, k, act.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Status != model.StatusAvailable || rec.Activities != nil {
		t.Errorf("after delete = %+v", rec)
	}
	if got := len(n.all()); got != 0 {
		t.Errorf("delete notified %d times", got)
	}
}

func TestSetDayStatusUnavailableThenBack(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	k := dayKey(t, "2025-05-15")

	act, _ := svc.SubmitBookingRequest(ctx, k, yogaRequest)

	rec, err := svc.AdminSetDayStatus(ctx, k, model.StatusUnavailable, "Holiday", ledger.OrphansUnspecified)
	if err != nil {
		t.Fatalf("set unavailable: %v", err)
	}
	if rec.Status != model.StatusUnavailable || rec.Reason == nil || *rec.Reason != "Holiday" {
		t.Errorf("unavailable day = %+v", rec)
	}
	if _, ok := rec.Activities[act.ID]; !ok {
		t.Error("activities must survive an unavailable override")
	}

	if _, err := svc.AdminSetDayStatus(ctx, k, model.StatusAvailable, "", ledger.OrphansUnspecified); !errors.Is(err, ErrOrphanPolicyRequired) {
		t.Fatalf("reopen without policy: err = %v", err)
	}
	if _, err := svc.AdminSetDayStatus(ctx, k, model.StatusAvailable, "", ledger.OrphansKeep); !errors.Is(err, ErrPendingActivities) {
		t.Fatalf("reopen keeping pending: err = %v", err)
	}

	rec, err = svc.AdminSetDayStatus(ctx, k, model.StatusAvailable, "", ledger.OrphansRestore)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if rec.Status != model.StatusPending || rec.Reason != nil {
		t.Errorf("restored day = %+v", rec)
	}
	assertConsistent(t, rec)

	if _, err := svc.AdminSetDayStatus(ctx, k, model.StatusScheduled, "", ledger.OrphansUnspecified); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("scheduled override: err = %v", err)
	}
}

func TestAdminInitializeMonth(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	mk := model.MonthKey{Year: 2024, Month: time.February}

	svc.AdminSetDayStatus(ctx, mk.Day(3), model.StatusUnavailable, "Closed", ledger.OrphansUnspecified)

	if _, err := svc.AdminInitializeMonth(ctx, mk); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	month, err := svc.GetMonth(ctx, mk)
	if err != nil {
		t.Fatalf("get month: %v", err)
	}
	if len(month) != 29 {
		t.Fatalf("days = %d, want 29", len(month))
	}
	for seg, rec := range month {
		if rec.Status != model.StatusAvailable || rec.Reason != nil || rec.Activities != nil {
			t.Errorf("day %s = %+v", seg, rec)
		}
	}
}

type brokenStore struct{}

var errDown = errors.New("disk on fire")

func (brokenStore) GetDayOrDefault(context.Context, model.DayKey) (model.DayRecord, error) {
	return model.DayRecord{}, errDown
}

func (brokenStore) GetMonth(context.Context, model.MonthKey) (model.Month, error) {
	return nil, errDown
}

func (brokenStore) WriteMonth(context.Context, model.MonthKey, model.Month) error {
	return errDown
}

func (brokenStore) Update(context.Context, model.DayKey, store.UpdateFunc) (model.DayRecord, error) {
	return model.DayRecord{}, errDown
}

func TestStoreFailuresSurface(t *testing.T) {
	svc := NewService(brokenStore{}, feed.NewHub(slog.Default()), nil, slog.Default())
	ctx := context.Background()
	k := dayKey(t, "2025-05-15")

	if _, err := svc.GetDay(ctx, k); !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, errDown) {
		t.Errorf("get day: err = %v", err)
	}
	if _, err := svc.SubmitBookingRequest(ctx, k, yogaRequest); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("submit: err = %v", err)
	}
	if _, err := svc.AdminInitializeMonth(ctx, k.MonthKey()); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("initialize: err = %v", err)
	}
	if _, err := svc.Subscribe(ctx, k.MonthKey(), func(model.Month) {}); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("subscribe: err = %v", err)
	}
}
