// Package ledger computes the writes that change the activities of one day.
//
// Every function works on a snapshot of the day and returns a WriteSet of
// day-relative paths; nothing here touches storage. The caller commits the
// set in a single atomic write so status and activities never diverge.
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dukerupert/daybook/internal/availability"
	"github.com/dukerupert/daybook/internal/model"
)

var (
	ErrNotBookable          = errors.New("day is not available for booking")
	ErrActivityNotFound     = errors.New("activity not found")
	ErrInvalidStatus        = errors.New("status cannot be set directly")
	ErrOrphanPolicyRequired = errors.New("day has activities: choose keep, discard or restore")
	ErrPendingActivities    = errors.New("day has pending activities")
)

const (
	PathStatus     = "status"
	PathReason     = "reason"
	PathActivities = "activities"
)

// ActivityPath is the day-relative path of one activity.
func ActivityPath(id string) string {
	return PathActivities + "/" + id
}

// ApprovedPath is the day-relative path of an activity's approval flag.
func ApprovedPath(id string) string {
	return ActivityPath(id) + "/approved"
}

// WriteSet maps day-relative paths to new values. A nil value deletes the
// path.
type WriteSet map[string]any

// NewID returns a new activity id. UUIDv7 ids sort by creation time.
var NewID = func() string {
	return uuid.Must(uuid.NewV7()).String()
}

// AddOptions controls who is adding an activity and how the day's status
// is derived afterwards.
type AddOptions struct {
	ByAdmin        bool
	Approved       bool
	ForceAvailable bool
}

// AddActivity builds a new activity for day. Requests not made by an admin
// are never approved and are only accepted on available days. The returned
// activity has a zero SubmittedAt; the store stamps it on write.
func AddActivity(day model.DayRecord, details model.ActivityDetails, opts AddOptions) (WriteSet, model.Activity, error) {
	if !opts.ByAdmin {
		if day.Status != model.StatusAvailable {
			return nil, model.Activity{}, fmt.Errorf("%w: status is %s", ErrNotBookable, day.Status)
		}
		opts.Approved = false
		opts.ForceAvailable = false
	}

	act := model.Activity{
		ID:           NewID(),
		Title:        strings.TrimSpace(details.Title),
		StartTime:    strings.TrimSpace(details.StartTime),
		EndTime:      strings.TrimSpace(details.EndTime),
		ActivityType: strings.TrimSpace(details.ActivityType),
		Approved:     opts.Approved,
	}
	if n := strings.TrimSpace(details.Notes); n != "" {
		act.Notes = &n
	}
	if details.BookedBy != nil {
		b := *details.BookedBy
		act.BookedBy = &b
	}

	next := withActivities(day)
	next[act.ID] = act

	ws := WriteSet{
		ActivityPath(act.ID): act,
		PathStatus:           availability.ComputeStatus(next, opts.ForceAvailable),
	}
	dropReason(day, ws)
	return ws, act, nil
}

// SetApproval flips the approval flag of one activity.
func SetApproval(day model.DayRecord, id string, approved, forceAvailable bool) (WriteSet, error) {
	act, ok := day.Activities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActivityNotFound, id)
	}
	act.Approved = approved

	next := withActivities(day)
	next[id] = act

	ws := WriteSet{
		ApprovedPath(id): approved,
		PathStatus:       availability.ComputeStatus(next, forceAvailable),
	}
	dropReason(day, ws)
	return ws, nil
}

// RemoveActivity deletes one activity. When it was the last one the whole
// activities node is cleared so "no activities" stays representable as
// absence.
func RemoveActivity(day model.DayRecord, id string) (WriteSet, error) {
	if _, ok := day.Activities[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrActivityNotFound, id)
	}
	next := withActivities(day)
	delete(next, id)

	ws := WriteSet{
		ActivityPath(id): nil,
		PathStatus:       availability.ComputeStatus(next, false),
	}
	if len(next) == 0 {
		ws[PathActivities] = nil
	}
	dropReason(day, ws)
	return ws, nil
}

// dropReason deletes the reason when a derived write moves a day off
// unavailable.
func dropReason(day model.DayRecord, ws WriteSet) {
	if day.Status == model.StatusUnavailable || day.Reason != nil {
		ws[PathReason] = nil
	}
}

func withActivities(day model.DayRecord) map[string]model.Activity {
	next := make(map[string]model.Activity, len(day.Activities)+1)
	for id, a := range day.Activities {
		next[id] = a
	}
	return next
}
