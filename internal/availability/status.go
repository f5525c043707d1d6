package availability

import "github.com/dukerupert/daybook/internal/model"

// ComputeStatus derives a day's status from its activities.
//
// Any unapproved activity makes the day pending, regardless of how many
// others are approved. Otherwise a day with approved activities is
// scheduled, or available when the admin asked for it to stay open. A day
// without activities is available. Unavailable is never derived; it is only
// set by an explicit admin override.
func ComputeStatus(activities map[string]model.Activity, forceAvailable bool) model.Status {
	pending, approved := Counts(activities)
	switch {
	case pending > 0:
		return model.StatusPending
	case approved > 0 && forceAvailable:
		return model.StatusAvailable
	case approved > 0:
		return model.StatusScheduled
	default:
		return model.StatusAvailable
	}
}

// Counts returns the number of unapproved and approved activities.
func Counts(activities map[string]model.Activity) (pending, approved int) {
	for _, a := range activities {
		if a.Approved {
			approved++
		} else {
			pending++
		}
	}
	return pending, approved
}

// Consistent reports whether a stored record obeys the derivation rules.
// Unavailable days are always consistent; available days may carry approved
// activities when the admin forced them open.
func Consistent(day model.DayRecord) bool {
	switch day.Status {
	case model.StatusUnavailable:
		return true
	case model.StatusAvailable:
		s := ComputeStatus(day.Activities, true)
		return s == model.StatusAvailable
	default:
		return ComputeStatus(day.Activities, false) == day.Status
	}
}
