package ledger

import (
	"fmt"
	"strings"

	"github.com/dukerupert/daybook/internal/availability"
	"github.com/dukerupert/daybook/internal/model"
)

// OrphanPolicy says what happens to the activities of an unavailable day
// when an admin opens it again.
type OrphanPolicy string

const (
	OrphansUnspecified OrphanPolicy = ""
	// OrphansKeep keeps the activities and forces the day available.
	OrphansKeep OrphanPolicy = "keep"
	// OrphansDiscard deletes the activities.
	OrphansDiscard OrphanPolicy = "discard"
	// OrphansRestore keeps the activities and derives the status from them.
	OrphansRestore OrphanPolicy = "restore"
)

func (p OrphanPolicy) Valid() bool {
	switch p {
	case OrphansUnspecified, OrphansKeep, OrphansDiscard, OrphansRestore:
		return true
	}
	return false
}

// OverrideStatus builds the explicit admin status write. Only available and
// unavailable may be set; the reason is kept only for unavailable days.
func OverrideStatus(day model.DayRecord, status model.Status, reason string, policy OrphanPolicy) (WriteSet, error) {
	if !policy.Valid() {
		return nil, fmt.Errorf("%w: unknown orphan policy %q", ErrInvalidStatus, policy)
	}

	switch status {
	case model.StatusUnavailable:
		ws := WriteSet{PathStatus: model.StatusUnavailable, PathReason: nil}
		if r := strings.TrimSpace(reason); r != "" {
			ws[PathReason] = r
		}
		return ws, nil
	case model.StatusAvailable:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	ws := WriteSet{PathStatus: model.StatusAvailable, PathReason: nil}
	if !day.HasActivities() {
		return ws, nil
	}

	if policy == OrphansUnspecified {
		if day.Status == model.StatusUnavailable {
			return nil, ErrOrphanPolicyRequired
		}
		policy = OrphansKeep
	}

	switch policy {
	case OrphansDiscard:
		ws[PathActivities] = nil
	case OrphansRestore:
		ws[PathStatus] = availability.ComputeStatus(day.Activities, false)
	case OrphansKeep:
		if pending, _ := availability.Counts(day.Activities); pending > 0 {
			return nil, fmt.Errorf("%w: %d awaiting approval", ErrPendingActivities, pending)
		}
	}
	return ws, nil
}
