package calendar

import (
	"errors"
	"fmt"

	"github.com/dukerupert/daybook/internal/ledger"
)

var (
	ErrNotBookable          = ledger.ErrNotBookable
	ErrActivityNotFound     = ledger.ErrActivityNotFound
	ErrInvalidStatus        = ledger.ErrInvalidStatus
	ErrOrphanPolicyRequired = ledger.ErrOrphanPolicyRequired
	ErrPendingActivities    = ledger.ErrPendingActivities

	ErrStoreUnavailable = errors.New("calendar store unavailable")
	ErrInvalidRequest   = errors.New("invalid request")
)

// FieldError describes one rejected field of a request.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field. It matches ErrInvalidRequest.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalidRequest.Error()
	}
	f := e.Fields[0]
	if len(e.Fields) == 1 {
		return fmt.Sprintf("invalid request: %s %s", f.Field, f.Message)
	}
	return fmt.Sprintf("invalid request: %s %s (and %d more)", f.Field, f.Message, len(e.Fields)-1)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
