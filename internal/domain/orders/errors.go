package orders

import (
	"errors"
	"fmt"

	"github.com/hms/orderflow/internal/domain/billing"
)

// ErrorCode classifies a rejected transition. Callers branch on the code,
// never on message text.
type ErrorCode string

const (
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	CodePermissionDenied  ErrorCode = "PERMISSION_DENIED"
	CodePaymentRequired   ErrorCode = "PAYMENT_REQUIRED"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeNotFound          ErrorCode = "NOT_FOUND"
)

// LifecycleError is the typed failure of a transition request. It carries the
// order's current status and, for payment failures, the unpaid bill so the
// caller can offer a payment action.
type LifecycleError struct {
	Code    ErrorCode
	Current Status
	Bill    *billing.Bill
	msg     string
}

func (e *LifecycleError) Error() string {
	if e.Current != "" {
		return fmt.Sprintf("%s (current status: %s)", e.msg, e.Current)
	}
	return e.msg
}

// AsLifecycleError unwraps err into a *LifecycleError, or nil.
func AsLifecycleError(err error) *LifecycleError {
	var le *LifecycleError
	if errors.As(err, &le) {
		return le
	}
	return nil
}

func errInvalidTransition(current, target Status) *LifecycleError {
	return &LifecycleError{
		Code:    CodeInvalidTransition,
		Current: current,
		msg:     fmt.Sprintf("no transition from %s to %s", current, target),
	}
}

func errPermissionDenied(current, target Status) *LifecycleError {
	return &LifecycleError{
		Code:    CodePermissionDenied,
		Current: current,
		msg:     fmt.Sprintf("not permitted to move order from %s to %s", current, target),
	}
}

func errPaymentRequired(current Status, bill *billing.Bill) *LifecycleError {
	return &LifecycleError{
		Code:    CodePaymentRequired,
		Current: current,
		Bill:    bill,
		msg:     "order cannot be completed until its bill is paid",
	}
}

func errConflict(current Status) *LifecycleError {
	return &LifecycleError{
		Code:    CodeConflict,
		Current: current,
		msg:     "order was modified concurrently; reload and retry",
	}
}

func errNotFound() *LifecycleError {
	return &LifecycleError{Code: CodeNotFound, msg: "order not found"}
}
