package entitlement

import (
	"errors"
	"fmt"
)

var (
	ErrPaymentRequired    = errors.New("entitlement: payment required")
	ErrReservationClosed  = errors.New("entitlement: reservation already committed or released")
	ErrUnknownConsumption = errors.New("entitlement: unknown consumption kind")
)

// LimitError is a denial carrying a machine-readable reason.
// It matches ErrPaymentRequired with errors.Is.
type LimitError struct {
	Reason Reason
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("entitlement: payment required: %s", e.Reason)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrPaymentRequired
}

// ReasonOf returns the denial reason wrapped in err, if any.
func ReasonOf(err error) (Reason, bool) {
	var le *LimitError
	if errors.As(err, &le) {
		return le.Reason, true
	}
	return "", false
}
