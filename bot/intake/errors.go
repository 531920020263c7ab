package intake

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedInput marks an event the FILE step cannot use: text, media
// without a file name, or no attachment at all.
var ErrUnsupportedInput = errors.New("intake: unsupported input")

// Rejection reasons carried by ValidationError.
const (
	ReasonEmpty       = "empty"
	ReasonNotAChoice  = "not_a_choice"
	ReasonUnsupported = "unsupported"
	ReasonExtension   = "extension"
)

// ValidationError reports input that does not satisfy the current step.
// The session is left untouched and the step is prompted again.
type ValidationError struct {
	State  State
	Reason string
	// Allowed lists the accepted extensions for extension rejections.
	Allowed []string
	Err     error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("intake: invalid input in %s: %s", e.State, e.Reason)
	if len(e.Allowed) > 0 {
		msg += " (allowed: " + strings.Join(e.Allowed, ", ") + ")"
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Delivery steps.
const (
	StepForward = "forward"
	StepSummary = "summary"
)

// DeliveryError reports a failed call to the Deliverer.
type DeliveryError struct {
	Step string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("intake: delivery %s failed: %v", e.Step, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Reason returns the rejection reason of a ValidationError, or "" for other errors.
func Reason(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}
