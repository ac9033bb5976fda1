package pipeline

import (
	"fmt"

	"github.com/mikelarin/draftly/internal/guardrail"
)

// ValidationError reports a malformed trigger payload. The run is dropped
// with a log line; nothing is rendered and no quota unit is consumed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid trigger: " + e.Reason
}

// QuotaExceededError reports a run denied by quota admission. The unit
// consumed by the admission check is not refunded.
type QuotaExceededError struct {
	Used  int
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("suggestion quota exceeded: %d of %d units used", e.Used, e.Limit)
}

// GuardrailBlockedError reports model output withheld by policy
// validation.
type GuardrailBlockedError struct {
	Violations []guardrail.Violation
}

func (e *GuardrailBlockedError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("output blocked by policy rule %s", e.Violations[0].Rule)
	}
	return fmt.Sprintf("output blocked by %d policy rules", len(e.Violations))
}

// GenerationError reports a model-side failure mid-run.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating suggestion: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// DeliveryError reports a platform-side failure rendering the suggestion.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering suggestion: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
