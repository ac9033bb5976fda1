// Package quota is the admission gate in front of generation: one unit of
// usage is atomically reserved against the subject's billing-period
// allowance before any model call is allowed. Reserved units are never
// refunded when generation later fails — otherwise failed retries would be
// free and the gate could be bypassed by inducing failures.
package quota

import (
	"context"
	"fmt"
	"time"
)

// Reservation is the post-increment state of the subject's usage counter.
type Reservation struct {
	Used     int
	Included int
	Overage  int
}

// Ledger atomically reserves one usage unit. Implementations must perform
// the read-and-increment as a single storage-level operation; two
// concurrent reservations must never observe the same pre-increment value.
type Ledger interface {
	ReserveUnit(ctx context.Context, subjectID, periodKey string, periodStart, periodEnd time.Time) (Reservation, error)
	// Usage reads the current counter without reserving. Returns zero
	// usage when the subject has no reservation this period.
	Usage(ctx context.Context, subjectID, periodKey string) (Reservation, error)
}

// WarnLevel is the advisory usage level surfaced to the user alongside a
// suggestion. It informs messaging only and never gates admission.
type WarnLevel string

const (
	LevelSafe     WarnLevel = "safe"
	LevelWarning  WarnLevel = "warning"
	LevelCritical WarnLevel = "critical"
	LevelExceeded WarnLevel = "exceeded"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Used      int
	Limit     int
	Level     WarnLevel
	PeriodKey string
}

// Controller performs admission checks against a Ledger.
type Controller struct {
	ledger Ledger
}

// NewController creates a Controller.
func NewController(ledger Ledger) *Controller {
	return &Controller{ledger: ledger}
}

// Admit reserves one unit for the subject in the billing period containing
// now (calendar month, UTC) and decides whether generation may proceed.
// A denied decision means the reservation pushed usage past
// included+overage; the unit stays consumed either way.
func (c *Controller) Admit(ctx context.Context, subjectID string, now time.Time) (Decision, error) {
	key, start, end := Period(now)

	r, err := c.ledger.ReserveUnit(ctx, subjectID, key, start, end)
	if err != nil {
		return Decision{}, fmt.Errorf("reserving quota unit for %s: %w", subjectID, err)
	}

	limit := r.Included + r.Overage
	allowed := r.Used <= limit

	// Denied attempts keep incrementing the counter, but the decision
	// reports usage clamped to the plan: "used 6 of 5" helps nobody.
	used := r.Used
	if !allowed {
		used = limit
	}
	return Decision{
		Allowed:   allowed,
		Used:      used,
		Limit:     limit,
		Level:     level(r.Used, limit),
		PeriodKey: key,
	}, nil
}

// Report returns the subject's current usage without consuming a unit.
func (c *Controller) Report(ctx context.Context, subjectID string, now time.Time) (Decision, error) {
	key, _, _ := Period(now)
	r, err := c.ledger.Usage(ctx, subjectID, key)
	if err != nil {
		return Decision{}, fmt.Errorf("reading quota usage for %s: %w", subjectID, err)
	}
	limit := r.Included + r.Overage
	return Decision{
		Allowed:   r.Used < limit,
		Used:      r.Used,
		Limit:     limit,
		Level:     level(r.Used, limit),
		PeriodKey: key,
	}, nil
}

func level(used, limit int) WarnLevel {
	if limit <= 0 || used > limit {
		return LevelExceeded
	}
	ratio := float64(used) / float64(limit)
	switch {
	case ratio >= 1:
		return LevelExceeded
	case ratio >= 0.9:
		return LevelCritical
	case ratio >= 0.7:
		return LevelWarning
	default:
		return LevelSafe
	}
}

// Period resolves the UTC calendar-month billing period containing t.
func Period(t time.Time) (key string, start, end time.Time) {
	u := t.UTC()
	start = time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start.Format("2006-01"), start, end
}
