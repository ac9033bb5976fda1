package quota

import (
	"context"
	"errors"
	"time"

	"github.com/mikelarin/draftly/internal/storage"
)

// Compile-time check that SQLiteLedger implements Ledger.
var _ Ledger = (*SQLiteLedger)(nil)

// SQLiteLedger stores usage counters in the primary SQLite database. This
// is the default backend; the reservation is a single upsert-and-increment
// statement, so concurrent reservations serialize in the database.
type SQLiteLedger struct {
	store    *storage.Store
	included int
	overage  int
}

// NewSQLiteLedger creates a ledger applying the configured plan allowance
// to new billing periods.
func NewSQLiteLedger(store *storage.Store, included, overage int) *SQLiteLedger {
	return &SQLiteLedger{store: store, included: included, overage: overage}
}

// ReserveUnit atomically increments the subject's counter for the period,
// creating the row with the plan allowance on first use.
func (l *SQLiteLedger) ReserveUnit(ctx context.Context, subjectID, periodKey string, periodStart, periodEnd time.Time) (Reservation, error) {
	if err := ctx.Err(); err != nil {
		return Reservation{}, err
	}
	r, err := l.store.ReserveUnit(subjectID, periodKey, periodStart, periodEnd, l.included, l.overage)
	if err != nil {
		return Reservation{}, err
	}
	return Reservation{Used: r.Used, Included: r.Included, Overage: r.Overage}, nil
}

// Usage reads the counter without reserving. A subject with no activity
// this period reports zero used against the plan allowance.
func (l *SQLiteLedger) Usage(ctx context.Context, subjectID, periodKey string) (Reservation, error) {
	if err := ctx.Err(); err != nil {
		return Reservation{}, err
	}
	r, err := l.store.GetReservation(subjectID, periodKey)
	if errors.Is(err, storage.ErrNotFound) {
		return Reservation{Used: 0, Included: l.included, Overage: l.overage}, nil
	}
	if err != nil {
		return Reservation{}, err
	}
	return Reservation{Used: r.Used, Included: r.Included, Overage: r.Overage}, nil
}
