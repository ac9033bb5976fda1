package storage

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReserveUnit_Increments(t *testing.T) {
	store := openTestStore(t)
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	for want := 1; want <= 3; want++ {
		r, err := store.ReserveUnit("U1", "2026-08", start, end, 200, 10)
		if err != nil {
			t.Fatalf("ReserveUnit %d: %v", want, err)
		}
		if r.Used != want {
			t.Errorf("Used = %d, want %d", r.Used, want)
		}
		if r.Included != 200 || r.Overage != 10 {
			t.Errorf("plan = %d/%d, want 200/10", r.Included, r.Overage)
		}
	}
}

func TestReserveUnit_SeparatePeriodsAndSubjects(t *testing.T) {
	store := openTestStore(t)
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	if _, err := store.ReserveUnit("U1", "2026-08", start, end, 5, 0); err != nil {
		t.Fatalf("ReserveUnit: %v", err)
	}
	r, err := store.ReserveUnit("U1", "2026-09", end, end.AddDate(0, 1, 0), 5, 0)
	if err != nil {
		t.Fatalf("ReserveUnit next period: %v", err)
	}
	if r.Used != 1 {
		t.Errorf("new period Used = %d, want 1", r.Used)
	}
	r, err = store.ReserveUnit("U2", "2026-08", start, end, 5, 0)
	if err != nil {
		t.Fatalf("ReserveUnit other subject: %v", err)
	}
	if r.Used != 1 {
		t.Errorf("other subject Used = %d, want 1", r.Used)
	}
}

// Concurrent reservations must never lose an update: N concurrent calls
// leave the counter at exactly N.
func TestReserveUnit_ConcurrentNoLostUpdates(t *testing.T) {
	store := openTestStore(t)
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	const goroutines = 20
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ReserveUnit("U1", "2026-08", start, end, 200, 0); err != nil {
				t.Errorf("ReserveUnit: %v", err)
			}
		}()
	}
	wg.Wait()

	r, err := store.GetReservation("U1", "2026-08")
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if r.Used != goroutines {
		t.Errorf("Used = %d, want %d", r.Used, goroutines)
	}
}

func TestGetReservation_NotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetReservation("nobody", "2026-08"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestJobQueue_ClaimCompleteLifecycle(t *testing.T) {
	store := openTestStore(t)

	job := Job{ID: "j1", Type: "feedback_event", PayloadJSON: `{}`}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	claimed, err := store.ClaimNextJob([]string{"feedback_event"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed == nil || claimed.ID != "j1" {
		t.Fatalf("claimed = %+v, want job j1", claimed)
	}

	// Already claimed; nothing left.
	again, err := store.ClaimNextJob([]string{"feedback_event"})
	if err != nil {
		t.Fatalf("ClaimNextJob again: %v", err)
	}
	if again != nil {
		t.Errorf("claimed running job %q twice", again.ID)
	}

	if err := store.CompleteJob("j1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	var status string
	if err := store.DB().QueryRow(`SELECT status FROM jobs WHERE id = 'j1'`).Scan(&status); err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status != "completed" {
		t.Errorf("status = %q, want completed", status)
	}
}

func TestJobQueue_ClaimFiltersType(t *testing.T) {
	store := openTestStore(t)
	if err := store.EnqueueJob(Job{ID: "j1", Type: "snippet_embed", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	claimed, err := store.ClaimNextJob([]string{"feedback_event"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed != nil {
		t.Errorf("claimed job of wrong type: %+v", claimed)
	}
}

func TestFailJob_BackoffAndTerminalFailure(t *testing.T) {
	store := openTestStore(t)
	if err := store.EnqueueJob(Job{ID: "j1", Type: "snippet_embed", PayloadJSON: `{}`, MaxAttempts: 2}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		claimed, err := store.ClaimNextJob([]string{"snippet_embed"})
		if err != nil {
			t.Fatalf("ClaimNextJob %d: %v", attempt, err)
		}
		if claimed == nil {
			t.Fatalf("attempt %d: no job claimable", attempt)
		}
		if err := store.FailJob("j1", fmt.Sprintf("boom %d", attempt)); err != nil {
			t.Fatalf("FailJob %d: %v", attempt, err)
		}
		// Clear the retry backoff so the next claim sees the job.
		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = 'j1' AND status = 'pending'`, now); err != nil {
			t.Fatalf("reset run_after: %v", err)
		}
	}

	var status, lastError string
	if err := store.DB().QueryRow(`SELECT status, last_error FROM jobs WHERE id = 'j1'`).Scan(&status, &lastError); err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status != "failed" {
		t.Errorf("status = %q, want failed", status)
	}
	if lastError != "boom 2" {
		t.Errorf("last_error = %q, want boom 2", lastError)
	}
}
