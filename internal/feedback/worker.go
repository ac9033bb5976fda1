package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mikelarin/draftly/internal/storage"
)

// EventStore abstracts the queue and persistence operations the worker
// needs, implemented by storage.Store.
type EventStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	AppendFeedbackEvent(e storage.FeedbackEvent) error
	SaveAuditEvent(e storage.AuditEvent) error
}

// Worker drains feedback and audit jobs from the queue into durable
// storage.
type Worker struct {
	store  EventStore
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. Poll interval defaults to 500ms when
// non-positive.
func NewWorker(store EventStore, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{store: store, poll: pollInterval, logger: slog.Default()}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce()
		if err != nil {
			w.logger.Error("feedback worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job. Returns true if a job was
// processed, regardless of success.
func (w *Worker) RunOnce() (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeFeedback, JobTypeAudit})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(job); err != nil {
		w.logger.Warn("feedback job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(job *storage.Job) error {
	switch job.Type {
	case JobTypeFeedback:
		return w.processFeedback(job)
	case JobTypeAudit:
		return w.processAudit(job)
	}
	return fmt.Errorf("unexpected job type %q", job.Type)
}

func (w *Worker) processFeedback(job *storage.Job) error {
	var p feedbackPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return fmt.Errorf("parsing feedback payload: %w", err)
	}

	return w.store.AppendFeedbackEvent(storage.FeedbackEvent{
		ID:           uuid.New().String(),
		SuggestionID: p.SuggestionID,
		Action:       p.Action,
		OriginalText: p.OriginalText,
		FinalText:    p.FinalText,
		CreatedAt:    time.Now().UTC(),
	})
}

func (w *Worker) processAudit(job *storage.Job) error {
	var p auditPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return fmt.Errorf("parsing audit payload: %w", err)
	}

	return w.store.SaveAuditEvent(storage.AuditEvent{
		ID:          uuid.New().String(),
		Kind:        p.Kind,
		SubjectID:   p.SubjectID,
		OrgID:       p.OrgID,
		PayloadJSON: string(p.Detail),
		CreatedAt:   time.Now().UTC(),
	})
}
