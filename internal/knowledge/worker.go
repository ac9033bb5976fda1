package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mikelarin/draftly/internal/storage"
)

// JobType is the queue type for snippet embedding jobs.
const JobType = "snippet_embed"

// EmbedJobPayload is the JSON payload of a snippet_embed job.
type EmbedJobPayload struct {
	SnippetID string `json:"snippet_id"`
}

// JobStore abstracts the queue and snippet operations the worker needs.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetSnippet(id string) (storage.Snippet, error)
	UpdateSnippetVectorID(id, vectorID string) error
}

// Inserter inserts records into the vector store.
type Inserter interface {
	Insert(records []Record) error
}

// Worker processes snippet_embed jobs from the job queue, turning newly
// ingested snippets into searchable vectors.
type Worker struct {
	store    JobStore
	embedder QueryEmbedder
	vectors  Inserter
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. Poll interval defaults to 500ms when
// non-positive.
func NewWorker(store JobStore, embedder QueryEmbedder, vectors Inserter, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("embed worker iteration failed", "error", err)
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

// RunOnce claims and processes a single snippet_embed job. Returns true if
// a job was processed, regardless of success.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("embed job failed", "job_id", job.ID, "error", err)
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

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload EmbedJobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	sn, err := w.store.GetSnippet(payload.SnippetID)
	if err != nil {
		return fmt.Errorf("loading snippet %s: %w", payload.SnippetID, err)
	}

	vec, err := w.embedder.Embed(ctx, sn.Content)
	if err != nil {
		return fmt.Errorf("embedding snippet content: %w", err)
	}

	rec := Record{
		ID:        uuid.New().String(),
		SnippetID: sn.ID,
		OrgID:     sn.OrgID,
		TextChunk: sn.Content,
		Embedding: vec,
		CreatedAt: time.Now().UTC(),
	}

	if err := w.vectors.Insert([]Record{rec}); err != nil {
		return fmt.Errorf("inserting vector: %w", err)
	}

	if err := w.store.UpdateSnippetVectorID(sn.ID, rec.ID); err != nil {
		return fmt.Errorf("updating vector_id: %w", err)
	}

	return nil
}
