// Package feedback captures user actions on suggestions (send, refine,
// dismiss) and audit events asynchronously. Producers enqueue durable jobs
// and return immediately; a background worker persists the events, so
// feedback capture never sits on the interaction hot path.
package feedback

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mikelarin/draftly/internal/storage"
)

// Job types processed by the Worker.
const (
	JobTypeFeedback = "feedback_event"
	JobTypeAudit    = "audit_event"
)

// Action is what the user did with a suggestion.
type Action string

const (
	ActionSent      Action = "sent"
	ActionRefined   Action = "refined"
	ActionDismissed Action = "dismissed"
	ActionExpired   Action = "expired"
)

// ParseAction maps an interaction callback action onto the closed set.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionSent, ActionRefined, ActionDismissed, ActionExpired:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown feedback action %q", s)
}

type feedbackPayload struct {
	SuggestionID string `json:"suggestion_id"`
	Action       string `json:"action"`
	OriginalText string `json:"original_text"`
	FinalText    string `json:"final_text"`
}

type auditPayload struct {
	Kind      string          `json:"kind"`
	SubjectID string          `json:"subject_id"`
	OrgID     string          `json:"org_id"`
	Detail    json.RawMessage `json:"detail"`
}

// Queue is the job enqueue surface, implemented by storage.Store.
type Queue interface {
	EnqueueJob(job storage.Job) error
}

// Recorder enqueues feedback and audit events.
type Recorder struct {
	queue Queue
}

// NewRecorder creates a Recorder.
func NewRecorder(queue Queue) *Recorder {
	return &Recorder{queue: queue}
}

// Record enqueues one user feedback event. finalText is the text as
// actually sent, empty for dismissals.
func (r *Recorder) Record(suggestionID string, action Action, originalText, finalText string) error {
	payload, err := json.Marshal(feedbackPayload{
		SuggestionID: suggestionID,
		Action:       string(action),
		OriginalText: originalText,
		FinalText:    finalText,
	})
	if err != nil {
		return fmt.Errorf("encoding feedback payload: %w", err)
	}
	return r.enqueue(JobTypeFeedback, payload)
}

// Audit enqueues a fire-and-forget audit event. Errors are logged, not
// returned: audit must never fail a user-facing operation.
func (r *Recorder) Audit(kind, subjectID, orgID string, detail any) {
	raw, err := json.Marshal(detail)
	if err != nil {
		slog.Warn("encoding audit detail failed, dropping event", "kind", kind, "error", err)
		return
	}
	payload, err := json.Marshal(auditPayload{
		Kind:      kind,
		SubjectID: subjectID,
		OrgID:     orgID,
		Detail:    raw,
	})
	if err != nil {
		slog.Warn("encoding audit payload failed, dropping event", "kind", kind, "error", err)
		return
	}
	if err := r.enqueue(JobTypeAudit, payload); err != nil {
		slog.Warn("enqueueing audit event failed, dropping event", "kind", kind, "error", err)
	}
}

func (r *Recorder) enqueue(jobType string, payload []byte) error {
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		PayloadJSON: string(payload),
		MaxAttempts: 3,
	}
	if err := r.queue.EnqueueJob(job); err != nil {
		return fmt.Errorf("enqueueing %s job: %w", jobType, err)
	}
	return nil
}
