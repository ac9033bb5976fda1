package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Suggestion is an emitted reply suggestion. Its ID doubles as the
// correlation key carried by the interactive controls rendered to the user,
// so it must stay stable for the record's whole lifetime.
type Suggestion struct {
	ID          string
	SubjectID   string
	OrgID       string
	ChannelID   string
	ThreadTS    string
	TriggerKind string
	Text        string
	// MessageChannelID/MessageTS reference the delivered message (the DM
	// channel when delivery fell back), needed to withdraw it on dismiss.
	MessageChannelID string
	MessageTS        string
	CreatedAt        time.Time
}

// FeedbackEvent is an append-only record of a terminal user action on a
// suggestion. One suggestion may accumulate several events (refine, then send).
type FeedbackEvent struct {
	ID           string
	SuggestionID string
	Action       string // "sent", "refined", "dismissed", "expired"
	OriginalText string
	FinalText    string
	CreatedAt    time.Time
}

// GuardrailViolation is the durable log row written when policy validation
// fails. The verdict itself is transient; this row is not.
type GuardrailViolation struct {
	ID        string
	OrgID     string
	SubjectID string
	Rule      string
	Severity  string // "low", "medium", "high"
	Snippet   string
	Stage     string // "input", "output"
	CreatedAt time.Time
}

// UsageReservation is the billing-period usage counter for one subject.
// It is created lazily on first use in a period and only ever incremented;
// the period rollover is implicit in the period key.
type UsageReservation struct {
	SubjectID   string
	PeriodKey   string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Used        int
	Included    int
	Overage     int
}

// OrgStyle is the organization-scoped style preference record.
// Nil pointer fields mean "not set" and are distinct from empty strings.
type OrgStyle struct {
	OrgID            string
	Tone             *string
	Formality        *string
	PreferredPhrases string // JSON array stored as text
	AvoidPhrases     string // JSON array stored as text
	CustomGuidance   *string
	PrecedenceMode   string // "override", "layer", "fallback"
	UpdatedAt        time.Time
}

// UserStyle is the user-scoped style preference record.
type UserStyle struct {
	OrgID            string
	UserID           string
	Tone             *string
	Formality        *string
	PreferredPhrases string // JSON array stored as text
	AvoidPhrases     string // JSON array stored as text
	CustomGuidance   *string
	UpdatedAt        time.Time
}

// Snippet is an organization knowledge/template document used to enrich
// generation prompts.
type Snippet struct {
	ID        string
	OrgID     string
	Title     string
	Content   string
	Source    string
	Tags      string // JSON array stored as text
	CreatedAt time.Time
	VectorID  string
}

// AuditEvent is a fire-and-forget usage/audit trail row.
type AuditEvent struct {
	ID          string
	Kind        string
	SubjectID   string
	OrgID       string
	PayloadJSON string
	CreatedAt   time.Time
}

// Job is a queued background task processed by the feedback/embedding workers.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
