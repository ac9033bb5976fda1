// Package pipeline orchestrates one suggestion run end to end: context
// assembly, style resolution, input sanitization, quota admission,
// enrichment, streaming generation with per-delta policy validation, and
// progressive delivery. The order is load-bearing: admission happens before
// any model call, and a suggestion record exists only after its quota unit
// was reserved.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mikelarin/draftly/internal/composer"
	"github.com/mikelarin/draftly/internal/convo"
	"github.com/mikelarin/draftly/internal/deliver"
	"github.com/mikelarin/draftly/internal/guardrail"
	"github.com/mikelarin/draftly/internal/knowledge"
	"github.com/mikelarin/draftly/internal/model"
	"github.com/mikelarin/draftly/internal/quota"
	"github.com/mikelarin/draftly/internal/storage"
	"github.com/mikelarin/draftly/internal/style"
)

// TriggerKind is the closed set of events that start a run.
type TriggerKind string

const (
	TriggerMention     TriggerKind = "mention"
	TriggerThreadReply TriggerKind = "thread_reply"
	TriggerManual      TriggerKind = "manual"
)

// ParseTriggerKind validates an inbound trigger kind.
func ParseTriggerKind(s string) (TriggerKind, error) {
	switch TriggerKind(s) {
	case TriggerMention, TriggerThreadReply, TriggerManual:
		return TriggerKind(s), nil
	}
	return "", fmt.Errorf("unknown trigger kind %q", s)
}

// Trigger is one fully resolved request for a suggestion.
type Trigger struct {
	Kind      TriggerKind
	OrgID     string
	SubjectID string
	ChannelID string
	ThreadTS  string
	TriggerTS string
	// Text is the triggering message's text, already part of the fetched
	// context but useful as the retrieval query.
	Text string
	// Instruction is an optional drafting hint from manual triggers and
	// refine actions.
	Instruction string
	UseCase     composer.UseCase
}

// validate rejects triggers that cannot address a conversation or a
// subject. Malformed triggers are dropped with a log, never rendered.
func (t Trigger) validate() error {
	if _, err := ParseTriggerKind(string(t.Kind)); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if t.SubjectID == "" {
		return &ValidationError{Reason: "missing subject id"}
	}
	if t.ChannelID == "" {
		return &ValidationError{Reason: "missing channel id"}
	}
	return nil
}

// Result is a completed run.
type Result struct {
	SuggestionID string
	Text         string
	Quota        quota.Decision
	ViaDM        bool
}

// ContextAssembler fetches conversation context.
type ContextAssembler interface {
	Assemble(ctx context.Context, req convo.Request) []convo.Message
}

// StyleResolver resolves the effective style for a subject.
type StyleResolver interface {
	Resolve(orgID, subjectID string) style.Effective
}

// Admitter reserves a quota unit and decides admission.
type Admitter interface {
	Admit(ctx context.Context, subjectID string, now time.Time) (quota.Decision, error)
}

// IntentClassifier produces the advisory conversation signal.
type IntentClassifier interface {
	Classify(ctx context.Context, conversation string) model.Signal
}

// SnippetRetriever finds relevant knowledge snippets.
type SnippetRetriever interface {
	Retrieve(ctx context.Context, orgID, query string) ([]knowledge.ScoredRecord, error)
}

// DeltaStream is a single-pass stream of generation deltas.
type DeltaStream interface {
	Next() (string, error)
	Close() error
}

// Generator starts a streaming completion.
type Generator interface {
	StreamCompletion(ctx context.Context, req model.ChatRequest) (DeltaStream, error)
}

// OutputChecker validates accumulated output against policy. orgForbidden
// is the triggering organization's forbidden-phrase list.
type OutputChecker interface {
	Check(text string, orgForbidden []string) guardrail.Verdict
}

// RunStore persists suggestions and violation logs.
type RunStore interface {
	SaveSuggestion(sg storage.Suggestion) error
	SaveViolation(v storage.GuardrailViolation) error
}

// Auditor records fire-and-forget audit events.
type Auditor interface {
	Audit(kind, subjectID, orgID string, detail any)
}

// Runner executes suggestion runs. All dependencies are injected; the
// Runner itself is stateless and safe for concurrent use.
type Runner struct {
	Convo      ContextAssembler
	Style      StyleResolver
	Quota      Admitter
	Classifier IntentClassifier
	Retriever  SnippetRetriever
	Composer   *composer.Composer
	Generator  Generator
	Checker    OutputChecker
	Store      RunStore
	Auditor    Auditor
	Poster     deliver.Poster
}

// Run executes one suggestion run. On quota denial the user gets a quota
// notice and the run stops before any model call; the reserved unit stays
// consumed. On guardrail or generation failure the user gets the matching
// notice. The returned error classifies the failure for the caller's
// logging; user-facing messaging has already happened.
func (r *Runner) Run(ctx context.Context, trig Trigger) (Result, error) {
	if err := trig.validate(); err != nil {
		slog.Warn("dropping malformed trigger", "kind", string(trig.Kind), "error", err)
		return Result{}, err
	}

	target := deliver.Target{ChannelID: trig.ChannelID, UserID: trig.SubjectID, ThreadTS: trig.ThreadTS}

	// Context assembly and style resolution are independent; run them
	// concurrently. Both degrade to zero values rather than fail.
	var (
		messages []convo.Message
		eff      style.Effective
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		messages = r.Convo.Assemble(gCtx, convo.Request{
			ChannelID: trig.ChannelID,
			ThreadTS:  trig.ThreadTS,
			TriggerTS: trig.TriggerTS,
		})
		return nil
	})
	g.Go(func() error {
		eff = r.Style.Resolve(trig.OrgID, trig.SubjectID)
		return nil
	})
	g.Wait()

	messages = sanitizeAll(messages)
	query := guardrail.Sanitize(trig.Text)
	instruction := guardrail.Sanitize(trig.Instruction)

	// Admission gate: nothing downstream of this point runs without a
	// reserved unit.
	decision, err := r.Quota.Admit(ctx, trig.SubjectID, time.Now())
	if err != nil {
		deliver.FailureNotice(ctx, r.Poster, target, nil)
		return Result{}, fmt.Errorf("quota admission: %w", err)
	}
	if !decision.Allowed {
		deliver.QuotaNotice(ctx, r.Poster, target, decision)
		r.Auditor.Audit("quota_denied", trig.SubjectID, trig.OrgID, map[string]any{
			"used": decision.Used, "limit": decision.Limit, "period": decision.PeriodKey,
		})
		return Result{Quota: decision}, &QuotaExceededError{Used: decision.Used, Limit: decision.Limit}
	}

	// Enrichment is advisory and concurrent: classification falls back to
	// a neutral signal internally, retrieval failures just mean no
	// snippets.
	var (
		signal   model.Signal
		snippets []knowledge.ScoredRecord
	)
	g, gCtx = errgroup.WithContext(ctx)
	g.Go(func() error {
		signal = r.Classifier.Classify(gCtx, transcriptFor(messages, query))
		return nil
	})
	g.Go(func() error {
		found, rerr := r.Retriever.Retrieve(gCtx, trig.OrgID, query)
		if rerr != nil {
			slog.Warn("snippet retrieval failed, continuing without snippets", "org_id", trig.OrgID, "error", rerr)
			return nil
		}
		snippets = found
		return nil
	})
	g.Wait()

	req := r.Composer.Compose(composer.Input{
		UseCase:     trig.UseCase,
		Messages:    messages,
		Style:       eff,
		Snippets:    snippets,
		Signal:      signal,
		Instruction: instruction,
	})

	suggestionID := uuid.New().String()
	renderer := deliver.NewRenderer(r.Poster, target)

	text, err := r.stream(ctx, trig, suggestionID, req, renderer, eff.PolicyPhrases)
	if err != nil {
		return Result{Quota: decision}, err
	}

	ref := renderer.Ref()
	sg := storage.Suggestion{
		ID:               suggestionID,
		SubjectID:        trig.SubjectID,
		OrgID:            trig.OrgID,
		ChannelID:        trig.ChannelID,
		ThreadTS:         trig.ThreadTS,
		TriggerKind:      string(trig.Kind),
		Text:             text,
		MessageChannelID: ref.ChannelID,
		MessageTS:        ref.TS,
		CreatedAt:        time.Now().UTC(),
	}
	if err := r.Store.SaveSuggestion(sg); err != nil {
		// The suggestion was generated but cannot be correlated with later
		// interactions; withdraw it rather than show dead buttons.
		deliver.FailureNotice(ctx, r.Poster, target, renderer)
		return Result{Quota: decision}, fmt.Errorf("persisting suggestion: %w", err)
	}

	if err := renderer.Finalize(ctx, text, deliver.Controls(suggestionID)); err != nil {
		return Result{Quota: decision}, &DeliveryError{Err: err}
	}

	if decision.Level == quota.LevelCritical {
		deliver.QuotaNotice(ctx, r.Poster, target, decision)
	}

	r.Auditor.Audit("suggestion_generated", trig.SubjectID, trig.OrgID, map[string]any{
		"suggestion_id": suggestionID,
		"trigger":       string(trig.Kind),
		"quota_used":    decision.Used,
		"via_dm":        renderer.ViaDM(),
	})

	return Result{
		SuggestionID: suggestionID,
		Text:         text,
		Quota:        decision,
		ViaDM:        renderer.ViaDM(),
	}, nil
}

// stream drives generation, validating the accumulated output before every
// delta reaches the renderer. Violating text is never rendered: the stream
// is torn down, the violations logged durably once, and the user shown a
// safety notice instead.
func (r *Runner) stream(ctx context.Context, trig Trigger, suggestionID string, req model.ChatRequest, renderer *deliver.Renderer, orgForbidden []string) (string, error) {
	stream, err := r.Generator.StreamCompletion(ctx, req)
	if err != nil {
		deliver.FailureNotice(ctx, r.Poster, deliver.Target{ChannelID: trig.ChannelID, UserID: trig.SubjectID}, renderer)
		return "", &GenerationError{Err: err}
	}
	defer stream.Close()

	var acc strings.Builder
	for {
		delta, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			deliver.FailureNotice(ctx, r.Poster, deliver.Target{ChannelID: trig.ChannelID, UserID: trig.SubjectID}, renderer)
			return "", &GenerationError{Err: err}
		}
		if delta == "" {
			continue
		}

		acc.WriteString(delta)
		if verdict := r.Checker.Check(acc.String(), orgForbidden); !verdict.Passed {
			r.recordViolations(trig, suggestionID, verdict.Violations)
			deliver.SafetyNotice(ctx, r.Poster, deliver.Target{ChannelID: trig.ChannelID, UserID: trig.SubjectID}, renderer)
			return "", &GuardrailBlockedError{Violations: verdict.Violations}
		}

		if err := renderer.Push(ctx, acc.String()); err != nil {
			return "", &DeliveryError{Err: err}
		}
	}

	text := strings.TrimSpace(acc.String())
	if text == "" {
		deliver.FailureNotice(ctx, r.Poster, deliver.Target{ChannelID: trig.ChannelID, UserID: trig.SubjectID}, renderer)
		return "", &GenerationError{Err: errors.New("model produced no output")}
	}
	return text, nil
}

// recordViolations writes the durable violation log, one row per rule, and
// one warning log line for the run.
func (r *Runner) recordViolations(trig Trigger, suggestionID string, violations []guardrail.Violation) {
	slog.Warn("suggestion blocked by output policy",
		"suggestion_id", suggestionID,
		"org_id", trig.OrgID,
		"subject_id", trig.SubjectID,
		"rules", ruleNames(violations),
	)
	for _, v := range violations {
		row := storage.GuardrailViolation{
			ID:        uuid.New().String(),
			OrgID:     trig.OrgID,
			SubjectID: trig.SubjectID,
			Rule:      v.Rule,
			Severity:  string(v.Severity),
			Snippet:   v.Snippet,
			Stage:     "output",
			CreatedAt: time.Now().UTC(),
		}
		if err := r.Store.SaveViolation(row); err != nil {
			slog.Error("failed to persist guardrail violation", "rule", v.Rule, "error", err)
		}
	}
	r.Auditor.Audit("suggestion_blocked", trig.SubjectID, trig.OrgID, map[string]any{
		"suggestion_id": suggestionID,
		"rules":         ruleNames(violations),
	})
}

func ruleNames(violations []guardrail.Violation) []string {
	names := make([]string, len(violations))
	for i, v := range violations {
		names[i] = v.Rule
	}
	return names
}

// sanitizeAll neutralizes instruction-injection attempts in fetched
// context before it is folded into the prompt.
func sanitizeAll(msgs []convo.Message) []convo.Message {
	for i := range msgs {
		msgs[i].Text = guardrail.Sanitize(msgs[i].Text)
	}
	return msgs
}

// transcriptFor renders the conversation for the classifier, newest last.
func transcriptFor(msgs []convo.Message, query string) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}
	if query != "" {
		sb.WriteString(query)
	}
	return sb.String()
}
