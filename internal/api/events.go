package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mikelarin/draftly/internal/composer"
	"github.com/mikelarin/draftly/internal/pipeline"
)

// EventRequest is a platform event callback. Type selects which variant is
// populated; exactly one must be.
type EventRequest struct {
	Type        string            `json:"type"`
	Mention     *MentionEvent     `json:"mention,omitempty"`
	ThreadReply *ThreadReplyEvent `json:"thread_reply,omitempty"`
	Manual      *ManualEvent      `json:"manual,omitempty"`
}

// MentionEvent fires when the bot is mentioned in a message.
type MentionEvent struct {
	OrgID     string `json:"org_id"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	ThreadTS  string `json:"thread_ts"`
	TS        string `json:"ts"`
	Text      string `json:"text"`
}

// ThreadReplyEvent fires when a new reply lands in a thread the subject
// participates in.
type ThreadReplyEvent struct {
	OrgID     string `json:"org_id"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	ThreadTS  string `json:"thread_ts"`
	TS        string `json:"ts"`
	Text      string `json:"text"`
}

// ManualEvent fires when the user explicitly asks for a draft.
type ManualEvent struct {
	OrgID       string `json:"org_id"`
	UserID      string `json:"user_id"`
	ChannelID   string `json:"channel_id"`
	ThreadTS    string `json:"thread_ts"`
	TS          string `json:"ts"`
	Text        string `json:"text"`
	Instruction string `json:"instruction"`
	UseCase     string `json:"use_case"`
}

func handleEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req EventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		trig, err := triggerFromEvent(req)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if trig.SubjectID == "" || trig.ChannelID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id and channel_id are required")
			return
		}

		// The platform expects a fast acknowledgement; the run proceeds in
		// the background with its own deadline.
		go runDetached(deps.Runner, trig)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	}
}

// triggerFromEvent maps the tagged event payload onto a pipeline trigger.
// The switch is exhaustive over the trigger kinds; an unknown type is a
// client error, never a silent default.
func triggerFromEvent(req EventRequest) (pipeline.Trigger, error) {
	kind, err := pipeline.ParseTriggerKind(req.Type)
	if err != nil {
		return pipeline.Trigger{}, err
	}

	switch kind {
	case pipeline.TriggerMention:
		if req.Mention == nil {
			return pipeline.Trigger{}, errors.New("mention payload is required for type mention")
		}
		e := req.Mention
		return pipeline.Trigger{
			Kind:      kind,
			OrgID:     e.OrgID,
			SubjectID: e.UserID,
			ChannelID: e.ChannelID,
			ThreadTS:  e.ThreadTS,
			TriggerTS: e.TS,
			Text:      e.Text,
			UseCase:   composer.UseCaseAdHoc,
		}, nil

	case pipeline.TriggerThreadReply:
		if req.ThreadReply == nil {
			return pipeline.Trigger{}, errors.New("thread_reply payload is required for type thread_reply")
		}
		e := req.ThreadReply
		return pipeline.Trigger{
			Kind:      kind,
			OrgID:     e.OrgID,
			SubjectID: e.UserID,
			ChannelID: e.ChannelID,
			ThreadTS:  e.ThreadTS,
			TriggerTS: e.TS,
			Text:      e.Text,
			UseCase:   composer.UseCaseAdHoc,
		}, nil

	case pipeline.TriggerManual:
		if req.Manual == nil {
			return pipeline.Trigger{}, errors.New("manual payload is required for type manual")
		}
		e := req.Manual
		return pipeline.Trigger{
			Kind:        kind,
			OrgID:       e.OrgID,
			SubjectID:   e.UserID,
			ChannelID:   e.ChannelID,
			ThreadTS:    e.ThreadTS,
			TriggerTS:   e.TS,
			Text:        e.Text,
			Instruction: e.Instruction,
			UseCase:     parseUseCase(e.UseCase),
		}, nil
	}
	return pipeline.Trigger{}, errors.New("unhandled trigger kind")
}

func parseUseCase(s string) composer.UseCase {
	switch s {
	case "task":
		return composer.UseCaseTask
	case "report":
		return composer.UseCaseReport
	default:
		return composer.UseCaseAdHoc
	}
}

// runDetached executes a run off the request goroutine. Expected outcomes
// (quota denial, guardrail block) are logged at info; real failures at
// error. The user-facing notice has already been delivered by the
// pipeline either way.
func runDetached(runner SuggestionRunner, trig pipeline.Trigger) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	result, err := runner.Run(ctx, trig)
	switch {
	case err == nil:
		slog.Info("suggestion delivered",
			"suggestion_id", result.SuggestionID,
			"trigger", string(trig.Kind),
			"via_dm", result.ViaDM,
		)
	case isExpectedOutcome(err):
		slog.Info("suggestion run stopped", "trigger", string(trig.Kind), "reason", err)
	default:
		slog.Error("suggestion run failed", "trigger", string(trig.Kind), "error", err)
	}
}

func isExpectedOutcome(err error) bool {
	var quotaErr *pipeline.QuotaExceededError
	var blockedErr *pipeline.GuardrailBlockedError
	return errors.As(err, &quotaErr) || errors.As(err, &blockedErr)
}
