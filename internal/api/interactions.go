package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mikelarin/draftly/internal/composer"
	"github.com/mikelarin/draftly/internal/feedback"
	"github.com/mikelarin/draftly/internal/pipeline"
	"github.com/mikelarin/draftly/internal/platform"
	"github.com/mikelarin/draftly/internal/storage"
)

// InteractionRequest is a control-button callback. SuggestionID is the
// correlation key planted in the control when the suggestion was
// finalized.
type InteractionRequest struct {
	Action       string `json:"action"`
	SuggestionID string `json:"suggestion_id"`
	OrgID        string `json:"org_id"`
	UserID       string `json:"user_id"`
	// Text is the possibly user-edited final text on send, or the refine
	// instruction on refine.
	Text string `json:"text"`
}

func handleInteractions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req InteractionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SuggestionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "suggestion_id is required")
			return
		}

		sg, err := deps.Store.GetSuggestion(req.SuggestionID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "suggestion not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load suggestion: %v", err)
			return
		}

		switch req.Action {
		case "send":
			handleSend(deps, w, r, req, sg)
		case "refine":
			handleRefine(deps, w, req, sg)
		case "dismiss":
			handleDismiss(deps, w, r, req, sg)
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown action %q", req.Action)
		}
	}
}

// handleSend posts the suggestion into the conversation as the user and
// records the outcome. The final text may differ from the generated one
// when the user edited before sending.
func handleSend(deps Deps, w http.ResponseWriter, r *http.Request, req InteractionRequest, sg storage.Suggestion) {
	finalText := req.Text
	if finalText == "" {
		finalText = sg.Text
	}

	if _, err := deps.Sender.PostMessage(r.Context(), sg.ChannelID, sg.ThreadTS, finalText, nil); err != nil {
		httpError(w, http.StatusBadGateway, "api_error", "failed to post message: %v", err)
		return
	}

	if err := deps.Recorder.Record(sg.ID, feedback.ActionSent, sg.Text, finalText); err != nil {
		slog.Warn("recording send feedback failed", "suggestion_id", sg.ID, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
}

// handleRefine records the refinement and starts a new run with the user's
// instruction. The refined run consumes its own quota unit.
func handleRefine(deps Deps, w http.ResponseWriter, req InteractionRequest, sg storage.Suggestion) {
	if err := deps.Recorder.Record(sg.ID, feedback.ActionRefined, sg.Text, ""); err != nil {
		slog.Warn("recording refine feedback failed", "suggestion_id", sg.ID, "error", err)
	}

	trig := pipeline.Trigger{
		Kind:        pipeline.TriggerManual,
		OrgID:       sg.OrgID,
		SubjectID:   sg.SubjectID,
		ChannelID:   sg.ChannelID,
		ThreadTS:    sg.ThreadTS,
		Text:        sg.Text,
		Instruction: req.Text,
		UseCase:     composer.UseCaseAdHoc,
	}
	go runDetached(deps.Runner, trig)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "refining"})
}

// handleDismiss withdraws the rendered suggestion and records the outcome.
// The deletion is best-effort: the control callback already removed the
// message on most clients, and DM-delivered suggestions cannot be deleted.
func handleDismiss(deps Deps, w http.ResponseWriter, r *http.Request, req InteractionRequest, sg storage.Suggestion) {
	if deps.Ephemeral != nil && sg.MessageTS != "" {
		ref := platform.MessageRef{ChannelID: sg.MessageChannelID, TS: sg.MessageTS}
		if err := deps.Ephemeral.DeleteEphemeral(r.Context(), ref); err != nil {
			slog.Warn("withdrawing dismissed suggestion failed", "suggestion_id", sg.ID, "error", err)
		}
	}

	if err := deps.Recorder.Record(sg.ID, feedback.ActionDismissed, sg.Text, ""); err != nil {
		slog.Warn("recording dismiss feedback failed", "suggestion_id", sg.ID, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "dismissed"})
}
