// Package api is the HTTP surface: platform event and interaction
// callbacks, snippet ingest, style settings, quota reporting, and the MCP
// server. Handlers stay thin; all suggestion semantics live in the
// pipeline.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mikelarin/draftly/internal/feedback"
	"github.com/mikelarin/draftly/internal/pipeline"
	"github.com/mikelarin/draftly/internal/platform"
	"github.com/mikelarin/draftly/internal/quota"
	"github.com/mikelarin/draftly/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// runTimeout bounds one background suggestion run, including the streaming
// model call.
const runTimeout = 5 * time.Minute

// SuggestionRunner executes one suggestion run.
type SuggestionRunner interface {
	Run(ctx context.Context, trig pipeline.Trigger) (pipeline.Result, error)
}

// Sender posts accepted suggestions into the conversation.
type Sender interface {
	PostMessage(ctx context.Context, channelID, threadTS, text string, controls []platform.Control) (platform.MessageRef, error)
}

// VectorDeleter removes a snippet's vectors when the snippet is deleted.
type VectorDeleter interface {
	DeleteBySnippet(snippetID string) error
}

// EphemeralDeleter withdraws a delivered ephemeral message.
type EphemeralDeleter interface {
	DeleteEphemeral(ctx context.Context, ref platform.MessageRef) error
}

// Deps carries the wired application for the HTTP handlers.
type Deps struct {
	Store    *storage.Store
	Runner   SuggestionRunner
	Recorder *feedback.Recorder
	Quota    *quota.Controller
	Sender   Sender
	Vectors  VectorDeleter // optional; nil skips vector cleanup on delete
	// Ephemeral withdraws the rendered message on dismiss; optional, and
	// best-effort either way (DM-delivered suggestions cannot be deleted).
	Ephemeral EphemeralDeleter
	Token     string
}

// NewHandler builds the authenticated application router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/events", handleEvents(deps))
		r.Post("/interactions", handleInteractions(deps))

		r.Post("/snippets", handleIngestSnippet(deps))
		r.Get("/snippets", handleListSnippets(deps))
		r.Delete("/snippets/{id}", handleDeleteSnippet(deps))

		r.Get("/orgs/{orgID}/style", handleGetOrgStyle(deps))
		r.Put("/orgs/{orgID}/style", handlePutOrgStyle(deps))
		r.Get("/orgs/{orgID}/users/{userID}/style", handleGetUserStyle(deps))
		r.Put("/orgs/{orgID}/users/{userID}/style", handlePutUserStyle(deps))

		r.Get("/quota/{subjectID}", handleQuotaReport(deps))
		r.Get("/suggestions", handleListSuggestions(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleQuotaReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subjectID := chi.URLParam(r, "subjectID")

		d, err := deps.Quota.Report(r.Context(), subjectID, time.Now())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read quota: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"subject_id": subjectID,
			"period":     d.PeriodKey,
			"used":       d.Used,
			"limit":      d.Limit,
			"level":      string(d.Level),
		})
	}
}

func handleListSuggestions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		suggestions, err := deps.Store.ListRecentSuggestions(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list suggestions: %v", err)
			return
		}
		if suggestions == nil {
			suggestions = []storage.Suggestion{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(suggestions)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
