package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mikelarin/draftly/internal/knowledge"
	"github.com/mikelarin/draftly/internal/storage"
)

const maxSnippetBodySize = 10 << 20 // 10MB, PDFs arrive base64-encoded

// SnippetRequest ingests one knowledge snippet. Type selects the content
// handling: "text" (default), "url", or "pdf" (base64 content).
type SnippetRequest struct {
	OrgID   string   `json:"org_id"`
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	URL     string   `json:"url"`
	Tags    []string `json:"tags"`
}

func handleIngestSnippet(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSnippetBodySize)
		defer r.Body.Close()

		var req SnippetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.OrgID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "org_id is required")
			return
		}
		if req.Content == "" && req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of content or url is required")
			return
		}
		if req.Type == "" {
			req.Type = "text"
		}

		var resolvedContent string
		var source string
		switch req.Type {
		case "text":
			resolvedContent = req.Content
			source = "text"

		case "url":
			if req.URL == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required for type url")
				return
			}
			text, err := knowledge.FetchURL(r.Context(), req.URL)
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "failed to fetch url: %v", err)
				return
			}
			resolvedContent = text
			source = req.URL
			if req.Title == "" {
				req.Title = req.URL
			}

		case "pdf":
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			text, err := knowledge.ExtractPDF(decoded)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to extract pdf text: %v", err)
				return
			}
			resolvedContent = text
			source = "pdf"

		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown snippet type %q", req.Type)
			return
		}

		if resolvedContent == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no text could be extracted")
			return
		}

		tagsJSON := "[]"
		if req.Tags != nil {
			b, err := json.Marshal(req.Tags)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to marshal tags: %v", err)
				return
			}
			tagsJSON = string(b)
		}

		sn := storage.Snippet{
			ID:        uuid.New().String(),
			OrgID:     req.OrgID,
			Title:     req.Title,
			Content:   resolvedContent,
			Source:    source,
			Tags:      tagsJSON,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveSnippet(sn); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save snippet: %v", err)
			return
		}

		payload, err := json.Marshal(knowledge.EmbedJobPayload{SnippetID: sn.ID})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create job payload: %v", err)
			return
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        knowledge.JobType,
			PayloadJSON: string(payload),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue embed job: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":     sn.ID,
			"status": "queued",
		})
	}
}

func handleListSnippets(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := r.URL.Query().Get("org_id")
		if orgID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "org_id is required")
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		snippets, err := deps.Store.ListSnippets(orgID, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list snippets: %v", err)
			return
		}
		if snippets == nil {
			snippets = []storage.Snippet{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snippets)
	}
}

func handleDeleteSnippet(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if deps.Vectors != nil {
			if err := deps.Vectors.DeleteBySnippet(id); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to delete snippet vectors: %v", err)
				return
			}
		}

		err := deps.Store.DeleteSnippet(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "snippet not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete snippet: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}
