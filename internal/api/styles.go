package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mikelarin/draftly/internal/storage"
)

// StylePayload is the wire shape of a style record. Absent fields stay
// unset, preserving the "not configured" vs "configured empty" distinction
// the precedence merge depends on.
type StylePayload struct {
	Tone             *string  `json:"tone,omitempty"`
	Formality        *string  `json:"formality,omitempty"`
	PreferredPhrases []string `json:"preferred_phrases,omitempty"`
	AvoidPhrases     []string `json:"avoid_phrases,omitempty"`
	CustomGuidance   *string  `json:"custom_guidance,omitempty"`
	// PrecedenceMode only applies to organization styles.
	PrecedenceMode string `json:"precedence_mode,omitempty"`
}

func handleGetOrgStyle(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := chi.URLParam(r, "orgID")

		st, err := deps.Store.GetOrgStyle(orgID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "org style not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get org style: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(StylePayload{
			Tone:             st.Tone,
			Formality:        st.Formality,
			PreferredPhrases: decodePhrases(st.PreferredPhrases),
			AvoidPhrases:     decodePhrases(st.AvoidPhrases),
			CustomGuidance:   st.CustomGuidance,
			PrecedenceMode:   st.PrecedenceMode,
		})
	}
}

func handlePutOrgStyle(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := chi.URLParam(r, "orgID")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req StylePayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.PrecedenceMode != "" && !validMode(req.PrecedenceMode) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown precedence_mode %q", req.PrecedenceMode)
			return
		}

		st := storage.OrgStyle{
			OrgID:            orgID,
			Tone:             req.Tone,
			Formality:        req.Formality,
			PreferredPhrases: encodePhrases(req.PreferredPhrases),
			AvoidPhrases:     encodePhrases(req.AvoidPhrases),
			CustomGuidance:   req.CustomGuidance,
			PrecedenceMode:   req.PrecedenceMode,
			UpdatedAt:        time.Now().UTC(),
		}
		if err := deps.Store.UpsertOrgStyle(st); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save org style: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
	}
}

func handleGetUserStyle(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := chi.URLParam(r, "orgID")
		userID := chi.URLParam(r, "userID")

		st, err := deps.Store.GetUserStyle(orgID, userID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "user style not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get user style: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(StylePayload{
			Tone:             st.Tone,
			Formality:        st.Formality,
			PreferredPhrases: decodePhrases(st.PreferredPhrases),
			AvoidPhrases:     decodePhrases(st.AvoidPhrases),
			CustomGuidance:   st.CustomGuidance,
		})
	}
}

func handlePutUserStyle(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := chi.URLParam(r, "orgID")
		userID := chi.URLParam(r, "userID")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req StylePayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		st := storage.UserStyle{
			OrgID:            orgID,
			UserID:           userID,
			Tone:             req.Tone,
			Formality:        req.Formality,
			PreferredPhrases: encodePhrases(req.PreferredPhrases),
			AvoidPhrases:     encodePhrases(req.AvoidPhrases),
			CustomGuidance:   req.CustomGuidance,
			UpdatedAt:        time.Now().UTC(),
		}
		if err := deps.Store.UpsertUserStyle(st); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save user style: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
	}
}

func validMode(s string) bool {
	return s == "override" || s == "layer" || s == "fallback"
}

func encodePhrases(phrases []string) string {
	if len(phrases) == 0 {
		return "[]"
	}
	b, err := json.Marshal(phrases)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodePhrases(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
