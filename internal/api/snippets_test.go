package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mikelarin/draftly/internal/knowledge"
	"github.com/mikelarin/draftly/internal/storage"
)

func TestIngestSnippet_Text(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/snippets", map[string]any{
		"org_id":  "acme",
		"content": "Refunds are processed within 30 days.",
		"title":   "Refund policy",
		"tags":    []string{"policy"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["status"] != "queued" || body["id"] == "" {
		t.Errorf("body = %v", body)
	}

	id := body["id"].(string)
	sn, err := f.store.GetSnippet(id)
	if err != nil {
		t.Fatalf("GetSnippet: %v", err)
	}
	if sn.Content != "Refunds are processed within 30 days." || sn.Source != "text" || sn.Tags != `["policy"]` {
		t.Errorf("snippet = %+v", sn)
	}

	// An embed job was queued for the worker.
	job, err := f.store.ClaimNextJob([]string{knowledge.JobType})
	if err != nil || job == nil {
		t.Fatalf("ClaimNextJob = %v, %v", job, err)
	}
}

func TestIngestSnippet_Validation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing org", map[string]any{"content": "x"}},
		{"no content or url", map[string]any{"org_id": "acme"}},
		{"unknown type", map[string]any{"org_id": "acme", "type": "docx", "content": "x"}},
		{"bad base64 pdf", map[string]any{"org_id": "acme", "type": "pdf", "content": "!!not-base64!!"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/snippets", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("code = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestListSnippets(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/snippets", map[string]any{"org_id": "acme", "content": "doc"})
	if w.Code != http.StatusOK {
		t.Fatalf("ingest code = %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/snippets?org_id=acme", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list code = %d", w.Code)
	}

	// org_id is mandatory.
	w = f.do(t, http.MethodGet, "/snippets", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing org_id: code = %d, want 400", w.Code)
	}

	// Unknown org returns an empty list, not null.
	w = f.do(t, http.MethodGet, "/snippets?org_id=ghost", nil)
	if w.Code != http.StatusOK || w.Body.String() == "null\n" {
		t.Errorf("empty list response = %q", w.Body.String())
	}
}

type recordingDeleter struct {
	deleted []string
}

func (d *recordingDeleter) DeleteBySnippet(snippetID string) error {
	d.deleted = append(d.deleted, snippetID)
	return nil
}

func TestDeleteSnippet(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/snippets", map[string]any{"org_id": "acme", "content": "doc"})
	id := decodeBody(t, w)["id"].(string)

	w = f.do(t, http.MethodDelete, "/snippets/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete code = %d", w.Code)
	}

	w = f.do(t, http.MethodDelete, "/snippets/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete code = %d, want 404", w.Code)
	}
}

func TestDeleteSnippet_CleansVectors(t *testing.T) {
	// Rebuild the handler with the vector deleter wired in.
	f := newFixture(t)
	deleter := &recordingDeleter{}
	handler := NewHandler(Deps{
		Store:   f.store,
		Runner:  f.runner,
		Vectors: deleter,
		Token:   testToken,
	})

	sn := storage.Snippet{
		ID: "sn1", OrgID: "acme", Title: "doc", Content: "text",
		Source: "text", Tags: "[]", CreatedAt: time.Now().UTC(),
	}
	if err := f.store.SaveSnippet(sn); err != nil {
		t.Fatalf("SaveSnippet: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/snippets/sn1", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if len(deleter.deleted) != 1 || deleter.deleted[0] != "sn1" {
		t.Errorf("vector cleanup calls = %v", deleter.deleted)
	}
}
