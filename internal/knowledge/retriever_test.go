package knowledge

import (
	"context"
	"errors"
	"testing"
)

type mockQueryEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockQueryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.embedFn(ctx, text)
}

type mockSearcher struct {
	searchFn func(orgID string, vector []float32, topK int) ([]ScoredRecord, error)
}

func (m *mockSearcher) Search(orgID string, vector []float32, topK int) ([]ScoredRecord, error) {
	return m.searchFn(orgID, vector, topK)
}

func TestRetrieve(t *testing.T) {
	embedder := &mockQueryEmbedder{
		embedFn: func(_ context.Context, text string) ([]float32, error) {
			if text != "when do refunds land" {
				t.Errorf("query = %q", text)
			}
			return []float32{1, 0}, nil
		},
	}
	searcher := &mockSearcher{
		searchFn: func(orgID string, vector []float32, topK int) ([]ScoredRecord, error) {
			if orgID != "acme" || topK != 5 {
				t.Errorf("Search(%q, _, %d)", orgID, topK)
			}
			return []ScoredRecord{{Record: Record{ID: "a"}, Score: 0.9}}, nil
		},
	}

	got, err := NewRetriever(embedder, searcher, 0).Retrieve(context.Background(), "acme", "when do refunds land")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("Retrieve = %+v", got)
	}
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	embedder := &mockQueryEmbedder{
		embedFn: func(context.Context, string) ([]float32, error) {
			t.Fatal("no embedding expected for empty query")
			return nil, nil
		},
	}
	got, err := NewRetriever(embedder, &mockSearcher{}, 5).Retrieve(context.Background(), "acme", "")
	if err != nil || got != nil {
		t.Errorf("Retrieve(\"\") = %v, %v", got, err)
	}
}

func TestRetrieve_EmbedError(t *testing.T) {
	embedder := &mockQueryEmbedder{
		embedFn: func(context.Context, string) ([]float32, error) {
			return nil, errors.New("provider down")
		},
	}
	if _, err := NewRetriever(embedder, &mockSearcher{}, 5).Retrieve(context.Background(), "acme", "q"); err == nil {
		t.Fatal("expected error")
	}
}
