package knowledge

import (
	"context"
	"fmt"
)

// Searcher is the vector-store slice the Retriever needs.
type Searcher interface {
	Search(orgID string, vector []float32, topK int) ([]ScoredRecord, error)
}

// QueryEmbedder embeds the retrieval query.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever finds the snippets most relevant to a conversation.
type Retriever struct {
	embedder QueryEmbedder
	vectors  Searcher
	topK     int
}

// NewRetriever creates a Retriever returning at most topK snippets per
// query (default 5 when non-positive).
func NewRetriever(embedder QueryEmbedder, vectors Searcher, topK int) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{embedder: embedder, vectors: vectors, topK: topK}
}

// Retrieve embeds the query and returns the organization's most similar
// snippet chunks, best first.
func (r *Retriever) Retrieve(ctx context.Context, orgID, query string) ([]ScoredRecord, error) {
	if query == "" {
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding retrieval query: %w", err)
	}

	records, err := r.vectors.Search(orgID, vec, r.topK)
	if err != nil {
		return nil, fmt.Errorf("searching snippet vectors: %w", err)
	}
	return records, nil
}
