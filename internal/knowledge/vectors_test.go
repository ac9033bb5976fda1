package knowledge

import (
	"math"
	"testing"

	"github.com/mikelarin/draftly/internal/storage"
)

func openVectors(t *testing.T) *Vectors {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewVectors(store.DB())
}

func TestVectors_InsertAndSearchRanking(t *testing.T) {
	v := openVectors(t)
	records := []Record{
		{ID: "a", SnippetID: "s1", OrgID: "acme", TextChunk: "refund policy", Embedding: []float32{1, 0, 0}},
		{ID: "b", SnippetID: "s2", OrgID: "acme", TextChunk: "deploy guide", Embedding: []float32{0, 1, 0}},
		{ID: "c", SnippetID: "s3", OrgID: "acme", TextChunk: "mixed doc", Embedding: []float32{0.9, 0.1, 0}},
	}
	if err := v.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := v.Search("acme", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("ranking = [%s %s], want [a c]", got[0].ID, got[1].ID)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("scores not descending: %v then %v", got[0].Score, got[1].Score)
	}
	if got[0].TextChunk != "refund policy" {
		t.Errorf("TextChunk = %q, full record not hydrated", got[0].TextChunk)
	}
}

func TestVectors_SearchScopedToOrg(t *testing.T) {
	v := openVectors(t)
	if err := v.Insert([]Record{
		{ID: "a", SnippetID: "s1", OrgID: "acme", TextChunk: "ours", Embedding: []float32{1, 0}},
		{ID: "b", SnippetID: "s2", OrgID: "rival", TextChunk: "theirs", Embedding: []float32{1, 0}},
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := v.Search("acme", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].OrgID != "acme" {
		t.Errorf("results crossed the org boundary: %+v", got)
	}
}

func TestVectors_SearchEdgeCases(t *testing.T) {
	v := openVectors(t)

	// Empty store.
	got, err := v.Search("acme", []float32{1, 0}, 5)
	if err != nil || got != nil {
		t.Errorf("empty store: %v, %v", got, err)
	}

	// Zero query vector and non-positive topK short-circuit.
	if got, err := v.Search("acme", []float32{0, 0}, 5); err != nil || got != nil {
		t.Errorf("zero vector: %v, %v", got, err)
	}
	if got, err := v.Search("acme", []float32{1, 0}, 0); err != nil || got != nil {
		t.Errorf("topK 0: %v, %v", got, err)
	}
}

func TestVectors_DeleteBySnippetAndCount(t *testing.T) {
	v := openVectors(t)
	if err := v.Insert([]Record{
		{ID: "a", SnippetID: "s1", OrgID: "acme", TextChunk: "x", Embedding: []float32{1}},
		{ID: "b", SnippetID: "s1", OrgID: "acme", TextChunk: "y", Embedding: []float32{1}},
		{ID: "c", SnippetID: "s2", OrgID: "acme", TextChunk: "z", Embedding: []float32{1}},
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := v.DeleteBySnippet("s1"); err != nil {
		t.Fatalf("DeleteBySnippet: %v", err)
	}
	n, err := v.Count("acme")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, float32(math.Pi)}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}

	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestCosine(t *testing.T) {
	a := []float32{1, 0}
	cases := []struct {
		b    []float32
		want float32
	}{
		{[]float32{1, 0}, 1},
		{[]float32{0, 1}, 0},
		{[]float32{-1, 0}, -1},
		{[]float32{0, 0}, 0},
		{[]float32{1, 0, 0}, 0}, // dimension mismatch
	}
	for _, tc := range cases {
		got := cosine(a, tc.b, norm(a))
		if math.Abs(float64(got-tc.want)) > 1e-6 {
			t.Errorf("cosine(%v, %v) = %v, want %v", a, tc.b, got, tc.want)
		}
	}
}
