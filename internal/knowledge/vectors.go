package knowledge

import (
	"container/heap"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// Record is one embedded snippet chunk in the vector store.
type Record struct {
	ID        string
	SnippetID string
	OrgID     string
	TextChunk string
	Embedding []float32
	CreatedAt time.Time
}

// ScoredRecord pairs a record with its cosine similarity to a query.
type ScoredRecord struct {
	Record
	Score float32
}

// Vectors provides vector storage and brute-force cosine similarity search
// backed by SQLite. Brute force is fine at the snippet counts a single
// workspace produces; an ANN index would only pay for itself past ~100K
// vectors.
type Vectors struct {
	db *sql.DB
}

// NewVectors wraps an existing *sql.DB for vector operations. The
// snippet_vectors table must already exist (created via migrations).
func NewVectors(db *sql.DB) *Vectors {
	return &Vectors{db: db}
}

// Insert adds records to the vector store.
func (v *Vectors) Insert(records []Record) error {
	tx, err := v.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO snippet_vectors (id, snippet_id, org_id, text_chunk, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.Exec(r.ID, r.SnippetID, r.OrgID, r.TextChunk, encodeFloat32s(r.Embedding), createdAt.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// idScore carries only ID and score during the scan phase of Search; full
// rows are fetched for top-K winners only.
type idScore struct {
	ID    string
	Score float32
}

// Search returns the organization's topK records most similar to vector,
// by cosine similarity, ordered by score descending.
func (v *Vectors) Search(orgID string, vector []float32, topK int) ([]ScoredRecord, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	rows, err := v.db.Query(`SELECT id, embedding FROM snippet_vectors WHERE org_id = ?`, orgID)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable buffer to avoid per-row allocations during the scan.
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	topIDs := make([]string, h.Len())
	scores := make(map[string]float32, h.Len())
	for i := len(topIDs) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		topIDs[i] = item.ID
		scores[item.ID] = item.Score
	}

	args := make([]any, len(topIDs))
	for i, id := range topIDs {
		args[i] = id
	}
	query := `SELECT id, snippet_id, org_id, text_chunk, embedding, created_at
		FROM snippet_vectors WHERE id IN (?` + strings.Repeat(",?", len(topIDs)-1) + `)`

	full, err := v.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching top records: %w", err)
	}
	defer full.Close()

	var results []ScoredRecord
	for full.Next() {
		var r Record
		var blob []byte
		var createdAt string
		if err := full.Scan(&r.ID, &r.SnippetID, &r.OrgID, &r.TextChunk, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning full record: %w", err)
		}
		if r.Embedding, err = decodeFloat32s(blob); err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", r.ID, err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, ScoredRecord{Record: r, Score: scores[r.ID]})
	}
	if err := full.Err(); err != nil {
		return nil, fmt.Errorf("iterating full records: %w", err)
	}

	// The IN query does not preserve rank order.
	sortByScore(results)

	return results, nil
}

// DeleteBySnippet removes all vectors belonging to a snippet.
func (v *Vectors) DeleteBySnippet(snippetID string) error {
	if _, err := v.db.Exec("DELETE FROM snippet_vectors WHERE snippet_id = ?", snippetID); err != nil {
		return fmt.Errorf("deleting vectors for snippet %s: %w", snippetID, err)
	}
	return nil
}

// Count returns the number of stored vectors for an organization.
func (v *Vectors) Count(orgID string) (int, error) {
	var count int
	err := v.db.QueryRow("SELECT COUNT(*) FROM snippet_vectors WHERE org_id = ?", orgID).Scan(&count)
	return count, err
}

// sortByScore sorts by Score descending; insertion sort is plenty for topK
// sized slices.
func sortByScore(results []ScoredRecord) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes into the provided buffer, reusing it across
// rows.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * |b|); aNorm is precomputed.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// idScoreHeap is a min-heap ordered by Score, used to track top-K
// candidates during the scan.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int           { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)        { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
