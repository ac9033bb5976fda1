package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Suggestions ---

func (s *Store) SaveSuggestion(sg Suggestion) error {
	_, err := s.db.Exec(`
		INSERT INTO suggestions (id, subject_id, org_id, channel_id, thread_ts, trigger_kind, text, message_channel_id, message_ts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sg.ID, sg.SubjectID, sg.OrgID, sg.ChannelID, sg.ThreadTS, sg.TriggerKind, sg.Text,
		sg.MessageChannelID, sg.MessageTS,
		sg.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetSuggestion(id string) (Suggestion, error) {
	var sg Suggestion
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, subject_id, org_id, channel_id, thread_ts, trigger_kind, text, message_channel_id, message_ts, created_at
		FROM suggestions WHERE id = ?`, id,
	).Scan(&sg.ID, &sg.SubjectID, &sg.OrgID, &sg.ChannelID, &sg.ThreadTS, &sg.TriggerKind, &sg.Text, &sg.MessageChannelID, &sg.MessageTS, &createdAt)
	if err == sql.ErrNoRows {
		return Suggestion{}, ErrNotFound
	}
	if err != nil {
		return Suggestion{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Suggestion{}, fmt.Errorf("parsing created_at: %w", err)
	}
	sg.CreatedAt = t
	return sg, nil
}

func (s *Store) ListRecentSuggestions(limit, offset int) ([]Suggestion, error) {
	rows, err := s.db.Query(`
		SELECT id, subject_id, org_id, channel_id, thread_ts, trigger_kind, text, message_channel_id, message_ts, created_at
		FROM suggestions ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Suggestion
	for rows.Next() {
		var sg Suggestion
		var createdAt string
		if err := rows.Scan(&sg.ID, &sg.SubjectID, &sg.OrgID, &sg.ChannelID, &sg.ThreadTS, &sg.TriggerKind, &sg.Text, &sg.MessageChannelID, &sg.MessageTS, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		sg.CreatedAt = t
		results = append(results, sg)
	}
	return results, rows.Err()
}

// --- Feedback events ---

func (s *Store) AppendFeedbackEvent(e FeedbackEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO feedback_events (id, suggestion_id, action, original_text, final_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.SuggestionID, e.Action, e.OriginalText, e.FinalText,
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListFeedbackEvents(suggestionID string) ([]FeedbackEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, suggestion_id, action, original_text, final_text, created_at
		FROM feedback_events WHERE suggestion_id = ? ORDER BY created_at ASC`, suggestionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FeedbackEvent
	for rows.Next() {
		var e FeedbackEvent
		var createdAt string
		if err := rows.Scan(&e.ID, &e.SuggestionID, &e.Action, &e.OriginalText, &e.FinalText, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		results = append(results, e)
	}
	return results, rows.Err()
}

// --- Guardrail violations ---

func (s *Store) SaveViolation(v GuardrailViolation) error {
	_, err := s.db.Exec(`
		INSERT INTO guardrail_violations (id, org_id, subject_id, rule, severity, snippet, stage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.OrgID, v.SubjectID, v.Rule, v.Severity, v.Snippet, v.Stage,
		v.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListViolations(orgID string, limit int) ([]GuardrailViolation, error) {
	rows, err := s.db.Query(`
		SELECT id, org_id, subject_id, rule, severity, snippet, stage, created_at
		FROM guardrail_violations WHERE org_id = ? ORDER BY created_at DESC LIMIT ?`, orgID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []GuardrailViolation
	for rows.Next() {
		var v GuardrailViolation
		var createdAt string
		if err := rows.Scan(&v.ID, &v.OrgID, &v.SubjectID, &v.Rule, &v.Severity, &v.Snippet, &v.Stage, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		v.CreatedAt = t
		results = append(results, v)
	}
	return results, rows.Err()
}

// --- Audit events ---

func (s *Store) SaveAuditEvent(e AuditEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO audit_events (id, kind, subject_id, org_id, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.SubjectID, e.OrgID, e.PayloadJSON,
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// --- Snippets ---

func (s *Store) SaveSnippet(sn Snippet) error {
	_, err := s.db.Exec(`
		INSERT INTO snippets (id, org_id, title, content, source, tags, created_at, vector_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sn.ID, sn.OrgID, sn.Title, sn.Content, sn.Source, sn.Tags,
		sn.CreatedAt.UTC().Format(time.RFC3339), sn.VectorID,
	)
	return err
}

func (s *Store) GetSnippet(id string) (Snippet, error) {
	var sn Snippet
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, org_id, title, content, source, tags, created_at, vector_id
		FROM snippets WHERE id = ?`, id,
	).Scan(&sn.ID, &sn.OrgID, &sn.Title, &sn.Content, &sn.Source, &sn.Tags, &createdAt, &sn.VectorID)
	if err == sql.ErrNoRows {
		return Snippet{}, ErrNotFound
	}
	if err != nil {
		return Snippet{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Snippet{}, fmt.Errorf("parsing created_at: %w", err)
	}
	sn.CreatedAt = t
	return sn, nil
}

func (s *Store) ListSnippets(orgID string, limit, offset int) ([]Snippet, error) {
	rows, err := s.db.Query(`
		SELECT id, org_id, title, content, source, tags, created_at, vector_id
		FROM snippets WHERE org_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, orgID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Snippet
	for rows.Next() {
		var sn Snippet
		var createdAt string
		if err := rows.Scan(&sn.ID, &sn.OrgID, &sn.Title, &sn.Content, &sn.Source, &sn.Tags, &createdAt, &sn.VectorID); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		sn.CreatedAt = t
		results = append(results, sn)
	}
	return results, rows.Err()
}

func (s *Store) DeleteSnippet(id string) error {
	res, err := s.db.Exec(`DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateSnippetVectorID(id, vectorID string) error {
	res, err := s.db.Exec(`UPDATE snippets SET vector_id = ? WHERE id = ?`, vectorID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
