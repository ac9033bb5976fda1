package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func nullable(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// GetOrgStyle returns the organization style record, or ErrNotFound when the
// organization has never configured one.
func (s *Store) GetOrgStyle(orgID string) (OrgStyle, error) {
	var st OrgStyle
	var tone, formality, guidance sql.NullString
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT org_id, tone, formality, preferred_phrases, avoid_phrases, custom_guidance, precedence_mode, updated_at
		FROM org_styles WHERE org_id = ?`, orgID,
	).Scan(&st.OrgID, &tone, &formality, &st.PreferredPhrases, &st.AvoidPhrases, &guidance, &st.PrecedenceMode, &updatedAt)
	if err == sql.ErrNoRows {
		return OrgStyle{}, ErrNotFound
	}
	if err != nil {
		return OrgStyle{}, err
	}
	st.Tone = fromNull(tone)
	st.Formality = fromNull(formality)
	st.CustomGuidance = fromNull(guidance)
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return OrgStyle{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	st.UpdatedAt = t
	return st, nil
}

// UpsertOrgStyle creates or replaces the organization style record.
func (s *Store) UpsertOrgStyle(st OrgStyle) error {
	if st.PreferredPhrases == "" {
		st.PreferredPhrases = "[]"
	}
	if st.AvoidPhrases == "" {
		st.AvoidPhrases = "[]"
	}
	if st.PrecedenceMode == "" {
		st.PrecedenceMode = "fallback"
	}
	_, err := s.db.Exec(`
		INSERT INTO org_styles (org_id, tone, formality, preferred_phrases, avoid_phrases, custom_guidance, precedence_mode, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id) DO UPDATE SET
			tone = excluded.tone,
			formality = excluded.formality,
			preferred_phrases = excluded.preferred_phrases,
			avoid_phrases = excluded.avoid_phrases,
			custom_guidance = excluded.custom_guidance,
			precedence_mode = excluded.precedence_mode,
			updated_at = excluded.updated_at`,
		st.OrgID, nullable(st.Tone), nullable(st.Formality), st.PreferredPhrases, st.AvoidPhrases,
		nullable(st.CustomGuidance), st.PrecedenceMode, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetUserStyle returns the user style record scoped to an organization, or
// ErrNotFound when the user has never configured one.
func (s *Store) GetUserStyle(orgID, userID string) (UserStyle, error) {
	var st UserStyle
	var tone, formality, guidance sql.NullString
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT org_id, user_id, tone, formality, preferred_phrases, avoid_phrases, custom_guidance, updated_at
		FROM user_styles WHERE org_id = ? AND user_id = ?`, orgID, userID,
	).Scan(&st.OrgID, &st.UserID, &tone, &formality, &st.PreferredPhrases, &st.AvoidPhrases, &guidance, &updatedAt)
	if err == sql.ErrNoRows {
		return UserStyle{}, ErrNotFound
	}
	if err != nil {
		return UserStyle{}, err
	}
	st.Tone = fromNull(tone)
	st.Formality = fromNull(formality)
	st.CustomGuidance = fromNull(guidance)
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return UserStyle{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	st.UpdatedAt = t
	return st, nil
}

// UpsertUserStyle creates or replaces a user style record.
func (s *Store) UpsertUserStyle(st UserStyle) error {
	if st.PreferredPhrases == "" {
		st.PreferredPhrases = "[]"
	}
	if st.AvoidPhrases == "" {
		st.AvoidPhrases = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO user_styles (org_id, user_id, tone, formality, preferred_phrases, avoid_phrases, custom_guidance, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, user_id) DO UPDATE SET
			tone = excluded.tone,
			formality = excluded.formality,
			preferred_phrases = excluded.preferred_phrases,
			avoid_phrases = excluded.avoid_phrases,
			custom_guidance = excluded.custom_guidance,
			updated_at = excluded.updated_at`,
		st.OrgID, st.UserID, nullable(st.Tone), nullable(st.Formality), st.PreferredPhrases, st.AvoidPhrases,
		nullable(st.CustomGuidance), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}
