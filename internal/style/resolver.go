package style

import (
	"errors"
	"log/slog"

	"github.com/mikelarin/draftly/internal/storage"
)

// SettingsStore defines the storage operations the Resolver needs.
// Implemented by storage.Store; the dashboard-owned settings live behind it.
type SettingsStore interface {
	GetOrgStyle(orgID string) (storage.OrgStyle, error)
	GetUserStyle(orgID, userID string) (storage.UserStyle, error)
}

// Resolver merges organization and user preferences into an Effective
// style. Style is a quality enhancement, never a blocking dependency: any
// lookup failure degrades to whatever guidance is still available, down to
// an empty Effective.
type Resolver struct {
	store SettingsStore
}

// NewResolver creates a Resolver backed by the given settings store.
func NewResolver(store SettingsStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the effective style for a subject in an organization,
// applying the organization's precedence mode:
//
//   - override: organization values verbatim, user ignored
//   - layer / fallback: field-by-field, user value when set, org fills gaps
//
// Missing org settings return the user preferences unmodified; missing
// both returns a zero Effective.
func (r *Resolver) Resolve(orgID, subjectID string) Effective {
	orgPref, mode, orgFound := r.orgPreference(orgID)
	userPref, userFound := r.userPreference(orgID, subjectID)

	var eff Effective
	switch mode {
	case ModeOverride:
		switch {
		case orgFound:
			eff = merge(Preference{}, orgPref)
		case userFound:
			// Nothing to override with; fall back to user preferences.
			eff = merge(userPref, Preference{})
		}
	case ModeLayer, ModeFallback:
		if orgFound || userFound {
			eff = merge(userPref, orgPref)
		}
	}

	// The organization's avoid list is policy for every subject, whatever
	// the precedence mode did to the voice fields.
	eff.PolicyPhrases = orgPref.AvoidPhrases
	return eff
}

func (r *Resolver) orgPreference(orgID string) (Preference, Mode, bool) {
	rec, err := r.store.GetOrgStyle(orgID)
	if errors.Is(err, storage.ErrNotFound) {
		return Preference{}, ModeFallback, false
	}
	if err != nil {
		slog.Warn("org style lookup failed, continuing without it", "org_id", orgID, "error", err)
		return Preference{}, ModeFallback, false
	}
	return Preference{
		Tone:             rec.Tone,
		Formality:        rec.Formality,
		PreferredPhrases: parsePhrases(rec.PreferredPhrases),
		AvoidPhrases:     parsePhrases(rec.AvoidPhrases),
		CustomGuidance:   rec.CustomGuidance,
	}, ParseMode(rec.PrecedenceMode), true
}

func (r *Resolver) userPreference(orgID, userID string) (Preference, bool) {
	rec, err := r.store.GetUserStyle(orgID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return Preference{}, false
	}
	if err != nil {
		slog.Warn("user style lookup failed, continuing without it", "org_id", orgID, "user_id", userID, "error", err)
		return Preference{}, false
	}
	return Preference{
		Tone:             rec.Tone,
		Formality:        rec.Formality,
		PreferredPhrases: parsePhrases(rec.PreferredPhrases),
		AvoidPhrases:     parsePhrases(rec.AvoidPhrases),
		CustomGuidance:   rec.CustomGuidance,
	}, true
}
