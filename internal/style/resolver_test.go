package style

import (
	"errors"
	"testing"

	"github.com/mikelarin/draftly/internal/storage"
)

type mockSettingsStore struct {
	getOrgStyleFn  func(orgID string) (storage.OrgStyle, error)
	getUserStyleFn func(orgID, userID string) (storage.UserStyle, error)
}

func (m *mockSettingsStore) GetOrgStyle(orgID string) (storage.OrgStyle, error) {
	return m.getOrgStyleFn(orgID)
}

func (m *mockSettingsStore) GetUserStyle(orgID, userID string) (storage.UserStyle, error) {
	return m.getUserStyleFn(orgID, userID)
}

func orgRecord(mode string) storage.OrgStyle {
	return storage.OrgStyle{
		OrgID:          "acme",
		Tone:           strp("friendly"),
		Formality:      strp("formal"),
		AvoidPhrases:   `["per my last email"]`,
		PrecedenceMode: mode,
	}
}

func userRecord() storage.UserStyle {
	return storage.UserStyle{
		OrgID:  "acme",
		UserID: "U1",
		Tone:   strp("direct"),
	}
}

func TestResolve_FallbackMergesUserOverOrg(t *testing.T) {
	store := &mockSettingsStore{
		getOrgStyleFn: func(string) (storage.OrgStyle, error) { return orgRecord("fallback"), nil },
		getUserStyleFn: func(string, string) (storage.UserStyle, error) {
			return userRecord(), nil
		},
	}

	eff := NewResolver(store).Resolve("acme", "U1")
	if eff.Tone != "direct" {
		t.Errorf("Tone = %q, want user value direct", eff.Tone)
	}
	if eff.Formality != "formal" {
		t.Errorf("Formality = %q, want org fill-in formal", eff.Formality)
	}
	if len(eff.AvoidPhrases) != 1 || eff.AvoidPhrases[0] != "per my last email" {
		t.Errorf("AvoidPhrases = %v, want org list", eff.AvoidPhrases)
	}
}

func TestResolve_LayerSameMergeAsFallback(t *testing.T) {
	for _, mode := range []string{"layer", "fallback"} {
		store := &mockSettingsStore{
			getOrgStyleFn:  func(string) (storage.OrgStyle, error) { return orgRecord(mode), nil },
			getUserStyleFn: func(string, string) (storage.UserStyle, error) { return userRecord(), nil },
		}
		eff := NewResolver(store).Resolve("acme", "U1")
		if eff.Tone != "direct" || eff.Formality != "formal" {
			t.Errorf("mode %s: got tone=%q formality=%q, want direct/formal", mode, eff.Tone, eff.Formality)
		}
	}
}

func TestResolve_OverrideIgnoresUser(t *testing.T) {
	store := &mockSettingsStore{
		getOrgStyleFn:  func(string) (storage.OrgStyle, error) { return orgRecord("override"), nil },
		getUserStyleFn: func(string, string) (storage.UserStyle, error) { return userRecord(), nil },
	}

	eff := NewResolver(store).Resolve("acme", "U1")
	if eff.Tone != "friendly" {
		t.Errorf("Tone = %q, want org value friendly under override", eff.Tone)
	}
}

func TestResolve_OverrideWithoutOrgUsesUser(t *testing.T) {
	store := &mockSettingsStore{
		getOrgStyleFn: func(string) (storage.OrgStyle, error) {
			return storage.OrgStyle{}, storage.ErrNotFound
		},
		getUserStyleFn: func(string, string) (storage.UserStyle, error) { return userRecord(), nil },
	}

	eff := NewResolver(store).Resolve("acme", "U1")
	if eff.Tone != "direct" {
		t.Errorf("Tone = %q, want user value when org record is missing", eff.Tone)
	}
}

func TestResolve_MissingEverythingIsZero(t *testing.T) {
	store := &mockSettingsStore{
		getOrgStyleFn: func(string) (storage.OrgStyle, error) {
			return storage.OrgStyle{}, storage.ErrNotFound
		},
		getUserStyleFn: func(string, string) (storage.UserStyle, error) {
			return storage.UserStyle{}, storage.ErrNotFound
		},
	}
	if eff := NewResolver(store).Resolve("acme", "U1"); !eff.IsZero() {
		t.Errorf("expected zero Effective, got %+v", eff)
	}
}

// The org avoid list is carried as policy even when the user's own avoid
// list wins the voice merge.
func TestResolve_OrgPolicyPhrasesSurviveMerge(t *testing.T) {
	user := userRecord()
	user.AvoidPhrases = `["circling back"]`
	store := &mockSettingsStore{
		getOrgStyleFn:  func(string) (storage.OrgStyle, error) { return orgRecord("fallback"), nil },
		getUserStyleFn: func(string, string) (storage.UserStyle, error) { return user, nil },
	}

	eff := NewResolver(store).Resolve("acme", "U1")
	if len(eff.AvoidPhrases) != 1 || eff.AvoidPhrases[0] != "circling back" {
		t.Errorf("AvoidPhrases = %v, want the user's list", eff.AvoidPhrases)
	}
	if len(eff.PolicyPhrases) != 1 || eff.PolicyPhrases[0] != "per my last email" {
		t.Errorf("PolicyPhrases = %v, want the org list regardless of merge", eff.PolicyPhrases)
	}
}

func TestResolve_NoOrgMeansNoPolicyPhrases(t *testing.T) {
	store := &mockSettingsStore{
		getOrgStyleFn: func(string) (storage.OrgStyle, error) {
			return storage.OrgStyle{}, storage.ErrNotFound
		},
		getUserStyleFn: func(string, string) (storage.UserStyle, error) { return userRecord(), nil },
	}
	if eff := NewResolver(store).Resolve("acme", "U1"); eff.PolicyPhrases != nil {
		t.Errorf("PolicyPhrases = %v, want none without an org record", eff.PolicyPhrases)
	}
}

// Lookup errors degrade to whatever guidance is still reachable.
func TestResolve_StoreErrorDegrades(t *testing.T) {
	store := &mockSettingsStore{
		getOrgStyleFn: func(string) (storage.OrgStyle, error) {
			return storage.OrgStyle{}, errors.New("disk on fire")
		},
		getUserStyleFn: func(string, string) (storage.UserStyle, error) { return userRecord(), nil },
	}

	eff := NewResolver(store).Resolve("acme", "U1")
	if eff.Tone != "direct" {
		t.Errorf("Tone = %q, want user value despite org lookup error", eff.Tone)
	}
}
