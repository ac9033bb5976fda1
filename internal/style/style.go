// Package style resolves organization- and user-level voice preferences
// into one effective style context for a generation request.
package style

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Mode is the organization's precedence mode for merging user preferences
// over organization preferences.
type Mode int

const (
	// ModeFallback is the default: user values win, organization values
	// fill the gaps.
	ModeFallback Mode = iota
	// ModeLayer merges field-by-field, preferring the user's non-empty
	// value. Today this is the same merge as ModeFallback; the two modes
	// are kept distinct so they can diverge if product intent ever does.
	ModeLayer
	// ModeOverride ignores user preferences entirely.
	ModeOverride
)

// ParseMode maps the stored mode string onto the closed enum. Unknown
// values resolve to ModeFallback.
func ParseMode(s string) Mode {
	switch s {
	case "override":
		return ModeOverride
	case "layer":
		return ModeLayer
	case "fallback", "":
		return ModeFallback
	default:
		slog.Warn("unknown style precedence mode, using fallback", "mode", s)
		return ModeFallback
	}
}

func (m Mode) String() string {
	switch m {
	case ModeOverride:
		return "override"
	case ModeLayer:
		return "layer"
	case ModeFallback:
		return "fallback"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Preference is one scope's style settings. Nil pointers mean "not set".
type Preference struct {
	Tone             *string
	Formality        *string
	PreferredPhrases []string
	AvoidPhrases     []string
	CustomGuidance   *string
}

// Effective is the request-scoped merge result injected into the prompt.
// Empty fields mean no guidance; it is never persisted.
type Effective struct {
	Tone             string
	Formality        string
	PreferredPhrases []string
	AvoidPhrases     []string
	CustomGuidance   string
	// PolicyPhrases is the organization's avoid list verbatim. It is
	// delivery policy, not voice guidance: the output guardrail enforces it
	// even when the user's own avoid list won the merge.
	PolicyPhrases []string
}

// IsZero reports whether no style guidance was resolved at all.
func (e Effective) IsZero() bool {
	return e.Tone == "" && e.Formality == "" && e.CustomGuidance == "" &&
		len(e.PreferredPhrases) == 0 && len(e.AvoidPhrases) == 0
}

// merge combines user and organization preferences field-by-field: the
// user's value when set, else the organization's. Shared by ModeLayer and
// ModeFallback on purpose — the symmetry is an explicit decision, not
// incidental duplication.
func merge(user, org Preference) Effective {
	eff := Effective{
		Tone:             pick(user.Tone, org.Tone),
		Formality:        pick(user.Formality, org.Formality),
		CustomGuidance:   pick(user.CustomGuidance, org.CustomGuidance),
		PreferredPhrases: pickList(user.PreferredPhrases, org.PreferredPhrases),
		AvoidPhrases:     pickList(user.AvoidPhrases, org.AvoidPhrases),
	}
	return eff
}

func pick(user, org *string) string {
	if user != nil {
		return *user
	}
	if org != nil {
		return *org
	}
	return ""
}

func pickList(user, org []string) []string {
	if len(user) > 0 {
		return user
	}
	return org
}

// parsePhrases decodes a JSON array stored as text; malformed input yields
// an empty list with a warning, matching the degrade-don't-fail posture of
// everything style-related.
func parsePhrases(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		slog.Warn("malformed phrase list in style record, ignoring", "error", err)
		return nil
	}
	return out
}
