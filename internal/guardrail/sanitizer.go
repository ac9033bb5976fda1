// Package guardrail enforces safety policy on both sides of the model call:
// inbound text is sanitized before it can reach a prompt, and outbound model
// text is validated against policy rules before it can reach a user.
package guardrail

import (
	"regexp"
	"strings"
)

// injectionPatterns match common prompt-injection phrasings. Matches are
// replaced with the neutral marker rather than deleted so the surrounding
// conversation still reads coherently.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(?:all\s+|any\s+)?(?:previous|prior|above)\s+(?:instructions|prompts|rules|messages)`),
	regexp.MustCompile(`(?i)disregard\s+(?:all\s+|any\s+)?(?:previous|prior|your)\s+(?:instructions|prompts|rules|guidelines)`),
	regexp.MustCompile(`(?i)forget\s+(?:everything|all)\s+(?:you|above|before)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(?:a|an|in)\s+(?:developer|admin|jailbreak|dan)\b[^\n]*`),
	regexp.MustCompile(`(?i)\bnew\s+system\s+prompt\b`),
	regexp.MustCompile(`(?i)^\s*(?:system|assistant)\s*:`),
}

const neutralMarker = "[filtered]"

// controlChars matches C0/C1 control characters except tab and newline.
var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f-\x9f]`)

// Sanitize neutralizes prompt-injection phrasings and strips control
// characters from text destined for the model prompt. It is deterministic
// and idempotent: Sanitize(Sanitize(x)) == Sanitize(x). Replacement runs to
// a fixpoint because removing one match can splice a new one together.
func Sanitize(text string) string {
	out := controlChars.ReplaceAllString(text, "")
	for range 4 {
		next := out
		for _, p := range injectionPatterns {
			next = p.ReplaceAllString(next, neutralMarker)
		}
		if next == out {
			break
		}
		out = next
	}
	return strings.TrimSpace(out)
}
