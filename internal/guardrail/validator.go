package guardrail

import (
	"regexp"
	"strings"
)

// Severity ranks how serious a policy violation is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Violation is one failed policy rule with the offending snippet.
type Violation struct {
	Rule     string
	Severity Severity
	Snippet  string
}

// Verdict is the transient result of validating model output. Violations are
// logged durably by the pipeline; the verdict itself is not persisted.
type Verdict struct {
	Passed     bool
	Violations []Violation
}

type patternRule struct {
	name     string
	severity Severity
	re       *regexp.Regexp
}

// piiRules match personally identifying information that must never appear
// in generated output.
var piiRules = []patternRule{
	{
		name:     "pii_email",
		severity: SeverityMedium,
		re:       regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	},
	{
		name:     "pii_card_number",
		severity: SeverityHigh,
		re:       regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`),
	},
	{
		name:     "pii_ssn",
		severity: SeverityHigh,
		re:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	},
}

const snippetRadius = 30

// Validator checks model output against organization policy.
type Validator struct {
	forbidden []string
	rules     []patternRule
}

// NewValidator creates a Validator. forbidden supplements the built-in PII
// rules with exact-phrase checks (case-insensitive); sourced from config.
// Organization policy phrases vary per run and are passed to Check instead.
func NewValidator(forbidden []string) *Validator {
	return &Validator{forbidden: normalizePhrases(forbidden), rules: piiRules}
}

// Check validates text against all policy rules and returns the verdict.
// orgForbidden is the triggering organization's own forbidden-phrase list,
// checked alongside the configured one. Every matched rule contributes one
// violation; the pipeline decides what severity blocks delivery (all of
// them do, today).
func (v *Validator) Check(text string, orgForbidden []string) Verdict {
	var violations []Violation

	lower := strings.ToLower(text)
	violations = append(violations, matchPhrases(text, lower, v.forbidden)...)
	violations = append(violations, matchPhrases(text, lower, normalizePhrases(orgForbidden))...)

	for _, rule := range v.rules {
		if loc := rule.re.FindStringIndex(text); loc != nil {
			violations = append(violations, Violation{
				Rule:     rule.name,
				Severity: rule.severity,
				Snippet:  snippetAround(text, loc[0], loc[1]-loc[0]),
			})
		}
	}

	return Verdict{Passed: len(violations) == 0, Violations: violations}
}

func matchPhrases(text, lower string, phrases []string) []Violation {
	var violations []Violation
	for _, phrase := range phrases {
		if idx := strings.Index(lower, phrase); idx != -1 {
			violations = append(violations, Violation{
				Rule:     "forbidden_phrase",
				Severity: SeverityMedium,
				Snippet:  snippetAround(text, idx, len(phrase)),
			})
		}
	}
	return violations
}

func normalizePhrases(phrases []string) []string {
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			lowered = append(lowered, strings.ToLower(p))
		}
	}
	return lowered
}

// snippetAround extracts the match with a little surrounding context, enough
// for the violation log to be useful without storing the whole output.
func snippetAround(text string, idx, matchLen int) string {
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + matchLen + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}
