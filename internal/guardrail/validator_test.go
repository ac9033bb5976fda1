package guardrail

import (
	"strings"
	"testing"
)

func TestCheck_CleanTextPasses(t *testing.T) {
	v := NewValidator(nil)
	verdict := v.Check("Thanks for flagging this, I'll have a fix out by tomorrow.", nil)
	if !verdict.Passed {
		t.Errorf("clean text failed: %+v", verdict.Violations)
	}
}

func TestCheck_PIIRules(t *testing.T) {
	v := NewValidator(nil)
	cases := []struct {
		name     string
		text     string
		rule     string
		severity Severity
	}{
		{"email", "you can reach dana at dana@example.com directly", "pii_email", SeverityMedium},
		{"card number", "charge it to 4111 1111 1111 1111 please", "pii_card_number", SeverityHigh},
		{"ssn", "their SSN is 123-45-6789 for the form", "pii_ssn", SeverityHigh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := v.Check(tc.text, nil)
			if verdict.Passed {
				t.Fatalf("Check(%q) passed, want %s violation", tc.text, tc.rule)
			}
			found := false
			for _, viol := range verdict.Violations {
				if viol.Rule == tc.rule {
					found = true
					if viol.Severity != tc.severity {
						t.Errorf("severity = %s, want %s", viol.Severity, tc.severity)
					}
					if viol.Snippet == "" {
						t.Error("empty snippet")
					}
				}
			}
			if !found {
				t.Errorf("no %s violation in %+v", tc.rule, verdict.Violations)
			}
		})
	}
}

func TestCheck_ForbiddenPhrases(t *testing.T) {
	v := NewValidator([]string{"Internal Only", "  legal hold  ", ""})

	verdict := v.Check("This document is internal only, do not share.", nil)
	if verdict.Passed {
		t.Fatal("forbidden phrase not flagged")
	}
	if verdict.Violations[0].Rule != "forbidden_phrase" {
		t.Errorf("rule = %q, want forbidden_phrase", verdict.Violations[0].Rule)
	}

	// Case-insensitive both ways.
	if v.Check("subject to LEGAL HOLD until further notice", nil).Passed {
		t.Error("uppercase match not flagged")
	}
	if !v.Check("nothing objectionable here", nil).Passed {
		t.Error("clean text flagged")
	}
}

func TestCheck_OrgPolicyPhrases(t *testing.T) {
	v := NewValidator(nil)

	verdict := v.Check("we can ship it ASAP if needed", []string{"  asap  "})
	if verdict.Passed {
		t.Fatal("org policy phrase not flagged")
	}
	if verdict.Violations[0].Rule != "forbidden_phrase" {
		t.Errorf("rule = %q, want forbidden_phrase", verdict.Violations[0].Rule)
	}

	// Config and org lists are both enforced on the same check.
	v = NewValidator([]string{"internal only"})
	verdict = v.Check("internal only, and frankly ASAP", []string{"asap"})
	if len(verdict.Violations) != 2 {
		t.Errorf("got %d violations, want one per list: %+v", len(verdict.Violations), verdict.Violations)
	}

	if !v.Check("nothing objectionable here", []string{"asap"}).Passed {
		t.Error("clean text flagged")
	}
}

func TestCheck_MultipleViolations(t *testing.T) {
	v := NewValidator([]string{"confidential"})
	verdict := v.Check("confidential: email jo@example.com with SSN 123-45-6789", nil)
	if len(verdict.Violations) != 3 {
		t.Errorf("got %d violations, want 3: %+v", len(verdict.Violations), verdict.Violations)
	}
}

func TestSnippetAround(t *testing.T) {
	text := strings.Repeat("a", 100) + "MATCH" + strings.Repeat("b", 100)
	got := snippetAround(text, 100, 5)
	want := strings.Repeat("a", snippetRadius) + "MATCH" + strings.Repeat("b", snippetRadius)
	if got != want {
		t.Errorf("snippetAround = %q, want %q", got, want)
	}

	// Near the start the window clamps to the text bounds.
	if got := snippetAround("MATCH tail", 0, 5); got != "MATCH tail" {
		t.Errorf("clamped snippet = %q, want full text", got)
	}
}
