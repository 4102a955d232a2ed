package app

import (
	"fmt"
	"strings"
)

// Outcome is the reconciler's reading of a provider cancel response.
type Outcome int

const (
	OutcomeRetry Outcome = iota
	OutcomeCancelled
	OutcomePermanentFailure
	OutcomeEarlyCancelDenied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCancelled:
		return "cancelled"
	case OutcomePermanentFailure:
		return "permanent_failure"
	case OutcomeEarlyCancelDenied:
		return "early_cancel_denied"
	default:
		return "retry"
	}
}

// MatchMode selects how response bodies are compared against status tokens.
type MatchMode string

const (
	// MatchSubstring is case-sensitive containment anywhere in the body.
	MatchSubstring MatchMode = "substring"
	// MatchToken compares only the leading status token, e.g. "ACCESS_CANCEL"
	// in "ACCESS_CANCEL:123".
	MatchToken MatchMode = "token"
)

func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchSubstring:
		return MatchSubstring, nil
	case MatchToken:
		return MatchToken, nil
	default:
		return "", fmt.Errorf("unknown match mode %q", s)
	}
}

var (
	earlyDeniedTokens = []string{"EARLY_CANCEL_DENIED"}
	permanentTokens   = []string{"NO_ACTIVATION", "BAD_KEY"}
	cancelledTokens   = []string{"ACCESS_CANCEL", "STATUS_CANCEL", "CANCEL"}
)

// Classify maps a provider response body to an Outcome.
//
// EARLY_CANCEL_DENIED contains CANCEL, so the deny and permanent-failure
// tokens are checked before the cancelled tokens.
func Classify(body string, mode MatchMode) Outcome {
	match := containsAny
	if mode == MatchToken {
		match = leadingTokenIn
	}

	switch {
	case match(body, earlyDeniedTokens):
		return OutcomeEarlyCancelDenied
	case match(body, permanentTokens):
		return OutcomePermanentFailure
	case match(body, cancelledTokens):
		return OutcomeCancelled
	default:
		return OutcomeRetry
	}
}

func containsAny(body string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(body, t) {
			return true
		}
	}
	return false
}

func leadingTokenIn(body string, tokens []string) bool {
	head := strings.TrimSpace(body)
	if i := strings.IndexAny(head, ":\n\r "); i >= 0 {
		head = head[:i]
	}
	head = strings.Trim(head, `"`)
	for _, t := range tokens {
		if head == t || strings.HasPrefix(head, t+"_") {
			return true
		}
	}
	return false
}
