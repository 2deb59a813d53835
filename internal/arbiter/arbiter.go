// Package arbiter speaks to the LLM that breaks ties the deterministic
// matchers could not. Only the request/response contract lives here; when,
// whether and how often to call is the dispatcher's business.
package arbiter

import (
	"context"
	"strings"
	"time"
)

// Decision kinds the model may return.
const (
	DecisionSelect         = "select"
	DecisionRequestContext = "request_context"
	DecisionClarify        = "clarify"
)

// Failure kinds the dispatcher classifies transport errors into.
const (
	FailureTimeout     = "timeout"
	FailureRateLimited = "rate_limited"
	FailureGeneric     = "error"
)

// OptionRef is the minimal option shape sent to the model.
type OptionRef struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Request is one arbitration question: the raw input, the active option
// set, and any structured context evidence accumulated so far.
type Request struct {
	Input   string
	Options []OptionRef
	Context []string
}

// Decision is the tagged union the model answers with. Confidence is always
// in [0,1]; Reason is free text and gates auto-execution via an allow-list.
type Decision struct {
	Decision      string   `json:"decision"`
	ChoiceID      string   `json:"choice_id,omitempty"`
	Confidence    float64  `json:"confidence"`
	Reason        string   `json:"reason,omitempty"`
	NeededContext []string `json:"needed_context,omitempty"`
}

// Result wraps a decision with the transport outcome. Err is a plain string;
// callers classify it by substring, never by type.
type Result struct {
	Success  bool
	Response Decision
	Err      string
	Latency  time.Duration
}

// Client is the narrow interface the dispatcher calls through.
type Client interface {
	Arbitrate(ctx context.Context, request Request) Result
}

// ClassifyFailure maps a transport error string onto the failure taxonomy
// by substring inspection.
func ClassifyFailure(errText string) string {
	lower := strings.ToLower(strings.TrimSpace(errText))
	switch {
	case lower == "":
		return FailureGeneric
	case strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "deadline exceeded"):
		return FailureTimeout
	case strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "429"):
		return FailureRateLimited
	default:
		return FailureGeneric
	}
}
