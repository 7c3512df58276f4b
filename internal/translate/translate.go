// Package translate turns natural-language questions about a loaded dataset
// into validated, read-only SQL. A fixed fallback chain is tried per
// request: deterministic pattern templates first, then an optional
// model-assisted strategy. Every miss is recorded with a machine-readable
// reason, and an exhausted chain is a regular return value, not an error.
package translate

import (
	"context"
	"errors"

	"github.com/tabletalk/tabletalk/internal/schema"
)

// Strategy names used in provenance, metrics and reason codes.
const (
	StrategyPattern = "pattern"
	StrategyLLM     = "llm"
)

// Reason codes reported per failed attempt.
const (
	ReasonNoTemplateMatch  = "no_template_match"
	ReasonLLMUnavailable   = "llm_unavailable"
	ReasonLLMTimeout       = "llm_timeout"
	ReasonLLMInvalidIntent = "llm_invalid_intent"
)

// ReasonValidationFailed prefixes a validation reason for attempt reporting.
func ReasonValidationFailed(detail string) string {
	return "validation_failed:" + detail
}

// ReasonExecutionError prefixes an execution failure class for attempt
// reporting.
func ReasonExecutionError(detail string) string {
	return "execution_error:" + detail
}

// Strategy miss sentinels. The engine maps them onto reason codes; a
// strategy error never aborts the fallback chain.
var (
	// ErrNoMatch reports that no template bound the query.
	ErrNoMatch = errors.New("no template matched")
	// ErrDeclined reports that the model declined the query or returned an
	// unusable intent.
	ErrDeclined = errors.New("model declined to interpret")
	// ErrUnavailable reports that the model backend could not be reached.
	ErrUnavailable = errors.New("model backend unavailable")
)

// Query is the normalized input handed to every strategy.
type Query struct {
	Raw        string
	Normalized string
	Tokens     []Token
	Schema     schema.Context
}

// Default records an assumption a strategy made on the caller's behalf,
// surfaced in provenance rather than applied silently.
type Default struct {
	Field string `json:"field"`
	Value string `json:"value"`
	Note  string `json:"note,omitempty"`
}

// Candidate is one strategy's proposed translation.
type Candidate struct {
	Intent     Intent    `json:"intent"`
	SQL        string    `json:"sql"`
	Strategy   string    `json:"strategy"`
	Confidence float64   `json:"confidence"`
	Defaults   []Default `json:"defaults,omitempty"`
}

// Attempt describes one strategy try within a translation request.
type Attempt struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// Result is the terminal outcome of one translation request. Success
// carries the winning candidate and its materialized rows; failure carries
// the ordered attempts with reason codes so the caller can decide on a
// fallback.
type Result struct {
	Success     bool
	Candidate   *Candidate
	Columns     []string
	Rows        [][]any
	RowCount    int
	Corrections []Correction
	Attempts    []Attempt
}

// Strategy is one translation capability. Translate returns a candidate or
// an error explaining why the strategy has nothing to offer for this query.
type Strategy interface {
	Name() string
	Translate(ctx context.Context, q Query) (Candidate, error)
}
