// Package llm is the model-assisted translation strategy. A Provider
// turns one prompt into one completion; the strategy owns the prompt
// contract, the per-call timeout, and decoding completions into intents.
// Providers stay transport-only so backends are interchangeable.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/translate"
)

// Provider is one model backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

const (
	// DefaultTimeout bounds one provider call.
	DefaultTimeout = 15 * time.Second
	// DefaultConfidence is reported for accepted model intents.
	DefaultConfidence = 0.7
	// DefaultSampleValues is how many example values the prompt shows per
	// column.
	DefaultSampleValues = 3
)

// Config tunes the strategy.
type Config struct {
	Timeout      time.Duration
	Confidence   float64
	SampleValues int
}

// Strategy implements translate.Strategy over a Provider.
type Strategy struct {
	provider     Provider
	timeout      time.Duration
	confidence   float64
	sampleValues int
}

// NewStrategy wraps provider with the stock defaults for any unset knob.
func NewStrategy(provider Provider, cfg Config) *Strategy {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	confidence := cfg.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = DefaultConfidence
	}
	samples := cfg.SampleValues
	if samples <= 0 {
		samples = DefaultSampleValues
	}
	return &Strategy{
		provider:     provider,
		timeout:      timeout,
		confidence:   confidence,
		sampleValues: samples,
	}
}

// Name implements translate.Strategy.
func (s *Strategy) Name() string {
	return translate.StrategyLLM
}

// Translate prompts the provider and decodes the completion into an
// intent. Backend failures map onto the strategy sentinels so the engine
// can report llm_unavailable, llm_timeout or llm_invalid_intent; only the
// caller's own cancellation is passed through untranslated.
func (s *Strategy) Translate(ctx context.Context, q translate.Query) (translate.Candidate, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.provider.Complete(callCtx, s.buildPrompt(q))
	elapsed := time.Since(start)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			observability.ObserveProviderCall(s.provider.Name(), "canceled", elapsed)
			return translate.Candidate{}, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			observability.ObserveProviderCall(s.provider.Name(), "timeout", elapsed)
			return translate.Candidate{}, fmt.Errorf("provider %s gave no answer within %s: %w",
				s.provider.Name(), s.timeout, context.DeadlineExceeded)
		default:
			observability.ObserveProviderCall(s.provider.Name(), "error", elapsed)
			return translate.Candidate{}, fmt.Errorf("provider %s: %v: %w",
				s.provider.Name(), err, translate.ErrUnavailable)
		}
	}
	observability.ObserveProviderCall(s.provider.Name(), "ok", elapsed)

	in, err := parseIntent(raw)
	if err != nil {
		return translate.Candidate{}, err
	}
	return translate.Candidate{
		Intent:     in,
		Strategy:   translate.StrategyLLM,
		Confidence: s.confidence,
	}, nil
}

// intentContract is the response shape shown to the model. It mirrors the
// JSON tags on translate.Intent.
const intentContract = `{
  "operation": "aggregate" | "filter" | "topN" | "bottomN" | "groupByAggregate",
  "target_columns": ["column name", ... or "*"],
  "aggregation": "sum" | "avg" | "count" | "min" | "max" | "none",
  "filters": [{"column": "...", "comparator": ">" | ">=" | "<" | "<=" | "=" | "!=" | "contains", "value": number or string}],
  "group_by": ["column name", ...],
  "order_direction": "asc" | "desc" | "none",
  "limit": number
}`

func (s *Strategy) buildPrompt(q translate.Query) string {
	var b strings.Builder
	b.WriteString("Convert the question into one JSON object describing a query intent over a single table.\n\n")
	b.WriteString("Dataset:\n")
	b.WriteString(q.Schema.Summary(s.sampleValues))
	b.WriteString("\nIntent shape:\n")
	b.WriteString(intentContract)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Use only column names listed under Dataset.\n")
	b.WriteString("- Omit filters, group_by and limit when the question does not need them.\n")
	b.WriteString("- Use \"*\" as the only target column for counting rows.\n")
	b.WriteString("- If the question cannot be answered by one such query, return exactly {\"error\": \"cannot_interpret\"}.\n")
	b.WriteString("- Return ONLY JSON. No markdown, no explanation.\n")
	b.WriteString("\nQuestion: ")
	b.WriteString(q.Normalized)
	b.WriteString("\n")
	return b.String()
}

// parseIntent decodes one completion. Everything that is not a usable
// intent, including an explicit decline, maps onto ErrDeclined.
func parseIntent(raw string) (translate.Intent, error) {
	text := extractJSON(stripFences(raw))
	if strings.TrimSpace(text) == "" {
		return translate.Intent{}, fmt.Errorf("completion held no JSON: %w", translate.ErrDeclined)
	}

	var decline struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(text), &decline); err == nil && decline.Error != "" {
		return translate.Intent{}, fmt.Errorf("model declined (%s): %w", decline.Error, translate.ErrDeclined)
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	var in translate.Intent
	if err := dec.Decode(&in); err != nil {
		return translate.Intent{}, fmt.Errorf("decode intent: %v: %w", err, translate.ErrDeclined)
	}
	in.ApplyDefaults()
	if err := in.Validate(); err != nil {
		return translate.Intent{}, fmt.Errorf("model intent: %v: %w", err, translate.ErrDeclined)
	}
	return in, nil
}

// stripFences removes a markdown code fence wrapper when present.
func stripFences(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}

// extractJSON cuts the first balanced-looking object out of surrounding
// prose.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
