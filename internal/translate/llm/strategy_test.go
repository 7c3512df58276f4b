package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tabletalk/tabletalk/internal/schema"
	"github.com/tabletalk/tabletalk/internal/translate"
)

func TestStrategyDecodesIntentJSON(t *testing.T) {
	p := &fakeProvider{reply: `{"operation":"groupByAggregate","target_columns":["sales"],"aggregation":"sum","group_by":["region"]}`}
	s := NewStrategy(p, Config{})

	cand, err := s.Translate(context.Background(), testQuery(t, "total sales by region"))
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	in := cand.Intent
	if in.Operation != translate.OpGroupByAggregate || in.Aggregation != translate.AggSum {
		t.Fatalf("intent = %+v, want grouped sum", in)
	}
	if in.OrderDirection != translate.DirectionNone {
		t.Fatalf("OrderDirection = %q, want defaulted none", in.OrderDirection)
	}
	if cand.Strategy != translate.StrategyLLM || cand.Confidence != DefaultConfidence {
		t.Fatalf("candidate = %+v, want llm strategy at default confidence", cand)
	}
}

func TestStrategyAcceptsFencedAndProseWrappedJSON(t *testing.T) {
	replies := []string{
		"```json\n{\"operation\":\"aggregate\",\"target_columns\":[\"*\"],\"aggregation\":\"count\"}\n```",
		"Sure, here is the intent: {\"operation\":\"aggregate\",\"target_columns\":[\"*\"],\"aggregation\":\"count\"} hope that helps",
	}
	for _, reply := range replies {
		s := NewStrategy(&fakeProvider{reply: reply}, Config{})
		cand, err := s.Translate(context.Background(), testQuery(t, "how many records"))
		if err != nil {
			t.Fatalf("Translate(%q) error = %v", reply, err)
		}
		if cand.Intent.Aggregation != translate.AggCount {
			t.Fatalf("Translate(%q) intent = %+v", reply, cand.Intent)
		}
	}
}

func TestStrategyMapsDeclineToErrDeclined(t *testing.T) {
	s := NewStrategy(&fakeProvider{reply: `{"error": "cannot_interpret"}`}, Config{})
	_, err := s.Translate(context.Background(), testQuery(t, "why did sales drop"))
	if !errors.Is(err, translate.ErrDeclined) {
		t.Fatalf("Translate() error = %v, want ErrDeclined", err)
	}
}

func TestStrategyRejectsUnusableCompletions(t *testing.T) {
	replies := []string{
		"I cannot help with that request.",
		`{"operation":"aggregate","target_columns":["sales"],"aggregation":"sum","surprise":true}`,
		`{"operation":"fly","target_columns":["sales"]}`,
		`{"operation":"aggregate","target_columns":[],"aggregation":"sum"}`,
		"",
	}
	for _, reply := range replies {
		s := NewStrategy(&fakeProvider{reply: reply}, Config{})
		_, err := s.Translate(context.Background(), testQuery(t, "sum of sales"))
		if !errors.Is(err, translate.ErrDeclined) {
			t.Fatalf("Translate(%q) error = %v, want ErrDeclined", reply, err)
		}
	}
}

func TestStrategyMapsProviderFailures(t *testing.T) {
	s := NewStrategy(&fakeProvider{err: errors.New("connection refused")}, Config{})
	_, err := s.Translate(context.Background(), testQuery(t, "sum of sales"))
	if !errors.Is(err, translate.ErrUnavailable) {
		t.Fatalf("Translate() error = %v, want ErrUnavailable", err)
	}
}

func TestStrategyTimesOutSlowProviders(t *testing.T) {
	s := NewStrategy(&fakeProvider{block: true}, Config{Timeout: 5 * time.Millisecond})
	_, err := s.Translate(context.Background(), testQuery(t, "sum of sales"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Translate() error = %v, want DeadlineExceeded", err)
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("timeout reported as caller cancellation: %v", err)
	}
}

func TestStrategyPassesThroughCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewStrategy(&fakeProvider{block: true}, Config{Timeout: time.Second})
	_, err := s.Translate(ctx, testQuery(t, "sum of sales"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Translate() error = %v, want context.Canceled", err)
	}
}

func TestStrategyPromptCarriesSchemaAndContract(t *testing.T) {
	p := &fakeProvider{reply: `{"operation":"aggregate","target_columns":["*"],"aggregation":"count"}`}
	s := NewStrategy(p, Config{})
	if _, err := s.Translate(context.Background(), testQuery(t, "how many records")); err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(p.prompts) != 1 {
		t.Fatalf("provider saw %d prompts, want 1", len(p.prompts))
	}
	prompt := p.prompts[0]
	for _, needle := range []string{
		"sales",
		"region",
		"target_columns",
		"cannot_interpret",
		"Question: how many records",
	} {
		if !strings.Contains(prompt, needle) {
			t.Fatalf("prompt missing %q:\n%s", needle, prompt)
		}
	}
}

type fakeProvider struct {
	reply   string
	err     error
	block   bool
	prompts []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func testQuery(t *testing.T, question string) translate.Query {
	t.Helper()
	sc, err := schema.New("sales", []schema.Column{
		{Name: "region", Type: schema.TypeCategorical, SampleValues: []string{"north", "south"}},
		{Name: "sales", Type: schema.TypeNumeric, Scale: 2},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	tokens, _ := translate.NewNormalizer().Normalize(question, sc)
	return translate.Query{
		Raw:        question,
		Normalized: translate.JoinTokens(tokens),
		Tokens:     tokens,
		Schema:     sc,
	}
}
