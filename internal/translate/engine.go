package translate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/schema"
	"github.com/tabletalk/tabletalk/internal/store"
)

// Executor runs compiled SQL against the session's loaded dataset.
type Executor interface {
	Query(ctx context.Context, sql string) (store.Result, error)
}

// EngineConfig tunes one engine instance.
type EngineConfig struct {
	// MaxLimit caps the row limit a candidate may request.
	MaxLimit int
	// Cache holds replayable translations. Nil disables caching.
	Cache *Cache
	// Logger receives per-attempt diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Engine coordinates translation for one loaded dataset. Each request is
// normalized once, checked against the cache, then offered to every
// strategy in order until one produces a candidate that validates,
// compiles and executes. Strategy errors become recorded misses, never
// request failures; the only error Translate returns is the caller's own
// context ending.
type Engine struct {
	schema      schema.Context
	fingerprint string
	normalizer  *Normalizer
	strategies  []Strategy
	validator   *Validator
	executor    Executor
	cache       *Cache
	logger      *slog.Logger
}

// NewEngine builds an engine over the given schema, executor and ordered
// strategy chain.
func NewEngine(sc schema.Context, executor Executor, strategies []Strategy, cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.Discard()
	}
	return &Engine{
		schema:      sc,
		fingerprint: sc.Fingerprint(),
		normalizer:  NewNormalizer(),
		strategies:  strategies,
		validator:   NewValidator(cfg.MaxLimit),
		executor:    executor,
		cache:       cfg.Cache,
		logger:      logger,
	}
}

// Schema returns the context the engine translates against.
func (e *Engine) Schema() schema.Context {
	return e.schema
}

// Translate answers one question. An exhausted chain returns a Result
// with Success false and the ordered attempt reasons; the error return is
// non-nil only when ctx ends before a terminal outcome.
func (e *Engine) Translate(ctx context.Context, raw string) (Result, error) {
	tokens, corrections := e.normalizer.Normalize(raw, e.schema)
	q := Query{
		Raw:        raw,
		Normalized: JoinTokens(tokens),
		Tokens:     tokens,
		Schema:     e.schema,
	}
	res := Result{Corrections: corrections}
	key := Key(e.fingerprint, q.Normalized)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			observability.ObserveTranslationCache("hit")
			start := time.Now()
			out, failReason := e.run(ctx, &cached)
			if failReason == "" {
				observability.ObserveTranslation(cached.Strategy, "success", time.Since(start))
				return e.succeed(ctx, res, &cached, out), nil
			}
			if parentErr := ctx.Err(); parentErr != nil {
				// the caller gave up mid-replay; keep the entry
				return Result{}, parentErr
			}
			// the replay no longer works; forget it and run the chain
			e.cache.Delete(key)
			observability.ObserveTranslationCache("invalidate")
			e.recordMiss(ctx, &res, cached.Strategy, failReason, time.Since(start))
		} else {
			observability.ObserveTranslationCache("miss")
		}
	}

	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		start := time.Now()
		cand, err := s.Translate(ctx, q)
		if parentErr := ctx.Err(); parentErr != nil {
			return Result{}, parentErr
		}
		if err != nil {
			e.logger.DebugContext(ctx, "strategy missed",
				"strategy", s.Name(), "error", err)
			e.recordMiss(ctx, &res, s.Name(), missReason(s.Name(), err), time.Since(start))
			continue
		}
		cand.Strategy = s.Name()
		out, failReason := e.run(ctx, &cand)
		elapsed := time.Since(start)
		if failReason != "" {
			e.recordMiss(ctx, &res, s.Name(), failReason, elapsed)
			continue
		}
		observability.ObserveTranslation(s.Name(), "success", elapsed)
		if e.cache.Put(key, cand) {
			observability.ObserveTranslationCache("store")
		}
		return e.succeed(ctx, res, &cand, out), nil
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	e.logger.InfoContext(ctx, "translation exhausted",
		"question", raw, "attempts", len(res.Attempts))
	return res, nil
}

// run takes a candidate through validation, compilation and execution.
// It fills cand.SQL on compile and returns the attempt reason on failure.
func (e *Engine) run(ctx context.Context, cand *Candidate) (store.Result, string) {
	if err := e.validator.Validate(cand.Intent, e.schema); err != nil {
		reasonCode := ValidationInvalidIntent
		var ve *ValidationError
		if errors.As(err, &ve) {
			reasonCode = ve.Reason
		}
		e.logger.DebugContext(ctx, "candidate rejected",
			"strategy", cand.Strategy, "error", err)
		return store.Result{}, ReasonValidationFailed(reasonCode)
	}
	sqlText, err := Compile(cand.Intent, e.schema)
	if err != nil {
		e.logger.DebugContext(ctx, "candidate failed to compile",
			"strategy", cand.Strategy, "error", err)
		return store.Result{}, ReasonValidationFailed(ValidationInvalidIntent)
	}
	cand.SQL = sqlText
	out, err := e.executor.Query(ctx, sqlText)
	if err != nil {
		class := classifyExecutionError(err)
		e.logger.WarnContext(ctx, "compiled query failed",
			"strategy", cand.Strategy, "class", class, "sql", sqlText, "error", err)
		return store.Result{}, ReasonExecutionError(class)
	}
	return out, ""
}

func (e *Engine) succeed(ctx context.Context, res Result, cand *Candidate, out store.Result) Result {
	res.Success = true
	res.Candidate = cand
	res.Columns = out.Columns
	res.Rows = out.Rows
	res.RowCount = out.RowCount
	e.logger.InfoContext(ctx, "question translated",
		"strategy", cand.Strategy, "confidence", cand.Confidence,
		"rows", out.RowCount, "sql", cand.SQL)
	return res
}

func (e *Engine) recordMiss(ctx context.Context, res *Result, strategy, reason string, elapsed time.Duration) {
	res.Attempts = append(res.Attempts, Attempt{Strategy: strategy, Reason: reason})
	observability.ObserveTranslation(strategy, metricOutcome(reason), elapsed)
}

// missReason maps a strategy error onto the reason code reported for the
// attempt. Unknown errors fall back to a per-strategy default so the
// attempt list never carries raw error text.
func missReason(strategy string, err error) string {
	switch {
	case errors.Is(err, ErrNoMatch):
		return ReasonNoTemplateMatch
	case errors.Is(err, ErrDeclined):
		return ReasonLLMInvalidIntent
	case errors.Is(err, ErrUnavailable):
		return ReasonLLMUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonLLMTimeout
	}
	if strategy == StrategyPattern {
		return ReasonNoTemplateMatch
	}
	return ReasonLLMUnavailable
}

// metricOutcome strips the detail suffix so metric label cardinality
// stays bounded.
func metricOutcome(reason string) string {
	if i := strings.IndexByte(reason, ':'); i > 0 {
		return reason[:i]
	}
	return reason
}

func classifyExecutionError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, store.ErrReadOnly):
		return "rejected_read_only"
	case errors.Is(err, store.ErrNoDataset):
		return "no_dataset"
	default:
		return "store_rejected"
	}
}
