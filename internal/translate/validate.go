package translate

import (
	"fmt"

	"github.com/tabletalk/tabletalk/internal/schema"
)

// Validation reason codes carried inside validation_failed attempts.
const (
	ValidationUnknownColumn          = "unknown_column"
	ValidationIncompatibleComparator = "incompatible_comparator"
	ValidationIncompatibleValue      = "incompatible_value"
	ValidationIncompatibleAggregate  = "incompatible_aggregation"
	ValidationLimitExceeded          = "limit_exceeds_max"
	ValidationInvalidIntent          = "invalid_intent"
)

// DefaultMaxLimit bounds result sizes when no maximum is configured.
const DefaultMaxLimit = 1000

// ValidationError reports why a candidate was rejected before execution.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s (%s)", e.Reason, e.Detail)
}

// Validator statically checks candidate intents against the schema before
// anything is compiled or executed. It is shared by every strategy's
// output.
type Validator struct {
	MaxLimit int
}

// NewValidator returns a validator with the given result limit ceiling.
func NewValidator(maxLimit int) *Validator {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	return &Validator{MaxLimit: maxLimit}
}

// Validate returns nil when the intent can safely compile and execute
// against the schema, or a *ValidationError naming the first problem.
func (v *Validator) Validate(in Intent, sc schema.Context) error {
	if err := in.Validate(); err != nil {
		return &ValidationError{Reason: ValidationInvalidIntent, Detail: err.Error()}
	}
	for _, col := range in.TargetColumns {
		if col == "*" {
			continue
		}
		if !sc.HasColumn(col) {
			return &ValidationError{Reason: ValidationUnknownColumn, Detail: col}
		}
	}
	for _, col := range in.GroupBy {
		if !sc.HasColumn(col) {
			return &ValidationError{Reason: ValidationUnknownColumn, Detail: col}
		}
	}
	for _, p := range in.Filters {
		col, ok := sc.Column(p.Column)
		if !ok {
			return &ValidationError{Reason: ValidationUnknownColumn, Detail: p.Column}
		}
		if err := checkPredicate(col, p); err != nil {
			return err
		}
	}
	if in.Limit > v.MaxLimit {
		return &ValidationError{
			Reason: ValidationLimitExceeded,
			Detail: fmt.Sprintf("limit %d exceeds maximum %d", in.Limit, v.MaxLimit),
		}
	}
	if err := checkAggregation(in, sc); err != nil {
		return err
	}
	return nil
}

// checkAggregation enforces function/column type compatibility: sum and
// avg need numeric columns, min and max also accept dates, count takes
// anything.
func checkAggregation(in Intent, sc schema.Context) error {
	if in.Aggregation == AggNone || in.Aggregation == AggCount {
		return nil
	}
	target := in.TargetColumns[0]
	col, ok := sc.Column(target)
	if !ok {
		return nil
	}
	switch in.Aggregation {
	case AggSum, AggAvg:
		if col.Type != schema.TypeNumeric {
			return &ValidationError{
				Reason: ValidationIncompatibleAggregate,
				Detail: fmt.Sprintf("%s on %s column %q", in.Aggregation, col.Type, col.Name),
			}
		}
	case AggMin, AggMax:
		if col.Type != schema.TypeNumeric && col.Type != schema.TypeDate {
			return &ValidationError{
				Reason: ValidationIncompatibleAggregate,
				Detail: fmt.Sprintf("%s on %s column %q", in.Aggregation, col.Type, col.Name),
			}
		}
	}
	return nil
}

// checkPredicate enforces comparator/column and value/column
// compatibility: ordering comparators need numeric or date columns,
// contains needs categorical or text, equality works everywhere as long
// as the value suits the column type.
func checkPredicate(col schema.Column, p Predicate) error {
	switch p.Comparator {
	case CmpGreater, CmpGreaterEqual, CmpLess, CmpLessEqual:
		if col.Type != schema.TypeNumeric && col.Type != schema.TypeDate {
			return &ValidationError{
				Reason: ValidationIncompatibleComparator,
				Detail: fmt.Sprintf("%s on %s column %q", p.Comparator, col.Type, col.Name),
			}
		}
	case CmpContains:
		if col.Type != schema.TypeCategorical && col.Type != schema.TypeText {
			return &ValidationError{
				Reason: ValidationIncompatibleComparator,
				Detail: fmt.Sprintf("contains on %s column %q", col.Type, col.Name),
			}
		}
	}
	return checkValue(col, p)
}

func checkValue(col schema.Column, p Predicate) error {
	badValue := func(why string) error {
		return &ValidationError{
			Reason: ValidationIncompatibleValue,
			Detail: fmt.Sprintf("column %q: %s", col.Name, why),
		}
	}
	switch col.Type {
	case schema.TypeNumeric:
		if _, ok := toFloat(p.Value); !ok {
			return badValue(fmt.Sprintf("%v is not numeric", p.Value))
		}
	case schema.TypeDate:
		switch val := p.Value.(type) {
		case string:
			if _, ok := schema.ParseDateAny(val); !ok {
				return badValue(fmt.Sprintf("%q is not a date", val))
			}
		default:
			return badValue(fmt.Sprintf("%v is not a date", p.Value))
		}
	default:
		if _, ok := p.Value.(string); !ok {
			return badValue(fmt.Sprintf("%v is not text", p.Value))
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, _, ok := schema.ParseNumeric(t)
		return f, ok
	default:
		return 0, false
	}
}
