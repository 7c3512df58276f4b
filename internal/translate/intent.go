package translate

import (
	"fmt"
	"strings"
)

// Operation enumerates the query shapes the engine can express.
type Operation string

const (
	OpAggregate        Operation = "aggregate"
	OpFilter           Operation = "filter"
	OpTopN             Operation = "topN"
	OpBottomN          Operation = "bottomN"
	OpGroupByAggregate Operation = "groupByAggregate"
)

// Aggregation enumerates the supported aggregation functions.
type Aggregation string

const (
	AggSum   Aggregation = "sum"
	AggAvg   Aggregation = "avg"
	AggCount Aggregation = "count"
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
	AggNone  Aggregation = "none"
)

// Direction enumerates result ordering.
type Direction string

const (
	DirectionAsc  Direction = "asc"
	DirectionDesc Direction = "desc"
	DirectionNone Direction = "none"
)

// Comparator enumerates filter comparators.
type Comparator string

const (
	CmpGreater      Comparator = ">"
	CmpGreaterEqual Comparator = ">="
	CmpLess         Comparator = "<"
	CmpLessEqual    Comparator = "<="
	CmpEqual        Comparator = "="
	CmpNotEqual     Comparator = "!="
	CmpContains     Comparator = "contains"
)

// Predicate is a single filter condition. Value holds a float64 for
// numeric comparisons and a string otherwise.
type Predicate struct {
	Column     string     `json:"column"`
	Comparator Comparator `json:"comparator"`
	Value      any        `json:"value"`
}

// Intent is the structured, strategy-agnostic representation of what the
// user asked for. It is the single contract between strategies, the
// validator and the compiler; the JSON shape doubles as the model response
// contract for the assisted strategy.
type Intent struct {
	Operation      Operation   `json:"operation"`
	TargetColumns  []string    `json:"target_columns"`
	Aggregation    Aggregation `json:"aggregation"`
	Filters        []Predicate `json:"filters,omitempty"`
	GroupBy        []string    `json:"group_by,omitempty"`
	OrderDirection Direction   `json:"order_direction"`
	Limit          int         `json:"limit,omitempty"`
}

// ApplyDefaults fills enum zero values so that partially specified intents,
// typically decoded from model output, can satisfy Validate.
func (in *Intent) ApplyDefaults() {
	if in.Aggregation == "" {
		in.Aggregation = AggNone
	}
	if in.OrderDirection == "" {
		in.OrderDirection = DirectionNone
	}
}

// Validate checks the structural invariants that hold independent of any
// schema: enum membership, target presence, and per-operation shape.
func (in Intent) Validate() error {
	switch in.Operation {
	case OpAggregate, OpFilter, OpTopN, OpBottomN, OpGroupByAggregate:
	default:
		return fmt.Errorf("unknown operation %q", in.Operation)
	}
	if len(in.TargetColumns) == 0 {
		return fmt.Errorf("intent names no target columns")
	}
	for _, col := range in.TargetColumns {
		if col == "*" {
			if len(in.TargetColumns) != 1 {
				return fmt.Errorf("wildcard target must be the only target")
			}
			if in.Aggregation != AggCount {
				return fmt.Errorf("wildcard target requires a count aggregation")
			}
			continue
		}
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("intent has an empty target column")
		}
	}
	switch in.Aggregation {
	case AggSum, AggAvg, AggCount, AggMin, AggMax, AggNone:
	default:
		return fmt.Errorf("unknown aggregation %q", in.Aggregation)
	}
	switch in.OrderDirection {
	case DirectionAsc, DirectionDesc, DirectionNone:
	default:
		return fmt.Errorf("unknown order direction %q", in.OrderDirection)
	}
	for _, f := range in.Filters {
		if strings.TrimSpace(f.Column) == "" {
			return fmt.Errorf("filter predicate has an empty column")
		}
		switch f.Comparator {
		case CmpGreater, CmpGreaterEqual, CmpLess, CmpLessEqual, CmpEqual, CmpNotEqual, CmpContains:
		default:
			return fmt.Errorf("unknown comparator %q", f.Comparator)
		}
		if f.Value == nil {
			return fmt.Errorf("filter on %q has no value", f.Column)
		}
	}
	for _, col := range in.GroupBy {
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("intent has an empty group column")
		}
	}
	if in.Limit < 0 {
		return fmt.Errorf("limit must be positive, got %d", in.Limit)
	}

	switch in.Operation {
	case OpAggregate:
		if in.Aggregation == AggNone {
			return fmt.Errorf("aggregate operation requires an aggregation function")
		}
		if len(in.GroupBy) > 0 {
			return fmt.Errorf("aggregate operation must not group")
		}
	case OpGroupByAggregate:
		if in.Aggregation == AggNone {
			return fmt.Errorf("groupByAggregate operation requires an aggregation function")
		}
		if len(in.GroupBy) == 0 {
			return fmt.Errorf("groupByAggregate operation requires group columns")
		}
	case OpTopN, OpBottomN:
		if in.Limit == 0 {
			return fmt.Errorf("%s operation requires a limit", in.Operation)
		}
		if in.OrderDirection == DirectionNone {
			return fmt.Errorf("%s operation requires an order direction", in.Operation)
		}
		if len(in.GroupBy) > 0 && in.Aggregation == AggNone {
			return fmt.Errorf("%s operation with grouping requires an aggregation", in.Operation)
		}
	case OpFilter:
		if len(in.Filters) == 0 {
			return fmt.Errorf("filter operation requires at least one predicate")
		}
		if in.Aggregation != AggNone {
			return fmt.Errorf("filter operation must not aggregate")
		}
		if len(in.GroupBy) > 0 {
			return fmt.Errorf("filter operation must not group")
		}
	}
	return nil
}
