package translate

import (
	"context"
	"strconv"

	"github.com/tabletalk/tabletalk/internal/schema"
)

// aggregationVerbs maps spoken aggregation words onto functions.
var aggregationVerbs = map[string]Aggregation{
	"sum": AggSum, "total": AggSum,
	"average": AggAvg, "avg": AggAvg, "mean": AggAvg,
	"count": AggCount, "many": AggCount, "number": AggCount,
	"min": AggMin, "minimum": AggMin,
	"max": AggMax, "maximum": AggMax,
}

var topWords = map[string]struct{}{
	"top": {}, "highest": {}, "best": {}, "largest": {},
}

var bottomWords = map[string]struct{}{
	"bottom": {}, "lowest": {}, "worst": {}, "smallest": {},
}

// fillerWords may appear anywhere inside a template without affecting it.
var fillerWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "all": {}, "for": {},
}

var rowWords = map[string]struct{}{
	"rows": {}, "records": {}, "entries": {},
}

var groupKeywords = map[string]struct{}{
	"by": {}, "per": {}, "each": {},
}

// connectorWords sit between a comparator and its value.
var connectorWords = map[string]struct{}{
	"than": {}, "to": {}, "the": {}, "a": {}, "an": {},
}

// PatternStrategy translates via an ordered list of deterministic token
// templates: ranked (top/bottom N) first, then aggregates, then threshold
// filters. Confidence values are fixed per template kind and tunable.
type PatternStrategy struct {
	// FullMatchConfidence is reported when every template slot bound
	// directly to the query.
	FullMatchConfidence float64
	// DefaultFallbackConfidence is reported when a column slot had to be
	// filled from a schema default.
	DefaultFallbackConfidence float64
}

// NewPatternStrategy returns a strategy with the stock confidences.
func NewPatternStrategy() *PatternStrategy {
	return &PatternStrategy{
		FullMatchConfidence:       0.9,
		DefaultFallbackConfidence: 0.6,
	}
}

// Name implements Strategy.
func (s *PatternStrategy) Name() string {
	return StrategyPattern
}

// Translate tries each template in order and returns the first full match.
// A template whose shape matches but whose column references do not
// resolve against the schema fails without guessing; only the normalizer
// may repair spelling, upstream of this strategy.
func (s *PatternStrategy) Translate(_ context.Context, q Query) (Candidate, error) {
	templates := []func(Query) (Candidate, bool){
		s.matchRanked,
		s.matchAggregate,
		s.matchFilter,
	}
	for _, match := range templates {
		if cand, ok := match(q); ok {
			cand.Strategy = StrategyPattern
			return cand, nil
		}
	}
	return Candidate{}, ErrNoMatch
}

// matchRanked binds "top 5 regions by total sales" shapes: a ranking word,
// a numeric limit, optional group columns, then "by" with an optional
// aggregation verb and the metric column. "top N rows by <column>" ranks
// raw rows instead of groups.
func (s *PatternStrategy) matchRanked(q Query) (Candidate, bool) {
	dirIdx := -1
	op := OpTopN
	direction := DirectionDesc
	for i, t := range q.Tokens {
		if t.Quoted || t.Numeric {
			continue
		}
		if _, ok := topWords[t.Text]; ok {
			dirIdx, op, direction = i, OpTopN, DirectionDesc
			break
		}
		if _, ok := bottomWords[t.Text]; ok {
			dirIdx, op, direction = i, OpBottomN, DirectionAsc
			break
		}
	}
	if dirIdx < 0 || !allReserved(q.Tokens[:dirIdx]) {
		return Candidate{}, false
	}

	limitIdx := dirIdx + 1
	if limitIdx >= len(q.Tokens) || !q.Tokens[limitIdx].Numeric {
		return Candidate{}, false
	}
	limit, err := strconv.Atoi(q.Tokens[limitIdx].Text)
	if err != nil || limit <= 0 {
		return Candidate{}, false
	}

	byIdx := -1
	for i := limitIdx + 1; i < len(q.Tokens); i++ {
		if t := q.Tokens[i]; !t.Quoted && t.Text == "by" {
			byIdx = i
			break
		}
	}
	if byIdx < 0 {
		return Candidate{}, false
	}

	var groups []string
	rowRank := false
	for i := limitIdx + 1; i < byIdx; i++ {
		t := q.Tokens[i]
		if t.Quoted || t.Numeric {
			return Candidate{}, false
		}
		if _, filler := fillerWords[t.Text]; filler {
			continue
		}
		if _, row := rowWords[t.Text]; row {
			rowRank = true
			continue
		}
		if !q.Schema.HasColumn(t.Text) {
			return Candidate{}, false
		}
		groups = append(groups, t.Text)
	}

	idx := skipFiller(q.Tokens, byIdx+1)
	agg := AggNone
	if idx < len(q.Tokens) && !q.Tokens[idx].Quoted && !q.Tokens[idx].Numeric {
		if a, ok := aggregationVerbs[q.Tokens[idx].Text]; ok {
			agg = a
			idx = skipFiller(q.Tokens, idx+1)
		}
	}

	metric := ""
	switch {
	case idx < len(q.Tokens):
		t := q.Tokens[idx]
		if t.Quoted || t.Numeric {
			return Candidate{}, false
		}
		if _, row := rowWords[t.Text]; row && agg == AggCount {
			metric = "*"
		} else if q.Schema.HasColumn(t.Text) {
			metric = t.Text
		} else {
			return Candidate{}, false
		}
		idx++
	case agg == AggCount:
		metric = "*"
	default:
		return Candidate{}, false
	}
	if !allFiller(q.Tokens[idx:]) {
		return Candidate{}, false
	}

	if rowRank && len(groups) == 0 {
		return s.rankedRows(q, op, direction, limit, agg, metric)
	}

	confidence := s.FullMatchConfidence
	var defaults []Default
	if metric == "*" && agg != AggCount {
		return Candidate{}, false
	}
	if agg == AggNone {
		col, _ := q.Schema.Column(metric)
		if col.Type != schema.TypeNumeric {
			return Candidate{}, false
		}
		agg = AggSum
		defaults = append(defaults, Default{
			Field: "aggregation",
			Value: string(AggSum),
			Note:  "no aggregation named for a numeric metric",
		})
	}
	if len(groups) == 0 {
		cats := q.Schema.ColumnsOfType(schema.TypeCategorical)
		if len(cats) == 0 {
			return Candidate{}, false
		}
		groups = []string{cats[0].Name}
		confidence = s.DefaultFallbackConfidence
		defaults = append(defaults, Default{
			Field: "group_by",
			Value: cats[0].Name,
			Note:  "no group column named; defaulted to the first categorical column",
		})
	}
	return Candidate{
		Intent: Intent{
			Operation:      op,
			TargetColumns:  []string{metric},
			Aggregation:    agg,
			GroupBy:        groups,
			OrderDirection: direction,
			Limit:          limit,
		},
		Confidence: confidence,
		Defaults:   defaults,
	}, true
}

// rankedRows handles "top N rows by <numeric column>": whole rows ordered
// by the metric, no grouping.
func (s *PatternStrategy) rankedRows(q Query, op Operation, direction Direction, limit int, agg Aggregation, metric string) (Candidate, bool) {
	if agg != AggNone || metric == "*" {
		return Candidate{}, false
	}
	col, _ := q.Schema.Column(metric)
	if col.Type != schema.TypeNumeric && col.Type != schema.TypeDate {
		return Candidate{}, false
	}
	targets := []string{metric}
	for _, name := range q.Schema.Names() {
		if name != metric {
			targets = append(targets, name)
		}
	}
	return Candidate{
		Intent: Intent{
			Operation:      op,
			TargetColumns:  targets,
			Aggregation:    AggNone,
			OrderDirection: direction,
			Limit:          limit,
		},
		Confidence: s.FullMatchConfidence,
	}, true
}

// matchAggregate binds "sum of sales", "average satisfaction per product",
// "count rows" shapes: an aggregation verb, the metric column, and an
// optional group clause introduced by "by", "per" or "each".
func (s *PatternStrategy) matchAggregate(q Query) (Candidate, bool) {
	verbIdx := -1
	agg := AggNone
	for i, t := range q.Tokens {
		if t.Quoted || t.Numeric {
			continue
		}
		if a, ok := aggregationVerbs[t.Text]; ok {
			verbIdx = i
			agg = a
			break
		}
	}
	if verbIdx < 0 || !allReserved(q.Tokens[:verbIdx]) {
		return Candidate{}, false
	}

	idx := skipFiller(q.Tokens, verbIdx+1)
	metric := ""
	switch {
	case idx < len(q.Tokens):
		t := q.Tokens[idx]
		if t.Quoted || t.Numeric {
			return Candidate{}, false
		}
		if _, row := rowWords[t.Text]; row && agg == AggCount {
			metric = "*"
		} else if q.Schema.HasColumn(t.Text) {
			metric = t.Text
		} else {
			return Candidate{}, false
		}
		idx++
	case agg == AggCount:
		metric = "*"
	default:
		return Candidate{}, false
	}

	var groups []string
	idx = skipFiller(q.Tokens, idx)
	if idx < len(q.Tokens) && !q.Tokens[idx].Quoted {
		if _, ok := groupKeywords[q.Tokens[idx].Text]; ok {
			idx = skipFiller(q.Tokens, idx+1)
			for {
				if idx >= len(q.Tokens) {
					return Candidate{}, false
				}
				t := q.Tokens[idx]
				if t.Quoted || t.Numeric || !q.Schema.HasColumn(t.Text) {
					return Candidate{}, false
				}
				groups = append(groups, t.Text)
				idx++
				if idx < len(q.Tokens) && !q.Tokens[idx].Quoted && q.Tokens[idx].Text == "and" {
					idx++
					continue
				}
				break
			}
		}
	}
	if !allFiller(q.Tokens[idx:]) {
		return Candidate{}, false
	}

	intent := Intent{
		TargetColumns:  []string{metric},
		Aggregation:    agg,
		OrderDirection: DirectionNone,
	}
	if len(groups) > 0 {
		intent.Operation = OpGroupByAggregate
		intent.GroupBy = groups
	} else {
		intent.Operation = OpAggregate
	}
	return Candidate{Intent: intent, Confidence: s.FullMatchConfidence}, true
}

// matchFilter binds threshold and equality shapes like "products with
// satisfaction above 3" or "region is north". Every comparator found
// becomes one predicate; the filtered column is the nearest column token
// before the comparator. All remaining significant tokens must be schema
// columns, otherwise the template refuses the query.
func (s *PatternStrategy) matchFilter(q Query) (Candidate, bool) {
	used := make([]bool, len(q.Tokens))
	var preds []Predicate

	for i := 0; i < len(q.Tokens); i++ {
		cmp, width, ok := comparatorAt(q.Tokens, i)
		if !ok {
			continue
		}
		colIdx := -1
		for j := i - 1; j >= 0; j-- {
			t := q.Tokens[j]
			if t.Quoted || t.Numeric || used[j] {
				continue
			}
			if q.Schema.HasColumn(t.Text) {
				colIdx = j
				break
			}
		}
		if colIdx < 0 {
			return Candidate{}, false
		}
		vIdx := skipConnectors(q.Tokens, i+width)
		if vIdx >= len(q.Tokens) {
			return Candidate{}, false
		}
		value, ok := predicateValue(q.Tokens[vIdx])
		if !ok {
			return Candidate{}, false
		}
		preds = append(preds, Predicate{
			Column:     q.Tokens[colIdx].Text,
			Comparator: cmp,
			Value:      value,
		})
		used[colIdx] = true
		for k := i; k < i+width; k++ {
			used[k] = true
		}
		used[vIdx] = true
		i = vIdx
	}
	if len(preds) == 0 {
		return Candidate{}, false
	}

	for i, t := range q.Tokens {
		if used[i] {
			continue
		}
		if t.Quoted || t.Numeric {
			return Candidate{}, false
		}
		if _, reserved := reservedWords[t.Text]; reserved {
			continue
		}
		if !q.Schema.HasColumn(t.Text) {
			return Candidate{}, false
		}
	}

	return Candidate{
		Intent: Intent{
			Operation:      OpFilter,
			TargetColumns:  q.Schema.Names(),
			Aggregation:    AggNone,
			Filters:        preds,
			OrderDirection: DirectionNone,
		},
		Confidence: s.FullMatchConfidence,
	}, true
}

// comparatorAt recognizes a comparator word sequence starting at i and
// returns the comparator plus how many tokens it spans.
func comparatorAt(tokens []Token, i int) (Comparator, int, bool) {
	t := tokens[i]
	if t.Quoted || t.Numeric {
		return "", 0, false
	}
	wordAt := func(off int) string {
		j := i + off
		if j < len(tokens) && !tokens[j].Quoted && !tokens[j].Numeric {
			return tokens[j].Text
		}
		return ""
	}
	switch t.Text {
	case "above", "over":
		return CmpGreater, 1, true
	case "below", "under":
		return CmpLess, 1, true
	case "greater", "more":
		if wordAt(1) == "than" {
			return CmpGreater, 2, true
		}
		return CmpGreater, 1, true
	case "less", "fewer":
		if wordAt(1) == "than" {
			return CmpLess, 2, true
		}
		return CmpLess, 1, true
	case "at":
		switch wordAt(1) {
		case "least":
			return CmpGreaterEqual, 2, true
		case "most":
			return CmpLessEqual, 2, true
		}
	case "equal", "equals":
		if wordAt(1) == "to" {
			return CmpEqual, 2, true
		}
		return CmpEqual, 1, true
	case "is":
		if wordAt(1) == "not" {
			return CmpNotEqual, 2, true
		}
		return CmpEqual, 1, true
	case "contains", "containing":
		return CmpContains, 1, true
	}
	return "", 0, false
}

func predicateValue(t Token) (any, bool) {
	switch {
	case t.Numeric:
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case t.Quoted:
		return t.Text, true
	default:
		if _, reserved := reservedWords[t.Text]; reserved {
			return nil, false
		}
		return t.Text, true
	}
}

func skipFiller(tokens []Token, idx int) int {
	for idx < len(tokens) && !tokens[idx].Quoted && !tokens[idx].Numeric {
		if _, ok := fillerWords[tokens[idx].Text]; !ok {
			break
		}
		idx++
	}
	return idx
}

func skipConnectors(tokens []Token, idx int) int {
	for idx < len(tokens) && !tokens[idx].Quoted && !tokens[idx].Numeric {
		if _, ok := connectorWords[tokens[idx].Text]; !ok {
			break
		}
		idx++
	}
	return idx
}

func allFiller(tokens []Token) bool {
	for _, t := range tokens {
		if t.Quoted || t.Numeric {
			return false
		}
		if _, ok := fillerWords[t.Text]; !ok {
			return false
		}
	}
	return true
}

func allReserved(tokens []Token) bool {
	for _, t := range tokens {
		if t.Quoted || t.Numeric {
			return false
		}
		if _, ok := reservedWords[t.Text]; !ok {
			return false
		}
	}
	return true
}
