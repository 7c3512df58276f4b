package translate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tabletalk/tabletalk/internal/schema"
)

// Compile renders a structurally valid intent as one deterministic SELECT.
// Identifiers are always double-quoted; aggregate expressions carry stable
// aliases (sum_sales, count_rows) so result columns map back to source
// columns. Grouped queries always get an ORDER BY so result order is
// reproducible.
func Compile(in Intent, sc schema.Context) (string, error) {
	if err := in.Validate(); err != nil {
		return "", fmt.Errorf("compile intent: %w", err)
	}
	table := quoteIdent(sc.TableName)
	where, err := compileWhere(in.Filters, sc)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	switch {
	case in.Operation == OpFilter, in.Operation != OpFilter && in.Aggregation == AggNone && len(in.GroupBy) == 0:
		// plain row selection, optionally ordered and limited
		cols := make([]string, len(in.TargetColumns))
		for i, c := range in.TargetColumns {
			cols[i] = quoteIdent(c)
		}
		fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), table)
		if where != "" {
			b.WriteString(" WHERE " + where)
		}
		if in.OrderDirection != DirectionNone {
			fmt.Fprintf(&b, " ORDER BY %s %s", quoteIdent(in.TargetColumns[0]), sqlDirection(in.OrderDirection))
		}
	case len(in.GroupBy) == 0:
		// whole-table aggregate, single row out
		expr, alias := aggregateExpr(in.Aggregation, in.TargetColumns[0])
		fmt.Fprintf(&b, "SELECT %s AS %s FROM %s", expr, alias, table)
		if where != "" {
			b.WriteString(" WHERE " + where)
		}
	default:
		// grouped aggregate, also used by ranked operations
		expr, alias := aggregateExpr(in.Aggregation, in.TargetColumns[0])
		groupCols := make([]string, len(in.GroupBy))
		for i, c := range in.GroupBy {
			groupCols[i] = quoteIdent(c)
		}
		grouped := strings.Join(groupCols, ", ")
		fmt.Fprintf(&b, "SELECT %s, %s AS %s FROM %s", grouped, expr, alias, table)
		if where != "" {
			b.WriteString(" WHERE " + where)
		}
		b.WriteString(" GROUP BY " + grouped)
		if in.OrderDirection != DirectionNone {
			fmt.Fprintf(&b, " ORDER BY %s %s", alias, sqlDirection(in.OrderDirection))
		} else {
			b.WriteString(" ORDER BY " + grouped)
		}
	}
	if in.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", in.Limit)
	}
	return b.String(), nil
}

func aggregateExpr(agg Aggregation, column string) (expr, alias string) {
	if column == "*" {
		return "count(*)", quoteIdent("count_rows")
	}
	return fmt.Sprintf("%s(%s)", agg, quoteIdent(column)),
		quoteIdent(string(agg) + "_" + column)
}

func compileWhere(preds []Predicate, sc schema.Context) (string, error) {
	if len(preds) == 0 {
		return "", nil
	}
	parts := make([]string, len(preds))
	for i, p := range preds {
		rendered, err := compilePredicate(p, sc)
		if err != nil {
			return "", err
		}
		parts[i] = rendered
	}
	return strings.Join(parts, " AND "), nil
}

func compilePredicate(p Predicate, sc schema.Context) (string, error) {
	col := quoteIdent(p.Column)
	if p.Comparator == CmpContains {
		s, ok := p.Value.(string)
		if !ok {
			return "", fmt.Errorf("contains filter on %q requires a string value", p.Column)
		}
		escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
		return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, col, quoteString("%"+escaped+"%")), nil
	}
	literal, err := renderLiteral(coerceValue(p, sc))
	if err != nil {
		return "", fmt.Errorf("filter on %q: %w", p.Column, err)
	}
	return fmt.Sprintf("%s %s %s", col, p.Comparator, literal), nil
}

// coerceValue turns string values aimed at numeric columns into floats so
// the rendered literal is the same whichever strategy produced the intent.
func coerceValue(p Predicate, sc schema.Context) any {
	s, isString := p.Value.(string)
	if !isString {
		return p.Value
	}
	col, ok := sc.Column(p.Column)
	if !ok || col.Type != schema.TypeNumeric {
		return p.Value
	}
	if f, _, ok := schema.ParseNumeric(s); ok {
		return f
	}
	return p.Value
}

// renderLiteral produces an exact SQL literal. Floats go through decimal
// so they render as plain digits rather than exponent notation.
func renderLiteral(v any) (string, error) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t).String(), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case string:
		return quoteString(t), nil
	case bool:
		if t {
			return "TRUE", nil
		}
		return "FALSE", nil
	default:
		return "", fmt.Errorf("unsupported literal type %T", v)
	}
}

func sqlDirection(d Direction) string {
	if d == DirectionAsc {
		return "ASC"
	}
	return "DESC"
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
