// Package analyzer produces a deterministic descriptive summary of a
// loaded dataset. The API returns it when translation exhausts every
// strategy, and serves it directly behind the summary endpoint.
package analyzer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tabletalk/tabletalk/internal/schema"
	"github.com/tabletalk/tabletalk/internal/store"
)

// topValueLimit bounds the per-column value counts.
const topValueLimit = 5

// Executor runs read-only SQL against a loaded dataset.
type Executor interface {
	Query(ctx context.Context, sqlText string) (store.Result, error)
}

type NumericSummary struct {
	Column string `json:"column"`
	Min    string `json:"min"`
	Max    string `json:"max"`
	Avg    string `json:"avg"`
}

type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

type CategoricalSummary struct {
	Column string       `json:"column"`
	Top    []ValueCount `json:"top_values"`
}

type Summary struct {
	Table       string               `json:"table"`
	RowCount    int64                `json:"row_count"`
	Numeric     []NumericSummary     `json:"numeric_columns,omitempty"`
	Categorical []CategoricalSummary `json:"categorical_columns,omitempty"`
}

// Summarize walks the schema in column order, so repeated calls over the
// same dataset give identical output. An empty table reports only its
// row count.
func Summarize(ctx context.Context, sc schema.Context, exec Executor) (Summary, error) {
	summary := Summary{Table: sc.TableName}

	count, err := rowCount(ctx, sc, exec)
	if err != nil {
		return Summary{}, err
	}
	summary.RowCount = count
	if count == 0 {
		return summary, nil
	}

	for _, col := range sc.ColumnsOfType(schema.TypeNumeric) {
		numeric, err := summarizeNumeric(ctx, sc, exec, col)
		if err != nil {
			return Summary{}, err
		}
		summary.Numeric = append(summary.Numeric, numeric)
	}
	for _, col := range sc.ColumnsOfType(schema.TypeCategorical) {
		categorical, err := summarizeCategorical(ctx, sc, exec, col)
		if err != nil {
			return Summary{}, err
		}
		summary.Categorical = append(summary.Categorical, categorical)
	}
	return summary, nil
}

func rowCount(ctx context.Context, sc schema.Context, exec Executor) (int64, error) {
	sqlText := fmt.Sprintf(`SELECT count(*) AS "row_count" FROM %s`, quoteIdent(sc.TableName))
	res, err := exec.Query(ctx, sqlText)
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return 0, fmt.Errorf("count rows: empty result")
	}
	return toInt64(res.Rows[0][0]), nil
}

func summarizeNumeric(ctx context.Context, sc schema.Context, exec Executor, col schema.Column) (NumericSummary, error) {
	ident := quoteIdent(col.Name)
	sqlText := fmt.Sprintf(
		`SELECT min(%s) AS %s, max(%s) AS %s, avg(%s) AS %s FROM %s`,
		ident, quoteIdent("min_"+col.Name),
		ident, quoteIdent("max_"+col.Name),
		ident, quoteIdent("avg_"+col.Name),
		quoteIdent(sc.TableName),
	)
	res, err := exec.Query(ctx, sqlText)
	if err != nil {
		return NumericSummary{}, fmt.Errorf("summarize column %s: %w", col.Name, err)
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) < 3 {
		return NumericSummary{}, fmt.Errorf("summarize column %s: empty result", col.Name)
	}
	row := res.Rows[0]
	return NumericSummary{
		Column: col.Name,
		Min:    formatCell(row[0]),
		Max:    formatCell(row[1]),
		Avg:    formatCell(row[2]),
	}, nil
}

func summarizeCategorical(ctx context.Context, sc schema.Context, exec Executor, col schema.Column) (CategoricalSummary, error) {
	sqlText := fmt.Sprintf(
		`SELECT %s AS "value", count(*) AS "cnt" FROM %s GROUP BY %s ORDER BY "cnt" DESC, "value" ASC LIMIT %d`,
		quoteIdent(col.Name), quoteIdent(sc.TableName), quoteIdent(col.Name), topValueLimit,
	)
	res, err := exec.Query(ctx, sqlText)
	if err != nil {
		return CategoricalSummary{}, fmt.Errorf("summarize column %s: %w", col.Name, err)
	}
	out := CategoricalSummary{Column: col.Name}
	for _, row := range res.Rows {
		if len(row) < 2 {
			continue
		}
		out.Top = append(out.Top, ValueCount{Value: formatCell(row[0]), Count: toInt64(row[1])})
	}
	return out, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

// formatCell renders a store value for summary output. The store has
// already rounded numerics to the column scale.
func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
