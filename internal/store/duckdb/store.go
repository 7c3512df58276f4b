// Package duckdb implements store.Store on an in-memory DuckDB database.
// Each session owns one instance; loading a dataset replaces the previous
// table wholesale.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/shopspring/decimal"

	"github.com/tabletalk/tabletalk/internal/schema"
	"github.com/tabletalk/tabletalk/internal/store"
)

// Store holds the current dataset in a private in-memory database.
type Store struct {
	mu       sync.Mutex
	db       *sql.DB
	rowLimit int

	table  string
	scales map[string]int
}

// Open creates an empty in-memory store. rowLimit caps the rows any single
// query may return; zero disables the cap.
func Open(rowLimit int) (*Store, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open in-memory duckdb: %w", err)
	}
	return &Store{db: db, rowLimit: rowLimit}, nil
}

// Load creates a typed table for the schema and inserts every row. Numeric
// columns become DOUBLE, date columns DATE, everything else VARCHAR. Cells
// matching a null marker are stored as SQL NULL.
func (s *Store) Load(ctx context.Context, sc schema.Context, rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.table != "" && s.table != sc.TableName {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(s.table)); err != nil {
			return fmt.Errorf("drop previous table %s: %w", s.table, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(sc.TableName)); err != nil {
		return fmt.Errorf("drop table %s: %w", sc.TableName, err)
	}

	colDefs := make([]string, len(sc.Columns))
	for i, col := range sc.Columns {
		colDefs[i] = fmt.Sprintf("%s %s", quoteIdent(col.Name), sqlType(col.Type))
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(sc.TableName), strings.Join(colDefs, ", "))
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %s: %w", sc.TableName, err)
	}

	if err := s.insertRows(ctx, sc, rows); err != nil {
		return err
	}

	s.table = sc.TableName
	s.scales = scaleIndex(sc.Columns)
	return nil
}

func (s *Store) insertRows(ctx context.Context, sc schema.Context, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	placeholders := make([]string, len(sc.Columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (%s)",
		quoteIdent(sc.TableName), strings.Join(placeholders, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		args, err := bindArgs(sc.Columns, row)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

func bindArgs(columns []schema.Column, row []string) ([]any, error) {
	args := make([]any, len(columns))
	for i, col := range columns {
		var raw string
		if i < len(row) {
			raw = row[i]
		}
		if schema.IsNullValue(raw) {
			args[i] = nil
			continue
		}
		switch col.Type {
		case schema.TypeNumeric:
			v, _, ok := schema.ParseNumeric(raw)
			if !ok {
				return nil, fmt.Errorf("column %q: cannot parse %q as numeric", col.Name, raw)
			}
			args[i] = v
		case schema.TypeDate:
			t, ok := schema.ParseDate(raw, col.DateFormat)
			if !ok {
				return nil, fmt.Errorf("column %q: cannot parse %q as date", col.Name, raw)
			}
			args[i] = t
		default:
			args[i] = strings.TrimSpace(raw)
		}
	}
	return args, nil
}

// Query executes a single read-only SELECT and materializes the result.
// When a row cap is configured the statement is wrapped in a limiting
// subquery rather than rewritten.
func (s *Store) Query(ctx context.Context, sqlText string) (store.Result, error) {
	s.mu.Lock()
	table := s.table
	scales := s.scales
	s.mu.Unlock()
	if table == "" {
		return store.Result{}, store.ErrNoDataset
	}

	cleaned, err := sanitizeSQL(sqlText)
	if err != nil {
		return store.Result{}, err
	}
	if s.rowLimit > 0 {
		cleaned = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", cleaned, s.rowLimit)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, cleaned)
	if err != nil {
		return store.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return store.Result{}, fmt.Errorf("read result columns: %w", err)
	}

	out := store.Result{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return store.Result{}, fmt.Errorf("scan row: %w", err)
		}
		out.Rows = append(out.Rows, normalizeRow(columns, values, scales))
	}
	if err := rows.Err(); err != nil {
		return store.Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	out.RowCount = len(out.Rows)
	out.Duration = time.Since(start)
	return out, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func sanitizeSQL(sqlText string) (string, error) {
	cleaned := strings.TrimSpace(sqlText)
	for strings.HasSuffix(cleaned, ";") {
		cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, ";"))
	}
	if cleaned == "" {
		return "", fmt.Errorf("empty query text")
	}
	if strings.Contains(cleaned, ";") {
		return "", fmt.Errorf("multiple statements: %w", store.ErrReadOnly)
	}
	if !strings.HasPrefix(strings.ToLower(cleaned), "select") {
		return "", fmt.Errorf("statement must be a SELECT: %w", store.ErrReadOnly)
	}
	return cleaned, nil
}

func sqlType(t schema.Type) string {
	switch t {
	case schema.TypeNumeric:
		return "DOUBLE"
	case schema.TypeDate:
		return "DATE"
	default:
		return "VARCHAR"
	}
}

func scaleIndex(columns []schema.Column) map[string]int {
	scales := make(map[string]int)
	for _, col := range columns {
		if col.Type == schema.TypeNumeric {
			scales[col.Name] = col.Scale
		}
	}
	return scales
}

func normalizeRow(columns []string, values []any, scales map[string]int) []any {
	for i, v := range values {
		values[i] = normalizeValue(columns[i], v, scales)
	}
	return values
}

func normalizeValue(column string, value any, scales map[string]int) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case float64:
		if scale, ok := resolveScale(column, scales); ok {
			return decimal.NewFromFloat(v).Round(int32(scale)).InexactFloat64()
		}
		return v
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	default:
		return value
	}
}

// resolveScale maps a result column back to a source numeric column, either
// directly or through an aggregate alias such as sum_sales.
func resolveScale(column string, scales map[string]int) (int, bool) {
	if scale, ok := scales[column]; ok {
		return scale, true
	}
	for _, prefix := range []string{"sum_", "avg_", "min_", "max_"} {
		if rest, ok := strings.CutPrefix(column, prefix); ok {
			if scale, ok := scales[rest]; ok {
				return scale, true
			}
		}
	}
	return 0, false
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
