package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// tableRefPattern admits bare and schema-qualified identifiers. Anything
// else is refused before it reaches the database.
var tableRefPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresImporter snapshots tables from an upstream Postgres into
// datasets. It holds the connection open across imports; callers own
// Close.
type PostgresImporter struct {
	db     *sql.DB
	limits Limits
}

// NewPostgresImporter wraps an already open handle, typically for tests.
func NewPostgresImporter(db *sql.DB, lim Limits) *PostgresImporter {
	return &PostgresImporter{db: db, limits: lim.withDefaults()}
}

// OpenPostgres connects via the pgx stdlib driver and verifies the
// connection with a bounded ping.
func OpenPostgres(ctx context.Context, dsn string, lim Limits) (*PostgresImporter, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresImporter(db, lim), nil
}

// Import selects every row of one table up to the row limit. The table
// reference may be schema-qualified; the dataset takes the bare table
// name.
func (im *PostgresImporter) Import(ctx context.Context, table string) (Dataset, error) {
	if !tableRefPattern.MatchString(table) {
		return Dataset{}, fmt.Errorf("%w %q", ErrBadTableRef, table)
	}

	// One row past the limit distinguishes full from overflowing.
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteTableRef(table), im.limits.MaxRows+1)
	rows, err := im.db.QueryContext(ctx, query)
	if err != nil {
		return Dataset{}, fmt.Errorf("select from %s: %w", table, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	names, err := rows.Columns()
	if err != nil {
		return Dataset{}, fmt.Errorf("read columns of %s: %w", table, err)
	}
	if len(names) == 0 {
		return Dataset{}, ErrEmpty
	}
	if len(names) > im.limits.MaxColumns {
		return Dataset{}, fmt.Errorf("%d columns, limit is %d: %w", len(names), im.limits.MaxColumns, ErrTooWide)
	}
	columns, err := normalizeColumns(names)
	if err != nil {
		return Dataset{}, err
	}

	var records [][]string
	values := make([]any, len(names))
	targets := make([]any, len(names))
	for i := range values {
		targets[i] = &values[i]
	}
	for rows.Next() {
		if len(records) >= im.limits.MaxRows {
			return Dataset{}, fmt.Errorf("table %s has more than %d rows: %w", table, im.limits.MaxRows, ErrTooManyRows)
		}
		if err := rows.Scan(targets...); err != nil {
			return Dataset{}, fmt.Errorf("scan row %d of %s: %w", len(records)+1, table, err)
		}
		record := make([]string, len(values))
		for i, v := range values {
			record[i] = cellString(v)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return Dataset{}, fmt.Errorf("iterate %s: %w", table, err)
	}

	name := table
	if dot := strings.LastIndex(table, "."); dot >= 0 {
		name = table[dot+1:]
	}
	return Dataset{Name: datasetName(name), Columns: columns, Rows: records}, nil
}

func (im *PostgresImporter) Close() error {
	return im.db.Close()
}

func quoteTableRef(table string) string {
	parts := strings.Split(table, ".")
	for i, part := range parts {
		parts[i] = `"` + part + `"`
	}
	return strings.Join(parts, ".")
}

// cellString renders one scanned value the way the CSV path would have
// read it. Dates at midnight drop the time part so inference sees them
// as dates.
func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
