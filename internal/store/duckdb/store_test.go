package duckdb

import (
	"context"
	"errors"
	"testing"

	"github.com/tabletalk/tabletalk/internal/schema"
	"github.com/tabletalk/tabletalk/internal/store"
)

func salesSchema(t *testing.T) schema.Context {
	t.Helper()
	sc, err := schema.New("sales", []schema.Column{
		{Name: "region", Type: schema.TypeCategorical},
		{Name: "sales", Type: schema.TypeNumeric, Scale: 2, Nullable: true},
		{Name: "order_date", Type: schema.TypeDate, DateFormat: "2006-01-02"},
	})
	if err != nil {
		t.Fatalf("schema.New() error = %v", err)
	}
	return sc
}

func openLoaded(t *testing.T, rowLimit int, rows [][]string) *Store {
	t.Helper()
	s, err := Open(rowLimit)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Load(context.Background(), salesSchema(t), rows); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s
}

func TestQueryAggregatesSkipNulls(t *testing.T) {
	s := openLoaded(t, 0, [][]string{
		{"north", "100.50", "2025-01-03"},
		{"south", "200.25", "2025-01-04"},
		{"north", "", "2025-01-05"},
	})

	result, err := s.Query(context.Background(),
		`SELECT sum("sales") AS "sum_sales", avg("sales") AS "avg_sales", count("sales") AS "count_sales", count(*) AS "count_rows" FROM "sales"`)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.RowCount != 1 {
		t.Fatalf("RowCount = %d", result.RowCount)
	}
	row := result.Rows[0]
	if row[0] != 300.75 {
		t.Fatalf("sum_sales = %#v", row[0])
	}
	if row[1] != 150.38 {
		t.Fatalf("avg_sales = %#v, want 150.38 at scale 2", row[1])
	}
	if row[2] != int64(2) {
		t.Fatalf("count_sales = %#v, want 2 (null skipped)", row[2])
	}
	if row[3] != int64(3) {
		t.Fatalf("count_rows = %#v, want 3", row[3])
	}
}

func TestQueryReturnsDatesAsDayStrings(t *testing.T) {
	s := openLoaded(t, 0, [][]string{
		{"north", "10", "2025-01-03"},
	})
	result, err := s.Query(context.Background(), `SELECT "order_date" FROM "sales"`)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Rows[0][0] != "2025-01-03" {
		t.Fatalf("order_date = %#v", result.Rows[0][0])
	}
}

func TestQueryRejectsNonSelect(t *testing.T) {
	s := openLoaded(t, 0, [][]string{{"north", "10", "2025-01-03"}})

	_, err := s.Query(context.Background(), `DELETE FROM "sales"`)
	if !errors.Is(err, store.ErrReadOnly) {
		t.Fatalf("Query(DELETE) error = %v, want ErrReadOnly", err)
	}
	_, err = s.Query(context.Background(), `SELECT 1; SELECT 2`)
	if !errors.Is(err, store.ErrReadOnly) {
		t.Fatalf("Query(multi) error = %v, want ErrReadOnly", err)
	}
}

func TestQueryAppliesRowCap(t *testing.T) {
	s := openLoaded(t, 2, [][]string{
		{"north", "1", "2025-01-01"},
		{"south", "2", "2025-01-02"},
		{"east", "3", "2025-01-03"},
		{"west", "4", "2025-01-04"},
	})
	result, err := s.Query(context.Background(), `SELECT "region" FROM "sales" ORDER BY "region";`)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d, want capped 2", result.RowCount)
	}
}

func TestQueryEmptyResultIsNotAnError(t *testing.T) {
	s := openLoaded(t, 0, [][]string{{"north", "10", "2025-01-03"}})
	result, err := s.Query(context.Background(), `SELECT "region" FROM "sales" WHERE "sales" > 99999`)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.RowCount != 0 {
		t.Fatalf("RowCount = %d, want 0", result.RowCount)
	}
	if result.Rows == nil {
		t.Fatal("Rows should be empty, not nil")
	}
}

func TestQueryBeforeLoadFails(t *testing.T) {
	s, err := Open(0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()
	_, err = s.Query(context.Background(), `SELECT 1`)
	if !errors.Is(err, store.ErrNoDataset) {
		t.Fatalf("Query() error = %v, want ErrNoDataset", err)
	}
}

func TestLoadReplacesPreviousDataset(t *testing.T) {
	s := openLoaded(t, 0, [][]string{
		{"north", "1", "2025-01-01"},
		{"south", "2", "2025-01-02"},
	})

	replacement, err := schema.New("orders", []schema.Column{
		{Name: "city", Type: schema.TypeCategorical},
	})
	if err != nil {
		t.Fatalf("schema.New() error = %v", err)
	}
	if err := s.Load(context.Background(), replacement, [][]string{{"vienna"}}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := s.Query(context.Background(), `SELECT * FROM "sales"`); err == nil {
		t.Fatal("query against replaced table should fail")
	}
	result, err := s.Query(context.Background(), `SELECT "city" FROM "orders"`)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.RowCount != 1 || result.Rows[0][0] != "vienna" {
		t.Fatalf("rows = %#v", result.Rows)
	}
}

func TestLoadRejectsUnparseableCells(t *testing.T) {
	s, err := Open(0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()
	err = s.Load(context.Background(), salesSchema(t), [][]string{
		{"north", "not-a-number", "2025-01-03"},
	})
	if err == nil {
		t.Fatal("Load() expected error for unparseable numeric cell")
	}
}
