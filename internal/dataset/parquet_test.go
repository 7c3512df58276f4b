package dataset

import (
	"bytes"
	"errors"
	"testing"

	"github.com/parquet-go/parquet-go"
)

type parquetFixtureRow struct {
	Region     string  `parquet:"region"`
	Sales      float64 `parquet:"sales"`
	StatusNote *string `parquet:"status_note,optional"`
}

func TestFromParquetReadsFlatFile(t *testing.T) {
	note := "priority"
	data := writeParquetFixture(t, []parquetFixtureRow{
		{Region: "north", Sales: 19.99, StatusNote: &note},
		{Region: "south", Sales: 42.5},
	})

	ds, err := FromParquet("orders", bytes.NewReader(data), int64(len(data)), Limits{})
	if err != nil {
		t.Fatalf("FromParquet() error = %v", err)
	}
	if ds.Name != "orders" {
		t.Fatalf("Name = %q", ds.Name)
	}
	wantColumns := []string{"region", "sales", "status_note"}
	if len(ds.Columns) != len(wantColumns) {
		t.Fatalf("Columns = %v", ds.Columns)
	}
	for i, want := range wantColumns {
		if ds.Columns[i] != want {
			t.Fatalf("Columns[%d] = %q, want %q", i, ds.Columns[i], want)
		}
	}
	if len(ds.Rows) != 2 {
		t.Fatalf("rows = %d", len(ds.Rows))
	}
	if ds.Rows[0][0] != "north" || ds.Rows[0][1] != "19.99" || ds.Rows[0][2] != "priority" {
		t.Fatalf("row 0 = %v", ds.Rows[0])
	}
	if ds.Rows[1][2] != "" {
		t.Fatalf("null cell = %q, want empty", ds.Rows[1][2])
	}
}

func TestFromParquetEnforcesRowLimit(t *testing.T) {
	data := writeParquetFixture(t, []parquetFixtureRow{
		{Region: "north", Sales: 1},
		{Region: "south", Sales: 2},
	})

	_, err := FromParquet("orders", bytes.NewReader(data), int64(len(data)), Limits{MaxRows: 1})
	if !errors.Is(err, ErrTooManyRows) {
		t.Fatalf("FromParquet() error = %v, want ErrTooManyRows", err)
	}
}

func TestFromParquetRejectsGarbage(t *testing.T) {
	payload := []byte("not a parquet file")
	if _, err := FromParquet("orders", bytes.NewReader(payload), int64(len(payload)), Limits{}); err == nil {
		t.Fatal("expected open error")
	}
}

func writeParquetFixture(t *testing.T, rows []parquetFixtureRow) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetFixtureRow](buf)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("write parquet fixture: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet fixture: %v", err)
	}
	return buf.Bytes()
}
