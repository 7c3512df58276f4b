package dataset

import (
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// FromParquet reads a Parquet file with a flat schema. Nested or repeated
// columns are rejected; null values become empty cells.
func FromParquet(name string, r io.ReaderAt, size int64, lim Limits) (Dataset, error) {
	lim = lim.withDefaults()

	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return Dataset{}, fmt.Errorf("open parquet: %w", err)
	}

	fields := file.Schema().Fields()
	if len(fields) == 0 {
		return Dataset{}, ErrEmpty
	}
	if len(fields) > lim.MaxColumns {
		return Dataset{}, fmt.Errorf("%d columns, limit is %d: %w", len(fields), lim.MaxColumns, ErrTooWide)
	}
	names := make([]string, len(fields))
	for i, field := range fields {
		if !field.Leaf() {
			return Dataset{}, fmt.Errorf("column %q is nested, only flat schemas load", field.Name())
		}
		names[i] = field.Name()
	}
	columns, err := normalizeColumns(names)
	if err != nil {
		return Dataset{}, err
	}

	if file.NumRows() > int64(lim.MaxRows) {
		return Dataset{}, fmt.Errorf("%d rows, limit is %d: %w", file.NumRows(), lim.MaxRows, ErrTooManyRows)
	}

	rows := make([][]string, 0, file.NumRows())
	buf := make([]parquet.Row, 64)
	for _, group := range file.RowGroups() {
		groupRows := group.Rows()
		for {
			n, err := groupRows.ReadRows(buf)
			for _, raw := range buf[:n] {
				record := make([]string, len(columns))
				for _, value := range raw {
					idx := value.Column()
					if idx < 0 || idx >= len(record) || value.IsNull() {
						continue
					}
					record[idx] = value.String()
				}
				rows = append(rows, record)
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				_ = groupRows.Close()
				return Dataset{}, fmt.Errorf("read parquet rows: %w", err)
			}
			if n == 0 {
				break
			}
		}
		if err := groupRows.Close(); err != nil {
			return Dataset{}, fmt.Errorf("close parquet reader: %w", err)
		}
	}

	return Dataset{Name: datasetName(name), Columns: columns, Rows: rows}, nil
}
