package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// FromCSV reads a comma separated stream with a mandatory header row.
// Ragged rows are rejected by the reader; a header with no data rows is a
// valid empty dataset.
func FromCSV(name string, r io.Reader, lim Limits) (Dataset, error) {
	lim = lim.withDefaults()

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Dataset{}, ErrEmpty
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) > lim.MaxColumns {
		return Dataset{}, fmt.Errorf("%d columns, limit is %d: %w", len(header), lim.MaxColumns, ErrTooWide)
	}
	columns, err := normalizeColumns(header)
	if err != nil {
		return Dataset{}, err
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}
		if len(rows) >= lim.MaxRows {
			return Dataset{}, fmt.Errorf("more than %d rows: %w", lim.MaxRows, ErrTooManyRows)
		}
		rows = append(rows, record)
	}

	return Dataset{Name: datasetName(name), Columns: columns, Rows: rows}, nil
}
