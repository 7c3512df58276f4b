// Package dataset loads tabular data from CSV, Parquet, object storage or
// Postgres into the uniform row form handed to schema inference and the
// store. Cells stay strings here; typing happens downstream. Every loader
// enforces the configured size caps and reports overflows with the
// package sentinels.
package dataset

import (
	"errors"
	"fmt"

	"github.com/tabletalk/tabletalk/internal/schema"
)

// Loader failure sentinels. Cap overflows map onto payload-too-large
// responses at the API layer; everything else is a plain bad request.
var (
	ErrEmpty             = errors.New("dataset has no header row")
	ErrTooManyRows       = errors.New("dataset exceeds the row limit")
	ErrTooWide           = errors.New("dataset exceeds the column limit")
	ErrTooLarge          = errors.New("dataset exceeds the byte limit")
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrBadTableRef       = errors.New("invalid table reference")
)

// Dataset is one loaded table. Columns hold normalized names aligned with
// every row; an empty cell reads as NULL downstream.
type Dataset struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Limits bounds what a loader accepts. Zero fields fall back to
// DefaultLimits.
type Limits struct {
	MaxRows    int
	MaxColumns int
	MaxBytes   int64
}

// DefaultLimits backs any unset limit field.
var DefaultLimits = Limits{
	MaxRows:    100_000,
	MaxColumns: 64,
	MaxBytes:   32 << 20,
}

func (l Limits) withDefaults() Limits {
	if l.MaxRows <= 0 {
		l.MaxRows = DefaultLimits.MaxRows
	}
	if l.MaxColumns <= 0 {
		l.MaxColumns = DefaultLimits.MaxColumns
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultLimits.MaxBytes
	}
	return l
}

// normalizeColumns rewrites raw header names into schema-safe identifiers
// and rejects blanks and duplicates.
func normalizeColumns(raw []string) ([]string, error) {
	columns := make([]string, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, name := range raw {
		normalized := schema.NormalizeName(name)
		if normalized == "" {
			return nil, fmt.Errorf("column %d has no usable name (%q)", i+1, name)
		}
		if _, dup := seen[normalized]; dup {
			return nil, fmt.Errorf("duplicate column name %q", normalized)
		}
		seen[normalized] = struct{}{}
		columns[i] = normalized
	}
	return columns, nil
}

// datasetName normalizes a table name, defaulting when nothing survives.
func datasetName(name string) string {
	normalized := schema.NormalizeName(name)
	if normalized == "" {
		return "dataset"
	}
	return normalized
}
