// Package store defines the per-session relational backend that holds the
// current dataset and answers read-only queries against it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tabletalk/tabletalk/internal/schema"
)

// ErrReadOnly is returned when a statement other than a single SELECT is
// submitted for execution.
var ErrReadOnly = errors.New("only read-only SELECT statements are allowed")

// ErrNoDataset is returned when a query arrives before any dataset was
// loaded.
var ErrNoDataset = errors.New("no dataset loaded")

// Result is a fully materialized query result.
type Result struct {
	Columns  []string
	Rows     [][]any
	RowCount int
	Duration time.Duration
}

// Store holds exactly one dataset at a time. Load replaces the previous
// dataset wholesale.
type Store interface {
	Load(ctx context.Context, sc schema.Context, rows [][]string) error
	Query(ctx context.Context, sqlText string) (Result, error)
	Close() error
}
