// Package schema describes loaded datasets: column names, inferred types,
// sample values and nullability. A schema.Context is built once per dataset
// load and treated as read-only afterwards; translation strategies and the
// validator both work against it.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// Type classifies a column for translation purposes.
type Type string

const (
	TypeNumeric     Type = "numeric"
	TypeCategorical Type = "categorical"
	TypeDate        Type = "date"
	TypeText        Type = "text"
)

// Column describes a single dataset column.
type Column struct {
	Name         string   `json:"name"`
	Type         Type     `json:"type"`
	SampleValues []string `json:"sample_values,omitempty"`
	Nullable     bool     `json:"nullable"`
	// Scale is the largest number of decimal places observed in a numeric
	// column. Query results for the column are rounded back to it.
	Scale int `json:"scale,omitempty"`
	// DateFormat is the Go layout that parsed a date column.
	DateFormat string `json:"date_format,omitempty"`
}

// Context is the full description of one loaded dataset.
type Context struct {
	TableName string   `json:"table_name"`
	Columns   []Column `json:"columns"`
}

// New validates the table name and column set and returns a Context.
// Column order is preserved; names must be unique and non-empty.
func New(tableName string, columns []Column) (Context, error) {
	if strings.TrimSpace(tableName) == "" {
		return Context{}, fmt.Errorf("table name is required")
	}
	if len(columns) == 0 {
		return Context{}, fmt.Errorf("table %q has no columns", tableName)
	}
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if strings.TrimSpace(col.Name) == "" {
			return Context{}, fmt.Errorf("table %q has a column with an empty name", tableName)
		}
		if _, ok := seen[col.Name]; ok {
			return Context{}, fmt.Errorf("table %q has duplicate column %q", tableName, col.Name)
		}
		seen[col.Name] = struct{}{}
		switch col.Type {
		case TypeNumeric, TypeCategorical, TypeDate, TypeText:
		default:
			return Context{}, fmt.Errorf("column %q has unknown type %q", col.Name, col.Type)
		}
	}
	return Context{TableName: tableName, Columns: columns}, nil
}

// Column returns the descriptor for name, if present.
func (c Context) Column(name string) (Column, bool) {
	for _, col := range c.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether name is a known column.
func (c Context) HasColumn(name string) bool {
	_, ok := c.Column(name)
	return ok
}

// Names returns the column names in declaration order.
func (c Context) Names() []string {
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.Name
	}
	return names
}

// ColumnsOfType returns the columns matching t in declaration order.
func (c Context) ColumnsOfType(t Type) []Column {
	var out []Column
	for _, col := range c.Columns {
		if col.Type == t {
			out = append(out, col)
		}
	}
	return out
}

// Fingerprint returns a stable hash of the table name and column shapes.
// Two contexts with the same fingerprint are interchangeable for
// translation caching.
func (c Context) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", c.TableName)
	for _, col := range c.Columns {
		fmt.Fprintf(h, "%s|%s|%t|%d\n", col.Name, col.Type, col.Nullable, col.Scale)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Summary renders the context as compact text for model prompts. Each
// column appears on one line with its type, nullability and up to
// maxSamples example values.
func (c Context) Summary(maxSamples int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "table %s\n", c.TableName)
	for _, col := range c.Columns {
		fmt.Fprintf(&b, "- %s (%s", col.Name, col.Type)
		if col.Nullable {
			b.WriteString(", nullable")
		}
		b.WriteString(")")
		samples := col.SampleValues
		if maxSamples > 0 && len(samples) > maxSamples {
			samples = samples[:maxSamples]
		}
		if len(samples) > 0 {
			fmt.Fprintf(&b, " e.g. %s", strings.Join(samples, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// NormalizeName lowercases an identifier and collapses runs of
// non-alphanumeric characters into single underscores. Loaders apply it to
// every header so that lookups are exact after normalization.
func NormalizeName(raw string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}
