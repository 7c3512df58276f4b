package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// typeVoteThreshold is the share of non-null values that must agree on a
// type before the column adopts it.
const typeVoteThreshold = 0.8

// maxSampleValues bounds the distinct examples kept per column.
const maxSampleValues = 5

// categoricalMaxDistinct and categoricalMaxRatio gate the split between
// low-cardinality categorical columns and free text.
const (
	categoricalMaxDistinct = 20
	categoricalMaxRatio    = 0.6
)

// dateLayouts are tried in order when probing string values for dates.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
}

var nullMarkers = map[string]struct{}{
	"":     {},
	"null": {},
	"NULL": {},
	"N/A":  {},
	"n/a":  {},
}

// Infer builds a Context from raw string cells. Headers are normalized,
// types are inferred by majority vote over non-null values, and up to five
// distinct sample values are kept per column in first-seen order.
func Infer(tableName string, headers []string, rows [][]string) (Context, error) {
	if len(headers) == 0 {
		return Context{}, fmt.Errorf("table %q has no header columns", tableName)
	}
	columns := make([]Column, len(headers))
	for i, raw := range headers {
		name := NormalizeName(raw)
		if name == "" {
			return Context{}, fmt.Errorf("table %q column %d has an empty name after normalization", tableName, i+1)
		}
		columns[i] = inferColumn(name, columnValues(rows, i))
	}
	return New(NormalizeName(tableName), columns)
}

func columnValues(rows [][]string, idx int) []string {
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if idx < len(row) {
			values = append(values, row[idx])
		} else {
			values = append(values, "")
		}
	}
	return values
}

func inferColumn(name string, values []string) Column {
	var nonNull []string
	nullSeen := false
	for _, v := range values {
		if IsNullValue(v) {
			nullSeen = true
			continue
		}
		nonNull = append(nonNull, strings.TrimSpace(v))
	}

	col := Column{Name: name, Nullable: nullSeen}
	if len(nonNull) == 0 {
		col.Type = TypeText
		return col
	}

	distinct := make(map[string]struct{}, len(nonNull))
	for _, v := range nonNull {
		if _, ok := distinct[v]; !ok {
			distinct[v] = struct{}{}
			if len(col.SampleValues) < maxSampleValues {
				col.SampleValues = append(col.SampleValues, v)
			}
		}
	}

	numericCount := 0
	maxScale := 0
	for _, v := range nonNull {
		if _, scale, ok := ParseNumeric(v); ok {
			numericCount++
			if scale > maxScale {
				maxScale = scale
			}
		}
	}
	if voteWins(numericCount, len(nonNull)) {
		col.Type = TypeNumeric
		col.Scale = maxScale
		return col
	}

	if layout, ok := detectDateLayout(nonNull); ok {
		col.Type = TypeDate
		col.DateFormat = layout
		return col
	}

	ratio := float64(len(distinct)) / float64(len(nonNull))
	if len(distinct) <= categoricalMaxDistinct && ratio <= categoricalMaxRatio {
		col.Type = TypeCategorical
	} else {
		col.Type = TypeText
	}
	return col
}

func voteWins(matches, total int) bool {
	if total == 0 {
		return false
	}
	return float64(matches)/float64(total) >= typeVoteThreshold
}

func detectDateLayout(values []string) (string, bool) {
	for _, layout := range dateLayouts {
		matches := 0
		for _, v := range values {
			if _, err := time.Parse(layout, v); err == nil {
				matches++
			}
		}
		if voteWins(matches, len(values)) {
			return layout, true
		}
	}
	return "", false
}

// IsNullValue reports whether a raw cell represents a missing value.
func IsNullValue(raw string) bool {
	_, ok := nullMarkers[strings.TrimSpace(raw)]
	return ok
}

// ParseNumeric parses a cell as a number, tolerating thousands separators
// and a leading currency symbol. It returns the parsed value and the number
// of decimal places present in the source text.
func ParseNumeric(raw string) (float64, int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, 0, false
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	for _, sym := range []string{"$", "€", "£"} {
		s = strings.TrimPrefix(s, sym)
	}
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, 0, false
	}
	if neg {
		f = -f
	}
	scale := 0
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		scale = len(s) - dot - 1
	}
	return f, scale, true
}

// ParseDate parses a cell with the column's detected layout.
func ParseDate(raw, layout string) (time.Time, bool) {
	t, err := time.Parse(layout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseDateAny tries every recognized layout in order.
func ParseDateAny(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, ok := ParseDate(raw, layout); ok {
			return t, true
		}
	}
	return time.Time{}, false
}
