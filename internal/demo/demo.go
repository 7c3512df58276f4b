// Package demo produces the bundled regional sales dataset. The
// generator is seeded, so a given configuration always yields the same
// rows whether they end up in a session or in a Parquet object.
package demo

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/storage"
)

// ObjectKey is where SeedObjectStore uploads the Parquet rendition.
const ObjectKey = "demo/sales.parquet"

// Sale is one generated row. The parquet tags name the columns in the
// uploaded file; the loader normalizes them to the same identifiers.
type Sale struct {
	OrderDate string  `parquet:"order_date"`
	Region    string  `parquet:"region"`
	Product   string  `parquet:"product"`
	Units     int64   `parquet:"units"`
	Sales     float64 `parquet:"sales"`
}

var (
	regions  = []string{"north", "south", "east", "west"}
	products = []string{"widget", "gadget", "gizmo"}

	listPrice = map[string]float64{
		"widget": 19.99,
		"gadget": 34.50,
		"gizmo":  7.25,
	}
)

type Generator struct {
	rnd      *rand.Rand
	baseDate time.Time
}

// NewGenerator seeds a generator. Dates land in a fixed 91 day window so
// date questions have a stable answer regardless of when the demo runs.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd:      rand.New(rand.NewSource(seed)),
		baseDate: time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (g *Generator) Next() Sale {
	product := pickOne(g.rnd, products)
	units := int64(g.rnd.Intn(24) + 1)
	price := listPrice[product] * (0.9 + g.rnd.Float64()*0.2)
	day := g.baseDate.AddDate(0, 0, g.rnd.Intn(91))

	return Sale{
		OrderDate: day.Format("2006-01-02"),
		Region:    pickOne(g.rnd, regions),
		Product:   product,
		Units:     units,
		Sales:     round2(float64(units) * price),
	}
}

// Dataset renders n seeded rows in loader form, ready for a session
// dataset load.
func Dataset(n int, seed int64) dataset.Dataset {
	g := NewGenerator(seed)
	rows := make([][]string, 0, max(n, 0))
	for i := 0; i < n; i++ {
		s := g.Next()
		rows = append(rows, []string{
			s.OrderDate,
			s.Region,
			s.Product,
			strconv.FormatInt(s.Units, 10),
			strconv.FormatFloat(s.Sales, 'f', 2, 64),
		})
	}
	return dataset.Dataset{
		Name:    "sales",
		Columns: []string{"order_date", "region", "product", "units", "sales"},
		Rows:    rows,
	}
}

// Parquet renders the same n seeded rows as a flat Parquet file.
func Parquet(n int, seed int64) ([]byte, error) {
	g := NewGenerator(seed)
	rows := make([]Sale, 0, max(n, 0))
	for i := 0; i < n; i++ {
		rows = append(rows, g.Next())
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Sale](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// SeedObjectStore uploads the Parquet rendition so `load -object` has a
// working target on a fresh install.
func SeedObjectStore(ctx context.Context, store storage.ObjectStore, n int, seed int64) error {
	data, err := Parquet(n, seed)
	if err != nil {
		return err
	}
	if _, err := store.Put(ctx, ObjectKey, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		return fmt.Errorf("upload %s: %w", ObjectKey, err)
	}
	return nil
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
