package demo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/schema"
	"github.com/tabletalk/tabletalk/internal/storage"
)

func TestGeneratorDeterministicForSeed(t *testing.T) {
	g1 := NewGenerator(42)
	g2 := NewGenerator(42)
	for i := 0; i < 5; i++ {
		s1 := g1.Next()
		s2 := g2.Next()
		if !reflect.DeepEqual(s1, s2) {
			t.Fatalf("row %d differs: %#v vs %#v", i, s1, s2)
		}
	}
}

func TestGeneratorValueRanges(t *testing.T) {
	windowStart := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, time.June, 30, 0, 0, 0, 0, time.UTC)
	knownRegions := map[string]bool{"north": true, "south": true, "east": true, "west": true}
	knownProducts := map[string]bool{"widget": true, "gadget": true, "gizmo": true}

	g := NewGenerator(7)
	for i := 0; i < 100; i++ {
		s := g.Next()
		day, err := time.Parse("2006-01-02", s.OrderDate)
		if err != nil {
			t.Fatalf("row %d order_date = %q: %v", i, s.OrderDate, err)
		}
		if day.Before(windowStart) || day.After(windowEnd) {
			t.Fatalf("row %d order_date %s outside the demo window", i, s.OrderDate)
		}
		if !knownRegions[s.Region] {
			t.Fatalf("row %d region = %q", i, s.Region)
		}
		if !knownProducts[s.Product] {
			t.Fatalf("row %d product = %q", i, s.Product)
		}
		if s.Units < 1 || s.Units > 24 {
			t.Fatalf("row %d units = %d", i, s.Units)
		}
		if s.Sales <= 0 {
			t.Fatalf("row %d sales = %f", i, s.Sales)
		}
	}
}

func TestDatasetInfersExpectedTypes(t *testing.T) {
	ds := Dataset(50, 42)
	if ds.Name != "sales" || len(ds.Rows) != 50 {
		t.Fatalf("dataset = %q with %d rows", ds.Name, len(ds.Rows))
	}

	sc, err := schema.Infer(ds.Name, ds.Columns, ds.Rows)
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	want := map[string]schema.Type{
		"order_date": schema.TypeDate,
		"region":     schema.TypeCategorical,
		"product":    schema.TypeCategorical,
		"units":      schema.TypeNumeric,
		"sales":      schema.TypeNumeric,
	}
	if len(sc.Columns) != len(want) {
		t.Fatalf("columns = %d, want %d", len(sc.Columns), len(want))
	}
	for _, col := range sc.Columns {
		if col.Type != want[col.Name] {
			t.Fatalf("column %q type = %q, want %q", col.Name, col.Type, want[col.Name])
		}
	}
}

func TestParquetRoundTripsThroughLoader(t *testing.T) {
	data, err := Parquet(25, 7)
	if err != nil {
		t.Fatalf("Parquet() error = %v", err)
	}

	ds, err := dataset.FromParquet("sales", bytes.NewReader(data), int64(len(data)), dataset.Limits{})
	if err != nil {
		t.Fatalf("FromParquet() error = %v", err)
	}
	if ds.Name != "sales" || len(ds.Rows) != 25 {
		t.Fatalf("dataset = %q with %d rows", ds.Name, len(ds.Rows))
	}
	wantColumns := []string{"order_date", "region", "product", "units", "sales"}
	if !reflect.DeepEqual(ds.Columns, wantColumns) {
		t.Fatalf("columns = %v", ds.Columns)
	}

	g := NewGenerator(7)
	for i, row := range ds.Rows {
		s := g.Next()
		if row[0] != s.OrderDate || row[1] != s.Region || row[2] != s.Product {
			t.Fatalf("row %d = %v, want %+v", i, row, s)
		}
		units, err := strconv.ParseInt(row[3], 10, 64)
		if err != nil || units != s.Units {
			t.Fatalf("row %d units = %q, want %d", i, row[3], s.Units)
		}
		sales, err := strconv.ParseFloat(row[4], 64)
		if err != nil || math.Abs(sales-s.Sales) > 0.001 {
			t.Fatalf("row %d sales = %q, want %.2f", i, row[4], s.Sales)
		}
	}
}

func TestSeedObjectStoreUploads(t *testing.T) {
	store := &captureStore{}
	if err := SeedObjectStore(context.Background(), store, 10, 42); err != nil {
		t.Fatalf("SeedObjectStore() error = %v", err)
	}
	if store.key != ObjectKey {
		t.Fatalf("key = %q, want %q", store.key, ObjectKey)
	}
	if store.size <= 0 || int64(len(store.data)) != store.size {
		t.Fatalf("size = %d with %d bytes captured", store.size, len(store.data))
	}
	if store.contentType != "application/octet-stream" {
		t.Fatalf("content type = %q", store.contentType)
	}
}

func TestSeedObjectStoreWrapsPutErrors(t *testing.T) {
	store := &captureStore{putErr: errors.New("bucket missing")}
	err := SeedObjectStore(context.Background(), store, 10, 42)
	if err == nil || !errors.Is(err, store.putErr) {
		t.Fatalf("SeedObjectStore() error = %v", err)
	}
}

type captureStore struct {
	key         string
	size        int64
	contentType string
	data        []byte
	putErr      error
}

func (c *captureStore) Put(_ context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	if c.putErr != nil {
		return storage.ObjectInfo{}, c.putErr
	}
	c.key = key
	c.size = size
	c.contentType = opts.ContentType
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	c.data = data
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (c *captureStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (c *captureStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, storage.ErrObjectNotFound
}

func (c *captureStore) Delete(context.Context, string) error { return nil }
