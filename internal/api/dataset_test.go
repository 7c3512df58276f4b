package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tabletalk/tabletalk/internal/auth"
	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/storage"
)

func TestLoadDatasetFromInlineCSV(t *testing.T) {
	reg := newFakeRegistry()
	reg.seedBare("s-1")
	h := newTestHandler(t, Dependencies{Sessions: reg})

	payload := `{"name":"Q3 Sales","csv":"Region,Sales Amount\nnorth,10\nsouth,20\n"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/v1/sessions/s-1/dataset", payload))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["table"] != "q3_sales" || body["source"] != "upload" {
		t.Fatalf("body = %v", body)
	}
	if body["row_count"] != float64(2) {
		t.Fatalf("row_count = %v", body["row_count"])
	}
	columns, _ := body["columns"].([]any)
	if len(columns) != 2 {
		t.Fatalf("columns = %v", body["columns"])
	}
	second, _ := columns[1].(map[string]any)
	if second["name"] != "sales_amount" {
		t.Fatalf("second column = %v", second)
	}
}

func TestLoadDatasetRequiresExactlyOneSource(t *testing.T) {
	reg := newFakeRegistry()
	reg.seedBare("s-1")
	h := newTestHandler(t, Dependencies{Sessions: reg})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/v1/sessions/s-1/dataset", `{}`))
	assertEnvelope(t, rr, http.StatusBadRequest, "DATASET_SOURCE_REQUIRED")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/v1/sessions/s-1/dataset", `{"csv":"a\n1\n","pg_table":"orders"}`))
	assertEnvelope(t, rr, http.StatusBadRequest, "DATASET_SOURCE_CONFLICT")
}

func TestLoadDatasetRejectsOversizedBody(t *testing.T) {
	reg := newFakeRegistry()
	reg.seedBare("s-1")
	h := newTestHandler(t, Dependencies{Sessions: reg, MaxUploadBytes: 64})

	payload := `{"csv":"region,sales\n` + strings.Repeat(`north,1\n`, 50) + `"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/v1/sessions/s-1/dataset", payload))

	assertEnvelope(t, rr, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE")
}

func TestLoadDatasetMapsLoaderCaps(t *testing.T) {
	reg := newFakeRegistry()
	reg.seedBare("s-1")
	h := newTestHandler(t, Dependencies{
		Sessions:      reg,
		DatasetLimits: dataset.Limits{MaxRows: 1},
	})

	payload := `{"csv":"region,sales\nnorth,10\nsouth,20\n"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/v1/sessions/s-1/dataset", payload))

	assertEnvelope(t, rr, http.StatusRequestEntityTooLarge, "DATASET_TOO_MANY_ROWS")
}

func TestLoadDatasetRejectsMalformedCSV(t *testing.T) {
	reg := newFakeRegistry()
	reg.seedBare("s-1")
	h := newTestHandler(t, Dependencies{Sessions: reg})

	payload := `{"csv":"region,sales\nnorth\n"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/v1/sessions/s-1/dataset", payload))

	assertEnvelope(t, rr, http.StatusBadRequest, "DATASET_INVALID")
}

func TestLoadDatasetFromObjectStore(t *testing.T) {
	reg := newFakeRegistry()
	reg.seedBare("s-1")
	fetcher := &fakeFetcher{ds: demoDataset()}
	h := newTestHandler(t, Dependencies{Sessions: reg, Objects: fetcher})

	payload := `{"object_key":"uploads/q3_sales.csv","name":"renamed"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/v1/sessions/s-1/dataset", payload))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if fetcher.key != "uploads/q3_sales.csv" {
		t.Fatalf("fetched key = %q", fetcher.key)
	}
	body := decodeBody(t, rr)
	if body["table"] != "renamed" || body["source"] != "object" {
		t.Fatalf("body = %v", body)
	}
}

func TestLoadDatasetObjectErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "missing object", err: fmt.Errorf("stat: %w", storage.ErrObjectNotFound), status: http.StatusNotFound, code: "OBJECT_NOT_FOUND"},
		{name: "invalid key", err: fmt.Errorf("%w: segment", storage.ErrInvalidKey), status: http.StatusBadRequest, code: "OBJECT_KEY_INVALID"},
		{name: "unsupported format", err: fmt.Errorf("%w %q", dataset.ErrUnsupportedFormat, ".txt"), status: http.StatusBadRequest, code: "DATASET_INVALID"},
		{name: "store outage", err: errors.New("connection reset"), status: http.StatusBadGateway, code: "OBJECT_FETCH_FAILED"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := newFakeRegistry()
			reg.seedBare("s-1")
			h := newTestHandler(t, Dependencies{Sessions: reg, Objects: &fakeFetcher{err: tc.err}})

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/v1/sessions/s-1/dataset", `{"object_key":"x.csv"}`))
			assertEnvelope(t, rr, tc.status, tc.code)
		})
	}
}

func TestLoadDatasetObjectStoreUnconfigured(t *testing.T) {
	reg := newFakeRegistry()
	reg.seedBare("s-1")
	h := newTestHandler(t, Dependencies{Sessions: reg})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/v1/sessions/s-1/dataset", `{"object_key":"x.csv"}`))

	assertEnvelope(t, rr, http.StatusNotImplemented, "OBJECT_STORE_NOT_CONFIGURED")
}

func TestLoadDatasetFromPostgres(t *testing.T) {
	reg := newFakeRegistry()
	reg.seedBare("s-1")
	importer := &fakeImporter{ds: dataset.Dataset{
		Name:    "orders",
		Columns: []string{"region", "total"},
		Rows:    [][]string{{"north", "12.5"}},
	}}
	h := newTestHandler(t, Dependencies{Sessions: reg, Imports: importer})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/v1/sessions/s-1/dataset", `{"pg_table":"public.orders"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if importer.table != "public.orders" {
		t.Fatalf("imported table = %q", importer.table)
	}
	body := decodeBody(t, rr)
	if body["table"] != "orders" || body["source"] != "postgres" {
		t.Fatalf("body = %v", body)
	}
}

func TestLoadDatasetPostgresErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "bad reference", err: fmt.Errorf("%w %q", dataset.ErrBadTableRef, "a.b.c"), status: http.StatusBadRequest, code: "PG_TABLE_INVALID"},
		{name: "upstream failure", err: errors.New("connection refused"), status: http.StatusBadGateway, code: "PG_IMPORT_FAILED"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := newFakeRegistry()
			reg.seedBare("s-1")
			h := newTestHandler(t, Dependencies{Sessions: reg, Imports: &fakeImporter{err: tc.err}})

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/v1/sessions/s-1/dataset", `{"pg_table":"orders"}`))
			assertEnvelope(t, rr, tc.status, tc.code)
		})
	}
}

func TestLoadDatasetUnknownSession(t *testing.T) {
	h := newTestHandler(t, Dependencies{Sessions: newFakeRegistry()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/v1/sessions/ghost/dataset", `{"csv":"a\n1\n"}`))

	assertEnvelope(t, rr, http.StatusNotFound, "SESSION_NOT_FOUND")
}

func TestLoadDatasetDemandsAdminWhenConfigured(t *testing.T) {
	reg := newFakeRegistry()
	reg.seedBare("s-1")
	h := newTestHandler(t, Dependencies{Sessions: reg, AdminMutations: true})

	req := jsonRequest(http.MethodPost, "/v1/sessions/s-1/dataset", `{"csv":"a\n1\n"}`)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{
		Subject: "team-1",
		Roles:   []string{auth.RoleAsk},
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assertEnvelope(t, rr, http.StatusForbidden, "FORBIDDEN")

	req = jsonRequest(http.MethodPost, "/v1/sessions/s-1/dataset", `{"csv":"a\n1\n"}`)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{
		Subject: "ops",
		Roles:   []string{auth.RoleAdmin},
	}))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin load status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

type fakeFetcher struct {
	ds  dataset.Dataset
	err error
	key string
}

func (f *fakeFetcher) Fetch(_ context.Context, key string) (dataset.Dataset, error) {
	f.key = key
	if f.err != nil {
		return dataset.Dataset{}, f.err
	}
	return f.ds, nil
}

type fakeImporter struct {
	ds    dataset.Dataset
	err   error
	table string
}

func (f *fakeImporter) Import(_ context.Context, table string) (dataset.Dataset, error) {
	f.table = table
	if f.err != nil {
		return dataset.Dataset{}, f.err
	}
	return f.ds, nil
}
