package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/schema"
	"github.com/tabletalk/tabletalk/internal/store"
	"github.com/tabletalk/tabletalk/internal/translate"
)

func TestCreateAndGetSession(t *testing.T) {
	reg, _ := newTestRegistry(t, Config{})

	view, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if view.ID == "" {
		t.Fatal("expected a session id")
	}
	if view.Loaded {
		t.Fatal("new session reports a loaded dataset")
	}
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}

	got, err := reg.Get(view.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != view.ID {
		t.Fatalf("Get() id = %q, want %q", got.ID, view.ID)
	}

	if _, err := reg.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCreateEnforcesSessionLimit(t *testing.T) {
	reg, _ := newTestRegistry(t, Config{MaxSessions: 1})

	if _, err := reg.Create(context.Background()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := reg.Create(context.Background()); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("Create() error = %v, want ErrLimitReached", err)
	}
}

func TestLoadDatasetReplacesStoreAndEngine(t *testing.T) {
	reg, env := newTestRegistry(t, Config{})
	view, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	loaded, err := reg.LoadDataset(context.Background(), view.ID, salesDataset())
	if err != nil {
		t.Fatalf("LoadDataset() error = %v", err)
	}
	if !loaded.Loaded {
		t.Fatal("session not marked loaded")
	}
	if loaded.Schema.TableName != "sales" {
		t.Fatalf("TableName = %q", loaded.Schema.TableName)
	}
	if env.engineCalls != 1 {
		t.Fatalf("engine factory calls = %d, want 1", env.engineCalls)
	}
	if env.stores[0].loads != 1 {
		t.Fatalf("store loads = %d, want 1", env.stores[0].loads)
	}

	replaced, err := reg.LoadDataset(context.Background(), view.ID, dataset.Dataset{
		Name:    "orders",
		Columns: []string{"product", "amount"},
		Rows:    [][]string{{"widget", "5"}},
	})
	if err != nil {
		t.Fatalf("LoadDataset() second error = %v", err)
	}
	if replaced.Schema.TableName != "orders" {
		t.Fatalf("TableName after reload = %q", replaced.Schema.TableName)
	}
	if env.engineCalls != 2 {
		t.Fatalf("engine factory calls = %d, want 2", env.engineCalls)
	}
	if !env.stores[0].closed {
		t.Fatal("first store not closed after reload")
	}
	if env.stores[1].closed {
		t.Fatal("second store closed while live")
	}
	if replaced.Engine == loaded.Engine {
		t.Fatal("engine not rebuilt on reload")
	}
}

func TestLoadDatasetUnknownSession(t *testing.T) {
	reg, _ := newTestRegistry(t, Config{})
	_, err := reg.LoadDataset(context.Background(), "missing", salesDataset())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadDataset() error = %v, want ErrNotFound", err)
	}
}

func TestLoadDatasetClosesStoreOnLoadFailure(t *testing.T) {
	reg, env := newTestRegistry(t, Config{})
	env.loadErr = fmt.Errorf("disk full")
	view, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := reg.LoadDataset(context.Background(), view.ID, salesDataset()); err == nil {
		t.Fatal("expected load error")
	}
	if !env.stores[0].closed {
		t.Fatal("failed store left open")
	}
	got, err := reg.Get(view.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Loaded {
		t.Fatal("failed load marked the session loaded")
	}
}

func TestSweepOnceClosesIdleSessions(t *testing.T) {
	reg, env := newTestRegistry(t, Config{TTL: time.Hour})
	start := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	current := start
	reg.clock = func() time.Time { return current }

	kept, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	idle, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := reg.LoadDataset(context.Background(), idle.ID, salesDataset()); err != nil {
		t.Fatalf("LoadDataset() error = %v", err)
	}

	current = start.Add(2 * time.Hour)
	if _, err := reg.Get(kept.ID); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if closed := reg.SweepOnce(); closed != 1 {
		t.Fatalf("SweepOnce() = %d, want 1", closed)
	}
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}
	if _, err := reg.Get(idle.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session still resolvable, err = %v", err)
	}
	if !env.stores[0].closed {
		t.Fatal("expired session's store not closed")
	}
}

func TestCloseRemovesSession(t *testing.T) {
	reg, env := newTestRegistry(t, Config{})
	view, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := reg.LoadDataset(context.Background(), view.ID, salesDataset()); err != nil {
		t.Fatalf("LoadDataset() error = %v", err)
	}

	if err := reg.Close(view.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !env.stores[0].closed {
		t.Fatal("store not closed")
	}
	if err := reg.Close(view.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Close() error = %v, want ErrNotFound", err)
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	reg, env := newTestRegistry(t, Config{})
	for i := 0; i < 3; i++ {
		view, err := reg.Create(context.Background())
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := reg.LoadDataset(context.Background(), view.ID, salesDataset()); err != nil {
			t.Fatalf("LoadDataset() error = %v", err)
		}
	}

	reg.Shutdown()
	if reg.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", reg.Len())
	}
	for i, fs := range env.stores {
		if !fs.closed {
			t.Fatalf("store %d not closed", i)
		}
	}
}

type testEnv struct {
	stores      []*fakeStore
	engineCalls int
	loadErr     error
}

func newTestRegistry(t *testing.T, cfg Config) (*Registry, *testEnv) {
	t.Helper()
	env := &testEnv{}
	newStore := func() (store.Store, error) {
		fs := &fakeStore{loadErr: env.loadErr}
		env.stores = append(env.stores, fs)
		return fs, nil
	}
	newEngine := func(sc schema.Context, exec translate.Executor) *translate.Engine {
		env.engineCalls++
		return translate.NewEngine(sc, exec, nil, translate.EngineConfig{})
	}
	reg, err := NewRegistry(newStore, newEngine, cfg, nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg, env
}

func salesDataset() dataset.Dataset {
	return dataset.Dataset{
		Name:    "sales",
		Columns: []string{"region", "sales"},
		Rows:    [][]string{{"north", "10"}, {"south", "20"}},
	}
}

type fakeStore struct {
	loads   int
	closed  bool
	loadErr error
}

func (f *fakeStore) Load(context.Context, schema.Context, [][]string) error {
	f.loads++
	return f.loadErr
}

func (f *fakeStore) Query(context.Context, string) (store.Result, error) {
	return store.Result{}, nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}
