// Package session tracks live conversations. Each session owns an
// isolated store and translation engine for whatever dataset was loaded
// into it last; idle sessions are swept out after a TTL.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/schema"
	"github.com/tabletalk/tabletalk/internal/store"
	"github.com/tabletalk/tabletalk/internal/translate"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrLimitReached = errors.New("session limit reached")
)

// StoreFactory opens a fresh per-session store.
type StoreFactory func() (store.Store, error)

// EngineFactory builds the translation engine for a freshly loaded
// dataset. It runs on every load, so caches never outlive a schema.
type EngineFactory func(sc schema.Context, exec translate.Executor) *translate.Engine

type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
	MaxSessions   int
}

const (
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultMaxSessions   = 100
)

type session struct {
	id        string
	createdAt time.Time
	lastUsed  time.Time
	loaded    bool
	schema    schema.Context
	store     store.Store
	engine    *translate.Engine
}

// View is a point-in-time snapshot of one session. Store and Engine stay
// valid until the session closes or the next dataset load replaces them.
type View struct {
	ID        string
	CreatedAt time.Time
	LastUsed  time.Time
	Loaded    bool
	Schema    schema.Context
	Store     store.Store
	Engine    *translate.Engine
}

type Registry struct {
	cfg       Config
	newStore  StoreFactory
	newEngine EngineFactory
	logger    *slog.Logger
	clock     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewRegistry(newStore StoreFactory, newEngine EngineFactory, cfg Config, logger *slog.Logger) (*Registry, error) {
	if newStore == nil {
		return nil, fmt.Errorf("store factory is required")
	}
	if newEngine == nil {
		return nil, fmt.Errorf("engine factory is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = observability.Discard()
	}
	return &Registry{
		cfg:       cfg,
		newStore:  newStore,
		newEngine: newEngine,
		logger:    logger,
		clock:     time.Now,
		sessions:  make(map[string]*session),
	}, nil
}

// Create registers a new empty session. Asking anything before a dataset
// load is the caller's error to surface.
func (r *Registry) Create(ctx context.Context) (View, error) {
	r.mu.Lock()
	if len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return View{}, fmt.Errorf("%d live sessions: %w", r.cfg.MaxSessions, ErrLimitReached)
	}
	now := r.clock()
	s := &session{id: uuid.NewString(), createdAt: now, lastUsed: now}
	r.sessions[s.id] = s
	active := len(r.sessions)
	view := viewOf(s)
	r.mu.Unlock()

	observability.SetActiveSessions(active)
	r.logger.InfoContext(ctx, "session created", slog.String("session_id", view.ID))
	return view, nil
}

// Get returns a snapshot and refreshes the idle clock.
func (r *Registry) Get(id string) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return View{}, ErrNotFound
	}
	s.lastUsed = r.clock()
	return viewOf(s), nil
}

// LoadDataset infers the schema, loads a fresh store and swaps both into
// the session together with a new engine. The old store closes after the
// swap; queries already running against it fail softly.
func (r *Registry) LoadDataset(ctx context.Context, id string, ds dataset.Dataset) (View, error) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return View{}, ErrNotFound
	}

	sc, err := schema.Infer(ds.Name, ds.Columns, ds.Rows)
	if err != nil {
		return View{}, fmt.Errorf("infer schema: %w", err)
	}
	st, err := r.newStore()
	if err != nil {
		return View{}, fmt.Errorf("open store: %w", err)
	}
	if err := st.Load(ctx, sc, ds.Rows); err != nil {
		_ = st.Close()
		return View{}, fmt.Errorf("load dataset: %w", err)
	}
	engine := r.newEngine(sc, st)

	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		_ = st.Close()
		return View{}, ErrNotFound
	}
	old := s.store
	s.schema = sc
	s.store = st
	s.engine = engine
	s.loaded = true
	s.lastUsed = r.clock()
	view := viewOf(s)
	r.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	r.logger.InfoContext(ctx, "dataset loaded",
		slog.String("session_id", id),
		slog.String("table", sc.TableName),
		slog.Int("rows", len(ds.Rows)),
		slog.Int("columns", len(ds.Columns)))
	return view, nil
}

// Close removes one session and releases its store.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	active := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	if s.store != nil {
		_ = s.store.Close()
	}
	observability.SetActiveSessions(active)
	r.logger.Info("session closed", slog.String("session_id", id))
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run sweeps expired sessions until ctx ends.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if closed := r.SweepOnce(); closed > 0 {
				r.logger.InfoContext(ctx, "expired sessions closed", slog.Int("count", closed))
			}
		}
	}
}

// SweepOnce closes every session idle past the TTL and reports how many
// it removed.
func (r *Registry) SweepOnce() int {
	cutoff := r.clock().Add(-r.cfg.TTL)
	r.mu.Lock()
	var expired []*session
	for id, s := range r.sessions {
		if s.lastUsed.Before(cutoff) {
			delete(r.sessions, id)
			expired = append(expired, s)
		}
	}
	active := len(r.sessions)
	r.mu.Unlock()

	for _, s := range expired {
		if s.store != nil {
			_ = s.store.Close()
		}
		r.logger.Info("session expired", slog.String("session_id", s.id))
	}
	if len(expired) > 0 {
		observability.SetActiveSessions(active)
	}
	return len(expired)
}

// Shutdown closes every live session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	closing := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		closing = append(closing, s)
	}
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	for _, s := range closing {
		if s.store != nil {
			_ = s.store.Close()
		}
	}
	observability.SetActiveSessions(0)
}

func viewOf(s *session) View {
	return View{
		ID:        s.id,
		CreatedAt: s.createdAt,
		LastUsed:  s.lastUsed,
		Loaded:    s.loaded,
		Schema:    s.schema,
		Store:     s.store,
		Engine:    s.engine,
	}
}
