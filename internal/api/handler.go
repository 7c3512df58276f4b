// Package api exposes the session, dataset and ask surface over HTTP.
// Handlers depend on small interfaces so tests can swap the registry and
// dataset sources without a running store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tabletalk/tabletalk/internal/auth"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/session"
	"github.com/tabletalk/tabletalk/internal/storage"
)

type ReadinessCheck func(ctx context.Context) error

// SessionRegistry is the slice of the session registry the handlers use.
type SessionRegistry interface {
	Create(ctx context.Context) (session.View, error)
	Get(id string) (session.View, error)
	LoadDataset(ctx context.Context, id string, ds dataset.Dataset) (session.View, error)
	Close(id string) error
}

// ObjectFetcher loads a dataset from object storage by key.
type ObjectFetcher interface {
	Fetch(ctx context.Context, key string) (dataset.Dataset, error)
}

// TableImporter snapshots a Postgres table into a dataset.
type TableImporter interface {
	Import(ctx context.Context, table string) (dataset.Dataset, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Sessions          SessionRegistry
	Objects           ObjectFetcher
	Imports           TableImporter
	DemoData          func() dataset.Dataset
	DatasetLimits     dataset.Limits
	MaxUploadBytes    int64
	// AdminMutations requires the admin role for dataset loads and
	// session deletion. Set in the prod profile.
	AdminMutations bool
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		handleCreateSession(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sessions/{id}/dataset", func(w http.ResponseWriter, r *http.Request) {
		handleLoadDataset(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sessions/{id}/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{id}/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{id}/summary", func(w http.ResponseWriter, r *http.Request) {
		handleSummary(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleCloseSession(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/sessions", protectedHandler)
	mux.Handle("POST /v1/sessions/{id}/dataset", protectedHandler)
	mux.Handle("POST /v1/sessions/{id}/ask", protectedHandler)
	mux.Handle("GET /v1/sessions/{id}/schema", protectedHandler)
	mux.Handle("GET /v1/sessions/{id}/summary", protectedHandler)
	mux.Handle("DELETE /v1/sessions/{id}", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckProviderConfig verifies that a configured model provider has the
// settings it needs to be called at all.
func CheckProviderConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Provider.Kind == config.ProviderNone {
			return nil
		}
		if cfg.Provider.BaseURL == "" {
			return errors.New("provider base URL is not configured")
		}
		if cfg.Provider.APIKey == "" {
			return errors.New("provider API key is not configured")
		}
		return nil
	}
}

// readinessProbeKey is the object the readiness check stats. A missing
// object still proves the store answers.
const readinessProbeKey = "healthz/probe"

func CheckObjectStore(store storage.ObjectStore) ReadinessCheck {
	return func(ctx context.Context) error {
		if store == nil {
			return nil
		}
		if _, err := store.Stat(ctx, readinessProbeKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("object store: %w", err)
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// requireRole passes when auth is disabled (no identity in context) or
// when the identity carries the role.
func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

// mutationRole is the role dataset loads and session deletes demand.
func mutationRole(deps Dependencies) string {
	if deps.AdminMutations {
		return auth.RoleAdmin
	}
	return auth.RoleAsk
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
