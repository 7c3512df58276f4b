package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/analyzer"
	"github.com/tabletalk/tabletalk/internal/auth"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/schema"
	"github.com/tabletalk/tabletalk/internal/session"
)

type createSessionRequest struct {
	Demo bool `json:"demo"`
}

type sessionResponse struct {
	SessionID string          `json:"session_id"`
	CreatedAt time.Time       `json:"created_at"`
	Loaded    bool            `json:"loaded"`
	Table     string          `json:"table,omitempty"`
	Columns   []schema.Column `json:"columns,omitempty"`
	RowCount  int             `json:"row_count,omitempty"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session registry is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	// The body is optional; an empty one creates a bare session.
	var req createSessionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid session request body", false, map[string]any{"details": err.Error()})
		return
	}
	if req.Demo && deps.DemoData == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DEMO_NOT_CONFIGURED", "demo dataset is not configured", false, nil)
		return
	}

	view, err := deps.Sessions.Create(r.Context())
	if err != nil {
		if errors.Is(err, session.ErrLimitReached) {
			writeError(r.Context(), w, http.StatusTooManyRequests, "SESSION_LIMIT_REACHED", "session limit reached, close a session or retry later", true, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_CREATE_FAILED", "failed to create session", true, map[string]any{"details": err.Error()})
		return
	}

	response := sessionResponse{SessionID: view.ID, CreatedAt: view.CreatedAt}
	if req.Demo {
		ds := deps.DemoData()
		loaded, err := deps.Sessions.LoadDataset(r.Context(), view.ID, ds)
		if err != nil {
			_ = deps.Sessions.Close(view.ID)
			writeError(r.Context(), w, http.StatusInternalServerError, "LOAD_FAILED", "failed to load demo dataset", true, map[string]any{"details": err.Error()})
			return
		}
		observability.ObserveDatasetLoad("demo", len(ds.Rows))
		response.Loaded = true
		response.Table = loaded.Schema.TableName
		response.Columns = loaded.Schema.Columns
		response.RowCount = len(ds.Rows)
	}
	writeJSON(w, http.StatusCreated, response)
}

func handleCloseSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session registry is not configured", false, nil)
		return
	}
	if err := requireRole(r, mutationRole(deps)); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if err := deps.Sessions.Close(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session does not exist or already expired", false, map[string]any{"session_id": id})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_CLOSE_FAILED", "failed to close session", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "closed", "session_id": id})
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	view, ok := loadedSession(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": view.ID,
		"table":      view.Schema.TableName,
		"columns":    view.Schema.Columns,
	})
}

func handleSummary(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	view, ok := loadedSession(deps, w, r)
	if !ok {
		return
	}
	summary, err := analyzer.Summarize(r.Context(), view.Schema, view.Store)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SUMMARY_FAILED", "failed to summarize dataset", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// loadedSession resolves the path session and writes the error response
// itself when the session is missing, unauthorized or has no dataset.
func loadedSession(deps Dependencies, w http.ResponseWriter, r *http.Request) (session.View, bool) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session registry is not configured", false, nil)
		return session.View{}, false
	}
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return session.View{}, false
	}
	id := strings.TrimSpace(r.PathValue("id"))
	view, err := deps.Sessions.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session does not exist or already expired", false, map[string]any{"session_id": id})
			return session.View{}, false
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_LOOKUP_FAILED", "failed to look up session", true, map[string]any{"details": err.Error()})
		return session.View{}, false
	}
	if !view.Loaded {
		writeError(r.Context(), w, http.StatusConflict, "NO_DATASET", "load a dataset into the session first", false, map[string]any{"session_id": id})
		return session.View{}, false
	}
	return view, true
}
