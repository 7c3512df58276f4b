package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/schema"
	"github.com/tabletalk/tabletalk/internal/session"
	"github.com/tabletalk/tabletalk/internal/storage"
)

type loadDatasetRequest struct {
	Name      string `json:"name"`
	CSV       string `json:"csv"`
	ObjectKey string `json:"object_key"`
	PGTable   string `json:"pg_table"`
}

type loadDatasetResponse struct {
	SessionID string          `json:"session_id"`
	Table     string          `json:"table"`
	Columns   []schema.Column `json:"columns"`
	RowCount  int             `json:"row_count"`
	Source    string          `json:"source"`
}

func handleLoadDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session registry is not configured", false, nil)
		return
	}
	if err := requireRole(r, mutationRole(deps)); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	if deps.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes)
	}
	var req loadDatasetRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds the upload limit", false, map[string]any{"limit_bytes": tooLarge.Limit})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid dataset request body", false, map[string]any{"details": err.Error()})
		return
	}

	sources := 0
	for _, s := range []string{req.CSV, req.ObjectKey, req.PGTable} {
		if strings.TrimSpace(s) != "" {
			sources++
		}
	}
	if sources == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "DATASET_SOURCE_REQUIRED", "one of csv, object_key or pg_table is required", false, nil)
		return
	}
	if sources > 1 {
		writeError(r.Context(), w, http.StatusBadRequest, "DATASET_SOURCE_CONFLICT", "specify only one of csv, object_key or pg_table", false, nil)
		return
	}
	if strings.TrimSpace(req.Name) != "" && schema.NormalizeName(req.Name) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "DATASET_NAME_INVALID", "name has no usable characters", false, map[string]any{"name": req.Name})
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if _, err := deps.Sessions.Get(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session does not exist or already expired", false, map[string]any{"session_id": id})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_LOOKUP_FAILED", "failed to look up session", true, map[string]any{"details": err.Error()})
		return
	}

	var (
		ds     dataset.Dataset
		source string
		err    error
	)
	switch {
	case strings.TrimSpace(req.CSV) != "":
		source = "upload"
		ds, err = dataset.FromCSV(req.Name, strings.NewReader(req.CSV), deps.DatasetLimits)
	case strings.TrimSpace(req.ObjectKey) != "":
		source = "object"
		if deps.Objects == nil {
			writeError(r.Context(), w, http.StatusNotImplemented, "OBJECT_STORE_NOT_CONFIGURED", "object storage is not configured", false, nil)
			return
		}
		ds, err = deps.Objects.Fetch(r.Context(), strings.TrimSpace(req.ObjectKey))
	default:
		source = "postgres"
		if deps.Imports == nil {
			writeError(r.Context(), w, http.StatusNotImplemented, "PG_IMPORT_NOT_CONFIGURED", "postgres import is not configured", false, nil)
			return
		}
		ds, err = deps.Imports.Import(r.Context(), strings.TrimSpace(req.PGTable))
	}
	if err != nil {
		writeDatasetError(w, r, source, err)
		return
	}
	// An explicit name overrides what the object key or table reference
	// implied. The inline path already loaded under it.
	if name := strings.TrimSpace(req.Name); name != "" && source != "upload" {
		ds.Name = name
	}

	view, err := deps.Sessions.LoadDataset(r.Context(), id, ds)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session expired while loading", false, map[string]any{"session_id": id})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "LOAD_FAILED", "failed to load dataset into session", true, map[string]any{"details": err.Error()})
		return
	}
	observability.ObserveDatasetLoad(source, len(ds.Rows))

	writeJSON(w, http.StatusOK, loadDatasetResponse{
		SessionID: view.ID,
		Table:     view.Schema.TableName,
		Columns:   view.Schema.Columns,
		RowCount:  len(ds.Rows),
		Source:    source,
	})
}

// writeDatasetError maps loader failures onto the error envelope. Cap hits
// are 413s, malformed input is a 400 and infrastructure trouble stays
// retryable.
func writeDatasetError(w http.ResponseWriter, r *http.Request, source string, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, dataset.ErrTooManyRows):
		writeError(ctx, w, http.StatusRequestEntityTooLarge, "DATASET_TOO_MANY_ROWS", err.Error(), false, nil)
	case errors.Is(err, dataset.ErrTooWide):
		writeError(ctx, w, http.StatusRequestEntityTooLarge, "DATASET_TOO_WIDE", err.Error(), false, nil)
	case errors.Is(err, dataset.ErrTooLarge):
		writeError(ctx, w, http.StatusRequestEntityTooLarge, "DATASET_TOO_LARGE", err.Error(), false, nil)
	case errors.Is(err, dataset.ErrEmpty):
		writeError(ctx, w, http.StatusBadRequest, "DATASET_EMPTY", err.Error(), false, nil)
	case errors.Is(err, dataset.ErrUnsupportedFormat):
		writeError(ctx, w, http.StatusBadRequest, "DATASET_INVALID", err.Error(), false, nil)
	case errors.Is(err, storage.ErrInvalidKey):
		writeError(ctx, w, http.StatusBadRequest, "OBJECT_KEY_INVALID", err.Error(), false, nil)
	case errors.Is(err, storage.ErrObjectNotFound):
		writeError(ctx, w, http.StatusNotFound, "OBJECT_NOT_FOUND", err.Error(), false, nil)
	case errors.Is(err, dataset.ErrBadTableRef):
		writeError(ctx, w, http.StatusBadRequest, "PG_TABLE_INVALID", err.Error(), false, nil)
	case source == "postgres":
		writeError(ctx, w, http.StatusBadGateway, "PG_IMPORT_FAILED", "postgres import failed", true, map[string]any{"details": err.Error()})
	case source == "object":
		writeError(ctx, w, http.StatusBadGateway, "OBJECT_FETCH_FAILED", "object store fetch failed", true, map[string]any{"details": err.Error()})
	default:
		writeError(ctx, w, http.StatusBadRequest, "DATASET_INVALID", err.Error(), false, nil)
	}
}
