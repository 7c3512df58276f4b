package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tabletalk/tabletalk/internal/analyzer"
	"github.com/tabletalk/tabletalk/internal/translate"
)

type askRequest struct {
	Question string `json:"question"`
}

type askProvenance struct {
	Strategy   string              `json:"strategy"`
	Confidence float64             `json:"confidence"`
	SQL        string              `json:"sql"`
	Defaults   []translate.Default `json:"defaults,omitempty"`
}

type askResponse struct {
	Success     bool                   `json:"success"`
	Columns     []string               `json:"columns,omitempty"`
	Rows        [][]any                `json:"rows,omitempty"`
	RowCount    int                    `json:"row_count"`
	Provenance  *askProvenance         `json:"provenance,omitempty"`
	Corrections []translate.Correction `json:"corrections,omitempty"`
	Attempts    []translate.Attempt    `json:"attempts,omitempty"`
	Summary     *analyzer.Summary      `json:"summary,omitempty"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	view, ok := loadedSession(deps, w, r)
	if !ok {
		return
	}

	var req askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	result, err := view.Engine.Translate(r.Context(), req.Question)
	if err != nil {
		// only the caller's own context ending reaches here
		writeError(r.Context(), w, http.StatusServiceUnavailable, "ASK_CANCELLED", "request ended before translation finished", true, nil)
		return
	}

	if !result.Success {
		response := askResponse{Attempts: result.Attempts, Corrections: result.Corrections}
		summary, err := analyzer.Summarize(r.Context(), view.Schema, view.Store)
		if err != nil {
			if deps.Logger != nil {
				deps.Logger.WarnContext(r.Context(), "fallback summary failed",
					"session_id", view.ID, "error", err)
			}
		} else {
			response.Summary = &summary
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Success:     true,
		Columns:     result.Columns,
		Rows:        result.Rows,
		RowCount:    result.RowCount,
		Corrections: result.Corrections,
		Provenance: &askProvenance{
			Strategy:   result.Candidate.Strategy,
			Confidence: result.Candidate.Confidence,
			SQL:        result.Candidate.SQL,
			Defaults:   result.Candidate.Defaults,
		},
	})
}
