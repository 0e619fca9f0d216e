package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
)

const maxHistoryLimit = 100

type generationResponse struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	BriefID      string          `json:"brief_id,omitempty"`
	Flow         domain.JobFlow  `json:"flow"`
	Prompt       string          `json:"prompt,omitempty"`
	Count        int             `json:"count"`
	AspectRatio  string          `json:"aspect_ratio"`
	Outcome      domain.Outcome  `json:"outcome"`
	Results      json.RawMessage `json:"results,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Attempts     int             `json:"attempts"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toGenerationResponse(g domain.Generation) generationResponse {
	return generationResponse{
		ID:           g.ID,
		SessionID:    g.SessionID,
		BriefID:      g.BriefID,
		Flow:         g.Flow,
		Prompt:       g.Prompt,
		Count:        g.Count,
		AspectRatio:  g.AspectRatio,
		Outcome:      g.Outcome,
		Results:      json.RawMessage(g.ResultJSON),
		ErrorMessage: g.ErrorMessage,
		Attempts:     g.Attempts,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

func (a *App) ListGenerations(w http.ResponseWriter, r *http.Request) {
	if a.Repo == nil {
		a.json(w, http.StatusOK, map[string]any{"items": []any{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	gens, err := a.Repo.ListRecent(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]generationResponse, 0, len(gens))
	for _, g := range gens {
		items = append(items, toGenerationResponse(g))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	if a.Repo == nil {
		a.error(w, http.StatusNotFound, "not_found", "history disabled")
		return
	}
	gen, err := a.Repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toGenerationResponse(*gen))
}
