package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/providers/conceptart"
	"studio/internal/session"
	"studio/internal/sse"
)

const maxJSONBody = 1 << 20

// Upstream is the part of the generation API served directly by handlers.
type Upstream interface {
	Health(ctx context.Context) (*conceptart.HealthStatus, error)
	UploadReference(ctx context.Context, sessionID, filename string, image io.Reader) (*conceptart.ReferenceAnalysis, error)
	SessionHistory(ctx context.Context, sessionID string) ([]conceptart.HistoryEntry, error)
}

type App struct {
	Sessions *session.Manager
	Upstream Upstream
	Repo     domain.GenerationRepository
	Hub      *sse.Hub
	Validate *validator.Validate
	Logger   zerolog.Logger
}

func NewApp(sessions *session.Manager, upstream Upstream, repo domain.GenerationRepository, hub *sse.Hub, logger zerolog.Logger) *App {
	return &App{
		Sessions: sessions,
		Upstream: upstream,
		Repo:     repo,
		Hub:      hub,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		Logger:   logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

// decode reads a JSON body into dst and runs its validate tags. An empty
// body is accepted so that all-optional requests may omit it.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	if err := a.Validate.Struct(dst); err != nil {
		a.error(w, http.StatusBadRequest, "validation_failed", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// fail maps domain and upstream errors to HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var transport *domain.TransportError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrUnknownResult):
		a.error(w, http.StatusNotFound, "unknown_result", err.Error())
	case errors.Is(err, domain.ErrNoBrief), errors.Is(err, domain.ErrNoPrompt), errors.Is(err, domain.ErrNoGeneration):
		a.error(w, http.StatusConflict, "precondition_failed", err.Error())
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrUpstreamUnready):
		a.error(w, http.StatusServiceUnavailable, "upstream_unavailable", err.Error())
	case errors.As(err, &transport):
		a.Logger.Warn().Err(err).Str("path", r.URL.Path).Msg("upstream request failed")
		a.error(w, http.StatusBadGateway, "upstream_error", err.Error())
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
