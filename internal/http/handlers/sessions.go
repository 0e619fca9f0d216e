package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
	"studio/internal/domain/jsoncfg"
	"studio/internal/middleware"
	"studio/internal/session"
	"studio/internal/sse"
)

const maxReferenceUpload = 10 << 20

type createSessionRequest struct {
	Locale string `json:"locale" validate:"omitempty,max=35"`
}

type briefRequest struct {
	Theme           string                   `json:"theme" validate:"required,max=500"`
	StyleKeywords   []string                 `json:"style_keywords" validate:"required,min=1,max=20,dive,required,max=64"`
	PrimaryColors   []string                 `json:"primary_colors" validate:"max=8,dive,hexcolor"`
	SecondaryColors []string                 `json:"secondary_colors" validate:"max=8,dive,hexcolor"`
	Mood            *string                  `json:"mood" validate:"omitempty,max=64"`
	References      []jsoncfg.ReferenceImage `json:"references" validate:"max=8,dive"`
	TargetCount     int                      `json:"target_count" validate:"omitempty,min=1,max=10"`
	TargetRatio     string                   `json:"target_ratio" validate:"omitempty,oneof=16:9 4:5 1:1 21:9"`
	Constraints     map[string]bool          `json:"constraints"`
}

func (b briefRequest) toBrief() jsoncfg.BriefJSON {
	return jsoncfg.BriefJSON{
		Theme:         b.Theme,
		StyleKeywords: b.StyleKeywords,
		ColorPreferences: jsoncfg.ColorPreferences{
			Primary:   b.PrimaryColors,
			Secondary: b.SecondaryColors,
			Mood:      b.Mood,
		},
		ReferenceImages: b.References,
		TargetCount:     b.TargetCount,
		TargetRatio:     b.TargetRatio,
		Constraints:     b.Constraints,
	}
}

type chatRequest struct {
	Message string         `json:"message" validate:"required,max=4000"`
	Context map[string]any `json:"context"`
}

type generateRequest struct {
	Flow           string   `json:"flow" validate:"omitempty,oneof=brief prompt"`
	Count          int      `json:"count" validate:"omitempty,min=1,max=10"`
	AspectRatio    string   `json:"aspect_ratio" validate:"omitempty,oneof=16:9 4:5 1:1 21:9"`
	Seed           *int64   `json:"seed"`
	Variations     []string `json:"variations" validate:"max=10,dive,max=200"`
	Prompt         string   `json:"prompt" validate:"max=4000"`
	NegativePrompt string   `json:"negative_prompt" validate:"max=2000"`
}

type ratingRequest struct {
	Rating int `json:"rating" validate:"required,min=1,max=5"`
}

type selectionRequest struct {
	Selected *bool `json:"selected"`
}

type feedbackRequest struct {
	Adjustments string `json:"adjustments" validate:"max=4000"`
}

type downloadRequest struct {
	SelectedOnly bool `json:"selected_only"`
}

func (a *App) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := a.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "session not found")
		return nil, false
	}
	return s, true
}

func (a *App) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !a.decode(w, r, &req) {
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	s := a.Sessions.Create(locale)
	a.json(w, http.StatusCreated, s.View())
}

func (a *App) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, s.View())
}

func (a *App) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) CreateBrief(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req briefRequest
	if !a.decode(w, r, &req) {
		return
	}
	summary, err := s.CreateBrief(r.Context(), req.toBrief())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, summary)
}

func (a *App) Chat(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if !a.decode(w, r, &req) {
		return
	}
	reply, err := s.Chat(r.Context(), req.Message, req.Context)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, reply)
}

func (a *App) UploadReference(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxReferenceUpload)
	if err := r.ParseMultipartForm(maxReferenceUpload); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file is required")
		return
	}
	defer file.Close()
	analysis, err := a.Upstream.UploadReference(r.Context(), s.View().ChatSessionID, header.Filename, file)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, analysis)
}

func (a *App) ChatHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	chatID := s.View().ChatSessionID
	if chatID == "" {
		a.json(w, http.StatusOK, map[string]any{"items": []any{}})
		return
	}
	items, err := a.Upstream.SessionHistory(r.Context(), chatID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) StartGeneration(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if !a.decode(w, r, &req) {
		return
	}
	if r.Header.Get("X-Locale") != "" {
		s.SetLocale(middleware.LocaleFromContext(r.Context()))
	}
	jobID, err := s.StartGeneration(r.Context(), session.GenerateRequest{
		Flow:           domain.JobFlow(req.Flow),
		Count:          req.Count,
		AspectRatio:    req.AspectRatio,
		Seed:           req.Seed,
		Variations:     req.Variations,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{"job_id": jobID, "session": s.View()})
}

func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	cancelled := s.CancelGeneration()
	a.json(w, http.StatusOK, map[string]any{"cancelled": cancelled, "session": s.View()})
}

func (a *App) RateResult(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req ratingRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := s.Rate(chi.URLParam(r, "result_id"), req.Rating); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, s.View())
}

func (a *App) SelectResult(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if !a.decode(w, r, &req) {
		return
	}
	resultID := chi.URLParam(r, "result_id")
	var err error
	if req.Selected == nil {
		_, err = s.ToggleSelection(resultID)
	} else {
		err = s.SetSelected(resultID, *req.Selected)
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, s.View())
}

func (a *App) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req feedbackRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := s.SubmitFeedback(r.Context(), req.Adjustments)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

func (a *App) DownloadResults(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req downloadRequest
	if !a.decode(w, r, &req) {
		return
	}
	files, err := s.Download(r.Context(), req.SelectedOnly)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": files})
}

// ArchiveResults streams the current results as a zip attachment.
func (a *App) ArchiveResults(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	selectedOnly, _ := strconv.ParseBool(r.URL.Query().Get("selected_only"))
	data, err := s.Archive(r.Context(), selectedOnly)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="concepts-%s.zip"`, s.ID()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		a.Logger.Warn().Err(err).Str("session_id", s.ID()).Msg("write archive")
	}
}

func (a *App) SessionEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if a.Hub == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "event stream disabled")
		return
	}
	sse.Serve(w, r, a.Hub, s.ID(), a.Logger)
}
