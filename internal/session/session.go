// Package session holds the client-side state of one studio user: the
// active brief or chat prompt, the generation being tracked and the results
// with their ratings and selections.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"studio/internal/domain"
	"studio/internal/domain/jsoncfg"
	"studio/internal/i18n"
	"studio/internal/infra"
	"studio/internal/poller"
	"studio/internal/providers/conceptart"
	"studio/internal/storage"
	"studio/pkg/zip"
)

// Phase is the lifecycle state of the session's current generation.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseGenerating Phase = "generating"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
	PhaseTimedOut   Phase = "timed_out"
	PhaseCancelled  Phase = "cancelled"
)

// Event names published to the Notifier.
const (
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventTimeout   = "timeout"
	EventCancelled = "cancelled"
	EventUpdated   = "updated"
)

// TerminalEvents are the events that end a generation. Subscribers must not
// miss them even when they fall behind on progress.
var TerminalEvents = []string{EventCompleted, EventFailed, EventTimeout, EventCancelled}

const (
	minRating = 1
	maxRating = 5

	recordTimeout = 5 * time.Second
)

// Backend is the subset of the generation API a session drives.
type Backend interface {
	CreateBrief(ctx context.Context, brief jsoncfg.BriefJSON) (*conceptart.BriefSummary, error)
	Generate(ctx context.Context, req jsoncfg.GenerateJSON) (string, error)
	GenerateFromPrompt(ctx context.Context, req jsoncfg.PromptGenerateJSON) (string, error)
	GenerationStatus(ctx context.Context, jobID string) (domain.Snapshot, error)
	SubmitFeedback(ctx context.Context, feedback jsoncfg.FeedbackJSON) (*conceptart.FeedbackResult, error)
	Chat(ctx context.Context, req conceptart.ChatRequest) (*conceptart.ChatReply, error)
	ResetSession(ctx context.Context, sessionID string) error
	Download(ctx context.Context, imageURL string) ([]byte, string, error)
}

// Notifier receives every observation of a session, keyed by session id.
type Notifier interface {
	Publish(topic, name string, payload any) error
}

// Deps are shared by all sessions of a Manager. Repo, Notifier and Store are optional.
type Deps struct {
	Backend         Backend
	Repo            domain.GenerationRepository
	Notifier        Notifier
	Store           *storage.FileStore
	Logger          *infra.Logger
	PollInterval    time.Duration
	PollMaxAttempts int
}

// GenerateRequest starts a generation from the session's brief or prompt.
type GenerateRequest struct {
	Flow           domain.JobFlow
	Count          int
	AspectRatio    string
	Seed           *int64
	Variations     []string
	Prompt         string
	NegativePrompt string
}

// ResultView is a result as presented to the user.
type ResultView struct {
	domain.Result
	Rating   int  `json:"rating,omitempty"`
	Selected bool `json:"selected"`
}

// View is a consistent copy of the session state.
type View struct {
	ID            string              `json:"id"`
	Locale        string              `json:"locale"`
	BriefID       string              `json:"brief_id,omitempty"`
	ChatSessionID string              `json:"chat_session_id,omitempty"`
	PromptData    *jsoncfg.PromptData `json:"prompt_data,omitempty"`
	Phase         Phase               `json:"phase"`
	JobID         string              `json:"job_id,omitempty"`
	Flow          domain.JobFlow      `json:"flow,omitempty"`
	Attempt       int                 `json:"attempt"`
	MaxAttempts   int                 `json:"max_attempts"`
	Progress      *int                `json:"progress,omitempty"`
	StatusMessage string              `json:"status_message,omitempty"`
	Error         string              `json:"error,omitempty"`
	Results       []ResultView        `json:"results"`
	Adjustments   []string            `json:"adjustments,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Session is safe for concurrent use.
type Session struct {
	id        string
	createdAt time.Time
	deps      Deps
	ctx       context.Context
	logger    *infra.Logger

	startMu sync.Mutex
	tracker poller.Tracker

	mu            sync.Mutex
	locale        string
	token         uint64
	briefID       string
	chatSessionID string
	promptData    *jsoncfg.PromptData
	phase         Phase
	jobID         string
	flow          domain.JobFlow
	attempt       int
	maxAttempts   int
	progress      *int
	statusMessage string
	lastError     string
	results       []domain.Result
	ratings       map[string]int
	selected      map[string]bool
	adjustments   []string
}

func newSession(ctx context.Context, id, locale string, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	l := logger.With().Str("session_id", id).Logger()
	return &Session{
		id:        id,
		createdAt: time.Now().UTC(),
		deps:      deps,
		ctx:       ctx,
		logger:    &l,
		locale:    i18n.Normalize(locale),
		phase:     PhaseIdle,
		// The backend accepts a client chosen chat session id.
		chatSessionID: id,
		ratings:       make(map[string]int),
		selected:      make(map[string]bool),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// SetLocale switches the language of subsequent status messages.
func (s *Session) SetLocale(locale string) {
	s.mu.Lock()
	s.locale = i18n.Normalize(locale)
	s.mu.Unlock()
}

// View returns a copy of the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	v := View{
		ID:            s.id,
		Locale:        s.locale,
		BriefID:       s.briefID,
		ChatSessionID: s.chatSessionID,
		PromptData:    s.promptData,
		Phase:         s.phase,
		JobID:         s.jobID,
		Flow:          s.flow,
		Attempt:       s.attempt,
		MaxAttempts:   s.maxAttempts,
		StatusMessage: s.statusMessage,
		Error:         s.lastError,
		Results:       make([]ResultView, 0, len(s.results)),
		Adjustments:   append([]string(nil), s.adjustments...),
		CreatedAt:     s.createdAt,
	}
	if s.progress != nil {
		p := *s.progress
		v.Progress = &p
	}
	for _, r := range s.results {
		v.Results = append(v.Results, ResultView{Result: r, Rating: s.ratings[r.ID], Selected: s.selected[r.ID]})
	}
	return v
}

// CreateBrief submits a creative brief and remembers its id for brief-flow generations.
func (s *Session) CreateBrief(ctx context.Context, brief jsoncfg.BriefJSON) (*conceptart.BriefSummary, error) {
	summary, err := s.deps.Backend.CreateBrief(ctx, brief)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.briefID = summary.BriefID
	s.statusMessage = i18n.Text(s.locale, i18n.KeyBriefCreated)
	view := s.viewLocked()
	s.mu.Unlock()
	s.publish(EventUpdated, view)
	return summary, nil
}

// Chat sends a message to the prompt agent. When the agent reports the
// prompt as ready it becomes the default for prompt-flow generations.
func (s *Session) Chat(ctx context.Context, message string, extra map[string]any) (*conceptart.ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrInvalidRequest)
	}
	s.mu.Lock()
	chatID := s.chatSessionID
	s.mu.Unlock()

	reply, err := s.deps.Backend.Chat(ctx, conceptart.ChatRequest{SessionID: chatID, Message: message, Context: extra})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if reply.SessionID != "" {
		s.chatSessionID = reply.SessionID
	}
	if reply.PromptReady && reply.PromptData != nil {
		s.promptData = reply.PromptData
	}
	view := s.viewLocked()
	s.mu.Unlock()
	s.publish(EventUpdated, view)
	return reply, nil
}

// StartGeneration submits a job and starts tracking it. The request is
// validated and submitted first; only an accepted job cancels the generation
// still being tracked, which can then no longer change the session.
func (s *Session) StartGeneration(ctx context.Context, req GenerateRequest) (string, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	flow := req.Flow
	if flow == "" {
		if s.briefID != "" {
			flow = domain.JobFlowBrief
		} else {
			flow = domain.JobFlowPrompt
		}
	}
	briefID := s.briefID
	chatID := s.chatSessionID
	prompt := strings.TrimSpace(req.Prompt)
	negative := strings.TrimSpace(req.NegativePrompt)
	if prompt == "" && s.promptData != nil {
		prompt = s.promptData.Prompt
		if negative == "" {
			negative = s.promptData.NegativePrompt
		}
	}
	s.mu.Unlock()

	gen := &domain.Generation{SessionID: s.id, Flow: flow, Outcome: domain.OutcomeRunning}
	var submit func() (string, error)
	switch flow {
	case domain.JobFlowBrief:
		if briefID == "" {
			return "", domain.ErrNoBrief
		}
		body := jsoncfg.GenerateJSON{BriefID: briefID, Count: req.Count, Ratio: req.AspectRatio, Seed: req.Seed, Variations: req.Variations}
		body.Normalize()
		gen.BriefID, gen.Count, gen.AspectRatio = briefID, body.Count, body.Ratio
		submit = func() (string, error) { return s.deps.Backend.Generate(ctx, body) }
	case domain.JobFlowPrompt:
		if prompt == "" {
			return "", domain.ErrNoPrompt
		}
		body := jsoncfg.PromptGenerateJSON{SessionID: chatID, Prompt: prompt, NegativePrompt: negative, NumImages: req.Count, AspectRatio: req.AspectRatio}
		body.Normalize()
		gen.Prompt, gen.Count, gen.AspectRatio = body.Prompt, body.NumImages, body.AspectRatio
		submit = func() (string, error) { return s.deps.Backend.GenerateFromPrompt(ctx, body) }
	default:
		return "", fmt.Errorf("%w: unknown flow %q", domain.ErrInvalidRequest, flow)
	}

	jobID, err := submit()
	if err != nil {
		s.mu.Lock()
		if s.phase == PhaseGenerating {
			// The running generation keeps going.
			s.mu.Unlock()
			s.logger.Warn().Err(err).Str("flow", string(flow)).Msg("generation submit failed")
			return "", err
		}
		s.token++
		s.phase = PhaseFailed
		s.lastError = err.Error()
		s.statusMessage = i18n.Text(s.locale, i18n.KeyFailed, err.Error())
		view := s.viewLocked()
		s.mu.Unlock()
		s.publish(EventFailed, view)
		return "", err
	}
	s.cancelActive()
	gen.ID = jobID

	s.mu.Lock()
	s.token++
	token := s.token
	s.phase = PhaseGenerating
	s.jobID = jobID
	s.flow = flow
	s.attempt = 0
	s.maxAttempts = s.pollMaxAttempts()
	s.progress = nil
	s.lastError = ""
	s.results = nil
	s.ratings = make(map[string]int)
	s.selected = make(map[string]bool)
	s.adjustments = nil
	s.statusMessage = i18n.Text(s.locale, i18n.KeyPreparing)
	view := s.viewLocked()
	s.mu.Unlock()

	s.record(func(ctx context.Context, repo domain.GenerationRepository) error {
		return repo.Create(ctx, gen)
	})
	s.publish(EventUpdated, view)

	var ctrl *poller.Controller
	ctrl, err = poller.New(jobID, s.deps.Backend.GenerationStatus, poller.Callbacks{
		OnProgress: func(p poller.Progress) { s.onProgress(token, p) },
		OnComplete: func(results []domain.Result) { s.onComplete(token, ctrl, results) },
		OnFailed:   func(message string) { s.onFailed(token, ctrl, message) },
		OnTimeout:  func(terr *domain.TimeoutError) { s.onTimeout(token, terr) },
	}, poller.Options{
		Interval:    s.deps.PollInterval,
		MaxAttempts: s.deps.PollMaxAttempts,
		Logger:      s.logger,
	})
	if err != nil {
		return "", err
	}
	if err := s.tracker.Replace(s.ctx, ctrl); err != nil {
		return "", err
	}
	s.logger.Info().Str("job_id", jobID).Str("flow", string(flow)).Msg("generation started")
	return jobID, nil
}

// CancelGeneration stops tracking the current generation. It reports false
// when nothing was being generated.
func (s *Session) CancelGeneration() bool {
	return s.cancelActive()
}

func (s *Session) cancelActive() bool {
	ctrl := s.tracker.Current()
	s.tracker.Cancel()

	s.mu.Lock()
	if s.phase != PhaseGenerating {
		s.mu.Unlock()
		return false
	}
	s.token++
	s.phase = PhaseCancelled
	s.statusMessage = i18n.Text(s.locale, i18n.KeyCancelled)
	jobID := s.jobID
	view := s.viewLocked()
	s.mu.Unlock()

	attempts := 0
	if ctrl != nil {
		attempts = ctrl.Attempts()
	}
	s.record(func(ctx context.Context, repo domain.GenerationRepository) error {
		return repo.UpdateOutcome(ctx, jobID, domain.OutcomeCancelled, attempts, nil, nil)
	})
	s.publish(EventCancelled, view)
	s.logger.Info().Str("job_id", jobID).Msg("generation cancelled")
	return true
}

// Wait blocks until the tracked generation settles or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	ctrl := s.tracker.Current()
	if ctrl == nil {
		return nil
	}
	select {
	case <-ctrl.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) onProgress(token uint64, p poller.Progress) {
	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return
	}
	s.attempt = p.Attempt
	s.maxAttempts = p.MaxAttempts
	if p.Percent != nil {
		v := *p.Percent
		s.progress = &v
	}
	if p.Message != "" {
		s.statusMessage = p.Message
	} else {
		s.statusMessage = i18n.Text(s.locale, i18n.KeyGenerating)
	}
	view := s.viewLocked()
	s.mu.Unlock()
	s.publish(EventProgress, view)
}

func (s *Session) onComplete(token uint64, ctrl *poller.Controller, results []domain.Result) {
	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseCompleted
	s.results = append([]domain.Result(nil), results...)
	full := 100
	s.progress = &full
	s.statusMessage = i18n.Text(s.locale, i18n.KeyCompleted)
	jobID := s.jobID
	view := s.viewLocked()
	s.mu.Unlock()

	payload, err := json.Marshal(results)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("marshal results")
	}
	attempts := ctrl.Attempts()
	s.record(func(ctx context.Context, repo domain.GenerationRepository) error {
		return repo.UpdateOutcome(ctx, jobID, domain.OutcomeCompleted, attempts, nil, payload)
	})
	s.publish(EventCompleted, view)
}

func (s *Session) onFailed(token uint64, ctrl *poller.Controller, message string) {
	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseFailed
	s.lastError = message
	s.statusMessage = i18n.Text(s.locale, i18n.KeyFailed, message)
	jobID := s.jobID
	view := s.viewLocked()
	s.mu.Unlock()

	attempts := ctrl.Attempts()
	s.record(func(ctx context.Context, repo domain.GenerationRepository) error {
		return repo.UpdateOutcome(ctx, jobID, domain.OutcomeFailed, attempts, &message, nil)
	})
	s.publish(EventFailed, view)
}

func (s *Session) onTimeout(token uint64, terr *domain.TimeoutError) {
	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseTimedOut
	s.lastError = terr.Error()
	s.statusMessage = i18n.Text(s.locale, i18n.KeyTimedOut)
	view := s.viewLocked()
	s.mu.Unlock()

	msg := terr.Error()
	s.record(func(ctx context.Context, repo domain.GenerationRepository) error {
		return repo.UpdateOutcome(ctx, terr.JobID, domain.OutcomeTimeout, terr.Attempts, &msg, nil)
	})
	s.publish(EventTimeout, view)
}

// Rate stores a 1 to 5 rating for a result of the current generation.
func (s *Session) Rate(resultID string, rating int) error {
	if rating < minRating || rating > maxRating {
		return fmt.Errorf("%w: rating must be between %d and %d", domain.ErrInvalidRequest, minRating, maxRating)
	}
	s.mu.Lock()
	if !s.hasResultLocked(resultID) {
		s.mu.Unlock()
		return domain.ErrUnknownResult
	}
	s.ratings[resultID] = rating
	view := s.viewLocked()
	s.mu.Unlock()
	s.publish(EventUpdated, view)
	return nil
}

// ToggleSelection flips the selection of a result and returns the new state.
func (s *Session) ToggleSelection(resultID string) (bool, error) {
	s.mu.Lock()
	if !s.hasResultLocked(resultID) {
		s.mu.Unlock()
		return false, domain.ErrUnknownResult
	}
	selected := !s.selected[resultID]
	s.setSelectedLocked(resultID, selected)
	view := s.viewLocked()
	s.mu.Unlock()
	s.publish(EventUpdated, view)
	return selected, nil
}

// SetSelected marks a result as selected or not.
func (s *Session) SetSelected(resultID string, selected bool) error {
	s.mu.Lock()
	if !s.hasResultLocked(resultID) {
		s.mu.Unlock()
		return domain.ErrUnknownResult
	}
	s.setSelectedLocked(resultID, selected)
	view := s.viewLocked()
	s.mu.Unlock()
	s.publish(EventUpdated, view)
	return nil
}

func (s *Session) setSelectedLocked(resultID string, selected bool) {
	if selected {
		s.selected[resultID] = true
	} else {
		delete(s.selected, resultID)
	}
}

func (s *Session) hasResultLocked(resultID string) bool {
	for _, r := range s.results {
		if r.ID == resultID {
			return true
		}
	}
	return false
}

// SetAdjustments stores free-text adjustment notes, one per line.
func (s *Session) SetAdjustments(text string) {
	s.mu.Lock()
	s.adjustments = jsoncfg.SplitLines(text)
	s.mu.Unlock()
}

// Feedback builds the feedback payload for the current generation.
func (s *Session) Feedback() (jsoncfg.FeedbackJSON, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobID == "" {
		return jsoncfg.FeedbackJSON{}, domain.ErrNoGeneration
	}
	fb := jsoncfg.FeedbackJSON{
		GenerationID: s.jobID,
		Selections:   []string{},
		Ratings:      make(map[string]int, len(s.ratings)),
		Tags:         map[string][]string{},
		Adjustments:  []string{},
	}
	for _, r := range s.results {
		if s.selected[r.ID] {
			fb.Selections = append(fb.Selections, r.ID)
		}
		if rating, ok := s.ratings[r.ID]; ok {
			fb.Ratings[r.ID] = rating
		}
	}
	fb.Adjustments = append(fb.Adjustments, s.adjustments...)
	return fb, nil
}

// SubmitFeedback sends the ratings, selections and adjustments to the backend.
// A non-empty adjustments argument replaces the stored notes first.
func (s *Session) SubmitFeedback(ctx context.Context, adjustments string) (*conceptart.FeedbackResult, error) {
	if strings.TrimSpace(adjustments) != "" {
		s.SetAdjustments(adjustments)
	}
	fb, err := s.Feedback()
	if err != nil {
		return nil, err
	}
	res, err := s.deps.Backend.SubmitFeedback(ctx, fb)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.statusMessage = i18n.Text(s.locale, i18n.KeyFeedbackSent)
	view := s.viewLocked()
	s.mu.Unlock()
	s.publish(EventUpdated, view)
	return res, nil
}

// DownloadedFile is a result image written to the file store.
type DownloadedFile struct {
	ResultID string `json:"result_id"`
	Key      string `json:"key"`
	Path     string `json:"path"`
	Bytes    int    `json:"bytes"`
}

// Download saves the current results, or only the selected ones when
// selectedOnly is set, into the file store.
func (s *Session) Download(ctx context.Context, selectedOnly bool) ([]DownloadedFile, error) {
	if s.deps.Store == nil {
		return nil, errors.New("session: file store is not configured")
	}
	jobID, results, err := s.pickResults(selectedOnly)
	if err != nil {
		return nil, err
	}
	return SaveResults(ctx, s.deps.Backend, s.deps.Store, jobID, results)
}

func (s *Session) pickResults(selectedOnly bool) (string, []domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobID == "" {
		return "", nil, domain.ErrNoGeneration
	}
	var results []domain.Result
	for _, r := range s.results {
		if !selectedOnly || s.selected[r.ID] {
			results = append(results, r)
		}
	}
	return s.jobID, results, nil
}

// Downloader fetches a result image.
type Downloader interface {
	Download(ctx context.Context, imageURL string) ([]byte, string, error)
}

// SaveResults downloads every result of jobID into store.
func SaveResults(ctx context.Context, d Downloader, store *storage.FileStore, jobID string, results []domain.Result) ([]DownloadedFile, error) {
	files := make([]DownloadedFile, 0, len(results))
	for i, r := range results {
		data, mime, err := d.Download(ctx, r.URL)
		if err != nil {
			return files, fmt.Errorf("download %s: %w", r.ID, err)
		}
		key, err := store.Write(ctx, storage.ResultKey(jobID, r.ID, mime, i), data)
		if err != nil {
			return files, fmt.Errorf("store %s: %w", r.ID, err)
		}
		files = append(files, DownloadedFile{ResultID: r.ID, Key: key, Path: store.Path(key), Bytes: len(data)})
	}
	return files, nil
}

// Archive bundles the current results, or only the selected ones, into a
// zip without touching the file store.
func (s *Session) Archive(ctx context.Context, selectedOnly bool) ([]byte, error) {
	jobID, results, err := s.pickResults(selectedOnly)
	if err != nil {
		return nil, err
	}
	return ArchiveResults(ctx, s.deps.Backend, jobID, results)
}

// ArchiveResults downloads every result of jobID into an in-memory zip.
func ArchiveResults(ctx context.Context, d Downloader, jobID string, results []domain.Result) ([]byte, error) {
	entries := make([]zip.Entry, 0, len(results))
	for i, r := range results {
		data, mime, err := d.Download(ctx, r.URL)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", r.ID, err)
		}
		entries = append(entries, zip.Entry{
			Filename: path.Base(storage.ResultKey(jobID, r.ID, mime, i)),
			MIME:     mime,
			Data:     data,
		})
	}
	return zip.Archive(entries, time.Now())
}

func (s *Session) pollMaxAttempts() int {
	if s.deps.PollMaxAttempts > 0 {
		return s.deps.PollMaxAttempts
	}
	return poller.DefaultMaxAttempts
}

func (s *Session) publish(name string, view View) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.Publish(s.id, name, view); err != nil {
		s.logger.Warn().Err(err).Str("event", name).Msg("publish session event")
	}
}

func (s *Session) record(fn func(ctx context.Context, repo domain.GenerationRepository) error) {
	if s.deps.Repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), recordTimeout)
	defer cancel()
	if err := fn(ctx, s.deps.Repo); err != nil {
		s.logger.Error().Err(err).Msg("record generation")
	}
}
