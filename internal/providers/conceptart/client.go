package conceptart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"studio/internal/domain"
	"studio/internal/domain/jsoncfg"
	"studio/internal/infra"
)

// ErrMissingBaseURL indicates that the client was configured without a backend address.
var ErrMissingBaseURL = errors.New("conceptart: base url is required")

// ErrImageTooLarge is returned by Download when an image exceeds the size limit.
var ErrImageTooLarge = errors.New("conceptart: image exceeds download limit")

const (
	defaultMaxDownloadBytes = 32 << 20
	maxErrorDetail          = 256
)

// Options configures the concept-art backend client.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	// MaxDownloadBytes bounds one image download. Defaults to 32 MiB.
	MaxDownloadBytes int64
}

// Client performs HTTP calls against the concept-art generation backend.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxDownload int64
	logger      *infra.Logger
}

// BriefSummary is the backend's answer to a created brief.
type BriefSummary struct {
	BriefID          string   `json:"briefId"`
	Status           string   `json:"status"`
	Theme            string   `json:"theme"`
	StyleTokens      []string `json:"styleTokens"`
	ExtractedPalette []string `json:"extractedPalette"`
	EstimatedTime    int      `json:"estimatedTime"`
	CreatedAt        string   `json:"createdAt"`
}

// FeedbackResult echoes the re-weighted style tokens after feedback.
type FeedbackResult struct {
	OK                   bool               `json:"ok"`
	Message              string             `json:"message"`
	UpdatedWeights       map[string]float64 `json:"updatedWeights"`
	SuggestedAdjustments []string           `json:"suggestedAdjustments"`
}

// ChatRequest is one user turn sent to the prompt-planning agent.
type ChatRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

// ChatReply is the agent's answer; PromptData is set once PromptReady is true.
type ChatReply struct {
	SessionID   string              `json:"session_id"`
	Response    string              `json:"response"`
	PromptReady bool                `json:"prompt_ready"`
	PromptData  *jsoncfg.PromptData `json:"prompt_data"`
	Timestamp   string              `json:"timestamp"`
}

// Palette is the color analysis of an uploaded reference image.
type Palette struct {
	Colors    []string `json:"colors"`
	Primary   []string `json:"primary"`
	Secondary []string `json:"secondary"`
	Accent    []string `json:"accent"`
}

// ReferenceAnalysis is returned by the reference upload endpoint.
type ReferenceAnalysis struct {
	SessionID string  `json:"session_id"`
	Palette   Palette `json:"palette"`
	Message   string  `json:"message"`
}

// HistoryEntry is one turn of a chat session.
type HistoryEntry struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// HealthStatus is the backend health probe payload.
type HealthStatus struct {
	Status string         `json:"status"`
	Extra  map[string]any `json:"-"`
}

type errorResponse struct {
	Detail any    `json:"detail"`
	Error  string `json:"error"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if parsed, err := url.Parse(baseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("conceptart: invalid base url %q", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	maxDownload := opts.MaxDownloadBytes
	if maxDownload <= 0 {
		maxDownload = defaultMaxDownloadBytes
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, maxDownload: maxDownload, logger: logger}, nil
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health probes GET /api/health.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var raw map[string]any
	if err := c.do(ctx, "health", http.MethodGet, "/api/health", nil, "", &raw); err != nil {
		return nil, err
	}
	status, _ := raw["status"].(string)
	delete(raw, "status")
	return &HealthStatus{Status: status, Extra: raw}, nil
}

// CreateBrief submits a creative brief.
func (c *Client) CreateBrief(ctx context.Context, brief jsoncfg.BriefJSON) (*BriefSummary, error) {
	brief.Normalize()
	if err := brief.Validate(); err != nil {
		return nil, fmt.Errorf("conceptart: %w: %v", domain.ErrInvalidRequest, err)
	}
	var out BriefSummary
	if err := c.postJSON(ctx, "create brief", "/api/brief", brief, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.BriefID) == "" {
		return nil, errors.New("conceptart: brief response missing briefId")
	}
	return &out, nil
}

// Generate starts a brief-based generation and returns the job handle.
func (c *Client) Generate(ctx context.Context, req jsoncfg.GenerateJSON) (string, error) {
	req.Normalize()
	if strings.TrimSpace(req.BriefID) == "" {
		return "", fmt.Errorf("conceptart: %w: briefId is required", domain.ErrInvalidRequest)
	}
	if err := jsoncfg.ValidateAspectRatio(req.Ratio); err != nil {
		return "", fmt.Errorf("conceptart: %w: %v", domain.ErrInvalidRequest, err)
	}
	var out statusPayload
	if err := c.postJSON(ctx, "generate", "/api/generate", req, &out); err != nil {
		return "", err
	}
	return out.handle()
}

// GenerateFromPrompt starts a chat-flow generation and returns the job handle.
func (c *Client) GenerateFromPrompt(ctx context.Context, req jsoncfg.PromptGenerateJSON) (string, error) {
	req.Normalize()
	if req.Prompt == "" {
		return "", fmt.Errorf("conceptart: %w: prompt is required", domain.ErrInvalidRequest)
	}
	var out statusPayload
	if err := c.postJSON(ctx, "generate", "/api/generate", req, &out); err != nil {
		return "", err
	}
	return out.handle()
}

// GenerationStatus fetches one status snapshot. Network failures and non-2xx
// replies are returned as *domain.TransportError.
func (c *Client) GenerationStatus(ctx context.Context, jobID string) (domain.Snapshot, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return domain.Snapshot{}, fmt.Errorf("conceptart: %w: job id is required", domain.ErrInvalidRequest)
	}
	var out statusPayload
	if err := c.do(ctx, "generation status", http.MethodGet, "/api/generation/"+url.PathEscape(jobID), nil, "", &out); err != nil {
		return domain.Snapshot{}, err
	}
	snap := out.snapshot()
	if snap.JobID == "" {
		snap.JobID = jobID
	}
	c.logger.Debug().
		Str("job_id", snap.JobID).
		Str("status", string(snap.Status)).
		Int("results", len(snap.Results)).
		Msg("conceptart: status fetched")
	return snap, nil
}

// SubmitFeedback sends ratings, selections and adjustments for a generation.
func (c *Client) SubmitFeedback(ctx context.Context, feedback jsoncfg.FeedbackJSON) (*FeedbackResult, error) {
	if strings.TrimSpace(feedback.GenerationID) == "" {
		return nil, fmt.Errorf("conceptart: %w: generationId is required", domain.ErrInvalidRequest)
	}
	if feedback.Selections == nil {
		feedback.Selections = []string{}
	}
	if feedback.Ratings == nil {
		feedback.Ratings = map[string]int{}
	}
	if feedback.Adjustments == nil {
		feedback.Adjustments = []string{}
	}
	var out FeedbackResult
	if err := c.postJSON(ctx, "submit feedback", "/api/feedback", feedback, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat sends a message to the prompt-planning agent.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, fmt.Errorf("conceptart: %w: message is required", domain.ErrInvalidRequest)
	}
	var out ChatReply
	if err := c.postJSON(ctx, "chat", "/api/chat", req, &out); err != nil {
		return nil, err
	}
	if out.PromptData == nil || strings.TrimSpace(out.PromptData.Prompt) == "" {
		out.PromptReady = false
	}
	return &out, nil
}

// UploadReference uploads a reference image for palette extraction.
func (c *Client) UploadReference(ctx context.Context, sessionID, filename string, image io.Reader) (*ReferenceAnalysis, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("conceptart: %w: session id is required", domain.ErrInvalidRequest)
	}
	if image == nil {
		return nil, fmt.Errorf("conceptart: %w: image is required", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(filename) == "" {
		filename = "reference.png"
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("conceptart: build upload: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("conceptart: read upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("conceptart: build upload: %w", err)
	}
	path := "/api/upload-reference?session_id=" + url.QueryEscape(sessionID)
	var out ReferenceAnalysis
	if err := c.do(ctx, "upload reference", http.MethodPost, path, &body, writer.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetSession clears the agent conversation of a chat session.
func (c *Client) ResetSession(ctx context.Context, sessionID string) error {
	path := "/api/session/reset?session_id=" + url.QueryEscape(sessionID)
	return c.do(ctx, "reset session", http.MethodPost, path, nil, "", nil)
}

// SessionHistory returns the chat turns recorded by the backend.
func (c *Client) SessionHistory(ctx context.Context, sessionID string) ([]HistoryEntry, error) {
	var out struct {
		History []HistoryEntry `json:"history"`
	}
	if err := c.do(ctx, "session history", http.MethodGet, "/api/session/"+url.PathEscape(sessionID)+"/history", nil, "", &out); err != nil {
		return nil, err
	}
	return out.History, nil
}

// Download fetches the bytes of a generated image and its content type.
func (c *Client) Download(ctx context.Context, imageURL string) ([]byte, string, error) {
	target, err := c.resolve(imageURL)
	if err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("conceptart: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &domain.TransportError{Op: "download", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", &domain.TransportError{Op: "download", StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDownload+1))
	if err != nil {
		return nil, "", &domain.TransportError{Op: "download", Err: err}
	}
	if int64(len(data)) > c.maxDownload {
		return nil, "", fmt.Errorf("%w (%d bytes)", ErrImageTooLarge, c.maxDownload)
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = http.DetectContentType(data)
	}
	return data, format, nil
}

// resolve turns backend-relative image paths into absolute URLs.
func (c *Client) resolve(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || raw == "" {
		return "", fmt.Errorf("conceptart: invalid image url: %q", raw)
	}
	if parsed.IsAbs() {
		return parsed.String(), nil
	}
	base, _ := url.Parse(c.baseURL + "/")
	return base.ResolveReference(parsed).String(), nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("conceptart: encode %s request: %w", op, err)
	}
	return c.do(ctx, op, http.MethodPost, path, bytes.NewReader(body), "application/json", out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("conceptart: build %s request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Op: "conceptart: " + op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.TransportError{Op: "conceptart: " + op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 300 {
		terr := &domain.TransportError{Op: "conceptart: " + op, StatusCode: resp.StatusCode, Detail: truncateUTF8(errorDetail(raw), maxErrorDetail)}
		if resp.StatusCode == http.StatusNotFound {
			terr.Err = domain.ErrNotFound
		}
		if resp.StatusCode == http.StatusServiceUnavailable {
			terr.Err = domain.ErrUpstreamUnready
		}
		return terr
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.TransportError{Op: "conceptart: decode " + op, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func errorDetail(raw []byte) string {
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil {
		switch v := detail.Detail.(type) {
		case string:
			if v != "" {
				return v
			}
		case nil:
		default:
			if b, err := json.Marshal(v); err == nil {
				return string(b)
			}
		}
		if detail.Error != "" {
			return detail.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
