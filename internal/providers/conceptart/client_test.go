package conceptart

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"studio/internal/domain"
	"studio/internal/domain/jsoncfg"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Options{}); !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("err = %v, want ErrMissingBaseURL", err)
	}
	if _, err := NewClient(Options{BaseURL: "localhost:8000"}); err == nil {
		t.Fatalf("expected error for base url without scheme")
	}
}

func TestGenerationStatusBriefDialect(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/generation/gen-42" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"generationId": "gen-42",
			"briefId":      "brief-1",
			"status":       "completed",
			"progress":     100,
			"images": []any{map[string]any{
				"id":           "img_a.png",
				"url":          "/outputs/img_a.png",
				"thumbnailUrl": "/outputs/thumb_a.png",
				"prompt":       "golden dragon",
				"seed":         1234,
				"size":         map[string]any{"width": 1024, "height": 576},
			}},
		})
	})

	snap, err := client.GenerationStatus(context.Background(), "gen-42")
	if err != nil {
		t.Fatalf("GenerationStatus: %v", err)
	}
	if snap.Status != domain.JobStatusCompleted || snap.JobID != "gen-42" {
		t.Fatalf("snapshot = %#v", snap)
	}
	if snap.Progress == nil || *snap.Progress != 100 {
		t.Fatalf("progress = %v, want 100", snap.Progress)
	}
	if len(snap.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(snap.Results))
	}
	res := snap.Results[0]
	if res.ID != "img_a.png" || res.ThumbnailURL != "/outputs/thumb_a.png" || res.Width != 1024 || res.Height != 576 {
		t.Fatalf("result = %#v", res)
	}
	if res.Seed == nil || *res.Seed != 1234 {
		t.Fatalf("seed = %v, want 1234", res.Seed)
	}
}

func TestGenerationStatusChatDialect(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"generation_id": "gen-7",
			"status":        "completed",
			"images":        []string{"https://cdn.example.com/out/dragon-1.png", "", "https://cdn.example.com/out/"},
			"progress":      100,
			"error":         nil,
		})
	})

	snap, err := client.GenerationStatus(context.Background(), "gen-7")
	if err != nil {
		t.Fatalf("GenerationStatus: %v", err)
	}
	if len(snap.Results) != 2 {
		t.Fatalf("results = %#v, want blank urls dropped", snap.Results)
	}
	if snap.Results[0].ID != "dragon-1.png" {
		t.Fatalf("results[0].ID = %q, want dragon-1.png", snap.Results[0].ID)
	}
	if snap.Results[1].ID != "out" {
		t.Fatalf("results[1].ID = %q, want out", snap.Results[1].ID)
	}
}

func TestGenerationStatusFailureAndProgress(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			writeJSON(w, http.StatusOK, map[string]any{"generation_id": "g", "status": "processing", "progress": 42.6})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"generation_id": "g", "status": "FAILED", "progress": 0, "error": "imagen quota"})
	})

	snap, err := client.GenerationStatus(context.Background(), "g")
	if err != nil {
		t.Fatalf("GenerationStatus: %v", err)
	}
	if snap.Status.IsTerminal() || snap.Progress == nil || *snap.Progress != 43 {
		t.Fatalf("snapshot = %#v", snap)
	}
	if snap.Message != "" {
		t.Fatalf("message = %q, want empty", snap.Message)
	}

	snap, err = client.GenerationStatus(context.Background(), "g")
	if err != nil {
		t.Fatalf("GenerationStatus: %v", err)
	}
	if snap.Status != domain.JobStatusFailed || snap.FailureMessage() != "imagen quota" {
		t.Fatalf("snapshot = %#v", snap)
	}
}

func TestGenerationStatusTransportErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "generation not found"})
	})

	_, err := client.GenerationStatus(context.Background(), "missing")
	var te *domain.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if te.StatusCode != http.StatusNotFound || te.Detail != "generation not found" {
		t.Fatalf("transport error = %#v", te)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("404 should unwrap to ErrNotFound")
	}

	broken := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "{not json")
	})
	if _, err := broken.GenerationStatus(context.Background(), "x"); !errors.As(err, &te) {
		t.Fatalf("malformed body should be a transport error, got %v", err)
	}
}

func TestGenerationStatusNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	client, err := NewClient(Options{BaseURL: base})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.GenerationStatus(context.Background(), "gen-1")
	var te *domain.TransportError
	if !errors.As(err, &te) || te.StatusCode != 0 {
		t.Fatalf("err = %v, want TransportError without status", err)
	}
}

func TestCreateBriefAndGenerate(t *testing.T) {
	var briefBody, generateBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		switch r.URL.Path {
		case "/api/brief":
			_ = json.NewDecoder(r.Body).Decode(&briefBody)
			writeJSON(w, http.StatusOK, map[string]any{
				"briefId":          "brief-9",
				"status":           "created",
				"theme":            "dragon",
				"styleTokens":      []string{"cinematic"},
				"extractedPalette": []string{"#B30012"},
				"estimatedTime":    40,
				"createdAt":        "2026-10-19T08:00:00",
			})
		case "/api/generate":
			_ = json.NewDecoder(r.Body).Decode(&generateBody)
			writeJSON(w, http.StatusOK, map[string]any{"generationId": "gen-9", "briefId": "brief-9", "status": "queued", "progress": 0})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	summary, err := client.CreateBrief(context.Background(), jsoncfg.BriefJSON{
		Theme:            "dragon",
		StyleKeywords:    []string{"cinematic"},
		ColorPreferences: jsoncfg.ColorPreferences{Primary: []string{"#B30012"}},
	})
	if err != nil {
		t.Fatalf("CreateBrief: %v", err)
	}
	if summary.BriefID != "brief-9" || summary.EstimatedTime != 40 || len(summary.ExtractedPalette) != 1 {
		t.Fatalf("summary = %#v", summary)
	}

	handle, err := client.Generate(context.Background(), jsoncfg.GenerateJSON{BriefID: "brief-9"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if handle != "gen-9" {
		t.Fatalf("handle = %q, want gen-9", handle)
	}
	if generateBody["count"].(float64) != float64(jsoncfg.DefaultCount) || generateBody["ratio"] != jsoncfg.DefaultAspectRatio {
		t.Fatalf("generate body = %#v", generateBody)
	}
	if briefBody["targetCount"].(float64) != float64(jsoncfg.DefaultCount) {
		t.Fatalf("brief body = %#v", briefBody)
	}
}

func TestCreateBriefValidatesLocally(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("backend should not be called for an invalid brief")
	})
	_, err := client.CreateBrief(context.Background(), jsoncfg.BriefJSON{StyleKeywords: []string{"x"}})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestGenerateFromPromptAndChat(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			writeJSON(w, http.StatusOK, map[string]any{
				"session_id":   "sess-1",
				"response":     "Here is your prompt",
				"prompt_ready": true,
				"prompt_data":  map[string]any{"prompt": "golden dragon over clouds", "negative_prompt": "blurry"},
				"timestamp":    "2026-10-19T08:00:00",
			})
		case "/api/generate":
			_ = json.NewDecoder(r.Body).Decode(&body)
			writeJSON(w, http.StatusOK, map[string]any{"generation_id": "gen-c", "status": "processing", "progress": 0})
		}
	})

	reply, err := client.Chat(context.Background(), ChatRequest{Message: "  slot game dragon  "})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !reply.PromptReady || reply.PromptData.NegativePrompt != "blurry" || reply.SessionID != "sess-1" {
		t.Fatalf("reply = %#v", reply)
	}

	handle, err := client.GenerateFromPrompt(context.Background(), jsoncfg.PromptGenerateJSON{
		SessionID: reply.SessionID,
		Prompt:    reply.PromptData.Prompt,
	})
	if err != nil {
		t.Fatalf("GenerateFromPrompt: %v", err)
	}
	if handle != "gen-c" {
		t.Fatalf("handle = %q", handle)
	}
	if body["num_images"].(float64) != 4 || body["aspect_ratio"] != "16:9" || body["session_id"] != "sess-1" {
		t.Fatalf("generate body = %#v", body)
	}
}

func TestChatPromptReadyRequiresPrompt(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"session_id": "s", "response": "ok", "prompt_ready": true, "prompt_data": nil})
	})
	reply, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.PromptReady {
		t.Fatalf("prompt_ready without prompt data should be false")
	}
}

func TestSubmitFeedbackSendsEmptyCollections(t *testing.T) {
	var raw string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		raw = string(b)
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":                   true,
			"message":              "weights updated",
			"updatedWeights":       map[string]float64{"volumetric light": 1.2},
			"suggestedAdjustments": []string{"raise contrast"},
		})
	})
	res, err := client.SubmitFeedback(context.Background(), jsoncfg.FeedbackJSON{GenerationID: "gen-1"})
	if err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if !res.OK || res.UpdatedWeights["volumetric light"] != 1.2 || len(res.SuggestedAdjustments) != 1 {
		t.Fatalf("result = %#v", res)
	}
	for _, want := range []string{`"selections":[]`, `"ratings":{}`, `"adjustments":[]`, `"tags":null`} {
		if !strings.Contains(raw, want) {
			t.Fatalf("body %s missing %s", raw, want)
		}
	}
}

func TestUploadReferenceMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("session_id") != "sess-1" {
			t.Errorf("session_id = %q", r.URL.Query().Get("session_id"))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "ref.png" || string(data) != "PNGDATA" {
			t.Errorf("upload = %s %q", header.Filename, data)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": "sess-1",
			"palette":    map[string]any{"colors": []string{"#112233"}, "primary": []string{"#112233"}},
			"message":    "done",
		})
	})
	res, err := client.UploadReference(context.Background(), "sess-1", "ref.png", strings.NewReader("PNGDATA"))
	if err != nil {
		t.Fatalf("UploadReference: %v", err)
	}
	if len(res.Palette.Colors) != 1 || res.Palette.Colors[0] != "#112233" {
		t.Fatalf("palette = %#v", res.Palette)
	}
}

func TestSessionResetAndHistory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/session/reset":
			if r.URL.Query().Get("session_id") != "sess-1" {
				writeJSON(w, http.StatusNotFound, map[string]any{"detail": "session not found"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"message": "reset"})
		case r.Method == http.MethodGet && r.URL.Path == "/api/session/sess-1/history":
			writeJSON(w, http.StatusOK, map[string]any{
				"session_id": "sess-1",
				"history":    []any{map[string]any{"role": "user", "content": "hi", "timestamp": "t"}},
			})
		}
	})
	if err := client.ResetSession(context.Background(), "sess-1"); err != nil {
		t.Fatalf("ResetSession: %v", err)
	}
	if err := client.ResetSession(context.Background(), "other"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	history, err := client.SessionHistory(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("SessionHistory: %v", err)
	}
	if len(history) != 1 || history[0].Role != "user" {
		t.Fatalf("history = %#v", history)
	}
}

func TestHealthAndDownload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "gemini_agent": true})
		case "/outputs/a.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Status != "healthy" || health.Extra["gemini_agent"] != true {
		t.Fatalf("health = %#v", health)
	}
	data, format, err := client.Download(context.Background(), "/outputs/a.png")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if format != "image/png" || len(data) != 4 {
		t.Fatalf("download = %s %d bytes", format, len(data))
	}
	if _, _, err := client.Download(context.Background(), "/outputs/missing.png"); err == nil {
		t.Fatalf("expected error for missing image")
	}
}

func TestDownloadRejectsOversizedImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(make([]byte, 2048))
	}))
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{BaseURL: srv.URL, MaxDownloadBytes: 1024})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, _, err := client.Download(context.Background(), "/outputs/big.png"); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("err = %v, want ErrImageTooLarge", err)
	}

	exact, err := NewClient(Options{BaseURL: srv.URL, MaxDownloadBytes: 2048})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if data, _, err := exact.Download(context.Background(), "/outputs/big.png"); err != nil || len(data) != 2048 {
		t.Fatalf("download at the limit: %d bytes, %v", len(data), err)
	}
}

func TestErrorDetailKeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("生成失敗", 40)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "xx"+long)
	})
	_, err := client.GenerationStatus(context.Background(), "gen-1")
	var te *domain.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if !utf8.ValidString(te.Detail) {
		t.Fatalf("detail is not valid UTF-8: %q", te.Detail)
	}
	if len(te.Detail) > maxErrorDetail || !strings.HasPrefix("xx"+long, te.Detail) || len(te.Detail) < maxErrorDetail-3 {
		t.Fatalf("unexpected detail length %d", len(te.Detail))
	}
}
