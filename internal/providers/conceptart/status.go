package conceptart

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"studio/internal/domain"
)

// statusPayload accepts both backend dialects: the brief service answers in
// camelCase with image objects, the chat service in snake_case with plain
// image URLs and the failure reason in "error".
type statusPayload struct {
	GenerationID      string         `json:"generationId"`
	GenerationIDSnake string         `json:"generation_id"`
	Status            string         `json:"status"`
	Images            []imagePayload `json:"images"`
	Progress          *float64       `json:"progress"`
	Message           *string        `json:"message"`
	Error             *string        `json:"error"`
}

type imagePayload struct {
	domain.Result
}

type imageObject struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Prompt       string `json:"prompt"`
	Seed         *int64 `json:"seed"`
	Size         struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"size"`
}

func (p *imagePayload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		p.Result = domain.Result{URL: strings.TrimSpace(raw)}
		return nil
	}
	var obj imageObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.Result = domain.Result{
		ID:           strings.TrimSpace(obj.ID),
		URL:          strings.TrimSpace(obj.URL),
		ThumbnailURL: strings.TrimSpace(obj.ThumbnailURL),
		Prompt:       obj.Prompt,
		Seed:         obj.Seed,
		Width:        obj.Size.Width,
		Height:       obj.Size.Height,
	}
	return nil
}

func (p statusPayload) id() string {
	if id := strings.TrimSpace(p.GenerationID); id != "" {
		return id
	}
	return strings.TrimSpace(p.GenerationIDSnake)
}

func (p statusPayload) handle() (string, error) {
	id := p.id()
	if id == "" {
		return "", errors.New("conceptart: generate response missing generation id")
	}
	return id, nil
}

func (p statusPayload) snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		JobID:  p.id(),
		Status: domain.ParseJobStatus(p.Status),
	}
	if p.Progress != nil {
		v := int(math.Round(*p.Progress))
		snap.Progress = &v
	}
	if p.Message != nil {
		snap.Message = strings.TrimSpace(*p.Message)
	}
	if p.Error != nil {
		snap.Error = strings.TrimSpace(*p.Error)
	}
	if snap.Status == domain.JobStatusCompleted {
		snap.Results = make([]domain.Result, 0, len(p.Images))
		for i, img := range p.Images {
			res := img.Result
			if res.URL == "" {
				continue
			}
			if res.ID == "" {
				res.ID = domain.ResultFromURL(res.URL, i).ID
			}
			snap.Results = append(snap.Results, res)
		}
	}
	return snap
}
