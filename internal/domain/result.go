package domain

import (
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Result describes one generated image returned on completion.
type Result struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	Seed         *int64 `json:"seed,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

// ResultFromURL builds a descriptor for backends that only return image URLs.
// The id is the last path segment, or a positional name when the URL has none.
func ResultFromURL(raw string, index int) Result {
	raw = strings.TrimSpace(raw)
	id := ""
	if parsed, err := url.Parse(raw); err == nil && parsed.Path != "" {
		if base := path.Base(parsed.Path); base != "/" && base != "." {
			id = base
		}
	}
	if id == "" {
		id = "image-" + strconv.Itoa(index+1)
	}
	return Result{ID: id, URL: raw}
}
