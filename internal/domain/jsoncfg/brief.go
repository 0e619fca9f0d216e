package jsoncfg

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type ColorPreferences struct {
	Primary   []string `json:"primary"`
	Secondary []string `json:"secondary"`
	Mood      *string  `json:"mood"`
}

type ReferenceImage struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Tags   []string `json:"tags"`
	Weight float64  `json:"weight"`
}

// BriefJSON is the creative brief accepted by POST /api/brief.
type BriefJSON struct {
	Theme            string           `json:"theme"`
	StyleKeywords    []string         `json:"styleKeywords"`
	ColorPreferences ColorPreferences `json:"colorPreferences"`
	ReferenceImages  []ReferenceImage `json:"referenceImages"`
	TargetCount      int              `json:"targetCount"`
	TargetRatio      string           `json:"targetRatio"`
	Constraints      map[string]bool  `json:"constraints,omitempty"`
}

// GenerateJSON is the brief-flow body of POST /api/generate.
type GenerateJSON struct {
	BriefID    string   `json:"briefId"`
	Count      int      `json:"count"`
	Ratio      string   `json:"ratio"`
	Seed       *int64   `json:"seed"`
	Variations []string `json:"variations"`
}

// PromptGenerateJSON is the chat-flow body of POST /api/generate.
type PromptGenerateJSON struct {
	SessionID      string `json:"session_id"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	NumImages      int    `json:"num_images"`
	AspectRatio    string `json:"aspect_ratio"`
}

// PromptData is the structured prompt the chat agent returns once ready.
type PromptData struct {
	Theme          string   `json:"theme,omitempty"`
	StyleTags      []string `json:"style_tags,omitempty"`
	Composition    string   `json:"composition,omitempty"`
	Lighting       string   `json:"lighting,omitempty"`
	ColorPalette   []string `json:"color_palette,omitempty"`
	Mood           string   `json:"mood,omitempty"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
}

// FeedbackJSON is the body of POST /api/feedback.
type FeedbackJSON struct {
	GenerationID string              `json:"generationId"`
	Selections   []string            `json:"selections"`
	Ratings      map[string]int      `json:"ratings"`
	Tags         map[string][]string `json:"tags"`
	Adjustments  []string            `json:"adjustments"`
}

var allowedAspectRatios = map[string]struct{}{
	"16:9": {},
	"4:5":  {},
	"1:1":  {},
	"21:9": {},
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

const (
	// DefaultAspectRatio is used when a request omits the ratio.
	DefaultAspectRatio = "16:9"
	// DefaultCount is the number of images requested per generation.
	DefaultCount = 4
	// MaxCount caps the images per generation accepted by the backend.
	MaxCount = 10
	// DefaultReferenceWeight is applied to references without an explicit weight.
	DefaultReferenceWeight = 1.0
	// MaxReferenceWeight bounds reference influence.
	MaxReferenceWeight = 2.0
)

// Normalize fills defaults and clamps ranges the backend would reject.
func (b *BriefJSON) Normalize() {
	if b == nil {
		return
	}
	b.Theme = strings.TrimSpace(b.Theme)
	b.StyleKeywords = compact(b.StyleKeywords)
	b.ColorPreferences.Primary = compact(b.ColorPreferences.Primary)
	b.ColorPreferences.Secondary = compact(b.ColorPreferences.Secondary)
	if b.ColorPreferences.Secondary == nil {
		b.ColorPreferences.Secondary = []string{}
	}
	if b.ReferenceImages == nil {
		b.ReferenceImages = []ReferenceImage{}
	}
	for i := range b.ReferenceImages {
		ref := &b.ReferenceImages[i]
		if ref.Weight <= 0 {
			ref.Weight = DefaultReferenceWeight
		}
		if ref.Weight > MaxReferenceWeight {
			ref.Weight = MaxReferenceWeight
		}
		if ref.Tags == nil {
			ref.Tags = []string{}
		}
	}
	b.TargetCount = clampCount(b.TargetCount)
	if b.TargetRatio == "" {
		b.TargetRatio = DefaultAspectRatio
	}
}

// Validate reports the first field the backend would refuse.
func (b BriefJSON) Validate() error {
	if strings.TrimSpace(b.Theme) == "" {
		return fmt.Errorf("theme is required")
	}
	if len(b.StyleKeywords) == 0 {
		return fmt.Errorf("styleKeywords requires at least one keyword")
	}
	for _, c := range append(append([]string{}, b.ColorPreferences.Primary...), b.ColorPreferences.Secondary...) {
		if !hexColor.MatchString(c) {
			return fmt.Errorf("color %q is not a hex value", c)
		}
	}
	for _, ref := range b.ReferenceImages {
		if strings.TrimSpace(ref.URL) == "" {
			return fmt.Errorf("reference %q has no url", ref.ID)
		}
	}
	if b.TargetCount < 1 || b.TargetCount > MaxCount {
		return fmt.Errorf("targetCount must be between 1 and %d", MaxCount)
	}
	return ValidateAspectRatio(b.TargetRatio)
}

// Normalize fills generate defaults.
func (g *GenerateJSON) Normalize() {
	if g == nil {
		return
	}
	g.Count = clampCount(g.Count)
	if g.Ratio == "" {
		g.Ratio = DefaultAspectRatio
	}
	g.Variations = compact(g.Variations)
}

// Normalize fills prompt-generate defaults.
func (p *PromptGenerateJSON) Normalize() {
	if p == nil {
		return
	}
	p.Prompt = strings.TrimSpace(p.Prompt)
	p.NegativePrompt = strings.TrimSpace(p.NegativePrompt)
	p.NumImages = clampCount(p.NumImages)
	if p.AspectRatio == "" {
		p.AspectRatio = DefaultAspectRatio
	}
}

// ValidateAspectRatio accepts the ratios the backend supports.
func ValidateAspectRatio(ratio string) error {
	if _, ok := allowedAspectRatios[ratio]; !ok {
		return fmt.Errorf("aspect ratio must be one of 16:9, 4:5, 1:1, 21:9")
	}
	return nil
}

// ParseColors keeps the comma separated entries that look like hex colors.
func ParseColors(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		c := strings.TrimSpace(part)
		if c != "" && strings.HasPrefix(c, "#") {
			out = append(out, c)
		}
	}
	return out
}

// SplitLines returns the non-blank trimmed lines of raw.
func SplitLines(raw string) []string {
	return compact(strings.Split(raw, "\n"))
}

func clampCount(n int) int {
	if n <= 0 {
		return DefaultCount
	}
	if n > MaxCount {
		return MaxCount
	}
	return n
}

func compact(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("json marshal: %w", err))
	}
	return b
}
