package schemas

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"storybook-server/internal/models"
)

// styleGuideTemplate is the fallback illustration style applied when the
// legacy response schema carries no imagePrompts block.
const styleGuideTemplate = "Soft watercolor children's picture book illustration, rounded shapes, warm pastel palette, gentle lighting, no text in the image"

// ParseStoryOutput normalizes a raw LLM completion into a ParsedStory.
// The current response schema is tried first, then the legacy one; if neither
// validates the raw text violates the content contract and the returned error
// matches models.ErrContentContract. Title and description feed prompt
// synthesis for legacy responses that lack imagePrompts.
func ParseStoryOutput(raw, title, description string) (*models.ParsedStory, error) {
	data := []byte(stripCodeFences(raw))
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty response", models.ErrContentContract)
	}

	if story, err := parseCurrentSchema(data); err == nil {
		return story, nil
	}

	story, err := parseLegacySchema(data, title, description)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrContentContract, err)
	}
	return story, nil
}

// stripCodeFences removes a surrounding markdown code fence, with or without
// a language tag, and trims whitespace.
func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line (```json).
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// --- Current schema ---

type currentPage struct {
	Page    int    `json:"page"`
	Content string `json:"content"`
}

type currentImagePrompts struct {
	Cover      string `json:"cover"`
	Highlight  string `json:"highlight"`
	End        string `json:"end"`
	StyleGuide string `json:"styleGuide"`
	World      string `json:"world"`
}

type currentSchema struct {
	HighlightPage int                     `json:"highlightPage"`
	Pages         []currentPage           `json:"pages"`
	ImagePrompts  *currentImagePrompts    `json:"imagePrompts"`
	Characters    []models.StoryCharacter `json:"characters"`
	// Known misspelling produced by earlier prompt revisions; kept as an
	// alias for Characters.
	Charactors []models.StoryCharacter `json:"charactors"`
}

func parseCurrentSchema(data []byte) (*models.ParsedStory, error) {
	var cur currentSchema
	if err := json.Unmarshal(data, &cur); err != nil {
		return nil, fmt.Errorf("current schema: %w", err)
	}
	if cur.HighlightPage < 1 || cur.HighlightPage > models.StoryPageCount {
		return nil, fmt.Errorf("current schema: highlightPage %d out of range", cur.HighlightPage)
	}
	if cur.ImagePrompts == nil {
		return nil, fmt.Errorf("current schema: imagePrompts missing")
	}
	prompts := models.ImagePrompts{
		Cover:      strings.TrimSpace(cur.ImagePrompts.Cover),
		Highlight:  strings.TrimSpace(cur.ImagePrompts.Highlight),
		End:        strings.TrimSpace(cur.ImagePrompts.End),
		StyleGuide: strings.TrimSpace(cur.ImagePrompts.StyleGuide),
		World:      strings.TrimSpace(cur.ImagePrompts.World),
	}
	if prompts.Cover == "" || prompts.Highlight == "" || prompts.End == "" {
		return nil, fmt.Errorf("current schema: imagePrompts cover/highlight/end must be non-empty")
	}

	pages := make([]rawPage, 0, len(cur.Pages))
	for _, p := range cur.Pages {
		pages = append(pages, rawPage{Page: p.Page, Content: p.Content})
	}
	validated, err := validatePages(pages)
	if err != nil {
		return nil, fmt.Errorf("current schema: %w", err)
	}

	characters := cur.Characters
	if len(characters) == 0 {
		characters = cur.Charactors
	}

	story := &models.ParsedStory{
		Pages:         validated,
		HighlightPage: cur.HighlightPage,
		ImagePrompts:  prompts,
		Characters:    characters,
	}
	story.Pages[cur.HighlightPage-1].IsHighlight = true
	return story, nil
}

// --- Legacy schema ---

type legacyPage struct {
	Page        int    `json:"page"`
	Content     string `json:"content"`
	IsHighlight bool   `json:"isHighlight"`
}

type legacyEnvelope struct {
	Pages        []legacyPage         `json:"pages"`
	ImagePrompts *currentImagePrompts `json:"imagePrompts"`
}

// defaultHighlightPage is used when no legacy page carries the highlight
// flag.
const defaultHighlightPage = 6

func parseLegacySchema(data []byte, title, description string) (*models.ParsedStory, error) {
	var legacyPages []legacyPage
	var legacyPrompts *currentImagePrompts

	// Either a bare array or an object wrapping a pages array.
	if err := json.Unmarshal(data, &legacyPages); err != nil {
		var env legacyEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("legacy schema: %w", err)
		}
		legacyPages = env.Pages
		legacyPrompts = env.ImagePrompts
	}

	pages := make([]rawPage, 0, len(legacyPages))
	highlight := 0
	for _, p := range legacyPages {
		pages = append(pages, rawPage{Page: p.Page, Content: p.Content})
		if p.IsHighlight && highlight == 0 {
			highlight = p.Page
		}
	}
	validated, err := validatePages(pages)
	if err != nil {
		return nil, fmt.Errorf("legacy schema: %w", err)
	}
	if highlight == 0 {
		highlight = defaultHighlightPage
	}

	var prompts models.ImagePrompts
	if legacyPrompts != nil {
		prompts = models.ImagePrompts{
			Cover:      strings.TrimSpace(legacyPrompts.Cover),
			Highlight:  strings.TrimSpace(legacyPrompts.Highlight),
			End:        strings.TrimSpace(legacyPrompts.End),
			StyleGuide: strings.TrimSpace(legacyPrompts.StyleGuide),
			World:      strings.TrimSpace(legacyPrompts.World),
		}
	}
	if prompts.Cover == "" || prompts.Highlight == "" || prompts.End == "" {
		prompts = synthesizeImagePrompts(title, description, validated, highlight)
	}

	story := &models.ParsedStory{
		Pages:         validated,
		HighlightPage: highlight,
		ImagePrompts:  prompts,
	}
	story.Pages[highlight-1].IsHighlight = true
	return story, nil
}

// synthesizeImagePrompts builds cover/highlight/end prompts from the story
// text itself when the response carries none.
func synthesizeImagePrompts(title, description string, pages []models.StoryPage, highlight int) models.ImagePrompts {
	cover := fmt.Sprintf("Cover illustration for the storybook %q: %s", title, description)
	return models.ImagePrompts{
		Cover:      strings.TrimSpace(cover),
		Highlight:  fmt.Sprintf("Key scene from %q: %s", title, pages[highlight-1].Content),
		End:        fmt.Sprintf("Closing scene of %q: %s", title, pages[len(pages)-1].Content),
		StyleGuide: styleGuideTemplate,
	}
}

// --- Shared page validation ---

type rawPage struct {
	Page    int
	Content string
}

// validatePages enforces the 1..StoryPageCount completeness rule: exactly one
// page per number, no gaps, non-empty trimmed content. Pages are returned in
// ascending order with narration derived from content.
func validatePages(pages []rawPage) ([]models.StoryPage, error) {
	if len(pages) != models.StoryPageCount {
		return nil, fmt.Errorf("expected %d pages, got %d", models.StoryPageCount, len(pages))
	}
	seen := make(map[int]bool, len(pages))
	out := make([]models.StoryPage, 0, len(pages))
	for _, p := range pages {
		if p.Page < 1 || p.Page > models.StoryPageCount {
			return nil, fmt.Errorf("page number %d out of range", p.Page)
		}
		if seen[p.Page] {
			return nil, fmt.Errorf("duplicate page number %d", p.Page)
		}
		seen[p.Page] = true
		content := strings.TrimSpace(p.Content)
		if content == "" {
			return nil, fmt.Errorf("page %d has empty content", p.Page)
		}
		out = append(out, models.StoryPage{
			Page:      p.Page,
			Content:   content,
			Narration: content,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out, nil
}
