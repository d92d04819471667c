package models

// StoryPage is one validated narrative page from the LLM output. Pages are
// numbered 1..StoryPageCount.
type StoryPage struct {
	Page        int
	Content     string
	Narration   string
	IsHighlight bool
}

// ImagePrompts carries the per-role illustration prompts. StyleGuide and
// World are optional shared context applied to every prompt.
type ImagePrompts struct {
	Cover      string
	Highlight  string
	End        string
	StyleGuide string
	World      string
}

// StoryCharacter anchors a recurring character for image consistency. The
// first character in the list is the protagonist.
type StoryCharacter struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ParsedStory is the normalized, fully validated story model produced by the
// output parser from either LLM response schema.
type ParsedStory struct {
	Pages         []StoryPage
	HighlightPage int
	ImagePrompts  ImagePrompts
	Characters    []StoryCharacter
}

// HighlightedPage returns the page flagged as highlight.
func (s *ParsedStory) HighlightedPage() *StoryPage {
	for i := range s.Pages {
		if s.Pages[i].IsHighlight {
			return &s.Pages[i]
		}
	}
	return nil
}
