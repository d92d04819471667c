package models

import "time"

// StorybookStatus is the lifecycle status of a storybook.
type StorybookStatus string

const (
	StorybookStatusDraft      StorybookStatus = "draft"
	StorybookStatusGenerating StorybookStatus = "generating"
	StorybookStatusCompleted  StorybookStatus = "completed"
	StorybookStatusFailed     StorybookStatus = "failed"
)

// PageType distinguishes the cover row from story page rows.
type PageType string

const (
	PageTypeCover PageType = "cover"
	PageTypeStory PageType = "story"
)

// StoryPageCount is the fixed number of narrative pages per storybook.
const StoryPageCount = 10

// SupportedLanguages is the fixed set of storybook languages.
var SupportedLanguages = map[string]bool{
	"ko": true,
	"en": true,
	"ja": true,
	"zh": true,
}

// MetaHighlightImageKey is the storybook metadata key recording the highlight
// illustration when the highlight position is also the final page and the
// page row carries the ending image key.
const MetaHighlightImageKey = "highlightImageKey"

// Storybook is the root record of one generated book.
type Storybook struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Title        string            `json:"title"`
	AuthorName   string            `json:"author_name,omitempty"`
	Description  string            `json:"description"`
	Language     string            `json:"language"`
	Status       StorybookStatus   `json:"status"`
	OriginKey    string            `json:"origin_key"`
	CoverKey     string            `json:"cover_key"`
	HighlightKey string            `json:"highlight_key"`
	EndingKey    string            `json:"ending_key"`
	PageCount    int               `json:"page_count"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at,omitempty"`
}

// OriginDetail is the provenance record for the submitted drawing.
type OriginDetail struct {
	ID          string    `json:"id"`
	StorybookID string    `json:"storybook_id"`
	UserID      string    `json:"user_id"`
	DrawingKey  string    `json:"drawing_key"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// OutputDetail is one rendered page. Index 0 is the cover, 1..PageCount are
// story pages.
type OutputDetail struct {
	ID          string   `json:"id"`
	StorybookID string   `json:"storybook_id"`
	PageIndex   int      `json:"page_index"`
	PageType    PageType `json:"page_type"`
	Title       string   `json:"title,omitempty"`
	Content     string   `json:"content,omitempty"`
	ImageKey    string   `json:"image_key,omitempty"`
	AudioKey    string   `json:"audio_key,omitempty"`
	IsHighlight bool     `json:"is_highlight"`
}
