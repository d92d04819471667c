package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"storybook-server/internal/models"
)

// compositionConstraints prefixes every illustration prompt so the provider
// renders one coherent scene instead of a collage or comic panels.
const compositionConstraints = "Single full-frame image, one coherent scene, no collage, no panels, no borders, no text or letters in the image."

// PromptProvider читает системный промт генерации истории из файла и кэширует
// его. Файл один (storybook.md), плейсхолдер {{language}} подставляется при
// каждом вызове.
type PromptProvider struct {
	promptsDir string
	once       sync.Once
	template   string
	loadErr    error
}

// NewPromptProvider создает провайдер промтов.
func NewPromptProvider(promptsDir string) *PromptProvider {
	return &PromptProvider{promptsDir: promptsDir}
}

// StorySystemPrompt возвращает системный промт для языка книжки.
func (p *PromptProvider) StorySystemPrompt(language string) (string, error) {
	p.once.Do(func() {
		path := filepath.Join(p.promptsDir, "storybook.md")
		content, err := os.ReadFile(path)
		if err != nil {
			p.loadErr = fmt.Errorf("failed to read story prompt %s: %w", path, err)
			return
		}
		p.template = string(content)
	})
	if p.loadErr != nil {
		return "", p.loadErr
	}
	return strings.ReplaceAll(p.template, "{{language}}", languageName(language)), nil
}

func languageName(code string) string {
	switch code {
	case "ko":
		return "Korean"
	case "ja":
		return "Japanese"
	case "zh":
		return "Chinese"
	default:
		return "English"
	}
}

// BuildImagePrompt собирает финальный промт иллюстрации из фиксированных
// композиционных ограничений, общего стиля/мира, блока консистентности
// персонажей и описания конкретной сцены.
func BuildImagePrompt(scene string, story *models.ParsedStory) string {
	var b strings.Builder
	b.WriteString(compositionConstraints)
	b.WriteString("\n")

	if story.ImagePrompts.StyleGuide != "" {
		b.WriteString("Style: ")
		b.WriteString(story.ImagePrompts.StyleGuide)
		b.WriteString("\n")
	}
	if story.ImagePrompts.World != "" {
		b.WriteString("World: ")
		b.WriteString(story.ImagePrompts.World)
		b.WriteString("\n")
	}

	if len(story.Characters) > 0 {
		b.WriteString("Characters (keep their appearance consistent):\n")
		for i, ch := range story.Characters {
			anchor := strings.TrimSpace(ch.Description)
			if anchor == "" {
				anchor = "as previously depicted"
			}
			if i == 0 {
				b.WriteString(fmt.Sprintf("- %s (protagonist, main focus of the scene): %s\n", ch.Name, anchor))
			} else {
				b.WriteString(fmt.Sprintf("- %s: %s\n", ch.Name, anchor))
			}
		}
	}

	b.WriteString("Scene: ")
	b.WriteString(strings.TrimSpace(scene))
	return b.String()
}

// NarrationInstructions возвращает языковую инструкцию подачи для синтеза
// речи одной страницы.
func NarrationInstructions(language string) string {
	base := "Narrate warmly and slowly, as if reading a picture book to a child. Pause briefly between sentences. When a sentence is quoted dialogue, act it out with a gentle character voice."
	switch language {
	case "ko":
		return base + " Speak natural polite Korean (해요체)."
	case "ja":
		return base + " Speak natural gentle Japanese."
	case "zh":
		return base + " Speak natural Mandarin Chinese with clear tones."
	default:
		return base + " Speak clear, friendly English."
	}
}
