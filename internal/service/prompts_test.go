package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storybook-server/internal/models"
)

func TestPromptProvider_SubstitutesLanguage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "storybook.md"),
		[]byte("Write the story in {{language}}. Keep {{language}} natural."), 0644))

	p := NewPromptProvider(dir)

	prompt, err := p.StorySystemPrompt("ko")
	require.NoError(t, err)
	assert.Equal(t, "Write the story in Korean. Keep Korean natural.", prompt)
	assert.False(t, strings.Contains(prompt, "{{language}}"))
}

func TestPromptProvider_MissingFile(t *testing.T) {
	p := NewPromptProvider(t.TempDir())
	_, err := p.StorySystemPrompt("en")
	assert.Error(t, err)
}

func TestBuildImagePrompt(t *testing.T) {
	story := &models.ParsedStory{
		ImagePrompts: models.ImagePrompts{
			StyleGuide: "watercolor",
			World:      "a quiet forest",
		},
		Characters: []models.StoryCharacter{
			{Name: "Fox", Description: "small orange fox"},
			{Name: "Moon", Description: ""},
		},
	}

	prompt := BuildImagePrompt("the fox meets the moon", story)

	assert.Contains(t, prompt, "Style: watercolor")
	assert.Contains(t, prompt, "World: a quiet forest")
	assert.Contains(t, prompt, "Fox (protagonist, main focus of the scene): small orange fox")
	assert.Contains(t, prompt, "Moon: as previously depicted")
	assert.Contains(t, prompt, "Scene: the fox meets the moon")
	// Композиционные ограничения всегда идут первыми.
	assert.True(t, strings.Index(prompt, "Style:") > strings.Index(prompt, "Single full-frame"))
}

func TestBuildImagePrompt_NoOptionalBlocks(t *testing.T) {
	story := &models.ParsedStory{}
	prompt := BuildImagePrompt("a scene", story)
	assert.NotContains(t, prompt, "Style:")
	assert.NotContains(t, prompt, "Characters")
	assert.Contains(t, prompt, "Scene: a scene")
}

func TestNarrationInstructions(t *testing.T) {
	for _, lang := range []string{"ko", "en", "ja", "zh"} {
		instructions := NarrationInstructions(lang)
		assert.Contains(t, instructions, "picture book")
		assert.Contains(t, instructions, "quoted dialogue")
	}
	assert.Contains(t, NarrationInstructions("ko"), "Korean")
	assert.Contains(t, NarrationInstructions("en"), "English")
}
