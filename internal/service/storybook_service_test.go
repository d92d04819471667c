package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storybook-server/internal/entitlement"
	"storybook-server/internal/mocks"
	"storybook-server/internal/models"
	"storybook-server/internal/service"
)

const testUserID = "user-123"

type pipelineMocks struct {
	ai      *mocks.MockAIClient
	images  *mocks.MockImageClient
	speech  *mocks.MockSpeechClient
	repo    *mocks.MockStorybookRepository
	objects *mocks.MockObjectStorage
	quotas  *mocks.MockQuotaRepository
	subs    *mocks.MockSubscriptionRepository
}

func newPipeline(t *testing.T) (*service.StorybookService, *pipelineMocks) {
	t.Helper()

	promptsDir := t.TempDir()
	err := os.WriteFile(filepath.Join(promptsDir, "storybook.md"), []byte("Write a story in {{language}}."), 0644)
	require.NoError(t, err)

	m := &pipelineMocks{
		ai:      mocks.NewMockAIClient(t),
		images:  mocks.NewMockImageClient(t),
		speech:  mocks.NewMockSpeechClient(t),
		repo:    mocks.NewMockStorybookRepository(t),
		objects: mocks.NewMockObjectStorage(t),
		quotas:  mocks.NewMockQuotaRepository(t),
		subs:    mocks.NewMockSubscriptionRepository(t),
	}

	engine, err := entitlement.NewEngine(m.quotas, m.subs, entitlement.Limits{
		FreeTotalDefault: 2,
		DailyStandard:    30,
		DailyPro:         60,
	}, "Asia/Seoul", zap.NewNop())
	require.NoError(t, err)

	svc := service.NewStorybookService(
		m.ai,
		service.NewPromptProvider(promptsDir),
		service.NewAssetGenerator(m.images, m.speech, zap.NewNop()),
		service.NewPersistenceSaga(m.repo, m.objects, zap.NewNop()),
		m.repo,
		m.objects,
		engine,
		"v3",
		zap.NewNop(),
	)
	return svc, m
}

func storyPayload(t *testing.T, highlightPage int) string {
	t.Helper()
	pages := make([]map[string]interface{}, 0, models.StoryPageCount)
	for i := 1; i <= models.StoryPageCount; i++ {
		pages = append(pages, map[string]interface{}{
			"page":    i,
			"content": fmt.Sprintf("Page %d of the story.", i),
		})
	}
	data, err := json.Marshal(map[string]interface{}{
		"pages":         pages,
		"highlightPage": highlightPage,
		"imagePrompts": map[string]string{
			"cover":     "a fox on a hill",
			"highlight": "the fox meets the moon",
			"end":       "the fox asleep",
		},
	})
	require.NoError(t, err)
	return string(data)
}

func createRequest() service.CreateStorybookRequest {
	return service.CreateStorybookRequest{
		Title:       "The Fox",
		AuthorName:  "Mina",
		Description: "A fox adventure",
		Language:    "en",
		DrawingData: []byte("drawing-bytes"),
		DrawingType: "image/png",
	}
}

func expectFreeUser(m *pipelineMocks, freeUsed int) {
	m.subs.On("GetByUserID", mock.Anything, testUserID).Return(nil, models.ErrNotFound)
	m.quotas.On("GetOrCreate", mock.Anything, testUserID, 2).
		Return(&models.UsageQuota{UserID: testUserID, FreeTotal: 2, FreeUsed: freeUsed}, nil)
}

func expectGeneration(t *testing.T, m *pipelineMocks, highlightPage int) {
	m.ai.On("GenerateText", mock.Anything, testUserID, mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Return(storyPayload(t, highlightPage), "resp-1", service.UsageInfo{TotalTokens: 500}, nil)
	m.images.On("Generate", mock.Anything, mock.AnythingOfType("string")).Return([]byte("png"), nil)
	m.speech.On("Synthesize", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Return([]byte("mp3"), nil)
}

func expectPersistence(m *pipelineMocks) {
	m.objects.On("Put", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("string"), mock.Anything).Return(nil)
	m.repo.On("Insert", mock.Anything, mock.AnythingOfType("*models.Storybook")).Return(nil)
	m.repo.On("InsertOriginDetails", mock.Anything, mock.AnythingOfType("[]models.OriginDetail")).Return(nil)
	m.repo.On("InsertOutputDetails", mock.Anything, mock.AnythingOfType("[]models.OutputDetail")).Return(nil)
	m.objects.On("PublicURL", mock.AnythingOfType("string")).Return("https://cdn.example.com/asset")
}

func TestStorybookService_Create_FullPipeline(t *testing.T) {
	svc, m := newPipeline(t)

	expectFreeUser(m, 0)
	expectGeneration(t, m, 4)
	expectPersistence(m)
	m.quotas.On("IncrementFree", mock.Anything, mock.Anything).Return(true, nil)

	detail, err := svc.Create(context.Background(), testUserID, createRequest())
	require.NoError(t, err)

	sb := detail.Storybook
	assert.Equal(t, models.StorybookStatusCompleted, sb.Status)
	assert.Equal(t, testUserID, sb.UserID)
	assert.Equal(t, models.StoryPageCount, sb.PageCount)
	assert.Equal(t, "resp-1", sb.Metadata["providerResponseId"])
	assert.Equal(t, "v3", sb.Metadata["promptVersion"])
	assert.Contains(t, sb.CoverKey, testUserID+"/"+sb.ID+"/images/cover.png")

	// Обложка плюс десять страниц.
	require.Len(t, detail.Details, models.StoryPageCount+1)
	assert.Equal(t, models.PageTypeCover, detail.Details[0].PageType)
	assert.Equal(t, 0, detail.Details[0].PageIndex)

	highlighted := detail.Details[4]
	assert.Equal(t, 4, highlighted.PageIndex)
	assert.True(t, highlighted.IsHighlight)
	assert.Equal(t, sb.HighlightKey, highlighted.ImageKey)

	final := detail.Details[models.StoryPageCount]
	assert.Equal(t, sb.EndingKey, final.ImageKey)

	// Электронная книжка не включает обложку в страницы.
	require.NotNil(t, detail.Ebook)
	assert.Len(t, detail.Ebook.Pages, models.StoryPageCount)
	assert.Equal(t, 1, detail.Ebook.Pages[0].Page)
	assert.NotEmpty(t, detail.Ebook.CoverImageURL)

	m.quotas.AssertCalled(t, "IncrementFree", mock.Anything, mock.Anything)
}

func TestStorybookService_Create_HighlightOnFinalPage(t *testing.T) {
	svc, m := newPipeline(t)

	expectFreeUser(m, 0)
	expectGeneration(t, m, models.StoryPageCount)
	expectPersistence(m)
	m.quotas.On("IncrementFree", mock.Anything, mock.Anything).Return(true, nil)

	detail, err := svc.Create(context.Background(), testUserID, createRequest())
	require.NoError(t, err)

	// Финальная страница несет ключ концовки, подсветочная иллюстрация
	// доступна через метаданные.
	final := detail.Details[models.StoryPageCount]
	assert.True(t, final.IsHighlight)
	assert.Equal(t, detail.Storybook.EndingKey, final.ImageKey)
	assert.Equal(t, detail.Storybook.HighlightKey, detail.Storybook.Metadata[models.MetaHighlightImageKey])
}

func TestStorybookService_Create_QuotaDeniedBeforeGeneration(t *testing.T) {
	svc, m := newPipeline(t)

	expectFreeUser(m, 2)

	_, err := svc.Create(context.Background(), testUserID, createRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrQuotaExceeded))
	assert.Equal(t, "free_total", models.QuotaReason(err))

	m.ai.AssertNotCalled(t, "GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestStorybookService_Create_ContractViolationStopsPipeline(t *testing.T) {
	svc, m := newPipeline(t)

	expectFreeUser(m, 0)
	m.ai.On("GenerateText", mock.Anything, testUserID, mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Return("this is not json", "resp-1", service.UsageInfo{}, nil)

	_, err := svc.Create(context.Background(), testUserID, createRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrContentContract))

	m.images.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	m.objects.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.quotas.AssertNotCalled(t, "IncrementFree", mock.Anything, mock.Anything)
}

func TestStorybookService_Create_DebitFailureDoesNotFailRequest(t *testing.T) {
	svc, m := newPipeline(t)

	expectFreeUser(m, 0)
	expectGeneration(t, m, 4)
	expectPersistence(m)
	// Списание стабильно проигрывает гонку — книжка уже сохранена, запрос
	// все равно успешен.
	m.quotas.On("IncrementFree", mock.Anything, mock.Anything).Return(false, nil)

	detail, err := svc.Create(context.Background(), testUserID, createRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StorybookStatusCompleted, detail.Storybook.Status)
}

func TestStorybookService_Create_PersistenceFailureNoDebit(t *testing.T) {
	svc, m := newPipeline(t)

	expectFreeUser(m, 0)
	expectGeneration(t, m, 4)
	m.objects.On("Put", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("string"), mock.Anything).
		Return(errors.New("bucket unavailable"))

	_, err := svc.Create(context.Background(), testUserID, createRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPersistenceFailed))
	m.quotas.AssertNotCalled(t, "IncrementFree", mock.Anything, mock.Anything)
}

func TestStorybookService_Create_ValidatesInput(t *testing.T) {
	svc, _ := newPipeline(t)

	tests := []struct {
		name   string
		mutate func(r *service.CreateStorybookRequest)
	}{
		{"empty title", func(r *service.CreateStorybookRequest) { r.Title = "  " }},
		{"empty description", func(r *service.CreateStorybookRequest) { r.Description = "" }},
		{"unsupported language", func(r *service.CreateStorybookRequest) { r.Language = "fr" }},
		{"missing drawing", func(r *service.CreateStorybookRequest) { r.DrawingData = nil }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := createRequest()
			tc.mutate(&req)
			_, err := svc.Create(context.Background(), testUserID, req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrInvalidInput))
		})
	}
}

func TestStorybookService_Get_OwnershipHidden(t *testing.T) {
	svc, m := newPipeline(t)

	m.repo.On("GetByID", mock.Anything, "sb-1").
		Return(&models.Storybook{ID: "sb-1", UserID: "someone-else"}, nil)

	_, err := svc.Get(context.Background(), testUserID, "sb-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	m.repo.AssertNotCalled(t, "GetOutputDetails", mock.Anything, mock.Anything)
}

func TestStorybookService_Delete_CascadesRowsThenObjects(t *testing.T) {
	svc, m := newPipeline(t)

	m.repo.On("GetByID", mock.Anything, "sb-1").
		Return(&models.Storybook{ID: "sb-1", UserID: testUserID}, nil)
	m.repo.On("DeleteOutputDetails", mock.Anything, "sb-1").Return(nil)
	m.repo.On("DeleteOriginDetails", mock.Anything, "sb-1").Return(nil)
	m.repo.On("DeleteStorybook", mock.Anything, "sb-1").Return(nil)
	m.objects.On("DeletePrefix", mock.Anything, testUserID+"/sb-1/").Return(nil)

	require.NoError(t, svc.Delete(context.Background(), testUserID, "sb-1"))
	m.repo.AssertExpectations(t)
	m.objects.AssertExpectations(t)
}
