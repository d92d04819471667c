package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"storybook-server/internal/entitlement"
	"storybook-server/internal/models"
	"storybook-server/internal/schemas"
	"storybook-server/internal/storage"
	"storybook-server/internal/store"
)

var (
	storybookCreationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_creations_total",
			Help: "Total number of storybook creation attempts.",
		},
		[]string{"status"}, // success, quota_denied, parse_error, fulfillment_error, persistence_error, ai_error
	)
	storybookCreationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storybook_creation_duration_seconds",
		Help:    "End-to-end duration of successful storybook creations.",
		Buckets: prometheus.LinearBuckets(5, 5, 24),
	})
)

// CreateStorybookRequest — проверенный ввод пользователя.
type CreateStorybookRequest struct {
	Title       string
	AuthorName  string
	Description string
	Language    string
	DrawingData []byte // декодированный рисунок
	DrawingType string // content type рисунка
}

// EbookPage — страница собранной электронной книжки (обложка исключена).
type EbookPage struct {
	Page     int    `json:"page"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl,omitempty"`
	AudioURL string `json:"audioUrl,omitempty"`
}

// Ebook — представление книжки для читалки.
type Ebook struct {
	Title         string      `json:"title"`
	AuthorName    string      `json:"authorName,omitempty"`
	Language      string      `json:"language"`
	CoverImageURL string      `json:"coverImageUrl"`
	Pages         []EbookPage `json:"pages"`
}

// StorybookDetail — книжка вместе с детальными строками.
type StorybookDetail struct {
	Storybook *models.Storybook     `json:"storybook"`
	Details   []models.OutputDetail `json:"details"`
	Ebook     *Ebook                `json:"ebook"`
}

// StorybookService — конвейер создания книжки: gate-проверка квоты, вызов
// LLM, парсинг, генерация ассетов, сага персистентности, списание квоты.
type StorybookService struct {
	ai            AIClient
	prompts       *PromptProvider
	assets        *AssetGenerator
	saga          *PersistenceSaga
	repo          store.StorybookRepository
	objects       storage.ObjectStorage
	entitlements  *entitlement.Engine
	promptVersion string
	logger        *zap.Logger
}

// NewStorybookService создает сервис книжек.
func NewStorybookService(
	ai AIClient,
	prompts *PromptProvider,
	assets *AssetGenerator,
	saga *PersistenceSaga,
	repo store.StorybookRepository,
	objects storage.ObjectStorage,
	entitlements *entitlement.Engine,
	promptVersion string,
	logger *zap.Logger,
) *StorybookService {
	return &StorybookService{
		ai:            ai,
		prompts:       prompts,
		assets:        assets,
		saga:          saga,
		repo:          repo,
		objects:       objects,
		entitlements:  entitlements,
		promptVersion: promptVersion,
		logger:        logger.Named("StorybookService"),
	}
}

// Create выполняет весь конвейер. Ошибки возвращаются в терминах таксономии
// models: ErrQuotaExceeded (с причиной), ErrContentContract,
// ErrFulfillmentIncomplete, ErrPersistenceFailed.
func (s *StorybookService) Create(ctx context.Context, userID string, req CreateStorybookRequest) (*StorybookDetail, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	// Отключение клиента не прерывает запущенную генерацию: начатый
	// конвейер доводится до конца (или до отката).
	ctx = context.WithoutCancel(ctx)
	startTime := time.Now()

	log := s.logger.With(zap.String("user_id", userID), zap.String("title", req.Title))

	// 1. Gate-проверка квоты до запуска генерации.
	if _, err := s.entitlements.CanCreate(ctx, userID); err != nil {
		if errors.Is(err, models.ErrQuotaExceeded) {
			storybookCreationsTotal.WithLabelValues("quota_denied").Inc()
			log.Info("Creation denied by quota", zap.String("reason", models.QuotaReason(err)))
		}
		return nil, err
	}

	// 2. Вызов LLM.
	systemPrompt, err := s.prompts.StorySystemPrompt(req.Language)
	if err != nil {
		return nil, err
	}
	userInput := fmt.Sprintf("Title: %s\nDescription: %s", req.Title, req.Description)
	rawText, responseID, usage, err := s.ai.GenerateText(ctx, userID, systemPrompt, userInput)
	if err != nil {
		storybookCreationsTotal.WithLabelValues("ai_error").Inc()
		return nil, err
	}
	log.Info("Story text generated", zap.Int("total_tokens", usage.TotalTokens))

	// 3. Парсинг. Нарушение контракта терминально — повторный парс того же
	// текста бессмыслен.
	story, err := schemas.ParseStoryOutput(rawText, req.Title, req.Description)
	if err != nil {
		storybookCreationsTotal.WithLabelValues("parse_error").Inc()
		log.Error("Story output failed validation", zap.Error(err))
		return nil, err
	}

	// 4. Конкурентная генерация ассетов.
	bundle, err := s.assets.Generate(ctx, story, req.Language)
	if err != nil {
		storybookCreationsTotal.WithLabelValues("fulfillment_error").Inc()
		return nil, err
	}

	// 5. Сага персистентности.
	storybook, originDetails, outputDetails, uploads := s.buildRecords(userID, req, story, bundle, responseID)
	if err := s.saga.Execute(ctx, &PersistenceBundle{
		Storybook:     storybook,
		OriginDetails: originDetails,
		OutputDetails: outputDetails,
		Uploads:       uploads,
	}); err != nil {
		storybookCreationsTotal.WithLabelValues("persistence_error").Inc()
		return nil, err
	}

	// 6. Списание квоты только после полного успеха саги. Отказ списания
	// после сохраненной книжки не превращается в ошибку пользователя.
	if err := s.entitlements.Debit(ctx, userID); err != nil {
		log.Warn("Quota debit failed after successful persistence", zap.Error(err))
	}

	storybookCreationsTotal.WithLabelValues("success").Inc()
	storybookCreationDuration.Observe(time.Since(startTime).Seconds())
	log.Info("Storybook created",
		zap.String("storybook_id", storybook.ID),
		zap.Duration("duration", time.Since(startTime)),
	)

	return &StorybookDetail{
		Storybook: storybook,
		Details:   outputDetails,
		Ebook:     s.assembleEbook(storybook, outputDetails),
	}, nil
}

// Get возвращает книжку владельца с детальными строками.
func (s *StorybookService) Get(ctx context.Context, userID, storybookID string) (*StorybookDetail, error) {
	storybook, err := s.repo.GetByID(ctx, storybookID)
	if err != nil {
		return nil, err
	}
	if storybook.UserID != userID {
		// Чужая книжка не раскрывается даже фактом существования.
		return nil, models.ErrNotFound
	}
	details, err := s.repo.GetOutputDetails(ctx, storybookID)
	if err != nil {
		return nil, err
	}
	return &StorybookDetail{
		Storybook: storybook,
		Details:   details,
		Ebook:     s.assembleEbook(storybook, details),
	}, nil
}

// List возвращает книжки пользователя.
func (s *StorybookService) List(ctx context.Context, userID string) ([]models.Storybook, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Delete удаляет книжку с каскадом: детальные строки, корневая строка, затем
// объекты хранилища (best-effort).
func (s *StorybookService) Delete(ctx context.Context, userID, storybookID string) error {
	storybook, err := s.repo.GetByID(ctx, storybookID)
	if err != nil {
		return err
	}
	if storybook.UserID != userID {
		return models.ErrNotFound
	}

	if err := s.repo.DeleteOutputDetails(ctx, storybookID); err != nil {
		return err
	}
	if err := s.repo.DeleteOriginDetails(ctx, storybookID); err != nil {
		return err
	}
	if err := s.repo.DeleteStorybook(ctx, storybookID); err != nil {
		return err
	}

	prefix := fmt.Sprintf("%s/%s/", userID, storybookID)
	if err := s.objects.DeletePrefix(ctx, prefix); err != nil {
		s.logger.Warn("Failed to clean up storybook objects", zap.String("prefix", prefix), zap.Error(err))
	}
	return nil
}

// buildRecords собирает строки и загрузки для саги. Ключи ассетов
// неймспейсятся по пользователю и книжке.
func (s *StorybookService) buildRecords(
	userID string,
	req CreateStorybookRequest,
	story *models.ParsedStory,
	bundle *AssetBundle,
	responseID string,
) (*models.Storybook, []models.OriginDetail, []models.OutputDetail, []AssetUpload) {
	storybookID := uuid.NewString()
	base := fmt.Sprintf("%s/%s", userID, storybookID)

	originKey := base + "/images/origin.png"
	coverKey := base + "/images/cover.png"
	highlightKey := base + "/images/highlight.png"
	endingKey := base + "/images/ending.png"

	drawingType := req.DrawingType
	if drawingType == "" {
		drawingType = "image/png"
	}

	uploads := []AssetUpload{
		{Key: originKey, ContentType: drawingType, Data: req.DrawingData},
		{Key: coverKey, ContentType: "image/png", Data: bundle.Cover},
		{Key: highlightKey, ContentType: "image/png", Data: bundle.Highlight},
		{Key: endingKey, ContentType: "image/png", Data: bundle.Ending},
	}

	metadata := map[string]string{"promptVersion": s.promptVersion}
	if responseID != "" {
		metadata["providerResponseId"] = responseID
	}

	lastPage := len(story.Pages)
	highlightOnFinal := story.HighlightPage == lastPage
	if highlightOnFinal {
		// Финальная страница несет ключ концовки; подсветочная иллюстрация
		// остается доступной через метаданные, второй колонки под нее нет.
		metadata[models.MetaHighlightImageKey] = highlightKey
	}

	storybook := &models.Storybook{
		ID:           storybookID,
		UserID:       userID,
		Title:        req.Title,
		AuthorName:   req.AuthorName,
		Description:  req.Description,
		Language:     req.Language,
		Status:       models.StorybookStatusCompleted,
		OriginKey:    originKey,
		CoverKey:     coverKey,
		HighlightKey: highlightKey,
		EndingKey:    endingKey,
		PageCount:    lastPage,
		Metadata:     metadata,
	}

	originDetails := []models.OriginDetail{{
		ID:          uuid.NewString(),
		StorybookID: storybookID,
		UserID:      userID,
		DrawingKey:  originKey,
		Description: req.Description,
	}}

	outputDetails := make([]models.OutputDetail, 0, lastPage+1)
	outputDetails = append(outputDetails, models.OutputDetail{
		ID:          uuid.NewString(),
		StorybookID: storybookID,
		PageIndex:   0,
		PageType:    models.PageTypeCover,
		Title:       req.Title,
		ImageKey:    coverKey,
	})

	for _, page := range story.Pages {
		detail := models.OutputDetail{
			ID:          uuid.NewString(),
			StorybookID: storybookID,
			PageIndex:   page.Page,
			PageType:    models.PageTypeStory,
			Content:     page.Content,
			IsHighlight: page.IsHighlight,
		}
		if audio, ok := bundle.Narrations[page.Page]; ok {
			key := fmt.Sprintf("%s/tts/page_%d.mp3", base, page.Page)
			detail.AudioKey = key
			uploads = append(uploads, AssetUpload{Key: key, ContentType: "audio/mpeg", Data: audio})
		}
		switch {
		case page.Page == lastPage:
			detail.ImageKey = endingKey
		case page.IsHighlight:
			detail.ImageKey = highlightKey
		}
		outputDetails = append(outputDetails, detail)
	}

	return storybook, originDetails, outputDetails, uploads
}

// assembleEbook собирает представление для читалки: страницы без обложки, с
// публичными URL вместо ключей.
func (s *StorybookService) assembleEbook(storybook *models.Storybook, details []models.OutputDetail) *Ebook {
	ebook := &Ebook{
		Title:         storybook.Title,
		AuthorName:    storybook.AuthorName,
		Language:      storybook.Language,
		CoverImageURL: s.objects.PublicURL(storybook.CoverKey),
		Pages:         make([]EbookPage, 0, len(details)),
	}
	for _, d := range details {
		if d.PageType != models.PageTypeStory {
			continue
		}
		page := EbookPage{Page: d.PageIndex, Content: d.Content}
		if d.ImageKey != "" {
			page.ImageURL = s.objects.PublicURL(d.ImageKey)
		}
		if d.AudioKey != "" {
			page.AudioURL = s.objects.PublicURL(d.AudioKey)
		}
		ebook.Pages = append(ebook.Pages, page)
	}
	return ebook
}

func validateCreateRequest(req CreateStorybookRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("%w: title is required", models.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Description) == "" {
		return fmt.Errorf("%w: description is required", models.ErrInvalidInput)
	}
	if !models.SupportedLanguages[req.Language] {
		return fmt.Errorf("%w: unsupported language %q", models.ErrInvalidInput, req.Language)
	}
	if len(req.DrawingData) == 0 {
		return fmt.Errorf("%w: drawing is required", models.ErrInvalidInput)
	}
	return nil
}
