package service

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"context"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"storybook-server/internal/config"
)

// ErrImageGenerationFailed - ошибка при генерации изображения.
var ErrImageGenerationFailed = errors.New("image generation failed")

// ImageClient генерирует одну иллюстрацию по промту и возвращает готовые
// байты: ответ провайдера нормализуется независимо от того, пришли ли
// инлайн-байты или URL.
type ImageClient interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

var _ ImageClient = (*openAIImageClient)(nil)

type openAIImageClient struct {
	client     *openaigo.Client
	model      string
	size       string
	httpClient *http.Client // для материализации URL-ответов
	logger     *zap.Logger
}

// NewImageClient создает клиент генерации изображений.
func NewImageClient(cfg *config.Config, logger *zap.Logger) ImageClient {
	openaiConfig := openaigo.DefaultConfig(cfg.AIAPIKey)
	openaiConfig.HTTPClient = &http.Client{Timeout: cfg.AITimeout}
	return &openAIImageClient{
		client:     openaigo.NewClientWithConfig(openaiConfig),
		model:      cfg.ImageModel,
		size:       cfg.ImageSize,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.Named("ImageClient"),
	}
}

func (c *openAIImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	startTime := time.Now()
	resp, err := c.client.CreateImage(ctx, openaigo.ImageRequest{
		Model:          c.model,
		Prompt:         prompt,
		N:              1,
		Size:           c.size,
		ResponseFormat: openaigo.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		c.logger.Error("Ошибка от image API", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrImageGenerationFailed, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty response data", ErrImageGenerationFailed)
	}

	item := resp.Data[0]
	var imageData []byte
	switch {
	case item.B64JSON != "":
		imageData, err = base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("%w: bad base64 payload: %v", ErrImageGenerationFailed, err)
		}
	case item.URL != "":
		// Провайдер вернул ссылку — материализуем байты одним GET.
		imageData, err = c.fetch(ctx, item.URL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: response carries neither bytes nor URL", ErrImageGenerationFailed)
	}

	if len(imageData) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrImageGenerationFailed)
	}
	c.logger.Debug("Image generated",
		zap.Int("size_bytes", len(imageData)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return imageData, nil
}

func (c *openAIImageClient) fetch(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create fetch request: %v", ErrImageGenerationFailed, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: image fetch failed: %v", ErrImageGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: image fetch returned status %d", ErrImageGenerationFailed, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read image body: %v", ErrImageGenerationFailed, err)
	}
	return data, nil
}
