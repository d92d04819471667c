package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"storybook-server/internal/config"
)

// ErrSpeechSynthesisFailed - ошибка при синтезе речи.
var ErrSpeechSynthesisFailed = errors.New("speech synthesis failed")

// SpeechClient озвучивает текст одной страницы. instructions — языковая
// инструкция подачи (тон, темп, обработка прямой речи).
type SpeechClient interface {
	Synthesize(ctx context.Context, text, instructions string) ([]byte, error)
}

var _ SpeechClient = (*openAISpeechClient)(nil)

type openAISpeechClient struct {
	client *openaigo.Client
	model  string
	voice  string
	logger *zap.Logger
}

// NewSpeechClient создает клиент синтеза речи.
func NewSpeechClient(cfg *config.Config, logger *zap.Logger) SpeechClient {
	openaiConfig := openaigo.DefaultConfig(cfg.AIAPIKey)
	openaiConfig.HTTPClient = &http.Client{Timeout: cfg.AITimeout}
	return &openAISpeechClient{
		client: openaigo.NewClientWithConfig(openaiConfig),
		model:  cfg.TTSModel,
		voice:  cfg.TTSVoice,
		logger: logger.Named("SpeechClient"),
	}
}

func (c *openAISpeechClient) Synthesize(ctx context.Context, text, instructions string) ([]byte, error) {
	startTime := time.Now()
	resp, err := c.client.CreateSpeech(ctx, openaigo.CreateSpeechRequest{
		Model:          openaigo.SpeechModel(c.model),
		Input:          text,
		Voice:          openaigo.SpeechVoice(c.voice),
		Instructions:   instructions,
		ResponseFormat: openaigo.SpeechResponseFormatMp3,
	})
	if err != nil {
		c.logger.Error("Ошибка от speech API", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSpeechSynthesisFailed, err)
	}
	defer resp.Close()

	audioData, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read audio body: %v", ErrSpeechSynthesisFailed, err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: empty audio data", ErrSpeechSynthesisFailed)
	}
	c.logger.Debug("Narration synthesized",
		zap.Int("size_bytes", len(audioData)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return audioData, nil
}
