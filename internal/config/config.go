package config

import (
	"fmt"
	"log"
	"time"

	"storybook-server/internal/utils"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию сервера генерации книжек.
type Config struct {
	// Настройки сервера
	Port             string   `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel         string   `envconfig:"LOG_LEVEL" default:"info"`
	CORSAllowOrigins []string `envconfig:"CORS_ALLOW_ORIGINS" default:"*"`

	// Настройки AI (текстовая генерация)
	AIClientType  string        `envconfig:"AI_CLIENT_TYPE" default:"openai"` // openai или ollama
	AIBaseURL     string        `envconfig:"AI_BASE_URL" default:"https://api.openai.com/v1"`
	AIModel       string        `envconfig:"AI_MODEL" default:"gpt-4o"`
	AITimeout     time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	PromptVersion string        `envconfig:"PROMPT_VERSION" default:"v3"`
	PromptsDir    string        `envconfig:"PROMPTS_DIR" default:"prompts"`
	// Секретное поле БЕЗ envconfig тега
	AIAPIKey string

	// Настройки генерации изображений
	ImageModel string `envconfig:"IMAGE_MODEL" default:"dall-e-3"`
	ImageSize  string `envconfig:"IMAGE_SIZE" default:"1024x1024"`

	// Настройки синтеза речи
	TTSModel string `envconfig:"TTS_MODEL" default:"gpt-4o-mini-tts"`
	TTSVoice string `envconfig:"TTS_VOICE" default:"nova"`

	// Реляционное хранилище (REST)
	StoreBaseURL string        `envconfig:"STORE_BASE_URL" required:"true"`
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"15s"`
	// Секретное поле БЕЗ envconfig тега
	StoreServiceKey string

	// Объектное хранилище (S3-совместимое)
	S3Bucket        string `envconfig:"S3_BUCKET" required:"true"`
	S3Region        string `envconfig:"S3_REGION" default:"ap-northeast-2"`
	S3Endpoint      string `envconfig:"S3_ENDPOINT"` // Пусто = AWS
	AssetPublicBase string `envconfig:"ASSET_PUBLIC_BASE_URL" required:"true"`
	// Секретные поля БЕЗ envconfig тега
	S3AccessKey string
	S3SecretKey string

	// Квоты и тарифы
	FreeQuotaTotal     int    `envconfig:"FREE_QUOTA_TOTAL" default:"2"`
	DailyLimitStandard int    `envconfig:"DAILY_LIMIT_STANDARD" default:"30"`
	DailyLimitPro      int    `envconfig:"DAILY_LIMIT_PRO" default:"60"`
	ReferenceTimezone  string `envconfig:"REFERENCE_TIMEZONE" default:"Asia/Seoul"`

	// Биллинг (Stripe)
	PlanByPriceID map[string]string `envconfig:"PLAN_BY_PRICE_ID"` // price_xxx:standard,price_yyy:pro
	FallbackPlan  string            `envconfig:"FALLBACK_PLAN" default:"standard"`
	TrialDays     int               `envconfig:"TRIAL_DAYS" default:"7"`
	CheckoutURL   string            `envconfig:"CHECKOUT_RETURN_URL" default:"https://app.example.com/billing"`
	// Секретные поля БЕЗ envconfig тега
	StripeSecretKey     string
	StripeWebhookSecret string

	// Настройки JWT (для проверки токена пользователя в middleware)
	// Секретное поле БЕЗ envconfig тега
	JWTSecret string
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов.
func LoadConfig() (*Config, error) {
	var cfg Config
	// Загружаем НЕсекретные переменные
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	// Загружаем ОБЯЗАТЕЛЬНЫЕ секреты
	var loadErr error
	if cfg.AIAPIKey, loadErr = utils.ReadSecret("ai_api_key"); loadErr != nil {
		return nil, loadErr
	}
	if cfg.StoreServiceKey, loadErr = utils.ReadSecret("store_service_key"); loadErr != nil {
		return nil, loadErr
	}
	if cfg.S3AccessKey, loadErr = utils.ReadSecret("s3_access_key"); loadErr != nil {
		return nil, loadErr
	}
	if cfg.S3SecretKey, loadErr = utils.ReadSecret("s3_secret_key"); loadErr != nil {
		return nil, loadErr
	}
	if cfg.StripeSecretKey, loadErr = utils.ReadSecret("stripe_secret_key"); loadErr != nil {
		return nil, loadErr
	}
	if cfg.StripeWebhookSecret, loadErr = utils.ReadSecret("stripe_webhook_secret"); loadErr != nil {
		return nil, loadErr
	}
	if cfg.JWTSecret, loadErr = utils.ReadSecret("jwt_secret"); loadErr != nil {
		return nil, loadErr
	}

	// Логируем загруженную конфигурацию (кроме ключей)
	log.Printf("Конфигурация загружена (секреты из файлов):")
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  AI Client: %s, BaseURL: %s, Model: %s, Timeout: %v", cfg.AIClientType, cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout)
	log.Printf("  Image Model: %s (%s)", cfg.ImageModel, cfg.ImageSize)
	log.Printf("  TTS Model: %s, Voice: %s", cfg.TTSModel, cfg.TTSVoice)
	log.Printf("  Store Base URL: %s", cfg.StoreBaseURL)
	log.Printf("  S3 Bucket: %s, Region: %s", cfg.S3Bucket, cfg.S3Region)
	log.Printf("  Free Quota: %d, Daily: standard=%d pro=%d, TZ: %s",
		cfg.FreeQuotaTotal, cfg.DailyLimitStandard, cfg.DailyLimitPro, cfg.ReferenceTimezone)
	log.Println("  AI API Key: [ЗАГРУЖЕН]")
	log.Println("  Stripe Keys: [ЗАГРУЖЕНЫ]")

	return &cfg, nil
}
