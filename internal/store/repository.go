package store

import (
	"context"

	"storybook-server/internal/models"
)

// Имена таблиц реляционного хранилища.
const (
	tableStorybooks    = "storybooks"
	tableOriginDetails = "storybook_origin_details"
	tableOutputDetails = "storybook_output_details"
	tableUsageQuotas   = "usage_quotas"
	tableSubscriptions = "subscriptions"
	tableWebhookEvents = "webhook_events"
)

// StorybookRepository — доступ к книжке и ее детальным строкам.
type StorybookRepository interface {
	Insert(ctx context.Context, sb *models.Storybook) error
	InsertOriginDetails(ctx context.Context, rows []models.OriginDetail) error
	InsertOutputDetails(ctx context.Context, rows []models.OutputDetail) error
	GetByID(ctx context.Context, id string) (*models.Storybook, error)
	ListByUser(ctx context.Context, userID string) ([]models.Storybook, error)
	GetOriginDetails(ctx context.Context, storybookID string) ([]models.OriginDetail, error)
	GetOutputDetails(ctx context.Context, storybookID string) ([]models.OutputDetail, error)
	DeleteStorybook(ctx context.Context, id string) error
	DeleteOriginDetails(ctx context.Context, storybookID string) error
	DeleteOutputDetails(ctx context.Context, storybookID string) error
}

// QuotaRepository — доступ к счетчикам квот.
type QuotaRepository interface {
	// GetOrCreate возвращает строку квоты, лениво создавая ее с дефолтным
	// лимитом при первом чтении.
	GetOrCreate(ctx context.Context, userID string, defaultTotal int) (*models.UsageQuota, error)
	// IncrementFree атомарно инкрементирует freeUsed с оптимистичной
	// проверкой прочитанного значения. false = проигранная гонка.
	IncrementFree(ctx context.Context, q *models.UsageQuota) (bool, error)
	// SetDaily записывает новый дневной счетчик и дату, охраняясь
	// прочитанными значениями. false = проигранная гонка.
	SetDaily(ctx context.Context, q *models.UsageQuota, used int, day string) (bool, error)
}

// SubscriptionRepository — доступ к состоянию подписки.
type SubscriptionRepository interface {
	// GetByUserID возвращает models.ErrNotFound, если строки нет
	// (пользователь на бесплатном тарифе).
	GetByUserID(ctx context.Context, userID string) (*models.Subscription, error)
	Upsert(ctx context.Context, sub *models.Subscription) error
}

// WebhookEventRepository — маркеры обработанных событий биллинга.
type WebhookEventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	// Insert добавляет маркер; дубликат (гонка двух доставок) считается
	// успехом, не ошибкой.
	Insert(ctx context.Context, marker *models.WebhookEventMarker) error
}
