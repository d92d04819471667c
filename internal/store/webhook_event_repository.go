package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storybook-server/internal/models"
)

var _ WebhookEventRepository = (*RESTWebhookEventRepository)(nil)

// RESTWebhookEventRepository хранит маркеры обработанных событий биллинга.
// Таблица append-only: маркеры не обновляются и не удаляются.
type RESTWebhookEventRepository struct {
	client *Client
	logger *zap.Logger
}

// NewRESTWebhookEventRepository создает репозиторий маркеров событий.
func NewRESTWebhookEventRepository(client *Client, logger *zap.Logger) *RESTWebhookEventRepository {
	return &RESTWebhookEventRepository{
		client: client,
		logger: logger.Named("WebhookEventRepository"),
	}
}

func (r *RESTWebhookEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var rows []models.WebhookEventMarker
	filters := map[string]string{"event_id": Eq(eventID)}
	if err := r.client.Select(ctx, tableWebhookEvents, filters, &rows); err != nil {
		return false, fmt.Errorf("check webhook event marker: %w", err)
	}
	return len(rows) > 0, nil
}

func (r *RESTWebhookEventRepository) Insert(ctx context.Context, marker *models.WebhookEventMarker) error {
	err := r.client.Insert(ctx, tableWebhookEvents, marker, InsertOptions{}, nil)
	if errors.Is(err, models.ErrConflict) {
		// Две доставки одного события могут вставлять маркер одновременно;
		// проигравший видит дубликат, что для идемпотентности равно успеху.
		r.logger.Info("Webhook event marker already present", zap.String("event_id", marker.EventID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert webhook event marker: %w", err)
	}
	return nil
}
