package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"storybook-server/internal/models"
)

var _ SubscriptionRepository = (*RESTSubscriptionRepository)(nil)

// RESTSubscriptionRepository хранит состояние подписок.
type RESTSubscriptionRepository struct {
	client *Client
	logger *zap.Logger
}

// NewRESTSubscriptionRepository создает репозиторий подписок.
func NewRESTSubscriptionRepository(client *Client, logger *zap.Logger) *RESTSubscriptionRepository {
	return &RESTSubscriptionRepository{
		client: client,
		logger: logger.Named("SubscriptionRepository"),
	}
}

func (r *RESTSubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	var rows []models.Subscription
	filters := map[string]string{"user_id": Eq(userID)}
	if err := r.client.Select(ctx, tableSubscriptions, filters, &rows); err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if len(rows) == 0 {
		return nil, models.ErrNotFound
	}
	return &rows[0], nil
}

func (r *RESTSubscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	opts := InsertOptions{Upsert: true, OnConflict: "user_id"}
	if err := r.client.Insert(ctx, tableSubscriptions, sub, opts, nil); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	r.logger.Debug("Subscription upserted",
		zap.String("user_id", sub.UserID),
		zap.String("status", sub.Status),
		zap.String("plan", sub.Plan),
	)
	return nil
}
