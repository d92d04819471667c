package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"storybook-server/internal/models"
)

var _ QuotaRepository = (*RESTQuotaRepository)(nil)

// RESTQuotaRepository хранит счетчики квот. Инкременты выполняются с
// оптимистичной проверкой прочитанных значений: PATCH фильтруется по старым
// значениям колонок, и пустой результат означает проигранную гонку.
type RESTQuotaRepository struct {
	client *Client
	logger *zap.Logger
}

// NewRESTQuotaRepository создает репозиторий квот.
func NewRESTQuotaRepository(client *Client, logger *zap.Logger) *RESTQuotaRepository {
	return &RESTQuotaRepository{
		client: client,
		logger: logger.Named("QuotaRepository"),
	}
}

func (r *RESTQuotaRepository) GetOrCreate(ctx context.Context, userID string, defaultTotal int) (*models.UsageQuota, error) {
	var rows []models.UsageQuota
	filters := map[string]string{"user_id": Eq(userID)}
	if err := r.client.Select(ctx, tableUsageQuotas, filters, &rows); err != nil {
		return nil, fmt.Errorf("get usage quota: %w", err)
	}
	if len(rows) > 0 {
		return &rows[0], nil
	}

	// Ленивое создание при первом чтении. Гонка двух создателей дает 409,
	// после которого строка уже существует — перечитываем.
	fresh := models.UsageQuota{UserID: userID, FreeTotal: defaultTotal}
	err := r.client.Insert(ctx, tableUsageQuotas, &fresh, InsertOptions{}, nil)
	if err != nil && !errors.Is(err, models.ErrConflict) {
		return nil, fmt.Errorf("create usage quota: %w", err)
	}
	if err == nil {
		return &fresh, nil
	}

	if err := r.client.Select(ctx, tableUsageQuotas, filters, &rows); err != nil {
		return nil, fmt.Errorf("re-read usage quota: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("usage quota for user %s vanished after conflict", userID)
	}
	return &rows[0], nil
}

func (r *RESTQuotaRepository) IncrementFree(ctx context.Context, q *models.UsageQuota) (bool, error) {
	filters := map[string]string{
		"user_id":   Eq(q.UserID),
		"free_used": Eq(strconv.Itoa(q.FreeUsed)),
	}
	payload := map[string]int{"free_used": q.FreeUsed + 1}

	var updated []models.UsageQuota
	if err := r.client.Update(ctx, tableUsageQuotas, filters, payload, &updated); err != nil {
		return false, fmt.Errorf("increment free quota: %w", err)
	}
	if len(updated) == 0 {
		r.logger.Warn("Lost optimistic race incrementing free quota", zap.String("user_id", q.UserID))
		return false, nil
	}
	q.FreeUsed = updated[0].FreeUsed
	return true, nil
}

func (r *RESTQuotaRepository) SetDaily(ctx context.Context, q *models.UsageQuota, used int, day string) (bool, error) {
	filters := map[string]string{
		"user_id":    Eq(q.UserID),
		"daily_used": Eq(strconv.Itoa(q.DailyUsed)),
	}
	// Устаревшая дата перезаписывается этим же PATCH (ленивый сброс —
	// никакой фоновой задачи обнуления нет).
	if q.DailyDate == "" {
		filters["daily_date"] = "is.null"
	} else {
		filters["daily_date"] = Eq(q.DailyDate)
	}
	payload := map[string]interface{}{
		"daily_used": used,
		"daily_date": day,
	}

	var updated []models.UsageQuota
	if err := r.client.Update(ctx, tableUsageQuotas, filters, payload, &updated); err != nil {
		return false, fmt.Errorf("set daily quota: %w", err)
	}
	if len(updated) == 0 {
		r.logger.Warn("Lost optimistic race updating daily quota", zap.String("user_id", q.UserID))
		return false, nil
	}
	q.DailyUsed = updated[0].DailyUsed
	q.DailyDate = updated[0].DailyDate
	return true, nil
}
