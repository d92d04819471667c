package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"storybook-server/internal/models"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ StorybookRepository = (*RESTStorybookRepository)(nil)

// RESTStorybookRepository хранит книжки через REST-клиент хранилища.
type RESTStorybookRepository struct {
	client *Client
	logger *zap.Logger
}

// NewRESTStorybookRepository создает репозиторий книжек.
func NewRESTStorybookRepository(client *Client, logger *zap.Logger) *RESTStorybookRepository {
	return &RESTStorybookRepository{
		client: client,
		logger: logger.Named("StorybookRepository"),
	}
}

func (r *RESTStorybookRepository) Insert(ctx context.Context, sb *models.Storybook) error {
	if err := r.client.Insert(ctx, tableStorybooks, sb, InsertOptions{}, nil); err != nil {
		return fmt.Errorf("insert storybook: %w", err)
	}
	return nil
}

func (r *RESTStorybookRepository) InsertOriginDetails(ctx context.Context, rows []models.OriginDetail) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.client.Insert(ctx, tableOriginDetails, rows, InsertOptions{}, nil); err != nil {
		return fmt.Errorf("insert origin details: %w", err)
	}
	return nil
}

func (r *RESTStorybookRepository) InsertOutputDetails(ctx context.Context, rows []models.OutputDetail) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.client.Insert(ctx, tableOutputDetails, rows, InsertOptions{}, nil); err != nil {
		return fmt.Errorf("insert output details: %w", err)
	}
	return nil
}

func (r *RESTStorybookRepository) GetByID(ctx context.Context, id string) (*models.Storybook, error) {
	var rows []models.Storybook
	filters := map[string]string{"id": Eq(id)}
	if err := r.client.Select(ctx, tableStorybooks, filters, &rows); err != nil {
		return nil, fmt.Errorf("get storybook: %w", err)
	}
	if len(rows) == 0 {
		return nil, models.ErrNotFound
	}
	return &rows[0], nil
}

func (r *RESTStorybookRepository) ListByUser(ctx context.Context, userID string) ([]models.Storybook, error) {
	var rows []models.Storybook
	filters := map[string]string{
		"user_id": Eq(userID),
		"order":   "created_at.desc",
	}
	if err := r.client.Select(ctx, tableStorybooks, filters, &rows); err != nil {
		return nil, fmt.Errorf("list storybooks: %w", err)
	}
	return rows, nil
}

func (r *RESTStorybookRepository) GetOriginDetails(ctx context.Context, storybookID string) ([]models.OriginDetail, error) {
	var rows []models.OriginDetail
	filters := map[string]string{"storybook_id": Eq(storybookID)}
	if err := r.client.Select(ctx, tableOriginDetails, filters, &rows); err != nil {
		return nil, fmt.Errorf("get origin details: %w", err)
	}
	return rows, nil
}

func (r *RESTStorybookRepository) GetOutputDetails(ctx context.Context, storybookID string) ([]models.OutputDetail, error) {
	var rows []models.OutputDetail
	filters := map[string]string{
		"storybook_id": Eq(storybookID),
		"order":        "page_index.asc",
	}
	if err := r.client.Select(ctx, tableOutputDetails, filters, &rows); err != nil {
		return nil, fmt.Errorf("get output details: %w", err)
	}
	return rows, nil
}

func (r *RESTStorybookRepository) DeleteStorybook(ctx context.Context, id string) error {
	if err := r.client.Delete(ctx, tableStorybooks, map[string]string{"id": Eq(id)}); err != nil {
		return fmt.Errorf("delete storybook: %w", err)
	}
	return nil
}

func (r *RESTStorybookRepository) DeleteOriginDetails(ctx context.Context, storybookID string) error {
	if err := r.client.Delete(ctx, tableOriginDetails, map[string]string{"storybook_id": Eq(storybookID)}); err != nil {
		return fmt.Errorf("delete origin details: %w", err)
	}
	return nil
}

func (r *RESTStorybookRepository) DeleteOutputDetails(ctx context.Context, storybookID string) error {
	if err := r.client.Delete(ctx, tableOutputDetails, map[string]string{"storybook_id": Eq(storybookID)}); err != nil {
		return fmt.Errorf("delete output details: %w", err)
	}
	return nil
}
