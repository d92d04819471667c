package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"storybook-server/internal/models"
	"storybook-server/internal/store"
)

// MockStorybookRepository is a mock type for the StorybookRepository type
type MockStorybookRepository struct {
	mock.Mock
}

func (_m *MockStorybookRepository) Insert(ctx context.Context, sb *models.Storybook) error {
	return _m.Called(ctx, sb).Error(0)
}

func (_m *MockStorybookRepository) InsertOriginDetails(ctx context.Context, rows []models.OriginDetail) error {
	return _m.Called(ctx, rows).Error(0)
}

func (_m *MockStorybookRepository) InsertOutputDetails(ctx context.Context, rows []models.OutputDetail) error {
	return _m.Called(ctx, rows).Error(0)
}

func (_m *MockStorybookRepository) GetByID(ctx context.Context, id string) (*models.Storybook, error) {
	ret := _m.Called(ctx, id)

	var r0 *models.Storybook
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Storybook)
	}
	return r0, ret.Error(1)
}

func (_m *MockStorybookRepository) ListByUser(ctx context.Context, userID string) ([]models.Storybook, error) {
	ret := _m.Called(ctx, userID)

	var r0 []models.Storybook
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.Storybook)
	}
	return r0, ret.Error(1)
}

func (_m *MockStorybookRepository) GetOriginDetails(ctx context.Context, storybookID string) ([]models.OriginDetail, error) {
	ret := _m.Called(ctx, storybookID)

	var r0 []models.OriginDetail
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.OriginDetail)
	}
	return r0, ret.Error(1)
}

func (_m *MockStorybookRepository) GetOutputDetails(ctx context.Context, storybookID string) ([]models.OutputDetail, error) {
	ret := _m.Called(ctx, storybookID)

	var r0 []models.OutputDetail
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.OutputDetail)
	}
	return r0, ret.Error(1)
}

func (_m *MockStorybookRepository) DeleteStorybook(ctx context.Context, id string) error {
	return _m.Called(ctx, id).Error(0)
}

func (_m *MockStorybookRepository) DeleteOriginDetails(ctx context.Context, storybookID string) error {
	return _m.Called(ctx, storybookID).Error(0)
}

func (_m *MockStorybookRepository) DeleteOutputDetails(ctx context.Context, storybookID string) error {
	return _m.Called(ctx, storybookID).Error(0)
}

// NewMockStorybookRepository creates a new instance of MockStorybookRepository.
// The first argument is typically a *testing.T value.
func NewMockStorybookRepository(t interface {
	mock.TestingT
	Helper()
}) *MockStorybookRepository {
	m := &MockStorybookRepository{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ store.StorybookRepository = (*MockStorybookRepository)(nil)

// MockQuotaRepository is a mock type for the QuotaRepository type
type MockQuotaRepository struct {
	mock.Mock
}

func (_m *MockQuotaRepository) GetOrCreate(ctx context.Context, userID string, defaultTotal int) (*models.UsageQuota, error) {
	ret := _m.Called(ctx, userID, defaultTotal)

	var r0 *models.UsageQuota
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.UsageQuota)
	}
	return r0, ret.Error(1)
}

func (_m *MockQuotaRepository) IncrementFree(ctx context.Context, q *models.UsageQuota) (bool, error) {
	ret := _m.Called(ctx, q)
	return ret.Bool(0), ret.Error(1)
}

func (_m *MockQuotaRepository) SetDaily(ctx context.Context, q *models.UsageQuota, used int, day string) (bool, error) {
	ret := _m.Called(ctx, q, used, day)
	return ret.Bool(0), ret.Error(1)
}

// NewMockQuotaRepository creates a new instance of MockQuotaRepository.
// The first argument is typically a *testing.T value.
func NewMockQuotaRepository(t interface {
	mock.TestingT
	Helper()
}) *MockQuotaRepository {
	m := &MockQuotaRepository{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ store.QuotaRepository = (*MockQuotaRepository)(nil)

// MockSubscriptionRepository is a mock type for the SubscriptionRepository type
type MockSubscriptionRepository struct {
	mock.Mock
}

func (_m *MockSubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	ret := _m.Called(ctx, userID)

	var r0 *models.Subscription
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Subscription)
	}
	return r0, ret.Error(1)
}

func (_m *MockSubscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	return _m.Called(ctx, sub).Error(0)
}

// NewMockSubscriptionRepository creates a new instance of MockSubscriptionRepository.
// The first argument is typically a *testing.T value.
func NewMockSubscriptionRepository(t interface {
	mock.TestingT
	Helper()
}) *MockSubscriptionRepository {
	m := &MockSubscriptionRepository{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ store.SubscriptionRepository = (*MockSubscriptionRepository)(nil)

// MockWebhookEventRepository is a mock type for the WebhookEventRepository type
type MockWebhookEventRepository struct {
	mock.Mock
}

func (_m *MockWebhookEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	ret := _m.Called(ctx, eventID)
	return ret.Bool(0), ret.Error(1)
}

func (_m *MockWebhookEventRepository) Insert(ctx context.Context, marker *models.WebhookEventMarker) error {
	return _m.Called(ctx, marker).Error(0)
}

// NewMockWebhookEventRepository creates a new instance of MockWebhookEventRepository.
// The first argument is typically a *testing.T value.
func NewMockWebhookEventRepository(t interface {
	mock.TestingT
	Helper()
}) *MockWebhookEventRepository {
	m := &MockWebhookEventRepository{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ store.WebhookEventRepository = (*MockWebhookEventRepository)(nil)
