package entitlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storybook-server/internal/entitlement"
	"storybook-server/internal/mocks"
	"storybook-server/internal/models"
)

const testUserID = "user-123"

var testLimits = entitlement.Limits{
	FreeTotalDefault: 2,
	DailyStandard:    30,
	DailyPro:         60,
}

func newTestEngine(t *testing.T, quotas *mocks.MockQuotaRepository, subs *mocks.MockSubscriptionRepository, now time.Time) *entitlement.Engine {
	t.Helper()
	engine, err := entitlement.NewEngine(quotas, subs, testLimits, "Asia/Seoul", zap.NewNop())
	require.NoError(t, err)
	entitlement.SetNowFunc(engine, func() time.Time { return now })
	return engine
}

func activeSub(plan string) *models.Subscription {
	return &models.Subscription{
		UserID: testUserID,
		Status: models.SubscriptionStatusActive,
		Plan:   plan,
	}
}

func TestNewEngine_InvalidTimezone(t *testing.T) {
	_, err := entitlement.NewEngine(nil, nil, testLimits, "Not/AZone", zap.NewNop())
	assert.Error(t, err)
}

func TestCanCreate_FreePlan(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("under quota", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		subs.On("GetByUserID", mock.Anything, testUserID).Return(nil, models.ErrNotFound)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).
			Return(&models.UsageQuota{UserID: testUserID, FreeTotal: 2, FreeUsed: 1}, nil)

		engine := newTestEngine(t, quotas, subs, now)
		ent, err := engine.CanCreate(context.Background(), testUserID)
		require.NoError(t, err)
		assert.True(t, ent.CanCreate)
		assert.Equal(t, models.PlanFree, ent.Plan)
		assert.Equal(t, 1, ent.FreeUsed)
	})

	t.Run("quota exhausted", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		subs.On("GetByUserID", mock.Anything, testUserID).Return(nil, models.ErrNotFound)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).
			Return(&models.UsageQuota{UserID: testUserID, FreeTotal: 2, FreeUsed: 2}, nil)

		engine := newTestEngine(t, quotas, subs, now)
		ent, err := engine.CanCreate(context.Background(), testUserID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrQuotaExceeded))
		assert.Equal(t, "free_total", models.QuotaReason(err))
		assert.False(t, ent.CanCreate)
		assert.Equal(t, "free_total", ent.Reason)
	})
}

func TestCanCreate_PaidPlans(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	today := now.In(mustLoc(t)).Format(models.QuotaDateLayout)

	t.Run("standard under daily limit", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		subs.On("GetByUserID", mock.Anything, testUserID).Return(activeSub("standard"), nil)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).
			Return(&models.UsageQuota{UserID: testUserID, FreeTotal: 2, DailyUsed: 29, DailyDate: today}, nil)

		engine := newTestEngine(t, quotas, subs, now)
		ent, err := engine.CanCreate(context.Background(), testUserID)
		require.NoError(t, err)
		assert.True(t, ent.CanCreate)
		assert.Equal(t, models.PlanStandard, ent.Plan)
		assert.Equal(t, 30, ent.DailyLimit)
		assert.Equal(t, 29, ent.DailyUsed)
	})

	t.Run("standard at daily limit", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		subs.On("GetByUserID", mock.Anything, testUserID).Return(activeSub("standard"), nil)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).
			Return(&models.UsageQuota{UserID: testUserID, FreeTotal: 2, DailyUsed: 30, DailyDate: today}, nil)

		engine := newTestEngine(t, quotas, subs, now)
		_, err := engine.CanCreate(context.Background(), testUserID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrQuotaExceeded))
		assert.Equal(t, "daily_limit", models.QuotaReason(err))
	})

	t.Run("pro gets the higher limit", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		subs.On("GetByUserID", mock.Anything, testUserID).Return(activeSub("pro"), nil)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).
			Return(&models.UsageQuota{UserID: testUserID, FreeTotal: 2, DailyUsed: 59, DailyDate: today}, nil)

		engine := newTestEngine(t, quotas, subs, now)
		ent, err := engine.CanCreate(context.Background(), testUserID)
		require.NoError(t, err)
		assert.Equal(t, 60, ent.DailyLimit)
		assert.True(t, ent.CanCreate)
	})

	t.Run("stale daily date reads as zero", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		subs.On("GetByUserID", mock.Anything, testUserID).Return(activeSub("standard"), nil)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).
			Return(&models.UsageQuota{UserID: testUserID, FreeTotal: 2, DailyUsed: 30, DailyDate: "2025-03-09"}, nil)

		engine := newTestEngine(t, quotas, subs, now)
		ent, err := engine.CanCreate(context.Background(), testUserID)
		require.NoError(t, err)
		assert.Equal(t, 0, ent.DailyUsed)
		assert.True(t, ent.CanCreate)
	})

	t.Run("expired subscription counts as free", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		subs.On("GetByUserID", mock.Anything, testUserID).
			Return(&models.Subscription{UserID: testUserID, Status: models.SubscriptionStatusCanceled, Plan: "pro"}, nil)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).
			Return(&models.UsageQuota{UserID: testUserID, FreeTotal: 2, FreeUsed: 2}, nil)

		engine := newTestEngine(t, quotas, subs, now)
		_, err := engine.CanCreate(context.Background(), testUserID)
		require.Error(t, err)
		assert.Equal(t, "free_total", models.QuotaReason(err))
	})
}

func TestCanCreate_Trial(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	today := now.In(mustLoc(t)).Format(models.QuotaDateLayout)

	trialSub := func(end time.Time) *models.Subscription {
		return &models.Subscription{
			UserID:   testUserID,
			Status:   models.SubscriptionStatusTrialing,
			Plan:     "standard",
			TrialEnd: &end,
		}
	}

	t.Run("active trial grants the paid limit", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		subs.On("GetByUserID", mock.Anything, testUserID).Return(trialSub(now.Add(24*time.Hour)), nil)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).
			Return(&models.UsageQuota{UserID: testUserID, FreeTotal: 2, FreeUsed: 2, DailyUsed: 3, DailyDate: today}, nil)

		engine := newTestEngine(t, quotas, subs, now)
		ent, err := engine.CanCreate(context.Background(), testUserID)
		require.NoError(t, err)
		assert.Equal(t, models.PlanStandard, ent.Plan)
		assert.True(t, ent.CanCreate)
	})

	t.Run("expired trial falls back to free", func(t *testing.T) {
		// Локальный триал никогда не переводится вебхуком провайдера, поэтому
		// строка остается trialing навсегда. Истекший TrialEnd читается как
		// бесплатный тариф.
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		subs.On("GetByUserID", mock.Anything, testUserID).Return(trialSub(now.Add(-30*24*time.Hour)), nil)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).
			Return(&models.UsageQuota{UserID: testUserID, FreeTotal: 2, FreeUsed: 2}, nil)

		engine := newTestEngine(t, quotas, subs, now)
		ent, err := engine.CanCreate(context.Background(), testUserID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrQuotaExceeded))
		assert.Equal(t, "free_total", models.QuotaReason(err))
		assert.Equal(t, models.PlanFree, ent.Plan)
	})
}

func TestCanCreate_DayBoundaryInReferenceTimezone(t *testing.T) {
	// 16:30 UTC on March 10 is already 01:30 on March 11 in Seoul: the counter
	// stored for March 10 no longer applies.
	now := time.Date(2025, 3, 10, 16, 30, 0, 0, time.UTC)

	quotas := mocks.NewMockQuotaRepository(t)
	subs := mocks.NewMockSubscriptionRepository(t)
	subs.On("GetByUserID", mock.Anything, testUserID).Return(activeSub("standard"), nil)
	quotas.On("GetOrCreate", mock.Anything, testUserID, 2).
		Return(&models.UsageQuota{UserID: testUserID, FreeTotal: 2, DailyUsed: 30, DailyDate: "2025-03-10"}, nil)

	engine := newTestEngine(t, quotas, subs, now)
	ent, err := engine.CanCreate(context.Background(), testUserID)
	require.NoError(t, err)
	assert.True(t, ent.CanCreate)
	assert.Equal(t, 0, ent.DailyUsed)
}

func TestDebit_Free(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		quota := &models.UsageQuota{UserID: testUserID, FreeTotal: 2, FreeUsed: 0}
		subs.On("GetByUserID", mock.Anything, testUserID).Return(nil, models.ErrNotFound)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).Return(quota, nil)
		quotas.On("IncrementFree", mock.Anything, quota).Return(true, nil)

		engine := newTestEngine(t, quotas, subs, now)
		require.NoError(t, engine.Debit(context.Background(), testUserID))
		quotas.AssertExpectations(t)
	})

	t.Run("recheck catches exhausted quota", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		subs.On("GetByUserID", mock.Anything, testUserID).Return(nil, models.ErrNotFound)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).
			Return(&models.UsageQuota{UserID: testUserID, FreeTotal: 2, FreeUsed: 2}, nil)

		engine := newTestEngine(t, quotas, subs, now)
		err := engine.Debit(context.Background(), testUserID)
		assert.True(t, errors.Is(err, models.ErrQuotaExceeded))
		quotas.AssertNotCalled(t, "IncrementFree", mock.Anything, mock.Anything)
	})

	t.Run("lost race retries with fresh state", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		stale := &models.UsageQuota{UserID: testUserID, FreeTotal: 2, FreeUsed: 0}
		fresh := &models.UsageQuota{UserID: testUserID, FreeTotal: 2, FreeUsed: 1}
		subs.On("GetByUserID", mock.Anything, testUserID).Return(nil, models.ErrNotFound)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).Return(stale, nil).Once()
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).Return(fresh, nil).Once()
		quotas.On("IncrementFree", mock.Anything, stale).Return(false, nil).Once()
		quotas.On("IncrementFree", mock.Anything, fresh).Return(true, nil).Once()

		engine := newTestEngine(t, quotas, subs, now)
		require.NoError(t, engine.Debit(context.Background(), testUserID))
		quotas.AssertExpectations(t)
	})

	t.Run("gives up after repeated lost races", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		quota := &models.UsageQuota{UserID: testUserID, FreeTotal: 2, FreeUsed: 0}
		subs.On("GetByUserID", mock.Anything, testUserID).Return(nil, models.ErrNotFound)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).Return(quota, nil)
		quotas.On("IncrementFree", mock.Anything, quota).Return(false, nil)

		engine := newTestEngine(t, quotas, subs, now)
		err := engine.Debit(context.Background(), testUserID)
		assert.True(t, errors.Is(err, models.ErrConflict))
	})
}

func TestDebit_Paid(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	today := now.In(mustLoc(t)).Format(models.QuotaDateLayout)

	t.Run("writes incremented counter with today", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		quota := &models.UsageQuota{UserID: testUserID, FreeTotal: 2, DailyUsed: 5, DailyDate: today}
		subs.On("GetByUserID", mock.Anything, testUserID).Return(activeSub("standard"), nil)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).Return(quota, nil)
		quotas.On("SetDaily", mock.Anything, quota, 6, today).Return(true, nil)

		engine := newTestEngine(t, quotas, subs, now)
		require.NoError(t, engine.Debit(context.Background(), testUserID))
		quotas.AssertExpectations(t)
	})

	t.Run("stale date restarts the counter at one", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		quota := &models.UsageQuota{UserID: testUserID, FreeTotal: 2, DailyUsed: 30, DailyDate: "2025-03-09"}
		subs.On("GetByUserID", mock.Anything, testUserID).Return(activeSub("standard"), nil)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).Return(quota, nil)
		quotas.On("SetDaily", mock.Anything, quota, 1, today).Return(true, nil)

		engine := newTestEngine(t, quotas, subs, now)
		require.NoError(t, engine.Debit(context.Background(), testUserID))
		quotas.AssertExpectations(t)
	})

	t.Run("recheck catches reached limit", func(t *testing.T) {
		quotas := mocks.NewMockQuotaRepository(t)
		subs := mocks.NewMockSubscriptionRepository(t)
		subs.On("GetByUserID", mock.Anything, testUserID).Return(activeSub("standard"), nil)
		quotas.On("GetOrCreate", mock.Anything, testUserID, 2).
			Return(&models.UsageQuota{UserID: testUserID, FreeTotal: 2, DailyUsed: 30, DailyDate: today}, nil)

		engine := newTestEngine(t, quotas, subs, now)
		err := engine.Debit(context.Background(), testUserID)
		assert.True(t, errors.Is(err, models.ErrQuotaExceeded))
		assert.Equal(t, "daily_limit", models.QuotaReason(err))
	})
}

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	return loc
}
