package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storybook-server/internal/models"
	"storybook-server/internal/store"
)

// debitAttempts — каждая попытка перечитывает состояние, поэтому пары
// конкурирующих запросов хватает с запасом.
const debitAttempts = 3

// Limits — лимиты создания по тарифам.
type Limits struct {
	FreeTotalDefault int
	DailyStandard    int
	DailyPro         int
}

// Engine вычисляет право пользователя на создание книжки из состояния
// подписки и счетчиков квот. Состояние не кэшируется: каждый вызов читает
// хранилище заново (между gate-проверкой и списанием кэша быть не должно).
type Engine struct {
	quotas store.QuotaRepository
	subs   store.SubscriptionRepository
	limits Limits
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine создает движок квот. referenceTZ — фиксированная таймзона для
// вычисления «сегодня» дневного счетчика.
func NewEngine(quotas store.QuotaRepository, subs store.SubscriptionRepository, limits Limits, referenceTZ string, logger *zap.Logger) (*Engine, error) {
	loc, err := time.LoadLocation(referenceTZ)
	if err != nil {
		return nil, fmt.Errorf("invalid reference timezone %q: %w", referenceTZ, err)
	}
	return &Engine{
		quotas: quotas,
		subs:   subs,
		limits: limits,
		loc:    loc,
		logger: logger.Named("EntitlementEngine"),
		now:    time.Now,
	}, nil
}

// DailyLimit возвращает дневной лимит тарифа (0 для бесплатного).
func (e *Engine) DailyLimit(plan models.Plan) int {
	switch plan {
	case models.PlanPro:
		return e.limits.DailyPro
	case models.PlanStandard:
		return e.limits.DailyStandard
	default:
		return 0
	}
}

// Snapshot возвращает текущее вычисленное состояние квоты пользователя.
func (e *Engine) Snapshot(ctx context.Context, userID string) (*models.Entitlement, error) {
	plan, quota, err := e.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	ent := &models.Entitlement{
		Plan:      plan,
		FreeTotal: quota.FreeTotal,
		FreeUsed:  quota.FreeUsed,
	}
	if plan == models.PlanFree {
		ent.CanCreate = quota.FreeUsed < quota.FreeTotal
		if !ent.CanCreate {
			ent.Reason = "free_total"
		}
		return ent, nil
	}

	ent.DailyLimit = e.DailyLimit(plan)
	ent.DailyUsed = quota.EffectiveDailyUsed(e.now(), e.loc)
	ent.CanCreate = ent.DailyUsed < ent.DailyLimit
	if !ent.CanCreate {
		ent.Reason = "daily_limit"
	}
	return ent, nil
}

// CanCreate — gate-проверка перед запуском генерации. Возвращает ошибку
// квоты с машиночитаемой причиной, если создание запрещено.
func (e *Engine) CanCreate(ctx context.Context, userID string) (*models.Entitlement, error) {
	ent, err := e.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ent.CanCreate {
		if ent.Plan == models.PlanFree {
			return ent, models.ErrFreeQuotaExceeded
		}
		return ent, models.ErrDailyQuotaExceeded
	}
	return ent, nil
}

// Debit списывает одну единицу квоты. Вызывается только после полного успеха
// саги персистентности (debit-on-success). Состояние перечитывается заново и
// инкремент охраняется оптимистичной проверкой: два одновременных запроса
// одного пользователя могли оба пройти gate.
func (e *Engine) Debit(ctx context.Context, userID string) error {
	for attempt := 0; attempt < debitAttempts; attempt++ {
		plan, quota, err := e.load(ctx, userID)
		if err != nil {
			return err
		}

		if plan == models.PlanFree {
			// Гонко-безопасная перепроверка на момент списания.
			if quota.FreeUsed >= quota.FreeTotal {
				return models.ErrFreeQuotaExceeded
			}
			ok, err := e.quotas.IncrementFree(ctx, quota)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
			continue // проиграли гонку — перечитываем
		}

		today := e.now().In(e.loc).Format(models.QuotaDateLayout)
		used := quota.EffectiveDailyUsed(e.now(), e.loc)
		if used >= e.DailyLimit(plan) {
			return models.ErrDailyQuotaExceeded
		}
		ok, err := e.quotas.SetDaily(ctx, quota, used+1, today)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	e.logger.Error("Quota debit kept losing optimistic races", zap.String("user_id", userID))
	return fmt.Errorf("quota debit for user %s: %w", userID, models.ErrConflict)
}

// load читает подписку и квоту и определяет действующий тариф.
func (e *Engine) load(ctx context.Context, userID string) (models.Plan, *models.UsageQuota, error) {
	sub, err := e.subs.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", nil, err
	}

	plan := models.PlanFree
	if sub.IsPaidAt(e.now()) {
		plan = sub.PaidPlan()
	}

	quota, err := e.quotas.GetOrCreate(ctx, userID, e.limits.FreeTotalDefault)
	if err != nil {
		return "", nil, err
	}
	return plan, quota, nil
}
