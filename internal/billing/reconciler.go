package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
	"go.uber.org/zap"

	"storybook-server/internal/models"
	"storybook-server/internal/store"
)

var webhookEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storybook_billing_webhook_events_total",
		Help: "Total number of processed billing webhook events.",
	},
	[]string{"type", "status"}, // status: processed, duplicate, ignored, rejected
)

// Ключи метаданных подписки Stripe, проставляются при создании
// checkout-сессии.
const (
	metadataUserKey = "user_id"
	metadataPlanKey = "plan"
)

// Result — итог обработки одного события вебхука.
type Result struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	Duplicate bool   `json:"duplicate"`
	Processed bool   `json:"processed"`
}

// Reconciler приводит локальное состояние подписок к состоянию провайдера
// биллинга по событиям вебхука. Обработка идемпотентна: проверка подписи,
// затем дедупликация по ID события, затем upsert подписки.
type Reconciler struct {
	subs          store.SubscriptionRepository
	events        store.WebhookEventRepository
	webhookSecret string
	planByPriceID map[string]string
	fallbackPlan  string
	logger        *zap.Logger
}

// NewReconciler создает обработчик вебхуков биллинга.
func NewReconciler(
	subs store.SubscriptionRepository,
	events store.WebhookEventRepository,
	webhookSecret string,
	planByPriceID map[string]string,
	fallbackPlan string,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		subs:          subs,
		events:        events,
		webhookSecret: webhookSecret,
		planByPriceID: planByPriceID,
		fallbackPlan:  fallbackPlan,
		logger:        logger.Named("BillingReconciler"),
	}
}

// Process верифицирует и обрабатывает сырое событие вебхука.
// Порядок строгий: подпись проверяется до любого чтения состояния, дубликат
// обнаруживается до каких-либо записей.
func (r *Reconciler) Process(ctx context.Context, payload []byte, signature string) (*Result, error) {
	// Версия API в событии зависит от настроек аккаунта Stripe и не влияет
	// на используемые здесь поля подписки, поэтому расхождение с версией,
	// зашитой в SDK, не повод отклонять доставку.
	event, err := webhook.ConstructEventWithOptions(payload, signature, r.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		webhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidSignature, err)
		}
		// Подпись сошлась, но тело не разобралось — повтор той же доставки
		// не поможет.
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedEvent, err)
	}

	log := r.logger.With(zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))

	seen, err := r.events.Exists(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check event marker: %w", err)
	}
	if seen {
		webhookEventsTotal.WithLabelValues(string(event.Type), "duplicate").Inc()
		log.Info("Duplicate webhook event skipped")
		return &Result{EventID: event.ID, EventType: string(event.Type), Duplicate: true}, nil
	}

	processed := false
	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		if err := r.applySubscriptionEvent(ctx, &event); err != nil {
			return nil, err
		}
		processed = true
	default:
		log.Info("Webhook event type not handled, recording marker only")
	}

	// Маркер пишется после успешного применения: упавшая доставка будет
	// повторена провайдером и обработана заново.
	if err := r.events.Insert(ctx, &models.WebhookEventMarker{
		EventID:   event.ID,
		EventType: string(event.Type),
	}); err != nil {
		return nil, fmt.Errorf("failed to record event marker: %w", err)
	}

	if processed {
		webhookEventsTotal.WithLabelValues(string(event.Type), "processed").Inc()
	} else {
		webhookEventsTotal.WithLabelValues(string(event.Type), "ignored").Inc()
	}
	return &Result{EventID: event.ID, EventType: string(event.Type), Processed: processed}, nil
}

func (r *Reconciler) applySubscriptionEvent(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("%w: failed to decode subscription payload: %v", models.ErrMalformedEvent, err)
	}

	userID := sub.Metadata[metadataUserKey]
	if userID == "" {
		return fmt.Errorf("%w: subscription %s carries no %s metadata", models.ErrMalformedEvent, sub.ID, metadataUserKey)
	}

	record := &models.Subscription{
		UserID:               userID,
		Status:               string(sub.Status),
		Plan:                 r.resolvePlan(&sub),
		ProviderSubscription: sub.ID,
		LastEventID:          event.ID,
	}
	if sub.Customer != nil {
		record.ProviderCustomerID = sub.Customer.ID
	}
	if sub.TrialStart > 0 {
		record.TrialStart = unixPtr(sub.TrialStart)
	}
	if sub.TrialEnd > 0 {
		record.TrialEnd = unixPtr(sub.TrialEnd)
	}
	if sub.CurrentPeriodStart > 0 {
		record.CurrentPeriodStart = unixPtr(sub.CurrentPeriodStart)
	}
	if sub.CurrentPeriodEnd > 0 {
		record.CurrentPeriodEnd = unixPtr(sub.CurrentPeriodEnd)
	}

	if err := r.subs.Upsert(ctx, record); err != nil {
		return fmt.Errorf("failed to upsert subscription for user %s: %w", userID, err)
	}

	r.logger.Info("Subscription state reconciled",
		zap.String("user_id", userID),
		zap.String("status", record.Status),
		zap.String("plan", record.Plan),
	)
	return nil
}

// isSignatureError сообщает, является ли ошибка ConstructEvent отказом
// проверки подписи (в отличие от ошибки разбора валидно подписанного тела).
func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// resolvePlan определяет план: сначала из метаданных подписки, затем по ID
// цены, иначе запасной план. Неизвестная цена дает запасной план, а не
// ошибку: событие провайдера важнее полноты конфигурации.
func (r *Reconciler) resolvePlan(sub *stripe.Subscription) string {
	if plan := sub.Metadata[metadataPlanKey]; plan != "" {
		return plan
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price == nil {
				continue
			}
			if plan, ok := r.planByPriceID[item.Price.ID]; ok {
				return plan
			}
		}
	}
	return r.fallbackPlan
}

func unixPtr(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}
