package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"go.uber.org/zap"

	"storybook-server/internal/models"
	"storybook-server/internal/store"
)

// CheckoutService создает checkout-сессии провайдера и стартует пробный
// период без оплаты.
type CheckoutService struct {
	subs          store.SubscriptionRepository
	planByPriceID map[string]string
	trialDays     int
	returnURL     string
	logger        *zap.Logger
	now           func() time.Time
}

// NewCheckoutService создает сервис оформления подписки. Секретный ключ
// провайдера устанавливается глобально для клиента Stripe.
func NewCheckoutService(
	subs store.SubscriptionRepository,
	secretKey string,
	planByPriceID map[string]string,
	trialDays int,
	returnURL string,
	logger *zap.Logger,
) *CheckoutService {
	stripe.Key = secretKey
	return &CheckoutService{
		subs:          subs,
		planByPriceID: planByPriceID,
		trialDays:     trialDays,
		returnURL:     returnURL,
		logger:        logger.Named("CheckoutService"),
		now:           time.Now,
	}
}

// CreateSession создает checkout-сессию подписки для известной цены и
// возвращает URL для редиректа. Идентификатор пользователя проставляется в
// метаданные подписки, чтобы вебхук мог привязать событие к пользователю.
func (c *CheckoutService) CreateSession(ctx context.Context, userID, priceID string) (string, error) {
	if _, ok := c.planByPriceID[priceID]; !ok {
		return "", fmt.Errorf("%w: unknown price %q", models.ErrInvalidInput, priceID)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(c.returnURL + "?checkout=success"),
		CancelURL:         stripe.String(c.returnURL + "?checkout=canceled"),
		ClientReferenceID: stripe.String(userID),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataUserKey: userID},
		},
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	c.logger.Info("Checkout session created",
		zap.String("user_id", userID),
		zap.String("session_id", sess.ID),
	)
	return sess.URL, nil
}

// StartTrial стартует локальный пробный период. Пользователь с уже
// существующей подпиской (включая истекший триал) второй триал не получает.
func (c *CheckoutService) StartTrial(ctx context.Context, userID string) (*models.Subscription, error) {
	existing, err := c.subs.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: subscription already exists for user %s", models.ErrConflict, userID)
	}

	start := c.now().UTC()
	end := start.AddDate(0, 0, c.trialDays)
	sub := &models.Subscription{
		UserID:     userID,
		Status:     models.SubscriptionStatusTrialing,
		Plan:       string(models.PlanStandard),
		TrialStart: &start,
		TrialEnd:   &end,
	}
	if err := c.subs.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to start trial for user %s: %w", userID, err)
	}

	c.logger.Info("Trial started",
		zap.String("user_id", userID),
		zap.Time("trial_end", end),
	)
	return sub, nil
}
