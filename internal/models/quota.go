package models

import "time"

// Plan is the entitlement plan computed from the subscription state.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStandard Plan = "standard"
	PlanPro      Plan = "pro"
)

// Subscription statuses mirrored from the billing provider.
const (
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusActive     = "active"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusUnpaid     = "unpaid"
)

// QuotaDateLayout is the calendar-day format stored for the daily counter.
const QuotaDateLayout = "2006-01-02"

// UsageQuota tracks lifetime free usage and the rolling daily counter for one
// user. The daily counter is only meaningful together with DailyDate: a stored
// date that is not "today" in the reference timezone reads as zero usage.
type UsageQuota struct {
	UserID    string `json:"user_id"`
	FreeTotal int    `json:"free_total"`
	FreeUsed  int    `json:"free_used"`
	DailyUsed int    `json:"daily_used"`
	DailyDate string `json:"daily_date,omitempty"`
}

// EffectiveDailyUsed applies the lazy daily reset: the stored counter counts
// only when its date equals today in the reference timezone.
func (q *UsageQuota) EffectiveDailyUsed(now time.Time, loc *time.Location) int {
	if q.DailyDate != now.In(loc).Format(QuotaDateLayout) {
		return 0
	}
	return q.DailyUsed
}

// Subscription mirrors the provider subscription state for one user. A user
// with no row is implicitly on the free plan.
type Subscription struct {
	UserID               string     `json:"user_id"`
	Status               string     `json:"status"`
	Plan                 string     `json:"plan,omitempty"`
	TrialStart           *time.Time `json:"trial_start,omitempty"`
	TrialEnd             *time.Time `json:"trial_end,omitempty"`
	CurrentPeriodStart   *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	ProviderCustomerID   string     `json:"provider_customer_id,omitempty"`
	ProviderSubscription string     `json:"provider_subscription_id,omitempty"`
	LastEventID          string     `json:"last_event_id,omitempty"`
}

// IsPaidAt reports whether the subscription grants a paid plan at the given
// moment. A local trial row is never transitioned by the provider, so a
// trialing status only counts while TrialEnd is in the future.
func (s *Subscription) IsPaidAt(now time.Time) bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case SubscriptionStatusActive:
		return true
	case SubscriptionStatusTrialing:
		return s.TrialEnd == nil || now.Before(*s.TrialEnd)
	}
	return false
}

// PaidPlan resolves the paid plan code, defaulting to standard.
func (s *Subscription) PaidPlan() Plan {
	if s == nil {
		return PlanFree
	}
	if s.Plan == string(PlanPro) {
		return PlanPro
	}
	return PlanStandard
}

// WebhookEventMarker is an append-only dedup record of processed billing
// provider events.
type WebhookEventMarker struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Entitlement is the computed permission snapshot for one user.
type Entitlement struct {
	Plan       Plan   `json:"plan"`
	FreeTotal  int    `json:"freeStoryQuotaTotal"`
	FreeUsed   int    `json:"freeStoryQuotaUsed"`
	DailyLimit int    `json:"dailyLimit"`
	DailyUsed  int    `json:"dailyUsed"`
	CanCreate  bool   `json:"canCreate"`
	Reason     string `json:"reason,omitempty"`
}
