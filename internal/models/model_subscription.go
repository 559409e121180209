package models

import (
	"time"

	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

// Subscription is a user's billing relationship to one plan.
type Subscription struct {
	ID     string                   `gorm:"column:id;type:uuid;primary_key;index:idx_subscription_user_created,priority:3,sort:desc" json:"id"`
	UserID string                   `gorm:"column:user_id;type:varchar(64);not null;index:idx_subscription_user_created,priority:1" json:"user_id"`
	PlanID string                   `gorm:"column:plan_id;type:varchar(64);not null" json:"plan_id"`
	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`

	CurrentPeriodStart *time.Time `gorm:"column:current_period_start;default:null" json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `gorm:"column:current_period_end;default:null" json:"current_period_end"`
	NextBillingDate    *time.Time `gorm:"column:next_billing_date;default:null" json:"next_billing_date"`
	CancelAtPeriodEnd  bool       `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`

	// RetryCount counts consecutive failed charges since the last success.
	RetryCount         int        `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	GracePeriodEnd     *time.Time `gorm:"column:grace_period_end;default:null" json:"grace_period_end"`
	LastPaymentAttempt *time.Time `gorm:"column:last_payment_attempt;default:null" json:"last_payment_attempt"`

	ProviderSubscriptionID *string `gorm:"column:provider_subscription_id;type:varchar(128);uniqueIndex" json:"provider_subscription_id"`
	ProviderCustomerID     *string `gorm:"column:provider_customer_id;type:varchar(128);index" json:"provider_customer_id"`

	CreatedAt time.Time `gorm:"index:idx_subscription_user_created,priority:2,sort:desc" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// InGracePeriod reports whether a past_due subscription still grants access at t.
func (s *Subscription) InGracePeriod(t time.Time) bool {
	return s != nil &&
		s.Status == types.SubscriptionStatusPastDue &&
		s.GracePeriodEnd != nil &&
		s.GracePeriodEnd.After(t)
}
