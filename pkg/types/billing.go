package types

type SubscriptionStatus string

const (
	SubscriptionStatusIncomplete  SubscriptionStatus = "incomplete"
	SubscriptionStatusActive      SubscriptionStatus = "active"
	SubscriptionStatusPastDue     SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled    SubscriptionStatus = "canceled"
	SubscriptionStatusNonRenewing SubscriptionStatus = "non-renewing"
)

// Eligible reports whether a subscription in this status may still receive payments.
func (s SubscriptionStatus) Eligible() bool {
	switch s {
	case SubscriptionStatusIncomplete, SubscriptionStatusActive, SubscriptionStatusPastDue:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// NormalizePaymentStatus maps provider spellings onto PaymentStatus.
// "completed" is a legacy alias of succeeded.
func NormalizePaymentStatus(s string) PaymentStatus {
	switch s {
	case "succeeded", "success", "completed":
		return PaymentStatusSucceeded
	case "failed", "failure", "abandoned", "reversed":
		return PaymentStatusFailed
	default:
		return PaymentStatusPending
	}
}

type HistoryAction string

const (
	HistoryActionPlanChanged        HistoryAction = "plan_changed"
	HistoryActionRenewed            HistoryAction = "renewed"
	HistoryActionReactivated        HistoryAction = "reactivated"
	HistoryActionCancelled          HistoryAction = "cancelled"
	HistoryActionGracePeriodStarted HistoryAction = "grace_period_started"
	HistoryActionStatusChanged      HistoryAction = "status_changed"
	HistoryActionActivated          HistoryAction = "activated"
)

type PaymentProvider string

const (
	PaymentProviderPaystack PaymentProvider = "paystack"
)
