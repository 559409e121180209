package models

// All lists every table owned by the billing service, in migration order.
func All() []any {
	return []any{
		&User{},
		&BillingPlan{},
		&Subscription{},
		&Payment{},
		&SubscriptionHistory{},
		&WebhookEventLog{},
		&ProcessedWebhookEvent{},
		&AuditLog{},
	}
}
