package models

import (
	"time"

	"gorm.io/datatypes"
)

type WebhookEventLogStatus string

const (
	WebhookEventLogStatusHandled      WebhookEventLogStatus = "handled"
	WebhookEventLogStatusHandleFailed WebhookEventLogStatus = "handle_failed"
)

// WebhookEventLog keeps the raw provider payload and how it was handled.
type WebhookEventLog struct {
	ID             string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ProviderID     string                `gorm:"column:provider_id;type:varchar(64);not null" json:"provider_id"`
	Event          string                `gorm:"column:event;type:varchar(64);not null;index" json:"event"`
	Reference      string                `gorm:"column:reference;type:varchar(128);index" json:"reference"`
	SubscriptionID *string               `gorm:"column:subscription_id;type:varchar(64)" json:"subscription_id"`
	TraceID        string                `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Data           datatypes.JSON        `gorm:"column:data;type:jsonb" json:"data"`
	Result         *datatypes.JSON       `gorm:"column:result;type:jsonb" json:"result"`
	Status         WebhookEventLogStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func (WebhookEventLog) TableName() string { return "webhook_event_log" }
