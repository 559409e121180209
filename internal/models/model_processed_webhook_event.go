package models

import "time"

// ProcessedWebhookEvent marks an (event, reference) pair as fully applied.
type ProcessedWebhookEvent struct {
	ID        string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Event     string    `gorm:"column:event;type:varchar(64);not null;uniqueIndex:uniq_event_reference,priority:1" json:"event"`
	Reference string    `gorm:"column:reference;type:varchar(128);not null;uniqueIndex:uniq_event_reference,priority:2" json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProcessedWebhookEvent) TableName() string { return "processed_webhook_event" }
