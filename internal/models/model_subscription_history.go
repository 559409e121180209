package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

// SubscriptionHistory is the append-only trail of subscription changes.
type SubscriptionHistory struct {
	ID             string              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID string              `gorm:"column:subscription_id;type:varchar(64);not null;index:idx_history_sub_created,priority:1" json:"subscription_id"`
	Action         types.HistoryAction `gorm:"column:action;type:varchar(64);not null" json:"action"`
	// OldValue and NewValue snapshot the subscription around the change.
	OldValue  datatypes.JSONType[*Subscription] `gorm:"column:old_value;type:jsonb" json:"old_value"`
	NewValue  datatypes.JSONType[*Subscription] `gorm:"column:new_value;type:jsonb" json:"new_value"`
	Reason    string                            `gorm:"column:reason;type:varchar(255)" json:"reason"`
	CreatedAt time.Time                         `gorm:"index:idx_history_sub_created,priority:2" json:"created_at"`
}

func (SubscriptionHistory) TableName() string {
	return "subscription_history"
}
