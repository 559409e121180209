package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

// Payment is one ledger row. Amount is in minor currency units and is
// negative for refunds, which point at the original row via RefundedPaymentID.
type Payment struct {
	ID             string              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID *string             `gorm:"column:subscription_id;type:varchar(64);index" json:"subscription_id"`
	UserID         string              `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Amount         int64               `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency       string              `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status         types.PaymentStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Description    string              `gorm:"column:description;type:varchar(255)" json:"description"`

	ProviderPaymentID  *string `gorm:"column:provider_payment_id;type:varchar(128)" json:"provider_payment_id"`
	ProviderPaymentRef *string `gorm:"column:provider_payment_ref;type:varchar(128);uniqueIndex" json:"provider_payment_ref"`
	RefundedPaymentID  *string `gorm:"column:refunded_payment_id;type:varchar(64);index" json:"refunded_payment_id"`

	PaidAt    *time.Time        `gorm:"column:paid_at;default:null" json:"paid_at"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payment"
}

func (p *Payment) IsRefund() bool {
	return p != nil && p.RefundedPaymentID != nil
}
