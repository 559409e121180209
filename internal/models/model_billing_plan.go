package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type BillingPlan struct {
	ID       string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Name     string          `gorm:"column:name;type:varchar(128);not null;uniqueIndex" json:"name"`
	Price    decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	Currency string          `gorm:"column:currency;type:varchar(8);not null" json:"currency"`

	Features        datatypes.JSONSlice[string] `gorm:"column:features;type:jsonb" json:"features"`
	MaxPortals      int                         `gorm:"column:max_portals;not null;default:0" json:"max_portals"`
	MaxStorageGB    int                         `gorm:"column:max_storage_gb;not null;default:0" json:"max_storage_gb"`
	MaxUploadsMonth int                         `gorm:"column:max_uploads_month;not null;default:0" json:"max_uploads_month"`
	IsActive        bool                        `gorm:"column:is_active;not null;default:true" json:"is_active"`

	ProviderPlanCode *string `gorm:"column:provider_plan_code;type:varchar(128)" json:"provider_plan_code"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BillingPlan) TableName() string {
	return "billing_plan"
}
